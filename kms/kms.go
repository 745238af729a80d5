// Package kms defines the contract with the threshold decryption network:
// the shape of a public decryption proof, how cleartexts are encoded and how
// the proof is verified before the cleartexts are trusted.
package kms

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/ethereum"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
)

var (
	// ErrInvalidKMSSignatures is returned when a decryption proof is
	// malformed or does not carry enough valid signatures.
	ErrInvalidKMSSignatures = fmt.Errorf("invalid KMS signatures")
	// ErrInvalidCleartextsSize is returned when the encoded cleartexts do
	// not hold exactly one word per handle.
	ErrInvalidCleartextsSize = fmt.Errorf("invalid cleartexts size")
	// ErrProtocolUnsupported is returned for handle or proof versions the
	// verifier does not understand.
	ErrProtocolUnsupported = fhe.ErrProtocolUnsupported
)

const (
	// ExtraDataVersion is the first byte of the extra data of every proof.
	ExtraDataVersion uint8 = 0

	decryptionName    = "Decryption"
	decryptionVersion = "1"
)

var publicDecryptVerificationType = []apitypes.Type{
	{Name: "ctHandles", Type: "bytes32[]"},
	{Name: "decryptedResult", Type: "bytes"},
	{Name: "extraData", Type: "bytes"},
}

// Verifier validates public decryption proofs. The poll engine depends on
// this interface only, so the trust model can be swapped without touching
// the poll logic.
type Verifier interface {
	// VerifyDecryption checks that proof binds the ordered handles to the
	// ABI encoded cleartexts.
	VerifyDecryption(handles []fhe.Handle, cleartexts, proof []byte) error
}

// DecryptionDomain returns the EIP-712 domain of the decryption contract.
func DecryptionDomain(chainID uint64, verifyingContract common.Address) apitypes.TypedDataDomain {
	return ethereum.Domain(decryptionName, decryptionVersion, chainID, verifyingContract)
}

// DecryptionTypedData returns the payload every KMS signer signs.
func DecryptionTypedData(domain apitypes.TypedDataDomain, handles []fhe.Handle, cleartexts, extraData []byte) apitypes.TypedData {
	return ethereum.TypedData(domain, "PublicDecryptVerification", publicDecryptVerificationType,
		apitypes.TypedDataMessage{
			"ctHandles":       fhe.Handles(handles),
			"decryptedResult": hexutil.Bytes(cleartexts),
			"extraData":       hexutil.Bytes(extraData),
		})
}

// Proof is a public decryption proof. It is serialized as
// [signatures count][signatures][extra data].
type Proof struct {
	Signatures [][]byte
	ExtraData  []byte
}

// Marshal encodes the proof.
func (p *Proof) Marshal() []byte {
	out := make([]byte, 0, 1+len(p.Signatures)*ethereum.SignatureLength+len(p.ExtraData))
	out = append(out, byte(len(p.Signatures)))
	for _, sig := range p.Signatures {
		out = append(out, sig...)
	}
	return append(out, p.ExtraData...)
}

// ParseProof decodes a proof. Malformed proofs are reported as
// ErrInvalidKMSSignatures.
func ParseProof(data []byte) (*Proof, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty proof", ErrInvalidKMSSignatures)
	}
	n := int(data[0])
	if len(data) < 1+n*ethereum.SignatureLength {
		return nil, fmt.Errorf("%w: proof too short for %d signatures", ErrInvalidKMSSignatures, n)
	}
	p := &Proof{Signatures: make([][]byte, n)}
	for i := 0; i < n; i++ {
		start := 1 + i*ethereum.SignatureLength
		p.Signatures[i] = data[start : start+ethereum.SignatureLength]
	}
	p.ExtraData = data[1+n*ethereum.SignatureLength:]
	return p, nil
}
