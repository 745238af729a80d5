package kms

import (
	"context"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/ethereum"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
	"github.com/vocdoni/vocdoni-fhe-polls/log"
)

// Decrypter reveals publicly decryptable handles.
type Decrypter interface {
	Decrypt(h fhe.Handle) (uint64, error)
}

// Decryption is the answer of a public decryption request.
type Decryption struct {
	RequestID             string                `json:"requestId"`
	ClearValues           map[fhe.Handle]uint64 `json:"clearValues"`
	AbiEncodedClearValues hexutil.Bytes         `json:"abiEncodedClearValues"`
	DecryptionProof       hexutil.Bytes         `json:"decryptionProof"`
}

// Oracle plays the threshold decryption network: every member decrypts
// through the same Decrypter and signs the result.
type Oracle struct {
	decrypter Decrypter
	signers   []*ethereum.SignKeys
	domain    apitypes.TypedDataDomain
}

// NewOracle creates an oracle whose members are signers.
func NewOracle(decrypter Decrypter, signers []*ethereum.SignKeys, chainID uint64,
	verifyingContract common.Address,
) *Oracle {
	return &Oracle{
		decrypter: decrypter,
		signers:   signers,
		domain:    DecryptionDomain(chainID, verifyingContract),
	}
}

// GenerateSigners creates n random KMS signer keys.
func GenerateSigners(n int) ([]*ethereum.SignKeys, error) {
	signers := make([]*ethereum.SignKeys, n)
	for i := range signers {
		signers[i] = ethereum.NewSignKeys()
		if err := signers[i].Generate(); err != nil {
			return nil, err
		}
	}
	return signers, nil
}

// Addresses returns the addresses of the oracle members.
func (o *Oracle) Addresses() []common.Address {
	addrs := make([]common.Address, len(o.signers))
	for i, s := range o.signers {
		addrs[i] = s.Address()
	}
	return addrs
}

// PublicDecrypt decrypts the ordered handles and returns the cleartexts
// with a proof signed by every member.
func (o *Oracle) PublicDecrypt(ctx context.Context, handles []fhe.Handle) (*Decryption, error) {
	d := &Decryption{
		RequestID:   uuid.New().String(),
		ClearValues: make(map[fhe.Handle]uint64, len(handles)),
	}
	values := make([]uint32, len(handles))
	for i, h := range handles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, err := o.decrypter.Decrypt(h)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", d.RequestID, err)
		}
		if v > math.MaxUint32 {
			return nil, fmt.Errorf("request %s: cleartext of %s does not fit a uint32", d.RequestID, h)
		}
		d.ClearValues[h] = v
		values[i] = uint32(v)
	}
	var err error
	if d.AbiEncodedClearValues, err = EncodeCleartexts(values); err != nil {
		return nil, err
	}
	extraData := []byte{ExtraDataVersion}
	td := DecryptionTypedData(o.domain, handles, d.AbiEncodedClearValues, extraData)
	hash, err := ethereum.TypedDataHash(td)
	if err != nil {
		return nil, err
	}
	proof := &Proof{ExtraData: extraData}
	for _, s := range o.signers {
		sig, err := s.SignHash(hash)
		if err != nil {
			return nil, fmt.Errorf("request %s: %w", d.RequestID, err)
		}
		proof.Signatures = append(proof.Signatures, sig)
	}
	d.DecryptionProof = proof.Marshal()
	log.Debugw("public decryption",
		"requestId", d.RequestID,
		"handles", len(handles),
		"signers", len(o.signers))
	return d, nil
}
