package kms

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/ethereum"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
)

// ThresholdVerifier accepts a proof when at least threshold distinct
// trusted signers signed the decryption payload.
type ThresholdVerifier struct {
	signers   map[common.Address]struct{}
	order     []common.Address
	threshold int
	domain    apitypes.TypedDataDomain
}

var _ Verifier = (*ThresholdVerifier)(nil)

// NewThresholdVerifier creates a verifier for the given signer set.
func NewThresholdVerifier(signers []common.Address, threshold int, chainID uint64,
	verifyingContract common.Address,
) (*ThresholdVerifier, error) {
	if threshold < 1 {
		return nil, fmt.Errorf("threshold must be at least 1, got %d", threshold)
	}
	v := &ThresholdVerifier{
		signers:   make(map[common.Address]struct{}, len(signers)),
		threshold: threshold,
		domain:    DecryptionDomain(chainID, verifyingContract),
	}
	for _, s := range signers {
		if _, ok := v.signers[s]; ok {
			return nil, fmt.Errorf("duplicated KMS signer %s", s)
		}
		v.signers[s] = struct{}{}
		v.order = append(v.order, s)
	}
	if threshold > len(v.signers) {
		return nil, fmt.Errorf("threshold %d above the %d KMS signers", threshold, len(v.signers))
	}
	return v, nil
}

// Signers returns the trusted signer set.
func (v *ThresholdVerifier) Signers() []common.Address {
	return append([]common.Address{}, v.order...)
}

// Threshold returns the number of distinct signatures required.
func (v *ThresholdVerifier) Threshold() int {
	return v.threshold
}

// VerifyDecryption implements Verifier.
func (v *ThresholdVerifier) VerifyDecryption(handles []fhe.Handle, cleartexts, proof []byte) error {
	for _, h := range handles {
		if h.Version() != fhe.HandleVersion {
			return fmt.Errorf("%w: handle version %d", ErrProtocolUnsupported, h.Version())
		}
	}
	p, err := ParseProof(proof)
	if err != nil {
		return err
	}
	if len(p.ExtraData) == 0 || p.ExtraData[0] != ExtraDataVersion {
		return fmt.Errorf("%w: unknown extra data version", ErrProtocolUnsupported)
	}
	if len(p.Signatures) < v.threshold {
		return fmt.Errorf("%w: %d signatures, %d required", ErrInvalidKMSSignatures, len(p.Signatures), v.threshold)
	}
	td := DecryptionTypedData(v.domain, handles, cleartexts, p.ExtraData)
	hash, err := ethereum.TypedDataHash(td)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKMSSignatures, err)
	}
	seen := make(map[common.Address]struct{}, len(p.Signatures))
	for _, sig := range p.Signatures {
		addr, err := ethereum.AddrFromHashSignature(hash, sig)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidKMSSignatures, err)
		}
		if _, ok := v.signers[addr]; !ok {
			return fmt.Errorf("%w: %s is not a KMS signer", ErrInvalidKMSSignatures, addr)
		}
		if _, ok := seen[addr]; ok {
			return fmt.Errorf("%w: duplicated signature from %s", ErrInvalidKMSSignatures, addr)
		}
		seen[addr] = struct{}{}
	}
	if len(seen) < v.threshold {
		return fmt.Errorf("%w: %d valid signers, %d required", ErrInvalidKMSSignatures, len(seen), v.threshold)
	}
	return nil
}
