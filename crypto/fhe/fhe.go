// Package fhe exposes encrypted scalars as opaque 32 bytes handles together
// with the operations the poll engine runs over them. The engine only
// depends on the Executor interface. Coprocessor is a local executor that
// keeps the ciphertexts in a key-value database.
package fhe

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidHandle is returned for malformed or unknown handles.
	ErrInvalidHandle = fmt.Errorf("invalid ciphertext handle")
	// ErrCiphertextNotFound is returned when a handle has no ciphertext.
	ErrCiphertextNotFound = fmt.Errorf("ciphertext not found")
	// ErrTypeMismatch is returned when operands have incompatible types.
	ErrTypeMismatch = fmt.Errorf("ciphertext type mismatch")
	// ErrInvalidInputProof is returned when an input attestation does not
	// verify for the given handle, user and contract.
	ErrInvalidInputProof = fmt.Errorf("invalid input proof")
	// ErrInvalidOptionIndex is returned when a cleartext does not fit the
	// range bound requested at encryption time.
	ErrInvalidOptionIndex = fmt.Errorf("value out of the attested range")
	// ErrProtocolUnsupported is returned for handle or proof versions this
	// node does not understand.
	ErrProtocolUnsupported = fmt.Errorf("confidential protocol unsupported")
	// ErrNotDecryptable is returned when decrypting a handle that has not
	// been made publicly decryptable.
	ErrNotDecryptable = fmt.Errorf("handle is not publicly decryptable")
)

// Input is a verified encrypted input.
type Input struct {
	Handle Handle
	// Bound is the exclusive upper bound attested for the cleartext.
	Bound uint8
}

// Executor runs the encrypted operations. Implementations are expected to
// persist every result before returning its handle.
type Executor interface {
	// ProtocolID identifies the confidential protocol deployment.
	ProtocolID() uint64
	// TrivialEncrypt encrypts a public value.
	TrivialEncrypt(value uint64, t Type) (Handle, error)
	// Eq returns an encrypted boolean, true when a holds plain.
	Eq(a Handle, plain uint64) (Handle, error)
	// Add returns the encrypted sum of a and b, wrapping at the type width.
	Add(a, b Handle) (Handle, error)
	// Select returns a when cond is true, b otherwise.
	Select(cond, a, b Handle) (Handle, error)
	// VerifyInput checks the input proof of a handle submitted by user to
	// contract.
	VerifyInput(h Handle, proof []byte, user, contract common.Address) (*Input, error)
	// MakePubliclyDecryptable grants public decryption of the handles.
	MakePubliclyDecryptable(handles ...Handle) error
}
