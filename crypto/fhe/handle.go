package fhe

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// HandleLength is the size of a ciphertext handle.
const HandleLength = 32

// HandleVersion is the only handle encoding version understood by this node.
const HandleVersion uint8 = 0

// computedIndex marks handles produced by an operation rather than an input.
const computedIndex uint8 = 0xff

// Type identifies the cleartext type behind a handle.
type Type uint8

const (
	TypeBool   Type = 0
	TypeUint8  Type = 2
	TypeUint16 Type = 3
	TypeUint32 Type = 4
	TypeUint64 Type = 5
)

// Bits returns the width of the cleartext type.
func (t Type) Bits() uint {
	switch t {
	case TypeBool:
		return 1
	case TypeUint8:
		return 8
	case TypeUint16:
		return 16
	case TypeUint32:
		return 32
	case TypeUint64:
		return 64
	}
	return 0
}

// Valid reports whether t is a supported type.
func (t Type) Valid() bool {
	return t.Bits() != 0
}

func (t Type) String() string {
	switch t {
	case TypeBool:
		return "ebool"
	case TypeUint8:
		return "euint8"
	case TypeUint16:
		return "euint16"
	case TypeUint32:
		return "euint32"
	case TypeUint64:
		return "euint64"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// Handle is an opaque reference to an encrypted value. Its layout is:
//   - digest (21 bytes)
//   - index (1 byte), 0xff for computed values
//   - chain id (8 bytes, big endian)
//   - type (1 byte)
//   - version (1 byte)
type Handle [HandleLength]byte

// NewHandle builds a handle from the keccak256 digest of seed.
func NewHandle(seed []byte, index uint8, chainID uint64, t Type) Handle {
	var h Handle
	copy(h[:21], crypto.Keccak256(seed)[:21])
	h[21] = index
	binary.BigEndian.PutUint64(h[22:30], chainID)
	h[30] = byte(t)
	h[31] = HandleVersion
	return h
}

// HandleFromBytes parses a 32 bytes handle.
func HandleFromBytes(b []byte) (Handle, error) {
	var h Handle
	if len(b) != HandleLength {
		return h, fmt.Errorf("%w: length %d", ErrInvalidHandle, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Index returns the position of the handle inside its input batch.
func (h Handle) Index() uint8 {
	return h[21]
}

// ChainID returns the chain id the handle was produced for.
func (h Handle) ChainID() uint64 {
	return binary.BigEndian.Uint64(h[22:30])
}

// Type returns the cleartext type of the handle.
func (h Handle) Type() Type {
	return Type(h[30])
}

// Version returns the handle encoding version.
func (h Handle) Version() uint8 {
	return h[31]
}

// IsZero reports whether the handle is unset.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

func (h Handle) Bytes() []byte {
	return h[:]
}

func (h Handle) String() string {
	return hexutil.Encode(h[:])
}

// MarshalText encodes the handle as 0x prefixed hex.
func (h Handle) MarshalText() ([]byte, error) {
	return hexutil.Bytes(h[:]).MarshalText()
}

// UnmarshalText decodes a 0x prefixed hex handle.
func (h *Handle) UnmarshalText(input []byte) error {
	var b hexutil.Bytes
	if err := b.UnmarshalText(input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidHandle, err)
	}
	parsed, err := HandleFromBytes(b)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Handles converts a list of handles into the bytes32 form expected by
// EIP-712 payloads.
func Handles(hs []Handle) []any {
	out := make([]any, len(hs))
	for i, h := range hs {
		out[i] = h.String()
	}
	return out
}
