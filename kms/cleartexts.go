package kms

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// WordSize is the size of one ABI encoded cleartext.
const WordSize = 32

var uint32Type, _ = abi.NewType("uint32", "", nil)

func uint32Arguments(n int) abi.Arguments {
	args := make(abi.Arguments, n)
	for i := range args {
		args[i] = abi.Argument{Type: uint32Type}
	}
	return args
}

// EncodeCleartexts ABI encodes the values as consecutive uint32 words.
func EncodeCleartexts(values []uint32) ([]byte, error) {
	in := make([]any, len(values))
	for i, v := range values {
		in[i] = v
	}
	data, err := uint32Arguments(len(values)).Pack(in...)
	if err != nil {
		return nil, fmt.Errorf("cannot encode cleartexts: %w", err)
	}
	return data, nil
}

// DecodeCleartexts decodes exactly n uint32 words. Words that do not fit a
// uint32 are rejected.
func DecodeCleartexts(data []byte, n int) ([]uint32, error) {
	if len(data) != n*WordSize {
		return nil, fmt.Errorf("%w: %d bytes for %d values", ErrInvalidCleartextsSize, len(data), n)
	}
	for i := 0; i < n; i++ {
		word := data[i*WordSize : (i+1)*WordSize]
		for _, b := range word[:WordSize-4] {
			if b != 0 {
				return nil, fmt.Errorf("%w: word %d overflows uint32", ErrInvalidCleartextsSize, i)
			}
		}
	}
	out, err := uint32Arguments(n).Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCleartextsSize, err)
	}
	values := make([]uint32, n)
	for i, v := range out {
		u, ok := v.(uint32)
		if !ok {
			return nil, fmt.Errorf("%w: word %d is %T", ErrInvalidCleartextsSize, i, v)
		}
		values[i] = u
	}
	return values, nil
}
