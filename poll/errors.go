package poll

import (
	"errors"
	"fmt"

	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
	"github.com/vocdoni/vocdoni-fhe-polls/kms"
)

// Input validation errors.
var (
	ErrInvalidOptionsCount = fmt.Errorf("invalid options count")
	ErrInvalidTimeRange    = fmt.Errorf("invalid time range")
	ErrEmptyName           = fmt.Errorf("empty poll name")
	ErrEmptyOption         = fmt.Errorf("empty option label")
	ErrDuplicateOption     = fmt.Errorf("duplicated option label")
	// ErrInvalidOptionIndex is shared with the ciphertext adapter, which
	// raises it when a choice cannot be attested below the options count.
	ErrInvalidOptionIndex    = fhe.ErrInvalidOptionIndex
	ErrInvalidCleartextsSize = kms.ErrInvalidCleartextsSize
	// ErrInvalidInput wraps every rejection of an encrypted choice or its
	// input proof by the ciphertext adapter.
	ErrInvalidInput = fmt.Errorf("invalid encrypted input")
)

// State precondition errors.
var (
	ErrPollNotFound         = fmt.Errorf("poll not found")
	ErrPollNotStarted       = fmt.Errorf("poll not started")
	ErrPollNotOver          = fmt.Errorf("poll not over")
	ErrPollAlreadyEnded     = fmt.Errorf("poll already ended")
	ErrPollNotEnded         = fmt.Errorf("poll not ended")
	ErrResultsAlreadyPosted = fmt.Errorf("results already posted")
	ErrAlreadyVoted         = fmt.Errorf("already voted")
)

// Trust and proof errors.
var (
	ErrInvalidKMSSignatures = kms.ErrInvalidKMSSignatures
	ErrProtocolUnsupported  = fhe.ErrProtocolUnsupported
)

// Class groups the engine errors.
type Class int

const (
	ClassUnknown Class = iota
	ClassInputValidation
	ClassStatePrecondition
	ClassTrustProof
)

func (c Class) String() string {
	switch c {
	case ClassInputValidation:
		return "input-validation"
	case ClassStatePrecondition:
		return "state-precondition"
	case ClassTrustProof:
		return "trust-proof"
	}
	return "unknown"
}

var errorClasses = []struct {
	class Class
	errs  []error
}{
	{ClassTrustProof, []error{ErrInvalidKMSSignatures, ErrProtocolUnsupported}},
	{ClassInputValidation, []error{
		ErrInvalidOptionsCount, ErrInvalidTimeRange, ErrEmptyName, ErrEmptyOption,
		ErrDuplicateOption, ErrInvalidOptionIndex, ErrInvalidCleartextsSize, ErrInvalidInput,
	}},
	{ClassStatePrecondition, []error{
		ErrPollNotFound, ErrPollNotStarted, ErrPollNotOver, ErrPollAlreadyEnded,
		ErrPollNotEnded, ErrResultsAlreadyPosted, ErrAlreadyVoted,
	}},
}

// ErrorClass returns the class of an engine error. A rejected input that
// uses an unsupported protocol version is a trust error.
func ErrorClass(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	for _, group := range errorClasses {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.class
			}
		}
	}
	return ClassUnknown
}
