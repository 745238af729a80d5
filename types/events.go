package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
)

// EventKind identifies a poll notification.
type EventKind uint8

const (
	EventPollCreated EventKind = iota + 1
	EventVoteCast
	EventPollEnded
	EventPublicDecryptionVerified
	EventResultsPosted
)

func (k EventKind) String() string {
	switch k {
	case EventPollCreated:
		return "PollCreated"
	case EventVoteCast:
		return "VoteCast"
	case EventPollEnded:
		return "PollEnded"
	case EventPublicDecryptionVerified:
		return "PublicDecryptionVerified"
	case EventResultsPosted:
		return "ResultsPosted"
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is emitted after every successful state transition. A VoteCast
// event never carries anything about the choice.
type Event struct {
	Kind   EventKind `json:"kind"`
	PollID uint64    `json:"pollId"`
	// Actor is the poll creator, the voter or the caller that ended the
	// poll or posted its results.
	Actor common.Address `json:"actor"`
	// Handles and Cleartexts are only set on PublicDecryptionVerified.
	Handles    []fhe.Handle `json:"handles,omitempty"`
	Cleartexts HexBytes     `json:"cleartexts,omitempty"`
}
