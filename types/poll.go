package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
)

const (
	// MinPollOptions is the minimum number of options of a poll.
	MinPollOptions = 2
	// MaxPollOptions is the maximum number of options of a poll.
	MaxPollOptions = 4
)

// Poll is the stored state of a poll. The set of voters is kept apart, only
// its cardinality lives here.
type Poll struct {
	ID             uint64         `json:"id"                    cbor:"0,keyasint"`
	Name           string         `json:"name"                  cbor:"1,keyasint,omitempty"`
	Options        []string       `json:"options"               cbor:"2,keyasint,omitempty"`
	Creator        common.Address `json:"creator"               cbor:"3,keyasint"`
	StartTime      uint64         `json:"startTime"             cbor:"4,keyasint"`
	EndTime        uint64         `json:"endTime"               cbor:"5,keyasint"`
	EncryptedTally []fhe.Handle   `json:"encryptedTally"        cbor:"6,keyasint,omitempty"`
	Decryptable    bool           `json:"decryptable"           cbor:"7,keyasint,omitempty"`
	ResultsPosted  bool           `json:"resultsPosted"         cbor:"8,keyasint,omitempty"`
	PostedTally    []uint32       `json:"postedTally,omitempty" cbor:"9,keyasint,omitempty"`
	VoterCount     uint64         `json:"voterCount"            cbor:"10,keyasint,omitempty"`
}

// OptionsCount returns the number of options of the poll.
func (p *Poll) OptionsCount() int {
	return len(p.Options)
}

// StatusAt derives the status of the poll at the given unix time.
func (p *Poll) StatusAt(now uint64) PollStatus {
	switch {
	case p.ResultsPosted:
		return PollStatusFinalized
	case p.Decryptable:
		return PollStatusDecryptable
	case now < p.StartTime:
		return PollStatusScheduled
	case now < p.EndTime:
		return PollStatusActive
	default:
		return PollStatusEnded
	}
}

// Meta returns the public projection of the poll at the given unix time.
func (p *Poll) Meta(now uint64) *PollMeta {
	return &PollMeta{
		ID:            p.ID,
		Name:          p.Name,
		OptionsCount:  p.OptionsCount(),
		Creator:       p.Creator,
		StartTime:     p.StartTime,
		EndTime:       p.EndTime,
		Decryptable:   p.Decryptable,
		ResultsPosted: p.ResultsPosted,
		VoterCount:    p.VoterCount,
		Status:        p.StatusAt(now),
	}
}

// Clone returns a deep copy of the poll.
func (p *Poll) Clone() *Poll {
	c := *p
	c.Options = append([]string(nil), p.Options...)
	c.EncryptedTally = append([]fhe.Handle(nil), p.EncryptedTally...)
	if p.PostedTally != nil {
		c.PostedTally = append([]uint32(nil), p.PostedTally...)
	}
	return &c
}

func (p *Poll) String() string {
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(data)
}

// PollMeta is the read projection of a poll.
type PollMeta struct {
	ID            uint64         `json:"id"`
	Name          string         `json:"name"`
	OptionsCount  int            `json:"optionsCount"`
	Creator       common.Address `json:"creator"`
	StartTime     uint64         `json:"startTime"`
	EndTime       uint64         `json:"endTime"`
	Decryptable   bool           `json:"decryptable"`
	ResultsPosted bool           `json:"resultsPosted"`
	VoterCount    uint64         `json:"voterCount"`
	Status        PollStatus     `json:"status"`
}

// PollStatus is derived from the poll timestamps and flags, it is never
// stored.
type PollStatus uint8

const (
	PollStatusScheduled PollStatus = iota
	PollStatusActive
	PollStatusEnded
	PollStatusDecryptable
	PollStatusFinalized
)

var pollStatusNames = map[PollStatus]string{
	PollStatusScheduled:   "scheduled",
	PollStatusActive:      "active",
	PollStatusEnded:       "ended",
	PollStatusDecryptable: "decryptable",
	PollStatusFinalized:   "finalized",
}

func (s PollStatus) String() string {
	if name, ok := pollStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

func (s PollStatus) MarshalText() ([]byte, error) {
	if _, ok := pollStatusNames[s]; !ok {
		return nil, fmt.Errorf("unknown poll status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *PollStatus) UnmarshalText(text []byte) error {
	for status, name := range pollStatusNames {
		if name == string(text) {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown poll status %q", text)
}

// Unix converts a time to the unix seconds used by polls.
func Unix(t time.Time) uint64 {
	if t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}
