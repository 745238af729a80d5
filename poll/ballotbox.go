package poll

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
	"github.com/vocdoni/vocdoni-fhe-polls/log"
	"github.com/vocdoni/vocdoni-fhe-polls/storage"
	"github.com/vocdoni/vocdoni-fhe-polls/types"
)

// Vote folds an encrypted choice into the poll tallies. The choice is never
// decrypted: every option tally receives an encrypted 1 or 0, so the set of
// updated tallies is the same whatever was chosen. Tallies and the voter
// marker are committed together, any failure leaves the poll untouched.
func (e *Engine) Vote(ctx context.Context, voter common.Address, pollID uint64,
	choice fhe.Handle, inputProof []byte,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev, err := e.vote(voter, pollID, choice, inputProof)
	if err != nil {
		return err
	}
	e.emit(ev)
	return nil
}

func (e *Engine) vote(voter common.Address, pollID uint64, choice fhe.Handle, inputProof []byte) (*types.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.poll(pollID)
	if err != nil {
		return nil, err
	}
	now := e.Now()
	if now < p.StartTime {
		return nil, fmt.Errorf("%w: poll %d starts at %d", ErrPollNotStarted, pollID, p.StartTime)
	}
	if p.Decryptable || now >= p.EndTime {
		return nil, fmt.Errorf("%w: poll %d", ErrPollAlreadyEnded, pollID)
	}
	voted, err := e.storage.HasVoted(pollID, voter)
	if err != nil {
		return nil, err
	}
	if voted {
		return nil, fmt.Errorf("%w: %s on poll %d", ErrAlreadyVoted, voter.Hex(), pollID)
	}
	input, err := e.executor.VerifyInput(choice, inputProof, voter, e.address)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if input.Bound == 0 || int(input.Bound) > p.OptionsCount() {
		return nil, fmt.Errorf("%w: choice attested below %d for %d options",
			ErrInvalidOptionIndex, input.Bound, p.OptionsCount())
	}

	tallies := make([]fhe.Handle, p.OptionsCount())
	for i := range tallies {
		isSelected, err := e.executor.Eq(input.Handle, uint64(i))
		if err != nil {
			return nil, fmt.Errorf("cannot compare choice with option %d: %w", i, err)
		}
		increment, err := e.executor.Select(isSelected, e.one, e.zero)
		if err != nil {
			return nil, fmt.Errorf("cannot select increment of option %d: %w", i, err)
		}
		if tallies[i], err = e.executor.Add(p.EncryptedTally[i], increment); err != nil {
			return nil, fmt.Errorf("cannot add to tally %d: %w", i, err)
		}
	}

	updated := p.Clone()
	updated.EncryptedTally = tallies
	updated.VoterCount++
	if err := e.storage.CommitVote(updated, voter); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: %s on poll %d", ErrAlreadyVoted, voter.Hex(), pollID)
		}
		return nil, fmt.Errorf("cannot commit vote: %w", err)
	}
	log.Debugw("vote accepted", "pollId", pollID, "voter", voter.Hex(), "voters", updated.VoterCount)
	return &types.Event{Kind: types.EventVoteCast, PollID: pollID, Actor: voter}, nil
}
