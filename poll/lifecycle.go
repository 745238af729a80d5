package poll

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-fhe-polls/log"
	"github.com/vocdoni/vocdoni-fhe-polls/types"
)

// EndPoll closes an expired poll and authorizes the public decryption of
// its tallies. Anyone may end a poll once its end time has passed, but only
// the first call succeeds.
func (e *Engine) EndPoll(ctx context.Context, caller common.Address, pollID uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev, err := e.endPoll(caller, pollID)
	if err != nil {
		return err
	}
	e.emit(ev)
	return nil
}

func (e *Engine) endPoll(caller common.Address, pollID uint64) (*types.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.poll(pollID)
	if err != nil {
		return nil, err
	}
	if now := e.Now(); now < p.EndTime {
		return nil, fmt.Errorf("%w: poll %d ends at %d", ErrPollNotOver, pollID, p.EndTime)
	}
	if p.Decryptable {
		return nil, fmt.Errorf("%w: poll %d", ErrPollAlreadyEnded, pollID)
	}
	if err := e.executor.MakePubliclyDecryptable(p.EncryptedTally...); err != nil {
		return nil, fmt.Errorf("cannot authorize tally decryption: %w", err)
	}
	p.Decryptable = true
	if err := e.storage.SetPoll(p); err != nil {
		return nil, fmt.Errorf("cannot store poll: %w", err)
	}
	log.Infow("poll ended", "pollId", pollID, "voters", p.VoterCount, "caller", caller.Hex())
	return &types.Event{Kind: types.EventPollEnded, PollID: pollID, Actor: caller}, nil
}
