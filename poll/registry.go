package poll

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
	"github.com/vocdoni/vocdoni-fhe-polls/log"
	"github.com/vocdoni/vocdoni-fhe-polls/types"
)

// CreatePoll stores a new poll and returns its id. Every tally starts as an
// encrypted zero.
func (e *Engine) CreatePoll(ctx context.Context, creator common.Address, name string, options []string,
	startTime, endTime uint64,
) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := validatePoll(name, options, startTime, endTime); err != nil {
		return 0, err
	}
	ev, err := e.createPoll(creator, name, options, startTime, endTime)
	if err != nil {
		return 0, err
	}
	e.emit(ev)
	return ev.PollID, nil
}

func validatePoll(name string, options []string, startTime, endTime uint64) error {
	if len(options) < types.MinPollOptions || len(options) > types.MaxPollOptions {
		return fmt.Errorf("%w: %d options, must be between %d and %d",
			ErrInvalidOptionsCount, len(options), types.MinPollOptions, types.MaxPollOptions)
	}
	if endTime <= startTime {
		return fmt.Errorf("%w: end %d is not after start %d", ErrInvalidTimeRange, endTime, startTime)
	}
	if name == "" {
		return ErrEmptyName
	}
	seen := make(map[string]struct{}, len(options))
	for i, o := range options {
		if o == "" {
			return fmt.Errorf("%w: option %d", ErrEmptyOption, i)
		}
		if _, ok := seen[o]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateOption, o)
		}
		seen[o] = struct{}{}
	}
	return nil
}

func (e *Engine) createPoll(creator common.Address, name string, options []string,
	startTime, endTime uint64,
) (*types.Event, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tallies := make([]fhe.Handle, len(options))
	for i := range tallies {
		h, err := e.executor.TrivialEncrypt(0, TallyType)
		if err != nil {
			return nil, fmt.Errorf("cannot initialize tally %d: %w", i, err)
		}
		tallies[i] = h
	}
	p := &types.Poll{
		Name:           name,
		Options:        append([]string(nil), options...),
		Creator:        creator,
		StartTime:      startTime,
		EndTime:        endTime,
		EncryptedTally: tallies,
	}
	id, err := e.storage.CreatePoll(p)
	if err != nil {
		return nil, fmt.Errorf("cannot store poll: %w", err)
	}
	log.Infow("poll created",
		"pollId", id,
		"name", name,
		"options", len(options),
		"startTime", startTime,
		"endTime", endTime,
		"creator", creator.Hex())
	return &types.Event{Kind: types.EventPollCreated, PollID: id, Actor: creator}, nil
}

// PollCount returns the number of polls.
func (e *Engine) PollCount() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.storage.PollCount()
}

// Poll returns a copy of the full poll record.
func (e *Engine) Poll(id uint64) (*types.Poll, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.poll(id)
}

// PollMeta returns the poll projection together with its current status.
func (e *Engine) PollMeta(id uint64) (*types.PollMeta, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.poll(id)
	if err != nil {
		return nil, err
	}
	return p.Meta(e.Now()), nil
}

// Status returns the derived status of the poll.
func (e *Engine) Status(id uint64) (types.PollStatus, error) {
	meta, err := e.PollMeta(id)
	if err != nil {
		return 0, err
	}
	return meta.Status, nil
}

// PollOption returns the label of an option.
func (e *Engine) PollOption(id uint64, idx int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.poll(id)
	if err != nil {
		return "", err
	}
	if err := checkIndex(p, idx); err != nil {
		return "", err
	}
	return p.Options[idx], nil
}

// EncryptedTally returns the current tally handle of an option.
func (e *Engine) EncryptedTally(id uint64, idx int) (fhe.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.poll(id)
	if err != nil {
		return fhe.Handle{}, err
	}
	if err := checkIndex(p, idx); err != nil {
		return fhe.Handle{}, err
	}
	return p.EncryptedTally[idx], nil
}

// EncryptedTallies returns every tally handle of the poll, in option order.
func (e *Engine) EncryptedTallies(id uint64) ([]fhe.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.poll(id)
	if err != nil {
		return nil, err
	}
	return p.EncryptedTally, nil
}

// PostedTally returns whether results are posted and the count of an
// option. The count is zero until results are posted.
func (e *Engine) PostedTally(id uint64, idx int) (bool, uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, err := e.poll(id)
	if err != nil {
		return false, 0, err
	}
	if err := checkIndex(p, idx); err != nil {
		return false, 0, err
	}
	if !p.ResultsPosted {
		return false, 0, nil
	}
	return true, p.PostedTally[idx], nil
}

// HasVoted reports whether voter voted on the poll.
func (e *Engine) HasVoted(id uint64, voter common.Address) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.poll(id); err != nil {
		return false, err
	}
	return e.storage.HasVoted(id, voter)
}

// Voters returns the addresses that voted on the poll.
func (e *Engine) Voters(id uint64) ([]common.Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.poll(id); err != nil {
		return nil, err
	}
	return e.storage.Voters(id)
}

// Polls returns the projections of up to limit polls starting at offset.
func (e *Engine) Polls(offset, limit uint64) ([]*types.PollMeta, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	polls, err := e.storage.Polls(offset, limit)
	if err != nil {
		return nil, err
	}
	now := e.Now()
	metas := make([]*types.PollMeta, len(polls))
	for i, p := range polls {
		metas[i] = p.Meta(now)
	}
	return metas, nil
}

// PollsWithStatus returns the ids of the polls currently in status.
func (e *Engine) PollsWithStatus(status types.PollStatus) ([]uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	count, err := e.storage.PollCount()
	if err != nil {
		return nil, err
	}
	polls, err := e.storage.Polls(0, count)
	if err != nil {
		return nil, err
	}
	now := e.Now()
	ids := []uint64{}
	for _, p := range polls {
		if p.StatusAt(now) == status {
			ids = append(ids, p.ID)
		}
	}
	return ids, nil
}

func checkIndex(p *types.Poll, idx int) error {
	if idx < 0 || idx >= p.OptionsCount() {
		return fmt.Errorf("%w: %d of %d options", ErrInvalidOptionIndex, idx, p.OptionsCount())
	}
	return nil
}
