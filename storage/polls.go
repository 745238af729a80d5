package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-fhe-polls/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// PollCount returns the number of polls created so far.
func (s *Storage) PollCount() (uint64, error) {
	data, err := prefixeddb.NewPrefixedReader(s.db, metadataPrefix).Get(pollCountKey)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupted poll counter of %d bytes", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}

// Poll retrieves a poll. It returns ErrNotFound if the poll does not exist.
func (s *Storage) Poll(id uint64) (*types.Poll, error) {
	p := &types.Poll{}
	if err := s.getArtifact(pollPrefix, pollKey(id), p); err != nil {
		return nil, err
	}
	return p, nil
}

// Polls returns up to limit polls starting at the offset-th one, in
// creation order.
func (s *Storage) Polls(offset, limit uint64) ([]*types.Poll, error) {
	count, err := s.PollCount()
	if err != nil {
		return nil, err
	}
	polls := []*types.Poll{}
	for id := offset; id < count && uint64(len(polls)) < limit; id++ {
		p, err := s.Poll(id)
		if err != nil {
			return nil, fmt.Errorf("poll %d: %w", id, err)
		}
		polls = append(polls, p)
	}
	return polls, nil
}

// CreatePoll assigns the next sequential id to p and stores it together
// with the updated counter.
func (s *Storage) CreatePoll(p *types.Poll) (uint64, error) {
	if p == nil {
		return 0, fmt.Errorf("nil poll")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	count, err := s.PollCount()
	if err != nil {
		return 0, err
	}
	p.ID = count
	data, err := encodeArtifact(p)
	if err != nil {
		return 0, err
	}
	counter := make([]byte, 8)
	binary.BigEndian.PutUint64(counter, count+1)

	wTx := s.db.WriteTx()
	if err := prefixeddb.NewPrefixedWriteTx(wTx, pollPrefix).Set(pollKey(p.ID), data); err != nil {
		wTx.Discard()
		return 0, err
	}
	if err := prefixeddb.NewPrefixedWriteTx(wTx, metadataPrefix).Set(pollCountKey, counter); err != nil {
		wTx.Discard()
		return 0, err
	}
	if err := wTx.Commit(); err != nil {
		return 0, err
	}
	return p.ID, nil
}

// SetPoll overwrites an existing poll record.
func (s *Storage) SetPoll(p *types.Poll) error {
	if p == nil {
		return fmt.Errorf("nil poll")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	if _, err := s.Poll(p.ID); err != nil {
		return err
	}
	return s.setArtifact(pollPrefix, pollKey(p.ID), p)
}

// CommitVote stores the updated poll and marks voter in the same
// transaction. It returns ErrAlreadyExists if voter was already marked, in
// which case nothing is written.
func (s *Storage) CommitVote(p *types.Poll, voter common.Address) error {
	if p == nil {
		return fmt.Errorf("nil poll")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	voted, err := s.HasVoted(p.ID, voter)
	if err != nil {
		return err
	}
	if voted {
		return fmt.Errorf("voter %s on poll %d: %w", voter, p.ID, ErrAlreadyExists)
	}
	data, err := encodeArtifact(p)
	if err != nil {
		return err
	}
	wTx := s.db.WriteTx()
	if err := prefixeddb.NewPrefixedWriteTx(wTx, pollPrefix).Set(pollKey(p.ID), data); err != nil {
		wTx.Discard()
		return err
	}
	if err := prefixeddb.NewPrefixedWriteTx(wTx, voterPrefix).Set(voterKey(p.ID, voter), []byte{1}); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// HasVoted reports whether voter has a vote recorded on the poll.
func (s *Storage) HasVoted(id uint64, voter common.Address) (bool, error) {
	_, err := prefixeddb.NewPrefixedReader(s.db, voterPrefix).Get(voterKey(id, voter))
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Voters lists the addresses that voted on the poll.
func (s *Storage) Voters(id uint64) ([]common.Address, error) {
	voters := []common.Address{}
	rd := prefixeddb.NewPrefixedReader(s.db, voterPrefix)
	if err := rd.Iterate(pollKey(id), func(k, _ []byte) bool {
		voters = append(voters, common.BytesToAddress(k))
		return true
	}); err != nil {
		return nil, fmt.Errorf("iterate voters: %w", err)
	}
	return voters, nil
}
