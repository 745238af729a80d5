package storage

import (
	"errors"
	"fmt"

	"github.com/vocdoni/vocdoni-fhe-polls/log"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// DecryptionJob asks the relayer to obtain and publish the results of an
// ended poll.
type DecryptionJob struct {
	PollID   uint64 `json:"pollId"   cbor:"0,keyasint"`
	Attempts int    `json:"attempts" cbor:"1,keyasint,omitempty"`
	LastErr  string `json:"lastErr"  cbor:"2,keyasint,omitempty"`
}

// PushDecryptionJob queues a job for the poll. Pushing a job for a poll that
// is already queued keeps the existing one.
func (s *Storage) PushDecryptionJob(pollID uint64) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	key := pollKey(pollID)
	if _, err := prefixeddb.NewPrefixedReader(s.db, decryptionJobPrefix).Get(key); err == nil {
		return nil
	}
	return s.setArtifact(decryptionJobPrefix, key, &DecryptionJob{PollID: pollID})
}

// NextDecryptionJob returns the oldest non-reserved job and reserves it. If
// no jobs are available, returns ErrNoMoreElements.
func (s *Storage) NextDecryptionJob() (*DecryptionJob, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	pr := prefixeddb.NewPrefixedReader(s.db, decryptionJobPrefix)
	var chosenKey, chosenVal []byte
	if err := pr.Iterate(nil, func(k, v []byte) bool {
		if s.isReserved(decryptionJobReserve, k) {
			return true
		}
		// copy, the iterator reuses its buffers
		chosenKey = append([]byte{}, k...)
		chosenVal = append([]byte{}, v...)
		return false
	}); err != nil {
		return nil, fmt.Errorf("iterate decryption jobs: %w", err)
	}
	if chosenVal == nil {
		return nil, ErrNoMoreElements
	}
	job := &DecryptionJob{}
	if err := decodeArtifact(chosenVal, job); err != nil {
		return nil, fmt.Errorf("decode decryption job: %w", err)
	}
	if err := s.setReservation(decryptionJobReserve, chosenKey); err != nil {
		return nil, ErrNoMoreElements
	}
	return job, nil
}

// MarkDecryptionJobDone removes the job and its reservation.
func (s *Storage) MarkDecryptionJobDone(pollID uint64) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	key := pollKey(pollID)
	if err := s.deleteArtifact(decryptionJobReserve, key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete decryption job reservation: %w", err)
	}
	if err := s.deleteArtifact(decryptionJobPrefix, key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete decryption job: %w", err)
	}
	return nil
}

// ReleaseDecryptionJob records a failed attempt and frees the reservation so
// the job can be served again.
func (s *Storage) ReleaseDecryptionJob(pollID uint64, cause error) (*DecryptionJob, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	key := pollKey(pollID)
	job := &DecryptionJob{}
	if err := s.getArtifact(decryptionJobPrefix, key, job); err != nil {
		return nil, err
	}
	job.Attempts++
	if cause != nil {
		job.LastErr = cause.Error()
	}
	if err := s.setArtifact(decryptionJobPrefix, key, job); err != nil {
		return nil, err
	}
	if err := s.deleteArtifact(decryptionJobReserve, key); err != nil && !errors.Is(err, ErrNotFound) {
		log.Warnw("cannot release decryption job", "pollId", pollID, "error", err.Error())
	}
	return job, nil
}

// ReleaseDecryptionReservations frees every reservation. Used at startup,
// when no job can be in flight.
func (s *Storage) ReleaseDecryptionReservations() error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	var keys [][]byte
	if err := prefixeddb.NewPrefixedReader(s.db, decryptionJobReserve).Iterate(nil, func(k, _ []byte) bool {
		keys = append(keys, append([]byte{}, k...))
		return true
	}); err != nil {
		return fmt.Errorf("iterate decryption job reservations: %w", err)
	}
	for _, k := range keys {
		if err := s.deleteArtifact(decryptionJobReserve, k); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

// CountDecryptionJobs returns the number of queued jobs, reserved or not.
func (s *Storage) CountDecryptionJobs() int {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	count := 0
	if err := prefixeddb.NewPrefixedReader(s.db, decryptionJobPrefix).Iterate(nil, func(_, _ []byte) bool {
		count++
		return true
	}); err != nil {
		log.Warnw("failed to count decryption jobs", "error", err.Error())
	}
	return count
}
