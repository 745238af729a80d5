// storage package keeps the poll records on a key-value database, and also
// acts as a persistent queue of the decryption jobs handled by the results
// relayer. The following prefixes are used:
//   - 'm/' for metadata (poll counter)
//   - 'p/' for polls
//   - 'v/' for voter markers, keyed by poll id and address
//   - 'dj/' for decryption jobs (queued)
//   - 'djr/' for decryption job reservations
//
// Every operation that touches more than one key commits a single
// transaction, so readers never observe half of a state transition.
package storage

import (
	"errors"
	"sync"
	"time"

	"github.com/vocdoni/vocdoni-fhe-polls/log"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	// Prefixes for the keys in the database.
	metadataPrefix       = []byte("m/")
	pollPrefix           = []byte("p/")
	voterPrefix          = []byte("v/")
	decryptionJobPrefix  = []byte("dj/")
	decryptionJobReserve = []byte("djr/")

	pollCountKey = []byte("pollCount")
)

var (
	// ErrNotFound is returned when the requested artifact does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoMoreElements is returned when a queue has nothing left to serve.
	ErrNoMoreElements = errors.New("no more elements")
	// ErrAlreadyExists is returned when writing a marker that is already set.
	ErrAlreadyExists = errors.New("already exists")
)

// Storage wraps the database with the poll and queue operations.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
}

// New creates a new Storage instance.
func New(db db.Database) *Storage {
	return &Storage{db: db}
}

// Close closes the storage.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("cannot close storage", "error", err.Error())
	}
}

// getArtifact decodes the artifact stored under prefix/key into out. It
// returns ErrNotFound if the key does not exist.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	data, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return decodeArtifact(data, out)
}

// setArtifact encodes and stores the artifact under prefix/key.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	data, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Set(key, data); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// deleteArtifact removes prefix/key. It returns ErrNotFound if the key does
// not exist.
func (s *Storage) deleteArtifact(prefix, key []byte) error {
	if _, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key); err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Delete(key); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// isReserved reports whether the key has a reservation under prefix.
func (s *Storage) isReserved(prefix, key []byte) bool {
	_, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	return err == nil
}

// setReservation marks the key as reserved, storing the reservation time.
func (s *Storage) setReservation(prefix, key []byte) error {
	return s.setArtifact(prefix, key, time.Now().Unix())
}
