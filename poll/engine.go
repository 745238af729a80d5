// Package poll implements the confidential poll engine. Voters submit
// encrypted choices, the engine folds them into per-option encrypted tallies
// without ever reading a choice, and the cleartext tallies are only accepted
// once a threshold decryption proof binds them to the poll's tally handles.
//
// The Engine is the single writer of the poll state: every operation runs
// under one lock and commits its effects in a single storage transaction,
// so an operation is either fully applied or not applied at all.
package poll

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
	"github.com/vocdoni/vocdoni-fhe-polls/kms"
	"github.com/vocdoni/vocdoni-fhe-polls/log"
	"github.com/vocdoni/vocdoni-fhe-polls/storage"
	"github.com/vocdoni/vocdoni-fhe-polls/types"
)

// TallyType is the encrypted type of every tally.
const TallyType = fhe.TypeUint32

// Config holds the engine parameters.
type Config struct {
	// Address identifies the engine as the contract encrypted inputs are
	// bound to.
	Address common.Address
	// ProtocolID is the confidential protocol the executor must implement.
	// Zero accepts any.
	ProtocolID uint64
	// Clock defaults to the system clock.
	Clock Clock
}

// Engine owns the polls and serializes every transition over them.
type Engine struct {
	mu       sync.Mutex
	storage  *storage.Storage
	executor fhe.Executor
	verifier kms.Verifier
	address  common.Address
	clock    Clock
	feed     event.Feed

	// encrypted constants added to the tallies
	zero fhe.Handle
	one  fhe.Handle
}

// New creates an engine over the given storage, executor and verifier.
func New(stg *storage.Storage, executor fhe.Executor, verifier kms.Verifier, conf *Config) (*Engine, error) {
	if stg == nil || executor == nil || verifier == nil {
		return nil, fmt.Errorf("storage, executor and verifier are required")
	}
	if conf == nil {
		conf = &Config{}
	}
	if conf.ProtocolID != 0 && executor.ProtocolID() != conf.ProtocolID {
		return nil, fmt.Errorf("%w: executor implements protocol %d, expected %d",
			ErrProtocolUnsupported, executor.ProtocolID(), conf.ProtocolID)
	}
	e := &Engine{
		storage:  stg,
		executor: executor,
		verifier: verifier,
		address:  conf.Address,
		clock:    conf.Clock,
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	var err error
	if e.zero, err = executor.TrivialEncrypt(0, TallyType); err != nil {
		return nil, fmt.Errorf("cannot encrypt constant: %w", err)
	}
	if e.one, err = executor.TrivialEncrypt(1, TallyType); err != nil {
		return nil, fmt.Errorf("cannot encrypt constant: %w", err)
	}
	log.Infow("poll engine ready", "address", e.address.Hex(), "protocolId", executor.ProtocolID())
	return e, nil
}

// Address returns the engine address.
func (e *Engine) Address() common.Address {
	return e.address
}

// ProtocolID returns the protocol id of the executor.
func (e *Engine) ProtocolID() uint64 {
	return e.executor.ProtocolID()
}

// Now returns the current engine time as unix seconds.
func (e *Engine) Now() uint64 {
	return types.Unix(e.clock.Now())
}

// poll loads a poll, mapping a missing record to ErrPollNotFound. The
// caller must hold the lock.
func (e *Engine) poll(id uint64) (*types.Poll, error) {
	p, err := e.storage.Poll(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrPollNotFound, id)
		}
		return nil, fmt.Errorf("cannot load poll %d: %w", id, err)
	}
	return p, nil
}
