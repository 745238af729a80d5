package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-fhe-polls/crypto/fhe"
	"github.com/vocdoni/vocdoni-fhe-polls/kms"
	"github.com/vocdoni/vocdoni-fhe-polls/log"
	"github.com/vocdoni/vocdoni-fhe-polls/poll"
	"github.com/vocdoni/vocdoni-fhe-polls/storage"
	"github.com/vocdoni/vocdoni-fhe-polls/types"
)

// DefaultMaxAttempts is the number of times the relayer tries to finalize a
// poll before giving up.
const DefaultMaxAttempts = 5

// PublicDecrypter obtains the KMS signed decryption of handles.
type PublicDecrypter interface {
	PublicDecrypt(ctx context.Context, handles []fhe.Handle) (*kms.Decryption, error)
}

// RelayerConfig holds the ResultsRelayer parameters.
type RelayerConfig struct {
	// Caller is the identity used to publish the results.
	Caller common.Address
	// Interval between two passes over the job queue.
	Interval    time.Duration
	MaxAttempts int
}

// ResultsRelayer finalizes ended polls: it asks the KMS for the public
// decryption of the tallies and publishes the signed result. Jobs are kept
// in storage so a restarted node resumes the pending ones.
type ResultsRelayer struct {
	engine    *poll.Engine
	storage   *storage.Storage
	decrypter PublicDecrypter
	conf      RelayerConfig
	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewResultsRelayer creates a new ResultsRelayer service. stg must be the
// storage the engine runs on.
func NewResultsRelayer(engine *poll.Engine, stg *storage.Storage, decrypter PublicDecrypter,
	conf RelayerConfig,
) *ResultsRelayer {
	if conf.MaxAttempts < 1 {
		conf.MaxAttempts = DefaultMaxAttempts
	}
	return &ResultsRelayer{
		engine:    engine,
		storage:   stg,
		decrypter: decrypter,
		conf:      conf,
	}
}

// Start subscribes to the engine events and begins relaying. Polls already
// decryptable but without results are queued on start.
func (rr *ResultsRelayer) Start(ctx context.Context) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if rr.cancel != nil {
		return fmt.Errorf("service already running")
	}
	if rr.conf.Interval <= 0 {
		return fmt.Errorf("invalid relayer interval %s", rr.conf.Interval)
	}
	if err := rr.storage.ReleaseDecryptionReservations(); err != nil {
		return fmt.Errorf("failed to release decryption jobs: %w", err)
	}
	events := make(chan *types.Event, 64)
	sub := rr.engine.Subscribe(events)
	pending, err := rr.engine.PollsWithStatus(types.PollStatusDecryptable)
	if err != nil {
		sub.Unsubscribe()
		return fmt.Errorf("failed to list decryptable polls: %w", err)
	}
	for _, id := range pending {
		if err := rr.storage.PushDecryptionJob(id); err != nil {
			sub.Unsubscribe()
			return fmt.Errorf("failed to queue poll %d: %w", id, err)
		}
	}

	ctx, rr.cancel = context.WithCancel(ctx)
	rr.done = make(chan struct{})
	wake := make(chan struct{}, 1)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer sub.Unsubscribe()
		rr.queueEndedPolls(ctx, events, sub.Err(), wake)
	}()
	go func() {
		defer wg.Done()
		rr.work(ctx, wake)
	}()
	go func() {
		wg.Wait()
		close(rr.done)
	}()
	return nil
}

// Stop halts the relayer and waits for the running pass.
func (rr *ResultsRelayer) Stop() {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if rr.cancel != nil {
		rr.cancel()
		<-rr.done
		rr.cancel = nil
	}
}

// queueEndedPolls turns PollEnded events into decryption jobs. It never
// calls the engine: the engine blocks on event delivery, and the worker
// publishing results would otherwise wait on itself.
func (rr *ResultsRelayer) queueEndedPolls(ctx context.Context, events <-chan *types.Event,
	subErr <-chan error, wake chan<- struct{},
) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-subErr:
			if err != nil {
				log.Warnw("relayer subscription closed", "error", err.Error())
			}
			return
		case ev := <-events:
			if ev.Kind != types.EventPollEnded {
				continue
			}
			if err := rr.storage.PushDecryptionJob(ev.PollID); err != nil {
				log.Warnw("failed to queue decryption job", "pollId", ev.PollID, "error", err.Error())
				continue
			}
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}
}

// work processes the queue on every tick or wake up.
func (rr *ResultsRelayer) work(ctx context.Context, wake <-chan struct{}) {
	ticker := time.NewTicker(rr.conf.Interval)
	defer ticker.Stop()
	for {
		rr.processJobs(ctx)
		select {
		case <-ctx.Done():
			return
		case <-wake:
		case <-ticker.C:
		}
	}
}

// processJobs makes one pass over the queued jobs and returns the number of
// finalized polls. Failed jobs are released at the end of the pass so each
// job is tried at most once per pass.
func (rr *ResultsRelayer) processJobs(ctx context.Context) int {
	type failure struct {
		pollID uint64
		err    error
	}
	var failed []failure
	finalized := 0
	for ctx.Err() == nil {
		job, err := rr.storage.NextDecryptionJob()
		if err != nil {
			if !errors.Is(err, storage.ErrNoMoreElements) {
				log.Warnw("failed to get decryption job", "error", err.Error())
			}
			break
		}
		err = rr.finalize(ctx, job.PollID)
		switch {
		case err == nil:
			finalized++
			log.Infow("poll results published", "pollId", job.PollID, "attempts", job.Attempts+1)
		case errors.Is(err, poll.ErrResultsAlreadyPosted):
			log.Debugw("poll results already posted", "pollId", job.PollID)
		case poll.ErrorClass(err) != poll.ClassUnknown:
			log.Warnw("poll results rejected, dropping job", "pollId", job.PollID, "error", err.Error())
		default:
			failed = append(failed, failure{job.PollID, err})
			continue
		}
		if err := rr.storage.MarkDecryptionJobDone(job.PollID); err != nil {
			log.Warnw("failed to remove decryption job", "pollId", job.PollID, "error", err.Error())
		}
	}
	for _, f := range failed {
		job, err := rr.storage.ReleaseDecryptionJob(f.pollID, f.err)
		if err != nil {
			log.Warnw("failed to release decryption job", "pollId", f.pollID, "error", err.Error())
			continue
		}
		if job.Attempts >= rr.conf.MaxAttempts {
			log.Errorw(f.err, fmt.Sprintf("giving up on poll %d after %d attempts", f.pollID, job.Attempts))
			if err := rr.storage.MarkDecryptionJobDone(f.pollID); err != nil {
				log.Warnw("failed to remove decryption job", "pollId", f.pollID, "error", err.Error())
			}
			continue
		}
		log.Debugw("decryption job failed, will retry", "pollId", f.pollID, "attempts", job.Attempts,
			"error", f.err.Error())
	}
	return finalized
}

// finalize decrypts and publishes the results of a poll.
func (rr *ResultsRelayer) finalize(ctx context.Context, pollID uint64) error {
	handles, err := rr.engine.EncryptedTallies(pollID)
	if err != nil {
		return err
	}
	d, err := rr.decrypter.PublicDecrypt(ctx, handles)
	if err != nil {
		return fmt.Errorf("public decryption of poll %d: %w", pollID, err)
	}
	return rr.engine.PublishResults(ctx, rr.conf.Caller, pollID, d.AbiEncodedClearValues, d.DecryptionProof)
}
