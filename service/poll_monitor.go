package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vocdoni/vocdoni-fhe-polls/log"
	"github.com/vocdoni/vocdoni-fhe-polls/poll"
	"github.com/vocdoni/vocdoni-fhe-polls/types"
)

// PollMonitor represents a service that ends the polls whose voting window
// is over. Ending a poll is permissionless, the monitor acts as caller.
type PollMonitor struct {
	engine   *poll.Engine
	caller   common.Address
	interval time.Duration
	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPollMonitor creates a new PollMonitor service.
func NewPollMonitor(engine *poll.Engine, caller common.Address, interval time.Duration) *PollMonitor {
	return &PollMonitor{
		engine:   engine,
		caller:   caller,
		interval: interval,
	}
}

// Start begins monitoring the polls. It returns an error if the service
// is already running.
func (pm *PollMonitor) Start(ctx context.Context) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.cancel != nil {
		return fmt.Errorf("service already running")
	}
	if pm.interval <= 0 {
		return fmt.Errorf("invalid monitor interval %s", pm.interval)
	}
	ctx, pm.cancel = context.WithCancel(ctx)
	pm.done = make(chan struct{})
	go pm.monitorPolls(ctx, pm.done)
	return nil
}

// Stop halts the monitoring service and waits for the running pass.
func (pm *PollMonitor) Stop() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.cancel != nil {
		pm.cancel()
		<-pm.done
		pm.cancel = nil
	}
}

func (pm *PollMonitor) monitorPolls(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(pm.interval)
	defer ticker.Stop()
	for {
		pm.endExpiredPolls(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// endExpiredPolls ends every poll past its end time and returns how many
// were ended.
func (pm *PollMonitor) endExpiredPolls(ctx context.Context) int {
	ids, err := pm.engine.PollsWithStatus(types.PollStatusEnded)
	if err != nil {
		log.Warnw("failed to list ended polls", "error", err.Error())
		return 0
	}
	ended := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return ended
		}
		err := pm.engine.EndPoll(ctx, pm.caller, id)
		switch {
		case err == nil:
			ended++
			log.Debugw("poll ended by monitor", "pollId", id)
		case errors.Is(err, poll.ErrPollAlreadyEnded):
			// someone else ended it since the listing
		default:
			log.Warnw("failed to end poll", "pollId", id, "error", err.Error())
		}
	}
	return ended
}
