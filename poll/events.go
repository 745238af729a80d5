package poll

import (
	"github.com/ethereum/go-ethereum/event"
	"github.com/vocdoni/vocdoni-fhe-polls/types"
)

// Subscribe registers ch to receive every event emitted by the engine.
// Events are delivered after the emitting operation released the engine,
// and the operation returns once every subscriber received them, so
// subscribers should drain ch promptly.
func (e *Engine) Subscribe(ch chan<- *types.Event) event.Subscription {
	return e.feed.Subscribe(ch)
}

// emit delivers events in order. It must be called without the lock held.
func (e *Engine) emit(events ...*types.Event) {
	for _, ev := range events {
		e.feed.Send(ev)
	}
}
