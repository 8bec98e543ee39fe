package streamutil

import (
	"context"
	"sync"

	"github.com/ncecere/asr_gateway/internal/models"
)

// YieldFunc receives converted stream events. Returning false stops further forwarding.
type YieldFunc func(models.StreamEvent) bool

// Forward wraps backend-specific streaming logic with a shared channel lifecycle so adapters follow
// the same contract when emitting transcript events. The forward callback should invoke yield for
// every event until it returns false or the stream is exhausted. The returned close func cancels
// the forwarder's context, so a forwarder blocked on yield after the consumer walks away still
// unwinds and the events channel still closes.
func Forward(ctx context.Context, closer func() error, forward func(ctx context.Context, yield YieldFunc)) (<-chan models.StreamEvent, func() error) {
	events := make(chan models.StreamEvent)
	ctx, cancel := context.WithCancel(ctx)
	var once sync.Once
	callCloser := func() {
		once.Do(func() {
			cancel()
			if closer != nil {
				_ = closer()
			}
		})
	}

	go func() {
		defer close(events)
		defer callCloser()

		forward(ctx, func(event models.StreamEvent) bool {
			select {
			case <-ctx.Done():
				return false
			case events <- event:
				return true
			}
		})
	}()

	return events, func() error {
		callCloser()
		return nil
	}
}
