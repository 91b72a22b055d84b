// Package audit fans core events out to the audit and notification sinks.
// Delivery runs on a small worker pool fed by a buffered channel so sinks can
// never slow down or fail a state transition.
package audit

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/fiecsoft/procflow/internal/model"
)

// Sink consumes events. Implementations must tolerate being called
// concurrently.
type Sink func(ctx context.Context, ev model.Event)

// Bus dispatches events to registered sinks.
type Bus struct {
	logger  *zap.Logger
	queue   chan model.Event
	workers int

	mu    sync.RWMutex
	sinks []Sink
}

// NewBus builds a Bus with queue capacity tied to worker count.
func NewBus(logger *zap.Logger, workers int) *Bus {
	if workers <= 0 {
		workers = 1
	}
	return &Bus{
		logger:  logger,
		queue:   make(chan model.Event, workers*16),
		workers: workers,
	}
}

// Subscribe registers a sink. Sinks added after Start still receive
// subsequent events.
func (b *Bus) Subscribe(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Start launches the dispatch goroutines. They exit when ctx is cancelled.
func (b *Bus) Start(ctx context.Context) {
	for i := 0; i < b.workers; i++ {
		go b.worker(ctx)
	}
}

// Publish enqueues an event. When the buffer is full the event is dropped
// with a log line; losing a notification must never fail the transition that
// produced it.
func (b *Bus) Publish(ev model.Event) {
	select {
	case b.queue <- ev:
	default:
		b.logger.Warn("event queue full, dropping event",
			zap.String("type", string(ev.Type)),
			zap.String("instance", ev.ProcessInstanceID))
	}
}

func (b *Bus) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.queue:
			b.dispatch(ctx, ev)
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, ev model.Event) {
	b.mu.RLock()
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()
	for _, s := range sinks {
		s(ctx, ev)
	}
}
