package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const publishTimeout = 5 * time.Second

// Dispatcher decouples event emission from delivery. Emit never blocks:
// envelopes are queued on a buffered channel and a background worker
// publishes them. A full queue drops the event with a warning; a sink
// failure is logged and the event is discarded. Ledger state is committed
// before Emit is called, so neither case can affect correctness.
type Dispatcher struct {
	publisher Publisher
	logger    *slog.Logger

	ch chan *Envelope
	wg sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewDispatcher creates a dispatcher and starts its delivery worker.
func NewDispatcher(publisher Publisher, logger *slog.Logger, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}

	d := &Dispatcher{
		publisher: publisher,
		logger:    logger,
		ch:        make(chan *Envelope, buffer),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Emit queues an event for delivery. Fire-and-forget.
func (d *Dispatcher) Emit(eventType Type, correlationID string, data any) {
	env, err := NewEnvelope(eventType, correlationID, data)
	if err != nil {
		d.logger.Warn("dropping event: encode failed",
			"type", eventType,
			"error", err,
		)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	select {
	case d.ch <- env:
	default:
		d.logger.Warn("dropping event: queue full",
			"type", eventType,
			"event_id", env.ID,
		)
	}
}

// Close stops accepting events and waits for queued events to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for env := range d.ch {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := d.publisher.Publish(ctx, env); err != nil {
			d.logger.Warn("event publish failed",
				"event_id", env.ID,
				"type", env.Type,
				"error", err,
			)
		}
		cancel()
	}
}
