package goToken

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// dropLogEvery spaces out "audit event dropped" warnings under sustained overload.
const dropLogEvery = 1000

// auditDispatcher delivers audit events to one sink from a single worker
// goroutine. Token operations only pay for a channel send.
type auditDispatcher struct {
	sink   AuditSink
	queue  chan AuditEvent
	lossy  bool
	logger zerolog.Logger

	// mu orders Emit against Close so nothing is sent on a closed queue.
	mu      sync.RWMutex
	stopped bool

	dropped atomic.Uint64
	worker  sync.WaitGroup
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, logger zerolog.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}

	d := &auditDispatcher{
		sink:   sink,
		queue:  make(chan AuditEvent, size),
		lossy:  cfg.DropIfFull,
		logger: logger,
	}
	d.worker.Add(1)
	go d.drain()
	return d
}

// drain runs until Close closes the queue, so events accepted before Close
// still reach the sink.
func (d *auditDispatcher) drain() {
	defer d.worker.Done()
	for event := range d.queue {
		d.deliver(event)
	}
}

func (d *auditDispatcher) deliver(event AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Interface("panic", r).
				Str("event_type", event.EventType).
				Msg("audit sink panicked; event lost")
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event for the sink. In lossy mode a full queue drops the event
// and counts it. Otherwise Emit waits for room or for ctx to end.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return
	}

	if !d.lossy {
		select {
		case d.queue <- event:
		case <-ctx.Done():
		}
		return
	}

	select {
	case d.queue <- event:
	default:
		n := d.dropped.Add(1)
		if n == 1 || n%dropLogEvery == 0 {
			d.logger.Warn().
				Uint64("dropped_total", n).
				Str("event_type", event.EventType).
				Msg("audit queue full; dropping events")
		}
	}
}

// Close stops intake, lets the worker flush the queue and waits for it.
// Repeated calls are no-ops.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	d.worker.Wait()
}

// Dropped reports how many events lossy mode discarded.
func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
