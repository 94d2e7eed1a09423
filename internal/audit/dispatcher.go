package audit

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DropReason says why an event never reached the sink.
type DropReason uint8

const (
	// DropFull: the buffer was full and DropIfFull was set.
	DropFull DropReason = iota
	// DropCanceled: the caller's context ended while waiting for space.
	DropCanceled

	dropReasonCount
)

func (r DropReason) String() string {
	switch r {
	case DropFull:
		return "buffer_full"
	case DropCanceled:
		return "context_canceled"
	default:
		return "unknown"
	}
}

// dropLogEvery throttles the drop warning after the first one.
const dropLogEvery = 100

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// Logger receives a warning on the first drop and every dropLogEvery
	// drops after that. Nil discards.
	Logger *slog.Logger
}

// Dispatcher asynchronously forwards audit events to a sink. A nil
// *Dispatcher is valid and discards everything.
type Dispatcher struct {
	cfg    Config
	sink   Sink
	logger *slog.Logger
	queue  chan Event
	stop   chan struct{}
	wg     sync.WaitGroup

	drops     [dropReasonCount]atomic.Uint64
	dropTotal atomic.Uint64

	closed    atomic.Bool
	closeOnce sync.Once
}

// NewDispatcher starts the delivery goroutine. It returns nil when cfg is
// disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	d := &Dispatcher{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		queue:  make(chan Event, cfg.BufferSize),
		stop:   make(chan struct{}),
	}
	d.wg.Add(1)
	go d.deliver()
	return d
}

func (d *Dispatcher) deliver() {
	defer d.wg.Done()
	ctx := context.Background()
	for {
		select {
		case ev := <-d.queue:
			d.sink.Emit(ctx, ev)
		case <-d.stop:
			for {
				select {
				case ev := <-d.queue:
					d.sink.Emit(ctx, ev)
				default:
					return
				}
			}
		}
	}
}

// Emit queues event. With DropIfFull it never blocks; otherwise it waits for
// buffer space, ctx, or Close. Every event that is not queued is counted
// under its [DropReason].
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.queue <- event:
		case <-d.stop:
		default:
			d.drop(event, DropFull)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event, DropCanceled)
	case <-d.stop:
	}
}

func (d *Dispatcher) drop(event Event, reason DropReason) {
	d.drops[reason].Add(1)
	total := d.dropTotal.Add(1)
	if total == 1 || total%dropLogEvery == 0 {
		d.logger.Warn("audit events dropped",
			slog.String("event_type", event.EventType),
			slog.String("reason", reason.String()),
			slog.Uint64("dropped_total", total))
	}
}

// Close stops accepting events, flushes the buffer and waits for the sink.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		d.wg.Wait()
	})
}

// Dropped returns the number of events dropped for any reason.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropTotal.Load()
}

// DroppedBy returns the number of events dropped for reason.
func (d *Dispatcher) DroppedBy(reason DropReason) uint64 {
	if d == nil || reason >= dropReasonCount {
		return 0
	}
	return d.drops[reason].Load()
}
