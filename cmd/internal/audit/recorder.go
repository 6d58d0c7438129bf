package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sink persists one masked event. Implementations may fail; the Recorder
// downgrades failures to fallback logging.
type Sink interface {
	Emit(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, e Event) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, e Event) error { return f(ctx, e) }

// Recorder is the write side of the audit trail.
//
// Contract for callers: Record never returns an error and never blocks
// indefinitely. Internally events are masked, then queued to a single
// drain goroutine; a full queue drops the event and counts the drop.
type Recorder struct {
	log  *slog.Logger
	sink Sink

	ch      chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	closed  atomic.Bool
	once    sync.Once

	// emitTimeout bounds each sink call so a stuck sink cannot wedge the drain loop.
	emitTimeout time.Duration
}

// NewRecorder starts a Recorder draining to sink with the given queue size.
func NewRecorder(log *slog.Logger, sink Sink, buffer int) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	if buffer <= 0 {
		buffer = 256
	}

	r := &Recorder{
		log:         log,
		sink:        sink,
		ch:          make(chan Event, buffer),
		done:        make(chan struct{}),
		emitTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go r.run()

	return r
}

// Record masks and enqueues one event. It is safe for concurrent use,
// never returns an error, and drops (with a counter) when the queue is full.
func (r *Recorder) Record(_ context.Context, e Event) {
	if r == nil || r.closed.Load() {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e = Mask(e)

	select {
	case r.ch <- e:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of events discarded due to a full queue.
func (r *Recorder) Dropped() uint64 {
	if r == nil {
		return 0
	}
	return r.dropped.Load()
}

// Close stops accepting events, drains the queue, and waits for the drain loop.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		r.closed.Store(true)
		close(r.done)
	})
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for {
		select {
		case e := <-r.ch:
			r.emit(e)
		case <-r.done:
			for {
				select {
				case e := <-r.ch:
					r.emit(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) emit(e Event) {
	if r.sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.emitTimeout)
	defer cancel()

	if err := r.sink.Emit(ctx, e); err != nil {
		// Fallback channel: the event still leaves a trace in logs.
		r.log.Error("audit.emit.fail",
			"err", err,
			"action", e.Action,
			"outcome", string(e.Outcome),
		)
	}
}
