package bot

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/metrics"
)

// ErrQueueClosed is returned by Enqueue after Stop.
var ErrQueueClosed = errors.New("event queue is closed")

// HandlerFunc processes one event.
type HandlerFunc func(ctx context.Context, ev booking.Event) error

// Queue serializes inbound events onto a single worker. One event is
// classified and routed at a time, so the create-then-mark order of one
// event is never interleaved with another's.
type Queue struct {
	events    chan booking.Event
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	log       zerolog.Logger
}

// NewQueue creates a queue; Enqueue blocks once bufferSize events are waiting.
func NewQueue(bufferSize int, log zerolog.Logger) *Queue {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Queue{
		events:    make(chan booking.Event, bufferSize),
		closeChan: make(chan struct{}),
		log:       log,
	}
}

// Enqueue hands an event to the worker.
func (q *Queue) Enqueue(ctx context.Context, ev booking.Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.events <- ev:
		metrics.EventQueueDepth.Set(float64(len(q.events)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return ErrQueueClosed
	}
}

// Start launches the single worker.
func (q *Queue) Start(ctx context.Context, handle HandlerFunc) {
	q.wg.Add(1)
	go q.worker(ctx, handle)
}

func (q *Queue) worker(ctx context.Context, handle HandlerFunc) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			q.drain(ctx, handle)
			return
		case ev := <-q.events:
			q.process(ctx, ev, handle)
		}
	}
}

// drain processes what was accepted before Stop.
func (q *Queue) drain(ctx context.Context, handle HandlerFunc) {
	for {
		select {
		case ev := <-q.events:
			q.process(ctx, ev, handle)
		default:
			return
		}
	}
}

func (q *Queue) process(ctx context.Context, ev booking.Event, handle HandlerFunc) {
	metrics.EventQueueDepth.Set(float64(len(q.events)))
	defer func() {
		if r := recover(); r != nil {
			metrics.DispatchErrors.Inc()
			q.log.Error().Interface("panic", r).Str("message_id", string(ev.MessageID)).Msg("event handler panicked")
		}
	}()
	if err := handle(ctx, ev); err != nil {
		q.log.Error().Err(err).Str("message_id", string(ev.MessageID)).Msg("event handling failed")
	}
}

// Stop rejects new events, finishes the buffered ones and waits for the
// worker or ctx, whichever comes first.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
