package strip

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrClosed is returned for operations submitted to a closed device
var ErrClosed = errors.New("device closed")

// DefaultQueueSize is the number of pending operations a queue buffers
const DefaultQueueSize = 16

type op struct {
	ctx    context.Context
	name   string
	fn     func(context.Context) error
	result chan error
}

// Queue runs operations for one device one at a time, in submission order.
// It is the only writer of a device's shadow state.
type Queue struct {
	ops chan *op
	wg  sync.WaitGroup

	closing   chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewQueue starts a queue worker
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &Queue{
		ops:     make(chan *op, size),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *Queue) run() {
	defer q.wg.Done()
	defer close(q.stopped)

	for {
		select {
		case <-q.closing:
			q.drain()
			return
		case o := <-q.ops:
			q.exec(o)
		}
	}
}

func (q *Queue) exec(o *op) {
	// Caller gave up while the op was queued
	if err := o.ctx.Err(); err != nil {
		o.result <- err
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("op", o.name).Msg("Device operation panicked")
			o.result <- errors.New("device operation panicked")
		}
	}()
	o.result <- o.fn(o.ctx)
}

// drain fails everything still buffered once the queue is closing
func (q *Queue) drain() {
	for {
		select {
		case o := <-q.ops:
			o.result <- ErrClosed
		default:
			return
		}
	}
}

// Do submits fn and waits for it to run. Operations submitted from one
// goroutine run in submission order; concurrent submissions are ordered by
// arrival at the queue.
func (q *Queue) Do(ctx context.Context, name string, fn func(context.Context) error) error {
	o := &op{ctx: ctx, name: name, fn: fn, result: make(chan error, 1)}

	select {
	case <-q.closing:
		return ErrClosed
	default:
	}

	select {
	case <-q.closing:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case q.ops <- o:
	}

	select {
	case err := <-o.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-q.stopped:
		// Enqueued after the final drain
		select {
		case err := <-o.result:
			return err
		default:
			return ErrClosed
		}
	}
}

// Close stops the worker after the running operation finishes.
// Queued operations fail with ErrClosed.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.closing)
	})
	q.wg.Wait()
}
