// Package dispatch provides the single logical thread that owns pagination state.
//
// A Loop executes posted functions one at a time, in the order they were posted.
// Pagination controllers, page caches and observable collections are not safe for
// concurrent use; they are confined to a Loop and every mutation runs as a loop task.
// Work that blocks (page fetches, count queries) runs on its own goroutine and
// posts its completion back with Post.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned when a task is submitted to a loop that has stopped.
var ErrClosed = errors.New("dispatch loop closed")

// Poster schedules a function to run on the owning loop.
type Poster interface {
	// Post enqueues fn and returns false if the loop no longer accepts work.
	Post(fn func()) bool
}

// Loop is an unbounded FIFO task queue drained by a single goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	closed  bool
	stopped chan struct{}
	logger  zerolog.Logger
}

// NewLoop creates a loop. Call Run to start executing tasks.
func NewLoop() *Loop {
	return &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
		logger:  log.With().Str("component", "dispatch").Logger(),
	}
}

// Post enqueues fn without blocking. It is safe to call from any goroutine,
// including from a task running on the loop itself.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do posts fn and waits for it to finish. It must not be called from a task
// running on the same loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-l.stopped:
		// The task may have run just before the loop stopped.
		select {
		case <-done:
			return nil
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes tasks until ctx is cancelled. Tasks still queued at that point are dropped.
func (l *Loop) Run(ctx context.Context) {
	defer func() {
		l.mu.Lock()
		l.closed = true
		dropped := len(l.queue)
		l.queue = nil
		l.mu.Unlock()
		close(l.stopped)

		if dropped > 0 {
			l.logger.Debug().Int("dropped", dropped).Msg("Loop stopped with pending tasks")
		}
	}()

	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			l.run(fn)
			if ctx.Err() != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

// Stopped is closed once Run has returned.
func (l *Loop) Stopped() <-chan struct{} {
	return l.stopped
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// run executes a single task; a panicking task is logged and does not stop the loop.
func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("Loop task panicked")
		}
	}()
	fn()
}
