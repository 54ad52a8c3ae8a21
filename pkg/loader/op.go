package loader

import (
	"context"
	"sync"
)

// Op is the outcome of an asynchronous loader operation.
//
// An op finishes exactly once. Callers off the loop wait with Wait; code on the
// loop chains follow-up work with then.
type Op struct {
	done chan struct{}
	once sync.Once
	err  error

	mu    sync.Mutex
	hooks []func(error)
}

func newOp() *Op {
	return &Op{done: make(chan struct{})}
}

// finishedOp returns an op that has already finished with err.
func finishedOp(err error) *Op {
	op := newOp()
	op.finish(err)
	return op
}

// Done is closed when the operation has finished.
func (o *Op) Done() <-chan struct{} {
	return o.done
}

// Err returns the operation's error. It is only meaningful after Done is closed.
func (o *Op) Err() error {
	select {
	case <-o.done:
		return o.err
	default:
		return nil
	}
}

// Wait blocks until the operation finishes or ctx is done.
func (o *Op) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish records err and runs the chained hooks. Later calls are ignored.
func (o *Op) finish(err error) {
	o.once.Do(func() {
		o.err = err
		close(o.done)

		o.mu.Lock()
		hooks := o.hooks
		o.hooks = nil
		o.mu.Unlock()

		for _, fn := range hooks {
			fn(err)
		}
	})
}

// then runs fn with the op's error once it finishes, immediately if it already has.
func (o *Op) then(fn func(error)) {
	o.mu.Lock()
	select {
	case <-o.done:
		o.mu.Unlock()
		fn(o.err)
		return
	default:
	}
	o.hooks = append(o.hooks, fn)
	o.mu.Unlock()
}
