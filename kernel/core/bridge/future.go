package bridge

import (
	"context"
	"fmt"
	"sync"
)

// Future is the handle returned by a one-shot dispatch. It settles exactly
// once, with a value or an error.
type Future[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	settled  bool
	value    T
	err      error
	abandon  func()
	onSettle []func()
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns an already fulfilled future.
func Resolved[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.resolve(v)
	return f
}

// Rejected returns an already failed future.
func Rejected[T any](err error) *Future[T] {
	f := newFuture[T]()
	f.reject(err)
	return f
}

func (f *Future[T]) resolve(v T) bool {
	return f.settle(v, nil)
}

func (f *Future[T]) reject(err error) bool {
	var zero T
	return f.settle(zero, err)
}

func (f *Future[T]) settle(v T, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.value = v
	f.err = err
	hooks := f.onSettle
	f.onSettle = nil
	close(f.done)
	f.mu.Unlock()

	for _, h := range hooks {
		h()
	}
	return true
}

// afterSettle runs fn once the future settles, immediately if it already has.
func (f *Future[T]) afterSettle(fn func()) {
	f.mu.Lock()
	if !f.settled {
		f.onSettle = append(f.onSettle, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn()
}

func (f *Future[T]) setAbandon(fn func()) {
	f.mu.Lock()
	f.abandon = fn
	f.mu.Unlock()
}

// Done is closed when the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future settles or ctx ends. When ctx ends first
// the pending operation is cancelled and the future fails with
// ErrCancelled.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		f.Cancel(fmt.Errorf("%w: %w", ErrCancelled, ctx.Err()))
	}
	return f.TryResult()
}

// TryResult returns the settled outcome, or ErrPending.
func (f *Future[T]) TryResult() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.settled {
		var zero T
		return zero, ErrPending
	}
	return f.value, f.err
}

// Cancel abandons the operation: its table entry is removed and the future
// fails with err (ErrCancelled when nil). It returns false if the future had
// already settled.
func (f *Future[T]) Cancel(err error) bool {
	if err == nil {
		err = ErrCancelled
	}

	f.mu.Lock()
	abandon := f.abandon
	f.mu.Unlock()

	if abandon != nil {
		abandon()
	}
	return f.reject(err)
}

// Then runs fn on a new goroutine once the future settles.
func (f *Future[T]) Then(fn func(T, error)) {
	f.afterSettle(func() {
		go fn(f.TryResult())
	})
}
