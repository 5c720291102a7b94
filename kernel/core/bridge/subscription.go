package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nmxmxh/aitbridge/kernel/utils"
)

// Subscription is the stop handle of a stream capability.
type Subscription struct {
	id         string
	capability string

	once sync.Once
	mu   sync.Mutex
	err  error
	done chan struct{}
	stop func()
}

func newSubscription(id, capability string) *Subscription {
	return &Subscription{id: id, capability: capability, done: make(chan struct{})}
}

// ID is the operation id of a real-path stream, empty on the mock path.
func (s *Subscription) ID() string { return s.id }

// Capability names the stream.
func (s *Subscription) Capability() string { return s.capability }

// Stop ends the stream. Events arriving afterwards are dropped. Safe to
// call more than once.
func (s *Subscription) Stop() {
	s.end(nil, true)
}

// Done is closed when the stream ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err reports why the stream ended; nil after Stop.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) end(err error, runStop bool) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		stop := s.stop
		s.mu.Unlock()

		if runStop && stop != nil {
			stop()
		}
		close(s.done)
	})
}

func (s *Subscription) setStop(fn func()) {
	s.mu.Lock()
	s.stop = fn
	s.mu.Unlock()
}

// Subscribe starts a stream capability. onEvent runs once per event, never
// concurrently with itself, until the subscription is stopped.
func Subscribe[T any](ctx context.Context, d *Dispatcher, capability, tag string, options interface{}, onEvent func(T)) (*Subscription, error) {
	req, err := d.prepare(capability, tag, options)
	if err != nil {
		d.stats.rejected.Add(1)
		return nil, err
	}
	req.Stream = true

	emit := func(v interface{}) {
		typed, ok := v.(T)
		if !ok {
			d.stats.tagMismatch.Add(1)
			d.logger.Error("Stream event has unexpected type",
				utils.String("capability", capability),
				utils.String("type", fmt.Sprintf("%T", v)))
			return
		}
		onEvent(typed)
	}

	if d.env.Select() == PathMock {
		return d.subscribeMock(ctx, req, emit)
	}

	var stopped atomic.Bool
	id := d.table.RegisterStream(tag, func(v interface{}) {
		if stopped.Load() {
			return
		}
		emit(v)
	})
	sub := newSubscription(id, capability)
	d.table.OnAbort(id, func(err error) {
		stopped.Store(true)
		sub.end(err, false)
	})
	sub.setStop(func() {
		stopped.Store(true)
		if !d.table.Cancel(id) {
			return
		}
		if b := d.env.Boundary(); b != nil {
			if err := b.Cancel(context.Background(), capability, id); err != nil {
				d.logger.Debug("Host stream cancel failed",
					utils.String("capability", capability),
					utils.String("operation_id", id),
					utils.Err(err))
			}
		}
	})
	req.OperationID = id

	if err := d.invoke(ctx, req); err != nil {
		d.table.Cancel(id)
		d.stats.rejected.Add(1)
		sub.end(err, false)
		return nil, err
	}
	d.stats.dispatched.Add(1)
	return sub, nil
}

func (d *Dispatcher) subscribeMock(ctx context.Context, req Request, emit func(interface{})) (*Subscription, error) {
	responder := d.env.Responder()
	if responder == nil {
		d.stats.rejected.Add(1)
		return nil, fmt.Errorf("%w: no responder for %s", ErrBoundaryUnavailable, req.Capability)
	}

	sub := newSubscription("", req.Capability)
	var (
		deliverMu sync.Mutex
		stopped   atomic.Bool
	)

	stop, err := responder.RespondStream(ctx, req, func(payload string) {
		deliverMu.Lock()
		defer deliverMu.Unlock()
		if stopped.Load() {
			return
		}
		v, err := d.registry.Decode(req.ResultTypeTag, payload)
		if err != nil {
			d.stats.decodeErrors.Add(1)
			d.logger.Error("Mock stream event failed to decode",
				utils.String("capability", req.Capability),
				utils.Err(err))
			return
		}
		d.stats.events.Add(1)
		emit(v)
	})
	if err != nil {
		d.stats.rejected.Add(1)
		return nil, err
	}

	sub.setStop(func() {
		stopped.Store(true)
		if stop != nil {
			stop()
		}
	})
	d.stats.mocked.Add(1)
	return sub, nil
}
