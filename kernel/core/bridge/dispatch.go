package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nmxmxh/aitbridge/kernel/utils"
)

// Dispatcher turns capability calls into pending operations (real path) or
// local responses (mock path) behind one contract.
type Dispatcher struct {
	table    *Table
	registry *Registry
	env      *Environment
	limiter  *Limiter
	timeout  time.Duration
	stats    *Stats
	logger   *utils.Logger
}

// DispatcherOptions are the optional collaborators of a Dispatcher.
type DispatcherOptions struct {
	Limiter *Limiter
	// Zero disables the per-call timeout.
	Timeout time.Duration
	Stats   *Stats
	Logger  *utils.Logger
}

// NewDispatcher wires a dispatcher to the shared table and registry.
func NewDispatcher(table *Table, registry *Registry, env *Environment, opts DispatcherOptions) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = utils.DefaultLogger("dispatch")
	}
	if opts.Stats == nil {
		opts.Stats = &Stats{}
	}
	return &Dispatcher{
		table:    table,
		registry: registry,
		env:      env,
		limiter:  opts.Limiter,
		timeout:  opts.Timeout,
		stats:    opts.Stats,
		logger:   opts.Logger,
	}
}

// Environment returns the switch used by this dispatcher.
func (d *Dispatcher) Environment() *Environment { return d.env }

// Call dispatches a one-shot capability whose result decodes into T. It
// never blocks: the returned future settles when the host answers, when
// the boundary refuses the request, or on timeout/cancellation.
func Call[T any](ctx context.Context, d *Dispatcher, capability, tag string, options interface{}) *Future[T] {
	f := newFuture[T]()

	req, err := d.prepare(capability, tag, options)
	if err != nil {
		d.stats.rejected.Add(1)
		f.reject(err)
		return f
	}

	if d.env.Select() == PathMock {
		d.callMock(ctx, req, func(v interface{}, err error) {
			if err != nil {
				f.reject(err)
				return
			}
			deliver(f, capability, v)
		})
		return f
	}

	id := d.table.Register(tag, func(v interface{}) {
		deliver(f, capability, v)
	})
	d.table.OnAbort(id, func(err error) { f.reject(err) })
	f.setAbandon(func() { d.table.Cancel(id) })
	req.OperationID = id

	if err := d.invoke(ctx, req); err != nil {
		d.table.Cancel(id)
		d.stats.rejected.Add(1)
		f.reject(err)
		return f
	}

	d.stats.dispatched.Add(1)
	d.armTimeout(f, capability, id)
	return f
}

// CallVoid dispatches a capability that completes without a value.
func CallVoid(ctx context.Context, d *Dispatcher, capability string, options interface{}) *Future[struct{}] {
	return Call[struct{}](ctx, d, capability, TagVoid, options)
}

// Fire sends a request that has no completion callback at all.
func (d *Dispatcher) Fire(ctx context.Context, capability string, options interface{}) error {
	req, err := d.prepare(capability, "", options)
	if err != nil {
		d.stats.rejected.Add(1)
		return err
	}

	if d.env.Select() == PathMock {
		responder := d.env.Responder()
		if responder == nil {
			return fmt.Errorf("%w: no responder for %s", ErrBoundaryUnavailable, capability)
		}
		d.stats.mocked.Add(1)
		_, err := safeRespond(ctx, responder, req)
		return err
	}

	if err := d.invoke(ctx, req); err != nil {
		d.stats.rejected.Add(1)
		return err
	}
	d.stats.fired.Add(1)
	return nil
}

func (d *Dispatcher) prepare(capability, tag string, options interface{}) (Request, error) {
	if !d.limiter.Allow(capability) {
		return Request{}, fmt.Errorf("%w: %s", ErrRateLimited, capability)
	}
	if tag != "" && !d.registry.Has(tag) {
		return Request{}, fmt.Errorf("%w: %s declares %q", ErrUnknownResultType, capability, tag)
	}
	raw, err := marshalOptions(options)
	if err != nil {
		return Request{}, fmt.Errorf("marshal %s options: %w", capability, err)
	}
	return Request{Capability: capability, ResultTypeTag: tag, Options: raw}, nil
}

func (d *Dispatcher) invoke(ctx context.Context, req Request) error {
	boundary := d.env.Boundary()
	if boundary == nil {
		return fmt.Errorf("%w: no boundary for %s", ErrBoundaryUnavailable, req.Capability)
	}
	if err := safeInvoke(ctx, boundary, req); err != nil {
		if !errors.Is(err, ErrBoundaryUnavailable) {
			err = fmt.Errorf("%w: %s: %w", ErrBoundaryUnavailable, req.Capability, err)
		}
		d.logger.Warn("Boundary refused request",
			utils.String("capability", req.Capability),
			utils.String("operation_id", req.OperationID),
			utils.Err(err))
		return err
	}
	return nil
}

// safeInvoke turns a panicking boundary into ErrBoundaryUnavailable.
func safeInvoke(ctx context.Context, b Boundary, req Request) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s: %v", ErrBoundaryUnavailable, req.Capability, rec)
		}
	}()
	return b.Invoke(ctx, req)
}

// safeRespond turns a panicking responder into an ordinary error.
func safeRespond(ctx context.Context, r Responder, req Request) (payload string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("responder %s panicked: %v", req.Capability, rec)
		}
	}()
	return r.Respond(ctx, req)
}

// callMock runs the responder synchronously and decodes its payload with
// the same registry the router uses, so both paths yield the same shape.
func (d *Dispatcher) callMock(ctx context.Context, req Request, done func(interface{}, error)) {
	responder := d.env.Responder()
	if responder == nil {
		d.stats.rejected.Add(1)
		done(nil, fmt.Errorf("%w: no responder for %s", ErrBoundaryUnavailable, req.Capability))
		return
	}

	payload, err := safeRespond(ctx, responder, req)
	if err != nil {
		d.stats.rejected.Add(1)
		d.logger.Warn("Responder refused request",
			utils.String("capability", req.Capability),
			utils.Err(err))
		done(nil, err)
		return
	}
	v, err := d.registry.Decode(req.ResultTypeTag, payload)
	if err != nil {
		d.stats.rejected.Add(1)
		done(nil, err)
		return
	}
	d.stats.mocked.Add(1)
	done(v, nil)
}

func (d *Dispatcher) armTimeout(f interface{ afterSettle(func()) }, capability, id string) {
	if d.timeout <= 0 {
		return
	}
	timer := time.AfterFunc(d.timeout, func() {
		if d.table.Abort(id, fmt.Errorf("%w: %s after %s", ErrTimeout, capability, d.timeout)) {
			d.stats.timeouts.Add(1)
			d.logger.Warn("Operation timed out",
				utils.String("capability", capability),
				utils.String("operation_id", id))
		}
	})
	f.afterSettle(func() { timer.Stop() })
}

// deliver settles f with v, which must be a T.
func deliver[T any](f *Future[T], capability string, v interface{}) {
	typed, ok := v.(T)
	if !ok {
		f.reject(fmt.Errorf("%w: %s produced %T", ErrTagMismatch, capability, v))
		return
	}
	f.resolve(typed)
}
