// Package runtime owns the bridge lifecycle: it probes the host, picks a
// boundary, assembles the bridge around the mock responder and tears it
// all down again.
package runtime

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
	"github.com/nmxmxh/aitbridge/kernel/core/capability"
	"github.com/nmxmxh/aitbridge/kernel/core/storage"
	"github.com/nmxmxh/aitbridge/kernel/utils"
)

// State is the lifecycle state of a Runtime.
type State int32

const (
	StateUninitialized State = iota
	StateBooting
	StateRunning
	StateStopping
	StateStopped
	StatePanic
)

var stateNames = map[State]string{
	StateUninitialized: "UNINITIALIZED",
	StateBooting:       "BOOTING",
	StateRunning:       "RUNNING",
	StateStopping:      "STOPPING",
	StateStopped:       "STOPPED",
	StatePanic:         "PANIC",
}

func (s State) String() string { return stateNames[s] }

// BoundaryFactory builds the real path. onResult must receive every
// envelope the boundary gets back from the host.
type BoundaryFactory func(ctx context.Context, onResult func(string)) (bridge.Boundary, error)

// Options wires a Runtime.
type Options struct {
	Bridge     bridge.Config
	DevhostURL string
	Host       HostInfo
	Boundaries map[BoundaryKind]BoundaryFactory
	Mock       capability.MockConfig
	// Snapshot of the mock storage from a previous session.
	Restore []byte
	// Receives the mock storage snapshot on shutdown.
	Persist         func(snapshot []byte) error
	Notify          func(event string, data map[string]interface{})
	ShutdownTimeout time.Duration
	Logger          *utils.Logger
}

// Runtime is the root object of a bridge process.
type Runtime struct {
	id     string
	state  atomic.Int32
	opts   Options
	logger *utils.Logger

	bridge   atomic.Pointer[bridge.Bridge]
	store    *storage.Store
	kind     BoundaryKind
	shutdown *utils.GracefulShutdown

	startTime time.Time
	ctx       context.Context
	cancel    context.CancelFunc
}

// New creates a runtime in StateUninitialized.
func New(opts Options) *Runtime {
	if opts.Logger == nil {
		opts.Logger = utils.DefaultLogger("runtime")
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	if opts.Notify == nil {
		opts.Notify = func(string, map[string]interface{}) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runtime{
		id:       utils.GenerateID(),
		opts:     opts,
		logger:   opts.Logger,
		shutdown: utils.NewGracefulShutdown(opts.ShutdownTimeout, opts.Logger.Named("shutdown")),
		ctx:      ctx,
		cancel:   cancel,
	}
	r.setState(StateUninitialized)
	return r
}

// Boot assembles the bridge. It may only run once.
func (r *Runtime) Boot() (err error) {
	r.startTime = time.Now()
	defer r.recoverPanic(&err)

	if !r.transitionState(StateUninitialized, StateBooting) {
		return fmt.Errorf("runtime: cannot boot from %s", r.StateName())
	}

	r.logger.Info("Bridge runtime boot sequence",
		utils.String("runtime_id", utils.ShortID(r.id)),
		utils.String("mode", r.opts.Bridge.Mode.String()))

	if err := r.openStore(); err != nil {
		r.setState(StateUninitialized)
		return err
	}

	mockCfg := r.opts.Mock
	mockCfg.Store = r.store
	if mockCfg.Logger == nil {
		mockCfg.Logger = r.logger.Named("mock")
	}
	responder := capability.NewMockResponder(mockCfg)

	boundary, err := r.buildBoundary()
	if err != nil {
		if r.opts.Bridge.Mode == bridge.ModeReal {
			r.setState(StateUninitialized)
			return err
		}
		r.logger.Warn("Boundary unavailable, continuing on the mock path", utils.Err(err))
		boundary = nil
	}

	br, err := bridge.New(r.opts.Bridge, boundary, responder, r.logger.Named("bridge"))
	if err != nil {
		closeBoundary(boundary)
		r.setState(StateUninitialized)
		return err
	}
	if err := capability.Register(br.Registry()); err != nil {
		closeBoundary(boundary)
		r.setState(StateUninitialized)
		return utils.WrapError(err, "register capabilities")
	}
	r.bridge.Store(br)

	// hooks run in reverse: bridge first, then boundary, then storage
	r.shutdown.Register("storage", func(context.Context) error { return r.persist() })
	if boundary != nil {
		r.shutdown.Register("boundary", func(context.Context) error { return closeBoundary(boundary) })
	}
	r.shutdown.Register("bridge", func(context.Context) error { return br.Close() })

	r.setState(StateRunning)
	r.logger.Info("Bridge runtime operational",
		utils.String("boundary", r.kind.String()),
		utils.Int("capabilities", len(capability.Names())))
	r.opts.Notify("bridge:ready", map[string]interface{}{
		"mode":     r.opts.Bridge.Mode.String(),
		"boundary": r.kind.String(),
	})
	return nil
}

func (r *Runtime) openStore() error {
	r.store = storage.New(storage.WithLogger(r.logger.Named("storage")))
	if len(r.opts.Restore) == 0 {
		return nil
	}
	if err := r.store.Restore(bytes.NewReader(r.opts.Restore)); err != nil {
		// a corrupt snapshot costs the saved keys, not the session
		r.logger.Warn("Discarding unreadable storage snapshot", utils.Err(err))
	}
	return nil
}

func (r *Runtime) buildBoundary() (bridge.Boundary, error) {
	r.kind = PlanBoundary(r.opts.Bridge, r.opts.DevhostURL, r.opts.Host)
	if r.kind == BoundaryNone {
		return nil, nil
	}
	factory, ok := r.opts.Boundaries[r.kind]
	if !ok {
		return nil, fmt.Errorf("%w: no factory for %s boundary", bridge.ErrBoundaryUnavailable, r.kind)
	}

	route := func(raw string) {
		if br := r.bridge.Load(); br != nil {
			br.OnResult(raw)
		}
	}
	b, err := factory(r.ctx, route)
	if err != nil {
		return nil, utils.WrapErrorf(err, "build %s boundary", r.kind)
	}
	return b, nil
}

func closeBoundary(b bridge.Boundary) error {
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *Runtime) persist() error {
	if r.opts.Persist == nil || r.store == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := r.store.Snapshot(&buf); err != nil {
		return err
	}
	return r.opts.Persist(buf.Bytes())
}

// Persist hands the current storage snapshot to Options.Persist.
func (r *Runtime) Persist() error { return r.persist() }

// Shutdown closes the bridge, the boundary and persists storage.
func (r *Runtime) Shutdown(ctx context.Context) error {
	state := r.State()
	if state == StateStopping || state == StateStopped {
		return nil
	}
	r.setState(StateStopping)
	r.logger.Info("Bridge runtime shutting down")

	r.cancel()
	err := r.shutdown.Shutdown(ctx)

	r.setState(StateStopped)
	r.logger.Info("Bridge runtime stopped", utils.Duration("uptime", r.Uptime()))
	r.opts.Notify("bridge:shutdown", nil)
	return err
}

// Bridge is nil until Boot succeeds.
func (r *Runtime) Bridge() *bridge.Bridge { return r.bridge.Load() }

// Store is nil until Boot runs.
func (r *Runtime) Store() *storage.Store { return r.store }

func (r *Runtime) ID() string { return r.id }

// Boundary reports which real path Boot chose.
func (r *Runtime) Boundary() BoundaryKind { return r.kind }

func (r *Runtime) Uptime() time.Duration {
	if r.startTime.IsZero() {
		return 0
	}
	return time.Since(r.startTime)
}

// Stats merges the lifecycle state with the bridge counters.
func (r *Runtime) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"state":    r.StateName(),
		"boundary": r.kind.String(),
		"uptime":   r.Uptime().String(),
	}
	if !r.startTime.IsZero() {
		stats["startedAt"] = r.startTime.Format(time.RFC3339)
	}
	if br := r.Bridge(); br != nil {
		stats["bridge"] = br.Stats().ToMap()
	} else {
		stats["bridge"] = "not_started"
	}
	return stats
}

func (r *Runtime) State() State { return State(r.state.Load()) }

func (r *Runtime) StateName() string { return r.State().String() }

func (r *Runtime) setState(s State) { r.state.Store(int32(s)) }

func (r *Runtime) transitionState(from, to State) bool {
	return r.state.CompareAndSwap(int32(from), int32(to))
}

func (r *Runtime) recoverPanic(errp *error) {
	if rec := recover(); rec != nil {
		r.setState(StatePanic)
		stack := string(debug.Stack())
		r.logger.Error("BRIDGE RUNTIME PANIC",
			utils.Any("reason", rec),
			utils.String("stack", stack))
		r.opts.Notify("bridge:panic", map[string]interface{}{
			"reason": fmt.Sprintf("%v", rec),
			"stack":  stack,
		})
		if errp != nil {
			*errp = fmt.Errorf("runtime: panic during boot: %v", rec)
		}
	}
}
