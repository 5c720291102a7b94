package transport

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
	"github.com/nmxmxh/aitbridge/kernel/utils"
)

//go:embed hostsim.js
var hostSimSource string

// ScriptHost runs a JavaScript host bridge in-process on a goja event loop
// and acts as the real-path boundary for it. The script must define a
// global host object whose capability functions take the serialized
// request and eventually call __aitOnResult(envelopeJSON).
type ScriptHost struct {
	loop     *eventloop.EventLoop
	hostName string
	logger   *utils.Logger
	version  string

	results chan string
	done    chan struct{}

	mu       sync.RWMutex
	onResult func(string)
	closed   bool
}

// ScriptHostOptions configures NewScriptHost.
type ScriptHostOptions struct {
	// Host script; the built-in simulator when empty.
	Source string
	// Global the script assigns the host object to.
	HostObject string
	// Route console.* from the script to stdout.
	Console bool
	Logger  *utils.Logger
}

// NewScriptHost starts the loop and evaluates the host script.
func NewScriptHost(opts ScriptHostOptions) (*ScriptHost, error) {
	if opts.Source == "" {
		opts.Source = hostSimSource
	}
	if opts.HostObject == "" {
		opts.HostObject = bridge.DefaultConfig().HostObject
	}
	if opts.Logger == nil {
		opts.Logger = utils.DefaultLogger("script-host")
	}

	h := &ScriptHost{
		loop:     eventloop.NewEventLoop(eventloop.EnableConsole(opts.Console)),
		hostName: opts.HostObject,
		logger:   opts.Logger,
		results:  make(chan string, 1024),
		done:     make(chan struct{}),
	}
	h.loop.Start()

	errCh := make(chan error, 1)
	h.loop.RunOnLoop(func(vm *goja.Runtime) {
		errCh <- h.setup(vm, opts.Source)
	})
	if err := <-errCh; err != nil {
		h.loop.Stop()
		return nil, utils.WrapError(err, "start script host")
	}

	go h.pump()
	h.logger.Debug("Script host started", utils.String("host", h.hostName), utils.String("version", h.version))
	return h, nil
}

func (h *ScriptHost) setup(vm *goja.Runtime, source string) error {
	if err := vm.Set("__aitOnResult", func(raw string) {
		select {
		case h.results <- raw:
		case <-h.done:
		}
	}); err != nil {
		return err
	}
	if _, err := vm.RunString(source); err != nil {
		return err
	}

	host := vm.Get(h.hostName)
	if host == nil || goja.IsUndefined(host) || goja.IsNull(host) {
		return fmt.Errorf("script did not define %s", h.hostName)
	}
	if v := host.ToObject(vm).Get("version"); v != nil && !goja.IsUndefined(v) {
		h.version = v.String()
	}
	return nil
}

// pump delivers results in order, off the loop goroutine, so result
// handlers may call back into the host.
func (h *ScriptHost) pump() {
	for {
		select {
		case raw := <-h.results:
			h.mu.RLock()
			fn := h.onResult
			h.mu.RUnlock()
			if fn != nil {
				fn(raw)
			}
		case <-h.done:
			return
		}
	}
}

// SetResultHandler sets where envelopes from the script go, normally
// bridge.Router.OnResult.
func (h *ScriptHost) SetResultHandler(fn func(string)) {
	h.mu.Lock()
	h.onResult = fn
	h.mu.Unlock()
}

func (h *ScriptHost) Available() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.closed
}

// Invoke calls host[capability](requestJSON) on the loop and waits for it
// to return, not for its result.
func (h *ScriptHost) Invoke(ctx context.Context, req bridge.Request) error {
	if !h.Available() {
		return fmt.Errorf("%w: script host closed", bridge.ErrBoundaryUnavailable)
	}
	payload, err := req.Marshal()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	h.loop.RunOnLoop(func(vm *goja.Runtime) {
		errCh <- h.call(vm, req.Capability, payload)
	})

	select {
	case err := <-errCh:
		return err
	case <-h.done:
		return fmt.Errorf("%w: script host closed", bridge.ErrBoundaryUnavailable)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *ScriptHost) call(vm *goja.Runtime, capability string, args ...interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", bridge.ErrBoundaryUnavailable, capability, r)
		}
	}()

	host := vm.Get(h.hostName)
	if host == nil || goja.IsUndefined(host) || goja.IsNull(host) {
		return fmt.Errorf("%w: %s is not defined", bridge.ErrBoundaryUnavailable, h.hostName)
	}
	obj := host.ToObject(vm)
	fn, ok := goja.AssertFunction(obj.Get(capability))
	if !ok {
		return fmt.Errorf("%w: %s.%s is not a function", bridge.ErrBoundaryUnavailable, h.hostName, capability)
	}

	values := make([]goja.Value, len(args))
	for i, a := range args {
		values[i] = vm.ToValue(a)
	}
	if _, err := fn(obj, values...); err != nil {
		return fmt.Errorf("%w: %s threw: %v", bridge.ErrBoundaryUnavailable, capability, err)
	}
	return nil
}

// Cancel calls host.cancel(operationId, capability) without waiting.
func (h *ScriptHost) Cancel(_ context.Context, capability, operationID string) error {
	if !h.Available() {
		return nil
	}
	h.loop.RunOnLoop(func(vm *goja.Runtime) {
		if err := h.call(vm, "cancel", operationID, capability); err != nil {
			h.logger.Debug("Host cancel failed", utils.String("operation_id", operationID), utils.Err(err))
		}
	})
	return nil
}

// HostVersion is the script's host.version.
func (h *ScriptHost) HostVersion() string { return h.version }

// Close stops the loop. Pending timers in the script never fire.
func (h *ScriptHost) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.loop.Stop()
	close(h.done)
	return nil
}
