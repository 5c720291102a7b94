//go:build js && wasm

package transport

import (
	"context"
	"fmt"
	"syscall/js"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
	"github.com/nmxmxh/aitbridge/kernel/utils"
)

// JSBoundary calls capability functions on a global host object injected
// by the mini-app runtime: host[capability](requestJSON).
type JSBoundary struct {
	hostName string
	logger   *utils.Logger
}

// NewJSBoundary binds to window[hostName].
func NewJSBoundary(hostName string, logger *utils.Logger) *JSBoundary {
	if logger == nil {
		logger = utils.DefaultLogger("js-boundary")
	}
	return &JSBoundary{hostName: hostName, logger: logger}
}

func (b *JSBoundary) host() js.Value {
	return js.Global().Get(b.hostName)
}

// Available reports whether the host object has been injected.
func (b *JSBoundary) Available() bool {
	return b.host().Type() == js.TypeObject
}

// Invoke serializes req and hands it to the host function named after the
// capability. A missing function or a JS exception fails the call.
func (b *JSBoundary) Invoke(_ context.Context, req bridge.Request) (err error) {
	host := b.host()
	if host.Type() != js.TypeObject {
		return fmt.Errorf("%w: window.%s is not injected", bridge.ErrBoundaryUnavailable, b.hostName)
	}
	fn := host.Get(req.Capability)
	if fn.Type() != js.TypeFunction {
		return fmt.Errorf("%w: %s.%s is not a function", bridge.ErrBoundaryUnavailable, b.hostName, req.Capability)
	}

	payload, err := req.Marshal()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s threw: %v", bridge.ErrBoundaryUnavailable, req.Capability, r)
		}
	}()
	host.Call(req.Capability, payload)
	return nil
}

// Cancel calls host.cancel(operationId, capability) when the host has one.
func (b *JSBoundary) Cancel(_ context.Context, capability, operationID string) (err error) {
	host := b.host()
	if host.Type() != js.TypeObject || host.Get("cancel").Type() != js.TypeFunction {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cancel %s: %v", operationID, r)
		}
	}()
	host.Call("cancel", operationID, capability)
	return nil
}

// HostVersion reads host.version, empty when absent.
func (b *JSBoundary) HostVersion() string {
	host := b.host()
	if host.Type() != js.TypeObject {
		return ""
	}
	v := host.Get("version")
	if v.Type() != js.TypeString {
		return ""
	}
	return v.String()
}
