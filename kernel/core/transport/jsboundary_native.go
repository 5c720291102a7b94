//go:build !js || !wasm

package transport

import (
	"context"
	"fmt"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
	"github.com/nmxmxh/aitbridge/kernel/utils"
)

// JSBoundary has no host object outside the browser; it is always
// unavailable so ModeAuto picks the responder.
type JSBoundary struct {
	hostName string
}

func NewJSBoundary(hostName string, _ *utils.Logger) *JSBoundary {
	return &JSBoundary{hostName: hostName}
}

func (b *JSBoundary) Available() bool { return false }

func (b *JSBoundary) Invoke(_ context.Context, req bridge.Request) error {
	return fmt.Errorf("%w: window.%s needs a js/wasm build", bridge.ErrBoundaryUnavailable, b.hostName)
}

func (b *JSBoundary) Cancel(context.Context, string, string) error { return nil }

func (b *JSBoundary) HostVersion() string { return "" }
