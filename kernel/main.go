//go:build js && wasm
// +build js,wasm

package main

import (
	"context"
	"fmt"
	"runtime/debug"
	"syscall/js"
	"time"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
	"github.com/nmxmxh/aitbridge/kernel/core/transport"
	"github.com/nmxmxh/aitbridge/kernel/runtime"
	"github.com/nmxmxh/aitbridge/kernel/utils"
)

// Global singleton, owned by main and read by the JS exports.
var runtimeInstance *runtime.Runtime

func main() {
	config := loadConfig()

	logger := utils.NewLogger(utils.LoggerConfig{
		Level:     config.Bridge.LogLevel,
		Component: "ait-bridge",
	})
	utils.SetGlobalLogger(logger)

	info := runtime.NewProbe(config.Bridge.HostObject).Detect()

	runtimeInstance = runtime.New(runtime.Options{
		Bridge:     config.Bridge,
		DevhostURL: config.DevhostURL,
		Host:       info,
		Boundaries: map[runtime.BoundaryKind]runtime.BoundaryFactory{
			runtime.BoundaryHost: func(context.Context, func(string)) (bridge.Boundary, error) {
				// the host answers through the exported __aitOnResult
				return transport.NewJSBoundary(config.Bridge.HostObject, logger.Named("host")), nil
			},
			runtime.BoundaryDevhost: func(ctx context.Context, onResult func(string)) (bridge.Boundary, error) {
				b, err := transport.DialDevhost(ctx, config.DevhostURL, onResult, transport.DevhostOptions{
					Logger: logger.Named("devhost"),
				})
				if err != nil {
					return nil, err
				}
				b.SetErrorHandler(abortRejected)
				b.SetClosedHandler(abortPending)
				return b, nil
			},
		},
		Restore: loadSnapshot(config.PersistKey),
		Persist: func(snapshot []byte) error { return saveSnapshot(config.PersistKey, snapshot) },
		Notify:  notifyHost,
		Logger:  logger.Named("runtime"),
	})

	exportBridge()

	window := js.Global().Get("window")
	if !window.IsUndefined() && !window.IsNull() {
		window.Call("addEventListener", "beforeunload", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = runtimeInstance.Shutdown(ctx)
			return nil
		}))
	}

	go func() {
		if err := runtimeInstance.Boot(); err != nil {
			logger.Error("Bridge runtime failed to boot", utils.Err(err))
			notifyHost("bridge:error", map[string]interface{}{"error": err.Error()})
			return
		}
		debug.FreeOSMemory()
	}()

	select {}
}

// abortRejected fails an operation the devhost refused.
func abortRejected(operationID, message string) {
	if br := runtimeInstance.Bridge(); br != nil {
		br.Table().Abort(operationID, fmt.Errorf("%w: %s", bridge.ErrHostRejected, message))
	}
}

// abortPending fails everything still waiting on a devhost that went away.
func abortPending(err error) {
	if br := runtimeInstance.Bridge(); br != nil {
		if n := br.Table().AbortAll(err); n > 0 {
			utils.Warn("Failed pending operations after devhost loss", utils.Int("count", n))
		}
	}
}
