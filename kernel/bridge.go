//go:build js && wasm
// +build js,wasm

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"syscall/js"
	"time"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
	"github.com/nmxmxh/aitbridge/kernel/core/capability"
	"github.com/nmxmxh/aitbridge/kernel/utils"
)

var (
	subsMu sync.Mutex
	subs   = make(map[string]*bridge.Subscription)
	subSeq atomic.Uint64
)

// notifyHost sends lifecycle events to the page.
func notifyHost(event string, data map[string]interface{}) {
	payload := map[string]interface{}{
		"event":     event,
		"timestamp": time.Now().UnixNano(),
		"data":      data,
	}

	js.Global().Call("dispatchEvent",
		js.Global().Get("CustomEvent").New("ait:bridge", map[string]interface{}{
			"detail": payload,
		}),
	)
}

func exportBridge() {
	js.Global().Set("__aitOnResult", js.FuncOf(jsOnResult))

	api := js.Global().Get("Object").New()
	api.Set("call", js.FuncOf(jsCall))
	api.Set("subscribe", js.FuncOf(jsSubscribe))
	api.Set("stop", js.FuncOf(jsStop))
	api.Set("stats", js.FuncOf(jsStats))
	api.Set("capabilities", js.FuncOf(jsCapabilities))
	api.Set("persist", js.FuncOf(jsPersist))
	api.Set("shutdown", js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		return newPromise(func() (interface{}, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return nil, runtimeInstance.Shutdown(ctx)
		})
	}))
	js.Global().Set("aitBridge", api)
}

// --- JS Exports ---

// jsOnResult is the single inbound entry point for host results. It never
// throws into the host.
func jsOnResult(this js.Value, args []js.Value) interface{} {
	defer func() {
		if r := recover(); r != nil {
			utils.Error("Recovered panic in __aitOnResult",
				utils.Any("reason", r),
				utils.String("stack", string(debug.Stack())))
		}
	}()

	if len(args) < 1 || args[0].Type() != js.TypeString {
		utils.Warn("__aitOnResult called without an envelope string")
		return nil
	}
	br := runtimeInstance.Bridge()
	if br == nil {
		utils.Warn("Dropping result received before boot", utils.Int("length", args[0].Length()))
		return nil
	}
	br.OnResult(args[0].String())
	return nil
}

// jsCall(capability, options) returns a Promise of the result JSON.
func jsCall(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeString {
		return rejectedPromise(fmt.Errorf("missing capability name"))
	}
	desc, ok := capability.Lookup(args[0].String())
	if !ok {
		return rejectedPromise(fmt.Errorf("unknown capability %q", args[0].String()))
	}
	options := optionsArg(args, 1)

	return newPromise(func() (interface{}, error) {
		br := runtimeInstance.Bridge()
		if br == nil {
			return nil, fmt.Errorf("bridge not running (%s)", runtimeInstance.StateName())
		}
		v, err := desc.Invoke(context.Background(), br.Dispatcher(), options)
		if err != nil {
			return nil, err
		}
		if desc.Kind == capability.KindFireOnly {
			return nil, nil
		}
		out, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(out), nil
	})
}

// jsSubscribe(capability, options, onEvent) starts a stream. onEvent gets
// each event as JSON.
func jsSubscribe(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 || args[0].Type() != js.TypeString || args[2].Type() != js.TypeFunction {
		return js.ValueOf(map[string]interface{}{"error": "usage: subscribe(capability, options, onEvent)"})
	}
	br := runtimeInstance.Bridge()
	if br == nil {
		return js.ValueOf(map[string]interface{}{"error": "bridge not running"})
	}
	desc, ok := capability.Lookup(args[0].String())
	if !ok {
		return js.ValueOf(map[string]interface{}{"error": "unknown capability " + args[0].String()})
	}

	callback := args[2]
	sub, err := desc.Subscribe(context.Background(), br.Dispatcher(), optionsArg(args, 1), func(v interface{}) {
		out, err := json.Marshal(v)
		if err != nil {
			utils.Error("Dropping unencodable event", utils.String("capability", desc.Name), utils.Err(err))
			return
		}
		callback.Invoke(string(out))
	})
	if err != nil {
		return js.ValueOf(map[string]interface{}{"error": err.Error()})
	}

	handle := fmt.Sprintf("sub_%d", subSeq.Add(1))
	subsMu.Lock()
	subs[handle] = sub
	subsMu.Unlock()

	go func() {
		<-sub.Done()
		subsMu.Lock()
		delete(subs, handle)
		subsMu.Unlock()
	}()

	return js.ValueOf(map[string]interface{}{
		"success":     true,
		"handle":      handle,
		"operationId": sub.ID(),
	})
}

func jsStop(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeString {
		return js.ValueOf(map[string]interface{}{"error": "missing subscription handle"})
	}
	subsMu.Lock()
	sub, ok := subs[args[0].String()]
	delete(subs, args[0].String())
	subsMu.Unlock()

	if ok {
		sub.Stop()
	}
	return js.ValueOf(map[string]interface{}{"success": ok})
}

func jsStats(this js.Value, args []js.Value) interface{} {
	if runtimeInstance == nil {
		return js.Null()
	}
	stats := runtimeInstance.Stats()
	subsMu.Lock()
	stats["subscriptions"] = len(subs)
	subsMu.Unlock()
	return js.ValueOf(stats)
}

func jsCapabilities(this js.Value, args []js.Value) interface{} {
	out := make([]interface{}, 0)
	for _, d := range capability.All() {
		out = append(out, map[string]interface{}{
			"name":   d.Name,
			"tag":    d.Tag,
			"kind":   d.Kind.String(),
			"legacy": d.Legacy,
		})
	}
	return js.ValueOf(out)
}

func jsPersist(this js.Value, args []js.Value) interface{} {
	if err := runtimeInstance.Persist(); err != nil {
		return js.ValueOf(map[string]interface{}{"success": false, "error": err.Error()})
	}
	return js.ValueOf(map[string]interface{}{"success": true})
}

// optionsArg accepts a JSON string or a plain object.
func optionsArg(args []js.Value, i int) json.RawMessage {
	if len(args) <= i {
		return nil
	}
	switch v := args[i]; v.Type() {
	case js.TypeString:
		return json.RawMessage(v.String())
	case js.TypeUndefined, js.TypeNull:
		return nil
	default:
		return json.RawMessage(js.Global().Get("JSON").Call("stringify", v).String())
	}
}

func newPromise(run func() (interface{}, error)) js.Value {
	var executor js.Func
	executor = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		resolve, reject := args[0], args[1]
		go func() {
			defer executor.Release()
			v, err := run()
			if err != nil {
				reject.Invoke(js.Global().Get("Error").New(err.Error()))
				return
			}
			resolve.Invoke(v)
		}()
		return nil
	})
	return js.Global().Get("Promise").New(executor)
}

func rejectedPromise(err error) js.Value {
	return js.Global().Get("Promise").Call("reject", js.Global().Get("Error").New(err.Error()))
}
