//go:build js && wasm

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"syscall/js"
)

type wasmChannel struct {
	ws       js.Value
	messages chan []byte
	closed   chan struct{}
	once     sync.Once
	funcs    []js.Func
}

func dialChannel(ctx context.Context, url string) (Channel, error) {
	ws := js.Global().Get("WebSocket").New(url)
	ch := &wasmChannel{
		ws:       ws,
		messages: make(chan []byte, 100),
		closed:   make(chan struct{}),
	}

	ch.on("onmessage", func(this js.Value, args []js.Value) interface{} {
		// never block the browser event loop on a slow reader
		select {
		case ch.messages <- []byte(args[0].Get("data").String()):
		default:
			js.Global().Get("console").Call("warn", "[devhost] receive buffer full, dropping frame")
		}
		return nil
	})
	ch.on("onclose", func(this js.Value, args []js.Value) interface{} {
		ch.once.Do(func() { close(ch.closed) })
		return nil
	})
	ch.on("onerror", func(this js.Value, args []js.Value) interface{} {
		js.Global().Get("console").Call("error", "[devhost] websocket error", args[0])
		return nil
	})

	opened := make(chan struct{})
	ch.on("onopen", func(this js.Value, args []js.Value) interface{} {
		close(opened)
		return nil
	})

	select {
	case <-opened:
		return ch, nil
	case <-ch.closed:
		ch.release()
		return nil, errors.New("websocket closed before opening")
	case <-ctx.Done():
		ws.Call("close")
		ch.release()
		return nil, ctx.Err()
	}
}

func (w *wasmChannel) on(event string, fn func(js.Value, []js.Value) interface{}) {
	f := js.FuncOf(fn)
	w.funcs = append(w.funcs, f)
	w.ws.Set(event, f)
}

func (w *wasmChannel) release() {
	for _, f := range w.funcs {
		f.Release()
	}
	w.funcs = nil
}

func (w *wasmChannel) Send(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	w.ws.Call("send", string(data))
	return nil
}

func (w *wasmChannel) Receive() (Frame, error) {
	select {
	case msg := <-w.messages:
		return ParseFrame(msg)
	case <-w.closed:
		return Frame{}, errors.New("websocket closed")
	}
}

func (w *wasmChannel) Close() error {
	w.ws.Call("close")
	return nil
}

func (w *wasmChannel) IsConnected() bool {
	return w.ws.Get("readyState").Int() == 1 // OPEN
}
