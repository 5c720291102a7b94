//go:build js && wasm
// +build js,wasm

package utils

import (
	"io"
	"strings"
	"syscall/js"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// consoleSink forwards each encoded line to one console method.
type consoleSink struct {
	method string
}

func (c consoleSink) Write(p []byte) (int, error) {
	console := js.Global().Get("console")
	if isValueNil(console) {
		return len(p), nil
	}
	console.Call(c.method, strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func (c consoleSink) Sync() error { return nil }

// newCore redirects logs to the browser's JS console, one core per console
// method so devtools level filtering keeps working. out is ignored: stdout
// in wasm_exec.js already ends up in console.log.
func newCore(encCfg zapcore.EncoderConfig, _ io.Writer, level zapcore.LevelEnabler) zapcore.Core {
	// ANSI colours are noise in devtools.
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)

	split := func(method string, match func(zapcore.Level) bool) zapcore.Core {
		return zapcore.NewCore(enc.Clone(), consoleSink{method: method}, zap.LevelEnablerFunc(func(l zapcore.Level) bool {
			return level.Enabled(l) && match(l)
		}))
	}

	return zapcore.NewTee(
		split("debug", func(l zapcore.Level) bool { return l == zapcore.DebugLevel }),
		split("info", func(l zapcore.Level) bool { return l == zapcore.InfoLevel }),
		split("warn", func(l zapcore.Level) bool { return l == zapcore.WarnLevel }),
		split("error", func(l zapcore.Level) bool { return l >= zapcore.ErrorLevel }),
	)
}

// isValueNil helper for js.Value
func isValueNil(v js.Value) bool {
	return v.Type() == js.TypeNull || v.Type() == js.TypeUndefined
}
