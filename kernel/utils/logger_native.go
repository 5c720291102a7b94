//go:build !js || !wasm
// +build !js !wasm

package utils

import (
	"io"

	"go.uber.org/zap/zapcore"
)

// newCore writes console-encoded entries to out. Native builds have no
// browser console to redirect to.
func newCore(encCfg zapcore.EncoderConfig, out io.Writer, level zapcore.LevelEnabler) zapcore.Core {
	return zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(out), level)
}
