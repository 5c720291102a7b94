//go:build js && wasm
// +build js,wasm

package main

import (
	"encoding/base64"
	"syscall/js"
	"time"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
	"github.com/nmxmxh/aitbridge/kernel/utils"
)

// BootConfig is everything the page can tune before the bridge starts.
type BootConfig struct {
	Bridge     bridge.Config
	DevhostURL string
	// localStorage key holding the mock storage snapshot; empty disables
	// persistence.
	PersistKey string
}

func loadConfig() BootConfig {
	config := BootConfig{
		Bridge:     bridge.DefaultConfig(),
		PersistKey: "__ait_storage__",
	}

	raw := js.Global().Get("__AIT_BRIDGE_CONFIG__")
	if raw.Type() != js.TypeObject {
		return config
	}

	cfg := &config.Bridge
	if v := raw.Get("mode"); v.Type() == js.TypeString {
		if mode, err := bridge.ParseMode(v.String()); err == nil {
			cfg.Mode = mode
		} else {
			utils.Warn("Ignoring bridge mode override", utils.Err(err))
		}
	}
	if v := raw.Get("idPrefix"); v.Type() == js.TypeString {
		cfg.IDPrefix = v.String()
	}
	if v := raw.Get("callTimeoutMs"); v.Type() == js.TypeNumber {
		cfg.CallTimeout = time.Duration(v.Int()) * time.Millisecond
	}
	if v := raw.Get("sweepIntervalMs"); v.Type() == js.TypeNumber {
		cfg.SweepInterval = time.Duration(v.Int()) * time.Millisecond
	}
	if v := raw.Get("maxPendingAgeMs"); v.Type() == js.TypeNumber {
		cfg.MaxPendingAge = time.Duration(v.Int()) * time.Millisecond
	}
	if v := raw.Get("hostObject"); v.Type() == js.TypeString {
		cfg.HostObject = v.String()
	}
	if v := raw.Get("hostVersionConstraint"); v.Type() == js.TypeString {
		cfg.HostVersionConstraint = v.String()
	}
	if v := raw.Get("logLevel"); v.Type() == js.TypeString {
		cfg.LogLevel = utils.ParseLogLevel(v.String())
	}
	if v := raw.Get("breaker"); v.Type() == js.TypeObject {
		applyBreakerOverrides(&cfg.Breaker, v)
	}
	if v := raw.Get("rateLimit"); v.Type() == js.TypeObject {
		applyRateLimitOverrides(&cfg.RateLimit, v)
	}
	if v := raw.Get("staleFilter"); v.Type() == js.TypeObject {
		if n := v.Get("expectedElements"); n.Type() == js.TypeNumber {
			cfg.StaleFilter.ExpectedElements = uint(n.Int())
		}
		if n := v.Get("falsePositiveRate"); n.Type() == js.TypeNumber {
			cfg.StaleFilter.FalsePositiveRate = n.Float()
		}
	}

	if v := raw.Get("devhostUrl"); v.Type() == js.TypeString {
		config.DevhostURL = v.String()
	}
	if v := raw.Get("persistKey"); v.Type() == js.TypeString {
		config.PersistKey = v.String()
	}

	utils.Info("Bridge config loaded",
		utils.String("mode", cfg.Mode.String()),
		utils.String("host_object", cfg.HostObject),
		utils.String("devhost", config.DevhostURL))
	return config
}

func applyBreakerOverrides(cfg *bridge.BreakerConfig, raw js.Value) {
	if v := raw.Get("enabled"); v.Type() == js.TypeBoolean {
		cfg.Enabled = v.Bool()
	}
	if v := raw.Get("maxFailures"); v.Type() == js.TypeNumber {
		cfg.MaxFailures = uint32(v.Int())
	}
	if v := raw.Get("openTimeoutMs"); v.Type() == js.TypeNumber {
		cfg.OpenTimeout = time.Duration(v.Int()) * time.Millisecond
	}
	if v := raw.Get("halfOpenRequests"); v.Type() == js.TypeNumber {
		cfg.HalfOpenRequests = uint32(v.Int())
	}
}

func applyRateLimitOverrides(cfg *bridge.RateLimitConfig, raw js.Value) {
	if v := raw.Get("enabled"); v.Type() == js.TypeBoolean {
		cfg.Enabled = v.Bool()
	}
	if v := raw.Get("perSecond"); v.Type() == js.TypeNumber {
		cfg.PerSecond = v.Int()
	}
	if v := raw.Get("burst"); v.Type() == js.TypeNumber {
		cfg.Burst = v.Int()
	}
	if v := raw.Get("capabilities"); v.Type() == js.TypeObject {
		cfg.Capabilities = readStringSlice(v)
	}
}

func readStringSlice(val js.Value) []string {
	if val.IsUndefined() || val.IsNull() {
		return nil
	}
	length := val.Length()
	out := make([]string, 0, length)
	for i := 0; i < length; i++ {
		item := val.Index(i)
		if item.Type() == js.TypeString {
			out = append(out, item.String())
		}
	}
	return out
}

func localStorage() js.Value {
	return js.Global().Get("localStorage")
}

// loadSnapshot reads the base64 storage snapshot left by a previous page.
func loadSnapshot(key string) []byte {
	if key == "" || !localStorage().Truthy() {
		return nil
	}
	item := localStorage().Call("getItem", key)
	if item.Type() != js.TypeString {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(item.String())
	if err != nil {
		utils.Warn("Discarding undecodable storage snapshot", utils.String("key", key), utils.Err(err))
		return nil
	}
	return data
}

func saveSnapshot(key string, data []byte) error {
	if key == "" || !localStorage().Truthy() {
		return nil
	}
	localStorage().Call("setItem", key, base64.StdEncoding.EncodeToString(data))
	return nil
}
