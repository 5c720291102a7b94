package bridge_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
	"github.com/nmxmxh/aitbridge/kernel/utils"
)

const (
	tagUserInfo = "UserInfoResult"
	tagLocation = "LocationResult"
)

type userInfo struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
}

type location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// fakeBoundary records every request and lets tests play the host.
type fakeBoundary struct {
	mu        sync.Mutex
	available bool
	version   string
	err       error
	panicWith interface{}
	requests  []bridge.Request
	cancels   []string
}

func newFakeBoundary() *fakeBoundary {
	return &fakeBoundary{available: true}
}

func (f *fakeBoundary) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeBoundary) Invoke(_ context.Context, req bridge.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.err != nil {
		return f.err
	}
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeBoundary) Cancel(_ context.Context, _ string, operationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels = append(f.cancels, operationID)
	return nil
}

func (f *fakeBoundary) HostVersion() string { return f.version }

func (f *fakeBoundary) Requests() []bridge.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bridge.Request(nil), f.requests...)
}

func (f *fakeBoundary) Cancels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancels...)
}

// fakeResponder answers from a fixed payload map keyed by capability.
type fakeResponder struct {
	mu        sync.Mutex
	payloads  map[string]string
	err       error
	panicWith interface{}
	calls     int
	emit      func(string)
	stopped   bool
}

func (f *fakeResponder) Respond(_ context.Context, req bridge.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	if f.err != nil {
		return "", f.err
	}
	return f.payloads[req.Capability], nil
}

func (f *fakeResponder) RespondStream(_ context.Context, _ bridge.Request, emit func(string)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.emit = emit
	return func() {
		f.mu.Lock()
		f.stopped = true
		f.mu.Unlock()
	}, nil
}

func (f *fakeResponder) push(payload string) {
	f.mu.Lock()
	emit := f.emit
	f.mu.Unlock()
	emit(payload)
}

func testConfig(mode bridge.Mode) bridge.Config {
	cfg := bridge.DefaultConfig()
	cfg.Mode = mode
	cfg.Breaker.Enabled = false
	cfg.RateLimit.Enabled = false
	return cfg
}

func newTestBridge(t *testing.T, cfg bridge.Config, b bridge.Boundary, r bridge.Responder) *bridge.Bridge {
	t.Helper()

	br, err := bridge.New(cfg, b, r, utils.NopLogger())
	require.NoError(t, err)
	require.NoError(t, bridge.RegisterJSON[userInfo](br.Registry(), tagUserInfo))
	require.NoError(t, bridge.RegisterJSON[location](br.Registry(), tagLocation))
	t.Cleanup(func() { _ = br.Close() })
	return br
}

func envelope(t *testing.T, id, tag string, value interface{}) string {
	t.Helper()

	raw, err := bridge.NewEnvelope(id, tag, value)
	require.NoError(t, err)
	return raw
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()

	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}
