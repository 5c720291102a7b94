package runtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
	"github.com/nmxmxh/aitbridge/kernel/core/capability"
	"github.com/nmxmxh/aitbridge/kernel/core/transport"
	"github.com/nmxmxh/aitbridge/kernel/runtime"
	"github.com/nmxmxh/aitbridge/kernel/utils"
)

func options(mode bridge.Mode) runtime.Options {
	cfg := bridge.DefaultConfig()
	cfg.Mode = mode
	cfg.RateLimit.Enabled = false
	return runtime.Options{
		Bridge: cfg,
		Logger: utils.NopLogger(),
	}
}

func scriptHostFactory(t *testing.T, hosts *[]*transport.ScriptHost) runtime.BoundaryFactory {
	return func(_ context.Context, onResult func(string)) (bridge.Boundary, error) {
		h, err := transport.NewScriptHost(transport.ScriptHostOptions{Logger: utils.NopLogger()})
		if err != nil {
			return nil, err
		}
		h.SetResultHandler(onResult)
		*hosts = append(*hosts, h)
		return h, nil
	}
}

func TestPlanBoundary(t *testing.T) {
	tests := []struct {
		name    string
		mode    bridge.Mode
		devhost string
		info    runtime.HostInfo
		want    runtime.BoundaryKind
	}{
		{"mock mode never builds one", bridge.ModeMock, "ws://x", runtime.HostInfo{HostObject: true}, runtime.BoundaryNone},
		{"host object wins", bridge.ModeAuto, "ws://x", runtime.HostInfo{HostObject: true, Version: "1.2.0"}, runtime.BoundaryHost},
		{"unversioned host accepted", bridge.ModeAuto, "", runtime.HostInfo{HostObject: true}, runtime.BoundaryHost},
		{"incompatible host falls to devhost", bridge.ModeAuto, "ws://x", runtime.HostInfo{HostObject: true, Version: "3.1.0"}, runtime.BoundaryDevhost},
		{"incompatible host falls to mock", bridge.ModeAuto, "", runtime.HostInfo{HostObject: true, Version: "0.9.0"}, runtime.BoundaryNone},
		{"real mode keeps incompatible host", bridge.ModeReal, "ws://x", runtime.HostInfo{HostObject: true, Version: "3.1.0"}, runtime.BoundaryHost},
		{"devhost without host", bridge.ModeReal, "ws://x", runtime.HostInfo{}, runtime.BoundaryDevhost},
		{"nothing available", bridge.ModeAuto, "", runtime.HostInfo{}, runtime.BoundaryNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := bridge.DefaultConfig()
			cfg.Mode = tt.mode
			assert.Equal(t, tt.want, runtime.PlanBoundary(cfg, tt.devhost, tt.info))
		})
	}
}

func TestHostInfo_InApp(t *testing.T) {
	assert.True(t, runtime.HostInfo{UserAgent: "Mozilla/5.0 TossApp/5.190.0"}.InApp())
	assert.False(t, runtime.HostInfo{UserAgent: "Mozilla/5.0 Chrome/120"}.InApp())
}

func TestRuntime_MockLifecycle(t *testing.T) {
	var (
		mu     sync.Mutex
		events []string
	)
	opts := options(bridge.ModeAuto)
	opts.Notify = func(event string, _ map[string]interface{}) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	}

	r := runtime.New(opts)
	assert.Equal(t, runtime.StateUninitialized, r.State())
	assert.Nil(t, r.Bridge())
	assert.Equal(t, "not_started", r.Stats()["bridge"])

	require.NoError(t, r.Boot())
	assert.Equal(t, "RUNNING", r.StateName())
	assert.Equal(t, runtime.BoundaryNone, r.Boundary())
	assert.NotEmpty(t, r.ID())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	user, err := capability.Login.Call(ctx, r.Bridge().Dispatcher(), capability.LoginOptions{RequestUserInfo: true}).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, capability.MockUserID, user.UserID)

	stats := r.Stats()["bridge"].(map[string]interface{})
	assert.Equal(t, 1, stats["mocked"])

	assert.Error(t, r.Boot(), "boot runs once")

	require.NoError(t, r.Shutdown(context.Background()))
	require.NoError(t, r.Shutdown(context.Background()))
	assert.Equal(t, runtime.StateStopped, r.State())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"bridge:ready", "bridge:shutdown"}, events)
}

func TestRuntime_ScriptHostBoundary(t *testing.T) {
	var hosts []*transport.ScriptHost
	opts := options(bridge.ModeReal)
	opts.Host = runtime.HostInfo{HostObject: true}
	opts.Boundaries = map[runtime.BoundaryKind]runtime.BoundaryFactory{
		runtime.BoundaryHost: scriptHostFactory(t, &hosts),
	}

	r := runtime.New(opts)
	require.NoError(t, r.Boot())
	require.Len(t, hosts, 1)
	assert.Equal(t, runtime.BoundaryHost, r.Boundary())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	status, err := capability.GetNetworkStatus.Call(ctx, r.Bridge().Dispatcher(), struct{}{}).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "WIFI", status.Type)
	assert.EqualValues(t, 1, r.Bridge().Stats().Dispatched)

	require.NoError(t, r.Shutdown(context.Background()))
	assert.False(t, hosts[0].Available(), "shutdown closes the boundary")
}

func TestRuntime_RealModeWithoutFactory(t *testing.T) {
	opts := options(bridge.ModeReal)
	opts.DevhostURL = "ws://127.0.0.1:1/ws"

	r := runtime.New(opts)
	err := r.Boot()
	require.ErrorIs(t, err, bridge.ErrBoundaryUnavailable)
	assert.Equal(t, runtime.StateUninitialized, r.State())
}

func TestRuntime_AutoModeSurvivesBoundaryFailure(t *testing.T) {
	opts := options(bridge.ModeAuto)
	opts.DevhostURL = "ws://127.0.0.1:1/ws"
	opts.Boundaries = map[runtime.BoundaryKind]runtime.BoundaryFactory{
		runtime.BoundaryDevhost: func(context.Context, func(string)) (bridge.Boundary, error) {
			return nil, errors.New("connection refused")
		},
	}

	r := runtime.New(opts)
	require.NoError(t, r.Boot())
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })

	_, err := capability.GetUserInfo.Call(context.Background(), r.Bridge().Dispatcher(), struct{}{}).TryResult()
	require.NoError(t, err)
}

func TestRuntime_PanicDuringBoot(t *testing.T) {
	var got []string
	opts := options(bridge.ModeAuto)
	opts.Host = runtime.HostInfo{HostObject: true}
	opts.Notify = func(event string, _ map[string]interface{}) { got = append(got, event) }
	opts.Boundaries = map[runtime.BoundaryKind]runtime.BoundaryFactory{
		runtime.BoundaryHost: func(context.Context, func(string)) (bridge.Boundary, error) {
			panic("host object vanished")
		},
	}

	r := runtime.New(opts)
	err := r.Boot()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host object vanished")
	assert.Equal(t, runtime.StatePanic, r.State())
	assert.Equal(t, []string{"bridge:panic"}, got)
}

func TestRuntime_PersistAndRestore(t *testing.T) {
	var snapshot []byte
	opts := options(bridge.ModeMock)
	opts.Persist = func(b []byte) error {
		snapshot = append([]byte(nil), b...)
		return nil
	}

	r := runtime.New(opts)
	require.NoError(t, r.Boot())
	_, err := capability.SetStorageData.Call(context.Background(), r.Bridge().Dispatcher(),
		capability.StorageSetOptions{Key: "level", Value: "7"}).TryResult()
	require.NoError(t, err)
	require.NoError(t, r.Shutdown(context.Background()))
	require.NotEmpty(t, snapshot)

	opts = options(bridge.ModeMock)
	opts.Restore = snapshot
	r2 := runtime.New(opts)
	require.NoError(t, r2.Boot())
	t.Cleanup(func() { _ = r2.Shutdown(context.Background()) })

	got, err := capability.GetStorageData.Call(context.Background(), r2.Bridge().Dispatcher(),
		capability.StorageKeyOptions{Key: "level"}).TryResult()
	require.NoError(t, err)
	assert.Equal(t, "7", got.Value)
}

func TestRuntime_CorruptRestoreIsIgnored(t *testing.T) {
	opts := options(bridge.ModeMock)
	opts.Restore = []byte("definitely not brotli")

	r := runtime.New(opts)
	require.NoError(t, r.Boot())
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })
	assert.Zero(t, r.Store().Len())
}
