package transport_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
	"github.com/nmxmxh/aitbridge/kernel/core/capability"
	"github.com/nmxmxh/aitbridge/kernel/core/transport"
	"github.com/nmxmxh/aitbridge/kernel/utils"
)

func newBridge(t *testing.T, b bridge.Boundary) *bridge.Bridge {
	t.Helper()

	cfg := bridge.DefaultConfig()
	cfg.Mode = bridge.ModeReal
	cfg.RateLimit.Enabled = false
	br, err := bridge.New(cfg, b, nil, utils.NopLogger())
	require.NoError(t, err)
	require.NoError(t, capability.Register(br.Registry()))
	t.Cleanup(func() { _ = br.Close() })
	return br
}

func newScriptHost(t *testing.T, source string) *transport.ScriptHost {
	t.Helper()

	h, err := transport.NewScriptHost(transport.ScriptHostOptions{Source: source, Logger: utils.NopLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestScriptHost_OneShotRoundTrip(t *testing.T) {
	h := newScriptHost(t, "")
	assert.Equal(t, "1.2.0", h.HostVersion())
	assert.True(t, h.Available())

	br := newBridge(t, h)
	h.SetResultHandler(br.OnResult)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	user, err := capability.GetUserInfo.Call(ctx, br.Dispatcher(), struct{}{}).Await(ctx)
	require.NoError(t, err)
	assert.True(t, user.Success)
	assert.Equal(t, capability.MockUserID, user.UserID)

	_, err = capability.SetStorageData.Call(ctx, br.Dispatcher(), capability.StorageSetOptions{Key: "level", Value: "7"}).Await(ctx)
	require.NoError(t, err)
	stored, err := capability.GetStorageData.Call(ctx, br.Dispatcher(), capability.StorageKeyOptions{Key: "level"}).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "7", stored.Value)

	_, err = capability.EventLog.Call(ctx, br.Dispatcher(), capability.EventLogParams{LogName: "open"}).Await(ctx)
	require.NoError(t, err)

	assert.Zero(t, br.Table().Len())
	assert.EqualValues(t, 4, br.Stats().Resolved)
}

func TestScriptHost_LocationStream(t *testing.T) {
	h := newScriptHost(t, "")
	br := newBridge(t, h)
	h.SetResultHandler(br.OnResult)

	var (
		mu     sync.Mutex
		events []capability.Location
	)
	got := make(chan struct{}, 16)
	sub, err := capability.StartUpdateLocation.Start(context.Background(), br.Dispatcher(),
		capability.StartUpdateLocationOptions{TimeInterval: 5},
		func(l capability.Location) {
			mu.Lock()
			events = append(events, l)
			mu.Unlock()
			select {
			case got <- struct{}{}:
			default:
			}
		})
	require.NoError(t, err)
	assert.Equal(t, "cb_0", sub.ID())

	for i := 0; i < 3; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for location events")
		}
	}
	sub.Stop()
	assert.Zero(t, br.Table().Len())

	mu.Lock()
	defer mu.Unlock()
	assert.InDelta(t, 37.5665, events[0].Coords.Latitude, 1e-9)
	assert.Greater(t, events[2].Coords.Latitude, events[0].Coords.Latitude)
	assert.Equal(t, "FINE", events[0].AccessLocation)
}

func TestScriptHost_MissingCapability(t *testing.T) {
	h := newScriptHost(t, "")
	br := newBridge(t, h)
	h.SetResultHandler(br.OnResult)

	_, err := capability.FetchContacts.Call(context.Background(), br.Dispatcher(), capability.FetchContactsOptions{Size: 1}).TryResult()
	assert.ErrorIs(t, err, bridge.ErrBoundaryUnavailable)
	assert.Zero(t, br.Table().Len())
}

func TestScriptHost_ThrowingCapability(t *testing.T) {
	h := newScriptHost(t, `
var AppsInTossBridge = {
  version: '1.0.0',
  boom: function () { throw new Error('host exploded'); },
  cancel: function () {}
};`)

	err := h.Invoke(context.Background(), bridge.Request{Capability: "boom", OperationID: "cb_0", ResultTypeTag: bridge.TagVoid})
	require.ErrorIs(t, err, bridge.ErrBoundaryUnavailable)
	assert.Contains(t, err.Error(), "host exploded")
}

func TestScriptHost_BadScript(t *testing.T) {
	_, err := transport.NewScriptHost(transport.ScriptHostOptions{Source: "var x = 1;", Logger: utils.NopLogger()})
	assert.Error(t, err)

	_, err = transport.NewScriptHost(transport.ScriptHostOptions{Source: "this is not javascript", Logger: utils.NopLogger()})
	assert.Error(t, err)
}

func TestScriptHost_Close(t *testing.T) {
	h, err := transport.NewScriptHost(transport.ScriptHostOptions{Logger: utils.NopLogger()})
	require.NoError(t, err)

	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	assert.False(t, h.Available())

	err = h.Invoke(context.Background(), bridge.Request{Capability: "getUserInfo", OperationID: "cb_0"})
	assert.ErrorIs(t, err, bridge.ErrBoundaryUnavailable)
	assert.NoError(t, h.Cancel(context.Background(), "startUpdateLocation", "cb_0"))
}
