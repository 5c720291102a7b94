package bridge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
)

func TestCall_BoundaryErrorRejectsAndFreesEntry(t *testing.T) {
	boundary := newFakeBoundary()
	boundary.err = errors.New("host gone")
	br := newTestBridge(t, testConfig(bridge.ModeReal), boundary, nil)

	fut := bridge.Call[userInfo](context.Background(), br.Dispatcher(), "appLogin", tagUserInfo, nil)

	_, err := fut.TryResult()
	assert.ErrorIs(t, err, bridge.ErrBoundaryUnavailable)
	assert.Contains(t, err.Error(), "host gone")
	assert.Equal(t, 0, br.Table().Len())
	assert.Equal(t, uint64(1), br.Stats().Rejected)
}

func TestCall_BoundaryPanicIsRecovered(t *testing.T) {
	boundary := newFakeBoundary()
	boundary.panicWith = "TypeError: host.appLogin is not a function"
	br := newTestBridge(t, testConfig(bridge.ModeReal), boundary, nil)

	var fut *bridge.Future[userInfo]
	require.NotPanics(t, func() {
		fut = bridge.Call[userInfo](context.Background(), br.Dispatcher(), "appLogin", tagUserInfo, nil)
	})
	_, err := fut.TryResult()
	assert.ErrorIs(t, err, bridge.ErrBoundaryUnavailable)
	assert.Equal(t, 0, br.Table().Len())
}

func TestCall_NoBoundaryInRealMode(t *testing.T) {
	br := newTestBridge(t, testConfig(bridge.ModeReal), nil, nil)

	_, err := bridge.CallVoid(context.Background(), br.Dispatcher(), "closeView", nil).TryResult()
	assert.ErrorIs(t, err, bridge.ErrBoundaryUnavailable)
}

func TestCall_UnknownDeclaredTagIsRejectedUpFront(t *testing.T) {
	boundary := newFakeBoundary()
	br := newTestBridge(t, testConfig(bridge.ModeReal), boundary, nil)

	_, err := bridge.Call[int](context.Background(), br.Dispatcher(), "mystery", "MysteryResult", nil).TryResult()
	assert.ErrorIs(t, err, bridge.ErrUnknownResultType)
	assert.Empty(t, boundary.Requests())
}

func TestCall_Timeout(t *testing.T) {
	cfg := testConfig(bridge.ModeReal)
	cfg.CallTimeout = 20 * time.Millisecond
	br := newTestBridge(t, cfg, newFakeBoundary(), nil)

	fut := bridge.Call[userInfo](context.Background(), br.Dispatcher(), "appLogin", tagUserInfo, nil)
	_, err := fut.Await(context.Background())
	assert.ErrorIs(t, err, bridge.ErrTimeout)
	assert.Equal(t, 0, br.Table().Len())
	assert.Equal(t, uint64(1), br.Stats().Timeouts)

	// a result after the timeout is stale
	br.OnResult(envelope(t, "cb_0", tagUserInfo, userInfo{}))
	assert.Equal(t, uint64(1), br.Stats().Stale)
}

func TestJanitor_SweepsAbandonedOneShots(t *testing.T) {
	cfg := testConfig(bridge.ModeReal)
	cfg.SweepInterval = 5 * time.Millisecond
	cfg.MaxPendingAge = 20 * time.Millisecond
	br := newTestBridge(t, cfg, newFakeBoundary(), nil)

	sub, err := bridge.Subscribe(context.Background(), br.Dispatcher(), "startUpdateLocation", tagLocation, nil,
		func(location) {})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = bridge.Call[userInfo](ctx, br.Dispatcher(), "appLogin", tagUserInfo, nil).Await(ctx)
	require.ErrorIs(t, err, bridge.ErrTimeout)

	assert.Eventually(t, func() bool { return br.Stats().Timeouts == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{sub.ID()}, br.Table().Pending())
}

func TestCall_ResultBeforeTimeoutStopsTimer(t *testing.T) {
	cfg := testConfig(bridge.ModeReal)
	cfg.CallTimeout = 50 * time.Millisecond
	br := newTestBridge(t, cfg, newFakeBoundary(), nil)

	fut := bridge.Call[userInfo](context.Background(), br.Dispatcher(), "appLogin", tagUserInfo, nil)
	br.OnResult(envelope(t, "cb_0", tagUserInfo, userInfo{UserID: "u1"}))

	got, err := fut.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, uint64(0), br.Stats().Timeouts)
}

func TestCall_AwaitContextCancelRemovesEntry(t *testing.T) {
	br := newTestBridge(t, testConfig(bridge.ModeReal), newFakeBoundary(), nil)
	fut := bridge.Call[userInfo](context.Background(), br.Dispatcher(), "appLogin", tagUserInfo, nil)
	require.Equal(t, 1, br.Table().Len())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := fut.Await(ctx)
	assert.ErrorIs(t, err, bridge.ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, br.Table().Len())
}

func TestCall_CloseCancelsPending(t *testing.T) {
	br := newTestBridge(t, testConfig(bridge.ModeReal), newFakeBoundary(), nil)
	fut := bridge.Call[userInfo](context.Background(), br.Dispatcher(), "appLogin", tagUserInfo, nil)

	require.NoError(t, br.Close())
	_, err := fut.TryResult()
	assert.ErrorIs(t, err, bridge.ErrCancelled)
}

func TestCall_MockPathLeavesTableUntouched(t *testing.T) {
	responder := &fakeResponder{payloads: map[string]string{
		"appLogin": `{"success":true,"userId":"test_user_123"}`,
	}}
	boundary := newFakeBoundary()
	br := newTestBridge(t, testConfig(bridge.ModeMock), boundary, responder)

	fut := bridge.Call[userInfo](context.Background(), br.Dispatcher(), "appLogin", tagUserInfo, nil)

	got, err := fut.TryResult()
	require.NoError(t, err)
	assert.Equal(t, userInfo{Success: true, UserID: "test_user_123"}, got)
	assert.Equal(t, 0, br.Table().Len())
	assert.Empty(t, boundary.Requests())

	// the next real-path id is still cb_0
	assert.Equal(t, "cb_0", br.Table().Register(bridge.TagVoid, nil))
	assert.Equal(t, uint64(1), br.Stats().Mocked)
}

func TestCall_AutoModeFallsBackToResponder(t *testing.T) {
	responder := &fakeResponder{payloads: map[string]string{"getLocale": `"ko-KR"`}}
	boundary := newFakeBoundary()
	boundary.available = false
	br := newTestBridge(t, testConfig(bridge.ModeAuto), boundary, responder)

	got, err := bridge.Call[string](context.Background(), br.Dispatcher(), "getLocale", bridge.TagString, nil).TryResult()
	require.NoError(t, err)
	assert.Equal(t, "ko-KR", got)
	assert.Empty(t, boundary.Requests())
}

func TestCall_MockResponderError(t *testing.T) {
	responder := &fakeResponder{err: errors.New("no canned answer")}
	br := newTestBridge(t, testConfig(bridge.ModeMock), nil, responder)

	_, err := bridge.Call[userInfo](context.Background(), br.Dispatcher(), "appLogin", tagUserInfo, nil).TryResult()
	assert.EqualError(t, err, "no canned answer")
}

func TestCall_MockResponderPanicIsRecovered(t *testing.T) {
	responder := &fakeResponder{panicWith: "slice bounds out of range [-1:]"}
	br := newTestBridge(t, testConfig(bridge.ModeMock), nil, responder)

	var f *bridge.Future[userInfo]
	require.NotPanics(t, func() {
		f = bridge.Call[userInfo](context.Background(), br.Dispatcher(), "fetchContacts", tagUserInfo, nil)
	})
	_, err := f.TryResult()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slice bounds out of range")
	assert.Equal(t, uint64(1), br.Stats().Rejected)

	require.NotPanics(t, func() {
		assert.Error(t, br.Dispatcher().Fire(context.Background(), "vibrate", nil))
	})
}

func TestCall_TypeMismatchRejects(t *testing.T) {
	responder := &fakeResponder{payloads: map[string]string{"appLogin": `{"success":true}`}}
	br := newTestBridge(t, testConfig(bridge.ModeMock), nil, responder)

	_, err := bridge.Call[string](context.Background(), br.Dispatcher(), "appLogin", tagUserInfo, nil).TryResult()
	assert.ErrorIs(t, err, bridge.ErrTagMismatch)
}

func TestCall_RateLimited(t *testing.T) {
	cfg := testConfig(bridge.ModeReal)
	cfg.RateLimit = bridge.RateLimitConfig{Enabled: true, PerSecond: 1, Burst: 2, Capabilities: []string{"eventLog"}}
	boundary := newFakeBoundary()
	br := newTestBridge(t, cfg, boundary, nil)
	d := br.Dispatcher()

	var limited int
	for i := 0; i < 5; i++ {
		if err := d.Fire(context.Background(), "eventLog", map[string]string{"log_name": "click"}); errors.Is(err, bridge.ErrRateLimited) {
			limited++
		}
	}
	assert.Greater(t, limited, 0)

	// capabilities outside the scope are not limited
	for i := 0; i < 5; i++ {
		assert.NoError(t, d.Fire(context.Background(), "closeView", nil))
	}
}

func TestFire_SendsNoOperationID(t *testing.T) {
	boundary := newFakeBoundary()
	br := newTestBridge(t, testConfig(bridge.ModeReal), boundary, nil)

	require.NoError(t, br.Dispatcher().Fire(context.Background(), "vibrate", map[string]int{"duration": 100}))

	reqs := boundary.Requests()
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].OperationID)
	assert.Empty(t, reqs[0].ResultTypeTag)
	assert.Equal(t, 0, br.Table().Len())
	assert.Equal(t, uint64(1), br.Stats().Fired)
}

func TestFire_MockPath(t *testing.T) {
	responder := &fakeResponder{}
	br := newTestBridge(t, testConfig(bridge.ModeMock), nil, responder)

	require.NoError(t, br.Dispatcher().Fire(context.Background(), "trackEvent", nil))
	assert.Equal(t, 1, responder.calls)
}

func TestSubscribe_MockStream(t *testing.T) {
	responder := &fakeResponder{}
	br := newTestBridge(t, testConfig(bridge.ModeMock), nil, responder)

	var got []location
	sub, err := bridge.Subscribe(context.Background(), br.Dispatcher(), "startUpdateLocation", tagLocation, nil,
		func(l location) { got = append(got, l) })
	require.NoError(t, err)
	assert.Empty(t, sub.ID())

	responder.push(mustJSON(t, location{Latitude: 37.5}))
	responder.push("{broken")
	responder.push(mustJSON(t, location{Latitude: 37.6}))
	sub.Stop()
	responder.push(mustJSON(t, location{Latitude: 99}))

	require.Len(t, got, 2)
	assert.Equal(t, 37.6, got[1].Latitude)
	assert.True(t, responder.stopped)
	assert.Equal(t, 0, br.Table().Len())
	assert.Equal(t, uint64(1), br.Stats().DecodeErrors)
}

func TestSubscribe_StopFromInsideCallback(t *testing.T) {
	br := newTestBridge(t, testConfig(bridge.ModeReal), newFakeBoundary(), nil)

	var sub *bridge.Subscription
	count := 0
	sub, err := bridge.Subscribe(context.Background(), br.Dispatcher(), "startUpdateLocation", tagLocation, nil,
		func(location) {
			count++
			sub.Stop()
		})
	require.NoError(t, err)

	br.OnResult(envelope(t, sub.ID(), tagLocation, location{}))
	br.OnResult(envelope(t, sub.ID(), tagLocation, location{}))
	assert.Equal(t, 1, count)
}

func TestSubscribe_CloseEndsStreamWithError(t *testing.T) {
	br := newTestBridge(t, testConfig(bridge.ModeReal), newFakeBoundary(), nil)
	sub, err := bridge.Subscribe(context.Background(), br.Dispatcher(), "startUpdateLocation", tagLocation, nil,
		func(location) {})
	require.NoError(t, err)

	require.NoError(t, br.Close())
	<-sub.Done()
	assert.ErrorIs(t, sub.Err(), bridge.ErrCancelled)
}

func TestSubscribe_BoundaryError(t *testing.T) {
	boundary := newFakeBoundary()
	boundary.err = errors.New("denied")
	br := newTestBridge(t, testConfig(bridge.ModeReal), boundary, nil)

	_, err := bridge.Subscribe(context.Background(), br.Dispatcher(), "startUpdateLocation", tagLocation, nil,
		func(location) {})
	assert.ErrorIs(t, err, bridge.ErrBoundaryUnavailable)
	assert.Equal(t, 0, br.Table().Len())
}

func TestFuture_ThenAndResolved(t *testing.T) {
	done := make(chan string, 1)
	bridge.Resolved("ok").Then(func(v string, err error) {
		assert.NoError(t, err)
		done <- v
	})
	select {
	case v := <-done:
		assert.Equal(t, "ok", v)
	case <-time.After(time.Second):
		t.Fatal("Then never ran")
	}

	_, err := bridge.Rejected[int](bridge.ErrTimeout).TryResult()
	assert.ErrorIs(t, err, bridge.ErrTimeout)
	assert.False(t, bridge.Resolved(1).Cancel(nil))
}
