//go:build !js || !wasm

package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
	"github.com/nmxmxh/aitbridge/kernel/core/transport"
	"github.com/nmxmxh/aitbridge/kernel/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// echoHost answers every invoke with a canned user, streams nothing and
// records cancels.
type echoHost struct {
	server  *httptest.Server
	version string
	silent  bool

	mu      sync.Mutex
	cancels []string
}

func newEchoHost(t *testing.T, version string) *echoHost {
	t.Helper()

	h := &echoHost{version: version}
	h.server = httptest.NewServer(http.HandlerFunc(h.handleWS))
	t.Cleanup(h.server.Close)
	return h
}

func (h *echoHost) url() string {
	return strings.Replace(h.server.URL, "http", "ws", 1)
}

func (h *echoHost) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ch := transport.NewChannel(conn)
	defer ch.Close()

	if h.silent {
		time.Sleep(200 * time.Millisecond)
		return
	}
	if err := ch.Send(transport.Frame{Type: transport.FrameHello, Version: h.version}); err != nil {
		return
	}

	for {
		f, err := ch.Receive()
		if err != nil {
			return
		}
		switch f.Type {
		case transport.FrameInvoke:
			switch f.Request.Capability {
			case "swallow":
				// drop the call and hang up
				return
			case "garbage":
				_ = conn.WriteMessage(websocket.TextMessage, []byte("{not json"))
			}
			if f.Request.Capability == "explode" {
				_ = ch.Send(transport.Frame{Type: transport.FrameError, Capability: "explode", OperationID: f.Request.OperationID, Error: "no such capability"})
				continue
			}
			raw, _ := bridge.NewEnvelope(f.Request.OperationID, f.Request.ResultTypeTag, map[string]interface{}{
				"success": true,
				"userId":  "ws_user",
			})
			_ = ch.Send(transport.Frame{Type: transport.FrameResult, Envelope: raw})
		case transport.FrameCancel:
			h.mu.Lock()
			h.cancels = append(h.cancels, f.OperationID)
			h.mu.Unlock()
		}
	}
}

type wsUser struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
}

func TestParseFrame(t *testing.T) {
	f, err := transport.ParseFrame([]byte(`{"type":"result","envelope":"{}"}`))
	require.NoError(t, err)
	assert.Equal(t, transport.FrameResult, f.Type)
	assert.Equal(t, "{}", f.Envelope)

	_, err = transport.ParseFrame([]byte(`{"envelope":"{}"}`))
	assert.ErrorIs(t, err, transport.ErrMalformedFrame)
	_, err = transport.ParseFrame([]byte(`not json`))
	assert.ErrorIs(t, err, transport.ErrMalformedFrame)
}

func TestDevhost_RoundTrip(t *testing.T) {
	host := newEchoHost(t, "1.4.0")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	b, err := transport.DialDevhost(ctx, host.url(), nil, transport.DevhostOptions{Logger: utils.NopLogger()})
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, "1.4.0", b.HostVersion())
	assert.True(t, b.Available())

	br := newBridge(t, b)
	require.NoError(t, bridge.RegisterJSON[wsUser](br.Registry(), "WsUser"))
	b.SetResultHandler(br.OnResult)

	got, err := bridge.Call[wsUser](ctx, br.Dispatcher(), "getUserInfo", "WsUser", nil).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ws_user", got.UserID)
	assert.Zero(t, br.Table().Len())
}

func TestDevhost_CancelAndErrorFrames(t *testing.T) {
	host := newEchoHost(t, "1.4.0")
	ctx := context.Background()

	b, err := transport.DialDevhost(ctx, host.url(), nil, transport.DevhostOptions{Logger: utils.NopLogger()})
	require.NoError(t, err)
	defer b.Close()

	failed := make(chan string, 1)
	b.SetErrorHandler(func(id, msg string) { failed <- id + ": " + msg })

	require.NoError(t, b.Invoke(ctx, bridge.Request{Capability: "explode", OperationID: "cb_9", ResultTypeTag: bridge.TagVoid}))
	require.NoError(t, b.Cancel(ctx, "startUpdateLocation", "cb_3"))

	select {
	case got := <-failed:
		assert.Equal(t, "cb_9: no such capability", got)
	case <-time.After(time.Second):
		t.Fatal("error frame never reached the handler")
	}

	assert.Eventually(t, func() bool {
		host.mu.Lock()
		defer host.mu.Unlock()
		return len(host.cancels) == 1 && host.cancels[0] == "cb_3"
	}, time.Second, 10*time.Millisecond)
}

func TestDevhost_HelloTimeout(t *testing.T) {
	host := newEchoHost(t, "1.4.0")
	host.silent = true

	_, err := transport.DialDevhost(context.Background(), host.url(), nil, transport.DevhostOptions{
		HelloTimeout: 20 * time.Millisecond,
		Logger:       utils.NopLogger(),
	})
	assert.Error(t, err)
}

func TestDevhost_Unreachable(t *testing.T) {
	_, err := transport.DialDevhost(context.Background(), "ws://127.0.0.1:1/ws", nil, transport.DevhostOptions{Logger: utils.NopLogger()})
	assert.Error(t, err)
}

func TestDevhost_ClosedBoundaryRefusesInvoke(t *testing.T) {
	host := newEchoHost(t, "1.4.0")

	b, err := transport.DialDevhost(context.Background(), host.url(), nil, transport.DevhostOptions{Logger: utils.NopLogger()})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	assert.False(t, b.Available())
	err = b.Invoke(context.Background(), bridge.Request{Capability: "getUserInfo", OperationID: "cb_0"})
	assert.ErrorIs(t, err, bridge.ErrBoundaryUnavailable)
}

func TestDevhost_MalformedFrameIsSkipped(t *testing.T) {
	host := newEchoHost(t, "1.4.0")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	b, err := transport.DialDevhost(ctx, host.url(), nil, transport.DevhostOptions{Logger: utils.NopLogger()})
	require.NoError(t, err)
	defer b.Close()

	br := newBridge(t, b)
	require.NoError(t, bridge.RegisterJSON[wsUser](br.Registry(), "WsUser"))
	b.SetResultHandler(br.OnResult)

	got, err := bridge.Call[wsUser](ctx, br.Dispatcher(), "garbage", "WsUser", nil).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ws_user", got.UserID)
	assert.True(t, b.Available())
}

func TestDevhost_ConnectionLossFailsPending(t *testing.T) {
	host := newEchoHost(t, "1.4.0")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	b, err := transport.DialDevhost(ctx, host.url(), nil, transport.DevhostOptions{Logger: utils.NopLogger()})
	require.NoError(t, err)
	defer b.Close()

	br := newBridge(t, b)
	require.NoError(t, bridge.RegisterJSON[wsUser](br.Registry(), "WsUser"))
	b.SetResultHandler(br.OnResult)
	b.SetClosedHandler(func(err error) { br.Table().AbortAll(err) })

	_, err = bridge.Call[wsUser](ctx, br.Dispatcher(), "swallow", "WsUser", nil).Await(ctx)
	require.ErrorIs(t, err, bridge.ErrBoundaryUnavailable)
	assert.Contains(t, err.Error(), "connection lost")
	assert.False(t, b.Available())
	assert.Zero(t, br.Table().Len())

	// a handler installed after the loss still hears about it
	late := make(chan error, 1)
	b.SetClosedHandler(func(err error) { late <- err })
	assert.ErrorIs(t, <-late, bridge.ErrBoundaryUnavailable)
}

func TestDevhost_CloseDoesNotReportLoss(t *testing.T) {
	host := newEchoHost(t, "1.4.0")

	b, err := transport.DialDevhost(context.Background(), host.url(), nil, transport.DevhostOptions{Logger: utils.NopLogger()})
	require.NoError(t, err)

	var calls int
	b.SetClosedHandler(func(error) { calls++ })
	require.NoError(t, b.Close())
	assert.Zero(t, calls)
}
