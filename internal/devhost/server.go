//go:build !js || !wasm

// Package devhost serves the host side of the bridge over a websocket so a
// mini-app can run against a desktop process instead of the real app.
package devhost

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
	"github.com/nmxmxh/aitbridge/kernel/core/transport"
	"github.com/nmxmxh/aitbridge/kernel/utils"
)

// DefaultVersion is announced in the hello frame when none is configured.
const DefaultVersion = "1.2.0"

type Options struct {
	Version string
	// Origins allowed to connect; empty allows any.
	AllowedOrigins []string
	Logger         *utils.Logger
}

// Server answers invoke frames with a bridge.Responder, one session per
// websocket connection.
type Server struct {
	responder bridge.Responder
	version   string
	logger    *utils.Logger
	upgrader  websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[*session]struct{}
	wg       sync.WaitGroup

	served   atomic.Uint64
	streams  atomic.Uint64
	failures atomic.Uint64
}

// NewServer builds a server. It implements http.Handler.
func NewServer(responder bridge.Responder, opts Options) *Server {
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}
	if opts.Logger == nil {
		opts.Logger = utils.DefaultLogger("devhost")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		responder: responder,
		version:   opts.Version,
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[*session]struct{}),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: originChecker(opts.AllowedOrigins)}
	return s
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.Header.Get("Origin")]
		return ok
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", utils.String("remote", r.RemoteAddr), utils.Err(err))
		return
	}

	sess := newSession(s, transport.NewChannel(conn), r.RemoteAddr)
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		s.wg.Done()
	}()

	sess.run(s.ctx)
}

// Sessions is the number of connected clients.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Stats reports counters since start.
func (s *Server) Stats() map[string]interface{} {
	return map[string]interface{}{
		"sessions": s.Sessions(),
		"served":   int(s.served.Load()),
		"streams":  int(s.streams.Load()),
		"failures": int(s.failures.Load()),
	}
}

// Shutdown closes every session and waits for them to finish or ctx to
// end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	for sess := range s.sessions {
		sess.close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("Devhost stopped", utils.Any("stats", s.Stats()))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
