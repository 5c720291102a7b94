package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nmxmxh/aitbridge/kernel/core/bridge"
	"github.com/nmxmxh/aitbridge/kernel/utils"
)

// DevhostBoundary speaks the boundary contract to a devhost over a
// websocket. Results arrive as frames and are fed to onResult in order.
type DevhostBoundary struct {
	ch       Channel
	onResult func(string)
	onError  func(operationID, message string)
	onClosed func(err error)
	logger   *utils.Logger

	mu      sync.RWMutex
	version string
	closed  bool
	lostErr error
	done    chan struct{}
}

// DevhostOptions configures DialDevhost.
type DevhostOptions struct {
	// How long to wait for the devhost hello. Zero means 5s.
	HelloTimeout time.Duration
	Logger       *utils.Logger
}

// DialDevhost connects to url and waits for the devhost hello frame.
// onResult is normally bridge.Router.OnResult; it may be set later with
// SetResultHandler.
func DialDevhost(ctx context.Context, url string, onResult func(string), opts DevhostOptions) (*DevhostBoundary, error) {
	if opts.Logger == nil {
		opts.Logger = utils.DefaultLogger("devhost-client")
	}
	if opts.HelloTimeout <= 0 {
		opts.HelloTimeout = 5 * time.Second
	}

	ch, err := dialChannel(ctx, url)
	if err != nil {
		return nil, utils.WrapErrorf(err, "dial devhost %s", url)
	}

	b := &DevhostBoundary{
		ch:       ch,
		onResult: onResult,
		logger:   opts.Logger,
		done:     make(chan struct{}),
	}

	hello := make(chan Frame, 1)
	helloErr := make(chan error, 1)
	go func() {
		f, err := ch.Receive()
		if err != nil {
			helloErr <- err
			return
		}
		hello <- f
	}()

	select {
	case f := <-hello:
		if f.Type != FrameHello {
			ch.Close()
			return nil, fmt.Errorf("devhost: expected hello, got %q", f.Type)
		}
		b.version = f.Version
	case err := <-helloErr:
		ch.Close()
		return nil, utils.WrapError(err, "devhost hello")
	case <-time.After(opts.HelloTimeout):
		ch.Close()
		return nil, errors.New("devhost: timed out waiting for hello")
	case <-ctx.Done():
		ch.Close()
		return nil, ctx.Err()
	}

	b.logger.Info("Connected to devhost", utils.String("url", url), utils.String("version", b.version))
	go b.receiveLoop()
	return b, nil
}

// SetResultHandler replaces the inbound result callback.
func (b *DevhostBoundary) SetResultHandler(fn func(string)) {
	b.mu.Lock()
	b.onResult = fn
	b.mu.Unlock()
}

// SetErrorHandler is called for every error frame that names an
// operation, typically to abort it in the pending table.
func (b *DevhostBoundary) SetErrorHandler(fn func(operationID, message string)) {
	b.mu.Lock()
	b.onError = fn
	b.mu.Unlock()
}

// SetClosedHandler is called once if the connection drops without Close.
// No result can arrive after that, so the handler normally aborts every
// pending operation with err, which wraps bridge.ErrBoundaryUnavailable.
// If the connection is already gone fn runs immediately.
func (b *DevhostBoundary) SetClosedHandler(fn func(err error)) {
	b.mu.Lock()
	b.onClosed = fn
	lost := b.lostErr
	b.mu.Unlock()

	if lost != nil && fn != nil {
		fn(lost)
	}
}

func (b *DevhostBoundary) receiveLoop() {
	defer close(b.done)
	for {
		f, err := b.ch.Receive()
		if errors.Is(err, ErrMalformedFrame) {
			b.logger.Warn("Skipping malformed devhost frame", utils.Err(err))
			continue
		}
		if err != nil {
			b.connectionLost(err)
			return
		}

		switch f.Type {
		case FrameResult:
			b.mu.RLock()
			fn := b.onResult
			b.mu.RUnlock()
			if fn != nil {
				fn(f.Envelope)
			}
		case FrameError:
			b.logger.Warn("Devhost reported error",
				utils.String("capability", f.Capability),
				utils.String("operation_id", f.OperationID),
				utils.String("error", f.Error))
			b.mu.RLock()
			fn := b.onError
			b.mu.RUnlock()
			if fn != nil && f.OperationID != "" {
				fn(f.OperationID, f.Error)
			}
		default:
			b.logger.Debug("Ignoring devhost frame", utils.String("type", f.Type))
		}
	}
}

func (b *DevhostBoundary) connectionLost(cause error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.lostErr = fmt.Errorf("%w: devhost connection lost: %v", bridge.ErrBoundaryUnavailable, cause)
	fn, lost := b.onClosed, b.lostErr
	b.mu.Unlock()

	b.logger.Warn("Devhost connection lost", utils.Err(cause))
	if fn != nil {
		fn(lost)
	}
}

func (b *DevhostBoundary) markClosed() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
}

// Available reports whether the websocket is still up.
func (b *DevhostBoundary) Available() bool {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	return !closed && b.ch.IsConnected()
}

// Invoke sends the request as an invoke frame.
func (b *DevhostBoundary) Invoke(_ context.Context, req bridge.Request) error {
	if !b.Available() {
		return fmt.Errorf("%w: devhost disconnected", bridge.ErrBoundaryUnavailable)
	}
	r := req
	if err := b.ch.Send(Frame{Type: FrameInvoke, Request: &r}); err != nil {
		return fmt.Errorf("%w: %v", bridge.ErrBoundaryUnavailable, err)
	}
	return nil
}

// Cancel asks the devhost to stop a stream.
func (b *DevhostBoundary) Cancel(_ context.Context, capability, operationID string) error {
	if !b.Available() {
		return nil
	}
	return b.ch.Send(Frame{Type: FrameCancel, Capability: capability, OperationID: operationID})
}

// HostVersion is the version announced in the hello frame.
func (b *DevhostBoundary) HostVersion() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// Close shuts the connection and waits for the receive loop to exit.
func (b *DevhostBoundary) Close() error {
	b.markClosed()
	err := b.ch.Close()
	<-b.done
	return err
}
