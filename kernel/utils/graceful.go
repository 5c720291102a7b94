package utils

import (
	"context"
	"sync"
	"time"
)

type shutdownHook struct {
	name string
	fn   func(context.Context) error
}

// GracefulShutdown runs registered hooks in reverse registration order.
type GracefulShutdown struct {
	mu      sync.Mutex
	hooks   []shutdownHook
	timeout time.Duration
	logger  *Logger
	done    bool
}

// NewGracefulShutdown creates a new graceful shutdown manager
func NewGracefulShutdown(timeout time.Duration, logger *Logger) *GracefulShutdown {
	if logger == nil {
		logger = DefaultLogger("shutdown")
	}

	return &GracefulShutdown{
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a named shutdown hook.
func (g *GracefulShutdown) Register(name string, fn func(context.Context) error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.hooks = append(g.hooks, shutdownHook{name: name, fn: fn})
}

// Shutdown executes hooks LIFO, sequentially, each bounded by the shared
// timeout. It returns the first hook error, or a timeout error. Calling it
// twice is a no-op.
func (g *GracefulShutdown) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	if g.done {
		g.mu.Unlock()
		return nil
	}
	g.done = true
	hooks := make([]shutdownHook, len(g.hooks))
	copy(hooks, g.hooks)
	g.mu.Unlock()

	g.logger.Info("Starting graceful shutdown", Int("components", len(hooks)))

	shutdownCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var firstErr error
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		errCh := make(chan error, 1)
		go func() { errCh <- h.fn(shutdownCtx) }()

		select {
		case err := <-errCh:
			if err != nil {
				g.logger.Error("Shutdown hook failed", String("hook", h.name), Err(err))
				if firstErr == nil {
					firstErr = WrapError(err, h.name)
				}
			}
		case <-shutdownCtx.Done():
			g.logger.Warn("Graceful shutdown timed out", String("hook", h.name))
			return TimeoutError("shutdown")
		}
	}

	g.logger.Info("Graceful shutdown complete")
	return firstErr
}
