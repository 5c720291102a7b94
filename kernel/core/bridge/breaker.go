package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/nmxmxh/aitbridge/kernel/utils"
)

// BreakerBoundary fails fast once the wrapped boundary has failed
// MaxFailures times in a row. While open it reports itself unavailable, so
// ModeAuto falls back to the responder.
type BreakerBoundary struct {
	inner  Boundary
	cb     *gobreaker.CircuitBreaker
	logger *utils.Logger
}

// NewBreakerBoundary wraps inner. A disabled config returns inner unchanged.
func NewBreakerBoundary(inner Boundary, cfg BreakerConfig, logger *utils.Logger) Boundary {
	if !cfg.Enabled || inner == nil {
		return inner
	}
	if logger == nil {
		logger = utils.DefaultLogger("breaker")
	}

	b := &BreakerBoundary{inner: inner, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "host-boundary",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("Boundary breaker state change",
				utils.String("breaker", name),
				utils.String("from", from.String()),
				utils.String("to", to.String()))
		},
	})
	return b
}

// State exposes the breaker state for diagnostics.
func (b *BreakerBoundary) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerBoundary) Available() bool {
	return b.cb.State() != gobreaker.StateOpen && b.inner.Available()
}

func (b *BreakerBoundary) Invoke(ctx context.Context, req Request) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.inner.Invoke(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrBoundaryUnavailable, err)
	}
	return err
}

func (b *BreakerBoundary) Cancel(ctx context.Context, capability, operationID string) error {
	return b.inner.Cancel(ctx, capability, operationID)
}

// HostVersion forwards to the wrapped boundary when it reports one.
func (b *BreakerBoundary) HostVersion() string {
	if v, ok := b.inner.(Versioned); ok {
		return v.HostVersion()
	}
	return ""
}
