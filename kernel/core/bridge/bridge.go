package bridge

import (
	"fmt"
	"sync"
	"time"

	"github.com/nmxmxh/aitbridge/kernel/utils"
)

// Bridge wires the pending-operation table, the registry, the router and
// the dispatcher around one environment.
type Bridge struct {
	config     Config
	table      *Table
	registry   *Registry
	router     *Router
	dispatcher *Dispatcher
	env        *Environment
	stats      *Stats
	logger     *utils.Logger

	closeOnce sync.Once
	stop      chan struct{}
	janitor   sync.WaitGroup
}

// New assembles a bridge. boundary and responder may each be nil. The
// boundary is wrapped in a circuit breaker and its reported host version
// is checked against cfg.HostVersionConstraint: in ModeReal an
// incompatible host is an error, in ModeAuto it is bypassed in favour of
// the responder.
func New(cfg Config, boundary Boundary, responder Responder, logger *utils.Logger) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = utils.DefaultLogger("bridge")
	}

	if boundary != nil {
		if v, ok := boundary.(Versioned); ok {
			if err := CheckHostVersion(v.HostVersion(), cfg.HostVersionConstraint); err != nil {
				if cfg.Mode == ModeReal {
					return nil, err
				}
				logger.Warn("Host bridge version rejected, using local responder",
					utils.String("version", v.HostVersion()),
					utils.String("constraint", cfg.HostVersionConstraint),
					utils.Err(err))
				boundary = nil
			}
		}
	}
	if boundary != nil {
		boundary = NewBreakerBoundary(boundary, cfg.Breaker, logger.Named("breaker"))
	}

	limiter, err := NewLimiter(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("bridge: rate limiter: %w", err)
	}

	b := &Bridge{
		config:   cfg,
		table:    NewTable(cfg.IDPrefix),
		registry: NewRegistry(),
		env:      NewEnvironment(cfg.Mode, boundary, responder),
		stats:    &Stats{},
		logger:   logger,
		stop:     make(chan struct{}),
	}
	b.router = NewRouter(b.table, b.registry, cfg.StaleFilter, b.stats, logger.Named("router"))
	b.dispatcher = NewDispatcher(b.table, b.registry, b.env, DispatcherOptions{
		Limiter: limiter,
		Timeout: cfg.CallTimeout,
		Stats:   b.stats,
		Logger:  logger.Named("dispatch"),
	})

	if cfg.SweepInterval > 0 && cfg.MaxPendingAge > 0 {
		b.startJanitor(cfg.SweepInterval, cfg.MaxPendingAge)
	}

	logger.Info("Bridge ready",
		utils.String("mode", cfg.Mode.String()),
		utils.Bool("boundary", boundary != nil),
		utils.Bool("responder", responder != nil))
	return b, nil
}

// Config returns the configuration the bridge was built with.
func (b *Bridge) Config() Config { return b.config }

// Table exposes the pending-operation table.
func (b *Bridge) Table() *Table { return b.table }

// Registry exposes the result type registry for capability registration.
func (b *Bridge) Registry() *Registry { return b.registry }

// Router is the inbound entry point to expose to the host.
func (b *Bridge) Router() *Router { return b.router }

// Dispatcher is passed to Call, CallVoid and Subscribe.
func (b *Bridge) Dispatcher() *Dispatcher { return b.dispatcher }

// Environment exposes the path switch.
func (b *Bridge) Environment() *Environment { return b.env }

// OnResult forwards one serialized envelope to the router.
func (b *Bridge) OnResult(raw string) { b.router.OnResult(raw) }

// Stats returns the current counters with the pending count filled in.
func (b *Bridge) Stats() StatsSnapshot {
	s := b.stats.Snapshot()
	s.Pending = b.table.Len()
	return s
}

// startJanitor sweeps abandoned one-shot operations until Close.
func (b *Bridge) startJanitor(interval, maxAge time.Duration) {
	b.janitor.Add(1)
	go func() {
		defer b.janitor.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-b.stop:
				return
			case <-ticker.C:
				expired := b.table.Sweep(maxAge, fmt.Errorf("%w: pending longer than %s", ErrTimeout, maxAge))
				if len(expired) > 0 {
					b.stats.timeouts.Add(uint64(len(expired)))
					b.logger.Warn("Swept abandoned operations",
						utils.Int("count", len(expired)),
						utils.Any("operation_ids", expired))
				}
			}
		}
	}()
}

// Close stops the janitor and fails every pending operation with
// ErrCancelled.
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		close(b.stop)
		b.janitor.Wait()

		if ids := b.table.Pending(); len(ids) > 0 {
			b.logger.Debug("Cancelling pending operations", utils.Any("operation_ids", ids))
		}
		n := b.table.AbortAll(ErrCancelled)
		if n > 0 {
			b.logger.Info("Cancelled pending operations on close", utils.Int("count", n))
		}
	})
	return nil
}
