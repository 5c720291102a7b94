package bridge

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/nmxmxh/aitbridge/kernel/utils"
)

// Router is the single inbound entry point reachable from the host. It is
// reentrant: concurrent OnResult calls are safe because Table.Resolve
// removes one-shot entries atomically.
type Router struct {
	table    *Table
	registry *Registry
	stats    *Stats
	logger   *utils.Logger

	// ids resolved recently, to tell duplicates from ids never issued
	staleMu     sync.Mutex
	resolved    *bloom.BloomFilter
	seen        uint
	staleConfig StaleFilterConfig
}

// NewRouter creates a router over table and registry. stats may be nil.
func NewRouter(table *Table, registry *Registry, cfg StaleFilterConfig, stats *Stats, logger *utils.Logger) *Router {
	if logger == nil {
		logger = utils.DefaultLogger("router")
	}
	if stats == nil {
		stats = &Stats{}
	}
	if cfg.ExpectedElements == 0 {
		cfg = DefaultConfig().StaleFilter
	}

	return &Router{
		table:       table,
		registry:    registry,
		stats:       stats,
		logger:      logger,
		resolved:    bloom.NewWithEstimates(cfg.ExpectedElements, cfg.FalsePositiveRate),
		staleConfig: cfg,
	}
}

// OnResult accepts one serialized envelope. It never panics and never
// returns an error: every failure is logged, counted and dropped.
func (r *Router) OnResult(raw string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Recovered panic while routing result",
				utils.Any("reason", rec),
				utils.String("stack", string(debug.Stack())))
		}
	}()

	env, err := ParseEnvelope(raw)
	if err != nil {
		r.stats.malformed.Add(1)
		r.logger.Error("Dropping malformed envelope", utils.Err(err), utils.Int("length", len(raw)))
		return
	}

	if err := r.Route(env); err != nil {
		r.logRouteError(env, err)
	}
}

// Route delivers a parsed envelope. The returned error classifies why
// nothing was resolved; callers at the boundary should log, not propagate.
func (r *Router) Route(env Envelope) error {
	if !r.registry.Has(env.ResultTypeTag) {
		r.stats.unknownTag.Add(1)
		return fmt.Errorf("%w: %q for %s", ErrUnknownResultType, env.ResultTypeTag, env.OperationID)
	}

	declared, stream, ok := r.table.Lookup(env.OperationID)
	if !ok {
		return r.staleError(env.OperationID)
	}
	if declared != env.ResultTypeTag {
		r.stats.tagMismatch.Add(1)
		return fmt.Errorf("%w: %s declared %q, host sent %q",
			ErrTagMismatch, env.OperationID, declared, env.ResultTypeTag)
	}

	value, err := r.registry.Decode(env.ResultTypeTag, env.ResultPayload)
	if err != nil {
		r.stats.decodeErrors.Add(1)
		return fmt.Errorf("%s: %w", env.OperationID, err)
	}

	if !r.table.Resolve(env.OperationID, value) {
		// Lost a race with a concurrent resolve or cancel.
		return r.staleError(env.OperationID)
	}

	if stream {
		r.stats.events.Add(1)
		return nil
	}
	r.stats.resolved.Add(1)
	r.markResolved(env.OperationID)
	return nil
}

func (r *Router) staleError(id string) error {
	r.stats.stale.Add(1)
	if r.recentlyResolved(id) {
		return fmt.Errorf("%w: %s already resolved", ErrStaleOperation, id)
	}
	return fmt.Errorf("%w: %s not pending", ErrStaleOperation, id)
}

func (r *Router) markResolved(id string) {
	r.staleMu.Lock()
	defer r.staleMu.Unlock()

	// Reset rather than let the false positive rate drift upward.
	if r.seen >= r.staleConfig.ExpectedElements {
		r.resolved.ClearAll()
		r.seen = 0
	}
	r.resolved.AddString(id)
	r.seen++
}

func (r *Router) recentlyResolved(id string) bool {
	r.staleMu.Lock()
	defer r.staleMu.Unlock()
	return r.resolved.TestString(id)
}

func (r *Router) logRouteError(env Envelope, err error) {
	fields := []utils.Field{
		utils.String("operation_id", env.OperationID),
		utils.String("tag", env.ResultTypeTag),
		utils.Err(err),
	}
	switch {
	case errors.Is(err, ErrStaleOperation):
		r.logger.Debug("Ignoring result for stale operation", fields...)
	case errors.Is(err, ErrUnknownResultType):
		r.logger.Warn("Dropping result with unknown type tag", fields...)
	default:
		r.logger.Error("Dropping undeliverable result", fields...)
	}
}
