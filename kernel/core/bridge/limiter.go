package bridge

import (
	"time"

	"github.com/yasserelgammal/rate-limiter/limiter"
	"github.com/yasserelgammal/rate-limiter/store"
)

// Limiter is a per-capability token bucket applied before dispatch.
type Limiter struct {
	bucket *limiter.TokenBucket
	store  store.Store
	scope  map[string]struct{}
}

// NewLimiter returns nil when cfg is disabled.
func NewLimiter(cfg RateLimitConfig) (*Limiter, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	st := store.NewMemoryStore(time.Minute)
	bucket, err := limiter.NewTokenBucket(
		limiter.Config{
			Rate:     int64(cfg.PerSecond),
			Duration: time.Second,
			Burst:    int64(cfg.Burst),
		},
		st,
	)
	if err != nil {
		return nil, err
	}

	l := &Limiter{bucket: bucket, store: st}
	if len(cfg.Capabilities) > 0 {
		l.scope = make(map[string]struct{}, len(cfg.Capabilities))
		for _, c := range cfg.Capabilities {
			l.scope[c] = struct{}{}
		}
	}
	return l, nil
}

// Allow consumes a token for capability. Capabilities outside the
// configured scope are never limited.
func (l *Limiter) Allow(capability string) bool {
	if l == nil {
		return true
	}
	if l.scope != nil {
		if _, limited := l.scope[capability]; !limited {
			return true
		}
	}
	return l.bucket.Allow(capability)
}
