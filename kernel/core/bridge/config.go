package bridge

import (
	"fmt"
	"time"

	"github.com/nmxmxh/aitbridge/kernel/utils"
)

// BreakerConfig controls the circuit breaker around the real boundary.
type BreakerConfig struct {
	Enabled bool
	// Consecutive invoke failures before the breaker opens.
	MaxFailures uint32
	// How long the breaker stays open before letting probes through.
	OpenTimeout time.Duration
	// Probes allowed while half-open.
	HalfOpenRequests uint32
}

// RateLimitConfig throttles dispatch per capability.
type RateLimitConfig struct {
	Enabled   bool
	PerSecond int
	Burst     int
	// Capabilities limited; empty means all.
	Capabilities []string
}

// StaleFilterConfig sizes the bloom filter of recently resolved ids.
type StaleFilterConfig struct {
	ExpectedElements  uint
	FalsePositiveRate float64
}

// Config holds bridge configuration.
type Config struct {
	Mode     Mode
	IDPrefix string
	// Zero disables the per-call timeout; abandoned operations then stay
	// pending until cancelled or swept.
	CallTimeout time.Duration
	// With both set, a janitor aborts one-shot operations older than
	// MaxPendingAge every SweepInterval. Streams are never swept.
	SweepInterval time.Duration
	MaxPendingAge time.Duration
	// Global JS object carrying the host capability functions.
	HostObject string
	// Semver constraint the host bridge version must satisfy. Empty skips
	// the check.
	HostVersionConstraint string
	Breaker               BreakerConfig
	RateLimit             RateLimitConfig
	StaleFilter           StaleFilterConfig
	LogLevel              utils.LogLevel
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Mode:                  ModeAuto,
		IDPrefix:              DefaultIDPrefix,
		HostObject:            "AppsInTossBridge",
		HostVersionConstraint: ">= 1.0.0, < 3.0.0",
		Breaker: BreakerConfig{
			Enabled:          true,
			MaxFailures:      5,
			OpenTimeout:      10 * time.Second,
			HalfOpenRequests: 1,
		},
		RateLimit: RateLimitConfig{
			Enabled:      true,
			PerSecond:    20,
			Burst:        40,
			Capabilities: []string{"eventLog", "trackEvent", "generateHapticFeedback", "vibrate"},
		},
		StaleFilter: StaleFilterConfig{
			ExpectedElements:  10000,
			FalsePositiveRate: 0.01,
		},
		LogLevel: utils.INFO,
	}
}

// Validate rejects configurations the bridge cannot run with.
func (c Config) Validate() error {
	if c.CallTimeout < 0 {
		return fmt.Errorf("bridge config: negative call timeout %s", c.CallTimeout)
	}
	if c.SweepInterval < 0 || c.MaxPendingAge < 0 {
		return fmt.Errorf("bridge config: negative sweep interval or pending age")
	}
	if c.HostObject == "" {
		return fmt.Errorf("bridge config: host object name is empty")
	}
	if c.RateLimit.Enabled && (c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("bridge config: rate limit needs positive rate and burst")
	}
	if c.StaleFilter.FalsePositiveRate <= 0 || c.StaleFilter.FalsePositiveRate >= 1 {
		return fmt.Errorf("bridge config: stale filter false positive rate must be in (0,1)")
	}
	if c.StaleFilter.ExpectedElements == 0 {
		return fmt.Errorf("bridge config: stale filter needs expected elements")
	}
	if c.HostVersionConstraint != "" {
		if _, err := parseConstraint(c.HostVersionConstraint); err != nil {
			return fmt.Errorf("bridge config: %w", err)
		}
	}
	return nil
}
