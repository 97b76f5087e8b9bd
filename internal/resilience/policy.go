// Package resilience guards calls to remote services (the extraction LLM,
// the embedding API) with bounded retries and a per-operation circuit
// breaker.
package resilience

import "time"

// Config controls retry backoff and breaker trip conditions.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64

	BreakerEnabled     bool
	BreakerMinRequests uint32
	BreakerRatio       float64
	BreakerCooldown    time.Duration
	BreakerProbes      uint32
}

// DefaultConfig returns three attempts with 250ms..2s backoff and a
// breaker that opens at a 60% failure ratio over at least 5 calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,

		BreakerEnabled:     true,
		BreakerMinRequests: 5,
		BreakerRatio:       0.6,
		BreakerCooldown:    30 * time.Second,
		BreakerProbes:      1,
	}
}

// withDefaults fills zero or out-of-range values from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialBackoff < 0 {
		c.InitialBackoff = 0
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.Multiplier < 1 {
		c.Multiplier = def.Multiplier
	}
	if c.BreakerMinRequests == 0 {
		c.BreakerMinRequests = def.BreakerMinRequests
	}
	if c.BreakerRatio <= 0 || c.BreakerRatio > 1 {
		c.BreakerRatio = def.BreakerRatio
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = def.BreakerCooldown
	}
	if c.BreakerProbes == 0 {
		c.BreakerProbes = def.BreakerProbes
	}
	return c
}
