package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig controls how often and how far apart Do retries. Zero fields
// take the DatastoreRetryConfig value.
type RetryConfig struct {
	// MaxAttempts counts the first call; 1 disables retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// JitterFraction spreads each delay by up to ± this fraction.
	JitterFraction float64

	// ShouldRetry replaces IsTransient when set.
	ShouldRetry func(err error) bool
	// OnRetry runs before each sleep with the 1-based retry number.
	OnRetry func(retry int, err error)
}

// DatastoreRetryConfig retries a failed datastore transaction once before
// the candidate is given up on.
func DatastoreRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2,
		JitterFraction: 0.25,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	def := DatastoreRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = max(def.MaxBackoff, c.InitialBackoff)
	}
	if c.Multiplier < 1 {
		c.Multiplier = def.Multiplier
	}
	c.JitterFraction = min(max(c.JitterFraction, 0), 1)
	if c.ShouldRetry == nil {
		c.ShouldRetry = IsTransient
	}
	return c
}

// Backoff is the delay before retry n (0-based): exponential, capped at
// MaxBackoff, then jittered.
func (c RetryConfig) Backoff(n int) time.Duration {
	d := math.Min(float64(c.InitialBackoff)*math.Pow(c.Multiplier, float64(n)), float64(c.MaxBackoff))
	if c.JitterFraction > 0 {
		d += d * c.JitterFraction * (2*rand.Float64() - 1)
	}
	return time.Duration(d)
}

// Do calls fn until it succeeds, fails with an error ShouldRetry rejects,
// runs out of attempts or ctx ends. It returns the last error from fn.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()
	for n := 0; ; n++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if n+1 >= cfg.MaxAttempts || ctx.Err() != nil || !cfg.ShouldRetry(err) {
			return err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(n+1, err)
		}
		t := time.NewTimer(cfg.Backoff(n))
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
}

// RetryLogger returns an OnRetry callback that logs at warn level.
func RetryLogger(component, operation string, fields ...zap.Field) func(int, error) {
	return func(retry int, err error) {
		fs := make([]zap.Field, 0, 4+len(fields))
		fs = append(fs,
			zap.String("component", component),
			zap.String("operation", operation),
			zap.Int("retry", retry),
			zap.Error(err),
		)
		zap.L().Warn("retrying operation", append(fs, fields...)...)
	}
}
