package resilience

import "time"

// FromRetryConfig starts from DatastoreRetryConfig and overrides the fields
// given as positive config values.
func FromRetryConfig(maxAttempts, initialBackoffMs, maxBackoffMs int) RetryConfig {
	cfg := DatastoreRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return cfg
}

// FromCircuitConfig names a breaker config; non-positive values are left
// for NewCircuitBreaker to default.
func FromCircuitConfig(name string, failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: max(failureThreshold, 0),
		ResetTimeout:     time.Duration(max(resetTimeoutSecs, 0)) * time.Second,
	}
}
