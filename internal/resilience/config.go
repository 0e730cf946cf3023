package resilience

import (
	"time"
)

// FromRetryConfig converts config values to a RetryConfig.
func FromRetryConfig(maxAttempts, backoffBaseMs, backoffMaxMs int, backoffFactor, jitterFraction float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if backoffBaseMs > 0 {
		cfg.InitialBackoff = time.Duration(backoffBaseMs) * time.Millisecond
	}
	if backoffMaxMs > 0 {
		cfg.MaxBackoff = time.Duration(backoffMaxMs) * time.Millisecond
	}
	if backoffFactor > 0 {
		cfg.Multiplier = backoffFactor
	}
	if jitterFraction >= 0 {
		cfg.JitterFraction = jitterFraction
	}
	return cfg
}

// FromCircuitConfig converts config values to a CircuitBreakerConfig.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) CircuitBreakerConfig {
	cfg := DefaultCircuitBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}
