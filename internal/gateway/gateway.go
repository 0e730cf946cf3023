// Package gateway funnels every outbound call through per-source rate
// limits and circuit breakers. Nothing in the pipeline talks to a board,
// a model API, or a tracker without going through here.
package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/apply-cli/internal/resilience"
)

// SourceLimit is the token bucket configuration for one external source.
type SourceLimit struct {
	Rate  float64 `yaml:"rate" mapstructure:"rate"`
	Burst int     `yaml:"burst" mapstructure:"burst"`
}

// Config configures the gateway.
type Config struct {
	// WaitBudget bounds how long a caller blocks on a depleted bucket
	// before the call fails as rate-limited.
	WaitBudget time.Duration `yaml:"wait_budget" mapstructure:"wait_budget"`

	// CallTimeout bounds each underlying call once admitted.
	CallTimeout time.Duration `yaml:"call_timeout" mapstructure:"call_timeout"`

	// DefaultLimit applies to sources without an explicit entry.
	DefaultLimit SourceLimit `yaml:"default_limit" mapstructure:"default_limit"`

	// Sources overrides limits per source name.
	Sources map[string]SourceLimit `yaml:"sources" mapstructure:"sources"`

	// Retry shapes the in-call retry loop. Zero fields fall back to
	// resilience defaults.
	Retry resilience.RetryConfig `yaml:"-" mapstructure:"-"`
}

// DefaultConfig returns conservative limits suitable for public job boards.
func DefaultConfig() Config {
	return Config{
		WaitBudget:   30 * time.Second,
		CallTimeout:  60 * time.Second,
		DefaultLimit: SourceLimit{Rate: 2, Burst: 4},
		Retry:        resilience.DefaultRetryConfig(),
	}
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On a rate-limited response it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	initialRate rate.Limit
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		initialRate: initialRate,
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 1.2
	if newRate > a.maxRate {
		newRate = a.maxRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
}

// OnRateLimit halves the rate after an upstream rate-limit response.
func (a *AdaptiveLimiter) OnRateLimit(source string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	newRate := a.currentRate * 0.5
	if newRate < a.minRate {
		newRate = a.minRate
	}
	a.currentRate = newRate
	a.limiter.SetLimit(newRate)
	zap.L().Warn("adaptive rate limit: reducing rate",
		zap.String("source", source),
		zap.Float64("new_rate", float64(newRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// Gateway applies per-source admission control to outbound calls.
type Gateway struct {
	cfg      Config
	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
	breakers *resilience.SourceBreakers
}

// New creates a Gateway. Limiters are created lazily per source.
func New(cfg Config, breakers *resilience.SourceBreakers) *Gateway {
	if cfg.WaitBudget <= 0 {
		cfg.WaitBudget = 30 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.DefaultLimit.Rate <= 0 {
		cfg.DefaultLimit = SourceLimit{Rate: 2, Burst: 4}
	}
	if breakers == nil {
		breakers = resilience.NewSourceBreakers(resilience.DefaultCircuitBreakerConfig())
	}
	return &Gateway{
		cfg:      cfg,
		limiters: make(map[string]*AdaptiveLimiter),
		breakers: breakers,
	}
}

func (g *Gateway) limiterFor(source string) *AdaptiveLimiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	if lim, ok := g.limiters[source]; ok {
		return lim
	}
	limit := g.cfg.DefaultLimit
	if sl, ok := g.cfg.Sources[source]; ok && sl.Rate > 0 {
		limit = sl
	}
	burst := limit.Burst
	if burst <= 0 {
		burst = 1
	}
	lim := NewAdaptiveLimiter(rate.Limit(limit.Rate), burst)
	g.limiters[source] = lim
	return lim
}

// Call admits one outbound call for the source. It blocks up to the wait
// budget for a token; exceeding the budget fails as rate-limited without
// invoking fn. Admitted calls run under the call timeout and the source's
// circuit breaker, with backoff retries on transient failures.
func (g *Gateway) Call(ctx context.Context, source, operation string, fn func(ctx context.Context) error) error {
	_, err := CallVal(ctx, g, source, operation, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// CallVal is Call for functions that return a value.
func CallVal[T any](ctx context.Context, g *Gateway, source, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	lim := g.limiterFor(source)
	waitCtx, cancelWait := context.WithTimeout(ctx, g.cfg.WaitBudget)
	err := lim.Wait(waitCtx)
	cancelWait()
	if err != nil {
		if ctx.Err() != nil {
			return zero, eris.Wrapf(ctx.Err(), "gateway: %s %s cancelled", source, operation)
		}
		return zero, resilience.NewRateLimitError(
			eris.Errorf("gateway: %s %s: no token within %s", source, operation, g.cfg.WaitBudget))
	}

	breaker := g.breakers.Get(source)
	callCtx, cancelCall := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancelCall()

	// Retries on transient and rate-limited errors run inside the call
	// timeout, each attempt passing through the breaker so repeated
	// failures still trip it.
	retryCfg := g.cfg.Retry
	retryCfg.OnRetry = resilience.RetryLogger(source, operation)

	start := time.Now()
	out, err := resilience.DoVal(callCtx, retryCfg, func(ctx context.Context) (T, error) {
		return resilience.ExecuteVal(ctx, breaker, fn)
	})
	elapsed := time.Since(start)

	switch {
	case err == nil:
		lim.OnSuccess()
		zap.L().Debug("gateway call ok",
			zap.String("source", source),
			zap.String("operation", operation),
			zap.Duration("elapsed", elapsed),
		)
		return out, nil
	case resilience.Classify(err) == resilience.ClassRateLimited:
		lim.OnRateLimit(source)
		return zero, err
	default:
		zap.L().Warn("gateway call failed",
			zap.String("source", source),
			zap.String("operation", operation),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return zero, err
	}
}

// BreakerStates reports circuit state per source, for the status command.
func (g *Gateway) BreakerStates() map[string]resilience.CircuitState {
	return g.breakers.States()
}
