// Package resilience wraps provider calls with retry, exponential backoff
// with jitter, and a per-provider circuit breaker.
//
// # Retry Policy
//
// Up to [Policy.MaxAttempts] attempts per call. The delay before attempt n+1
// is base × 2^(n−1) plus random jitter, capped at [Policy.BackoffCap]. A
// rate-limited response's wait hint, when present, overrides the computed
// delay. Fatal errors bypass retry entirely.
//
// # Circuit Breaker
//
// One breaker per provider. After [Policy.BreakerThreshold] consecutive
// retryable failures all calls short-circuit to a synthetic unavailable
// error without network I/O, until the cooldown elapses and a single probe
// call is admitted.
//
// The controller's clock and jitter source are injectable so tests run with
// deterministic time and never sleep.
package resilience

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"genrify/internal/providers"
)

// Policy configures retry and breaker behavior for all providers.
type Policy struct {
	MaxAttempts      int
	BackoffBase      time.Duration
	BackoffCap       time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// DefaultPolicy mirrors the shipped configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      3,
		BackoffBase:      500 * time.Millisecond,
		BackoffCap:       15 * time.Second,
		BreakerThreshold: 5,
		BreakerCooldown:  time.Minute,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BackoffBase <= 0 {
		p.BackoffBase = 500 * time.Millisecond
	}
	if p.BackoffCap < p.BackoffBase {
		p.BackoffCap = p.BackoffBase
	}
	if p.BreakerThreshold <= 0 {
		p.BreakerThreshold = 5
	}
	if p.BreakerCooldown <= 0 {
		p.BreakerCooldown = time.Minute
	}
	return p
}

// Controller owns the per-provider breaker state shared by all workers.
type Controller struct {
	policy Policy
	clock  Clock
	jitter func() float64
	logger *log.Logger

	mu       sync.Mutex
	breakers map[string]*breaker
}

// ControllerOpts contains optional dependencies for a Controller.
type ControllerOpts struct {
	Clock  Clock
	Jitter func() float64 // returns [0, 1)
	Logger *log.Logger
}

// NewController creates a Controller with the given policy.
func NewController(policy Policy, opts ControllerOpts) *Controller {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Jitter == nil {
		opts.Jitter = rand.Float64
	}
	return &Controller{
		policy:   policy.normalized(),
		clock:    opts.Clock,
		jitter:   opts.Jitter,
		logger:   opts.Logger,
		breakers: make(map[string]*breaker),
	}
}

// Do executes fn for the named provider under the retry and breaker policy.
//
// Retryable failures (transient, rate-limited) are retried with backoff and
// counted against the breaker. NotFound is a successful call for breaker
// purposes. Fatal propagates immediately. When the breaker is open, Do
// returns a synthetic unavailable error without invoking fn.
func Do[T any](ctx context.Context, c *Controller, provider string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	br := c.breakerFor(provider)

	if !br.allow(c.clock.Now()) {
		return zero, providers.Unavailable(provider)
	}

	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			br.success()
			return result, nil
		}

		kind := providers.KindOf(err)
		switch kind {
		case providers.KindNotFound:
			// The provider answered; it just has nothing. Healthy.
			br.success()
			return zero, err
		case providers.KindFatal:
			return zero, err
		}

		br.failure(c.clock.Now())
		lastErr = err

		if attempt == c.policy.MaxAttempts {
			break
		}

		delay := c.delayFor(attempt, err)
		if c.logger != nil {
			c.logger.Debug("retrying provider call", "provider", provider, "attempt", attempt, "delay", delay, "kind", kind.String())
		}
		if err := c.clock.Sleep(ctx, delay); err != nil {
			return zero, err
		}

		// The breaker may have been tripped by a concurrent worker while
		// this call was backing off.
		if !br.allow(c.clock.Now()) {
			return zero, providers.Unavailable(provider)
		}
	}

	return zero, lastErr
}

// CircuitOpen reports whether the provider's circuit currently short-circuits
// calls. The cache uses this to decide when stale entries may be served.
func (c *Controller) CircuitOpen(provider string) bool {
	return c.breakerFor(provider).snapshot(c.clock.Now()) == stateOpen
}

// CircuitState returns the provider's breaker state for diagnostics.
func (c *Controller) CircuitState(provider string) string {
	return c.breakerFor(provider).snapshot(c.clock.Now()).String()
}

// delayFor computes the backoff before the next attempt. A rate-limit wait
// hint overrides the exponential delay.
func (c *Controller) delayFor(attempt int, err error) time.Duration {
	if pe, ok := providers.AsProviderError(err); ok && pe.Kind == providers.KindRateLimited && pe.RetryAfter > 0 {
		return pe.RetryAfter
	}

	delay := c.policy.BackoffBase << (attempt - 1)
	if delay > c.policy.BackoffCap {
		delay = c.policy.BackoffCap
	}
	return delay + time.Duration(c.jitter()*float64(c.policy.BackoffBase))
}

func (c *Controller) breakerFor(provider string) *breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	br, ok := c.breakers[provider]
	if !ok {
		br = newBreaker(c.policy.BreakerThreshold, c.policy.BreakerCooldown)
		c.breakers[provider] = br
	}
	return br
}
