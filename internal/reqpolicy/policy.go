// Package reqpolicy is the single wrapper every outbound REST call passes
// through: token bucket, per-call timeout, circuit breaker, then
// backoff-and-retry honoring Retry-After. Grounded on the
// check-before-call, record-after-call pattern a rate-limited REST client
// typically follows, generalized from a simple weight counter to the
// full policy chain.
package reqpolicy

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"trading-core/internal/backoff"
	"trading-core/internal/circuit"
	"trading-core/internal/ratelimit"
)

// ErrNonRetryable marks failures the policy must never retry: auth,
// validation, insufficient balance, order rejection.
var ErrNonRetryable = errors.New("reqpolicy: non-retryable failure")

// RetryableError flags a failure (network, 429, 5xx) as eligible for retry,
// optionally carrying a Retry-After hint the policy must honor verbatim.
type RetryableError struct {
	Err        error
	RetryAfter time.Duration // 0 if the response carried no Retry-After
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Policy wraps one (namespace, circuit) pair: every call acquires tokens
// from the named rate bucket, runs inside the breaker with a per-call
// timeout, and retries retryable failures with backoff.
type Policy struct {
	limiter    *ratelimit.Registry
	breaker    *circuit.Breaker
	namespace  string
	weight     int
	callTimeout time.Duration
	maxRetries int
	rng        *rand.Rand
}

// Config parameterizes a Policy instance.
type Config struct {
	Namespace   string
	Weight      int
	CallTimeout time.Duration
	MaxRetries  int
}

// New builds a Policy bound to a shared limiter registry and circuit breaker.
func New(limiter *ratelimit.Registry, breaker *circuit.Breaker, cfg Config) *Policy {
	if cfg.Weight <= 0 {
		cfg.Weight = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Policy{
		limiter:     limiter,
		breaker:     breaker,
		namespace:   cfg.Namespace,
		weight:      cfg.Weight,
		callTimeout: cfg.CallTimeout,
		maxRetries:  cfg.MaxRetries,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Do executes fn under the full request policy chain.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	bo := backoff.Default()
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := p.limiter.Consume(ctx, p.namespace, p.weight); err != nil {
			return err
		}

		callCtx := ctx
		var cancel context.CancelFunc
		if p.callTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.callTimeout)
		}
		err := p.breaker.Execute(callCtx, fn)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			return nil
		}
		if errors.Is(err, circuit.ErrOpen) {
			return err
		}

		var retryable *RetryableError
		if !errors.As(err, &retryable) {
			// timeouts count as retryable failures per the policy contract
			if errors.Is(err, context.DeadlineExceeded) {
				retryable = &RetryableError{Err: err}
			} else {
				return err
			}
		}
		lastErr = retryable
		if attempt == p.maxRetries {
			break
		}
		delay := retryable.RetryAfter
		if delay == 0 {
			delay = bo.Delay(attempt, p.rng)
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
