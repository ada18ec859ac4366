// Package circuit wraps sony/gobreaker so both the execution circuit
// breaker (serial queue) and the outbound request-policy circuit breaker
// share one small API tuned to the consecutive-failure / half-open /
// cooldown semantics the control core documents, instead of gobreaker's
// generic failure-ratio counters.
package circuit

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned when a call is attempted while the breaker is open.
var ErrOpen = errors.New("circuit: breaker open")

// Config holds one source's circuit breaker knobs.
type Config struct {
	Name                string
	ConsecutiveFailures  uint32
	Cooldown             time.Duration
	HalfOpenSuccesses    uint32
}

// Breaker is a consecutive-failure circuit breaker backed by gobreaker.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New builds a Breaker that opens after Config.ConsecutiveFailures
// consecutive failures, half-opens after Cooldown, and requires
// HalfOpenSuccesses consecutive half-open successes to close.
func New(cfg Config) *Breaker {
	st := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.HalfOpenSuccesses,
		Interval:    0, // never reset closed-state counts on a timer
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(st)}
}

// State reports the current breaker state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// Open reports whether the breaker currently rejects calls.
func (b *Breaker) Open() bool { return b.cb.State() == gobreaker.StateOpen }

// Execute runs fn if the breaker allows it, otherwise returns ErrOpen
// without calling fn. A half-open failure re-opens the breaker
// immediately, matching the single-half-open-attempt semantics used for
// the execution breaker.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrOpen
	}
	return err
}
