// Package backoff implements exponential backoff with jitter, grounded on
// the websocket reconnect-delay calculation pattern used throughout this
// codebase's streaming transports, extended with a jitter term.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Config parameterizes the backoff formula:
// delay(n) = min(initial * multiplier^n, maxDelay) + uniform(0, delay*jitterFactor)
type Config struct {
	Initial      time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	JitterFactor float64
}

// Default returns the standard reconnect backoff parameters.
func Default() Config {
	return Config{
		Initial:      time.Second,
		Multiplier:   2,
		MaxDelay:     60 * time.Second,
		JitterFactor: 0.1,
	}
}

// RateLimited uses a longer ceiling, for the RATE_LIMITED close category.
func RateLimited() Config {
	c := Default()
	c.MaxDelay = 5 * time.Minute
	return c
}

// Delay returns the backoff delay for attempt n (0-indexed), clamped at
// MaxDelay before jitter is added so a large n never overflows the ceiling.
func (c Config) Delay(attempt int, rng *rand.Rand) time.Duration {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	base := float64(c.Initial) * math.Pow(c.Multiplier, float64(attempt))
	if base > float64(c.MaxDelay) || math.IsInf(base, 1) || base < 0 {
		base = float64(c.MaxDelay)
	}
	jitter := rng.Float64() * base * c.JitterFactor
	d := time.Duration(base + jitter)
	if d > c.MaxDelay+time.Duration(float64(c.MaxDelay)*c.JitterFactor) {
		d = c.MaxDelay + time.Duration(float64(c.MaxDelay)*c.JitterFactor)
	}
	return d
}
