// Package ratelimit provides namespaced token buckets for the outbound
// request policy. An exchange's own weight-usage counter fed from
// response headers is not a true token bucket, so this package is
// instead built on golang.org/x/time/rate, wrapped to expose a weighted
// consume(w) contract per request-policy namespace.
package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Bucket is a single named token bucket: capacity tokens, refilling
// continuously at refillRate tokens/sec.
type Bucket struct {
	limiter  *rate.Limiter
	capacity int
}

// NewBucket builds a Bucket with the given capacity and refill rate.
func NewBucket(capacity int, refillPerSec float64) *Bucket {
	return &Bucket{
		limiter:  rate.NewLimiter(rate.Limit(refillPerSec), capacity),
		capacity: capacity,
	}
}

// Consume waits until w tokens are available, refilling continuously,
// or until ctx is cancelled.
func (b *Bucket) Consume(ctx context.Context, w int) error {
	if w > b.capacity {
		return fmt.Errorf("ratelimit: requested weight %d exceeds bucket capacity %d", w, b.capacity)
	}
	return b.limiter.WaitN(ctx, w)
}

// Registry holds one Bucket per namespace (public, private, orders, account).
type Registry struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket
}

// NewRegistry builds a Registry from capacity/refill maps keyed by namespace.
func NewRegistry(capacity map[string]int, refill map[string]float64) *Registry {
	r := &Registry{buckets: make(map[string]*Bucket, len(capacity))}
	for ns, cap := range capacity {
		r.buckets[ns] = NewBucket(cap, refill[ns])
	}
	return r
}

// Consume acquires w tokens from the named bucket.
func (r *Registry) Consume(ctx context.Context, namespace string, w int) error {
	r.mu.RLock()
	b, ok := r.buckets[namespace]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("ratelimit: unknown namespace %q", namespace)
	}
	return b.Consume(ctx, w)
}
