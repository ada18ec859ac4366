// Size- and time-bounded LRU dedup cache keyed by a per-channel
// extractor, silently dropping replayed messages across reconnects.
package dataplane

import (
	"container/list"
	"sync"
	"time"
)

// KeyExtractor derives a dedup key from a message (e.g. "symbol|timestamp"
// for tickers, "orderId|updateSeq" for order updates).
type KeyExtractor func(Message) string

type entry struct {
	key string
	at  time.Time
}

// DedupCache is a bounded LRU with a time-based expiry on top.
type DedupCache struct {
	mu       sync.Mutex
	maxSize  int
	maxAge   time.Duration
	order    *list.List
	elements map[string]*list.Element
}

// NewDedupCache builds a cache holding at most maxSize keys, each expiring
// after maxAge.
func NewDedupCache(maxSize int, maxAge time.Duration) *DedupCache {
	return &DedupCache{
		maxSize:  maxSize,
		maxAge:   maxAge,
		order:    list.New(),
		elements: make(map[string]*list.Element),
	}
}

// SeenBefore records key if not already present (within maxAge) and
// reports whether it was a repeat.
func (c *DedupCache) SeenBefore(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.elements[key]; ok {
		e := el.Value.(*entry)
		if now.Sub(e.at) <= c.maxAge {
			c.order.MoveToFront(el)
			return true
		}
		c.order.Remove(el)
		delete(c.elements, key)
	}

	el := c.order.PushFront(&entry{key: key, at: now})
	c.elements[key] = el

	for c.order.Len() > c.maxSize {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.order.Remove(back)
		delete(c.elements, back.Value.(*entry).key)
	}
	return false
}
