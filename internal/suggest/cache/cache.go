// Package cache provides a small in-memory TTL cache for suggestion results.
//
// Entries expire lazily: Get treats an entry older than the TTL as a miss but
// leaves it in place, and the next Put for that key overwrites it. There is no
// background sweeper and no size bound. Concurrent writers to one key race
// with last-write-wins semantics, which is acceptable because every writer
// stores a valid result for that key.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTTL is the entry lifetime used when no WithTTL option is given.
const DefaultTTL = 5 * time.Minute

// Entry is a stored value and its creation time.
type Entry[V any] struct {
	Key       string
	Value     V
	CreatedAt time.Time
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Expired uint64 // misses caused by a stale entry; included in Misses
	Entries int
}

// TTL is a concurrency-safe map whose entries are valid for a fixed duration.
type TTL[V any] struct {
	mu      sync.RWMutex
	entries map[string]Entry[V]
	ttl     time.Duration
	now     func() time.Time

	hits    atomic.Uint64
	misses  atomic.Uint64
	expired atomic.Uint64
}

// Option configures a TTL cache.
type Option func(*options)

type options struct {
	ttl time.Duration
	now func() time.Time
}

// WithTTL sets the entry lifetime. Non-positive values are ignored.
func WithTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithClock replaces time.Now, letting tests advance time by hand.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an empty cache.
func New[V any](opts ...Option) *TTL[V] {
	o := options{ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &TTL[V]{
		entries: make(map[string]Entry[V]),
		ttl:     o.ttl,
		now:     o.now,
	}
}

// Get returns the value stored under key if it is younger than the TTL.
func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}
	if c.now().Sub(e.CreatedAt) >= c.ttl {
		c.misses.Add(1)
		c.expired.Add(1)
		var zero V
		return zero, false
	}
	c.hits.Add(1)
	return e.Value, true
}

// Put stores value under key, replacing any previous entry.
func (c *TTL[V]) Put(key string, value V) {
	e := Entry[V]{Key: key, Value: value, CreatedAt: c.now()}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// Len returns the number of stored entries, stale ones included.
func (c *TTL[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// TTL returns the configured entry lifetime.
func (c *TTL[V]) TTL() time.Duration { return c.ttl }

// Stats returns a snapshot of the hit and miss counters.
func (c *TTL[V]) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Expired: c.expired.Load(),
		Entries: c.Len(),
	}
}
