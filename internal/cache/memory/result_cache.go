package memory

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// Key identifies one resolution. TableVersion must be the version of the
// alias table the result was computed against.
type Key struct {
	Specifier    string
	ImporterDir  string
	TableVersion uint64
}

func (k Key) String() string {
	return strconv.FormatUint(k.TableVersion, 10) + "\x00" + k.ImporterDir + "\x00" + k.Specifier
}

// Entry is a completed, cached value.
type Entry[V any] struct {
	Key        Key
	Value      V
	InsertedAt time.Time
}

type Config struct {
	// MaxEntries bounds the LRU. <= 0 uses DefaultMaxEntries.
	MaxEntries int
	// TTL expires entries after the given age. 0 keeps them until evicted.
	TTL time.Duration
}

const DefaultMaxEntries = 10000

type MetricsSnapshot struct {
	Hits         uint64
	Misses       uint64
	Computations uint64
	Shared       uint64
}

type metrics struct {
	hits         atomic.Uint64
	misses       atomic.Uint64
	computations atomic.Uint64
	shared       atomic.Uint64
}

// store is the subset of the golang-lru caches used here.
type store[V any] interface {
	Add(key Key, value Entry[V]) bool
	Get(key Key) (Entry[V], bool)
	Peek(key Key) (Entry[V], bool)
	Purge()
	Len() int
}

// ResultCache memoizes completed results in a bounded LRU and coordinates
// in-flight computations so that at most one runs per key. Only completed
// values are ever stored, so eviction never drops pending work.
type ResultCache[V any] struct {
	store   store[V]
	group   singleflight.Group
	metrics metrics
}

func NewResultCache[V any](cfg Config) (*ResultCache[V], error) {
	size := cfg.MaxEntries
	if size <= 0 {
		size = DefaultMaxEntries
	}
	var s store[V]
	if cfg.TTL > 0 {
		s = expirable.NewLRU[Key, Entry[V]](size, nil, cfg.TTL)
	} else {
		c, err := lru.New[Key, Entry[V]](size)
		if err != nil {
			return nil, err
		}
		s = c
	}
	return &ResultCache[V]{store: s}, nil
}

// Get returns a cached value and records a hit or miss.
func (c *ResultCache[V]) Get(key Key) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	ent, ok := c.store.Get(key)
	if !ok {
		c.metrics.misses.Add(1)
		return zero, false
	}
	c.metrics.hits.Add(1)
	return ent.Value, true
}

// Put inserts or overwrites a completed value.
func (c *ResultCache[V]) Put(key Key, value V) {
	if c == nil {
		return
	}
	c.store.Add(key, Entry[V]{Key: key, Value: value, InsertedAt: time.Now()})
}

// Lookup returns the full entry without touching recency or metrics.
func (c *ResultCache[V]) Lookup(key Key) (Entry[V], bool) {
	if c == nil {
		return Entry[V]{}, false
	}
	return c.store.Peek(key)
}

// Do returns the cached value for key or runs compute, sharing a single
// execution among concurrent callers of the same key. compute reports
// whether its value may be stored. shared is true when the value came from
// the cache or from another caller's computation. A cancelled ctx abandons
// the wait; the computation keeps running for the other callers.
func (c *ResultCache[V]) Do(ctx context.Context, key Key, compute func() (V, bool)) (value V, shared bool, err error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	ch := c.group.DoChan(key.String(), func() (any, error) {
		// A flight for this key may have completed between Get and DoChan.
		if ent, ok := c.store.Get(key); ok {
			return ent.Value, nil
		}
		c.metrics.computations.Add(1)
		v, cacheable := compute()
		if cacheable {
			c.Put(key, v)
		}
		return v, nil
	})
	select {
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.metrics.shared.Add(1)
		}
		v, _ := res.Val.(V)
		return v, res.Shared, res.Err
	}
}

// Purge drops every completed entry. In-flight computations are unaffected.
func (c *ResultCache[V]) Purge() {
	if c == nil {
		return
	}
	c.store.Purge()
}

func (c *ResultCache[V]) Len() int {
	if c == nil {
		return 0
	}
	return c.store.Len()
}

func (c *ResultCache[V]) Metrics() MetricsSnapshot {
	if c == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Hits:         c.metrics.hits.Load(),
		Misses:       c.metrics.misses.Load(),
		Computations: c.metrics.computations.Load(),
		Shared:       c.metrics.shared.Load(),
	}
}
