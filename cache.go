package cache

import (
	"fmt"
	"log/slog"
	"math/bits"
	"sync"
	"sync/atomic"
	"time"
)

// Cache is a weight-bounded, string-keyed in-memory cache.
//
// Entries are charged against the configured capacity by a [Weigher]; when
// the total weight exceeds the capacity, least recently used entries are
// evicted until it fits again. All methods are safe for concurrent use and
// never block on I/O.
//
// Cache operations do not fail: internal faults are recovered, counted, and
// logged, and the operation reports "not found" or "not stored" instead.
// Only construction returns errors.
//
// Values are shared, not copied. Callers must not mutate a value after
// passing it to Put or after receiving it from Get.
type Cache[V any] struct {
	id       string
	enabled  bool
	capacity int64

	weigher Weigher[V]
	store   *store[V]
	metrics Metrics
	logger  *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

// Stats is a point-in-time snapshot of cache activity. Counters are
// cumulative over the cache's lifetime.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
	Weight    int64
}

// New creates a cache instance from cfg.
//
// The weigher computes each entry's weight at admission; nil selects
// [DefaultWeigher]. When cfg.Enabled is false the returned cache is a
// permanent no-op that stores nothing and calls no metrics sink.
func New[V any](cfg Config, weigher Weigher[V], opts ...Option) (*Cache[V], error) {
	if cfg.CapacityBytes < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrNegativeCapacity, cfg.CapacityBytes)
	}

	s := settings{shards: defaultShardCount}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&s)
	}
	if s.shards < 1 || bits.OnesCount(uint(s.shards)) != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidShards, s.shards)
	}

	c := &Cache[V]{
		id:       cfg.ID,
		enabled:  cfg.Enabled,
		capacity: cfg.CapacityBytes,
		weigher:  weigher,
		metrics:  s.metrics,
		logger:   s.logger,
	}
	if c.weigher == nil {
		c.weigher = DefaultWeigher[V]
	}
	if c.metrics == nil {
		c.metrics = nopMetrics{}
	}

	if !cfg.Enabled {
		c.log().Info("cache disabled", "cache", cfg.ID)
		return c, nil
	}

	c.store = newStore[V](s.shards)
	c.log().Info("cache created",
		"cache", cfg.ID,
		"capacityBytes", cfg.CapacityBytes,
		"shards", s.shards,
	)
	return c, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (c *Cache[V]) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// Put stores value under key, replacing any existing entry.
//
// Put reports whether the value was admitted. A disabled cache reports
// false without side effects. An entry whose own weight exceeds the
// capacity is admitted and then immediately evicted without disturbing
// resident entries; Put still reports true.
func (c *Cache[V]) Put(key string, value V) (stored bool) {
	if !c.enabled {
		return false
	}

	c.metrics.RecordRate(OpPut)
	defer c.observeLatency(OpPut, time.Now())
	defer func() {
		if r := recover(); r != nil {
			c.metrics.RecordError(OpPut)
			c.log().Error("cache put failed", "cache", c.id, "key", key, "panic", r)
			stored = false
		}
	}()

	weight, err := c.weigh(key, value)
	if err != nil {
		c.metrics.RecordError(OpPut)
		c.log().Error("cache put failed", "cache", c.id, "key", key, "error", err)
		return false
	}

	if weight > c.capacity {
		// Heavier than the whole budget: the entry can never fit, so it is
		// admitted and immediately evicted. Resident entries stay put. If a
		// concurrent access touched the entry first, deleteAt declines and
		// the eviction loop below restores the budget instead.
		tick := c.store.put(key, value, weight)
		if c.store.deleteAt(key, tick) {
			c.evictions.Add(1)
		}
		c.evictToCapacity()
		c.metrics.RecordEntries(c.store.len())
		return true
	}

	c.store.put(key, value, weight)
	c.evictToCapacity()
	c.metrics.RecordEntries(c.store.len())
	return true
}

// Get returns the value stored under key, refreshing its recency.
// It reports false when the key is not resident. A disabled cache reports
// false without side effects.
func (c *Cache[V]) Get(key string) (value V, ok bool) {
	if !c.enabled {
		var zero V
		return zero, false
	}

	c.metrics.RecordRate(OpGet)
	defer c.observeLatency(OpGet, time.Now())
	defer func() {
		if r := recover(); r != nil {
			c.metrics.RecordError(OpGet)
			c.log().Error("cache get failed", "cache", c.id, "key", key, "panic", r)
			var zero V
			value, ok = zero, false
		}
	}()

	value, ok = c.store.get(key)
	if ok {
		c.hits.Add(1)
		c.metrics.RecordHit()
	} else {
		c.misses.Add(1)
		c.metrics.RecordMiss()
	}
	return value, ok
}

// Delete removes the entry stored under key. It reports whether an entry
// was removed; deleting an absent key is a no-op. A disabled cache reports
// false without side effects.
func (c *Cache[V]) Delete(key string) (removed bool) {
	if !c.enabled {
		return false
	}

	c.metrics.RecordRate(OpDelete)
	defer c.observeLatency(OpDelete, time.Now())
	defer func() {
		if r := recover(); r != nil {
			c.metrics.RecordError(OpDelete)
			c.log().Error("cache delete failed", "cache", c.id, "key", key, "panic", r)
			removed = false
		}
	}()

	removed = c.store.delete(key)
	if removed {
		c.metrics.RecordEntries(c.store.len())
	}
	return removed
}

// Len returns the number of resident entries.
func (c *Cache[V]) Len() int {
	if !c.enabled {
		return 0
	}
	return c.store.len()
}

// WeightUsed returns the total weight of resident entries.
func (c *Cache[V]) WeightUsed() int64 {
	if !c.enabled {
		return 0
	}
	return c.store.weight.Load()
}

// Capacity returns the configured weight budget.
func (c *Cache[V]) Capacity() int64 {
	return c.capacity
}

// Enabled reports whether the cache was constructed enabled.
func (c *Cache[V]) Enabled() bool {
	return c.enabled
}

// Stats returns a snapshot of cumulative counters and current occupancy.
// Individual fields are read independently and may be mutually inconsistent
// under concurrent use.
func (c *Cache[V]) Stats() Stats {
	if !c.enabled {
		return Stats{}
	}
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Entries:   c.store.len(),
		Weight:    c.store.weight.Load(),
	}
}

// Flush removes every entry and resets the weight budget. Cumulative
// counters keep their values.
func (c *Cache[V]) Flush() {
	if !c.enabled {
		return
	}
	c.store.flush()
	c.metrics.RecordEntries(0)
}

// Close flushes the cache and closes the metrics sink, deregistering any
// collectors it registered. Close is idempotent.
func (c *Cache[V]) Close() error {
	c.closeOnce.Do(func() {
		if c.enabled {
			c.store.flush()
		}
		c.closeErr = c.metrics.Close()
	})
	return c.closeErr
}

// weigh runs the weigher, converting panics and negative results into
// errors so a faulty weigher cannot corrupt the weight budget.
func (c *Cache[V]) weigh(key string, value V) (weight int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("weigher panic: %v", r)
		}
	}()

	n := c.weigher(key, value)
	if n < 0 {
		return 0, fmt.Errorf("weigher returned negative weight %d", n)
	}
	return int64(n), nil
}

// evictToCapacity removes least recently used entries until the total
// weight fits the budget. It runs synchronously on the mutating goroutine,
// so the budget holds whenever a mutating call returns.
func (c *Cache[V]) evictToCapacity() {
	for c.store.weight.Load() > c.capacity {
		key, ok := c.store.evictOldest()
		if !ok {
			return
		}
		c.evictions.Add(1)
		c.log().Debug("cache entry evicted", "cache", c.id, "key", key)
	}
}

func (c *Cache[V]) observeLatency(op Op, start time.Time) {
	c.metrics.RecordLatency(op, time.Since(start))
}
