package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/spaolacci/murmur3"
)

// entry is a resident cache entry. It lives in its shard's access-order
// list and is referenced from the shard map.
type entry[V any] struct {
	key    string
	value  V
	weight int64
	tick   uint64 // last access, from store.clock
}

// shard is one stripe of the key space: a map plus an access-order list
// guarded by a single mutex. Front of the list is the most recently used
// entry.
type shard[V any] struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

func newShard[V any]() *shard[V] {
	return &shard[V]{
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// store is the striped storage shared by all operations: shards for
// placement, global weight and entry counters, and an access clock that
// orders recency across shards.
type store[V any] struct {
	shards []*shard[V]
	mask   uint32

	weight  atomic.Int64
	entries atomic.Int64
	clock   atomic.Uint64
}

// newStore creates a store striped across the given number of shards.
// The count must be a positive power of two.
func newStore[V any](shards int) *store[V] {
	s := &store[V]{
		shards: make([]*shard[V], shards),
		mask:   uint32(shards - 1), //nolint:gosec // shard count is validated at construction
	}
	for i := range s.shards {
		s.shards[i] = newShard[V]()
	}
	return s
}

func (s *store[V]) shardFor(key string) *shard[V] {
	return s.shards[murmur3.Sum32([]byte(key))&s.mask]
}

func (s *store[V]) nextTick() uint64 {
	return s.clock.Add(1)
}

func (s *store[V]) len() int {
	return int(s.entries.Load())
}

// get returns the value for key, promoting the entry to most recently used.
func (s *store[V]) get(key string) (V, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	elem, ok := sh.entries[key]
	if !ok {
		var zero V
		return zero, false
	}

	ent := elem.Value.(*entry[V]) //nolint:errcheck // type is guaranteed by put
	ent.tick = s.nextTick()
	sh.order.MoveToFront(elem)
	return ent.value, true
}

// put inserts or replaces the entry for key, charging the weight delta
// against the global budget. It returns the entry's access tick, which
// identifies this exact insertion for deleteAt.
func (s *store[V]) put(key string, value V, weight int64) uint64 {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	tick := s.nextTick()

	// Update existing entry
	if elem, ok := sh.entries[key]; ok {
		ent := elem.Value.(*entry[V]) //nolint:errcheck // type is guaranteed
		s.weight.Add(weight - ent.weight)
		ent.value = value
		ent.weight = weight
		ent.tick = tick
		sh.order.MoveToFront(elem)
		return tick
	}

	ent := &entry[V]{key: key, value: value, weight: weight, tick: tick}
	sh.entries[key] = sh.order.PushFront(ent)
	s.weight.Add(weight)
	s.entries.Add(1)
	return tick
}

// delete removes key if present and reports whether an entry was removed.
func (s *store[V]) delete(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	elem, ok := sh.entries[key]
	if !ok {
		return false
	}
	s.removeLocked(sh, elem)
	return true
}

// deleteAt removes key only if its access tick still equals tick, so a
// victim chosen outside the shard lock is not removed after a concurrent
// touch or replacement. Reports whether the entry was removed.
func (s *store[V]) deleteAt(key string, tick uint64) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	elem, ok := sh.entries[key]
	if !ok {
		return false
	}
	if elem.Value.(*entry[V]).tick != tick { //nolint:errcheck // type is guaranteed
		return false
	}
	s.removeLocked(sh, elem)
	return true
}

// evictOldest removes the entry with the oldest access tick across all
// shards. It reports the evicted key and false when the store is empty.
func (s *store[V]) evictOldest() (string, bool) {
	for {
		var (
			key   string
			tick  uint64
			found bool
		)
		for _, sh := range s.shards {
			sh.mu.Lock()
			if elem := sh.order.Back(); elem != nil {
				ent := elem.Value.(*entry[V]) //nolint:errcheck // type is guaranteed
				if !found || ent.tick < tick {
					key, tick = ent.key, ent.tick
					found = true
				}
			}
			sh.mu.Unlock()
		}
		if !found {
			return "", false
		}
		if s.deleteAt(key, tick) {
			return key, true
		}
		// The candidate was touched or removed between the scan and the
		// delete. Scan again.
	}
}

// flush drops every entry and settles the global counters.
func (s *store[V]) flush() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		var weight int64
		for _, elem := range sh.entries {
			weight += elem.Value.(*entry[V]).weight //nolint:errcheck // type is guaranteed
		}
		count := int64(len(sh.entries))
		sh.entries = make(map[string]*list.Element)
		sh.order.Init()
		sh.mu.Unlock()

		s.weight.Add(-weight)
		s.entries.Add(-count)
	}
}

// removeLocked removes an element from both the list and map and settles
// the global counters. Caller must hold sh.mu.
func (s *store[V]) removeLocked(sh *shard[V], elem *list.Element) {
	ent := elem.Value.(*entry[V]) //nolint:errcheck // type is guaranteed
	sh.order.Remove(elem)
	delete(sh.entries, ent.key)
	s.weight.Add(-ent.weight)
	s.entries.Add(-1)
}
