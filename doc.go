// Package cache provides a weight-bounded, string-keyed in-memory cache
// for object-storage frontends.
//
// A [Cache] holds opaque values under string keys, bounds the total logical
// weight of resident entries, and evicts the least recently used entries
// when the budget is exceeded. Every operation is instrumented through a
// [Metrics] sink, and internal faults degrade to misses instead of
// propagating to callers.
//
// Each instance is gated at construction: a disabled cache stores nothing,
// registers no metrics, and answers every operation with its zero result,
// so callers never branch on whether caching is turned on.
//
// # Quick Start
//
// Create a cache and use it:
//
//	c, err := cache.New[[]byte](cache.Config{
//	    ID:            "manifest",
//	    Enabled:       true,
//	    CapacityBytes: 64 << 20,
//	}, nil)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	c.Put("key", payload)
//	if data, ok := c.Get("key"); ok {
//	    use(data)
//	}
//
// The weigher parameter controls how entries are charged against the
// capacity. Passing nil selects [DefaultWeigher], which charges the key
// length plus the payload size for byte, string, and [Sizer] values.
//
// # Metrics
//
// Operation rates, latencies, error counts, hit/miss rates, and the
// resident entry count are reported through the [Metrics] interface.
// The prom subpackage registers these as prometheus collectors:
//
//	sink, err := prom.New(cfg, registry)
//	if err != nil {
//	    return err
//	}
//	c, err := cache.New[[]byte](cfg, nil, cache.WithMetrics(sink))
//
// # Read-through loading
//
// The loader subpackage wraps a cache with a compute function, collapsing
// concurrent misses for the same key into a single compute:
//
//	l, err := loader.New(c, fetchManifest)
//	data, err := l.Load(ctx, key)
//
// # Compression
//
// The compress subpackage transparently compresses byte payloads with zstd
// so the weight budget accounts compressed bytes:
//
//	cc, err := compress.New(c, compress.WithMinSize(4<<10))
package cache
