// Package loader provides read-through loading for cache instances.
package loader

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/cache"
)

var (
	// ErrNilCache is returned when a Loader is constructed without a cache.
	ErrNilCache = errors.New("loader: cache is nil")

	// ErrNilFunc is returned when a Loader is constructed without a
	// compute function.
	ErrNilFunc = errors.New("loader: compute func is nil")
)

// Func computes the value for a key on a cache miss.
type Func[V any] func(ctx context.Context, key string) (V, error)

// Loader fills cache misses through a compute function.
//
// Loader uses singleflight to deduplicate concurrent Load calls for the
// same key, so only one compute runs even if many goroutines miss
// simultaneously. Compute errors propagate to every waiter and are never
// cached. A disabled cache degrades Load to compute-through.
type Loader[V any] struct {
	cache   *cache.Cache[V]
	fn      Func[V]
	workers int
	group   singleflight.Group
}

// Option configures a Loader.
type Option func(*options)

type options struct {
	workers int
}

// WithWorkers sets the number of concurrent computes used by Warm.
// Values < 1 are raised to 1. Defaults to GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// New creates a Loader that fills c through fn.
func New[V any](c *cache.Cache[V], fn Func[V], opts ...Option) (*Loader[V], error) {
	if c == nil {
		return nil, ErrNilCache
	}
	if fn == nil {
		return nil, ErrNilFunc
	}

	o := options{workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&o)
	}
	if o.workers < 1 {
		o.workers = 1
	}

	return &Loader[V]{cache: c, fn: fn, workers: o.workers}, nil
}

// Load returns the value for key, computing it on a miss.
//
// Load checks the cache first and returns the resident value if present.
// On a miss, concurrent callers for the same key share a single compute
// and the result is stored for reuse. The context of the caller that wins
// the flight governs the compute.
func (l *Loader[V]) Load(ctx context.Context, key string) (V, error) {
	// Check cache first (fast path, avoids singleflight overhead)
	if value, ok := l.cache.Get(key); ok {
		return value, nil
	}

	result, err, _ := l.group.Do(key, func() (any, error) {
		// Double-check cache: another goroutine may have just stored this
		// key between our cache check and acquiring the singleflight lock.
		if value, ok := l.cache.Get(key); ok {
			return value, nil
		}

		value, err := l.fn(ctx, key)
		if err != nil {
			return nil, err
		}

		// Store the result (best effort, a disabled cache stores nothing)
		_ = l.cache.Put(key, value)

		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}

	value, _ := result.(V) //nolint:errcheck // type assertion always succeeds when err is nil
	return value, nil
}

// Warm computes and stores the values for every key that is not already
// resident. Computes run concurrently, bounded by WithWorkers. The first
// error cancels the remaining work and is returned.
func (l *Loader[V]) Warm(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for _, key := range keys {
		g.Go(func() error {
			_, err := l.Load(ctx, key)
			return err
		})
	}
	return g.Wait()
}

// Forget drops key from the cache and forgets any in-flight compute, so
// the next Load observes fresh data.
func (l *Loader[V]) Forget(key string) {
	l.cache.Delete(key)
	l.group.Forget(key)
}
