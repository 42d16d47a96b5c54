// Package prom provides a prometheus-backed metrics sink for cache
// instances.
//
// Every collector is created and registered up front so the per-operation
// path is a direct handle update, never a name lookup. Metric names follow
// the pattern cache_<id><Operation><Kind>, for example
// cache_manifestGetRequestRate or cache_manifestPutLatencyMs.
package prom

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meigma/cache"
)

const namespace = "cache"

// Metrics records cache instrumentation events as prometheus collectors.
//
// When the cache is disabled, New registers nothing and every method is a
// no-op. Close unregisters all collectors, allowing a later instance with
// the same ID to register again.
type Metrics struct {
	reg prometheus.Registerer

	getRate    prometheus.Counter
	putRate    prometheus.Counter
	deleteRate prometheus.Counter

	getLatency    prometheus.Histogram
	putLatency    prometheus.Histogram
	deleteLatency prometheus.Histogram

	getErrors    prometheus.Counter
	putErrors    prometheus.Counter
	deleteErrors prometheus.Counter

	hitRate    prometheus.GaugeFunc
	missRate   prometheus.GaugeFunc
	numEntries prometheus.GaugeFunc

	hits    atomic.Int64
	misses  atomic.Int64
	entries atomic.Int64

	collectors []prometheus.Collector
}

var _ cache.Metrics = (*Metrics)(nil)

// New creates a sink for the cache identified by cfg and registers its
// collectors with reg. Nothing is registered when cfg.Enabled is false.
// Registration failures, such as a duplicate cache ID on a shared
// registry, fail construction.
func New(cfg cache.Config, reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{reg: reg}
	if !cfg.Enabled {
		return m, nil
	}

	id := cfg.ID
	m.getRate = newCounter(id, "GetRequestRate", "Number of cache get attempts.")
	m.putRate = newCounter(id, "PutRequestRate", "Number of cache put attempts.")
	m.deleteRate = newCounter(id, "DeleteRequestRate", "Number of cache delete attempts.")

	m.getLatency = newHistogram(id, "GetLatencyMs", "Cache get latency in milliseconds.")
	m.putLatency = newHistogram(id, "PutLatencyMs", "Cache put latency in milliseconds.")
	m.deleteLatency = newHistogram(id, "DeleteLatencyMs", "Cache delete latency in milliseconds.")

	m.getErrors = newCounter(id, "GetErrorCount", "Number of recovered cache get faults.")
	m.putErrors = newCounter(id, "PutErrorCount", "Number of recovered cache put faults.")
	m.deleteErrors = newCounter(id, "DeleteErrorCount", "Number of recovered cache delete faults.")

	m.hitRate = newGaugeFunc(id, "HitRate", "Fraction of gets served from the cache.", m.readHitRate)
	m.missRate = newGaugeFunc(id, "MissRate", "Fraction of gets not served from the cache.", m.readMissRate)
	m.numEntries = newGaugeFunc(id, "NumEntries", "Number of resident cache entries.", func() float64 {
		return float64(m.entries.Load())
	})

	m.collectors = []prometheus.Collector{
		m.getRate, m.putRate, m.deleteRate,
		m.getLatency, m.putLatency, m.deleteLatency,
		m.getErrors, m.putErrors, m.deleteErrors,
		m.hitRate, m.missRate, m.numEntries,
	}
	for i, col := range m.collectors {
		if err := reg.Register(col); err != nil {
			// Unregister only what this call registered. Unregistering the
			// full set would match by descriptor and strip the collectors
			// of whichever sink registered the conflicting names first.
			m.collectors = m.collectors[:i]
			m.unregister()
			return nil, fmt.Errorf("prom: register metrics for cache %q: %w", id, err)
		}
	}
	return m, nil
}

// RecordRate counts one attempted operation.
func (m *Metrics) RecordRate(op cache.Op) {
	if c := m.rate(op); c != nil {
		c.Inc()
	}
}

// RecordLatency records one operation duration in milliseconds.
func (m *Metrics) RecordLatency(op cache.Op, d time.Duration) {
	if h := m.latency(op); h != nil {
		h.Observe(float64(d) / float64(time.Millisecond))
	}
}

// RecordError counts one recovered operation fault.
func (m *Metrics) RecordError(op cache.Op) {
	if c := m.errors(op); c != nil {
		c.Inc()
	}
}

// RecordHit counts a get served from the cache.
func (m *Metrics) RecordHit() {
	m.hits.Add(1)
}

// RecordMiss counts a get not served from the cache.
func (m *Metrics) RecordMiss() {
	m.misses.Add(1)
}

// RecordEntries stores the resident entry count read by the NumEntries
// gauge.
func (m *Metrics) RecordEntries(n int) {
	m.entries.Store(int64(n))
}

// Close unregisters every collector from the registerer.
func (m *Metrics) Close() error {
	m.unregister()
	return nil
}

func (m *Metrics) unregister() {
	for _, col := range m.collectors {
		m.reg.Unregister(col)
	}
	m.collectors = nil
}

func (m *Metrics) rate(op cache.Op) prometheus.Counter {
	switch op {
	case cache.OpGet:
		return m.getRate
	case cache.OpPut:
		return m.putRate
	case cache.OpDelete:
		return m.deleteRate
	default:
		return nil
	}
}

func (m *Metrics) latency(op cache.Op) prometheus.Histogram {
	switch op {
	case cache.OpGet:
		return m.getLatency
	case cache.OpPut:
		return m.putLatency
	case cache.OpDelete:
		return m.deleteLatency
	default:
		return nil
	}
}

func (m *Metrics) errors(op cache.Op) prometheus.Counter {
	switch op {
	case cache.OpGet:
		return m.getErrors
	case cache.OpPut:
		return m.putErrors
	case cache.OpDelete:
		return m.deleteErrors
	default:
		return nil
	}
}

func (m *Metrics) readHitRate() float64 {
	hits := float64(m.hits.Load())
	total := hits + float64(m.misses.Load())
	if total == 0 {
		return 0
	}
	return hits / total
}

func (m *Metrics) readMissRate() float64 {
	misses := float64(m.misses.Load())
	total := misses + float64(m.hits.Load())
	if total == 0 {
		return 0
	}
	return misses / total
}

func newCounter(id, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      id + name,
		Help:      help,
	})
}

func newHistogram(id, name, help string) prometheus.Histogram {
	return prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      id + name,
		Help:      help,
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
	})
}

func newGaugeFunc(id, name, help string, read func() float64) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      id + name,
		Help:      help,
	}, read)
}
