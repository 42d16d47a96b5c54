// Package testutil provides shared test doubles for cache packages.
package testutil

import (
	"sync"
	"time"

	"github.com/meigma/cache"
)

// RecordingMetrics is a cache.Metrics that counts every event it receives.
type RecordingMetrics struct {
	mu        sync.Mutex
	rates     map[cache.Op]int
	latencies map[cache.Op]int
	errors    map[cache.Op]int
	hits      int
	misses    int
	entries   int
	closed    bool
}

var _ cache.Metrics = (*RecordingMetrics)(nil)

// NewRecordingMetrics constructs an empty recording sink.
func NewRecordingMetrics() *RecordingMetrics {
	return &RecordingMetrics{
		rates:     make(map[cache.Op]int),
		latencies: make(map[cache.Op]int),
		errors:    make(map[cache.Op]int),
	}
}

// RecordRate counts one attempted operation.
func (m *RecordingMetrics) RecordRate(op cache.Op) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rates[op]++
}

// RecordLatency counts one latency observation.
func (m *RecordingMetrics) RecordLatency(op cache.Op, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies[op]++
}

// RecordError counts one recovered fault.
func (m *RecordingMetrics) RecordError(op cache.Op) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[op]++
}

// RecordHit counts one cache hit.
func (m *RecordingMetrics) RecordHit() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits++
}

// RecordMiss counts one cache miss.
func (m *RecordingMetrics) RecordMiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.misses++
}

// RecordEntries stores the most recently reported resident count.
func (m *RecordingMetrics) RecordEntries(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = n
}

// Close marks the sink closed.
func (m *RecordingMetrics) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Rates returns the number of rate events recorded for op.
func (m *RecordingMetrics) Rates(op cache.Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rates[op]
}

// Latencies returns the number of latency events recorded for op.
func (m *RecordingMetrics) Latencies(op cache.Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latencies[op]
}

// Errors returns the number of error events recorded for op.
func (m *RecordingMetrics) Errors(op cache.Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[op]
}

// Hits returns the number of hit events recorded.
func (m *RecordingMetrics) Hits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits
}

// Misses returns the number of miss events recorded.
func (m *RecordingMetrics) Misses() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.misses
}

// Entries returns the most recently reported resident count.
func (m *RecordingMetrics) Entries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries
}

// Closed reports whether Close has been called.
func (m *RecordingMetrics) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Total returns the total number of events recorded across all kinds.
// A cache that never touched its sink reports zero.
func (m *RecordingMetrics) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := m.hits + m.misses
	for _, n := range m.rates {
		total += n
	}
	for _, n := range m.latencies {
		total += n
	}
	for _, n := range m.errors {
		total += n
	}
	return total
}
