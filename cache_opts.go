package cache

import "log/slog"

// Config holds the construction-time settings for a cache instance.
type Config struct {
	// ID identifies the instance in metric names and log lines.
	ID string

	// Enabled gates the whole instance. A disabled cache stores nothing
	// and answers every operation with its zero result.
	Enabled bool

	// CapacityBytes bounds the total weight of resident entries.
	// Must be >= 0. A zero capacity admits entries and immediately
	// evicts them.
	CapacityBytes int64
}

const defaultShardCount = 16

// Option configures a Cache.
type Option func(*settings)

type settings struct {
	shards  int
	logger  *slog.Logger
	metrics Metrics
}

// WithShards sets the number of independent shards the key space is striped
// across. The count must be a positive power of two. Defaults to 16.
func WithShards(n int) Option {
	return func(s *settings) {
		s.shards = n
	}
}

// WithLogger sets a logger for the cache.
// If nil, a discard logger is used (default behavior).
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithMetrics sets the sink that receives instrumentation events.
// If nil, events are discarded (default behavior).
func WithMetrics(m Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}
