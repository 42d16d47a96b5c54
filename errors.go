package cache

import "errors"

var (
	// ErrNegativeCapacity is returned when a cache is configured with a
	// negative capacity.
	ErrNegativeCapacity = errors.New("cache: capacity must be >= 0")

	// ErrInvalidShards is returned when the shard count is not a positive
	// power of two.
	ErrInvalidShards = errors.New("cache: shard count must be a positive power of two")
)
