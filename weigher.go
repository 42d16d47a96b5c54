package cache

// Weigher computes the logical weight of an entry at admission time.
//
// Weighers must be pure and non-negative. The weight is computed once per
// Put and charged against the cache's capacity for as long as the entry is
// resident. A weigher that panics or returns a negative weight causes the
// put to be rejected and counted as an operation error.
type Weigher[V any] func(key string, value V) int

// Sizer is implemented by values that can report their own payload size.
type Sizer interface {
	SizeBytes() int
}

// DefaultWeigher charges an entry the key length plus the payload size.
//
// The payload size is len(v) for []byte and string values and v.SizeBytes()
// for values implementing [Sizer]. Other types contribute nothing beyond the
// key length; callers storing opaque values should supply their own Weigher.
func DefaultWeigher[V any](key string, value V) int {
	switch v := any(value).(type) {
	case []byte:
		return len(key) + len(v)
	case string:
		return len(key) + len(v)
	case Sizer:
		return len(key) + v.SizeBytes()
	default:
		return len(key)
	}
}
