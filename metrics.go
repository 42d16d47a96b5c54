package cache

import "time"

// Op identifies a cache operation in metrics events.
type Op uint8

const (
	OpGet Op = iota
	OpPut
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Metrics receives instrumentation events from a cache.
//
// The cache calls the sink synchronously on the operation's goroutine, so
// implementations must be safe for concurrent use and should be cheap.
// A disabled cache never calls its sink.
type Metrics interface {
	// RecordRate counts one attempted operation.
	RecordRate(op Op)

	// RecordLatency records the duration of one operation. It is called
	// whenever RecordRate was called for the same operation, including on
	// error paths.
	RecordLatency(op Op, d time.Duration)

	// RecordError counts one recovered internal fault.
	RecordError(op Op)

	// RecordHit counts a get that found a resident entry.
	RecordHit()

	// RecordMiss counts a get that found nothing.
	RecordMiss()

	// RecordEntries reports the resident entry count after a mutation.
	RecordEntries(n int)

	// Close releases resources held by the sink, such as registered
	// collectors.
	Close() error
}

// nopMetrics discards every event.
type nopMetrics struct{}

var _ Metrics = nopMetrics{}

func (nopMetrics) RecordRate(Op)                   {}
func (nopMetrics) RecordLatency(Op, time.Duration) {}
func (nopMetrics) RecordError(Op)                  {}
func (nopMetrics) RecordHit()                      {}
func (nopMetrics) RecordMiss()                     {}
func (nopMetrics) RecordEntries(int)               {}
func (nopMetrics) Close() error                    { return nil }
