// Package compress provides transparent zstd compression for byte-valued
// cache instances, trading CPU for weight-budget headroom.
package compress

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/meigma/cache"
)

// Codec identifies the encoding of a stored payload.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecZstd
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

const (
	defaultMinSize         = 1 << 10
	defaultMaxDecodedBytes = 64 << 20
)

// Cache wraps a byte-valued cache with transparent zstd compression.
//
// Put compresses payloads at or above the configured minimum size and keeps
// the compressed form only when it is smaller than the original, so the
// wrapped cache's weight budget accounts the resident bytes. Get
// transparently decodes. A stored payload that fails to decode is dropped
// and reported as a miss.
//
// Each stored value carries a one-byte codec prefix ahead of the payload.
type Cache struct {
	cache   *cache.Cache[[]byte]
	minSize int
	enc     *zstd.Encoder
	dec     *zstd.Decoder
}

// Option configures a Cache.
type Option func(*options)

type options struct {
	minSize         int
	level           zstd.EncoderLevel
	maxDecodedBytes uint64
}

// WithMinSize sets the smallest payload size considered for compression.
// Smaller payloads are stored as-is. Defaults to 1 KiB.
func WithMinSize(n int) Option {
	return func(o *options) {
		o.minSize = n
	}
}

// WithEncoderLevel sets the zstd compression level.
// Defaults to zstd.SpeedDefault.
func WithEncoderLevel(level zstd.EncoderLevel) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithMaxDecodedBytes bounds the memory a single decode may allocate.
// Defaults to 64 MiB.
func WithMaxDecodedBytes(n uint64) Option {
	return func(o *options) {
		o.maxDecodedBytes = n
	}
}

// New wraps c with transparent compression.
func New(c *cache.Cache[[]byte], opts ...Option) (*Cache, error) {
	if c == nil {
		return nil, errors.New("compress: cache is nil")
	}

	o := options{
		minSize:         defaultMinSize,
		level:           zstd.SpeedDefault,
		maxDecodedBytes: defaultMaxDecodedBytes,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&o)
	}
	if o.minSize < 0 {
		return nil, errors.New("compress: min size must be >= 0")
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(o.level),
		zstd.WithEncoderConcurrency(1),
		zstd.WithLowerEncoderMem(true),
	)
	if err != nil {
		return nil, fmt.Errorf("compress: new encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(o.maxDecodedBytes),
	)
	if err != nil {
		_ = enc.Close() //nolint:errcheck // constructor failure path
		return nil, fmt.Errorf("compress: new decoder: %w", err)
	}

	return &Cache{
		cache:   c,
		minSize: o.minSize,
		enc:     enc,
		dec:     dec,
	}, nil
}

// Put stores value under key, compressing it when worthwhile.
// The report mirrors the wrapped cache's Put.
func (c *Cache) Put(key string, value []byte) bool {
	return c.cache.Put(key, c.encode(value))
}

// Get returns the decoded payload stored under key.
//
// A resident payload that fails to decode is removed so the next Get can
// recompute instead of failing forever, and this Get reports a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	stored, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}

	payload, err := c.decode(stored)
	if err != nil {
		c.cache.Delete(key)
		return nil, false
	}
	return payload, true
}

// Delete removes the entry stored under key from the wrapped cache.
func (c *Cache) Delete(key string) bool {
	return c.cache.Delete(key)
}

// Len returns the number of resident entries in the wrapped cache.
func (c *Cache) Len() int {
	return c.cache.Len()
}

// WeightUsed returns the resident weight of the wrapped cache, which
// accounts the stored (possibly compressed) bytes.
func (c *Cache) WeightUsed() int64 {
	return c.cache.WeightUsed()
}

// Stats returns the wrapped cache's stats snapshot.
func (c *Cache) Stats() cache.Stats {
	return c.cache.Stats()
}

// Flush removes every entry from the wrapped cache.
func (c *Cache) Flush() {
	c.cache.Flush()
}

// Close closes the wrapped cache and releases the codec resources.
func (c *Cache) Close() error {
	err := c.cache.Close()
	if cerr := c.enc.Close(); err == nil {
		err = cerr
	}
	c.dec.Close()
	return err
}

// encode frames value with a codec byte, compressing when the payload
// meets the minimum size and compression actually shrinks it.
func (c *Cache) encode(value []byte) []byte {
	if len(value) < c.minSize {
		return frame(CodecNone, value)
	}

	buf := make([]byte, 1, 1+len(value))
	buf[0] = byte(CodecZstd)
	buf = c.enc.EncodeAll(value, buf)
	if len(buf)-1 >= len(value) {
		// Incompressible payload, keep the original bytes
		return frame(CodecNone, value)
	}
	return buf
}

func (c *Cache) decode(stored []byte) ([]byte, error) {
	if len(stored) == 0 {
		return nil, errors.New("compress: empty frame")
	}

	switch Codec(stored[0]) {
	case CodecNone:
		return stored[1:], nil
	case CodecZstd:
		payload, err := c.dec.DecodeAll(stored[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("compress: decode: %w", err)
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("compress: unknown codec 0x%02x", stored[0])
	}
}

func frame(codec Codec, payload []byte) []byte {
	buf := make([]byte, 1+len(payload))
	buf[0] = byte(codec)
	copy(buf[1:], payload)
	return buf
}
