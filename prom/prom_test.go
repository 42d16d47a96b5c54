package prom_test

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/cache"
	"github.com/meigma/cache/prom"
)

func enabledConfig(id string) cache.Config {
	return cache.Config{ID: id, Enabled: true, CapacityBytes: 1 << 20}
}

// gatherFamily returns the metric family with the given fully qualified
// name, or nil when the registry does not expose it.
func gatherFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() == name {
			return fam
		}
	}
	return nil
}

// gatherValue reads a registered counter or gauge by name.
func gatherValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	fam := gatherFamily(t, reg, name)
	require.NotNil(t, fam, "metric %s not registered", name)
	require.Len(t, fam.GetMetric(), 1)

	m := fam.GetMetric()[0]
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	default:
		t.Fatalf("metric %s is neither counter nor gauge", name)
		return 0
	}
}

func gatherHistogram(t *testing.T, reg *prometheus.Registry, name string) *dto.Histogram {
	t.Helper()
	fam := gatherFamily(t, reg, name)
	require.NotNil(t, fam, "metric %s not registered", name)
	require.Len(t, fam.GetMetric(), 1)
	return fam.GetMetric()[0].GetHistogram()
}

func TestNewRegistersCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := prom.New(enabledConfig("frontend"), reg)
	require.NoError(t, err)
	defer sink.Close()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, fam := range families {
		names = append(names, fam.GetName())
	}
	assert.ElementsMatch(t, []string{
		"cache_frontendGetRequestRate",
		"cache_frontendPutRequestRate",
		"cache_frontendDeleteRequestRate",
		"cache_frontendGetLatencyMs",
		"cache_frontendPutLatencyMs",
		"cache_frontendDeleteLatencyMs",
		"cache_frontendGetErrorCount",
		"cache_frontendPutErrorCount",
		"cache_frontendDeleteErrorCount",
		"cache_frontendHitRate",
		"cache_frontendMissRate",
		"cache_frontendNumEntries",
	}, names)
}

func TestNewDisabledRegistersNothing(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := prom.New(cache.Config{ID: "off", Enabled: false}, reg)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)

	// Every method is a no-op on a disabled sink.
	sink.RecordRate(cache.OpGet)
	sink.RecordLatency(cache.OpPut, time.Millisecond)
	sink.RecordError(cache.OpDelete)
	sink.RecordHit()
	sink.RecordMiss()
	sink.RecordEntries(3)
	require.NoError(t, sink.Close())
}

func TestNewDuplicateIDFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := prom.New(enabledConfig("dup"), reg)
	require.NoError(t, err)
	defer sink.Close()

	_, err = prom.New(enabledConfig("dup"), reg)
	require.Error(t, err)
	assert.ErrorContains(t, err, "dup")

	// The failed construction must not leave partial registrations behind
	// that would block the surviving sink from being closed and recreated.
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 12)
}

func TestMetricsRecord(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := prom.New(enabledConfig("rec"), reg)
	require.NoError(t, err)
	defer sink.Close()

	sink.RecordRate(cache.OpGet)
	sink.RecordRate(cache.OpGet)
	sink.RecordRate(cache.OpPut)
	sink.RecordRate(cache.OpDelete)
	sink.RecordError(cache.OpPut)
	sink.RecordEntries(7)

	assert.InDelta(t, 2, gatherValue(t, reg, "cache_recGetRequestRate"), 0)
	assert.InDelta(t, 1, gatherValue(t, reg, "cache_recPutRequestRate"), 0)
	assert.InDelta(t, 1, gatherValue(t, reg, "cache_recDeleteRequestRate"), 0)
	assert.InDelta(t, 1, gatherValue(t, reg, "cache_recPutErrorCount"), 0)
	assert.Zero(t, gatherValue(t, reg, "cache_recGetErrorCount"))
	assert.InDelta(t, 7, gatherValue(t, reg, "cache_recNumEntries"), 0)

	expected := strings.NewReader(`
# HELP cache_recGetRequestRate Number of cache get attempts.
# TYPE cache_recGetRequestRate counter
cache_recGetRequestRate 2
`)
	assert.NoError(t, promtestutil.GatherAndCompare(reg, expected, "cache_recGetRequestRate"))
}

func TestMetricsLatencyMilliseconds(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := prom.New(enabledConfig("lat"), reg)
	require.NoError(t, err)
	defer sink.Close()

	sink.RecordLatency(cache.OpGet, 5*time.Millisecond)
	sink.RecordLatency(cache.OpGet, 1500*time.Microsecond)

	hist := gatherHistogram(t, reg, "cache_latGetLatencyMs")
	require.NotNil(t, hist)
	assert.Equal(t, uint64(2), hist.GetSampleCount())
	assert.InDelta(t, 6.5, hist.GetSampleSum(), 0.001)
}

func TestMetricsHitMissRates(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := prom.New(enabledConfig("rates"), reg)
	require.NoError(t, err)
	defer sink.Close()

	// No gets yet: both rates read zero rather than dividing by zero.
	assert.Zero(t, gatherValue(t, reg, "cache_ratesHitRate"))
	assert.Zero(t, gatherValue(t, reg, "cache_ratesMissRate"))

	sink.RecordHit()
	sink.RecordHit()
	sink.RecordHit()
	sink.RecordMiss()

	assert.InDelta(t, 0.75, gatherValue(t, reg, "cache_ratesHitRate"), 0.001)
	assert.InDelta(t, 0.25, gatherValue(t, reg, "cache_ratesMissRate"), 0.001)
}

func TestCloseUnregisters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := prom.New(enabledConfig("cycle"), reg)
	require.NoError(t, err)
	require.NoError(t, sink.Close())

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Empty(t, families)

	// A later instance with the same ID can register again.
	sink2, err := prom.New(enabledConfig("cycle"), reg)
	require.NoError(t, err)
	require.NoError(t, sink2.Close())
}

func TestCacheWithPromSink(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	cfg := enabledConfig("objmeta")
	sink, err := prom.New(cfg, reg)
	require.NoError(t, err)

	c, err := cache.New[string](cfg, nil, cache.WithMetrics(sink))
	require.NoError(t, err)
	defer c.Close()

	require.True(t, c.Put("a", "1"))
	require.True(t, c.Put("b", "2"))
	_, _ = c.Get("a")
	_, _ = c.Get("a")
	_, _ = c.Get("missing")
	c.Delete("b")

	assert.InDelta(t, 2, gatherValue(t, reg, "cache_objmetaPutRequestRate"), 0)
	assert.InDelta(t, 3, gatherValue(t, reg, "cache_objmetaGetRequestRate"), 0)
	assert.InDelta(t, 1, gatherValue(t, reg, "cache_objmetaDeleteRequestRate"), 0)

	assert.InDelta(t, 2.0/3.0, gatherValue(t, reg, "cache_objmetaHitRate"), 0.001)
	assert.InDelta(t, 1.0/3.0, gatherValue(t, reg, "cache_objmetaMissRate"), 0.001)
	assert.InDelta(t, 1, gatherValue(t, reg, "cache_objmetaNumEntries"), 0)

	hist := gatherHistogram(t, reg, "cache_objmetaPutLatencyMs")
	require.NotNil(t, hist)
	assert.Equal(t, uint64(2), hist.GetSampleCount())
}
