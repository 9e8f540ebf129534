package metrics

import (
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enabledConfig() ProfilingConfig {
	cfg := DefaultProfilingConfig()
	cfg.Enabled = true
	return cfg
}

func TestDisabledCollectorRecordsNothing(t *testing.T) {
	c := New()
	cfg := DefaultProfilingConfig() // Enabled=false
	c.Initialize(cfg)

	c.RecordCounter("x", 1, "test", "count")
	c.RecordGauge("x", 1, "test", "units")
	c.RecordTiming("x", 10, "test", "ms")

	assert.Equal(t, uint64(0), c.TotalRecorded())
	assert.Empty(t, c.AllMetrics())
}

func TestTypeGates(t *testing.T) {
	c := New()
	cfg := enabledConfig()
	cfg.EnableCounters = false
	c.Initialize(cfg)

	c.RecordCounter("c", 1, "test", "count")
	c.RecordGauge("g", 1, "test", "units")

	assert.Equal(t, uint64(0), c.Statistics("c").Count)
	assert.Equal(t, uint64(1), c.Statistics("g").Count)
}

func TestCategoryFilter(t *testing.T) {
	c := New()
	cfg := enabledConfig()
	cfg.EnabledCategories = []string{"network"}
	cfg.DisabledCategories = []string{"noise"}
	c.Initialize(cfg)

	c.IncrementCounter("a", "network")
	c.IncrementCounter("b", "noise")
	c.IncrementCounter("c", "other")

	assert.Equal(t, uint64(1), c.TotalRecorded())
	assert.Len(t, c.MetricsByCategory("network"), 1)
	assert.Empty(t, c.MetricsByCategory("noise"))
}

func TestDisabledCategoryWinsOverEnabled(t *testing.T) {
	c := New()
	cfg := enabledConfig()
	cfg.EnabledCategories = []string{"network"}
	cfg.DisabledCategories = []string{"network"}
	c.Initialize(cfg)

	c.IncrementCounter("a", "network")
	assert.Equal(t, uint64(0), c.TotalRecorded())
}

func TestTimingThresholdBoundary(t *testing.T) {
	c := New()
	cfg := enabledConfig()
	cfg.TimingThresholdMs = 5.0
	c.Initialize(cfg)

	c.RecordTiming("t", 4.999, "test", "ms")
	c.RecordTiming("t", 5.0, "test", "ms")
	c.RecordTiming("t", 5.001, "test", "ms")

	assert.Equal(t, uint64(2), c.Statistics("t").Count)
	assert.Equal(t, 5.0, c.Statistics("t").Min)
}

func TestSamplingRateOneAdmitsEverything(t *testing.T) {
	c := New()
	cfg := enabledConfig()
	cfg.EnableSampling = true
	cfg.SampleRate = 1
	c.Initialize(cfg)

	for i := 0; i < 10; i++ {
		c.IncrementCounter("x", "test")
	}
	assert.Equal(t, uint64(10), c.TotalRecorded())
}

func TestSamplingRateN(t *testing.T) {
	c := New()
	cfg := enabledConfig()
	cfg.EnableSampling = true
	cfg.SampleRate = 4
	c.Initialize(cfg)

	for i := 0; i < 12; i++ {
		c.IncrementCounter("x", "test")
	}
	assert.Equal(t, uint64(3), c.TotalRecorded())
}

// Threshold drops 0.5 before sampling sees it; of the surviving five, the
// sampler admits positions 0 and 3.
func TestThresholdThenSampling(t *testing.T) {
	c := New()
	cfg := enabledConfig()
	cfg.TimingThresholdMs = 1.0
	cfg.EnableSampling = true
	cfg.SampleRate = 3
	c.Initialize(cfg)

	for _, ms := range []float64{0.5, 1.0, 1.5, 2.0, 2.5, 3.0} {
		c.RecordTiming("t", ms, "test", "ms")
	}

	s := c.Statistics("t")
	assert.Equal(t, uint64(2), s.Count)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 2.5, s.Max)
	assert.InDelta(t, 3.5, s.Sum, 1e-9)
	assert.InDelta(t, 1.75, s.Mean, 1e-9)
}

func TestMemoryBoundCompaction(t *testing.T) {
	c := New()
	cfg := enabledConfig()
	cfg.MaxMetricsInMemory = 100
	cfg.AutoFlushWhenFull = true
	c.Initialize(cfg)

	for i := 0; i < 250; i++ {
		c.RecordGauge("g", float64(i), "test", "units")
	}

	series := c.AllMetrics()
	assert.LessOrEqual(t, len(series), 100)

	// Compaction keeps the newest samples and never rewinds statistics.
	s := c.Statistics("g")
	assert.Equal(t, uint64(100), s.Count)
	assert.Equal(t, 0.0, s.Min)
	assert.Equal(t, 99.0, s.Max)
	assert.Equal(t, uint64(100), c.TotalRecorded())
	assert.Equal(t, 50.0, series[0].Value)
}

func TestStatisticsWelford(t *testing.T) {
	c := New()
	c.Initialize(enabledConfig())

	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	for _, v := range values {
		c.RecordGauge("v", v, "test", "units")
	}

	s := c.Statistics("v")
	assert.Equal(t, uint64(8), s.Count)
	assert.InDelta(t, 5.0, s.Mean, 1e-9)
	assert.InDelta(t, 2.0, s.Stddev, 1e-9) // population stddev of the set
	assert.True(t, s.Min <= s.Mean && s.Mean <= s.Max)
	assert.False(t, math.IsNaN(s.Stddev))
}

func TestAllMetricsTimestampOrder(t *testing.T) {
	c := New()
	c.Initialize(enabledConfig())

	c.RecordCounter("a", 1, "test", "count")
	time.Sleep(2 * time.Millisecond)
	c.RecordCounter("b", 2, "test", "count")
	time.Sleep(2 * time.Millisecond)
	c.RecordCounter("a", 3, "test", "count")

	all := c.AllMetrics()
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].Timestamp.Before(all[i-1].Timestamp))
	}
	assert.Equal(t, []float64{1, 2, 3}, []float64{all[0].Value, all[1].Value, all[2].Value})
}

func TestClearIsIdempotentAndPreservesConfig(t *testing.T) {
	c := New()
	c.Initialize(enabledConfig())

	c.IncrementCounter("x", "test")
	c.Clear()
	c.Clear()

	assert.Equal(t, uint64(0), c.TotalRecorded())
	assert.Empty(t, c.AllMetrics())

	// Still enabled after Clear.
	c.IncrementCounter("x", "test")
	assert.Equal(t, uint64(1), c.TotalRecorded())
}

func TestExportStableWithoutNewSamples(t *testing.T) {
	c := New()
	c.Initialize(enabledConfig())
	c.RecordGauge("g", 1.5, "test", "units")

	first := c.ExportJSON()
	second := c.ExportJSON()
	assert.Equal(t, first, second)
}

func TestExportJSONFormat(t *testing.T) {
	c := New()
	c.Initialize(enabledConfig())
	c.RecordTiming("frame.duration_ms", 16.6667, "frame", "ms")

	out := c.ExportJSON()
	assert.Contains(t, out, `"name": "frame.duration_ms"`)
	assert.Contains(t, out, `"type": "timing"`)
	assert.Contains(t, out, `"value": 16.667`)
	assert.Contains(t, out, `"unit": "ms"`)
	assert.Contains(t, out, `"category": "frame"`)
}

func TestExportCSVFormat(t *testing.T) {
	c := New()
	c.Initialize(enabledConfig())
	c.RecordCounter("requests", 3, "network", "count")

	out := c.ExportCSV()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "name,type,value,unit,category", lines[0])
	assert.Equal(t, "requests,counter,3.000,count,network", lines[1])
}

func TestExportStatisticsJSON(t *testing.T) {
	c := New()
	c.Initialize(enabledConfig())
	c.RecordGauge("g", 1, "test", "units")
	c.RecordGauge("g", 3, "test", "units")

	out := c.ExportStatisticsJSON()
	assert.Contains(t, out, `"name": "g"`)
	assert.Contains(t, out, `"count": 2`)
	assert.Contains(t, out, `"sum": 4.000`)
	assert.Contains(t, out, `"min": 1.000`)
	assert.Contains(t, out, `"max": 3.000`)
	assert.Contains(t, out, `"mean": 2.000`)
}

func TestSaveToFile(t *testing.T) {
	c := New()
	c.Initialize(enabledConfig())
	c.IncrementCounter("x", "test")

	dir := t.TempDir()
	require.NoError(t, c.SaveToFile(filepath.Join(dir, "m.json"), "json"))
	require.NoError(t, c.SaveToFile(filepath.Join(dir, "m.csv"), "csv"))
	require.NoError(t, c.SaveToFile(filepath.Join(dir, "m_stats.json"), "stats"))

	err := c.SaveToFile(filepath.Join(dir, "m.xml"), "xml")
	require.ErrorIs(t, err, ErrUnknownFormat)
}

func TestDumpStatistics(t *testing.T) {
	c := New()
	c.Initialize(enabledConfig())
	c.RecordGauge("g", 2, "test", "units")

	var sb strings.Builder
	c.DumpStatistics(&sb)
	out := sb.String()
	assert.Contains(t, out, "Total metrics recorded: 1")
	assert.Contains(t, out, "g:")
	assert.Contains(t, out, "Count: 1")
}

func TestConcurrentRecording(t *testing.T) {
	c := New()
	cfg := enabledConfig()
	cfg.MaxMetricsInMemory = 100000
	c.Initialize(cfg)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				c.IncrementCounter("shared", "test")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(4000), c.TotalRecorded())
	assert.Equal(t, uint64(4000), c.Statistics("shared").Count)
}

func TestScopedTimer(t *testing.T) {
	c := New()
	c.Initialize(enabledConfig())

	timer := c.StartTimer("op", "test")
	time.Sleep(5 * time.Millisecond)
	timer.Stop()
	timer.Stop() // second stop records nothing

	s := c.Statistics("op")
	require.Equal(t, uint64(1), s.Count)
	assert.GreaterOrEqual(t, s.Min, 4.0)
	assert.False(t, timer.Active())
}

func TestScopedTimerCancel(t *testing.T) {
	c := New()
	c.Initialize(enabledConfig())

	timer := c.StartTimer("op", "test")
	timer.Cancel()
	timer.Stop()

	assert.Equal(t, uint64(0), c.Statistics("op").Count)
}

func TestPrometheusBridge(t *testing.T) {
	c := New()
	cfg := enabledConfig()
	cfg.PrometheusEnabled = true
	c.Initialize(cfg)
	require.NotNil(t, c.Bridge())

	c.RecordCounter("net.bytes-sent", 10, "network", "bytes")
	c.RecordCounter("net.bytes-sent", 5, "network", "bytes")
	c.RecordGauge("fps", 60, "performance", "fps")

	reg := c.Bridge().Registry()
	assert.Equal(t, 15.0, testutil.ToFloat64(c.Bridge().counter("net.bytes-sent")))
	assert.Equal(t, 60.0, testutil.ToFloat64(c.Bridge().gauge("fps")))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDefaultIsSingleton(t *testing.T) {
	assert.Same(t, Default(), Default())
}
