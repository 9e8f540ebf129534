package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Collector is the process-wide metrics store: a series map plus running
// statistics per name, fed through the admission pipeline. Use Default() for
// the shared instance; New() builds an isolated one for tests.
type Collector struct {
	// config is replaced only by Initialize; record paths read it without the
	// mutex, mirroring the reference behavior of a config snapshot.
	config ProfilingConfig

	mu     sync.Mutex
	series map[string][]MetricData
	stats  map[string]MetricStatistics

	sampleCounter uint64
	totalRecorded uint64

	bridge *PrometheusBridge
}

var (
	defaultCollector *Collector
	defaultOnce      sync.Once
)

// Default returns the shared collector. It starts idle; call Initialize to
// install a configuration.
func Default() *Collector {
	defaultOnce.Do(func() {
		defaultCollector = New()
	})
	return defaultCollector
}

// New creates an idle collector with the default (disabled) configuration.
func New() *Collector {
	return &Collector{
		config: DefaultProfilingConfig(),
		series: make(map[string][]MetricData),
		stats:  make(map[string]MetricStatistics),
	}
}

// Initialize clears all state and installs the configuration. Callable any
// number of times; tests rely on this to reset the shared instance.
func (c *Collector) Initialize(cfg ProfilingConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = cfg
	c.series = make(map[string][]MetricData)
	c.stats = make(map[string]MetricStatistics)
	atomic.StoreUint64(&c.totalRecorded, 0)
	atomic.StoreUint64(&c.sampleCounter, 0)

	c.bridge = nil
	if cfg.PrometheusEnabled {
		c.bridge = newPromBridge()
	}
}

// Clear drops samples and statistics but keeps the configuration.
func (c *Collector) Clear() {
	c.lock()
	defer c.unlock()
	c.series = make(map[string][]MetricData)
	c.stats = make(map[string]MetricStatistics)
	atomic.StoreUint64(&c.totalRecorded, 0)
}

// Config returns the installed configuration snapshot.
func (c *Collector) Config() ProfilingConfig { return c.config }

// TotalRecorded returns the number of samples ever admitted since Initialize
// or Clear.
func (c *Collector) TotalRecorded() uint64 { return atomic.LoadUint64(&c.totalRecorded) }

func (c *Collector) lock() {
	if c.config.ThreadSafe {
		c.mu.Lock()
	}
}

func (c *Collector) unlock() {
	if c.config.ThreadSafe {
		c.mu.Unlock()
	}
}

func (c *Collector) typeEnabled(t MetricType) bool {
	if !c.config.Enabled {
		return false
	}
	switch t {
	case Counter:
		return c.config.EnableCounters
	case Gauge:
		return c.config.EnableGauges
	case Timing:
		return c.config.EnableTimings
	case Histogram:
		return c.config.EnableHistograms
	default:
		return false
	}
}

// shouldSample admits one of every SampleRate samples. The counter advances
// only for samples that reached this pipeline stage.
func (c *Collector) shouldSample() bool {
	if !c.config.EnableSampling {
		return true
	}
	k := atomic.AddUint64(&c.sampleCounter, 1) - 1
	return k%c.config.SampleRate == 0
}

// checkMemoryLimit rejects once total admissions reach the bound; with
// auto-flush set it compacts oversized series first. The rejected sample is
// dropped either way.
func (c *Collector) checkMemoryLimit() bool {
	if atomic.LoadUint64(&c.totalRecorded) >= c.config.MaxMetricsInMemory {
		if c.config.AutoFlushWhenFull {
			c.compact()
		}
		return false
	}
	return true
}

// compact drops the oldest half of every series longer than half the memory
// bound. Statistics stay cumulative.
func (c *Collector) compact() {
	c.lock()
	defer c.unlock()
	half := c.config.MaxMetricsInMemory / 2
	for name, samples := range c.series {
		if uint64(len(samples)) > half {
			keep := samples[len(samples)/2:]
			trimmed := make([]MetricData, len(keep))
			copy(trimmed, keep)
			c.series[name] = trimmed
		}
	}
}

func (c *Collector) record(name string, t MetricType, value float64, category, unit string) {
	if !c.typeEnabled(t) {
		return
	}
	if !c.config.IsCategoryEnabled(category) {
		return
	}
	if t == Timing && value < c.config.TimingThresholdMs {
		return
	}
	if !c.shouldSample() {
		return
	}
	if !c.checkMemoryLimit() {
		return
	}

	data := MetricData{
		Name:      name,
		Type:      t,
		Value:     value,
		Timestamp: time.Now(),
		Unit:      unit,
		Category:  category,
	}

	c.lock()
	c.series[name] = append(c.series[name], data)
	stats, ok := c.stats[name]
	if !ok {
		stats = newStatistics(name)
	}
	stats.update(value)
	c.stats[name] = stats
	c.unlock()

	atomic.AddUint64(&c.totalRecorded, 1)

	if c.bridge != nil {
		c.bridge.observe(name, t, value)
	}
}

// RecordCounter admits one Counter sample.
func (c *Collector) RecordCounter(name string, value float64, category, unit string) {
	c.record(name, Counter, value, category, unit)
}

// RecordGauge admits one Gauge sample.
func (c *Collector) RecordGauge(name string, value float64, category, unit string) {
	c.record(name, Gauge, value, category, unit)
}

// RecordTiming admits one Timing sample, subject to the timing threshold.
func (c *Collector) RecordTiming(name string, durationMs float64, category, unit string) {
	c.record(name, Timing, durationMs, category, unit)
}

// IncrementCounter records a counter sample of 1 with unit "count".
func (c *Collector) IncrementCounter(name, category string) {
	c.RecordCounter(name, 1.0, category, "count")
}

// AllMetrics returns every stored sample across series, sorted ascending by
// timestamp.
func (c *Collector) AllMetrics() []MetricData {
	c.lock()
	var out []MetricData
	for _, samples := range c.series {
		out = append(out, samples...)
	}
	c.unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// MetricsByCategory returns every stored sample in the category.
func (c *Collector) MetricsByCategory(category string) []MetricData {
	c.lock()
	defer c.unlock()
	var out []MetricData
	for _, samples := range c.series {
		for _, m := range samples {
			if m.Category == category {
				out = append(out, m)
			}
		}
	}
	return out
}

// Statistics returns the aggregate for one name; the zero value when the name
// was never admitted.
func (c *Collector) Statistics(name string) MetricStatistics {
	c.lock()
	defer c.unlock()
	return c.stats[name]
}

// AllStatistics returns a snapshot of every aggregate.
func (c *Collector) AllStatistics() map[string]MetricStatistics {
	c.lock()
	defer c.unlock()
	out := make(map[string]MetricStatistics, len(c.stats))
	for name, s := range c.stats {
		out[name] = s
	}
	return out
}

// Bridge returns the prometheus mirror, or nil when disabled.
func (c *Collector) Bridge() *PrometheusBridge { return c.bridge }
