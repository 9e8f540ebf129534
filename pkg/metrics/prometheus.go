package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusBridge mirrors admitted samples into a dedicated prometheus
// registry so a scrape endpoint can expose them. Counters accumulate, gauges
// track the latest value, timings feed a histogram.
type PrometheusBridge struct {
	registry *prometheus.Registry

	mu         sync.RWMutex
	counters   map[string]prometheus.Counter
	gauges     map[string]prometheus.Gauge
	histograms map[string]prometheus.Histogram
}

func newPromBridge() *PrometheusBridge {
	return &PrometheusBridge{
		registry:   prometheus.NewRegistry(),
		counters:   make(map[string]prometheus.Counter),
		gauges:     make(map[string]prometheus.Gauge),
		histograms: make(map[string]prometheus.Histogram),
	}
}

// Registry exposes the backing registry for scrape handlers.
func (b *PrometheusBridge) Registry() *prometheus.Registry { return b.registry }

func (b *PrometheusBridge) observe(name string, t MetricType, value float64) {
	switch t {
	case Counter:
		if value >= 0 {
			b.counter(name).Add(value)
		}
	case Gauge:
		b.gauge(name).Set(value)
	case Timing, Histogram:
		b.histogram(name).Observe(value)
	}
}

func (b *PrometheusBridge) counter(name string) prometheus.Counter {
	key := sanitizeMetricName(name)

	b.mu.RLock()
	c, ok := b.counters[key]
	b.mu.RUnlock()
	if ok {
		return c
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.counters[key]; ok {
		return c
	}
	c = promauto.With(b.registry).NewCounter(prometheus.CounterOpts{
		Name: key,
		Help: "Mirrored counter " + name,
	})
	b.counters[key] = c
	return c
}

func (b *PrometheusBridge) gauge(name string) prometheus.Gauge {
	key := sanitizeMetricName(name)

	b.mu.RLock()
	g, ok := b.gauges[key]
	b.mu.RUnlock()
	if ok {
		return g
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if g, ok := b.gauges[key]; ok {
		return g
	}
	g = promauto.With(b.registry).NewGauge(prometheus.GaugeOpts{
		Name: key,
		Help: "Mirrored gauge " + name,
	})
	b.gauges[key] = g
	return g
}

func (b *PrometheusBridge) histogram(name string) prometheus.Histogram {
	key := sanitizeMetricName(name)

	b.mu.RLock()
	h, ok := b.histograms[key]
	b.mu.RUnlock()
	if ok {
		return h
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if h, ok := b.histograms[key]; ok {
		return h
	}
	h = promauto.With(b.registry).NewHistogram(prometheus.HistogramOpts{
		Name:    key,
		Help:    "Mirrored timing " + name,
		Buckets: prometheus.DefBuckets,
	})
	b.histograms[key] = h
	return h
}

// sanitizeMetricName maps an arbitrary metric name onto the prometheus
// charset [a-zA-Z_:][a-zA-Z0-9_:]*.
func sanitizeMetricName(name string) string {
	out := []byte(name)
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_', c == ':':
		case c >= '0' && c <= '9':
			if i == 0 {
				out[i] = '_'
			}
		default:
			out[i] = '_'
		}
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}
