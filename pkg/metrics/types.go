package metrics

import (
	"math"
	"time"
)

// MetricType classifies a sample.
type MetricType int

const (
	Counter MetricType = iota
	Gauge
	Timing
	Histogram
)

// String returns the export name of the type.
func (t MetricType) String() string {
	switch t {
	case Counter:
		return "counter"
	case Gauge:
		return "gauge"
	case Timing:
		return "timing"
	case Histogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// MetricData is one admitted sample.
type MetricData struct {
	Name      string
	Type      MetricType
	Value     float64
	Timestamp time.Time
	Unit      string // "ms", "bytes", "count", ...
	Category  string // "performance", "memory", "network", ...
}

// MetricStatistics is the running aggregate for one metric name. It is
// cumulative over the session: compaction evicts samples but never rewinds
// these counters.
type MetricStatistics struct {
	Name   string
	Count  uint64
	Sum    float64
	Min    float64
	Max    float64
	Mean   float64
	Stddev float64

	// m2 is the Welford sum of squared deviations; Stddev is derived from it
	// at snapshot time.
	m2 float64
}

func newStatistics(name string) MetricStatistics {
	return MetricStatistics{
		Name: name,
		Min:  math.MaxFloat64,
		Max:  -math.MaxFloat64,
	}
}

// update folds one value into the aggregate (Welford for the variance term).
func (s *MetricStatistics) update(value float64) {
	s.Count++
	s.Sum += value
	if value < s.Min {
		s.Min = value
	}
	if value > s.Max {
		s.Max = value
	}

	oldMean := s.Mean
	s.Mean = s.Sum / float64(s.Count)
	s.m2 += (value - oldMean) * (value - s.Mean)
	s.Stddev = math.Sqrt(s.m2 / float64(s.Count))
}
