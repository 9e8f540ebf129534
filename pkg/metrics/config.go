package metrics

// ProfilingConfig controls the collector's admission pipeline and the
// profiling harness's export behavior.
type ProfilingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Per-type gates.
	EnableCounters   bool `yaml:"enable_counters" json:"enable_counters"`
	EnableGauges     bool `yaml:"enable_gauges" json:"enable_gauges"`
	EnableTimings    bool `yaml:"enable_timings" json:"enable_timings"`
	EnableHistograms bool `yaml:"enable_histograms" json:"enable_histograms"`

	// Timings below the threshold are dropped before sampling.
	TimingThresholdMs float64 `yaml:"timing_threshold_ms" json:"timing_threshold_ms"`

	// Histogram shape (data model only; buckets are not aggregated).
	HistogramBuckets  uint32  `yaml:"histogram_buckets" json:"histogram_buckets"`
	HistogramMinValue float64 `yaml:"histogram_min_value" json:"histogram_min_value"`
	HistogramMaxValue float64 `yaml:"histogram_max_value" json:"histogram_max_value"`

	// Sampling admits one of every SampleRate samples that reach it.
	EnableSampling bool   `yaml:"enable_sampling" json:"enable_sampling"`
	SampleRate     uint64 `yaml:"sample_rate" json:"sample_rate"`

	// Memory bound. When total admissions reach MaxMetricsInMemory, further
	// samples are rejected; with AutoFlushWhenFull each oversized series is
	// compacted to its newest half.
	MaxMetricsInMemory uint64 `yaml:"max_metrics_in_memory" json:"max_metrics_in_memory"`
	AutoFlushWhenFull  bool   `yaml:"auto_flush_when_full" json:"auto_flush_when_full"`

	// Export settings, consumed by the profiling harness.
	AutoExportEnabled         bool    `yaml:"auto_export_enabled" json:"auto_export_enabled"`
	AutoExportIntervalSeconds float64 `yaml:"auto_export_interval_seconds" json:"auto_export_interval_seconds"`
	ExportFormat              string  `yaml:"export_format" json:"export_format"` // "json", "csv", "stats"
	ExportPath                string  `yaml:"export_path" json:"export_path"`

	// Category filters. Empty enabled list admits every category not
	// explicitly disabled.
	EnabledCategories  []string `yaml:"enabled_categories" json:"enabled_categories"`
	DisabledCategories []string `yaml:"disabled_categories" json:"disabled_categories"`

	// ThreadSafe=false elides the collector mutex; the caller must then keep
	// all access on one goroutine.
	ThreadSafe bool `yaml:"thread_safe" json:"thread_safe"`

	// Realtime-loop integration.
	ProfileFrames        bool `yaml:"profile_frames" json:"profile_frames"`
	ProfileModuleUpdates bool `yaml:"profile_module_updates" json:"profile_module_updates"`
	ProfilePluginUpdates bool `yaml:"profile_plugin_updates" json:"profile_plugin_updates"`

	// PrometheusEnabled mirrors admitted samples into a prometheus registry.
	PrometheusEnabled bool `yaml:"prometheus_enabled" json:"prometheus_enabled"`
}

// DefaultProfilingConfig returns the baseline config: collection disabled,
// everything else at its usual value.
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Enabled:                   false,
		EnableCounters:            true,
		EnableGauges:              true,
		EnableTimings:             true,
		EnableHistograms:          true,
		HistogramBuckets:          10,
		HistogramMaxValue:         100.0,
		SampleRate:                100,
		MaxMetricsInMemory:        10000,
		AutoFlushWhenFull:         true,
		AutoExportIntervalSeconds: 60.0,
		ExportFormat:              "json",
		ExportPath:                "./metrics/",
		ThreadSafe:                true,
	}
}

// DevelopmentProfilingConfig enables collection, frame/module/plugin profiling
// and a 30s auto-export.
func DevelopmentProfilingConfig() ProfilingConfig {
	cfg := DefaultProfilingConfig()
	cfg.Enabled = true
	cfg.AutoExportEnabled = true
	cfg.AutoExportIntervalSeconds = 30.0
	cfg.ProfileFrames = true
	cfg.ProfileModuleUpdates = true
	cfg.ProfilePluginUpdates = true
	return cfg
}

// ProductionProfilingConfig disables collection entirely.
func ProductionProfilingConfig() ProfilingConfig {
	cfg := DefaultProfilingConfig()
	cfg.Enabled = false
	return cfg
}

// IsCategoryEnabled applies the category filter: the disabled list wins, then
// an empty enabled list admits everything.
func (c *ProfilingConfig) IsCategoryEnabled(category string) bool {
	for _, d := range c.DisabledCategories {
		if d == category {
			return false
		}
	}
	if len(c.EnabledCategories) == 0 {
		return true
	}
	for _, e := range c.EnabledCategories {
		if e == category {
			return true
		}
	}
	return false
}
