// Package profiling ties the metrics collector into the host tick: frame
// timing, periodic file export and a final statistics dump at shutdown.
package profiling

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/girderio/girder/pkg/logging"
	"github.com/girderio/girder/pkg/metrics"
	"github.com/girderio/girder/pkg/module"
)

// FrameTimingMetric is the reserved series name for per-frame duration.
const FrameTimingMetric = "frame.duration_ms"

// FrameCategory tags the harness's own samples.
const FrameCategory = "frame"

// Module drives the metrics collector from the realtime loop.
type Module struct {
	cfg       metrics.ProfilingConfig
	collector *metrics.Collector
	log       logging.Logger

	// statsOut receives the final statistics dump. Defaults to stdout.
	statsOut io.Writer

	lastFrame   time.Time
	frameCount  uint64
	exportTimer float64
	exportCount int
	initialized bool
}

// New creates the harness over the shared collector.
func New(cfg metrics.ProfilingConfig) *Module {
	return NewWithCollector(cfg, metrics.Default())
}

// NewWithCollector creates the harness over an explicit collector.
func NewWithCollector(cfg metrics.ProfilingConfig, collector *metrics.Collector) *Module {
	return &Module{
		cfg:       cfg,
		collector: collector,
		log:       logging.New("[profiling]"),
		statsOut:  os.Stdout,
	}
}

// Name implements module.Module.
func (m *Module) Name() string { return "profiling" }

// Priority implements module.Module. The harness initializes before the
// modules it measures.
func (m *Module) Priority() int { return 100 }

// Init installs the configuration into the collector and prepares the export
// directory.
func (m *Module) Init(_ *module.Host) error {
	if m.initialized {
		return nil
	}

	m.collector.Initialize(m.cfg)

	if m.cfg.Enabled {
		m.log.Infof("profiling enabled (counters=%v gauges=%v timings=%v)",
			m.cfg.EnableCounters, m.cfg.EnableGauges, m.cfg.EnableTimings)
		if m.cfg.AutoExportEnabled {
			m.log.Infof("auto-export every %.0fs to %s", m.cfg.AutoExportIntervalSeconds, m.cfg.ExportPath)
			if err := os.MkdirAll(m.cfg.ExportPath, 0o755); err != nil {
				return fmt.Errorf("profiling: create export path: %w", err)
			}
		}
	} else {
		m.log.Infof("profiling disabled")
	}

	m.lastFrame = time.Now()
	m.initialized = true
	return nil
}

// Shutdown performs a final export and dumps statistics.
func (m *Module) Shutdown() {
	if !m.initialized {
		return
	}
	if m.cfg.Enabled && m.cfg.AutoExportEnabled {
		m.log.Infof("final metrics export")
		m.exportMetrics()
	}
	if m.cfg.Enabled {
		m.log.Infof("frames profiled: %d, exports: %d", m.frameCount, m.exportCount)
		m.collector.DumpStatistics(m.statsOut)
	}
	m.initialized = false
}

// OnTick records the frame duration and advances the export timer.
func (m *Module) OnTick(delta float64) {
	if !m.cfg.Enabled {
		return
	}

	if m.cfg.ProfileFrames {
		now := time.Now()
		frameMs := float64(now.Sub(m.lastFrame).Microseconds()) / 1000.0
		m.collector.RecordTiming(FrameTimingMetric, frameMs, FrameCategory, "ms")
		m.lastFrame = now
		m.frameCount++

		if frameMs > 0 {
			m.collector.RecordGauge("fps", 1000.0/frameMs, FrameCategory, "fps")
		}
	}

	if m.cfg.AutoExportEnabled {
		m.exportTimer += delta
		if m.exportTimer >= m.cfg.AutoExportIntervalSeconds {
			m.exportMetrics()
			m.exportTimer = 0
		}
	}
}

// ExportCount returns the number of completed exports.
func (m *Module) ExportCount() int { return m.exportCount }

// exportFilename builds <exportPath>/metrics_<index>_<timestamp>.<ext>.
func (m *Module) exportFilename() string {
	stamp := time.Now().Format("20060102_150405")
	ext := m.cfg.ExportFormat
	if ext != "json" && ext != "csv" {
		ext = "json"
	}
	name := fmt.Sprintf("metrics_%d_%s.%s", m.exportCount+1, stamp, ext)
	return filepath.Join(m.cfg.ExportPath, name)
}

func (m *Module) exportMetrics() {
	filename := m.exportFilename()
	format := m.cfg.ExportFormat
	if format != "json" && format != "csv" {
		format = "json"
	}

	if err := m.collector.SaveToFile(filename, format); err != nil {
		m.log.Errorf("metrics export to %s failed: %v", filename, err)
		return
	}
	m.exportCount++
	m.log.Infof("exported metrics #%d to %s", m.exportCount, filename)

	// Statistics ride along as a sibling file.
	statsName := filename[:len(filename)-len(filepath.Ext(filename))] + "_stats.json"
	if err := m.collector.SaveToFile(statsName, "stats"); err != nil {
		m.log.Warnf("statistics export to %s failed: %v", statsName, err)
	}
}
