package metrics

import "time"

// ScopedTimer measures one span and submits it as a Timing sample when
// stopped. Typical use:
//
//	defer metrics.StartTimer("db.query").Stop()
type ScopedTimer struct {
	collector *Collector
	name      string
	category  string
	start     time.Time
	active    bool
}

// StartTimer starts a timer reporting to the shared collector under the
// default category.
func StartTimer(name string) *ScopedTimer {
	return Default().StartTimer(name, "performance")
}

// StartTimer starts a timer reporting to this collector.
func (c *Collector) StartTimer(name, category string) *ScopedTimer {
	return &ScopedTimer{
		collector: c,
		name:      name,
		category:  category,
		start:     time.Now(),
		active:    true,
	}
}

// Stop submits the elapsed time in milliseconds as one Timing sample. Further
// calls are no-ops.
func (t *ScopedTimer) Stop() {
	if !t.active {
		return
	}
	t.active = false
	t.collector.RecordTiming(t.name, t.ElapsedMs(), t.category, "ms")
}

// Cancel deactivates the timer without recording.
func (t *ScopedTimer) Cancel() { t.active = false }

// Active reports whether Stop will still record.
func (t *ScopedTimer) Active() bool { return t.active }

// ElapsedMs returns the time since start in milliseconds, whether or not the
// timer is still active.
func (t *ScopedTimer) ElapsedMs() float64 {
	return float64(time.Since(t.start).Microseconds()) / 1000.0
}
