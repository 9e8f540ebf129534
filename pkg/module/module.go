package module

import (
	"context"
	"sort"
	"time"

	"github.com/girderio/girder/pkg/bus"
	"github.com/girderio/girder/pkg/logging"
)

// Module is one unit of application functionality managed by the Host.
// Higher Priority initializes earlier; shutdown runs in reverse order.
type Module interface {
	Name() string
	Priority() int
	Init(host *Host) error
	Shutdown()
}

// Ticker is implemented by modules that want the realtime tick.
type Ticker interface {
	OnTick(delta float64)
}

// Host owns the module registry, the event publisher and the realtime loop.
type Host struct {
	log       logging.Logger
	publisher bus.Publisher
	modules   []Module
	inited    []Module
}

// NewHost creates an empty host publishing to pub. A nil publisher is
// replaced with the discarding one.
func NewHost(pub bus.Publisher) *Host {
	if pub == nil {
		pub = bus.Nop()
	}
	return &Host{
		log:       logging.New("[host]"),
		publisher: pub,
	}
}

// Publisher returns the event sink modules emit through.
func (h *Host) Publisher() bus.Publisher { return h.publisher }

// Register adds a module. Call before Init.
func (h *Host) Register(m Module) {
	h.modules = append(h.modules, m)
}

// Init initializes all registered modules in descending priority order. On
// the first failure, already-initialized modules are shut down in reverse and
// the error is returned.
func (h *Host) Init() error {
	ordered := make([]Module, len(h.modules))
	copy(ordered, h.modules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() > ordered[j].Priority()
	})

	for _, m := range ordered {
		h.log.Infof("init module %s", m.Name())
		if err := m.Init(h); err != nil {
			h.log.Errorf("module %s failed to init: %v", m.Name(), err)
			h.Shutdown()
			return err
		}
		h.inited = append(h.inited, m)
	}
	return nil
}

// Shutdown stops initialized modules in reverse initialization order.
// Idempotent.
func (h *Host) Shutdown() {
	for i := len(h.inited) - 1; i >= 0; i-- {
		m := h.inited[i]
		h.log.Infof("shutdown module %s", m.Name())
		m.Shutdown()
	}
	h.inited = nil
}

// Tick fans one frame out to every ticking module.
func (h *Host) Tick(delta float64) {
	for _, m := range h.inited {
		if t, ok := m.(Ticker); ok {
			t.OnTick(delta)
		}
	}
}

// Run drives the tick loop at targetHz until ctx is done. Delta is measured
// from the monotonic clock, so slow frames report their true duration.
func (h *Host) Run(ctx context.Context, targetHz float64) {
	if targetHz <= 0 {
		targetHz = 60
	}
	interval := time.Duration(float64(time.Second) / targetHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.Tick(now.Sub(last).Seconds())
			last = now
		}
	}
}
