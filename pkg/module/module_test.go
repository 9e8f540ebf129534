package module

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModule struct {
	name     string
	priority int
	initErr  error

	log    *[]string
	ticks  int
	deltas []float64
}

func (f *fakeModule) Name() string  { return f.name }
func (f *fakeModule) Priority() int { return f.priority }

func (f *fakeModule) Init(*Host) error {
	*f.log = append(*f.log, "init:"+f.name)
	return f.initErr
}

func (f *fakeModule) Shutdown() {
	*f.log = append(*f.log, "shutdown:"+f.name)
}

func (f *fakeModule) OnTick(delta float64) {
	f.ticks++
	f.deltas = append(f.deltas, delta)
}

func TestInitOrderByPriorityShutdownReversed(t *testing.T) {
	var log []string
	low := &fakeModule{name: "low", priority: 1, log: &log}
	high := &fakeModule{name: "high", priority: 10, log: &log}

	h := NewHost(nil)
	h.Register(low)
	h.Register(high)
	require.NoError(t, h.Init())
	h.Shutdown()

	assert.Equal(t, []string{"init:high", "init:low", "shutdown:low", "shutdown:high"}, log)
}

func TestInitFailureRollsBack(t *testing.T) {
	var log []string
	ok := &fakeModule{name: "ok", priority: 10, log: &log}
	bad := &fakeModule{name: "bad", priority: 1, log: &log, initErr: errors.New("boom")}

	h := NewHost(nil)
	h.Register(ok)
	h.Register(bad)
	require.Error(t, h.Init())

	assert.Equal(t, []string{"init:ok", "init:bad", "shutdown:ok"}, log)
}

func TestTickReachesTickers(t *testing.T) {
	var log []string
	m := &fakeModule{name: "m", priority: 0, log: &log}

	h := NewHost(nil)
	h.Register(m)
	require.NoError(t, h.Init())
	defer h.Shutdown()

	h.Tick(0.016)
	h.Tick(0.032)

	assert.Equal(t, 2, m.ticks)
	assert.Equal(t, []float64{0.016, 0.032}, m.deltas)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	var log []string
	m := &fakeModule{name: "m", priority: 0, log: &log}

	h := NewHost(nil)
	h.Register(m)
	require.NoError(t, h.Init())
	defer h.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx, 200)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.Greater(t, m.ticks, 5)
	for _, d := range m.deltas {
		assert.Greater(t, d, 0.0)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	var log []string
	m := &fakeModule{name: "m", priority: 0, log: &log}

	h := NewHost(nil)
	h.Register(m)
	require.NoError(t, h.Init())
	h.Shutdown()
	h.Shutdown()

	assert.Equal(t, []string{"init:m", "shutdown:m"}, log)
}
