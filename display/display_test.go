package display

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsinghua-fib-lab/intersection-sim/clock"
	"github.com/tsinghua-fib-lab/intersection-sim/emergency"
	"github.com/tsinghua-fib-lab/intersection-sim/entity"
	"github.com/tsinghua-fib-lab/intersection-sim/entity/lane"
	"github.com/tsinghua-fib-lab/intersection-sim/metrics"
	"github.com/tsinghua-fib-lab/intersection-sim/scheduler"
	"github.com/tsinghua-fib-lab/intersection-sim/utils/config"
	"github.com/tsinghua-fib-lab/intersection-sim/utils/randengine"
)

type stubCtx struct {
	clk *clock.Clock
	rc  *config.RuntimeConfig
	rnd *randengine.Engine
	mtr *metrics.Metrics
	gmu sync.Mutex
}

func newStubCtx() *stubCtx {
	rc := config.NewRuntimeConfig(config.Config{})
	rc.SwitchCost = 0
	rc.CrossDelayBase = 0
	rc.CrossDelayJitter = 0
	c := &stubCtx{
		clk: clock.New(config.DefaultTickIntervalSec, rc.Duration),
		rc:  rc,
		rnd: randengine.New(1),
		mtr: metrics.New(time.Now()),
	}
	c.clk.Init()
	return c
}

func (c *stubCtx) Clock() *clock.Clock                  { return c.clk }
func (c *stubCtx) RuntimeConfig() *config.RuntimeConfig { return c.rc }
func (c *stubCtx) Rand() *randengine.Engine             { return c.rnd }
func (c *stubCtx) Metrics() entity.IMetrics             { return c.mtr }
func (c *stubCtx) LockGlobal()                          { c.gmu.Lock() }
func (c *stubCtx) TryLockGlobal() bool                  { return c.gmu.TryLock() }
func (c *stubCtx) UnlockGlobal()                        { c.gmu.Unlock() }

func newDisplay(t *testing.T) (*Display, *stubCtx, *lane.Manager) {
	t.Helper()
	ctx := newStubCtx()
	lanes := lane.NewManager(ctx)
	sched := scheduler.New(ctx)
	d := New(ctx, lanes, sched, ctx.mtr, emergency.New(), true)
	return d, ctx, lanes
}

func TestRefreshAndRender(t *testing.T) {
	d, _, lanes := newDisplay(t)
	lanes.Get(0).AddVehicle(7)
	lanes.Get(0).AddVehicle(8)
	d.Refresh()

	snaps := d.LaneSnapshots()
	assert.EqualValues(t, 2, snaps[0].QueueLength)
	assert.Equal(t, entity.StateReady, snaps[0].State)

	out := d.Render()
	assert.Contains(t, out, "North")
	assert.Contains(t, out, "READY")
	assert.Contains(t, out, "algorithm sjf")
	assert.NotContains(t, out, "\033[") // noColor模式不输出ANSI转义
}

func TestRefreshFallsBackToCacheWhenLocked(t *testing.T) {
	d, _, lanes := newDisplay(t)
	lanes.Get(2).AddVehicle(1)
	d.Refresh()
	require.EqualValues(t, 1, d.LaneSnapshots()[2].QueueLength)
	base := d.StaleReads()

	// 占住2号车道锁：刷新不阻塞，该车道保留上次缓存
	g := lanes.Get(2).Lock()
	done := make(chan struct{})
	go func() {
		d.Refresh()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Refresh blocked on a held lane lock")
	}
	g.Unlock()

	assert.EqualValues(t, 1, d.LaneSnapshots()[2].QueueLength)
	assert.Greater(t, d.StaleReads(), base)

	// 锁释放后刷新得到新值
	lanes.Get(2).AddVehicle(2)
	d.Refresh()
	assert.EqualValues(t, 2, d.LaneSnapshots()[2].QueueLength)
}

func TestRefreshSkipsMetricsWhenGlobalLockHeld(t *testing.T) {
	d, ctx, _ := newDisplay(t)
	ctx.LockGlobal()
	ctx.mtr.VehicleProcessed(0, 1.5)
	ctx.mtr.AdvanceTime(time.Now())
	base := d.StaleReads()
	d.Refresh()
	ctx.UnlockGlobal()

	// 全局锁被占：指标维持零值缓存
	assert.Greater(t, d.StaleReads(), base)
	assert.NotContains(t, d.Render(), "vehicles 1/")

	d.Refresh()
	assert.Contains(t, d.Render(), "vehicles 1/")
}

func TestEmergencyBanner(t *testing.T) {
	d, _, _ := newDisplay(t)
	d.Refresh()
	assert.NotContains(t, d.Render(), "EMERGENCY")

	d.emerg.Add(1, 42)
	d.Refresh()
	assert.Contains(t, d.Render(), "*** EMERGENCY ***")

	// 事件全部驶离后横幅消失
	d.emerg.Reset()
	d.Refresh()
	assert.NotContains(t, d.Render(), "EMERGENCY")
}

func TestBarWidthAndOverflow(t *testing.T) {
	d, _, _ := newDisplay(t)
	bar := d.bar(10, 20)
	assert.Equal(t, "["+strings.Repeat("#", 10)+strings.Repeat(".", 10)+"]", bar)
	// 超出容量的长度封顶
	assert.Equal(t, "["+strings.Repeat("#", 20)+"]", d.bar(40, 20))
	assert.Equal(t, "", d.bar(1, 0))
}
