package lane

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsinghua-fib-lab/intersection-sim/clock"
	"github.com/tsinghua-fib-lab/intersection-sim/entity"
	"github.com/tsinghua-fib-lab/intersection-sim/utils/config"
	"github.com/tsinghua-fib-lab/intersection-sim/utils/randengine"
)

type stubMetrics struct{}

func (stubMetrics) VehicleProcessed(int32, float64) {}
func (stubMetrics) VehicleDropped(int32)            {}
func (stubMetrics) ContextSwitch()                  {}
func (stubMetrics) InvariantViolation()             {}

type stubCtx struct {
	clk *clock.Clock
	rc  *config.RuntimeConfig
	rnd *randengine.Engine
	gmu sync.Mutex
}

func newStubCtx() *stubCtx {
	rc := config.NewRuntimeConfig(config.Config{})
	return &stubCtx{
		clk: clock.New(config.DefaultTickIntervalSec, rc.Duration),
		rc:  rc,
		rnd: randengine.New(1),
	}
}

func (c *stubCtx) Clock() *clock.Clock                  { return c.clk }
func (c *stubCtx) RuntimeConfig() *config.RuntimeConfig { return c.rc }
func (c *stubCtx) Rand() *randengine.Engine             { return c.rnd }
func (c *stubCtx) Metrics() entity.IMetrics             { return stubMetrics{} }
func (c *stubCtx) LockGlobal()                          { c.gmu.Lock() }
func (c *stubCtx) TryLockGlobal() bool                  { return c.gmu.TryLock() }
func (c *stubCtx) UnlockGlobal()                        { c.gmu.Unlock() }

func TestNewLaneValidation(t *testing.T) {
	ctx := newStubCtx()
	assert.Nil(t, newLane(ctx, -1, 10))
	assert.Nil(t, newLane(ctx, entity.NumLanes, 10))
	assert.Nil(t, newLane(ctx, 0, 0))

	l := newLane(ctx, 0, 10)
	require.NotNil(t, l)
	assert.Equal(t, entity.StateWaiting, l.State())
	assert.Equal(t, "Lane 0 (North)", l.String())
}

func TestAddVehicleWakesWaitingLane(t *testing.T) {
	l := newLane(newStubCtx(), 1, 5)
	require.True(t, l.AddVehicle(100))
	assert.Equal(t, entity.StateReady, l.State())
	assert.EqualValues(t, 1, l.QueueLength())

	// READY状态下继续入队不再改变状态
	require.True(t, l.AddVehicle(101))
	assert.Equal(t, entity.StateReady, l.State())
	assert.EqualValues(t, 2, l.QueueLength())
}

func TestOverflowDropsVehicle(t *testing.T) {
	capacity := config.DefaultLaneCapacity
	l := newLane(newStubCtx(), 0, capacity)
	for i := 0; i < capacity; i++ {
		require.True(t, l.AddVehicle(int32(i)))
	}
	// 队列满：丢弃且长度不变
	assert.False(t, l.AddVehicle(999))
	assert.EqualValues(t, capacity, l.QueueLength())
	assert.EqualValues(t, 1, l.OverflowCount())

	// FIFO顺序不受溢出影响
	assert.EqualValues(t, 0, l.RemoveVehicle())
	assert.EqualValues(t, 1, l.RemoveVehicle())
}

func TestRemoveVehicleEmptyReturnsSentinel(t *testing.T) {
	l := newLane(newStubCtx(), 0, 5)
	assert.Equal(t, entity.NoVehicle, l.RemoveVehicle())
}

func TestQueueLengthCoherence(t *testing.T) {
	l := newLane(newStubCtx(), 0, 8)
	for i := 0; i < 8; i++ {
		l.AddVehicle(int32(i))
	}
	for i := 0; i < 3; i++ {
		l.RemoveVehicle()
	}
	// 缓存长度时刻等于队列真实长度
	snap := l.Snapshot()
	assert.EqualValues(t, 5, snap.QueueLength)
	assert.EqualValues(t, 5, l.QueueLength())
}

func TestTickPromotesAndAccumulatesWait(t *testing.T) {
	l := newLane(newStubCtx(), 0, 5)
	l.AddVehicle(1)
	l.SetState(entity.StateWaiting) // 模拟被外部打回
	l.Tick()
	assert.Equal(t, entity.StateReady, l.State())
	assert.EqualValues(t, 1, l.Snapshot().WaitingTime)

	l.Tick()
	assert.EqualValues(t, 2, l.Snapshot().WaitingTime)

	// RUNNING状态不累计等待
	l.SetState(entity.StateRunning)
	l.Tick()
	assert.EqualValues(t, 2, l.Snapshot().WaitingTime)
}

func TestAwaitStateChange(t *testing.T) {
	l := newLane(newStubCtx(), 0, 5)
	got := make(chan entity.LaneState, 1)
	go func() {
		got <- l.AwaitStateChange(entity.StateWaiting)
	}()
	time.Sleep(10 * time.Millisecond)
	l.SetState(entity.StateBlocked)
	select {
	case s := <-got:
		assert.Equal(t, entity.StateBlocked, s)
	case <-time.After(time.Second):
		t.Fatal("state change not observed")
	}
}

func TestGuardOperations(t *testing.T) {
	l := newLane(newStubCtx(), 2, 5)
	l.AddVehicle(7)

	g := l.Lock()
	assert.Equal(t, entity.StateReady, g.State())
	assert.EqualValues(t, 7, g.RemoveVehicle())
	assert.EqualValues(t, 0, g.QueueLength())
	g.SetState(entity.StateRunning)
	g.ResetWaitingTime()
	g.MarkServed(time.Now())
	g.AllocateQuadrants(1)
	g.Unlock()

	snap := l.Snapshot()
	assert.Equal(t, entity.StateRunning, snap.State)
	assert.EqualValues(t, 1, snap.TotalServed)
	assert.EqualValues(t, 1, snap.AllocatedQuadrants)

	// 锁被占用时TryLock与TrySnapshot都立刻失败
	g = l.Lock()
	_, ok := l.TryLock()
	assert.False(t, ok)
	_, ok = l.TrySnapshot()
	assert.False(t, ok)
	g.Unlock()

	g, ok = l.TryLock()
	require.True(t, ok)
	g.Unlock()
}

func TestResetRestoresInitialState(t *testing.T) {
	l := newLane(newStubCtx(), 3, 5)
	l.AddVehicle(1)
	l.SetState(entity.StateRunning)
	l.SetPriority(0)
	l.RequestQuadrants(1)

	l.Reset()
	snap := l.Snapshot()
	assert.Equal(t, entity.StateWaiting, snap.State)
	assert.EqualValues(t, 0, snap.QueueLength)
	assert.EqualValues(t, DefaultPriority, snap.Priority)
	assert.EqualValues(t, 0, snap.RequestedQuadrants)
	assert.EqualValues(t, 0, snap.Overflow)
}

func TestManagerBasics(t *testing.T) {
	ctx := newStubCtx()
	m := NewManager(ctx)
	require.Len(t, m.Lanes(), entity.NumLanes)

	_, err := m.GetOrError(99)
	assert.Error(t, err)
	l, err := m.GetOrError(entity.LaneEast)
	require.NoError(t, err)
	assert.EqualValues(t, entity.LaneEast, l.ID())

	m.Get(0).AddVehicle(1)
	m.Get(0).SetState(entity.StateRunning)
	assert.Equal(t, 1, m.RunningCount())

	snaps := m.Snapshot()
	require.Len(t, snaps, entity.NumLanes)
	assert.EqualValues(t, 1, snaps[0].QueueLength)

	m.Reset()
	assert.Equal(t, 0, m.RunningCount())
	assert.EqualValues(t, 0, m.Get(0).QueueLength())
}
