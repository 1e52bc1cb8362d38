package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsinghua-fib-lab/intersection-sim/clock"
	"github.com/tsinghua-fib-lab/intersection-sim/entity"
	"github.com/tsinghua-fib-lab/intersection-sim/entity/lane"
	"github.com/tsinghua-fib-lab/intersection-sim/utils/config"
	"github.com/tsinghua-fib-lab/intersection-sim/utils/randengine"
)

type stubMetrics struct {
	processed  int32
	dropped    int32
	switches   int32
	violations int32
}

func (m *stubMetrics) VehicleProcessed(int32, float64) { m.processed++ }
func (m *stubMetrics) VehicleDropped(int32)            { m.dropped++ }
func (m *stubMetrics) ContextSwitch()                  { m.switches++ }
func (m *stubMetrics) InvariantViolation()             { m.violations++ }

type stubCtx struct {
	clk *clock.Clock
	rc  *config.RuntimeConfig
	rnd *randengine.Engine
	met *stubMetrics

	gmu sync.Mutex
}

// newStubCtx 测试上下文：切换开销与穿越延时清零，测试即时完成
func newStubCtx() *stubCtx {
	rc := config.NewRuntimeConfig(config.Config{})
	rc.SwitchCost = 0
	rc.CrossDelayBase = 0
	rc.CrossDelayJitter = 0
	return &stubCtx{
		clk: clock.New(config.DefaultTickIntervalSec, rc.Duration),
		rc:  rc,
		rnd: randengine.New(1),
		met: &stubMetrics{},
	}
}

func (c *stubCtx) Clock() *clock.Clock                  { return c.clk }
func (c *stubCtx) RuntimeConfig() *config.RuntimeConfig { return c.rc }
func (c *stubCtx) Rand() *randengine.Engine             { return c.rnd }
func (c *stubCtx) Metrics() entity.IMetrics             { return c.met }
func (c *stubCtx) LockGlobal()                          { c.gmu.Lock() }
func (c *stubCtx) TryLockGlobal() bool                  { return c.gmu.TryLock() }
func (c *stubCtx) UnlockGlobal()                        { c.gmu.Unlock() }

func readySnap(id, queueLen int32) lane.Snapshot {
	return lane.Snapshot{
		ID:          id,
		State:       entity.StateReady,
		QueueLength: queueLen,
		Priority:    2,
	}
}

func TestParseAlgorithm(t *testing.T) {
	for algo, name := range algorithmNames {
		parsed, err := ParseAlgorithm(name)
		assert.NoError(t, err)
		assert.Equal(t, algo, parsed)
	}
	_, err := ParseAlgorithm("fcfs")
	assert.Error(t, err)
}

func TestSJFPicksShortestQueue(t *testing.T) {
	snaps := []lane.Snapshot{
		readySnap(0, 3), readySnap(1, 1), readySnap(2, 2), readySnap(3, 4),
	}
	assert.EqualValues(t, 1, pickSJF(snaps, 3))
}

func TestSJFSkipsNonReady(t *testing.T) {
	snaps := []lane.Snapshot{
		readySnap(0, 3),
		{ID: 1, State: entity.StateRunning, QueueLength: 1},
		{ID: 2, State: entity.StateWaiting, QueueLength: 0},
	}
	assert.EqualValues(t, 0, pickSJF(snaps, 3))

	assert.Equal(t, entity.NoLane, pickSJF(nil, 3))
}

func TestSJFTieBreakByArrival(t *testing.T) {
	earlier := time.Now().Add(-10 * time.Second)
	later := time.Now()
	a := readySnap(0, 2)
	a.LastArrivalTime = later
	b := readySnap(3, 2)
	b.LastArrivalTime = earlier
	// 队列长度相同时，最近一次到达更早的车道胜出
	assert.EqualValues(t, 3, pickSJF([]lane.Snapshot{a, b}, 3))
}

func TestSJFAgingPreventsStarvation(t *testing.T) {
	long := readySnap(0, 10)
	long.WaitingTime = 400 // 等待已久的长队
	short := readySnap(1, 1)
	short.WaitingTime = 0
	assert.EqualValues(t, 0, pickSJFAging([]lane.Snapshot{long, short}, 3))

	// 等待清零后回到普通SJF行为
	long.WaitingTime = 0
	assert.EqualValues(t, 1, pickSJFAging([]lane.Snapshot{long, short}, 3))
}

func TestSJFEnhancedConsidersAvgWait(t *testing.T) {
	// 历史平均等待作为罚项：其余条件相同时高AvgWait的车道排后
	a := readySnap(0, 2)
	b := readySnap(1, 2)
	b.AvgWait = 120
	assert.EqualValues(t, 0, pickSJFEnhanced([]lane.Snapshot{a, b}, 3))

	// 当前等待的奖励项可以压过历史罚项
	b.WaitingTime = 100 // -100×0.2 对 +120×0.1
	assert.EqualValues(t, 1, pickSJFEnhanced([]lane.Snapshot{a, b}, 3))
}

func TestSJFPredictiveFallsBackToCrossTime(t *testing.T) {
	// 无吞吐历史时回退到名义穿越时间，即退化为普通SJF
	snaps := []lane.Snapshot{readySnap(0, 2), readySnap(1, 1)}
	assert.EqualValues(t, 1, pickSJFPredictive(snaps, 3))

	// 吞吐高的车道单车服务时间低，预计处理时间更短
	fast := readySnap(0, 4)
	fast.TotalServed = 120  // 60/120=0.5s每车，4车=2s
	slow := readySnap(1, 1) // 无历史，1车×3s=3s
	assert.EqualValues(t, 0, pickSJFPredictive([]lane.Snapshot{fast, slow}, 3))
}

func TestMultilevelFeedbackPromotesLongWaiters(t *testing.T) {
	waited := readySnap(2, 5)
	waited.WaitingTime = 50 // 已提升到最高层
	fresh := readySnap(0, 1)
	assert.EqualValues(t, 2, pickMultilevelFeedback([]lane.Snapshot{waited, fresh}, entity.NoLane))
}

func TestPriorityRRPrefersBoostedLane(t *testing.T) {
	normal := readySnap(0, 1)
	boosted := readySnap(2, 5)
	boosted.Priority = 0 // 紧急车道
	assert.EqualValues(t, 2, pickPriorityRR([]lane.Snapshot{normal, boosted}, entity.NoLane))
}

func TestPriorityRRRotatesWithinSamePriority(t *testing.T) {
	snaps := []lane.Snapshot{readySnap(0, 1), readySnap(1, 1), readySnap(3, 1)}
	// 当前是1号：同优先级内轮转到其后最近的3号
	assert.EqualValues(t, 3, pickPriorityRR(snaps, 1))
	// 当前是3号：回绕到0号
	assert.EqualValues(t, 0, pickPriorityRR(snaps, 3))
}

func TestScheduleNextContextSwitch(t *testing.T) {
	ctx := newStubCtx()
	lanes := lane.NewManager(ctx)
	s := New(ctx)
	s.Start()

	lanes.Get(0).AddVehicle(1)
	lanes.Get(0).AddVehicle(2)
	lanes.Get(2).AddVehicle(3)

	next := s.ScheduleNext(lanes)
	require.EqualValues(t, 2, next) // 队列更短的2号胜出
	assert.Equal(t, entity.StateRunning, lanes.Get(2).State())
	assert.EqualValues(t, 2, s.CurrentLane())
	assert.EqualValues(t, 1, s.ContextSwitches())
	assert.Equal(t, 1, lanes.RunningCount())

	snap := lanes.Get(2).Snapshot()
	assert.EqualValues(t, 1, snap.AllocatedQuadrants)
	assert.EqualValues(t, 0, snap.WaitingTime)
	assert.EqualValues(t, 1, ctx.met.switches)
}

func TestScheduleNextHoldsWithinQuantum(t *testing.T) {
	ctx := newStubCtx()
	lanes := lane.NewManager(ctx)
	s := New(ctx)
	s.Start()

	lanes.Get(1).AddVehicle(1)
	require.EqualValues(t, 1, s.ScheduleNext(lanes))

	// 时间片未耗尽，出现更短队列也不抢占
	lanes.Get(3).AddVehicle(2)
	assert.EqualValues(t, 1, s.ScheduleNext(lanes))
	assert.EqualValues(t, 1, s.ContextSwitches())
}

func TestSRTFPreemptsMidSlice(t *testing.T) {
	ctx := newStubCtx()
	ctx.rc.Algorithm = "srtf"
	lanes := lane.NewManager(ctx)
	s := New(ctx)
	s.Start()

	lanes.Get(1).AddVehicle(1)
	lanes.Get(1).AddVehicle(2)
	lanes.Get(1).AddVehicle(3)
	require.EqualValues(t, 1, s.ScheduleNext(lanes))

	// 时间片未耗尽，但剩余量更短的车道一出现立即抢占
	lanes.Get(3).AddVehicle(4)
	assert.EqualValues(t, 3, s.ScheduleNext(lanes))
	assert.Equal(t, entity.StateReady, lanes.Get(1).State())
	assert.Equal(t, entity.StateRunning, lanes.Get(3).State())
	assert.EqualValues(t, 2, s.ContextSwitches())

	// 剩余量相同的车道不触发抢占
	lanes.Get(0).AddVehicle(5)
	assert.EqualValues(t, 3, s.ScheduleNext(lanes))
	assert.EqualValues(t, 2, s.ContextSwitches())
}

func TestScheduleNextIdleWhenNothingReady(t *testing.T) {
	ctx := newStubCtx()
	lanes := lane.NewManager(ctx)
	s := New(ctx)
	s.Start()
	assert.Equal(t, entity.NoLane, s.ScheduleNext(lanes))

	s.Stop()
	lanes.Get(0).AddVehicle(1)
	assert.Equal(t, entity.NoLane, s.ScheduleNext(lanes))
}

func TestExecuteTimeSliceDrainsOneVehiclePerCall(t *testing.T) {
	ctx := newStubCtx()
	lanes := lane.NewManager(ctx)
	s := New(ctx)
	s.Start()

	l := lanes.Get(0)
	l.AddVehicle(1)
	l.AddVehicle(2)
	require.EqualValues(t, 0, s.ScheduleNext(lanes))

	// 每次只放行一辆
	assert.EqualValues(t, 1, s.ExecuteTimeSlice(l))
	assert.EqualValues(t, 1, l.QueueLength())
	assert.Equal(t, entity.StateRunning, l.State())

	// 排空后让出通行权
	assert.EqualValues(t, 1, s.ExecuteTimeSlice(l))
	assert.EqualValues(t, 0, l.QueueLength())
	assert.Equal(t, entity.StateWaiting, l.State())
	assert.Equal(t, entity.NoLane, s.CurrentLane())
	assert.EqualValues(t, 0, l.Snapshot().AllocatedQuadrants)

	assert.EqualValues(t, 2, ctx.met.processed)
	assert.EqualValues(t, 2, l.Throughput())

	// 非RUNNING车道直接返回
	assert.EqualValues(t, 0, s.ExecuteTimeSlice(l))
}

func TestSetAlgorithmResetsSchedulerState(t *testing.T) {
	ctx := newStubCtx()
	lanes := lane.NewManager(ctx)
	s := New(ctx)
	s.Start()

	lanes.Get(1).AddVehicle(1)
	require.EqualValues(t, 1, s.ScheduleNext(lanes))

	ok := s.SetAlgorithm(AlgorithmPriorityRR, lanes)
	require.True(t, ok)
	assert.Equal(t, AlgorithmPriorityRR, s.Algorithm())
	assert.Equal(t, entity.NoLane, s.CurrentLane())
	// RUNNING车道被强制退回READY（队列非空）
	assert.Equal(t, entity.StateReady, lanes.Get(1).State())
	assert.EqualValues(t, 0, lanes.Get(1).Snapshot().AllocatedQuadrants)
}

func TestHistoryRingWraparound(t *testing.T) {
	h := NewHistory(4)
	for i := 0; i < 6; i++ {
		h.Append(ExecutionRecord{LaneID: int32(i)})
	}
	assert.Equal(t, 4, h.Len())
	assert.Equal(t, 6, h.Total())
	records := h.Records()
	require.Len(t, records, 4)
	// 最旧的两条已被覆盖，按时间先后返回2..5
	for i, r := range records {
		assert.EqualValues(t, i+2, r.LaneID)
	}
}

func TestExecutionHistoryRecorded(t *testing.T) {
	ctx := newStubCtx()
	lanes := lane.NewManager(ctx)
	s := New(ctx)
	s.Start()

	lanes.Get(3).AddVehicle(1)
	require.EqualValues(t, 3, s.ScheduleNext(lanes))
	s.ExecuteTimeSlice(lanes.Get(3))

	records := s.HistoryRecords()
	require.Len(t, records, 1)
	assert.EqualValues(t, 3, records[0].LaneID)
	assert.EqualValues(t, 1, records[0].VehiclesProcessed)

	st, ok := s.TryStatus()
	require.True(t, ok)
	assert.Equal(t, 1, st.HistoryLen)
	assert.Len(t, st.Recent, 1)
}
