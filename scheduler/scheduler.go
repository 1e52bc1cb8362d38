package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tsinghua-fib-lab/intersection-sim/entity"
	"github.com/tsinghua-fib-lab/intersection-sim/entity/lane"
	"github.com/tsinghua-fib-lab/intersection-sim/utils/container"
)

const recentRecords = 5 // Status中携带的最近执行记录条数

// Scheduler 路口调度器
// 功能：以操作系统进程调度的方式在四条车道间分配路口通行权，
// 维护执行历史与切换统计
// 锁序约束（必须严格遵守，否则死锁）：
// 1. 全局锁 -> 车道锁：执行路径先取全局锁再取车道锁
// 2. 调度器锁 -> 车道锁：调度决策路径先取调度器锁再逐条取车道锁
// 3. 持有全局锁或车道锁时只允许TryLock调度器锁，严禁阻塞式获取
// 4. 任何时刻至多持有一把车道锁
type Scheduler struct {
	ctx entity.ITaskContext

	mu sync.Mutex

	// 锁外可读的镜像字段，只在持有mu时写入
	algorithm       atomic.Int32
	currentLane     atomic.Int32
	contextSwitches atomic.Int64

	readyQueue *container.BoundedQueue[int32] // 本轮就绪车道，每次决策前重建
	history    *History

	quantum    time.Duration
	switchCost time.Duration

	sliceStart       time.Time // 当前车道获得通行权的时刻
	lastScheduleTime time.Time
	droppedRecords   int64 // 因调度器锁竞争而放弃写入的历史条数

	running bool
}

// Status 调度器状态快照（显示线程用）
type Status struct {
	Algorithm        Algorithm
	CurrentLane      int32
	ContextSwitches  int64
	ReadyQueueLen    int
	HistoryLen       int
	HistoryTotal     int
	LastScheduleTime time.Time
	Recent           []ExecutionRecord
}

// New 创建调度器
// 参数：ctx-任务上下文，时间片、切换开销、历史容量与初始算法均取自运行时配置
func New(ctx entity.ITaskContext) *Scheduler {
	rc := ctx.RuntimeConfig()
	algo, err := ParseAlgorithm(rc.Algorithm)
	if err != nil {
		log.Warnf("%v, fall back to %s", err, algo)
	}
	s := &Scheduler{
		ctx:        ctx,
		readyQueue: container.NewBoundedQueue[int32](int(entity.NumLanes)),
		history:    NewHistory(rc.HistorySize),
		quantum:    rc.Quantum,
		switchCost: rc.SwitchCost,
	}
	s.algorithm.Store(int32(algo))
	s.currentLane.Store(entity.NoLane)
	return s
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.sliceStart = time.Now()
	log.Infof("scheduler started, algorithm=%s quantum=%v", s.Algorithm(), s.quantum)
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
}

// Algorithm 获取当前调度算法（无锁读取镜像值）
func (s *Scheduler) Algorithm() Algorithm {
	return Algorithm(s.algorithm.Load())
}

// CurrentLane 获取当前持有通行权的车道ID（无锁读取镜像值）
// 返回：车道ID；无车道运行时返回entity.NoLane
func (s *Scheduler) CurrentLane() int32 {
	return s.currentLane.Load()
}

// ContextSwitches 获取累计上下文切换次数（无锁读取镜像值）
func (s *Scheduler) ContextSwitches() int64 {
	return s.contextSwitches.Load()
}

// Quantum 获取时间片长度
func (s *Scheduler) Quantum() time.Duration {
	return s.quantum
}

// ScheduleNext 执行一轮调度决策
// 功能：对四条车道逐条快照，按当前算法选出下一条通行车道，
// 必要时执行上下文切换
// 返回：获得通行权的车道ID；无可调度车道时返回entity.NoLane
// 算法说明：
//  1. 非抢占算法下，当前车道仍在RUNNING且时间片未耗尽时维持现状；
//     SRTF每tick重新决策，时间片不挡抢占
//  2. 快照逐条获取（任何时刻至多持有一把车道锁），算法在快照上决策
//  3. 选出的车道与当前不同则上下文切换；切换后校验互斥不变式
func (s *Scheduler) ScheduleNext(lanes *lane.Manager) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return entity.NoLane
	}
	s.lastScheduleTime = time.Now()

	cur := s.currentLane.Load()
	curRunning := false
	if cur != entity.NoLane {
		curRunning = lanes.Get(cur).State() == entity.StateRunning
	}
	if curRunning && !s.preemptive() && time.Since(s.sliceStart) < s.quantum {
		return cur
	}

	snaps := lanes.Snapshot()
	s.refillReadyQueue(snaps)

	next := s.dispatch(snaps)
	if next == entity.NoLane {
		// 没有其他就绪车道：未排空的当前车道继续持有通行权
		if curRunning {
			s.sliceStart = time.Now()
			return cur
		}
		return entity.NoLane
	}
	if next == cur && curRunning {
		s.sliceStart = time.Now()
		return cur
	}
	if curRunning && s.preemptive() {
		// 剩余量没有严格更短就不抢占，避免等量车道间来回切换
		crossTime := s.ctx.RuntimeConfig().CrossTime.Seconds()
		if remainingOf(snaps, next, crossTime) >= remainingOf(snaps, cur, crossTime) {
			return cur
		}
	}
	if !s.contextSwitch(lanes, cur, next) {
		return entity.NoLane
	}
	s.validateMutualExclusion(lanes)
	return next
}

// preemptive 当前算法是否逐tick重新决策、无视时间片
func (s *Scheduler) preemptive() bool {
	return Algorithm(s.algorithm.Load()) == AlgorithmSRTF
}

// refillReadyQueue 用本轮快照重建就绪队列
// 说明：调用方必须持有s.mu
func (s *Scheduler) refillReadyQueue(snaps []lane.Snapshot) {
	s.readyQueue.Clear()
	for _, snap := range snaps {
		if schedulable(snap) {
			s.readyQueue.Push(snap.ID)
		}
	}
}

// dispatch 按当前算法在快照上选出下一条车道
// 说明：调用方必须持有s.mu；快照为值拷贝，决策过程不持有任何车道锁
func (s *Scheduler) dispatch(snaps []lane.Snapshot) int32 {
	crossTime := s.ctx.RuntimeConfig().CrossTime.Seconds()
	cur := s.currentLane.Load()
	switch Algorithm(s.algorithm.Load()) {
	case AlgorithmSJF:
		return pickSJF(snaps, crossTime)
	case AlgorithmMultilevelFeedback:
		return pickMultilevelFeedback(snaps, cur)
	case AlgorithmPriorityRR:
		return pickPriorityRR(snaps, cur)
	case AlgorithmSRTF:
		return pickSRTF(snaps, crossTime)
	case AlgorithmSJFAging:
		return pickSJFAging(snaps, crossTime)
	case AlgorithmSJFEnhanced:
		return pickSJFEnhanced(snaps, crossTime)
	case AlgorithmSJFPredictive:
		return pickSJFPredictive(snaps, crossTime)
	default:
		return pickSJF(snaps, crossTime)
	}
}

// contextSwitch 把通行权从from车道移交给to车道
// 返回：true表示移交完成；false表示to车道已不在READY，本轮放弃
// 说明：调用方必须持有s.mu；两条车道的锁先后获取、绝不同时持有；
// 切换开销的休眠在释放全部车道锁之后进行
func (s *Scheduler) contextSwitch(lanes *lane.Manager, from, to int32) bool {
	if from != entity.NoLane {
		g := lanes.Get(from).Lock()
		if g.State() == entity.StateRunning {
			if g.QueueLength() > 0 {
				g.SetState(entity.StateReady)
			} else {
				g.SetState(entity.StateWaiting)
			}
		}
		g.ReleaseQuadrants()
		g.Unlock()
	}

	g := lanes.Get(to).Lock()
	if g.State() != entity.StateReady {
		// 快照与加锁之间状态已变（死锁恢复、算法切换等），放弃本次切换
		g.Unlock()
		s.currentLane.Store(entity.NoLane)
		return false
	}
	g.SetState(entity.StateRunning)
	g.ResetWaitingTime()
	g.AllocateQuadrants(1)
	g.Unlock()

	s.currentLane.Store(to)
	s.sliceStart = time.Now()
	s.contextSwitches.Add(1)
	if s.ctx.TryLockGlobal() {
		s.ctx.Metrics().ContextSwitch()
		s.ctx.UnlockGlobal()
	}
	log.Debugf("context switch: lane %d -> lane %d", from, to)

	// 切换开销，模拟全红清空时间
	if s.switchCost > 0 {
		time.Sleep(s.switchCost)
	}
	return true
}

// validateMutualExclusion 校验互斥不变式：至多一条车道处于RUNNING
// 说明：调用方必须持有s.mu；违例只记录不中止，交由指标与日志暴露
func (s *Scheduler) validateMutualExclusion(lanes *lane.Manager) {
	if n := lanes.RunningCount(); n > 1 {
		log.Errorf("mutual exclusion violated: %d lanes RUNNING", n)
		if s.ctx.TryLockGlobal() {
			s.ctx.Metrics().InvariantViolation()
			s.ctx.UnlockGlobal()
		}
	}
}

// ExecuteTimeSlice 执行当前车道的一个时间片
// 功能：放行一辆车穿越路口并更新指标与历史
// 返回：本次放行的车辆数（0或1）
// 算法说明：
// 1. 全局锁->车道锁顺序加锁；车道已不在RUNNING则直接返回
// 2. 每次调用至多放行一辆车，时间片长度不参与本路径
// 3. 穿越延时休眠前释放全部锁，休眠结束后重新加锁收尾
// 4. 队列排空时RUNNING->WAITING并释放象限资源
func (s *Scheduler) ExecuteTimeSlice(l *lane.Lane) int32 {
	start := time.Now()
	rc := s.ctx.RuntimeConfig()

	s.ctx.LockGlobal()
	g := l.Lock()
	if g.State() != entity.StateRunning {
		g.Unlock()
		s.ctx.UnlockGlobal()
		return 0
	}

	var processed int32
	vid := g.RemoveVehicle()
	if vid != entity.NoVehicle {
		processed = 1
		waitSec := time.Since(g.LastArrivalTime()).Seconds()
		if waitSec < 0 {
			waitSec = 0
		}
		s.ctx.Metrics().VehicleProcessed(l.ID(), waitSec)
		g.MarkServed(time.Now())
		log.Debugf("lane %d: vehicle %d crossed, wait %.1fs", l.ID(), vid, waitSec)

		// 穿越路口的模拟延时，休眠期间不持有任何锁
		g.Unlock()
		s.ctx.UnlockGlobal()
		if delay := s.ctx.Rand().DurationJitterSafe(rc.CrossDelayBase, rc.CrossDelayJitter); delay > 0 {
			time.Sleep(delay)
		}
		s.ctx.LockGlobal()
		g = l.Lock()
	}

	s.RecordExecution(ExecutionRecord{
		LaneID:            l.ID(),
		StartTime:         start,
		EndTime:           time.Now(),
		Duration:          time.Since(start),
		VehiclesProcessed: processed,
	})

	if g.QueueLength() == 0 && g.State() == entity.StateRunning {
		g.SetState(entity.StateWaiting)
		g.ReleaseQuadrants()
		s.currentLane.CompareAndSwap(l.ID(), entity.NoLane)
	}
	g.Unlock()
	s.ctx.UnlockGlobal()
	return processed
}

// RecordExecution 写入一条执行历史
// 说明：调用路径可能已持有全局锁与车道锁，因此只TryLock调度器锁；
// 竞争失败时丢弃本条记录并计数，绝不阻塞执行路径
func (s *Scheduler) RecordExecution(r ExecutionRecord) {
	if !s.mu.TryLock() {
		atomic.AddInt64(&s.droppedRecords, 1)
		return
	}
	defer s.mu.Unlock()
	s.history.Append(r)
}

// SetAlgorithm 切换调度算法
// 功能：非阻塞切换；当前RUNNING车道被强制退回READY/WAITING，
// 就绪队列清空，下一轮调度从头决策
// 返回：true表示切换完成；false表示调度器正忙，本次切换被放弃
func (s *Scheduler) SetAlgorithm(algo Algorithm, lanes *lane.Manager) bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.mu.Unlock()
	old := Algorithm(s.algorithm.Load())
	if old == algo {
		return true
	}
	s.algorithm.Store(int32(algo))

	cur := s.currentLane.Load()
	if cur != entity.NoLane && lanes != nil {
		g := lanes.Get(cur).Lock()
		if g.State() == entity.StateRunning {
			if g.QueueLength() > 0 {
				g.SetState(entity.StateReady)
			} else {
				g.SetState(entity.StateWaiting)
			}
		}
		g.ReleaseQuadrants()
		g.Unlock()
	}
	s.currentLane.Store(entity.NoLane)
	s.readyQueue.Clear()
	log.Infof("scheduling algorithm switched: %s -> %s", old, algo)
	return true
}

// Reset 恢复调度器初始状态
// 功能：清空当前车道、就绪队列、执行历史与切换计数；算法保持不变
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentLane.Store(entity.NoLane)
	s.contextSwitches.Store(0)
	s.readyQueue.Clear()
	s.history = NewHistory(s.history.Cap())
	atomic.StoreInt64(&s.droppedRecords, 0)
	s.sliceStart = time.Now()
}

// HistoryRecords 获取执行历史的时间有序拷贝
func (s *Scheduler) HistoryRecords() []ExecutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Records()
}

// DroppedRecords 获取因锁竞争被丢弃的历史条数
func (s *Scheduler) DroppedRecords() int64 {
	return atomic.LoadInt64(&s.droppedRecords)
}

// TryStatus 非阻塞获取调度器状态快照
// 返回：快照与true；调度器正忙时返回零值与false，调用方应复用上次缓存
func (s *Scheduler) TryStatus() (Status, bool) {
	if !s.mu.TryLock() {
		return Status{}, false
	}
	defer s.mu.Unlock()
	records := s.history.Records()
	if len(records) > recentRecords {
		records = records[len(records)-recentRecords:]
	}
	return Status{
		Algorithm:        Algorithm(s.algorithm.Load()),
		CurrentLane:      s.currentLane.Load(),
		ContextSwitches:  s.contextSwitches.Load(),
		ReadyQueueLen:    s.readyQueue.Len(),
		HistoryLen:       s.history.Len(),
		HistoryTotal:     s.history.Total(),
		LastScheduleTime: s.lastScheduleTime,
		Recent:           records,
	}, true
}
