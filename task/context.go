package task

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tsinghua-fib-lab/intersection-sim/clock"
	"github.com/tsinghua-fib-lab/intersection-sim/deadlock"
	"github.com/tsinghua-fib-lab/intersection-sim/display"
	"github.com/tsinghua-fib-lab/intersection-sim/emergency"
	"github.com/tsinghua-fib-lab/intersection-sim/entity"
	"github.com/tsinghua-fib-lab/intersection-sim/entity/lane"
	"github.com/tsinghua-fib-lab/intersection-sim/metrics"
	"github.com/tsinghua-fib-lab/intersection-sim/scheduler"
	"github.com/tsinghua-fib-lab/intersection-sim/utils/config"
	"github.com/tsinghua-fib-lab/intersection-sim/utils/randengine"
)

var (
	// ErrAlreadyRunning 模拟已在运行时再次Start
	ErrAlreadyRunning = errors.New("simulation already running")
	// ErrNotRunning 模拟未运行时的控制操作
	ErrNotRunning = errors.New("simulation not running")
)

// Context 模拟任务上下文
// 功能：包含一次模拟任务的所有组件和状态，替代全局变量；
// 对各模块以entity.ITaskContext接口暴露
// 说明：globalMu是全局状态锁，保护指标与车辆ID分配；
// 与车道锁同时持有时必须先取全局锁
type Context struct {
	// 时钟
	clk *clock.Clock
	// 运行时配置
	runtimeConfig *config.RuntimeConfig
	// 随机数引擎
	rnd *randengine.Engine

	// 全局状态锁
	globalMu sync.Mutex
	// 性能指标，由globalMu保护
	mtr *metrics.Metrics

	// 车道管理器
	laneManager *lane.Manager
	// 调度器
	sched *scheduler.Scheduler
	// 死锁检测器
	detector *deadlock.Detector
	// 紧急车辆系统
	emerg *emergency.System
	// 状态显示器
	disp *display.Display

	// 运行/暂停指令
	running atomic.Bool
	paused  atomic.Bool

	stopCh     chan struct{}
	finishedCh chan struct{} // 模拟时长自然耗尽时关闭
	finishOnce sync.Once
	wg         sync.WaitGroup
}

// NewContext 创建模拟任务上下文
// 功能：初始化时钟、随机引擎、指标与各管理器
// 参数：c-配置对象，noColor-显示是否禁用颜色
// 返回：初始化完成的Context实例
func NewContext(c config.Config, noColor bool) *Context {
	rc := config.NewRuntimeConfig(c)
	ctx := &Context{runtimeConfig: rc}
	ctx.clk = clock.New(rc.TickInterval.Seconds(), rc.Duration)
	ctx.rnd = randengine.New(rc.Seed)
	ctx.mtr = metrics.New(time.Now())
	ctx.laneManager = lane.NewManager(ctx)
	ctx.sched = scheduler.New(ctx)
	ctx.detector = deadlock.New(ctx, ctx.laneManager)
	ctx.emerg = emergency.New()
	ctx.disp = display.New(ctx, ctx.laneManager, ctx.sched, ctx.mtr, ctx.emerg, noColor)
	log.Infof("context ready: duration=%v tick=%v algorithm=%s seed=%d",
		rc.Duration, rc.TickInterval, rc.Algorithm, rc.Seed)
	return ctx
}

// entity.ITaskContext的实现

func (ctx *Context) Clock() *clock.Clock                  { return ctx.clk }
func (ctx *Context) RuntimeConfig() *config.RuntimeConfig { return ctx.runtimeConfig }
func (ctx *Context) Rand() *randengine.Engine             { return ctx.rnd }
func (ctx *Context) Metrics() entity.IMetrics             { return ctx.mtr }
func (ctx *Context) LockGlobal()                          { ctx.globalMu.Lock() }
func (ctx *Context) TryLockGlobal() bool                  { return ctx.globalMu.TryLock() }
func (ctx *Context) UnlockGlobal()                        { ctx.globalMu.Unlock() }

// 组件访问器，供入口程序的交互控制使用

func (ctx *Context) Lanes() *lane.Manager            { return ctx.laneManager }
func (ctx *Context) Scheduler() *scheduler.Scheduler { return ctx.sched }
func (ctx *Context) Detector() *deadlock.Detector    { return ctx.detector }
func (ctx *Context) Emergency() *emergency.System    { return ctx.emerg }
func (ctx *Context) Display() *display.Display       { return ctx.disp }
func (ctx *Context) MetricsData() *metrics.Metrics   { return ctx.mtr }

// Start 启动模拟
// 功能：启动模拟循环与车辆生成两个线程
// 返回：已在运行时返回ErrAlreadyRunning
func (ctx *Context) Start() error {
	if !ctx.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	ctx.stopCh = make(chan struct{})
	ctx.finishedCh = make(chan struct{})
	ctx.finishOnce = sync.Once{}
	ctx.paused.Store(false)
	ctx.clk.Init()
	ctx.LockGlobal()
	ctx.mtr.Reset(time.Now())
	ctx.UnlockGlobal()
	ctx.sched.Start()

	ctx.wg.Add(2)
	go ctx.simulationLoop()
	go ctx.generatorLoop()
	log.Infof("simulation started")
	return nil
}

// Stop 停止模拟
// 功能：通知两个线程退出并等待回收；先停调度再等线程，幂等
func (ctx *Context) Stop() {
	if !ctx.running.CompareAndSwap(true, false) {
		return
	}
	close(ctx.stopCh)
	ctx.sched.Stop()
	ctx.wg.Wait()
	log.Infof("simulation stopped at step %d", ctx.clk.InternalStep())
}

// Finished 模拟时长自然耗尽时关闭的通道
// 说明：入口程序select它与系统信号，二者任一到来即收尾退出
func (ctx *Context) Finished() <-chan struct{} {
	return ctx.finishedCh
}

// Running 模拟是否在运行
func (ctx *Context) Running() bool {
	return ctx.running.Load()
}

// Paused 模拟是否处于暂停
func (ctx *Context) Paused() bool {
	return ctx.paused.Load()
}

// TogglePause 暂停/恢复切换
// 返回：切换后的暂停状态
func (ctx *Context) TogglePause() bool {
	paused := !ctx.paused.Load()
	ctx.paused.Store(paused)
	if paused {
		log.Infof("simulation paused")
	} else {
		log.Infof("simulation resumed")
	}
	return paused
}

// Reset 重置模拟状态
// 功能：清空车道、调度器、指标与紧急事件，时钟归零；
// 运行中的模拟不中断，从头开始计数
func (ctx *Context) Reset() {
	ctx.sched.Reset()
	ctx.laneManager.Reset()
	ctx.emerg.Reset()
	ctx.LockGlobal()
	ctx.mtr.Reset(time.Now())
	ctx.UnlockGlobal()
	ctx.clk.Init()
	log.Infof("simulation state reset")
}

// TriggerEmergency 手动触发一次紧急车辆
// 功能：向随机车道插入一辆紧急车辆并提升该车道优先级
// 返回：事发车道ID；入队失败（队列满）时返回entity.NoLane
func (ctx *Context) TriggerEmergency() int32 {
	laneID := int32(ctx.rnd.IntnSafe(int(entity.NumLanes)))
	ctx.LockGlobal()
	vid := ctx.mtr.NextVehicleID()
	ctx.UnlockGlobal()
	l := ctx.laneManager.Get(laneID)
	if !l.AddVehicle(vid) {
		ctx.LockGlobal()
		ctx.mtr.VehicleDropped(laneID)
		ctx.UnlockGlobal()
		return entity.NoLane
	}
	ctx.emerg.Add(laneID, vid)
	l.SetPriority(0)
	return laneID
}
