package task

import (
	"flag"
	"os"
	"sync/atomic"
	"time"

	"github.com/tsinghua-fib-lab/intersection-sim/entity"
	"github.com/tsinghua-fib-lab/intersection-sim/entity/lane"
)

var (
	heartBeatInterval = flag.Int("log.heartbeat_interval", 100, "心跳日志间隔步数")
	displayInterval   = flag.Int("display.interval_steps", 10, "状态面板刷新间隔tick数，0为关闭")
)

// showDisplay 是否向标准输出渲染状态面板（基准模式下关闭）
var showDisplay atomic.Bool

func init() {
	showDisplay.Store(true)
}

// SetShowDisplay 开关状态面板输出
func SetShowDisplay(on bool) {
	showDisplay.Store(on)
}

// simulationLoop 模拟主循环
// 功能：按tick间隔推进模拟，每tick完成一轮维护-检测-调度-执行
// 算法说明：
// 1. 时钟推进一个tick，车道管理器做逐车道维护
// 2. 全局锁内刷新派生指标；锁外推进紧急事件并回收优先级提升
// 3. 按配置周期执行死锁检测（在全部锁之外）
// 4. 调度决策选出通行车道，执行其一个时间片
// 5. 按周期输出心跳日志与状态面板
func (ctx *Context) simulationLoop() {
	defer ctx.wg.Done()
	ticker := time.NewTicker(ctx.runtimeConfig.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.stopCh:
			return
		case <-ticker.C:
		}
		if ctx.paused.Load() {
			continue
		}

		step := ctx.clk.Step()
		ctx.laneManager.Tick()

		now := time.Now()
		ctx.LockGlobal()
		ctx.mtr.AdvanceTime(now)
		ctx.UnlockGlobal()

		ctx.emerg.Update(now)
		ctx.restoreBoostedLanes()

		if step%int32(ctx.runtimeConfig.DeadlockEvery) == 0 {
			ctx.detector.Check()
		}

		if next := ctx.sched.ScheduleNext(ctx.laneManager); next != entity.NoLane {
			ctx.sched.ExecuteTimeSlice(ctx.laneManager.Get(next))
		}

		if step%int32(*heartBeatInterval) == 0 {
			var processed int64
			if ctx.TryLockGlobal() {
				processed = ctx.mtr.TotalVehiclesProcessed
				ctx.UnlockGlobal()
			}
			log.Infof("STEP: %d(%s) processed=%d switches=%d",
				step, ctx.clk, processed, ctx.sched.ContextSwitches())
		}
		if *displayInterval > 0 && step%int32(*displayInterval) == 0 {
			ctx.disp.Refresh()
			if showDisplay.Load() {
				ctx.disp.RenderTo(os.Stdout)
			}
		}

		if ctx.clk.Done() {
			log.Infof("simulation horizon reached at step %d", step)
			ctx.finishOnce.Do(func() { close(ctx.finishedCh) })
			return
		}
	}
}

// restoreBoostedLanes 回收紧急提升
// 说明：紧急事件全部驶离的车道恢复普通优先级
func (ctx *Context) restoreBoostedLanes() {
	active := ctx.emerg.ActiveLanes()
	for _, l := range ctx.laneManager.Lanes() {
		if !active[l.ID()] && l.Priority() != lane.DefaultPriority {
			l.SetPriority(lane.DefaultPriority)
		}
	}
}

// generatorLoop 车辆生成线程
// 功能：按随机到达间隔向随机车道生成车辆，小概率伴随紧急事件
// 算法说明：
// 1. 到达间隔在[ArrivalMin,ArrivalMax]秒内均匀随机
// 2. 车辆ID在全局锁内分配，保证生成计数与ID一致
// 3. 入队失败（队列满）计入丢弃指标
// 4. 入队成功后按配置概率升级为紧急车辆
func (ctx *Context) generatorLoop() {
	defer ctx.wg.Done()
	rc := ctx.runtimeConfig

	for {
		interval := time.Duration(ctx.rnd.RangeSafe(rc.ArrivalMin, rc.ArrivalMax)) * time.Second
		select {
		case <-ctx.stopCh:
			return
		case <-ctx.finishedCh:
			return
		case <-time.After(interval):
		}
		if ctx.paused.Load() {
			continue
		}

		laneID := int32(ctx.rnd.IntnSafe(entity.NumLanes))
		l := ctx.laneManager.Get(laneID)

		ctx.LockGlobal()
		vid := ctx.mtr.NextVehicleID()
		ctx.UnlockGlobal()

		if !l.AddVehicle(vid) {
			ctx.LockGlobal()
			ctx.mtr.VehicleDropped(laneID)
			ctx.UnlockGlobal()
			log.Debugf("lane %d full, vehicle %d dropped", laneID, vid)
			continue
		}
		log.Debugf("vehicle %d arrived at lane %s", vid, entity.LaneName(laneID))

		if ctx.rnd.PTrueSafe(rc.EmergencyProb) {
			ctx.emerg.Add(laneID, vid)
			l.SetPriority(0)
		}
	}
}
