package deadlock

import (
	"flag"
	"sync/atomic"

	"github.com/tsinghua-fib-lab/intersection-sim/entity"
	"github.com/tsinghua-fib-lab/intersection-sim/entity/lane"
)

var simProb = flag.Float64("deadlock.sim_prob", 0, "每轮检测时模拟一次死锁的概率（演示用，0为关闭）")

// Detector 死锁检测器
// 功能：周期性扫描四条车道，识别"全部BLOCKED且均有未满足象限申请"的
// 死锁签名并执行恢复；每轮附带银行家算法的分配安全性检查
// 说明：检测与恢复都在全部锁之外进行，车道锁逐条获取，
// 任何时刻至多持有一把
type Detector struct {
	ctx   entity.ITaskContext
	lanes *lane.Manager

	checks       atomic.Int64 // 已执行的检测轮数
	detected     atomic.Int64 // 检出并恢复的死锁次数
	unsafeStates atomic.Int64 // 银行家检查判定不安全的次数
}

// Stats 检测器统计快照
type Stats struct {
	Checks       int64
	Detected     int64
	UnsafeStates int64
}

// New 创建死锁检测器
func New(ctx entity.ITaskContext, lanes *lane.Manager) *Detector {
	return &Detector{ctx: ctx, lanes: lanes}
}

// Check 执行一轮死锁检测
// 返回：true表示检出死锁并完成恢复
// 算法说明：
// 1. 逐条快照四条车道
// 2. 银行家算法检查当前分配的安全性，不安全只告警计数
// 3. 匹配死锁签名（四条车道全部BLOCKED且各自有未满足的象限申请）则恢复
// 4. 按演示概率模拟一次死锁，留给下一轮检测发现
func (d *Detector) Check() bool {
	d.checks.Add(1)
	snaps := d.lanes.Snapshot()

	if !IsSafe(snaps, TotalQuadrants) {
		d.unsafeStates.Add(1)
		log.Warnf("quadrant allocation in unsafe state at step %d", d.ctx.Clock().InternalStep())
	}

	if deadlocked(snaps) {
		d.detected.Add(1)
		log.Warnf("deadlock detected at step %d, resolving", d.ctx.Clock().InternalStep())
		d.resolve()
		return true
	}

	if *simProb > 0 && d.ctx.Rand().PTrueSafe(*simProb) {
		d.Induce()
	}
	return false
}

// deadlocked 死锁签名匹配
func deadlocked(snaps []lane.Snapshot) bool {
	for _, s := range snaps {
		if s.State != entity.StateBlocked || s.RequestedQuadrants == 0 {
			return false
		}
	}
	return len(snaps) > 0
}

// Induce 人为制造一次死锁
// 功能：把四条车道强制置为BLOCKED并登记未满足的象限申请，
// 供演示与测试验证检测-恢复闭环
func (d *Detector) Induce() {
	log.Warnf("inducing simulated deadlock at step %d", d.ctx.Clock().InternalStep())
	for _, l := range d.lanes.Lanes() {
		l.SetState(entity.StateBlocked)
		l.RequestQuadrants(1)
	}
}

// resolve 死锁恢复
// 算法说明：逐条车道释放全部象限资源，按队列占用情况
// 重新接纳为READY（有车排队）或WAITING（空队列）
func (d *Detector) resolve() {
	for _, l := range d.lanes.Lanes() {
		g := l.Lock()
		g.ReleaseQuadrants()
		if g.QueueLength() > 0 {
			g.SetState(entity.StateReady)
		} else {
			g.SetState(entity.StateWaiting)
		}
		g.Unlock()
	}
	log.Infof("deadlock resolved, all quadrants released")
}

// Stats 获取检测器统计
func (d *Detector) Stats() Stats {
	return Stats{
		Checks:       d.checks.Load(),
		Detected:     d.detected.Load(),
		UnsafeStates: d.unsafeStates.Load(),
	}
}
