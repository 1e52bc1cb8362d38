// 性能指标聚合。字段由任务上下文的全局状态锁保护：
// 所有写入方（调度器的执行步、模拟驱动、车辆生成线程）必须先持有全局锁；
// 显示线程通过try-lock读取，失败时使用上一次的缓存快照。
package metrics

import (
	"time"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/intersection-sim/entity"
	"gonum.org/v1/gonum/stat"
)

// Metrics 性能指标
// 功能：吞吐、等待、上下文切换等全局统计；派生指标由AdvanceTime周期刷新
type Metrics struct {
	TotalVehiclesProcessed int64                    // 通过路口的车辆总数
	TotalVehiclesGenerated int64                    // 生成的车辆总数
	LaneThroughput         [entity.NumLanes]int64   // 每条车道的通过数
	LaneWaitTimes          [entity.NumLanes]float64 // 每条车道累计等待（秒）
	LaneDrops              [entity.NumLanes]int64   // 每条车道的溢出丢弃数
	ContextSwitches        int64                    // 上下文切换次数
	InvariantViolations    int64                    // 互斥不变量告警次数

	// 派生指标
	VehiclesPerMinute float64 // 吞吐率（辆/分钟）
	AvgWaitTime       float64 // 全路口平均等待（秒）
	FairnessIndex     float64 // Jain公平性指数

	startTime time.Time
}

// New 创建性能指标实例
func New(start time.Time) *Metrics {
	return &Metrics{startTime: start, FairnessIndex: 1}
}

// Reset 清零全部统计并重新计时
// 说明：调用方须持有全局状态锁
func (m *Metrics) Reset(start time.Time) {
	*m = Metrics{startTime: start, FairnessIndex: 1}
}

// VehicleProcessed 记录一辆车通过路口
// 参数：laneID-车道，waitSec-该车的等待时间（秒）
func (m *Metrics) VehicleProcessed(laneID int32, waitSec float64) {
	if laneID < 0 || laneID >= entity.NumLanes {
		return
	}
	if waitSec < 0 {
		waitSec = 0
	}
	m.TotalVehiclesProcessed++
	m.LaneThroughput[laneID]++
	m.LaneWaitTimes[laneID] += waitSec
}

// VehicleDropped 记录一次队列溢出丢弃
func (m *Metrics) VehicleDropped(laneID int32) {
	if laneID < 0 || laneID >= entity.NumLanes {
		return
	}
	m.LaneDrops[laneID]++
}

// NextVehicleID 分配下一个车辆ID并累加生成计数
func (m *Metrics) NextVehicleID() int32 {
	id := int32(m.TotalVehiclesGenerated)
	m.TotalVehiclesGenerated++
	return id
}

// ContextSwitch 记录一次上下文切换
func (m *Metrics) ContextSwitch() {
	m.ContextSwitches++
}

// InvariantViolation 记录一次互斥不变量告警
func (m *Metrics) InvariantViolation() {
	m.InvariantViolations++
}

// AdvanceTime 周期性刷新派生指标
// 参数：now-当前时间
// 算法说明：
// 1. 吞吐率 = 通过总数 / 运行分钟数
// 2. 平均等待 = 各车道累计等待之和 / 通过总数
// 3. 公平性 = 各车道平均等待的Jain指数
func (m *Metrics) AdvanceTime(now time.Time) {
	minutes := now.Sub(m.startTime).Minutes()
	if minutes > 0 {
		m.VehiclesPerMinute = float64(m.TotalVehiclesProcessed) / minutes
	}
	if m.TotalVehiclesProcessed > 0 {
		m.AvgWaitTime = lo.Sum(m.LaneWaitTimes[:]) / float64(m.TotalVehiclesProcessed)
	}
	m.FairnessIndex = JainIndex(m.laneAvgWaits())
}

// laneAvgWaits 计算每条车道的平均等待
func (m *Metrics) laneAvgWaits() []float64 {
	waits := make([]float64, entity.NumLanes)
	for i := range waits {
		if m.LaneThroughput[i] > 0 {
			waits[i] = m.LaneWaitTimes[i] / float64(m.LaneThroughput[i])
		}
	}
	return waits
}

// Snapshot 拷贝当前指标
// 说明：调用方须持有全局状态锁；返回值为值拷贝，可在锁外使用
func (m *Metrics) Snapshot() Metrics {
	return *m
}

// JainIndex 计算Jain公平性指数
// 功能：衡量各车道平均等待的均衡程度，1.0为完全公平
// 算法说明：
// 1. 只统计等待为正的车道
// 2. index = (Σx)² / (n·Σx²)，用gonum的均值与二阶原点矩改写为 mean²/meanSq
// 3. 没有任何车道在等待时按约定返回1.0
func JainIndex(waits []float64) float64 {
	active := lo.Filter(waits, func(w float64, _ int) bool { return w > 0 })
	if len(active) == 0 {
		return 1
	}
	mean := stat.Mean(active, nil)
	meanSq := stat.Moment(2, active, nil) + mean*mean // E[x²] = 二阶中心矩 + 均值²
	if meanSq <= 0 {
		return 1
	}
	return mean * mean / meanSq
}
