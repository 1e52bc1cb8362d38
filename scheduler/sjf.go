package scheduler

import (
	"flag"
	"time"

	"git.fiblab.net/general/common/v2/mathutil"

	"github.com/tsinghua-fib-lab/intersection-sim/entity"
	"github.com/tsinghua-fib-lab/intersection-sim/entity/lane"
)

var (
	agingWeight    = flag.Float64("sched.aging_weight", 0.1, "SJF老化权重（每tick等待降低的分数）")
	waitWeight     = flag.Float64("sched.wait_weight", 0.2, "增强SJF的当前等待权重")
	avgWaitWeight  = flag.Float64("sched.avg_wait_weight", 0.1, "增强SJF的历史平均等待权重")
	predictiveBase = flag.Float64("sched.predictive_window", 60, "预测SJF的吞吐量统计窗口（秒）")
)

// schedulable 车道是否参与本轮调度
func schedulable(s lane.Snapshot) bool {
	return s.State == entity.StateReady && s.QueueLength > 0
}

// pickSJF 最短作业优先
// 算法说明：
// 1. 预计处理时间 = 排队车辆数 × 名义穿越时间
// 2. 取预计时间最短的就绪车道
// 3. 相等时取最近到达时间更早的车道，保证先到先得的平局裁决
func pickSJF(snaps []lane.Snapshot, crossTime float64) int32 {
	best := entity.NoLane
	bestEst := mathutil.INF
	var bestArrival time.Time
	for _, s := range snaps {
		if !schedulable(s) {
			continue
		}
		est := float64(s.QueueLength) * crossTime
		if est < bestEst || (est == bestEst && s.LastArrivalTime.Before(bestArrival)) {
			best, bestEst, bestArrival = s.ID, est, s.LastArrivalTime
		}
	}
	return best
}

// remainingOf 快照中指定车道的预计剩余处理时间
func remainingOf(snaps []lane.Snapshot, id int32, crossTime float64) float64 {
	for _, s := range snaps {
		if s.ID == id {
			return float64(s.QueueLength) * crossTime
		}
	}
	return mathutil.INF
}

// pickSRTF 最短剩余时间优先
// 说明：与SJF的区别在于每轮重估剩余量且不做平局裁决，
// 配合调度循环的逐tick重调度即构成抢占式行为
func pickSRTF(snaps []lane.Snapshot, crossTime float64) int32 {
	best := entity.NoLane
	bestRemaining := mathutil.INF
	for _, s := range snaps {
		if !schedulable(s) {
			continue
		}
		remaining := float64(s.QueueLength) * crossTime
		if remaining < bestRemaining {
			best, bestRemaining = s.ID, remaining
		}
	}
	return best
}

// pickSJFAging 带老化的SJF
// 算法说明：分数 = 预计处理时间 - 等待tick数×老化权重；
// 等待越久分数越低，长队车道不会被短队车道无限压制
func pickSJFAging(snaps []lane.Snapshot, crossTime float64) int32 {
	best := entity.NoLane
	bestScore := mathutil.INF
	for _, s := range snaps {
		if !schedulable(s) {
			continue
		}
		score := float64(s.QueueLength)*crossTime - float64(s.WaitingTime)**agingWeight
		if score < bestScore {
			best, bestScore = s.ID, score
		}
	}
	return best
}

// pickSJFEnhanced 增强SJF
// 算法说明：分数 = 预计处理时间 - 当前等待×权重 + 历史平均等待×权重；
// 当前等得久的车道加分，历史平均等待偏高的车道受罚，
// 抑制同一车道长期霸占通行权
func pickSJFEnhanced(snaps []lane.Snapshot, crossTime float64) int32 {
	best := entity.NoLane
	bestScore := mathutil.INF
	for _, s := range snaps {
		if !schedulable(s) {
			continue
		}
		score := float64(s.QueueLength)*crossTime -
			float64(s.WaitingTime)**waitWeight +
			s.AvgWait**avgWaitWeight
		if score < bestScore {
			best, bestScore = s.ID, score
		}
	}
	return best
}

// pickSJFPredictive 预测SJF
// 算法说明：
// 1. 单车服务时间 = 统计窗口 / 累计通过量，吞吐为零时回退到名义穿越时间
// 2. 预计处理时间 = 排队车辆数 × 单车服务时间
// 3. 取预计时间最短的就绪车道
func pickSJFPredictive(snaps []lane.Snapshot, crossTime float64) int32 {
	best := entity.NoLane
	bestEst := mathutil.INF
	for _, s := range snaps {
		if !schedulable(s) {
			continue
		}
		service := crossTime
		if s.TotalServed > 0 {
			service = *predictiveBase / float64(s.TotalServed)
		}
		est := float64(s.QueueLength) * service
		if est < bestEst {
			best, bestEst = s.ID, est
		}
	}
	return best
}
