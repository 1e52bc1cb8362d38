package scheduler

import (
	"flag"

	"github.com/tsinghua-fib-lab/intersection-sim/entity"
	"github.com/tsinghua-fib-lab/intersection-sim/entity/lane"
	"github.com/tsinghua-fib-lab/intersection-sim/utils/container"
)

var (
	feedbackLevels       = flag.Int("sched.feedback_levels", 3, "多级反馈队列的层数")
	feedbackPromoteTicks = flag.Int("sched.feedback_promote_ticks", 20, "多级反馈队列每等待该tick数提升一级")
)

// rotationAfter 车道id在current之后的轮转距离（1..NumLanes）
// 说明：current本身距离最大，保证同分时轮转到下一条车道
func rotationAfter(current, id int32) int32 {
	if current < 0 {
		return id + 1
	}
	d := (id - current + entity.NumLanes) % entity.NumLanes
	if d == 0 {
		d = entity.NumLanes
	}
	return d
}

// pickMultilevelFeedback 多级反馈队列
// 算法说明：
//  1. 就绪车道按等待tick数划分层级：waitingTime/promote_ticks，封顶最高层；
//     等得越久层级越高、越优先，天然防饥饿
//  2. 同层内按车道ID自当前车道之后轮转，层内公平
func pickMultilevelFeedback(snaps []lane.Snapshot, current int32) int32 {
	top := int32(*feedbackLevels) - 1
	if top < 0 {
		top = 0
	}
	pq := container.NewPriorityQueue[int32]()
	for _, s := range snaps {
		if !schedulable(s) {
			continue
		}
		level := s.WaitingTime / int32(*feedbackPromoteTicks)
		if level > top {
			level = top
		}
		// 高层级在前，同层内按轮转距离
		score := float64(top-level)*float64(entity.NumLanes+1) +
			float64(rotationAfter(current, s.ID))
		pq.HeapPush(s.ID, score)
	}
	if pq.Len() == 0 {
		return entity.NoLane
	}
	return pq.First()
}
