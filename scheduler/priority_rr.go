package scheduler

import (
	"github.com/tsinghua-fib-lab/intersection-sim/entity"
	"github.com/tsinghua-fib-lab/intersection-sim/entity/lane"
	"github.com/tsinghua-fib-lab/intersection-sim/utils/container"
)

// pickPriorityRR 优先级轮转
// 算法说明：
//  1. 取就绪车道中优先级数值最小（最高优先级）的子集；
//     紧急事件系统通过下调车道优先级数值把紧急车道顶到最前
//  2. 同优先级内按车道ID自当前车道之后轮转
func pickPriorityRR(snaps []lane.Snapshot, current int32) int32 {
	pq := container.NewPriorityQueue[int32]()
	for _, s := range snaps {
		if !schedulable(s) {
			continue
		}
		score := float64(s.Priority)*float64(entity.NumLanes+1) +
			float64(rotationAfter(current, s.ID))
		pq.Push(s.ID, score)
	}
	if pq.Len() == 0 {
		return entity.NoLane
	}
	pq.Heapify()
	return pq.First()
}
