package deadlock

import (
	"github.com/samber/lo"

	"github.com/tsinghua-fib-lab/intersection-sim/entity"
	"github.com/tsinghua-fib-lab/intersection-sim/entity/lane"
)

// IsSafe 银行家算法的分配安全性检查
// 功能：判断当前象限分配是否存在安全序列，即是否所有车道都能
// 依次拿到其申请的象限并最终释放
// 参数：snaps-四条车道的快照，total-象限资源总数
// 返回：true表示存在安全序列
// 算法说明：
// 1. 可用量 = 总量 - 各车道已分配之和
// 2. 反复寻找"申请量不超过可用量"的未完成车道，令其完成并归还已分配量
// 3. 全部车道可完成则安全，否则不安全
func IsSafe(snaps []lane.Snapshot, total int32) bool {
	allocated := lo.SumBy(snaps, func(s lane.Snapshot) int32 {
		return s.AllocatedQuadrants
	})
	work := total - allocated
	if work < 0 {
		// 分配超发本身即不安全
		return false
	}

	finished := make([]bool, len(snaps))
	for remaining := len(snaps); remaining > 0; {
		progressed := false
		for i, s := range snaps {
			if finished[i] || s.RequestedQuadrants > work {
				continue
			}
			work += s.AllocatedQuadrants
			finished[i] = true
			remaining--
			progressed = true
		}
		if !progressed {
			return false
		}
	}
	return true
}

// TotalQuadrants 路口象限资源总数
const TotalQuadrants = entity.NumQuadrants
