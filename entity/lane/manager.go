package lane

import (
	"fmt"

	"git.fiblab.net/general/common/v2/parallel"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/intersection-sim/entity"
)

// Manager 车道管理器
// 功能：管理四个方向的车道实体，提供查找、快照、逐tick维护等功能
type Manager struct {
	ctx entity.ITaskContext

	lanes []*Lane
}

// NewManager 创建车道管理器实例
// 功能：按配置的队列容量初始化四条车道
// 参数：ctx-任务上下文
func NewManager(ctx entity.ITaskContext) *Manager {
	m := &Manager{ctx: ctx}
	m.lanes = make([]*Lane, entity.NumLanes)
	for i := range m.lanes {
		m.lanes[i] = newLane(ctx, int32(i), ctx.RuntimeConfig().LaneCapacity)
	}
	return m
}

// Get 根据ID获取车道实例
// 说明：越界ID属于编程错误，直接panic
func (m *Manager) Get(id int32) *Lane {
	if id < 0 || id >= int32(len(m.lanes)) {
		log.Panicf("no id %d in lane data", id)
		return nil
	}
	return m.lanes[id]
}

// GetOrError 根据ID获取车道实例（带错误处理）
func (m *Manager) GetOrError(id int32) (*Lane, error) {
	if id < 0 || id >= int32(len(m.lanes)) {
		return nil, fmt.Errorf("no id %d in lane data", id)
	}
	return m.lanes[id], nil
}

// Lanes 获取所有车道
func (m *Manager) Lanes() []*Lane {
	return m.lanes
}

// Tick 对所有车道执行每tick维护
// 说明：并行执行，每条车道只动自己的锁
func (m *Manager) Tick() {
	parallel.GoFor(m.lanes, func(l *Lane) { l.Tick() })
}

// Reset 恢复所有车道的初始状态
func (m *Manager) Reset() {
	for _, l := range m.lanes {
		l.Reset()
	}
}

// Snapshot 获取四条车道的一致快照
// 说明：逐条加锁拷贝，任意时刻至多持有一把车道锁，
// 避免跨车道比较时的锁序死锁
func (m *Manager) Snapshot() []Snapshot {
	return lo.Map(m.lanes, func(l *Lane, _ int) Snapshot {
		return l.Snapshot()
	})
}

// RunningCount 统计处于RUNNING状态的车道数
// 功能：互斥不变量校验（任意时刻至多一条车道RUNNING）
// 说明：使用try-lock逐条检查，拿不到锁的车道跳过，
// 校验宁可漏报也不能阻塞调度热路径
func (m *Manager) RunningCount() int {
	count := 0
	for _, l := range m.lanes {
		if g, ok := l.TryLock(); ok {
			if g.State() == entity.StateRunning {
				count++
			}
			g.Unlock()
		}
	}
	return count
}
