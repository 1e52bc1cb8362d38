package emergency

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/intersection-sim/entity"
)

var log = logrus.WithField("module", "emergency")

// 紧急事件在系统中的最长滞留时间，超时即认为已驶离
const incidentLifetime = 10 * time.Second

// Incident 一次紧急车辆事件
type Incident struct {
	ID        uuid.UUID // 事件标识
	LaneID    int32     // 所在车道
	VehicleID int32     // 队列中的车辆ID
	CreatedAt time.Time
}

// System 紧急车辆系统
// 功能：维护紧急模式开关与在途紧急事件列表；
// 调度核心只读取Mode()并在紧急模式下提升对应车道的调度权重
// 说明：自带互斥锁，入口均为线程安全；Update由模拟驱动在全局锁外调用
type System struct {
	mu        sync.Mutex
	mode      bool
	incidents []Incident
}

// New 创建紧急车辆系统
func New() *System {
	return &System{}
}

// Mode 获取紧急模式开关
func (s *System) Mode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Add 登记一辆紧急车辆
// 参数：laneID-所在车道，vehicleID-已入队的车辆ID
// 返回：事件记录；车道ID非法时返回零值且不登记
func (s *System) Add(laneID, vehicleID int32) Incident {
	if laneID < 0 || laneID >= entity.NumLanes {
		return Incident{}
	}
	inc := Incident{
		ID:        uuid.New(),
		LaneID:    laneID,
		VehicleID: vehicleID,
		CreatedAt: time.Now(),
	}
	s.mu.Lock()
	s.incidents = append(s.incidents, inc)
	s.mode = true
	s.mu.Unlock()
	log.Infof("emergency %s on lane %s", inc.ID, entity.LaneName(laneID))
	return inc
}

// Update 推进紧急事件进度
// 功能：清理超时事件，全部清理完毕后关闭紧急模式
// 参数：now-当前时间
func (s *System) Update(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.incidents[:0]
	for _, inc := range s.incidents {
		if now.Sub(inc.CreatedAt) < incidentLifetime {
			kept = append(kept, inc)
		}
	}
	s.incidents = kept
	if len(s.incidents) == 0 {
		s.mode = false
	}
}

// Reset 清空全部紧急事件并关闭紧急模式
func (s *System) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidents = nil
	s.mode = false
}

// ActiveLanes 获取当前有紧急车辆的车道集合
func (s *System) ActiveLanes() map[int32]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	lanes := make(map[int32]bool, len(s.incidents))
	for _, inc := range s.incidents {
		lanes[inc.LaneID] = true
	}
	return lanes
}

// Count 获取在途紧急事件数
func (s *System) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.incidents)
}
