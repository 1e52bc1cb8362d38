package entity

// 车道方位常量
const (
	LaneNorth = 0 // 北
	LaneSouth = 1 // 南
	LaneEast  = 2 // 东
	LaneWest  = 3 // 西

	NumLanes = 4 // 车道总数

	// 路口象限资源总数，每条车道通行时占用其中一个
	NumQuadrants = 4
)

// laneNames 车道名称，用于显示
var laneNames = [NumLanes]string{"North", "South", "East", "West"}

// LaneName 获取车道名称
// 参数：id-车道ID（0..3）
// 返回：车道名称，越界返回"Unknown"
func LaneName(id int32) string {
	if id >= 0 && id < NumLanes {
		return laneNames[id]
	}
	return "Unknown"
}

// LaneState 车道状态
// 说明：车道作为可调度实体的进程状态机
type LaneState int32

const (
	StateWaiting LaneState = iota // 无绿灯，空闲或排队中
	StateReady                    // 有排队车辆，等待调度
	StateRunning                  // 已获得路口通行权
	StateBlocked                  // 死锁场景下被阻塞
)

// String 获取车道状态的字符串表示
func (s LaneState) String() string {
	switch s {
	case StateWaiting:
		return "WAITING"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateBlocked:
		return "BLOCKED"
	default:
		return "UNKNOWN"
	}
}

// NoVehicle 空队列出队时返回的哨兵车辆ID
const NoVehicle int32 = -1

// NoLane 未选中任何车道时的哨兵车道ID
const NoLane int32 = -1
