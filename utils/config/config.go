package config

import (
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "config")

// 默认参数，与命令行帮助中展示的缺省值一致
const (
	DefaultDurationSec     = 300
	DefaultTickIntervalSec = 0.3
	DefaultArrivalMinSec   = 3
	DefaultArrivalMaxSec   = 8
	DefaultLaneCapacity    = 20
	DefaultQuantumSec      = 3
	DefaultSwitchCostMs    = 500
	DefaultCrossTimeSec    = 3
	DefaultCrossDelayMin   = 2
	DefaultCrossDelayMax   = 4
	DefaultHistorySize     = 1000
	DefaultDeadlockEvery   = 100
	DefaultEmergencyProb   = 0.01
	DefaultAlgorithm       = "sjf"
)

// RuntimeConfig 运行时配置
// 功能：将YAML配置解析为运行时可直接使用的形式（时间字段转为time.Duration），
// 并对非法值回退到默认值
// 说明：配置错误只产生告警，不会阻止模拟启动
type RuntimeConfig struct {
	All Config // 原始配置

	Duration         time.Duration // 模拟总时长
	TickInterval     time.Duration // 模拟循环的tick间隔
	ArrivalMin       int           // 最小到达间隔（秒）
	ArrivalMax       int           // 最大到达间隔（秒）
	LaneCapacity     int           // 车道队列容量
	Quantum          time.Duration // 时间片
	SwitchCost       time.Duration // 上下文切换开销
	CrossTime        time.Duration // 单车名义穿越时间（算法估算用）
	CrossDelayBase   time.Duration // 穿越模拟延时下限
	CrossDelayJitter time.Duration // 穿越模拟延时抖动幅度
	HistorySize      int           // 执行历史容量
	DeadlockEvery    int           // 死锁检测间隔（tick数）
	EmergencyProb    float64       // 紧急车辆概率
	Algorithm        string        // 初始调度算法名
	Seed             uint64        // 随机数种子
}

// NewRuntimeConfig 根据配置初始化运行时配置
// 功能：应用默认值、修正非法参数并给出告警
// 算法说明：
// 1. 时长小于10秒或大于1小时的截断到边界值
// 2. 到达间隔min>max时交换两者
// 3. 其余非正值字段回退到默认值
func NewRuntimeConfig(c Config) *RuntimeConfig {
	rc := &RuntimeConfig{All: c}

	duration := c.Control.Duration
	if duration <= 0 {
		duration = DefaultDurationSec
	}
	if duration < 10 {
		log.Warnf("duration %ds too short, clamp to 10s", duration)
		duration = 10
	}
	if duration > 3600 {
		log.Warnf("duration %ds too long, clamp to 3600s", duration)
		duration = 3600
	}
	rc.Duration = time.Duration(duration) * time.Second

	interval := c.Control.Step.Interval
	if interval <= 0 {
		interval = DefaultTickIntervalSec
	}
	rc.TickInterval = time.Duration(interval * float64(time.Second))

	rc.ArrivalMin, rc.ArrivalMax = c.Control.Arrival.Min, c.Control.Arrival.Max
	if rc.ArrivalMin <= 0 {
		rc.ArrivalMin = DefaultArrivalMinSec
	}
	if rc.ArrivalMax <= 0 {
		rc.ArrivalMax = DefaultArrivalMaxSec
	}
	if rc.ArrivalMin > rc.ArrivalMax {
		log.Warnf("arrival min %d > max %d, swapped", rc.ArrivalMin, rc.ArrivalMax)
		rc.ArrivalMin, rc.ArrivalMax = rc.ArrivalMax, rc.ArrivalMin
	}

	rc.LaneCapacity = c.Lane.Capacity
	if rc.LaneCapacity <= 0 {
		rc.LaneCapacity = DefaultLaneCapacity
	}

	rc.Quantum = secondsOrDefault(c.Scheduler.Quantum, DefaultQuantumSec*time.Second)
	rc.SwitchCost = durationOrDefault(
		time.Duration(c.Scheduler.SwitchCostMs*float64(time.Millisecond)),
		DefaultSwitchCostMs*time.Millisecond)
	rc.CrossTime = secondsOrDefault(c.Scheduler.CrossTime, DefaultCrossTimeSec*time.Second)

	delayMin := secondsOrDefault(c.Scheduler.CrossDelayMin, DefaultCrossDelayMin*time.Second)
	delayMax := secondsOrDefault(c.Scheduler.CrossDelayMax, DefaultCrossDelayMax*time.Second)
	if delayMax < delayMin {
		delayMin, delayMax = delayMax, delayMin
	}
	rc.CrossDelayBase = delayMin
	rc.CrossDelayJitter = delayMax - delayMin

	rc.HistorySize = c.Scheduler.HistorySize
	if rc.HistorySize <= 0 {
		rc.HistorySize = DefaultHistorySize
	}
	rc.DeadlockEvery = c.Scheduler.DeadlockCheckInterval
	if rc.DeadlockEvery <= 0 {
		rc.DeadlockEvery = DefaultDeadlockEvery
	}
	rc.EmergencyProb = c.Emergency.Probability
	if rc.EmergencyProb <= 0 || rc.EmergencyProb > 1 {
		rc.EmergencyProb = DefaultEmergencyProb
	}
	rc.Algorithm = c.Control.Algorithm
	if rc.Algorithm == "" {
		rc.Algorithm = DefaultAlgorithm
	}
	rc.Seed = c.Control.Seed
	if rc.Seed == 0 {
		rc.Seed = uint64(time.Now().UnixNano())
	}
	return rc
}

func secondsOrDefault(sec float64, def time.Duration) time.Duration {
	if sec <= 0 {
		return def
	}
	return time.Duration(sec * float64(time.Second))
}

func durationOrDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
