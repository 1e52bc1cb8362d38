package config

// ControlStep 指定模拟时间范围和间隔的配置项
// 功能：控制模拟的总时长与每个tick的时间间隔
type ControlStep struct {
	Total    int32   `yaml:"total"`    // 总步数（为0时由duration推算）
	Interval float64 `yaml:"interval"` // 每步的时间间隔（秒）
}

// ArrivalRate 车辆到达间隔配置
// 说明：生成线程在[min,max]秒内随机选取休眠时长
type ArrivalRate struct {
	Min int `yaml:"min"` // 最小到达间隔（秒）
	Max int `yaml:"max"` // 最大到达间隔（秒）
}

// Control 模拟器控制配置
// 功能：定义模拟的核心控制参数
type Control struct {
	Step      ControlStep `yaml:"step"`
	Arrival   ArrivalRate `yaml:"arrival"`
	Duration  int         `yaml:"duration,omitempty"`  // 模拟时长（秒）
	Algorithm string      `yaml:"algorithm,omitempty"` // 调度算法（sjf|multilevel|priority）
	Seed      uint64      `yaml:"seed,omitempty"`      // 随机数种子
}

// Lane 车道配置
type Lane struct {
	Capacity int `yaml:"capacity,omitempty"` // 每条车道的队列容量
}

// Scheduler 调度器配置
// 说明：时间类字段单位为秒，与命令行参数保持一致
type Scheduler struct {
	Quantum               float64 `yaml:"quantum,omitempty"`                 // 时间片（秒）
	SwitchCostMs          float64 `yaml:"switch_cost_ms,omitempty"`          // 上下文切换开销（毫秒）
	CrossTime             float64 `yaml:"cross_time,omitempty"`              // 单车名义穿越时间（秒），算法估算用
	CrossDelayMin         float64 `yaml:"cross_delay_min,omitempty"`         // 穿越模拟延时下限（秒）
	CrossDelayMax         float64 `yaml:"cross_delay_max,omitempty"`         // 穿越模拟延时上限（秒）
	HistorySize           int     `yaml:"history_size,omitempty"`            // 执行历史环形缓冲容量
	DeadlockCheckInterval int     `yaml:"deadlock_check_interval,omitempty"` // 死锁检测间隔（tick数）
}

// Emergency 紧急车辆配置
type Emergency struct {
	Probability float64 `yaml:"probability,omitempty"` // 每次到达伴随紧急车辆的概率
}

// Config YAML配置文件的根结构
type Config struct {
	Control   Control   `yaml:"control"`             // 模拟过程控制
	Lane      Lane      `yaml:"lane,omitempty"`      // 车道
	Scheduler Scheduler `yaml:"scheduler,omitempty"` // 调度器
	Emergency Emergency `yaml:"emergency,omitempty"` // 紧急车辆
}
