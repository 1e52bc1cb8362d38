package entity

import (
	"github.com/tsinghua-fib-lab/intersection-sim/clock"
	"github.com/tsinghua-fib-lab/intersection-sim/utils/config"
	"github.com/tsinghua-fib-lab/intersection-sim/utils/randengine"
)

// metrics.Metrics的依赖倒置
// 说明：调度器在执行时间片内直接累加指标，持有全局状态锁时调用
type IMetrics interface {
	VehicleProcessed(laneID int32, waitSec float64) // 记录一辆车通过路口及其等待时间
	VehicleDropped(laneID int32)                    // 记录一次队列溢出丢弃
	ContextSwitch()                                 // 记录一次上下文切换
	InvariantViolation()                            // 记录一次互斥不变量告警
}

// ITaskContext 任务上下文接口
// 功能：向各模块暴露一次模拟任务的共享组件，避免全局变量
// 说明：全局状态锁只保护指标/紧急状态/车辆计数等全局字段，
// 与车道锁同时持有时必须先取全局锁（全局锁->车道锁的固定顺序）
type ITaskContext interface {
	Clock() *clock.Clock
	RuntimeConfig() *config.RuntimeConfig
	Rand() *randengine.Engine
	Metrics() IMetrics

	LockGlobal()
	TryLockGlobal() bool
	UnlockGlobal()
}
