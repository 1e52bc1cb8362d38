// 随机数引擎，包装了golang.org/x/exp/rand，提供模拟中常用的随机数生成方法
package randengine

import (
	"flag"
	"sync"
	"time"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于调整随机数序列
)

// Engine 随机数引擎
// 功能：提供车辆到达、车道选择、穿越延时抖动等所需的随机数，区分线程安全与非安全接口
type Engine struct {
	*rand.Rand
	mtx sync.Mutex // 互斥锁，Safe后缀的方法使用
}

// New 创建随机数引擎
// 参数：seed-随机数种子（加上种子偏移量后生效）
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// PTrue 以指定概率返回true（非线程安全）
func (e *Engine) PTrue(p float64) bool {
	return e.Float64() < p
}

// PTrueSafe 以指定概率返回true（线程安全）
func (e *Engine) PTrueSafe(p float64) bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.Float64() < p
}

// IntnSafe 随机生成[0,n)内的整数（线程安全）
func (e *Engine) IntnSafe(n int) int {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.Intn(n)
}

// RangeSafe 随机生成[min,max]内的整数（线程安全）
// 说明：min>max时交换两者，保证始终有效
func (e *Engine) RangeSafe(min, max int) int {
	if min > max {
		min, max = max, min
	}
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return min + e.Intn(max-min+1)
}

// DurationJitterSafe 随机生成[base,base+jitter)内的时长（线程安全）
// 说明：用于车辆穿越路口的延时模拟
func (e *Engine) DurationJitterSafe(base, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return base
	}
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return base + time.Duration(e.Int63n(int64(jitter)))
}

// DiscreteDistributionSafe 按给定概率分布生成随机下标（线程安全）
// 算法说明：计算总权重后在[0,总权重)内取随机数，返回累积权重首次超过随机数的下标
func (e *Engine) DiscreteDistributionSafe(weight []float64) int32 {
	random := .0
	for _, w := range weight {
		random += w
	}
	e.mtx.Lock()
	random *= e.Float64()
	e.mtx.Unlock()
	sum := 0.
	for i, w := range weight {
		sum += w
		if sum > random {
			return int32(i)
		}
	}
	return int32(len(weight))
}
