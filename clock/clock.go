package clock

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Clock 模拟时钟
// 功能：管理模拟时间推进，维护tick计数与当前模拟时间
// 说明：模拟循环每tick调用一次Step；其他线程只读，使用原子操作避免加锁
type Clock struct {
	DT       float64 // 每个tick的时间间隔（秒）
	EndStep  int32   // 结束步，模拟区间[0, END)
	step     atomic.Int32
	startSec atomic.Int64 // 模拟开始的wall时间（Unix秒）
}

// New 根据tick间隔与总时长创建时钟
// 参数：dt-每tick秒数，total-模拟总时长
func New(dt float64, total time.Duration) *Clock {
	c := &Clock{DT: dt}
	if dt > 0 {
		c.EndStep = int32(total.Seconds() / dt)
	}
	c.Init()
	return c
}

// Init 重置时钟状态
func (c *Clock) Init() {
	c.step.Store(0)
	c.startSec.Store(time.Now().Unix())
}

// Step 推进一个tick
// 返回：推进后的tick计数
func (c *Clock) Step() int32 {
	return c.step.Add(1)
}

// InternalStep 获取当前tick计数
func (c *Clock) InternalStep() int32 {
	return c.step.Load()
}

// T 获取当前模拟时间（秒）
func (c *Clock) T() float64 {
	return float64(c.step.Load()) * c.DT
}

// Done 检查模拟区间是否走完
func (c *Clock) Done() bool {
	return c.EndStep > 0 && c.step.Load() >= c.EndStep
}

// StartTime 获取模拟开始的wall时间
func (c *Clock) StartTime() time.Time {
	return time.Unix(c.startSec.Load(), 0)
}

// String 获取当前模拟时间的字符串表示（HH:MM:SS）
func (c *Clock) String() string {
	t := c.T()
	h := int(t / 3600)
	t -= float64(h * 3600)
	m := int(t / 60)
	t -= float64(m * 60)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, int(t))
}
