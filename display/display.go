package display

import (
	"flag"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tsinghua-fib-lab/intersection-sim/emergency"
	"github.com/tsinghua-fib-lab/intersection-sim/entity"
	"github.com/tsinghua-fib-lab/intersection-sim/entity/lane"
	"github.com/tsinghua-fib-lab/intersection-sim/metrics"
	"github.com/tsinghua-fib-lab/intersection-sim/scheduler"
)

// log 显示模块的日志记录器
var log = logrus.WithField("module", "display")

var barWidth = flag.Int("display.bar_width", 20, "队列占用条的宽度（字符数）")

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
)

// Display 状态显示器
// 功能：渲染车道/调度器/指标的文本状态面板
// 说明：所有读取都是非阻塞的：车道用TrySnapshot、调度器用TryStatus、
// 指标用TryLockGlobal；拿不到锁时复用上一次成功读到的缓存值，
// 显示路径永远不会卡住模拟热路径
type Display struct {
	ctx   entity.ITaskContext
	lanes *lane.Manager
	sched *scheduler.Scheduler
	mtr   *metrics.Metrics
	emerg *emergency.System

	mu            sync.Mutex
	lastLanes     [entity.NumLanes]lane.Snapshot
	lastSched     scheduler.Status
	lastMtr       metrics.Metrics
	lastEmergency bool
	staleReads    int64 // 因锁竞争而回退到缓存的读取次数

	noColor bool
}

// New 创建状态显示器
func New(ctx entity.ITaskContext, lanes *lane.Manager, sched *scheduler.Scheduler,
	mtr *metrics.Metrics, emerg *emergency.System, noColor bool) *Display {
	return &Display{
		ctx:     ctx,
		lanes:   lanes,
		sched:   sched,
		mtr:     mtr,
		emerg:   emerg,
		noColor: noColor,
	}
}

// Refresh 刷新缓存
// 功能：尝试读取各组件的最新状态，读不到的保留上次缓存
func (d *Display) Refresh() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, l := range d.lanes.Lanes() {
		if snap, ok := l.TrySnapshot(); ok {
			d.lastLanes[i] = snap
		} else {
			d.staleReads++
		}
	}
	if st, ok := d.sched.TryStatus(); ok {
		d.lastSched = st
	} else {
		d.staleReads++
	}
	if d.ctx.TryLockGlobal() {
		d.lastMtr = d.mtr.Snapshot()
		d.ctx.UnlockGlobal()
	} else {
		d.staleReads++
	}
	d.lastEmergency = d.emerg.Mode()
}

// StaleReads 获取回退到缓存的读取次数
func (d *Display) StaleReads() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.staleReads
}

// LaneSnapshots 获取缓存的车道快照
func (d *Display) LaneSnapshots() [entity.NumLanes]lane.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastLanes
}

// Render 渲染状态面板文本
func (d *Display) Render() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "=== Intersection @ %s | step %d | algorithm %s ===%s\n",
		d.ctx.Clock(), d.ctx.Clock().InternalStep(), d.lastSched.Algorithm,
		d.emergencyBanner())

	capacity := int32(d.ctx.RuntimeConfig().LaneCapacity)
	for _, snap := range d.lastLanes {
		cur := " "
		if snap.ID == d.lastSched.CurrentLane {
			cur = ">"
		}
		fmt.Fprintf(&b, "%s %-5s %s %s %2d/%2d wait %5.1fs served %3d drop %d\n",
			cur, entity.LaneName(snap.ID), d.stateTag(snap.State),
			d.bar(snap.QueueLength, capacity), snap.QueueLength, capacity,
			snap.AvgWait, snap.TotalServed, snap.Overflow)
	}

	fmt.Fprintf(&b, "vehicles %d/%d | %.1f veh/min | avg wait %.1fs | fairness %.3f | switches %d\n",
		d.lastMtr.TotalVehiclesProcessed, d.lastMtr.TotalVehiclesGenerated,
		d.lastMtr.VehiclesPerMinute, d.lastMtr.AvgWaitTime,
		d.lastMtr.FairnessIndex, d.lastMtr.ContextSwitches)
	return b.String()
}

// RenderTo 渲染状态面板并写入w
func (d *Display) RenderTo(w io.Writer) {
	if _, err := io.WriteString(w, d.Render()); err != nil {
		log.Errorf("render failed: %v", err)
	}
}

// emergencyBanner 紧急模式横幅，非紧急模式下为空串
func (d *Display) emergencyBanner() string {
	if !d.lastEmergency {
		return ""
	}
	if d.noColor {
		return " *** EMERGENCY ***"
	}
	return " " + colorRed + "*** EMERGENCY ***" + colorReset
}

// bar 队列占用条
func (d *Display) bar(length, capacity int32) string {
	width := *barWidth
	if width <= 0 || capacity <= 0 {
		return ""
	}
	filled := int(length) * width / int(capacity)
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("#", filled) + strings.Repeat(".", width-filled)
	if d.noColor {
		return "[" + bar + "]"
	}
	color := colorGreen
	switch {
	case length*4 >= capacity*3:
		color = colorRed
	case length*2 >= capacity:
		color = colorYellow
	}
	return "[" + color + bar + colorReset + "]"
}

// stateTag 带颜色的状态标签，固定宽度对齐
func (d *Display) stateTag(s entity.LaneState) string {
	tag := fmt.Sprintf("%-7s", s)
	if d.noColor {
		return tag
	}
	switch s {
	case entity.StateRunning:
		return colorGreen + tag + colorReset
	case entity.StateReady:
		return colorCyan + tag + colorReset
	case entity.StateBlocked:
		return colorRed + tag + colorReset
	default:
		return tag
	}
}
