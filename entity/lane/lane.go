package lane

import (
	"fmt"
	"sync"
	"time"

	"github.com/tsinghua-fib-lab/intersection-sim/entity"
	"github.com/tsinghua-fib-lab/intersection-sim/utils/container"
)

// DefaultPriority 普通车道优先级，数值越小优先级越高
const DefaultPriority = 2

// Lane 车道实体
// 功能：表示路口的一个进口方向，作为可调度的"进程"参与路口资源竞争；
// 持有排队车辆队列、状态机与性能统计
// 说明：所有可变字段由本车道自己的互斥锁保护；
// 跨车道比较必须通过Snapshot逐条获取，严禁同时持有两把车道锁
type Lane struct {
	ctx entity.ITaskContext

	id int32

	mu   sync.Mutex
	cond *sync.Cond // 状态变更通知，SetState时广播

	queue       *container.BoundedQueue[int32] // 排队车辆ID
	queueLength int32                          // 缓存长度，锁外可观测时刻恒等于queue.Len()
	overflow    int64                          // 队列满导致的丢弃计数

	state       entity.LaneState
	priority    int32
	waitingTime int32 // WAITING/READY状态下累计的tick数

	lastArrivalTime     time.Time
	lastServiceTime     time.Time
	totalVehiclesServed int32
	totalWaitingTime    float64 // 累计等待（秒），算平均等待用

	requestedQuadrants int32 // 申请的路口象限数
	allocatedQuadrants int32 // 已分配的路口象限数
}

// Snapshot 车道状态快照
// 功能：在一次加锁中拷贝出的只读标量，供调度算法与显示线程做跨车道比较
type Snapshot struct {
	ID                 int32
	State              entity.LaneState
	QueueLength        int32
	WaitingTime        int32
	Priority           int32
	LastArrivalTime    time.Time
	TotalServed        int32
	AvgWait            float64
	Overflow           int64
	RequestedQuadrants int32
	AllocatedQuadrants int32
}

// newLane 创建并初始化一个新的Lane实例
// 参数：ctx-任务上下文，id-车道ID（0..3），capacity-队列容量
// 返回：初始化完成的Lane实例；参数非法时返回nil
func newLane(ctx entity.ITaskContext, id int32, capacity int) *Lane {
	if id < 0 || id >= entity.NumLanes || capacity <= 0 {
		log.Errorf("bad lane id %d or capacity %d", id, capacity)
		return nil
	}
	l := &Lane{
		ctx:             ctx,
		id:              id,
		queue:           container.NewBoundedQueue[int32](capacity),
		state:           entity.StateWaiting,
		priority:        DefaultPriority,
		lastArrivalTime: time.Now(),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *Lane) String() string {
	return fmt.Sprintf("Lane %d (%s)", l.id, entity.LaneName(l.id))
}

// ID 获取车道ID
func (l *Lane) ID() int32 {
	if l == nil {
		return entity.NoLane
	}
	return l.id
}

// Name 获取车道方位名称
func (l *Lane) Name() string {
	return entity.LaneName(l.ID())
}

// setStateLocked 修改状态并广播通知
// 说明：调用方必须持有l.mu
func (l *Lane) setStateLocked(s entity.LaneState) {
	if l.state != s {
		l.state = s
		l.cond.Broadcast()
	}
}

// AddVehicle 向车道队列添加一辆车
// 功能：车辆到达入口，线程安全
// 参数：vehicleID-车辆ID
// 返回：true表示入队成功；false表示队列已满，车辆被丢弃并计入溢出
// 说明：入队成功后刷新到达时间；空闲车道被唤醒（WAITING->READY）
func (l *Lane) AddVehicle(vehicleID int32) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.queue.Push(vehicleID) {
		// 容量耗尽：丢弃本次到达，全局丢弃指标由调用方在全局锁下累加
		l.overflow++
		return false
	}
	l.queueLength = int32(l.queue.Len())
	l.lastArrivalTime = time.Now()
	if l.state == entity.StateWaiting {
		l.setStateLocked(entity.StateReady)
		l.waitingTime = 0
	}
	return true
}

// RemoveVehicle 从车道队列取出一辆车（加锁版本）
// 返回：车辆ID；队列为空时返回entity.NoVehicle
func (l *Lane) RemoveVehicle() int32 {
	if l == nil {
		return entity.NoVehicle
	}
	g := l.Lock()
	defer g.Unlock()
	return g.RemoveVehicle()
}

// QueueLength 获取当前排队车辆数（加锁读取缓存值）
func (l *Lane) QueueLength() int32 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queueLength
}

// State 获取当前车道状态
func (l *Lane) State() entity.LaneState {
	if l == nil {
		return entity.StateWaiting
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// SetState 修改车道状态并通知等待者
// 说明：外部驱动的状态迁移入口（死锁恢复、算法切换等）
func (l *Lane) SetState(s entity.LaneState) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setStateLocked(s)
}

// AwaitStateChange 阻塞直到状态不再等于from
// 返回：变更后的状态
// 说明：基于条件变量实现"状态变更对等待者可见"的契约
func (l *Lane) AwaitStateChange(from entity.LaneState) entity.LaneState {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.state == from {
		l.cond.Wait()
	}
	return l.state
}

// Tick 每个模拟tick的车道状态维护
// 功能：非RUNNING且有排队车辆的车道提升为READY；
// WAITING/READY状态累计等待时间
func (l *Lane) Tick() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.queueLength > 0 && l.state == entity.StateWaiting {
		l.setStateLocked(entity.StateReady)
	}
	if l.state == entity.StateReady || l.state == entity.StateWaiting {
		l.waitingTime++
		l.totalWaitingTime += l.ctx.Clock().DT * float64(l.queueLength)
	}
}

// Reset 恢复初始状态
// 功能：清空队列与全部统计，状态回到WAITING
func (l *Lane) Reset() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue.Clear()
	l.queueLength = 0
	l.overflow = 0
	l.setStateLocked(entity.StateWaiting)
	l.priority = DefaultPriority
	l.waitingTime = 0
	l.lastArrivalTime = time.Now()
	l.lastServiceTime = time.Time{}
	l.totalVehiclesServed = 0
	l.totalWaitingTime = 0
	l.requestedQuadrants = 0
	l.allocatedQuadrants = 0
}

// AverageWaitTime 获取平均等待时间（秒/车）
func (l *Lane) AverageWaitTime() float64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.avgWaitLocked()
}

func (l *Lane) avgWaitLocked() float64 {
	if l.totalVehiclesServed == 0 {
		return 0
	}
	return l.totalWaitingTime / float64(l.totalVehiclesServed)
}

// Throughput 获取累计通过车辆数
func (l *Lane) Throughput() int32 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalVehiclesServed
}

// Priority 获取调度优先级（数值越小优先级越高）
func (l *Lane) Priority() int32 {
	if l == nil {
		return DefaultPriority
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.priority
}

// SetPriority 修改调度优先级
// 说明：紧急车辆到达时由紧急事件系统提升对应车道优先级
func (l *Lane) SetPriority(p int32) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.priority = p
}

// OverflowCount 获取累计溢出丢弃数
func (l *Lane) OverflowCount() int64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.overflow
}

// RequestQuadrants 申请路口象限资源
// 参数：n-需要的象限数，非正值视为无效输入并忽略
func (l *Lane) RequestQuadrants(n int32) {
	if l == nil || n <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requestedQuadrants = n
}

// ReleaseQuadrants 释放路口象限资源
// 说明：申请量与分配量一并清零
func (l *Lane) ReleaseQuadrants() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requestedQuadrants = 0
	l.allocatedQuadrants = 0
}

// Snapshot 获取车道状态快照（加锁拷贝）
func (l *Lane) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// TrySnapshot 非阻塞获取车道状态快照
// 返回：快照与true；锁被占用时返回零值与false
// 说明：显示线程专用，锁竞争时调用方应回退到上一次的缓存值
func (l *Lane) TrySnapshot() (Snapshot, bool) {
	if !l.mu.TryLock() {
		return Snapshot{}, false
	}
	defer l.mu.Unlock()
	return l.snapshotLocked(), true
}

func (l *Lane) snapshotLocked() Snapshot {
	return Snapshot{
		ID:                 l.id,
		State:              l.state,
		QueueLength:        l.queueLength,
		WaitingTime:        l.waitingTime,
		Priority:           l.priority,
		LastArrivalTime:    l.lastArrivalTime,
		TotalServed:        l.totalVehiclesServed,
		AvgWait:            l.avgWaitLocked(),
		Overflow:           l.overflow,
		RequestedQuadrants: l.requestedQuadrants,
		AllocatedQuadrants: l.allocatedQuadrants,
	}
}

// Guard 车道锁的持有凭证
// 功能：Lock()返回的凭证是调用免锁操作的唯一途径，
// 将"调用方必须持有车道锁"的约定变成编译期约束
type Guard struct {
	l *Lane
}

// Lock 获取车道锁
// 返回：持锁凭证，操作完成后必须调用Unlock释放
func (l *Lane) Lock() *Guard {
	l.mu.Lock()
	return &Guard{l: l}
}

// TryLock 非阻塞获取车道锁
// 返回：持锁凭证与true；锁被占用时返回nil与false
func (l *Lane) TryLock() (*Guard, bool) {
	if !l.mu.TryLock() {
		return nil, false
	}
	return &Guard{l: l}, true
}

// Unlock 释放车道锁
func (g *Guard) Unlock() {
	g.l.mu.Unlock()
}

// RemoveVehicle 取出队首车辆（免锁版本，凭证持有者专用）
// 返回：车辆ID；队列为空时返回entity.NoVehicle
func (g *Guard) RemoveVehicle() int32 {
	v, ok := g.l.queue.Pop()
	g.l.queueLength = int32(g.l.queue.Len())
	if !ok {
		return entity.NoVehicle
	}
	return v
}

// State 读取状态（免锁版本）
func (g *Guard) State() entity.LaneState {
	return g.l.state
}

// SetState 修改状态并广播通知（免锁版本）
func (g *Guard) SetState(s entity.LaneState) {
	g.l.setStateLocked(s)
}

// QueueLength 读取排队车辆数（免锁版本）
func (g *Guard) QueueLength() int32 {
	return g.l.queueLength
}

// LastArrivalTime 读取最近到达时间（免锁版本）
func (g *Guard) LastArrivalTime() time.Time {
	return g.l.lastArrivalTime
}

// ResetWaitingTime 清零等待时间（免锁版本）
// 说明：车道进入RUNNING时由上下文切换调用
func (g *Guard) ResetWaitingTime() {
	g.l.waitingTime = 0
}

// MarkServed 记录一辆车完成通行（免锁版本）
// 参数：now-服务完成时间
func (g *Guard) MarkServed(now time.Time) {
	g.l.totalVehiclesServed++
	g.l.lastServiceTime = now
}

// AllocateQuadrants 占用路口象限（免锁版本）
func (g *Guard) AllocateQuadrants(n int32) {
	g.l.allocatedQuadrants = n
}

// ReleaseQuadrants 释放路口象限（免锁版本）
func (g *Guard) ReleaseQuadrants() {
	g.l.requestedQuadrants = 0
	g.l.allocatedQuadrants = 0
}

// RequestedQuadrants 读取申请象限数（免锁版本）
func (g *Guard) RequestedQuadrants() int32 {
	return g.l.requestedQuadrants
}
