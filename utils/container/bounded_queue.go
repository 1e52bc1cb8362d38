package container

// BoundedQueue 固定容量的FIFO队列
// 功能：实现一个基于环形缓冲区的有界先进先出队列
// 说明：支持泛型，用于存储车辆ID与车道ID等令牌；
// 队列满时入队失败而不是扩容，由调用方决定丢弃策略
type BoundedQueue[T any] struct {
	data     []T // 环形缓冲区
	capacity int // 最大容量
	head     int // 队首下标
	size     int // 当前元素数
}

// NewBoundedQueue 创建有界队列
// 功能：按给定容量初始化队列
// 参数：capacity-最大容量，非正值视为无效输入并返回nil
// 返回：新创建的队列指针
func NewBoundedQueue[T any](capacity int) *BoundedQueue[T] {
	if capacity <= 0 {
		// 防御性处理：无效容量不创建队列
		return nil
	}
	return &BoundedQueue[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

// Len 获取当前队列长度
// 返回：队列中元素的数量
func (q *BoundedQueue[T]) Len() int {
	if q == nil {
		return 0
	}
	return q.size
}

// Cap 获取队列容量
func (q *BoundedQueue[T]) Cap() int {
	if q == nil {
		return 0
	}
	return q.capacity
}

// Empty 检查队列是否为空
func (q *BoundedQueue[T]) Empty() bool {
	return q.Len() == 0
}

// Push 向队尾添加元素
// 功能：将元素加入队列尾部
// 参数：v-要添加的元素
// 返回：true表示入队成功，false表示队列已满（元素被拒绝）
func (q *BoundedQueue[T]) Push(v T) bool {
	if q == nil || q.size >= q.capacity {
		return false
	}
	q.data[(q.head+q.size)%q.capacity] = v
	q.size++
	return true
}

// Pop 从队首取出元素
// 功能：移除并返回队列头部元素
// 返回：队首元素与true；队列为空时返回零值与false
func (q *BoundedQueue[T]) Pop() (T, bool) {
	var zero T
	if q == nil || q.size == 0 {
		return zero, false
	}
	v := q.data[q.head]
	q.data[q.head] = zero // 避免保留对旧元素的引用
	q.head = (q.head + 1) % q.capacity
	q.size--
	return v, true
}

// Clear 清空队列
// 功能：移除所有元素，容量保持不变
func (q *BoundedQueue[T]) Clear() {
	if q == nil {
		return
	}
	var zero T
	for i := range q.data {
		q.data[i] = zero
	}
	q.head = 0
	q.size = 0
}

// Values 获取队列中所有元素（从队首到队尾）
// 说明：返回副本，便于做只读遍历
func (q *BoundedQueue[T]) Values() []T {
	if q == nil {
		return nil
	}
	values := make([]T, q.size)
	for i := 0; i < q.size; i++ {
		values[i] = q.data[(q.head+i)%q.capacity]
	}
	return values
}
