package scheduler

import "time"

// ExecutionRecord 一次时间片执行的历史记录
type ExecutionRecord struct {
	LaneID            int32
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
	VehiclesProcessed int32
}

// History 执行历史环形缓冲区
// 功能：固定容量记录最近的时间片执行，写满后覆盖最旧的记录
// 说明：单写者（调度器），由调度器锁保护，不自带锁
type History struct {
	records []ExecutionRecord
	index   int // 下一条记录的写入位置
	count   int // 已写入的总条数（不回绕）
}

// NewHistory 创建执行历史
// 参数：capacity-容量，非正值回退为1
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 1
	}
	return &History{records: make([]ExecutionRecord, capacity)}
}

// Append 追加一条记录，写入位置按容量取模回绕
func (h *History) Append(r ExecutionRecord) {
	h.records[h.index] = r
	h.index = (h.index + 1) % len(h.records)
	h.count++
}

// Len 当前保留的记录条数
func (h *History) Len() int {
	if h.count < len(h.records) {
		return h.count
	}
	return len(h.records)
}

// Cap 缓冲区容量
func (h *History) Cap() int {
	return len(h.records)
}

// Total 累计写入的总条数（含已被覆盖的）
func (h *History) Total() int {
	return h.count
}

// Records 按时间先后拷贝出当前保留的记录
func (h *History) Records() []ExecutionRecord {
	n := h.Len()
	out := make([]ExecutionRecord, 0, n)
	start := 0
	if h.count >= len(h.records) {
		start = h.index
	}
	for i := 0; i < n; i++ {
		out = append(out, h.records[(start+i)%len(h.records)])
	}
	return out
}
