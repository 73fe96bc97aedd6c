package monitor

import (
	"sync/atomic"
	"time"
)

// Monitor 支付链路被动计数器
type Monitor interface {
	MarkCreate()
	MarkQuery()
	MarkRefund()
	MarkFailure()
	Snapshot() Snapshot
}

// Snapshot 计数快照
type Snapshot struct {
	Creates   int64     `json:"creates"`
	Queries   int64     `json:"queries"`
	Refunds   int64     `json:"refunds"`
	Failures  int64     `json:"failures"`
	StartedAt time.Time `json:"started_at"`
}

// Counter 进程内原子计数实现
type Counter struct {
	creates   atomic.Int64
	queries   atomic.Int64
	refunds   atomic.Int64
	failures  atomic.Int64
	startedAt time.Time
}

// NewCounter 创建计数器
func NewCounter() *Counter {
	return &Counter{startedAt: time.Now()}
}

func (c *Counter) MarkCreate()  { c.creates.Add(1) }
func (c *Counter) MarkQuery()   { c.queries.Add(1) }
func (c *Counter) MarkRefund()  { c.refunds.Add(1) }
func (c *Counter) MarkFailure() { c.failures.Add(1) }

// Snapshot 实现 Monitor
func (c *Counter) Snapshot() Snapshot {
	return Snapshot{
		Creates:   c.creates.Load(),
		Queries:   c.queries.Load(),
		Refunds:   c.refunds.Load(),
		Failures:  c.failures.Load(),
		StartedAt: c.startedAt,
	}
}

// Nop 不计数的实现
type Nop struct{}

func (Nop) MarkCreate()        {}
func (Nop) MarkQuery()         {}
func (Nop) MarkRefund()        {}
func (Nop) MarkFailure()       {}
func (Nop) Snapshot() Snapshot { return Snapshot{} }
