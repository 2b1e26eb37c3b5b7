package messaging

import (
	"context"
	"sync"
	"time"

	"code-indexer/internal/core/events"
)

// DelayedJob 记录的延迟任务
type DelayedJob struct {
	Queue        string
	RepositoryID int64
	Delay        time.Duration
}

// MemoryBus 记录所有发布的事件和任务, 不做投递, 用于测试
type MemoryBus struct {
	mu sync.Mutex

	Events  []events.Event
	Jobs    map[string][]int64
	Delayed []DelayedJob

	PublishErr error
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{Jobs: make(map[string][]int64)}
}

func (b *MemoryBus) Publish(_ context.Context, ev events.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PublishErr != nil {
		return b.PublishErr
	}
	b.Events = append(b.Events, ev)
	return nil
}

func (b *MemoryBus) Subscribe(events.Type, EventHandler) error {
	return nil
}

func (b *MemoryBus) Enqueue(_ context.Context, queue string, repositoryID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Jobs[queue] = append(b.Jobs[queue], repositoryID)
	return nil
}

func (b *MemoryBus) EnqueueAfter(_ context.Context, queue string, repositoryID int64, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Delayed = append(b.Delayed, DelayedJob{Queue: queue, RepositoryID: repositoryID, Delay: delay})
	return nil
}

func (b *MemoryBus) Consume(string, JobHandler) error {
	return nil
}

// PublishedEvents 拷贝一份已发布事件
func (b *MemoryBus) PublishedEvents() []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Event(nil), b.Events...)
}

func (b *MemoryBus) DelayedJobs() []DelayedJob {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]DelayedJob(nil), b.Delayed...)
}

func (b *MemoryBus) EnqueuedJobs(queue string) []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int64(nil), b.Jobs[queue]...)
}

// Reset 清空记录
func (b *MemoryBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Events = nil
	b.Jobs = make(map[string][]int64)
	b.Delayed = nil
}
