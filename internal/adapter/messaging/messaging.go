// Package messaging 事件总线与任务队列
package messaging

import (
	"context"
	"time"

	"code-indexer/internal/core/events"
)

// 任务队列名
const (
	QueueRepositoryIndex    = "repository_index"
	QueueRepositoryDeletion = "repository_deletion"
)

// Publisher 发布扫描事件
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

type EventHandler func(ctx context.Context, ev events.Event) error

// Bus 事件总线
type Bus interface {
	Publisher
	Subscribe(t events.Type, handler EventHandler) error
}

// JobPayload 任务消息体
type JobPayload struct {
	RepositoryID int64 `json:"repository_id"`
}

// Enqueuer 投递单个仓库任务
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, repositoryID int64) error
	// EnqueueAfter 延迟投递, 进程退出前未触发的任务由周期调度重新派发
	EnqueueAfter(ctx context.Context, queue string, repositoryID int64, delay time.Duration) error
}

type JobHandler func(ctx context.Context, repositoryID int64) error

// JobQueue 任务队列
type JobQueue interface {
	Enqueuer
	Consume(queue string, handler JobHandler) error
}
