package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"code-indexer/internal/core/capability"
	"code-indexer/internal/core/events"
)

// 任务名
const (
	TaskCreateEnabledNamespace          = "create_enabled_namespace"
	TaskProcessInvalidEnabledNamespace  = "process_invalid_enabled_namespace"
	TaskMarkRepositoryAsPendingDeletion = "mark_repository_as_pending_deletion"
	TaskCreatePendingRepositories       = "create_pending_repositories"
	TaskIndexRepository                 = "index_repository"
	TaskIndexReadyRepositories          = "index_ready_repositories"
	TaskDeleteRepository                = "delete_repository"
)

// RepositorySyncer 由 eligibility.RepositorySync 实现
type RepositorySyncer interface {
	Run(ctx context.Context) (int, error)
}

// JobDispatcher 由 jobs.RepositoryIndexService 实现
type JobDispatcher interface {
	EnqueuePendingJobs(ctx context.Context) (int, error)
	EnqueueReadyJobs(ctx context.Context) (int, error)
	EnqueuePendingDeletionJobs(ctx context.Context) (int, error)
}

// TaskDependencies 默认任务表依赖
type TaskDependencies struct {
	Capability capability.Checker
	Sync       RepositorySyncer
	Dispatcher JobDispatcher
	Log        *zap.Logger
}

// DefaultTasks 默认任务表
func DefaultTasks(deps TaskDependencies) []Task {
	enabled := deps.Capability.IndexingEnabled
	counted := func(name string, fn func(ctx context.Context) (int, error)) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			n, err := fn(ctx)
			if n > 0 {
				deps.Log.Info("[Scheduler] 任务完成", zap.String("task", name), zap.Int("count", n))
			}
			return err
		}
	}

	return []Task{
		{Name: TaskCreateEnabledNamespace, Period: 30 * time.Minute, Dispatch: events.CreateEnabledNamespace},
		{Name: TaskProcessInvalidEnabledNamespace, Period: time.Hour, Dispatch: events.ProcessInvalidEnabledNamespace},
		{Name: TaskMarkRepositoryAsPendingDeletion, Period: time.Hour, Dispatch: events.MarkRepositoryAsPendingDeletion},
		{
			Name:    TaskCreatePendingRepositories,
			Period:  10 * time.Minute,
			If:      enabled,
			Execute: counted(TaskCreatePendingRepositories, deps.Sync.Run),
		},
		{
			Name:    TaskIndexRepository,
			Period:  time.Minute,
			If:      enabled,
			Execute: counted(TaskIndexRepository, deps.Dispatcher.EnqueuePendingJobs),
		},
		{
			Name:    TaskIndexReadyRepositories,
			Period:  30 * time.Minute,
			If:      enabled,
			Execute: counted(TaskIndexReadyRepositories, deps.Dispatcher.EnqueueReadyJobs),
		},
		{
			Name:    TaskDeleteRepository,
			Period:  5 * time.Minute,
			If:      enabled,
			Execute: counted(TaskDeleteRepository, deps.Dispatcher.EnqueuePendingDeletionJobs),
		},
	}
}
