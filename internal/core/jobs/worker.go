package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"code-indexer/internal/adapter/messaging"
	"code-indexer/internal/adapter/notification"
	"code-indexer/internal/core/capability"
	"code-indexer/internal/core/coderepo"
	"code-indexer/internal/core/indexing"
	"code-indexer/internal/model"
	"code-indexer/internal/pkg/lock"
	"code-indexer/internal/pkg/metrics"
	"code-indexer/internal/repository"
	"code-indexer/pkg/constants"
	pkgErrors "code-indexer/pkg/errors"
)

const (
	IndexWorkerIdentity    = "repository_index_worker"
	DeletionWorkerIdentity = "repository_deletion_worker"
)

// LeaseConfig 租约与重新调度参数
type LeaseConfig struct {
	TTL             time.Duration
	Retries         int
	Backoff         time.Duration
	RescheduleDelay time.Duration
}

// leasedWorker 按 (worker, repository id) 加租约, 拿不到时延迟重投
type leasedWorker struct {
	identity   string
	queue      string
	lease      LeaseConfig
	capability capability.Checker
	locker     lock.Locker
	repos      repository.RepositoryRepository
	enqueuer   messaging.Enqueuer
	log        *zap.Logger
}

func (w *leasedWorker) perform(ctx context.Context, repositoryID int64, run func(ctx context.Context, repo *model.Repository) error) error {
	if !w.capability.IndexingEnabled(ctx) {
		return nil
	}

	key := fmt.Sprintf("%s:%d", w.identity, repositoryID)
	err := lock.WithLease(ctx, w.locker, key, lock.RetryOptions{
		TTL:     w.lease.TTL,
		Retries: w.lease.Retries,
		Backoff: w.lease.Backoff,
	}, func(ctx context.Context) error {
		repo, err := w.repos.FindByID(ctx, repositoryID, repository.WithPreloads("Connection", "Project"))
		if err != nil {
			if errors.Is(err, pkgErrors.ErrRecordNotFound) {
				w.log.Info("仓库记录不存在, 跳过", zap.Int64("repository_id", repositoryID))
				return nil
			}
			return err
		}
		return run(ctx, repo)
	})

	switch {
	case errors.Is(err, pkgErrors.ErrLockContention):
		metrics.LeaseContentionTotal.WithLabelValues(w.identity).Inc()
		metrics.JobsTotal.WithLabelValues(w.queue, "rescheduled").Inc()
		w.log.Info("仓库租约被占用, 延迟重试",
			zap.Int64("repository_id", repositoryID),
			zap.Duration("delay", w.lease.RescheduleDelay))
		return w.enqueuer.EnqueueAfter(ctx, w.queue, repositoryID, w.lease.RescheduleDelay)
	case err != nil:
		metrics.JobsTotal.WithLabelValues(w.queue, "failure").Inc()
		return err
	default:
		metrics.JobsTotal.WithLabelValues(w.queue, "success").Inc()
		return nil
	}
}

// RepositoryIndexWorker pending 走初始索引, ready 走增量索引, 其他状态忽略
type RepositoryIndexWorker struct {
	leasedWorker
	initial     indexing.Service
	incremental indexing.Service
}

func NewRepositoryIndexWorker(
	lease LeaseConfig,
	checker capability.Checker,
	locker lock.Locker,
	repos repository.RepositoryRepository,
	enqueuer messaging.Enqueuer,
	initial indexing.Service,
	incremental indexing.Service,
	log *zap.Logger,
) *RepositoryIndexWorker {
	return &RepositoryIndexWorker{
		leasedWorker: leasedWorker{
			identity:   IndexWorkerIdentity,
			queue:      messaging.QueueRepositoryIndex,
			lease:      lease,
			capability: checker,
			locker:     locker,
			repos:      repos,
			enqueuer:   enqueuer,
			log:        log,
		},
		initial:     initial,
		incremental: incremental,
	}
}

func (w *RepositoryIndexWorker) Perform(ctx context.Context, repositoryID int64) error {
	return w.perform(ctx, repositoryID, func(ctx context.Context, repo *model.Repository) error {
		switch repo.State {
		case constants.RepositoryStatePending:
			return w.initial.Execute(ctx, repo)
		case constants.RepositoryStateReady:
			return w.incremental.Execute(ctx, repo)
		default:
			w.log.Debug("仓库状态无需索引",
				zap.Int64("repository_id", repo.ID),
				zap.String("state", repo.StateName()))
			return nil
		}
	})
}

// ShardDeleter 由 indexer.Deleter 实现
type ShardDeleter interface {
	Run(ctx context.Context, repo *model.Repository) error
}

// RepositoryDeletionWorker pending_deletion → deleted, 失败时保持 pending_deletion 等待下一轮派发
type RepositoryDeletionWorker struct {
	leasedWorker
	deleter  ShardDeleter
	sm       *coderepo.StateMachine
	notifier notification.Notifier
}

func NewRepositoryDeletionWorker(
	lease LeaseConfig,
	checker capability.Checker,
	locker lock.Locker,
	repos repository.RepositoryRepository,
	enqueuer messaging.Enqueuer,
	deleter ShardDeleter,
	sm *coderepo.StateMachine,
	log *zap.Logger,
) *RepositoryDeletionWorker {
	return &RepositoryDeletionWorker{
		leasedWorker: leasedWorker{
			identity:   DeletionWorkerIdentity,
			queue:      messaging.QueueRepositoryDeletion,
			lease:      lease,
			capability: checker,
			locker:     locker,
			repos:      repos,
			enqueuer:   enqueuer,
			log:        log,
		},
		deleter: deleter,
		sm:      sm,
	}
}

// WithNotifier 删除失败时告警
func (w *RepositoryDeletionWorker) WithNotifier(n notification.Notifier) *RepositoryDeletionWorker {
	w.notifier = n
	return w
}

func (w *RepositoryDeletionWorker) Perform(ctx context.Context, repositoryID int64) error {
	return w.perform(ctx, repositoryID, func(ctx context.Context, repo *model.Repository) error {
		if repo.State != constants.RepositoryStatePendingDeletion {
			return nil
		}
		if err := w.deleter.Run(ctx, repo); err != nil {
			w.log.Error("删除仓库 shard 数据失败", zap.Int64("repository_id", repo.ID), zap.Error(err))
			if w.notifier != nil {
				msg := notification.RepositoryMessage(repo, notification.NotifyDeletionFailed, err.Error())
				if nErr := w.notifier.Send(ctx, msg); nErr != nil {
					w.log.Warn("发送删除失败通知失败", zap.Int64("repository_id", repo.ID), zap.Error(nErr))
				}
			}
			return err
		}
		return w.sm.Transition(ctx, repo, constants.RepositoryStateDeleted)
	})
}

// BulkIndexRunner 管理接口同步触发的整仓索引, 与索引 worker 共用租约, 拿不到租约直接返回 ErrLockContention
type BulkIndexRunner struct {
	lease      LeaseConfig
	capability capability.Checker
	locker     lock.Locker
	repos      repository.RepositoryRepository
	bulk       indexing.Service
	log        *zap.Logger
}

func NewBulkIndexRunner(
	lease LeaseConfig,
	checker capability.Checker,
	locker lock.Locker,
	repos repository.RepositoryRepository,
	bulk indexing.Service,
	log *zap.Logger,
) *BulkIndexRunner {
	return &BulkIndexRunner{lease: lease, capability: checker, locker: locker, repos: repos, bulk: bulk, log: log}
}

// Perform 只处理 pending 仓库, 其他状态返回 ArgumentError
func (r *BulkIndexRunner) Perform(ctx context.Context, repositoryID int64) error {
	if !r.capability.IndexingEnabled(ctx) {
		return &pkgErrors.ArgumentError{Message: "indexing is disabled"}
	}

	key := fmt.Sprintf("%s:%d", IndexWorkerIdentity, repositoryID)
	return lock.WithLease(ctx, r.locker, key, lock.RetryOptions{TTL: r.lease.TTL}, func(ctx context.Context) error {
		repo, err := r.repos.FindByID(ctx, repositoryID, repository.WithPreloads("Connection", "Project"))
		if err != nil {
			return err
		}
		if repo.State != constants.RepositoryStatePending {
			return &pkgErrors.ArgumentError{Message: fmt.Sprintf("repository %d is %s, only pending repositories can be bulk indexed", repo.ID, repo.StateName())}
		}
		r.log.Info("[Jobs] 整仓索引", zap.Int64("repository_id", repo.ID))
		return r.bulk.Execute(ctx, repo)
	})
}
