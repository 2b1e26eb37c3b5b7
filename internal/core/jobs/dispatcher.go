// Package jobs 仓库索引/删除任务的派发与执行
package jobs

import (
	"context"
	"errors"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"code-indexer/internal/adapter/messaging"
	"code-indexer/internal/repository"
	"code-indexer/pkg/constants"
	pkgErrors "code-indexer/pkg/errors"
)

// RepositoryIndexService 只负责派发, 每个仓库一个任务, 不加锁
type RepositoryIndexService struct {
	connections repository.ConnectionRepository
	repos       repository.RepositoryRepository
	queue       messaging.Enqueuer
	log         *zap.Logger
}

func NewRepositoryIndexService(connections repository.ConnectionRepository, repos repository.RepositoryRepository, queue messaging.Enqueuer, log *zap.Logger) *RepositoryIndexService {
	return &RepositoryIndexService{connections: connections, repos: repos, queue: queue, log: log}
}

// EnqueuePendingJobs 活跃 connection 上所有 pending 仓库各投递一个索引任务
func (s *RepositoryIndexService) EnqueuePendingJobs(ctx context.Context) (int, error) {
	return s.enqueue(ctx, constants.RepositoryStatePending, messaging.QueueRepositoryIndex)
}

// EnqueueReadyJobs ready 仓库各投递一个索引任务, worker 按状态走增量索引跟进 HEAD
func (s *RepositoryIndexService) EnqueueReadyJobs(ctx context.Context) (int, error) {
	return s.enqueue(ctx, constants.RepositoryStateReady, messaging.QueueRepositoryIndex)
}

// EnqueuePendingDeletionJobs 活跃 connection 上所有 pending_deletion 仓库各投递一个删除任务
func (s *RepositoryIndexService) EnqueuePendingDeletionJobs(ctx context.Context) (int, error) {
	return s.enqueue(ctx, constants.RepositoryStatePendingDeletion, messaging.QueueRepositoryDeletion)
}

func (s *RepositoryIndexService) enqueue(ctx context.Context, state int8, queue string) (int, error) {
	conn, err := s.connections.FindActive(ctx)
	if err != nil {
		if errors.Is(err, pkgErrors.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}

	ids, err := s.repos.ListIDsByState(ctx, conn.ID, state, 0)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, id := range lo.Uniq(ids) {
		if err := s.queue.Enqueue(ctx, queue, id); err != nil {
			return enqueued, err
		}
		enqueued++
	}
	if enqueued > 0 {
		s.log.Info("派发仓库任务",
			zap.String("queue", queue),
			zap.Int64("connection_id", conn.ID),
			zap.Int("count", enqueued))
	}
	return enqueued, nil
}
