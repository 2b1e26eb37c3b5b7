// Package indexing 一次索引过程: 运行索引器, 转发 hash, 推进仓库状态
package indexing

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"code-indexer/internal/adapter/notification"
	"code-indexer/internal/adapter/tracker"
	"code-indexer/internal/core/coderepo"
	"code-indexer/internal/model"
	"code-indexer/internal/pkg/metrics"
	"code-indexer/pkg/constants"
)

// IndexRunner 由 indexer.Indexer 实现
type IndexRunner interface {
	Run(ctx context.Context, repo *model.Repository, onHash func(hash string) error) error
}

// Service 对一个仓库执行一次索引
type Service interface {
	Execute(ctx context.Context, repo *model.Repository) error
}

type base struct {
	indexer  IndexRunner
	tracker  tracker.RefTracker
	sm       *coderepo.StateMachine
	notifier notification.Notifier
	log      *zap.Logger
}

// WithNotifier 失败时额外发送告警
func (b *base) WithNotifier(n notification.Notifier) {
	b.notifier = n
}

// streamTracked 每个 hash 立即转发, 返回最后一个 hash
func (b *base) streamTracked(ctx context.Context, repo *model.Repository) (string, error) {
	var last string
	err := b.indexer.Run(ctx, repo, func(hash string) error {
		if err := b.tracker.Track(ctx, repo.ProjectID, hash); err != nil {
			return err
		}
		metrics.HashesStreamedTotal.Inc()
		last = hash
		return nil
	})
	return last, err
}

// fail 记录失败状态后原样返回 err
func (b *base) fail(ctx context.Context, repo *model.Repository, err error) error {
	b.log.Error("仓库索引失败",
		zap.Int64("repository_id", repo.ID),
		zap.Int64("project_id", repo.ProjectID),
		zap.String("state", constants.RepositoryStateToString(repo.State)),
		zap.Error(err))

	if tErr := b.sm.Transition(ctx, repo, constants.RepositoryStateFailed, coderepo.WithLastError(err.Error())); tErr != nil {
		b.log.Error("记录失败状态失败", zap.Int64("repository_id", repo.ID), zap.Error(tErr))
	}
	if b.notifier != nil {
		msg := notification.RepositoryMessage(repo, notification.NotifyIndexingFailed, err.Error())
		if nErr := b.notifier.Send(ctx, msg); nErr != nil {
			b.log.Warn("发送失败通知失败", zap.Int64("repository_id", repo.ID), zap.Error(nErr))
		}
	}
	return err
}

// complete 索引期间状态被扫描等流程改掉时放弃本次状态写入, 不算失败
func (b *base) complete(ctx context.Context, repo *model.Repository, to int8, opts ...coderepo.Option) error {
	err := b.sm.Transition(ctx, repo, to, opts...)
	if errors.Is(err, coderepo.ErrStaleState) {
		b.log.Warn("索引期间仓库状态已变更, 跳过状态更新",
			zap.Int64("repository_id", repo.ID),
			zap.String("expected", constants.RepositoryStateToString(repo.State)))
		return nil
	}
	if err != nil {
		return b.fail(ctx, repo, err)
	}
	return nil
}

// InitialIndexingService pending → embedding_indexing_in_progress
type InitialIndexingService struct {
	base
}

func NewInitialIndexingService(indexer IndexRunner, tr tracker.RefTracker, sm *coderepo.StateMachine, log *zap.Logger) *InitialIndexingService {
	return &InitialIndexingService{base{indexer: indexer, tracker: tr, sm: sm, log: log}}
}

func (s *InitialIndexingService) Execute(ctx context.Context, repo *model.Repository) error {
	last, err := s.streamTracked(ctx, repo)
	if err != nil {
		return s.fail(ctx, repo, err)
	}

	var opts []coderepo.Option
	if last != "" {
		opts = append(opts, coderepo.WithInitialCursor(last))
	}
	return s.complete(ctx, repo, constants.RepositoryStateEmbeddingIndexingInProgress, opts...)
}

// IncrementalIndexingService ready 状态下的增量索引, 只推进增量游标
type IncrementalIndexingService struct {
	base
}

func NewIncrementalIndexingService(indexer IndexRunner, tr tracker.RefTracker, sm *coderepo.StateMachine, log *zap.Logger) *IncrementalIndexingService {
	return &IncrementalIndexingService{base{indexer: indexer, tracker: tr, sm: sm, log: log}}
}

func (s *IncrementalIndexingService) Execute(ctx context.Context, repo *model.Repository) error {
	last, err := s.streamTracked(ctx, repo)
	if err != nil {
		return s.fail(ctx, repo, err)
	}
	if last == "" {
		return nil
	}
	return s.complete(ctx, repo, constants.RepositoryStateReady, coderepo.WithIncrementalCursor(last))
}

// BulkIndexingService 先收集所有 hash, 结束后一次性提交
type BulkIndexingService struct {
	base
}

func NewBulkIndexingService(indexer IndexRunner, tr tracker.RefTracker, sm *coderepo.StateMachine, log *zap.Logger) *BulkIndexingService {
	return &BulkIndexingService{base{indexer: indexer, tracker: tr, sm: sm, log: log}}
}

func (s *BulkIndexingService) Execute(ctx context.Context, repo *model.Repository) error {
	var hashes []string
	err := s.indexer.Run(ctx, repo, func(hash string) error {
		hashes = append(hashes, hash)
		return nil
	})
	if err != nil {
		return s.fail(ctx, repo, err)
	}

	if err := s.tracker.Track(ctx, repo.ProjectID, hashes...); err != nil {
		return s.fail(ctx, repo, err)
	}
	metrics.HashesStreamedTotal.Add(float64(len(hashes)))

	var opts []coderepo.Option
	if len(hashes) > 0 {
		opts = append(opts, coderepo.WithInitialCursor(hashes[len(hashes)-1]))
	}
	return s.complete(ctx, repo, constants.RepositoryStateEmbeddingIndexingInProgress, opts...)
}
