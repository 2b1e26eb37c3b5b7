package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"code-indexer/internal/core/coderepo"
	"code-indexer/internal/dto"
	"code-indexer/internal/model"
	"code-indexer/internal/repository"
	"code-indexer/pkg/constants"
	pkgErrors "code-indexer/pkg/errors"
)

type RepositoryService interface {
	GetByID(ctx context.Context, id int64) (*dto.RepositoryResponse, error)
	List(ctx context.Context, query *dto.RepositoryListQuery) ([]*dto.RepositoryResponse, int64, error)
	// Reset failed/deleted → pending
	Reset(ctx context.Context, id int64) (*dto.RepositoryResponse, error)
	// MarkReady embedding 已确认, embedding_indexing_in_progress → ready
	MarkReady(ctx context.Context, id int64) (*dto.RepositoryResponse, error)
	// Reindex 同步执行一次整仓索引(非流式), 仅 pending
	Reindex(ctx context.Context, id int64) (*dto.RepositoryResponse, error)
}

// BulkIndexer 由 jobs.BulkIndexRunner 实现
type BulkIndexer interface {
	Perform(ctx context.Context, repositoryID int64) error
}

type repositoryService struct {
	repo   repository.RepositoryRepository
	sm     *coderepo.StateMachine
	bulk   BulkIndexer
	logger *zap.Logger
}

func NewRepositoryService(repo repository.RepositoryRepository, sm *coderepo.StateMachine, bulk BulkIndexer, logger *zap.Logger) RepositoryService {
	return &repositoryService{
		repo:   repo,
		sm:     sm,
		bulk:   bulk,
		logger: logger,
	}
}

func (s *repositoryService) GetByID(ctx context.Context, id int64) (*dto.RepositoryResponse, error) {
	repo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toRepositoryResponse(repo), nil
}

func (s *repositoryService) List(ctx context.Context, query *dto.RepositoryListQuery) ([]*dto.RepositoryResponse, int64, error) {
	filter := repository.RepositoryFilter{
		ConnectionID: query.ConnectionID,
		ProjectID:    query.ProjectID,
	}
	if query.State != "" {
		state, ok := constants.RepositoryStateFromString(query.State)
		if !ok {
			return nil, 0, pkgErrors.New(pkgErrors.CodeBadRequest, fmt.Sprintf("未知状态: %s", query.State))
		}
		filter.State = &state
	}

	repos, total, err := s.repo.List(ctx, filter, query.GetOffset(), query.GetPageSize())
	if err != nil {
		return nil, 0, err
	}
	return lo.Map(repos, func(r *model.Repository, _ int) *dto.RepositoryResponse {
		return toRepositoryResponse(r)
	}), total, nil
}

func (s *repositoryService) Reset(ctx context.Context, id int64) (*dto.RepositoryResponse, error) {
	repo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if repo.State != constants.RepositoryStateFailed && repo.State != constants.RepositoryStateDeleted {
		return nil, pkgErrors.New(pkgErrors.CodeBadRequest,
			fmt.Sprintf("仓库状态 %s 不允许重置", repo.StateName()))
	}
	if err := s.transition(ctx, repo, constants.RepositoryStatePending); err != nil {
		return nil, err
	}
	s.logger.Info("仓库已重置为 pending", zap.Int64("repository_id", repo.ID))
	return toRepositoryResponse(repo), nil
}

func (s *repositoryService) MarkReady(ctx context.Context, id int64) (*dto.RepositoryResponse, error) {
	repo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if repo.State == constants.RepositoryStateReady {
		return toRepositoryResponse(repo), nil
	}
	if repo.State != constants.RepositoryStateEmbeddingIndexingInProgress {
		return nil, pkgErrors.New(pkgErrors.CodeBadRequest,
			fmt.Sprintf("仓库状态 %s 不能标记为 ready", repo.StateName()))
	}
	if err := s.transition(ctx, repo, constants.RepositoryStateReady); err != nil {
		return nil, err
	}
	return toRepositoryResponse(repo), nil
}

func (s *repositoryService) Reindex(ctx context.Context, id int64) (*dto.RepositoryResponse, error) {
	if err := s.bulk.Perform(ctx, id); err != nil {
		if errors.Is(err, pkgErrors.ErrLockContention) {
			return nil, pkgErrors.Wrap(pkgErrors.CodeConflict, "仓库正在索引中", err)
		}
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *repositoryService) transition(ctx context.Context, repo *model.Repository, to int8) error {
	err := s.sm.Transition(ctx, repo, to)
	if errors.Is(err, coderepo.ErrStaleState) {
		return pkgErrors.Wrap(pkgErrors.CodeConflict, "仓库状态已被修改, 请重试", err)
	}
	return err
}

func toRepositoryResponse(repo *model.Repository) *dto.RepositoryResponse {
	return &dto.RepositoryResponse{
		ID:                                repo.ID,
		ProjectID:                         repo.ProjectID,
		ConnectionID:                      repo.ConnectionID,
		EnabledNamespaceID:                repo.EnabledNamespaceID,
		State:                             repo.StateName(),
		LastCommit:                        repo.LastCommit,
		InitialIndexingLastQueuedItem:     repo.InitialIndexingLastQueuedItem,
		IncrementalIndexingLastQueuedItem: repo.IncrementalIndexingLastQueuedItem,
		LastQueriedAt:                     repo.LastQueriedAt,
		LastError:                         repo.LastError,
		DeleteReason:                      repo.DeleteReason,
		CreatedAt:                         repo.CreatedAt,
		UpdatedAt:                         repo.UpdatedAt,
	}
}
