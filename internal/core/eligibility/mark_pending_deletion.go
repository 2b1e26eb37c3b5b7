package eligibility

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"code-indexer/internal/core/coderepo"
	"code-indexer/internal/model"
	"code-indexer/internal/pkg/metrics"
	"code-indexer/internal/repository"
	"code-indexer/pkg/constants"
	pkgErrors "code-indexer/pkg/errors"
)

// PendingDeletionSource 把不再需要索引的仓库标记为 pending_deletion
type PendingDeletionSource struct {
	repos             repository.RepositoryRepository
	enabledNamespaces repository.EnabledNamespaceRepository
	projects          repository.ProjectRepository
	sm                *coderepo.StateMachine
	inactivityMonths  int
	now               func() time.Time
	log               *zap.Logger
}

func NewPendingDeletionSource(
	repos repository.RepositoryRepository,
	enabledNamespaces repository.EnabledNamespaceRepository,
	projects repository.ProjectRepository,
	sm *coderepo.StateMachine,
	inactivityMonths int,
	log *zap.Logger,
) *PendingDeletionSource {
	if inactivityMonths <= 0 {
		inactivityMonths = 6
	}
	return &PendingDeletionSource{
		repos:             repos,
		enabledNamespaces: enabledNamespaces,
		projects:          projects,
		sm:                sm,
		inactivityMonths:  inactivityMonths,
		now:               time.Now,
		log:               log,
	}
}

// WithClock 测试用
func (s *PendingDeletionSource) WithClock(now func() time.Time) *PendingDeletionSource {
	s.now = now
	return s
}

func (s *PendingDeletionSource) Name() string {
	return "mark_repository_as_pending_deletion"
}

// Partitions 每个 connection 一个分区
func (s *PendingDeletionSource) Partitions(ctx context.Context) ([]int64, error) {
	return s.repos.ListPartitions(ctx)
}

// PartitionOf 游标对应仓库所在的 connection
func (s *PendingDeletionSource) PartitionOf(ctx context.Context, id int64) (int64, bool, error) {
	repo, err := s.repos.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, pkgErrors.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return repo.ConnectionID, true, nil
}

func (s *PendingDeletionSource) ScanBatch(ctx context.Context, partition, cursor int64, size, remaining int) (Batch, error) {
	repos, err := s.repos.ListActiveAfter(ctx, partition, cursor, size)
	if err != nil {
		return Batch{}, err
	}
	batch := Batch{Exhausted: len(repos) < size}
	if len(repos) == 0 {
		return batch, nil
	}

	enIDs := lo.Uniq(lo.FilterMap(repos, func(r *model.Repository, _ int) (int64, bool) {
		if r.EnabledNamespaceID == nil {
			return 0, false
		}
		return *r.EnabledNamespaceID, true
	}))
	existing, err := s.enabledNamespaces.ExistingIDs(ctx, enIDs)
	if err != nil {
		return Batch{}, err
	}
	existingENs := lo.SliceToMap(existing, func(id int64) (int64, struct{}) { return id, struct{}{} })

	projectIDs := lo.Uniq(lo.Map(repos, func(r *model.Repository, _ int) int64 { return r.ProjectID }))
	projects, err := s.projects.FindByIDs(ctx, projectIDs)
	if err != nil {
		return Batch{}, err
	}
	projectByID := lo.KeyBy(projects, func(p *model.Project) int64 { return p.ID })

	cutoff := s.now().AddDate(0, -s.inactivityMonths, 0)
	for _, repo := range repos {
		batch.LastID = repo.ID

		reason := deleteReason(repo, existingENs, projectByID[repo.ProjectID], cutoff)
		if reason == "" {
			continue
		}

		err := s.sm.Transition(ctx, repo, constants.RepositoryStatePendingDeletion, coderepo.WithDeleteReason(reason))
		if err != nil {
			if errors.Is(err, coderepo.ErrStaleState) {
				// 已被其他流程修改, 下一轮再判断
				continue
			}
			return batch, err
		}
		metrics.SweepActionsTotal.WithLabelValues(s.Name(), reason).Inc()
		s.log.Info("[Sweep] 仓库标记为待删除",
			zap.Int64("repository_id", repo.ID),
			zap.Int64("project_id", repo.ProjectID),
			zap.String("reason", reason))

		batch.Actions++
		if batch.Actions >= remaining {
			batch.Exhausted = false
			return batch, nil
		}
	}
	return batch, nil
}

// deleteReason 按优先级只返回一个原因, 无需删除时返回空
func deleteReason(repo *model.Repository, existingENs map[int64]struct{}, project *model.Project, cutoff time.Time) string {
	if repo.EnabledNamespaceID == nil {
		return constants.DeleteReasonWithoutEnabledNamespace
	}
	if _, ok := existingENs[*repo.EnabledNamespaceID]; !ok {
		return constants.DeleteReasonWithoutEnabledNamespace
	}
	// 项目已被删除同样视为不再启用 Duo
	if project == nil || !project.DuoFeaturesEnabled {
		return constants.DeleteReasonDuoFeaturesDisabled
	}
	lastActivity := repo.CreatedAt
	if repo.LastQueriedAt != nil {
		lastActivity = *repo.LastQueriedAt
	}
	if lastActivity.Before(cutoff) {
		return constants.DeleteReasonNoRecentActivity
	}
	return ""
}
