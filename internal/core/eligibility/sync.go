package eligibility

import (
	"context"
	"errors"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"code-indexer/internal/core/capability"
	"code-indexer/internal/core/coderepo"
	"code-indexer/internal/model"
	"code-indexer/internal/pkg/metrics"
	"code-indexer/internal/repository"
	"code-indexer/pkg/constants"
	pkgErrors "code-indexer/pkg/errors"
)

// RepositorySync 为启用命名空间下的项目创建 pending 仓库记录
//
// 已删除的记录重新进入 pending; 解除了关联但尚未删除的记录重新挂到当前 EnabledNamespace.
// Duo 被关闭的项目不创建, 否则会立刻被待删除扫描标记.
type RepositorySync struct {
	cfg               SweepConfig
	capability        capability.Checker
	connections       repository.ConnectionRepository
	enabledNamespaces repository.EnabledNamespaceRepository
	projects          repository.ProjectRepository
	repos             repository.RepositoryRepository
	sm                *coderepo.StateMachine
	log               *zap.Logger
}

func NewRepositorySync(
	cfg SweepConfig,
	checker capability.Checker,
	connections repository.ConnectionRepository,
	enabledNamespaces repository.EnabledNamespaceRepository,
	projects repository.ProjectRepository,
	repos repository.RepositoryRepository,
	sm *coderepo.StateMachine,
	log *zap.Logger,
) *RepositorySync {
	return &RepositorySync{
		cfg:               cfg.normalize(),
		capability:        checker,
		connections:       connections,
		enabledNamespaces: enabledNamespaces,
		projects:          projects,
		repos:             repos,
		sm:                sm,
		log:               log,
	}
}

// Run 单次最多执行 Limit 个动作, 剩余的留给下一次调度
func (s *RepositorySync) Run(ctx context.Context) (int, error) {
	if !s.capability.IndexingEnabled(ctx) {
		return 0, nil
	}
	conn, err := s.connections.FindActive(ctx)
	if err != nil {
		if errors.Is(err, pkgErrors.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}

	remaining := s.cfg.Limit
	var cursor int64
	for remaining > 0 {
		list, err := s.enabledNamespaces.ListAfter(ctx, conn.ID, cursor, s.cfg.BatchSize)
		if err != nil {
			return s.cfg.Limit - remaining, err
		}
		for _, en := range list {
			cursor = en.ID
			actions, complete, err := s.syncNamespace(ctx, conn.ID, en, remaining)
			if err != nil {
				return s.cfg.Limit - remaining, err
			}
			remaining -= actions
			if complete && en.State != constants.EnabledNamespaceStateReady {
				if err := s.enabledNamespaces.UpdateState(ctx, en.ID, constants.EnabledNamespaceStateReady); err != nil {
					return s.cfg.Limit - remaining, err
				}
			}
			if remaining <= 0 {
				break
			}
		}
		if len(list) < s.cfg.BatchSize {
			break
		}
	}

	done := s.cfg.Limit - remaining
	if done > 0 {
		s.log.Info("[RepositorySync] 同步仓库记录",
			zap.Int64("connection_id", conn.ID),
			zap.Int("actions", done))
	}
	return done, nil
}

// syncNamespace complete 表示该命名空间下所有项目都已处理
func (s *RepositorySync) syncNamespace(ctx context.Context, connectionID int64, en *model.EnabledNamespace, remaining int) (int, bool, error) {
	actions := 0
	var cursor int64
	for {
		projects, err := s.projects.ListByRootNamespaceAfter(ctx, en.NamespaceID, cursor, s.cfg.BatchSize)
		if err != nil {
			return actions, false, err
		}
		if len(projects) == 0 {
			return actions, true, nil
		}

		existing, err := s.repos.ListByProjects(ctx, connectionID,
			lo.Map(projects, func(p *model.Project, _ int) int64 { return p.ID }))
		if err != nil {
			return actions, false, err
		}
		byProject := lo.KeyBy(existing, func(r *model.Repository) int64 { return r.ProjectID })

		for _, project := range projects {
			cursor = project.ID
			acted, err := s.syncProject(ctx, connectionID, en, project, byProject[project.ID])
			if err != nil {
				return actions, false, err
			}
			if !acted {
				continue
			}
			actions++
			if actions >= remaining {
				return actions, false, nil
			}
		}
		if len(projects) < s.cfg.BatchSize {
			return actions, true, nil
		}
	}
}

func (s *RepositorySync) syncProject(ctx context.Context, connectionID int64, en *model.EnabledNamespace, project *model.Project, repo *model.Repository) (bool, error) {
	if !project.DuoFeaturesEnabled {
		return false, nil
	}

	switch {
	case repo == nil:
		created := &model.Repository{
			ProjectID:          project.ID,
			ConnectionID:       connectionID,
			EnabledNamespaceID: &en.ID,
			State:              constants.RepositoryStatePending,
		}
		if err := s.repos.Create(ctx, created); err != nil {
			return false, err
		}
		metrics.SweepActionsTotal.WithLabelValues("create_pending_repositories", "created").Inc()
		s.log.Info("[RepositorySync] 创建仓库记录",
			zap.Int64("repository_id", created.ID),
			zap.Int64("project_id", project.ID))
		return true, nil

	case repo.State == constants.RepositoryStateDeleted:
		if err := s.sm.Transition(ctx, repo, constants.RepositoryStatePending); err != nil {
			if errors.Is(err, coderepo.ErrStaleState) {
				return false, nil
			}
			return false, err
		}
		if err := s.repos.Update(ctx, repo.ID, map[string]interface{}{"enabled_namespace_id": en.ID}); err != nil {
			return false, err
		}
		metrics.SweepActionsTotal.WithLabelValues("create_pending_repositories", "reenabled").Inc()
		s.log.Info("[RepositorySync] 仓库重新启用",
			zap.Int64("repository_id", repo.ID),
			zap.Int64("project_id", project.ID))
		return true, nil

	case repo.EnabledNamespaceID == nil && repo.State != constants.RepositoryStatePendingDeletion:
		if err := s.repos.Update(ctx, repo.ID, map[string]interface{}{"enabled_namespace_id": en.ID}); err != nil {
			return false, err
		}
		metrics.SweepActionsTotal.WithLabelValues("create_pending_repositories", "attached").Inc()
		return true, nil
	}
	return false, nil
}
