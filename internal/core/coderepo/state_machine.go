// Package coderepo 代码仓库索引记录的状态机
package coderepo

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"code-indexer/internal/model"
	"code-indexer/internal/pkg/metrics"
	"code-indexer/pkg/constants"
	pkgErrors "code-indexer/pkg/errors"
)

var (
	ErrInvalidTransition = pkgErrors.New(pkgErrors.CodeConflict, "invalid repository state transition")
	// ErrStaleState 数据库中的状态与内存中不一致, 已被其他流程修改
	ErrStaleState = pkgErrors.New(pkgErrors.CodeConflict, "repository state changed concurrently")
)

// transitions from → 允许的 to
var transitions = map[int8][]int8{
	constants.RepositoryStatePending: {
		constants.RepositoryStateEmbeddingIndexingInProgress,
		constants.RepositoryStateFailed,
		constants.RepositoryStatePendingDeletion,
	},
	constants.RepositoryStateEmbeddingIndexingInProgress: {
		constants.RepositoryStateReady,
		constants.RepositoryStatePendingDeletion,
	},
	constants.RepositoryStateReady: {
		constants.RepositoryStateReady,
		constants.RepositoryStateFailed,
		constants.RepositoryStatePendingDeletion,
	},
	constants.RepositoryStateFailed: {
		constants.RepositoryStatePending,
		constants.RepositoryStatePendingDeletion,
	},
	constants.RepositoryStatePendingDeletion: {
		constants.RepositoryStateDeleted,
	},
	constants.RepositoryStateDeleted: {
		constants.RepositoryStatePending,
	},
}

// Allowed from → to 是否合法
func Allowed(from, to int8) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Option 状态变更时附带的字段
type Option func(updates map[string]interface{})

func WithLastError(msg string) Option {
	return func(u map[string]interface{}) { u["last_error"] = msg }
}

func WithDeleteReason(reason string) Option {
	return func(u map[string]interface{}) { u["delete_reason"] = reason }
}

func WithLastCommit(sha string) Option {
	return func(u map[string]interface{}) { u["last_commit"] = sha }
}

// WithInitialCursor 初始索引最后入队的 hash
func WithInitialCursor(hash string) Option {
	return func(u map[string]interface{}) { u["initial_indexing_last_queued_item"] = hash }
}

func WithIncrementalCursor(hash string) Option {
	return func(u map[string]interface{}) { u["incremental_indexing_last_queued_item"] = hash }
}

type StateMachine struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStateMachine(db *gorm.DB, logger *zap.Logger) *StateMachine {
	return &StateMachine{db: db, logger: logger}
}

// Transition 以 repo.State 为前置条件修改状态, 成功后同步更新 repo
func (sm *StateMachine) Transition(ctx context.Context, repo *model.Repository, to int8, opts ...Option) error {
	from := repo.State
	if !Allowed(from, to) {
		return pkgErrors.Wrap(pkgErrors.CodeConflict,
			fmt.Sprintf("%s -> %s", constants.RepositoryStateToString(from), constants.RepositoryStateToString(to)),
			ErrInvalidTransition)
	}

	updates := map[string]interface{}{"state": to}
	switch to {
	case constants.RepositoryStatePending:
		// 重新启用: 之前的 shard 数据已删除或不可信
		updates["last_error"] = nil
		updates["delete_reason"] = nil
		if from == constants.RepositoryStateDeleted {
			updates["last_commit"] = nil
			updates["initial_indexing_last_queued_item"] = nil
			updates["incremental_indexing_last_queued_item"] = nil
		}
	case constants.RepositoryStateReady, constants.RepositoryStateEmbeddingIndexingInProgress:
		updates["last_error"] = nil
	}
	for _, opt := range opts {
		opt(updates)
	}

	// from == to 同样带状态条件, 避免覆盖扫描在索引期间写入的 pending_deletion
	result := sm.db.WithContext(ctx).Model(&model.Repository{}).
		Where("id = ? AND state = ?", repo.ID, from).
		Updates(updates)
	if result.Error != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "更新代码仓库状态失败", result.Error)
	}
	if result.RowsAffected == 0 {
		stale, err := sm.stateChanged(ctx, repo.ID, from)
		if err != nil {
			return err
		}
		if stale {
			return ErrStaleState
		}
	}

	applyUpdates(repo, updates)
	metrics.RepositoryTransitionsTotal.WithLabelValues(
		constants.RepositoryStateToString(from), constants.RepositoryStateToString(to)).Inc()

	if from != to {
		sm.logger.Info(fmt.Sprintf("[Repository SM] Repository:%v Project:%v 状态变更成功: %v -> %v",
			repo.ID, repo.ProjectID, constants.RepositoryStateToString(from), constants.RepositoryStateToString(to)),
			zap.Int64("repository_id", repo.ID), zap.Int64("project_id", repo.ProjectID))
	}
	return nil
}

// stateChanged mysql 在值未变化时 RowsAffected 为 0, 需要回查区分
func (sm *StateMachine) stateChanged(ctx context.Context, id int64, from int8) (bool, error) {
	var count int64
	err := sm.db.WithContext(ctx).Model(&model.Repository{}).
		Where("id = ? AND state = ?", id, from).
		Count(&count).Error
	if err != nil {
		return false, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询代码仓库状态失败", err)
	}
	return count == 0, nil
}

// UpdateFields 不改变状态, 只更新字段
func (sm *StateMachine) UpdateFields(ctx context.Context, repo *model.Repository, opts ...Option) error {
	updates := map[string]interface{}{}
	for _, opt := range opts {
		opt(updates)
	}
	if len(updates) == 0 {
		return nil
	}
	if err := sm.db.WithContext(ctx).Model(&model.Repository{}).Where("id = ?", repo.ID).Updates(updates).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "更新代码仓库记录失败", err)
	}
	applyUpdates(repo, updates)
	return nil
}

func applyUpdates(repo *model.Repository, updates map[string]interface{}) {
	for column, value := range updates {
		switch column {
		case "state":
			repo.State = value.(int8)
		case "last_error":
			repo.LastError = stringPtr(value)
		case "delete_reason":
			repo.DeleteReason = stringPtr(value)
		case "last_commit":
			repo.LastCommit = stringPtr(value)
		case "initial_indexing_last_queued_item":
			repo.InitialIndexingLastQueuedItem = stringPtr(value)
		case "incremental_indexing_last_queued_item":
			repo.IncrementalIndexingLastQueuedItem = stringPtr(value)
		}
	}
}

func stringPtr(v interface{}) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}
