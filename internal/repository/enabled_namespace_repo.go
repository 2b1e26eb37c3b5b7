package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"code-indexer/internal/model"
	pkgErrors "code-indexer/pkg/errors"
)

type EnabledNamespaceRepository interface {
	FindByID(ctx context.Context, id int64) (*model.EnabledNamespace, error)
	// CreateIfAbsent 已存在时返回 false, 不报错
	CreateIfAbsent(ctx context.Context, en *model.EnabledNamespace) (bool, error)
	// Delete 删除记录并解除仓库关联, 记录不存在时返回 false
	Delete(ctx context.Context, id int64) (bool, error)
	ListAfter(ctx context.Context, connectionID, cursor int64, size int) ([]*model.EnabledNamespace, error)
	ExistingNamespaceIDs(ctx context.Context, connectionID int64, namespaceIDs []int64) ([]int64, error)
	// ExistingIDs 过滤出仍然存在的记录 id
	ExistingIDs(ctx context.Context, ids []int64) ([]int64, error)
	UpdateState(ctx context.Context, id int64, state int8) error
}

type enabledNamespaceRepository struct {
	db *gorm.DB
}

func NewEnabledNamespaceRepository(db *gorm.DB) EnabledNamespaceRepository {
	return &enabledNamespaceRepository{db: db}
}

func (r *enabledNamespaceRepository) FindByID(ctx context.Context, id int64) (*model.EnabledNamespace, error) {
	var en model.EnabledNamespace
	if err := r.db.WithContext(ctx).First(&en, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询启用命名空间失败", err)
	}
	return &en, nil
}

func (r *enabledNamespaceRepository) CreateIfAbsent(ctx context.Context, en *model.EnabledNamespace) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(en)
	if result.Error != nil {
		return false, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建启用命名空间失败", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *enabledNamespaceRepository) Delete(ctx context.Context, id int64) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Repository{}).
			Where("enabled_namespace_id = ?", id).
			Update("enabled_namespace_id", nil).Error; err != nil {
			return err
		}
		result := tx.Delete(&model.EnabledNamespace{}, id)
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "删除启用命名空间失败", err)
	}
	return deleted, nil
}

func (r *enabledNamespaceRepository) ListAfter(ctx context.Context, connectionID, cursor int64, size int) ([]*model.EnabledNamespace, error) {
	var list []*model.EnabledNamespace
	err := r.db.WithContext(ctx).
		Preload("Namespace").
		Where("connection_id = ? AND id > ?", connectionID, cursor).
		Order("id ASC").Limit(size).
		Find(&list).Error
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "扫描启用命名空间失败", err)
	}
	return list, nil
}

func (r *enabledNamespaceRepository) ExistingNamespaceIDs(ctx context.Context, connectionID int64, namespaceIDs []int64) ([]int64, error) {
	if len(namespaceIDs) == 0 {
		return nil, nil
	}
	var ids []int64
	err := r.db.WithContext(ctx).Model(&model.EnabledNamespace{}).
		Where("connection_id = ? AND namespace_id IN ?", connectionID, namespaceIDs).
		Pluck("namespace_id", &ids).Error
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询启用命名空间失败", err)
	}
	return ids, nil
}

func (r *enabledNamespaceRepository) ExistingIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var existing []int64
	if err := r.db.WithContext(ctx).Model(&model.EnabledNamespace{}).
		Where("id IN ?", ids).Pluck("id", &existing).Error; err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询启用命名空间失败", err)
	}
	return existing, nil
}

func (r *enabledNamespaceRepository) UpdateState(ctx context.Context, id int64, state int8) error {
	if err := r.db.WithContext(ctx).Model(&model.EnabledNamespace{}).
		Where("id = ?", id).Update("state", state).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "更新启用命名空间状态失败", err)
	}
	return nil
}
