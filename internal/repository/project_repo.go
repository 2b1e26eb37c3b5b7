package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"code-indexer/internal/model"
	pkgErrors "code-indexer/pkg/errors"
)

type ProjectRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Project, error)
	FindByIDs(ctx context.Context, ids []int64) ([]*model.Project, error)
	// ListByRootNamespaceAfter 按 id 升序扫描某个顶层命名空间下的项目
	ListByRootNamespaceAfter(ctx context.Context, rootNamespaceID, cursor int64, size int) ([]*model.Project, error)
}

type NamespaceRepository interface {
	FindByID(ctx context.Context, id int64) (*model.Namespace, error)
	// ListTopLevelAfter 按 id 升序扫描顶层命名空间
	ListTopLevelAfter(ctx context.Context, cursor int64, size int) ([]*model.Namespace, error)
}

type projectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

func (r *projectRepository) FindByID(ctx context.Context, id int64) (*model.Project, error) {
	var project model.Project
	if err := r.db.WithContext(ctx).First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询项目失败", err)
	}
	return &project, nil
}

func (r *projectRepository) FindByIDs(ctx context.Context, ids []int64) ([]*model.Project, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var projects []*model.Project
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&projects).Error; err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询项目失败", err)
	}
	return projects, nil
}

func (r *projectRepository) ListByRootNamespaceAfter(ctx context.Context, rootNamespaceID, cursor int64, size int) ([]*model.Project, error) {
	var projects []*model.Project
	err := r.db.WithContext(ctx).
		Where("root_namespace_id = ? AND id > ?", rootNamespaceID, cursor).
		Order("id ASC").Limit(size).
		Find(&projects).Error
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "扫描项目失败", err)
	}
	return projects, nil
}

type namespaceRepository struct {
	db *gorm.DB
}

func NewNamespaceRepository(db *gorm.DB) NamespaceRepository {
	return &namespaceRepository{db: db}
}

func (r *namespaceRepository) FindByID(ctx context.Context, id int64) (*model.Namespace, error) {
	var ns model.Namespace
	if err := r.db.WithContext(ctx).First(&ns, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询命名空间失败", err)
	}
	return &ns, nil
}

func (r *namespaceRepository) ListTopLevelAfter(ctx context.Context, cursor int64, size int) ([]*model.Namespace, error) {
	var list []*model.Namespace
	err := r.db.WithContext(ctx).
		Where("parent_id IS NULL AND id > ?", cursor).
		Order("id ASC").Limit(size).
		Find(&list).Error
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "扫描命名空间失败", err)
	}
	return list, nil
}
