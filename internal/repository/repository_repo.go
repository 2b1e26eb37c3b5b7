package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"code-indexer/internal/model"
	"code-indexer/pkg/constants"
	pkgErrors "code-indexer/pkg/errors"
)

// RepositoryRepository 代码仓库索引记录
type RepositoryRepository interface {
	Create(ctx context.Context, repo *model.Repository) error
	FindByID(ctx context.Context, id int64, opts ...QueryOption) (*model.Repository, error)
	FindByProjectAndConnection(ctx context.Context, projectID, connectionID int64) (*model.Repository, error)
	ListByProjects(ctx context.Context, connectionID int64, projectIDs []int64) ([]*model.Repository, error)
	// List 管理接口分页查询, filter 字段为空表示不过滤
	List(ctx context.Context, filter RepositoryFilter, offset, limit int) ([]*model.Repository, int64, error)
	Update(ctx context.Context, id int64, updates map[string]interface{}) error

	// ListIDsByState 按 id 升序返回指定 connection 上处于 state 的仓库 id
	ListIDsByState(ctx context.Context, connectionID int64, state int8, limit int) ([]int64, error)
	// ListPartitions 返回仓库表所有物理分区(connection_id), 升序
	ListPartitions(ctx context.Context) ([]int64, error)
	// ListActiveAfter 返回分区内 id > cursor 且尚未进入删除流程的仓库
	ListActiveAfter(ctx context.Context, partition, cursor int64, size int) ([]*model.Repository, error)
}

type repositoryRepository struct {
	db *gorm.DB
}

func NewRepositoryRepository(db *gorm.DB) RepositoryRepository {
	return &repositoryRepository{db: db}
}

func (r *repositoryRepository) Create(ctx context.Context, repo *model.Repository) error {
	if err := r.db.WithContext(ctx).Create(repo).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建代码仓库记录失败", err)
	}
	return nil
}

func (r *repositoryRepository) FindByID(ctx context.Context, id int64, opts ...QueryOption) (*model.Repository, error) {
	var repo model.Repository
	err := applyOptions(r.db.WithContext(ctx), opts).First(&repo, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询代码仓库记录失败", err)
	}
	return &repo, nil
}

func (r *repositoryRepository) FindByProjectAndConnection(ctx context.Context, projectID, connectionID int64) (*model.Repository, error) {
	var repo model.Repository
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND connection_id = ?", projectID, connectionID).
		First(&repo).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询代码仓库记录失败", err)
	}
	return &repo, nil
}

func (r *repositoryRepository) ListByProjects(ctx context.Context, connectionID int64, projectIDs []int64) ([]*model.Repository, error) {
	if len(projectIDs) == 0 {
		return nil, nil
	}
	var repos []*model.Repository
	if err := r.db.WithContext(ctx).
		Where("connection_id = ? AND project_id IN ?", connectionID, projectIDs).
		Find(&repos).Error; err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询代码仓库记录失败", err)
	}
	return repos, nil
}

// RepositoryFilter 分页查询条件
type RepositoryFilter struct {
	ConnectionID *int64
	ProjectID    *int64
	State        *int8
}

func (r *repositoryRepository) List(ctx context.Context, filter RepositoryFilter, offset, limit int) ([]*model.Repository, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Repository{})
	if filter.ConnectionID != nil {
		query = query.Where("connection_id = ?", *filter.ConnectionID)
	}
	if filter.ProjectID != nil {
		query = query.Where("project_id = ?", *filter.ProjectID)
	}
	if filter.State != nil {
		query = query.Where("state = ?", *filter.State)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询代码仓库总数失败", err)
	}

	var repos []*model.Repository
	if err := query.Order("id ASC").Offset(offset).Limit(limit).Find(&repos).Error; err != nil {
		return nil, 0, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询代码仓库列表失败", err)
	}
	return repos, total, nil
}

func (r *repositoryRepository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	if err := r.db.WithContext(ctx).Model(&model.Repository{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "更新代码仓库记录失败", err)
	}
	return nil
}

func (r *repositoryRepository) ListIDsByState(ctx context.Context, connectionID int64, state int8, limit int) ([]int64, error) {
	var ids []int64
	query := r.db.WithContext(ctx).Model(&model.Repository{}).
		Where("connection_id = ? AND state = ?", connectionID, state).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询待处理仓库失败", err)
	}
	return ids, nil
}

func (r *repositoryRepository) ListPartitions(ctx context.Context) ([]int64, error) {
	var partitions []int64
	if err := r.db.WithContext(ctx).Model(&model.Repository{}).
		Distinct("connection_id").Order("connection_id ASC").
		Pluck("connection_id", &partitions).Error; err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询仓库分区失败", err)
	}
	return partitions, nil
}

func (r *repositoryRepository) ListActiveAfter(ctx context.Context, partition, cursor int64, size int) ([]*model.Repository, error) {
	var repos []*model.Repository
	err := r.db.WithContext(ctx).
		Where("connection_id = ? AND id > ?", partition, cursor).
		Where("state NOT IN ?", []int8{constants.RepositoryStatePendingDeletion, constants.RepositoryStateDeleted}).
		Order("id ASC").Limit(size).
		Find(&repos).Error
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "扫描仓库失败", err)
	}
	return repos, nil
}
