package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"code-indexer/internal/model"
	pkgErrors "code-indexer/pkg/errors"
)

type ConnectionRepository interface {
	Create(ctx context.Context, conn *model.Connection) error
	FindByID(ctx context.Context, id int64) (*model.Connection, error)
	// FindActive 当前生效的 connection, 没有时返回 ErrRecordNotFound
	FindActive(ctx context.Context) (*model.Connection, error)
	List(ctx context.Context) ([]*model.Connection, error)
}

type connectionRepository struct {
	db *gorm.DB
}

func NewConnectionRepository(db *gorm.DB) ConnectionRepository {
	return &connectionRepository{db: db}
}

func (r *connectionRepository) Create(ctx context.Context, conn *model.Connection) error {
	if err := r.db.WithContext(ctx).Create(conn).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建 connection 失败", err)
	}
	return nil
}

func (r *connectionRepository) FindByID(ctx context.Context, id int64) (*model.Connection, error) {
	var conn model.Connection
	if err := r.db.WithContext(ctx).First(&conn, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询 connection 失败", err)
	}
	return &conn, nil
}

func (r *connectionRepository) FindActive(ctx context.Context) (*model.Connection, error) {
	var conn model.Connection
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("id ASC").First(&conn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询活跃 connection 失败", err)
	}
	return &conn, nil
}

func (r *connectionRepository) List(ctx context.Context) ([]*model.Connection, error) {
	var list []*model.Connection
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&list).Error; err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询 connection 列表失败", err)
	}
	return list, nil
}
