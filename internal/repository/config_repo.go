package repository

import (
	"context"
	"database/sql"
	"errors"

	"gorm.io/gorm"

	"code-indexer/internal/model"
	pkgErrors "code-indexer/pkg/errors"
	"code-indexer/pkg/utils"
)

// ConfigRepository 运行时配置, 项目级优先, 不存在时回落到全局
type ConfigRepository struct {
	db     *gorm.DB
	aesKey string
}

func NewConfigRepository(db *gorm.DB, aesKey string) *ConfigRepository {
	return &ConfigRepository{
		db:     db,
		aesKey: aesKey,
	}
}

// GetConfig 获取配置值, projectID 为 0 时只查全局
func (r *ConfigRepository) GetConfig(ctx context.Context, projectID int64, key string) (string, error) {
	var item model.ConfigItem

	if projectID > 0 {
		err := r.db.WithContext(ctx).
			Where("scope = ? AND project_id = ? AND config_key = ?", model.ScopeProject, projectID, key).
			First(&item).Error
		if err == nil {
			return r.resolveConfigValue(item)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询项目级配置失败", err)
		}
	}

	err := r.db.WithContext(ctx).
		Where("scope = ? AND config_key = ?", model.ScopeGlobal, key).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", pkgErrors.ErrRecordNotFound
		}
		return "", pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询全局配置失败", err)
	}
	return r.resolveConfigValue(item)
}

func (r *ConfigRepository) resolveConfigValue(item model.ConfigItem) (string, error) {
	if item.ValueType != model.TypeSecret {
		return item.Value, nil
	}
	plain, err := utils.DecryptSecret(r.aesKey, item.Value)
	if err != nil {
		return "", pkgErrors.Wrap(pkgErrors.CodeInternalError, "解密配置失败", err)
	}
	return plain, nil
}

// SetConfig 写入配置, 已存在则更新; secret 类型加密后存储
func (r *ConfigRepository) SetConfig(ctx context.Context, scope model.Scope, projectID *int64, key, value string, valueType model.ValueType) error {
	var item model.ConfigItem

	query := r.db.WithContext(ctx).Where("scope = ? AND config_key = ?", scope, key)
	if scope == model.ScopeProject {
		if projectID == nil {
			return pkgErrors.New(pkgErrors.CodeBadRequest, "项目级配置必须指定 project_id")
		}
		query = query.Where("project_id = ?", *projectID)
	} else {
		query = query.Where("project_id IS NULL")
	}

	err := query.First(&item).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询配置失败", err)
	}
	exists := err == nil

	if valueType == model.TypeSecret {
		value, err = utils.EncryptSecret(r.aesKey, value)
		if err != nil {
			return pkgErrors.Wrap(pkgErrors.CodeInternalError, "加密配置失败", err)
		}
	}

	item.Scope = scope
	if projectID != nil {
		item.ProjectID = sql.NullInt64{Int64: *projectID, Valid: true}
	} else {
		item.ProjectID = sql.NullInt64{}
	}
	item.Key = key
	item.Value = value
	item.ValueType = valueType

	if !exists {
		if err := r.db.WithContext(ctx).Create(&item).Error; err != nil {
			return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建配置失败", err)
		}
		return nil
	}
	if err := r.db.WithContext(ctx).Save(&item).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "更新配置失败", err)
	}
	return nil
}
