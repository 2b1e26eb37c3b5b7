// Package capability 代码索引总开关
package capability

import (
	"context"
	"errors"
	"strconv"

	"go.uber.org/zap"

	"code-indexer/internal/repository"
	"code-indexer/pkg/constants"
	pkgErrors "code-indexer/pkg/errors"
)

// Checker 每个入口调用一次
type Checker interface {
	IndexingEnabled(ctx context.Context) bool
}

// Static 固定值, 用于测试或没有数据库的场景
type Static bool

func (s Static) IndexingEnabled(context.Context) bool {
	return bool(s)
}

// SettingsChecker 读取 config_items 中的全局开关, 未设置时使用配置文件默认值
type SettingsChecker struct {
	configs  *repository.ConfigRepository
	fallback bool
	log      *zap.Logger
}

func NewSettingsChecker(configs *repository.ConfigRepository, fallback bool, log *zap.Logger) *SettingsChecker {
	return &SettingsChecker{configs: configs, fallback: fallback, log: log}
}

func (c *SettingsChecker) IndexingEnabled(ctx context.Context) bool {
	value, err := c.configs.GetConfig(ctx, 0, constants.SettingIndexingEnabled)
	if err != nil {
		if errors.Is(err, pkgErrors.ErrRecordNotFound) {
			return c.fallback
		}
		// 读不到开关时按关闭处理
		c.log.Warn("读取索引开关失败", zap.Error(err))
		return false
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		c.log.Warn("索引开关取值非法", zap.String("value", value))
		return false
	}
	return enabled
}
