package service

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"code-indexer/internal/core/capability"
	"code-indexer/internal/model"
	"code-indexer/internal/repository"
	"code-indexer/pkg/constants"
)

// SettingsService 运行时开关
type SettingsService interface {
	IndexingEnabled(ctx context.Context) bool
	SetIndexingEnabled(ctx context.Context, enabled bool) error
}

type settingsService struct {
	configs *repository.ConfigRepository
	checker capability.Checker
	logger  *zap.Logger
}

func NewSettingsService(configs *repository.ConfigRepository, checker capability.Checker, logger *zap.Logger) SettingsService {
	return &settingsService{configs: configs, checker: checker, logger: logger}
}

func (s *settingsService) IndexingEnabled(ctx context.Context) bool {
	return s.checker.IndexingEnabled(ctx)
}

func (s *settingsService) SetIndexingEnabled(ctx context.Context, enabled bool) error {
	if err := s.configs.SetConfig(ctx, model.ScopeGlobal, nil, constants.SettingIndexingEnabled,
		strconv.FormatBool(enabled), model.TypeBool); err != nil {
		return err
	}
	s.logger.Info("代码索引开关已更新", zap.Bool("enabled", enabled))
	return nil
}
