package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"code-indexer/internal/api/handler"
	"code-indexer/internal/api/middleware"
	"code-indexer/internal/pkg/config"
	"code-indexer/internal/pkg/logger"
	"code-indexer/internal/scheduler"
	"code-indexer/internal/service"
	"code-indexer/pkg/utils"
)

// Services 路由依赖
type Services struct {
	Repositories service.RepositoryService
	Settings     service.SettingsService
	Scheduling   *scheduler.SchedulingService
}

// Setup 设置路由
func Setup(cfg *config.Config, services Services) *gin.Engine {
	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := utils.RegisterValidations(); err != nil {
		logger.Error("注册自定义校验失败", zap.Error(err))
	}

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	repositoryHandler := handler.NewRepositoryHandler(services.Repositories)
	settingsHandler := handler.NewSettingsHandler(services.Settings)
	taskHandler := handler.NewTaskHandler(services.Scheduling)

	// API v1
	v1 := r.Group("/api/v1")
	authed := v1.Group("")
	authed.Use(middleware.AuthMiddleware(cfg.Auth.JWT))
	{
		groupRepositories := authed.Group("/repositories")
		{
			groupRepositories.GET("", repositoryHandler.List)                 // 列表查询
			groupRepositories.GET("/:id", repositoryHandler.GetByID)          // 获取详情
			groupRepositories.POST("/:id/reset", repositoryHandler.Reset)     // failed/deleted → pending
			groupRepositories.POST("/:id/ready", repositoryHandler.MarkReady) // embedding 已确认
			groupRepositories.POST("/:id/reindex", repositoryHandler.Reindex)
		}

		groupSettings := authed.Group("/settings")
		{
			groupSettings.GET("/indexing", settingsHandler.GetIndexing)
			groupSettings.PUT("/indexing", settingsHandler.UpdateIndexing)
		}

		groupTasks := authed.Group("/tasks")
		{
			groupTasks.GET("", taskHandler.List)
			groupTasks.POST("/:name/execute", taskHandler.Execute)
		}
	}

	return r
}
