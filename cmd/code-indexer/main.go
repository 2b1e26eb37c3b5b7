package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"code-indexer/internal/adapter/messaging"
	"code-indexer/internal/adapter/notification"
	"code-indexer/internal/adapter/process"
	"code-indexer/internal/adapter/tracker"
	"code-indexer/internal/api/router"
	"code-indexer/internal/core"
	"code-indexer/internal/core/capability"
	"code-indexer/internal/core/coderepo"
	"code-indexer/internal/core/eligibility"
	"code-indexer/internal/core/events"
	"code-indexer/internal/core/indexer"
	"code-indexer/internal/core/indexing"
	"code-indexer/internal/core/jobs"
	"code-indexer/internal/pkg/config"
	"code-indexer/internal/pkg/database"
	"code-indexer/internal/pkg/git"
	"code-indexer/internal/pkg/jwt"
	"code-indexer/internal/pkg/lock"
	"code-indexer/internal/pkg/logger"
	"code-indexer/internal/repository"
	"code-indexer/internal/scheduler"
	"code-indexer/internal/service"
)

var (
	configFile = flag.String("config", "", "配置文件路径 (例如: -config=configs/config.yaml)")
	version    = flag.Bool("version", false, "显示版本信息")
	issueToken = flag.String("issue-token", "", "为指定调用方签发管理接口 AccessToken 后退出")
)

const (
	appVersion = "1.0.0"
	appName    = "code-indexer"
)

func main() {
	// 解析命令行参数
	flag.Parse()

	// 显示版本信息
	if *version {
		fmt.Printf("%s version %s\n", appName, appVersion)
		os.Exit(0)
	}

	// init config logger
	var cfg *config.Config
	{
		// 优先级: 命令行参数 > 环境变量 > 默认路径
		configPath := getConfigPath()

		c, err := config.Load(configPath)
		if err != nil {
			fmt.Printf("加载配置失败: %v\n", err)
			fmt.Println("\n使用方式:")
			fmt.Println("  1. 命令行参数指定:")
			fmt.Println("     ./code-indexer -config=configs/config.yaml")
			fmt.Println("  2. 环境变量指定:")
			fmt.Println("     export CONFIG_FILE=configs/config.yaml")
			fmt.Println("     ./code-indexer")
			os.Exit(1)
		}
		cfg = c

		if *issueToken != "" {
			token, err := jwt.GenerateAccessToken(cfg.Auth.JWT, *issueToken)
			if err != nil {
				fmt.Printf("签发Token失败: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(token)
			os.Exit(0)
		}

		// 初始化日志
		if err := logger.Init(&cfg.Log); err != nil {
			fmt.Printf("初始化日志失败: %v\n", err)
			os.Exit(1)
		}
		logger.Info(fmt.Sprintf("Load config file: %s of %s", configPath, getConfigSource()))

		defer func() {
			_ = logger.Close()
		}()
	}

	logger.Info(fmt.Sprintf("服务 %s 启动中...", appName), zap.String("version", appVersion))

	// 初始化数据库
	if err := database.Init(&cfg.Database); err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	defer func() {
		_ = database.Close()
	}()
	db := database.GetDB()
	logger.Info(fmt.Sprintf("数据库连接成功 %s:%v", cfg.Database.Host, cfg.Database.Port), zap.String("database", cfg.Database.Database))

	// NATS: 事件总线, 任务队列, ref 跟踪
	nc, err := nats.Connect(cfg.Nats.URL,
		nats.Name(appName),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS 连接断开", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS 重新连接", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		logger.Fatal("连接 NATS 失败", zap.Error(err))
	}
	defer nc.Close()

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	log := logger.Log
	pool := messaging.NewPool(rootCtx, cfg.Worker.Concurrency, log)
	eventPool := messaging.NewPool(rootCtx, cfg.Worker.EventConcurrency, log)
	bus := messaging.NewNatsBus(nc, cfg.Nats.SubjectPrefix, cfg.Nats.QueueGroup, pool, log).
		WithEventPool(eventPool)
	refTracker := tracker.NewNatsTracker(nc, cfg.Nats.SubjectPrefix, cfg.Indexer.PartitionCount)

	// 存储
	connections := repository.NewConnectionRepository(db)
	namespaces := repository.NewNamespaceRepository(db)
	projects := repository.NewProjectRepository(db)
	enabledNamespaces := repository.NewEnabledNamespaceRepository(db)
	repos := repository.NewRepositoryRepository(db)
	configs := repository.NewConfigRepository(db, cfg.Crypto.AESKey)
	locker := lock.NewDBLocker(db)
	checker := capability.NewSettingsChecker(configs, cfg.Indexing.Enabled, log)
	sm := coderepo.NewStateMachine(db, log)

	// 外部索引进程
	indexerCfg := indexer.Config{
		BinaryPath:     cfg.Indexer.BinaryPath,
		Timeout:        config.ParseDuration(cfg.Indexer.Timeout, 30*time.Minute),
		PartitionCount: cfg.Indexer.PartitionCount,
		AESKey:         cfg.Crypto.AESKey,
		Storages:       cfg.Git.Storages,
		GitalyAddress:  cfg.Git.Address,
		GitalyToken:    cfg.Git.Token,
	}
	runner := process.NewExecRunner()
	idx := indexer.NewIndexer(indexerCfg, runner, git.NewGoGitOracle(), connections, projects, repos, log)
	deleter := indexer.NewDeleter(indexerCfg, runner, connections, log)

	// 仓库任务
	leaseCfg := jobs.LeaseConfig{
		TTL:             config.ParseDuration(cfg.Worker.LeaseTTL, time.Hour),
		Retries:         cfg.Worker.LeaseRetries,
		Backoff:         config.ParseDuration(cfg.Worker.LeaseBackoff, time.Second),
		RescheduleDelay: config.ParseDuration(cfg.Worker.RescheduleDelay, time.Minute),
	}
	notifier := notification.NewMultiNotifier(log,
		notification.NewLogNotifier(log),
		notification.NewLarkNotifier(cfg.Notify.LarkWebhookURL, cfg.Notify.Enabled, log),
	)
	initial := indexing.NewInitialIndexingService(idx, refTracker, sm, log)
	initial.WithNotifier(notifier)
	incremental := indexing.NewIncrementalIndexingService(idx, refTracker, sm, log)
	incremental.WithNotifier(notifier)
	bulk := indexing.NewBulkIndexingService(idx, refTracker, sm, log)
	bulk.WithNotifier(notifier)

	indexWorker := jobs.NewRepositoryIndexWorker(leaseCfg, checker, locker, repos, bus, initial, incremental, log)
	deletionWorker := jobs.NewRepositoryDeletionWorker(leaseCfg, checker, locker, repos, bus, deleter, sm, log).
		WithNotifier(notifier)
	bulkRunner := jobs.NewBulkIndexRunner(leaseCfg, checker, locker, repos, bulk, log)
	dispatcher := jobs.NewRepositoryIndexService(connections, repos, bus, log)

	// 资格扫描
	sweepCfg := eligibility.SweepConfig{Limit: cfg.Sweep.Limit, BatchSize: cfg.Sweep.BatchSize}
	rules := eligibility.Rules{
		Mode:                       cfg.Eligibility.Mode,
		InstanceLicensed:           cfg.Eligibility.InstanceLicensed,
		InstanceDuoFeaturesEnabled: cfg.Eligibility.InstanceDuoFeaturesEnabled,
	}
	sweeps := []core.SweepHandler{
		eligibility.NewWorker(events.CreateEnabledNamespace,
			eligibility.NewCreateEnabledNamespaceSource(rules, connections, namespaces, enabledNamespaces, log),
			sweepCfg, checker, bus, log),
		eligibility.NewWorker(events.ProcessInvalidEnabledNamespace,
			eligibility.NewInvalidEnabledNamespaceSource(rules, connections, enabledNamespaces, log),
			sweepCfg, checker, bus, log),
		eligibility.NewWorker(events.MarkRepositoryAsPendingDeletion,
			eligibility.NewPendingDeletionSource(repos, enabledNamespaces, projects, sm, cfg.Sweep.InactivityMonths, log),
			sweepCfg, checker, bus, log),
	}
	repoSync := eligibility.NewRepositorySync(sweepCfg, checker, connections, enabledNamespaces, projects, repos, sm, log)

	// 初始化Core引擎
	coreEngine := core.NewCoreEngine(bus, indexWorker, deletionWorker, sweeps, log)
	if err := coreEngine.Start(); err != nil {
		logger.Fatal("Core引擎启动失败", zap.Error(err))
	}
	logger.Info("Core引擎启动成功")

	// 初始化并启动定时任务调度器
	scheduling := scheduler.NewSchedulingService(scheduler.DefaultTasks(scheduler.TaskDependencies{
		Capability: checker,
		Sync:       repoSync,
		Dispatcher: dispatcher,
		Log:        log,
	}), lock.NewThrottle(locker), bus, log)
	taskScheduler := scheduler.NewScheduler(scheduling, log)
	if err := taskScheduler.Start(cfg.Scheduler.Cron); err != nil {
		logger.Warn("定时任务调度器启动失败", zap.Error(err))
	}

	// 设置路由
	r := router.Setup(cfg, router.Services{
		Repositories: service.NewRepositoryService(repos, sm, bulkRunner, log),
		Settings:     service.NewSettingsService(configs, checker, log),
		Scheduling:   scheduling,
	})

	// 创建HTTP服务器
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// 启动服务器
	go func() {
		logger.Info(fmt.Sprintf("%s 服务启动成功", cfg.Server.Name),
			zap.String("address", addr),
			zap.String("mode", cfg.Server.Mode),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务器启动失败", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("服务正在关闭...")

	// 关闭定时任务调度器
	taskScheduler.Stop()
	logger.Info("定时任务调度器已停止")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	// 停止接收新消息, 取消进行中的任务并等待退出
	coreEngine.Stop()
	cancelRoot()
	pool.Wait()
	eventPool.Wait()
	logger.Info("Core引擎已停止")

	logger.Info("服务已关闭")
}

// getConfigPath 获取配置文件路径
// 优先级: 命令行参数 > 环境变量 > 默认路径
func getConfigPath() string {
	// 1. 命令行参数
	if *configFile != "" {
		return *configFile
	}

	// 2. 环境变量
	if envConfig := os.Getenv("CONFIG_FILE"); envConfig != "" {
		return envConfig
	}

	// 3. 默认路径
	return "configs/config.yaml"
}

// getConfigSource 获取配置来源说明
func getConfigSource() string {
	if *configFile != "" {
		return "命令行参数"
	}
	if os.Getenv("CONFIG_FILE") != "" {
		return "环境变量"
	}
	return "默认配置"
}
