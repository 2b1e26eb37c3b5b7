package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// 秒 分 时 日 月 周
const defaultTick = "0 * * * * *"

// Scheduler 按 cron tick 调用 SchedulingService.ExecuteAll, 任务是否真正执行由节流决定
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	service *SchedulingService
	tick    cron.EntryID
}

// cronLogger 把 cron 内部日志转到 zap
type cronLogger struct {
	log *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debugw(msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Errorw(msg, append(kv, "error", err)...)
}

func NewScheduler(service *SchedulingService, logger *zap.Logger) *Scheduler {
	cl := cronLogger{log: logger.Named("cron").Sugar()}
	return &Scheduler{
		// 上一个 tick 未结束时跳过本次
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		service: service,
	}
}

// Start 注册 tick 并启动; cronExpr 为空时每分钟一次
func (s *Scheduler) Start(cronExpr string) error {
	if s.tick != 0 {
		return fmt.Errorf("scheduler already started")
	}
	if cronExpr == "" {
		cronExpr = defaultTick
		s.logger.Warn("未配置 scheduler.cron, 使用默认值", zap.String("cron", cronExpr))
	}

	id, err := s.cron.AddFunc(cronExpr, func() {
		if err := s.service.ExecuteAll(context.Background()); err != nil {
			s.logger.Error("调度 tick 执行失败", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("注册调度 tick %q 失败: %w", cronExpr, err)
	}
	s.tick = id
	s.cron.Start()

	s.logger.Info("定时任务调度器已启动",
		zap.String("cron", cronExpr),
		zap.Strings("tasks", s.service.TaskNames()))
	return nil
}

// Stop 等待进行中的 tick 结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Trigger 手动触发单个任务, 同样受节流限制
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.logger.Info("手动触发调度任务", zap.String("task", name))
	return s.service.Execute(ctx, name)
}
