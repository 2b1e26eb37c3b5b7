package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"code-indexer/internal/adapter/messaging"
	"code-indexer/internal/core/events"
	"code-indexer/internal/pkg/lock"
	"code-indexer/internal/pkg/metrics"
	pkgErrors "code-indexer/pkg/errors"
)

// Task 调度任务; 先发布 Dispatch 事件再执行 Execute, 两者都为空时执行报 NotImplementedError
type Task struct {
	Name string
	// Period 为 0 表示不限频, 只对并发调用去重
	Period   time.Duration
	Dispatch events.Type
	Execute  func(ctx context.Context) error
	If       func(ctx context.Context) bool
}

// SchedulingService 静态任务表 + 周期节流
type SchedulingService struct {
	tasks     map[string]Task
	order     []string
	throttle  *lock.Throttle
	publisher messaging.Publisher
	log       *zap.Logger
}

func NewSchedulingService(tasks []Task, throttle *lock.Throttle, publisher messaging.Publisher, log *zap.Logger) *SchedulingService {
	s := &SchedulingService{
		tasks:     make(map[string]Task, len(tasks)),
		throttle:  throttle,
		publisher: publisher,
		log:       log,
	}
	for _, task := range tasks {
		if _, dup := s.tasks[task.Name]; !dup {
			s.order = append(s.order, task.Name)
		}
		s.tasks[task.Name] = task
	}
	return s
}

// TaskNames 按注册顺序
func (s *SchedulingService) TaskNames() []string {
	return append([]string(nil), s.order...)
}

// CachePeriod 任务的节流周期, 未知任务或没有周期时返回 nil
func (s *SchedulingService) CachePeriod(name string) *time.Duration {
	task, ok := s.tasks[name]
	if !ok || task.Period <= 0 {
		return nil
	}
	period := task.Period
	return &period
}

func throttleKey(task Task) string {
	period := "none"
	if task.Period > 0 {
		period = task.Period.String()
	}
	return fmt.Sprintf("scheduling_service:%s:%s", task.Name, period)
}

// Execute 周期内最多执行一次, 被节流时直接返回 nil
func (s *SchedulingService) Execute(ctx context.Context, name string) error {
	task, ok := s.tasks[name]
	if !ok {
		return &pkgErrors.ArgumentError{Message: fmt.Sprintf("unknown task: %s", name)}
	}

	ran, err := s.throttle.Run(ctx, throttleKey(task), task.Period, func(ctx context.Context) error {
		return s.run(ctx, task)
	})
	if err != nil {
		s.log.Error(fmt.Sprintf("[Scheduler] 任务 %s 执行失败", name), zap.Error(err))
		return err
	}
	if !ran {
		s.log.Debug(fmt.Sprintf("[Scheduler] 任务 %s 在周期内已执行, 跳过", name))
		return nil
	}
	metrics.TasksExecutedTotal.WithLabelValues(name).Inc()
	return nil
}

func (s *SchedulingService) run(ctx context.Context, task Task) error {
	if task.If != nil && !task.If(ctx) {
		return nil
	}
	if task.Dispatch == "" && task.Execute == nil {
		return &pkgErrors.NotImplementedError{Message: fmt.Sprintf("task %s has neither dispatch nor execute", task.Name)}
	}
	if task.Dispatch != "" {
		s.log.Info(fmt.Sprintf("[Scheduler] 任务 %s 发布事件", task.Name), zap.String("event", string(task.Dispatch)))
		if err := s.publisher.Publish(ctx, events.New(task.Dispatch)); err != nil {
			return err
		}
	}
	if task.Execute != nil {
		return task.Execute(ctx)
	}
	return nil
}

// ExecuteAll 依次执行所有任务, 单个任务失败不影响其他任务
func (s *SchedulingService) ExecuteAll(ctx context.Context) error {
	var errs []error
	for _, name := range s.order {
		if err := s.Execute(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
