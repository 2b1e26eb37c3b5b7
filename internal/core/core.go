package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"code-indexer/internal/adapter/messaging"
	"code-indexer/internal/core/events"
	"code-indexer/internal/core/jobs"
)

// SweepHandler 由 eligibility.Worker 实现
type SweepHandler interface {
	EventType() events.Type
	Handle(ctx context.Context, ev events.Event) error
}

// Transport 事件总线 + 任务队列
type Transport interface {
	messaging.Bus
	messaging.JobQueue
}

// CoreEngine 把扫描 worker 和仓库任务 worker 挂到消息总线上
type CoreEngine struct {
	transport      Transport
	sweeps         []SweepHandler
	indexWorker    *jobs.RepositoryIndexWorker
	deletionWorker *jobs.RepositoryDeletionWorker
	logger         *zap.Logger
	running        bool
}

// NewCoreEngine 创建核心引擎
func NewCoreEngine(
	transport Transport,
	indexWorker *jobs.RepositoryIndexWorker,
	deletionWorker *jobs.RepositoryDeletionWorker,
	sweeps []SweepHandler,
	logger *zap.Logger,
) *CoreEngine {
	return &CoreEngine{
		transport:      transport,
		sweeps:         sweeps,
		indexWorker:    indexWorker,
		deletionWorker: deletionWorker,
		logger:         logger,
	}
}

// Start 订阅扫描事件, 消费索引/删除任务
func (e *CoreEngine) Start() error {
	if e.running {
		e.logger.Warn("核心引擎已在运行中")
		return nil
	}

	for _, sweep := range e.sweeps {
		if err := e.transport.Subscribe(sweep.EventType(), sweep.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", sweep.EventType(), err)
		}
	}
	if err := e.transport.Consume(messaging.QueueRepositoryIndex, e.indexWorker.Perform); err != nil {
		return fmt.Errorf("consume %s: %w", messaging.QueueRepositoryIndex, err)
	}
	if err := e.transport.Consume(messaging.QueueRepositoryDeletion, e.deletionWorker.Perform); err != nil {
		return fmt.Errorf("consume %s: %w", messaging.QueueRepositoryDeletion, err)
	}

	e.running = true
	e.logger.Info("CoreEngine started", zap.Int("sweeps", len(e.sweeps)))
	return nil
}

// Stop 停止核心引擎, 底层订阅由 transport 的 Close 负责
func (e *CoreEngine) Stop() {
	if !e.running {
		return
	}

	e.logger.Info("正在停止核心引擎...")
	if closer, ok := e.transport.(interface{ Close() }); ok {
		closer.Close()
	}
	e.running = false
	e.logger.Info("核心引擎已停止")
}
