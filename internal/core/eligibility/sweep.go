package eligibility

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"code-indexer/internal/adapter/messaging"
	"code-indexer/internal/core/capability"
	"code-indexer/internal/core/events"
	"code-indexer/internal/pkg/metrics"
)

// SweepConfig 每次事件处理的动作上限与分页大小
type SweepConfig struct {
	Limit     int
	BatchSize int
}

func (c SweepConfig) normalize() SweepConfig {
	if c.Limit <= 0 {
		c.Limit = 1000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	return c
}

// Batch 单页扫描结果
type Batch struct {
	// Actions 本页实际执行的修正动作数
	Actions int
	// LastID 本页最后一条被检查的记录 id, 没有记录时为 0
	LastID int64
	// Exhausted 分区已扫描完
	Exhausted bool
}

// Source 一种扫描的数据来源与修正动作
type Source interface {
	Name() string
	// Partitions 需要依次扫描的分区, 为空表示本次什么都不做
	Partitions(ctx context.Context) ([]int64, error)
	// ScanBatch 从 cursor 之后取最多 size 条记录逐条检查, 动作数达到 remaining 时立即停止
	ScanBatch(ctx context.Context, partition, cursor int64, size, remaining int) (Batch, error)
}

// PartitionLocator 多分区的来源实现, 续扫时从游标所在分区继续, 之前的分区跳过, 之后的分区从头扫
type PartitionLocator interface {
	PartitionOf(ctx context.Context, id int64) (partition int64, found bool, err error)
}

type partitionStart struct {
	partition int64
	cursor    int64
}

// Worker 通用扫描流程: 游标 → 分页 → LIMIT → 续扫事件
type Worker struct {
	eventType  events.Type
	source     Source
	cfg        SweepConfig
	capability capability.Checker
	publisher  messaging.Publisher
	log        *zap.Logger
}

func NewWorker(eventType events.Type, source Source, cfg SweepConfig, checker capability.Checker, publisher messaging.Publisher, log *zap.Logger) *Worker {
	return &Worker{
		eventType:  eventType,
		source:     source,
		cfg:        cfg.normalize(),
		capability: checker,
		publisher:  publisher,
		log:        log.With(zap.String("worker", source.Name())),
	}
}

func (w *Worker) EventType() events.Type {
	return w.eventType
}

// Handle 处理一个扫描事件, 达到 LIMIT 时发布同类型续扫事件
func (w *Worker) Handle(ctx context.Context, ev events.Event) error {
	if !w.capability.IndexingEnabled(ctx) {
		return nil
	}

	start := ev.Cursor()
	plan, err := w.plan(ctx, start)
	if err != nil {
		return err
	}

	remaining := w.cfg.Limit
	lastExamined := start
	total := 0

	for _, p := range plan {
		partition, cursor := p.partition, p.cursor
		for {
			prev := cursor
			batch, err := w.source.ScanBatch(ctx, partition, cursor, w.cfg.BatchSize, remaining)
			if err != nil {
				return err
			}
			total += batch.Actions
			remaining -= batch.Actions
			if batch.LastID > cursor {
				cursor = batch.LastID
				lastExamined = cursor
			}

			if remaining <= 0 {
				w.log.Info(fmt.Sprintf("[Sweep] 达到上限 %d, 发布续扫事件", w.cfg.Limit),
					zap.String("event", string(w.eventType)),
					zap.Int64("partition", partition),
					zap.Int64("last_processed_id", lastExamined))
				metrics.SweepContinuationsTotal.WithLabelValues(w.source.Name()).Inc()
				return w.publisher.Publish(ctx, events.Continuation(w.eventType, lastExamined))
			}
			// 游标未前进时不再翻页
			if batch.Exhausted || cursor == prev {
				break
			}
		}
	}

	if total > 0 {
		w.log.Info("[Sweep] 扫描完成",
			zap.String("event", string(w.eventType)),
			zap.Int("actions", total))
	}
	return nil
}

func (w *Worker) plan(ctx context.Context, start int64) ([]partitionStart, error) {
	partitions, err := w.source.Partitions(ctx)
	if err != nil {
		return nil, err
	}

	plan := make([]partitionStart, 0, len(partitions))
	for _, partition := range partitions {
		plan = append(plan, partitionStart{partition: partition, cursor: start})
	}

	locator, ok := w.source.(PartitionLocator)
	if !ok || start == 0 || len(partitions) < 2 {
		return plan, nil
	}
	current, found, err := locator.PartitionOf(ctx, start)
	if err != nil {
		return nil, err
	}
	if !found {
		return plan, nil
	}
	for i, p := range plan {
		if p.partition != current {
			continue
		}
		rest := plan[i:]
		for j := 1; j < len(rest); j++ {
			rest[j].cursor = 0
		}
		return rest, nil
	}
	return plan, nil
}
