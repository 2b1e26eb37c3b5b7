package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"code-indexer/internal/core/events"
)

// NatsBus 基于 NATS core 的事件总线和任务队列
//
// 主题:
//
//	<prefix>.events.<event_type>   {"last_processed_id": 123}
//	<prefix>.jobs.<queue>          {"repository_id": 42}
//
// 订阅使用 queue group, 多个进程之间每条消息只投递一次.
type NatsBus struct {
	nc         *nats.Conn
	prefix     string
	queueGroup string
	pool       *Pool
	eventPool  *Pool
	log        *zap.Logger

	mu     sync.Mutex
	subs   []*nats.Subscription
	timers map[*time.Timer]struct{}
	closed bool
}

func NewNatsBus(nc *nats.Conn, prefix, queueGroup string, pool *Pool, log *zap.Logger) *NatsBus {
	return &NatsBus{
		nc:         nc,
		prefix:     prefix,
		queueGroup: queueGroup,
		pool:       pool,
		log:        log,
		timers:     make(map[*time.Timer]struct{}),
	}
}

// WithEventPool 扫描事件使用独立的池, 长时间运行的索引任务占满 pool 时事件照常处理
func (b *NatsBus) WithEventPool(p *Pool) *NatsBus {
	b.eventPool = p
	return b
}

func (b *NatsBus) eventRunner() *Pool {
	if b.eventPool != nil {
		return b.eventPool
	}
	return b.pool
}

func (b *NatsBus) EventSubject(t events.Type) string {
	return fmt.Sprintf("%s.events.%s", b.prefix, t)
}

func (b *NatsBus) JobSubject(queue string) string {
	return fmt.Sprintf("%s.jobs.%s", b.prefix, queue)
}

func (b *NatsBus) Publish(_ context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.nc.Publish(b.EventSubject(ev.Type), data); err != nil {
		return fmt.Errorf("publish event %s: %w", ev.Type, err)
	}
	return nil
}

func (b *NatsBus) Subscribe(t events.Type, handler EventHandler) error {
	return b.subscribe(b.EventSubject(t), func(msg *nats.Msg) {
		ev := events.Event{Type: t}
		if len(msg.Data) > 0 {
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				b.log.Warn("丢弃无法解析的事件", zap.String("subject", msg.Subject), zap.Error(err))
				return
			}
		}
		ev.Type = t
		b.eventRunner().Go(string(t), func(ctx context.Context) error {
			return handler(ctx, ev)
		})
	})
}

func (b *NatsBus) Enqueue(_ context.Context, queue string, repositoryID int64) error {
	data, err := json.Marshal(JobPayload{RepositoryID: repositoryID})
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := b.nc.Publish(b.JobSubject(queue), data); err != nil {
		return fmt.Errorf("publish job %s: %w", queue, err)
	}
	return nil
}

func (b *NatsBus) EnqueueAfter(ctx context.Context, queue string, repositoryID int64, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		b.mu.Lock()
		delete(b.timers, timer)
		b.mu.Unlock()

		if err := b.Enqueue(context.Background(), queue, repositoryID); err != nil {
			b.log.Error("延迟任务投递失败", zap.String("queue", queue), zap.Int64("repository_id", repositoryID), zap.Error(err))
		}
	})
	b.timers[timer] = struct{}{}
	return nil
}

func (b *NatsBus) Consume(queue string, handler JobHandler) error {
	return b.subscribe(b.JobSubject(queue), func(msg *nats.Msg) {
		var job JobPayload
		if err := json.Unmarshal(msg.Data, &job); err != nil || job.RepositoryID <= 0 {
			b.log.Warn("丢弃非法任务", zap.String("subject", msg.Subject), zap.ByteString("data", msg.Data))
			return
		}
		b.pool.Go(queue, func(ctx context.Context) error {
			return handler(ctx, job.RepositoryID)
		})
	})
}

func (b *NatsBus) subscribe(subject string, cb nats.MsgHandler) error {
	sub, err := b.nc.QueueSubscribe(subject, b.queueGroup, cb)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

// Close 取消订阅并停止未触发的延迟任务, 不关闭底层连接
func (b *NatsBus) Close() {
	b.mu.Lock()
	b.closed = true
	for timer := range b.timers {
		timer.Stop()
	}
	b.timers = map[*time.Timer]struct{}{}
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Drain(); err != nil {
			b.log.Warn("取消订阅失败", zap.String("subject", sub.Subject), zap.Error(err))
		}
	}
}
