package messaging

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pool 有界并发执行消息处理, 达到上限时 Go 阻塞
type Pool struct {
	ctx context.Context
	g   errgroup.Group
	log *zap.Logger
}

func NewPool(ctx context.Context, concurrency int, log *zap.Logger) *Pool {
	p := &Pool{ctx: ctx, log: log}
	if concurrency <= 0 {
		concurrency = 1
	}
	p.g.SetLimit(concurrency)
	return p
}

// Go 执行 fn, 错误和 panic 只记录日志, 不影响其他任务
func (p *Pool) Go(name string, fn func(ctx context.Context) error) {
	p.g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("任务 panic", zap.String("task", name), zap.String("panic", fmt.Sprint(r)))
			}
		}()
		if err := fn(p.ctx); err != nil {
			p.log.Warn("任务执行失败", zap.String("task", name), zap.Error(err))
		}
		return nil
	})
}

// Wait 等待所有已提交任务结束
func (p *Pool) Wait() {
	_ = p.g.Wait()
}
