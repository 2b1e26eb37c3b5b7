package lock

import (
	"context"
	"time"
)

// invocationTTL 无周期任务的租约上限, 只用于并发去重
const invocationTTL = 10 * time.Minute

// Throttle 周期内最多执行一次
type Throttle struct {
	locker Locker
}

func NewThrottle(locker Locker) *Throttle {
	return &Throttle{locker: locker}
}

// Run 在 key 上节流执行 fn, 返回 fn 是否被执行
//
// period > 0: 租约保持到周期结束, 周期内的其他调用直接跳过; fn 失败时释放租约以便下次重试.
// period == 0: 只对并发调用去重, fn 结束即释放.
func (t *Throttle) Run(ctx context.Context, key string, period time.Duration, fn func(ctx context.Context) error) (bool, error) {
	ttl := period
	if ttl <= 0 {
		ttl = invocationTTL
	}

	token, ok, err := t.locker.TryAcquire(ctx, key, ttl)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	err = fn(ctx)
	if period <= 0 || err != nil {
		_ = t.locker.Release(context.Background(), key, token)
	}
	return true, err
}
