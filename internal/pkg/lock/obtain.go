package lock

import (
	"context"
	"time"

	pkgErrors "code-indexer/pkg/errors"
)

// RetryOptions 获取租约的重试参数
type RetryOptions struct {
	TTL     time.Duration
	Retries int
	Backoff time.Duration
}

// Obtain 获取租约, 失败后按 Backoff 重试 Retries 次, 仍失败返回 ErrLockContention
func Obtain(ctx context.Context, locker Locker, key string, opts RetryOptions) (string, error) {
	for attempt := 0; ; attempt++ {
		token, ok, err := locker.TryAcquire(ctx, key, opts.TTL)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}
		if attempt >= opts.Retries {
			return "", pkgErrors.ErrLockContention
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(opts.Backoff):
		}
	}
}

// WithLease 持有租约执行 fn, 结束后释放
func WithLease(ctx context.Context, locker Locker, key string, opts RetryOptions, fn func(ctx context.Context) error) error {
	token, err := Obtain(ctx, locker, key, opts)
	if err != nil {
		return err
	}
	defer func() {
		// 调用方 ctx 可能已取消, 释放用独立 ctx
		_ = locker.Release(context.Background(), key, token)
	}()
	return fn(ctx)
}
