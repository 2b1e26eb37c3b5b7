// Package lock 带 TTL 的分布式租约
//
// 租约由 (key, token) 标识, 只有持有 token 的一方可以释放; 过期后其他人可以直接接管.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"code-indexer/internal/model"
	pkgErrors "code-indexer/pkg/errors"
)

// Locker 租约服务
type Locker interface {
	// TryAcquire 非阻塞获取租约, 被占用时返回 ok=false
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	// Release 释放租约, token 不匹配时不做任何事
	Release(ctx context.Context, key, token string) error
}

// DBLocker 基于 leases 表实现
type DBLocker struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDBLocker(db *gorm.DB) *DBLocker {
	return &DBLocker{db: db, now: time.Now}
}

// WithClock 替换时钟, 测试使用
func (l *DBLocker) WithClock(now func() time.Time) *DBLocker {
	l.now = now
	return l
}

func (l *DBLocker) TryAcquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	now := l.now()
	token := uuid.NewString()
	expiresAt := now.Add(ttl).UnixNano()

	result := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.Lease{LeaseKey: key, Token: token, ExpiresAt: expiresAt})
	if result.Error != nil {
		return "", false, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建租约失败", result.Error)
	}
	if result.RowsAffected == 1 {
		return token, true, nil
	}

	// 已存在, 只接管过期的租约
	result = l.db.WithContext(ctx).Model(&model.Lease{}).
		Where("lease_key = ? AND expires_at < ?", key, now.UnixNano()).
		Updates(map[string]interface{}{"token": token, "expires_at": expiresAt})
	if result.Error != nil {
		return "", false, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "接管租约失败", result.Error)
	}
	if result.RowsAffected == 1 {
		return token, true, nil
	}
	return "", false, nil
}

func (l *DBLocker) Release(ctx context.Context, key, token string) error {
	err := l.db.WithContext(ctx).
		Where("lease_key = ? AND token = ?", key, token).
		Delete(&model.Lease{}).Error
	if err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "释放租约失败", err)
	}
	return nil
}

type memoryLease struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker 单进程实现, 用于测试和单机部署
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	now    func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]memoryLease), now: time.Now}
}

func (l *MemoryLocker) WithClock(now func() time.Time) *MemoryLocker {
	l.now = now
	return l
}

func (l *MemoryLocker) TryAcquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.leases[key] = memoryLease{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (l *MemoryLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.leases[key]; ok && cur.token == token {
		delete(l.leases, key)
	}
	return nil
}
