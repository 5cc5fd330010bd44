package taskqueue

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lidz/tasks/pkg/distributed/xdlock"
	"github.com/lidz/tasks/pkg/util/xkeylock"
)

// DefaultLockExpiry 分布式处理锁的过期时间，覆盖一次处理的最长耗时
const DefaultLockExpiry = DefaultDeliveryTimeout

const lockKeyPrefix = "tasks:lock:"

// Locker 串行化同一任务的接收处理，使幂等检查、处理和标记成为一个临界区
type Locker interface {
	// Lock 阻塞到获得 key 的锁；返回的 unlock 只能调用一次
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LocalLocker 进程内锁，适用于单实例部署
type LocalLocker struct {
	kl *xkeylock.Locker
}

// NewLocalLocker 创建 LocalLocker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{kl: xkeylock.New()}
}

// Lock 实现 Locker
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	h, err := l.kl.Acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	return func() { _ = h.Unlock() }, nil
}

// Close 唤醒等待者并拒绝新的加锁
func (l *LocalLocker) Close() error {
	return l.kl.Close()
}

// RedisLocker 基于 Redis 的锁，多个实例共享同一个 Store 时使用
type RedisLocker struct {
	dl     *xdlock.Locker
	expiry time.Duration
}

// NewRedisLocker 创建 RedisLocker。expiry 非正时使用 DefaultLockExpiry。
func NewRedisLocker(client redis.UniversalClient, expiry time.Duration) (*RedisLocker, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if expiry <= 0 {
		expiry = DefaultLockExpiry
	}
	dl, err := xdlock.NewRedis([]redis.UniversalClient{client},
		xdlock.WithKeyPrefix(lockKeyPrefix),
		xdlock.WithExpiry(expiry),
	)
	if err != nil {
		return nil, err
	}
	return &RedisLocker{dl: dl, expiry: expiry}, nil
}

// Lock 实现 Locker。释放时不受请求 ctx 取消影响。
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	h, err := l.dl.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	return func() { _ = h.Unlock(context.WithoutCancel(ctx)) }, nil
}
