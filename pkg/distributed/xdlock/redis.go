package xdlock

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-redsync/redsync/v4"
	rsredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// =============================================================================
// 锁选项
// =============================================================================

// MutexOption 单次加锁的选项
type MutexOption func(*mutexOptions)

type mutexOptions struct {
	prefix     string
	expiry     time.Duration
	tries      int
	retryDelay time.Duration
}

func defaultMutexOptions() mutexOptions {
	return mutexOptions{
		prefix:     "lock:",
		expiry:     8 * time.Second,
		tries:      32,
		retryDelay: 200 * time.Millisecond,
	}
}

// WithKeyPrefix key 前缀，默认 "lock:"
func WithKeyPrefix(prefix string) MutexOption {
	return func(o *mutexOptions) {
		o.prefix = prefix
	}
}

// WithExpiry 锁的过期时间，默认 8s
func WithExpiry(d time.Duration) MutexOption {
	return func(o *mutexOptions) {
		if d > 0 {
			o.expiry = d
		}
	}
}

// WithTries Lock 的最大尝试次数，默认 32
func WithTries(n int) MutexOption {
	return func(o *mutexOptions) {
		if n > 0 {
			o.tries = n
		}
	}
}

// WithRetryDelay Lock 两次尝试的间隔，默认 200ms
func WithRetryDelay(d time.Duration) MutexOption {
	return func(o *mutexOptions) {
		if d > 0 {
			o.retryDelay = d
		}
	}
}

// =============================================================================
// Locker
// =============================================================================

// Handle 已获得的锁
type Handle interface {
	// Unlock 释放锁。锁已过期或已释放时返回 ErrNotLocked。
	Unlock(ctx context.Context) error
	// Extend 按原 Expiry 续期
	Extend(ctx context.Context) error
	// Key 含前缀的完整 key
	Key() string
}

// Locker Redis 分布式锁，可并发使用
type Locker struct {
	clients []redis.UniversalClient
	rs      *redsync.Redsync
	opts    []MutexOption
	closed  atomic.Bool
}

// NewRedis 创建 Locker。defaults 作用于每次加锁，单次加锁的选项可以覆盖。
//
// Close 不关闭传入的客户端。
func NewRedis(clients []redis.UniversalClient, defaults ...MutexOption) (*Locker, error) {
	if len(clients) == 0 {
		return nil, ErrNilClient
	}
	pools := make([]rsredis.Pool, len(clients))
	for i, c := range clients {
		if c == nil {
			return nil, errors.Join(ErrNilClient, errors.New("client at index "+strconv.Itoa(i)+" is nil"))
		}
		pools[i] = goredis.NewPool(c)
	}
	return &Locker{
		clients: clients,
		rs:      redsync.New(pools...),
		opts:    defaults,
	}, nil
}

// TryLock 非阻塞加锁。锁被占用时返回 (nil, nil)。
func (l *Locker) TryLock(ctx context.Context, key string, opts ...MutexOption) (Handle, error) {
	m, err := l.mutex(key, opts)
	if err != nil {
		return nil, err
	}
	if err := m.TryLockContext(ctx); err != nil {
		err = wrapError(err)
		if errors.Is(err, ErrLockHeld) {
			return nil, nil
		}
		return nil, err
	}
	return &handle{m: m}, nil
}

// Lock 阻塞加锁，按 WithTries/WithRetryDelay 重试
func (l *Locker) Lock(ctx context.Context, key string, opts ...MutexOption) (Handle, error) {
	m, err := l.mutex(key, opts)
	if err != nil {
		return nil, err
	}
	if err := m.LockContext(ctx); err != nil {
		// redsync 不返回 ctx 的错误
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, wrapError(err)
	}
	return &handle{m: m}, nil
}

// Health 对所有节点执行 PING
func (l *Locker) Health(ctx context.Context) error {
	if l.closed.Load() {
		return ErrClosed
	}
	for _, c := range l.clients {
		if err := c.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}

// Close 拒绝新的加锁请求。已持有的锁仍可 Unlock 和 Extend。
func (l *Locker) Close() error {
	l.closed.Store(true)
	return nil
}

func (l *Locker) mutex(key string, opts []MutexOption) (*redsync.Mutex, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	if err := validateKey(key); err != nil {
		return nil, err
	}
	o := defaultMutexOptions()
	for _, opt := range l.opts {
		opt(&o)
	}
	for _, opt := range opts {
		opt(&o)
	}
	return l.rs.NewMutex(o.prefix+key,
		redsync.WithExpiry(o.expiry),
		redsync.WithTries(o.tries),
		redsync.WithRetryDelay(o.retryDelay),
	), nil
}

type handle struct {
	m *redsync.Mutex
}

func (h *handle) Unlock(ctx context.Context) error {
	ok, err := h.m.UnlockContext(ctx)
	if err != nil {
		return wrapError(err)
	}
	if !ok {
		return ErrNotLocked
	}
	return nil
}

func (h *handle) Extend(ctx context.Context) error {
	ok, err := h.m.ExtendContext(ctx)
	if err != nil {
		return wrapError(err)
	}
	if !ok {
		return ErrNotLocked
	}
	return nil
}

func (h *handle) Key() string {
	return h.m.Name()
}
