package xkeylock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

const defaultShardCount = 32

// Option Locker 选项
type Option func(*options)

type options struct {
	shards  int
	maxKeys int
}

// WithShardCount 分片数，向上取整到 2 的幂，默认 32
func WithShardCount(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.shards = n
		}
	}
}

// WithMaxKeys 同时活跃的 key 上限，0 表示不限制
func WithMaxKeys(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxKeys = n
		}
	}
}

// Handle 已持有的锁
type Handle interface {
	// Unlock 释放锁。首次返回 nil，之后返回 ErrLockNotHeld。
	Unlock() error
	Key() string
}

// Locker 进程内 key 锁，可并发使用
type Locker struct {
	shards  []shard
	mask    uint64
	maxKeys int
	keys    atomic.Int64
	closed  chan struct{}
	once    sync.Once
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// entry 单个 key 的锁。sem 容量为 1，写入即持有；
// refs 统计持有者和等待者，归零时从分片删除。
type entry struct {
	sem  chan struct{}
	refs int
}

// New 创建 Locker
func New(opts ...Option) *Locker {
	o := options{shards: defaultShardCount}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	n := 1
	for n < o.shards {
		n <<= 1
	}
	l := &Locker{
		shards:  make([]shard, n),
		mask:    uint64(n - 1),
		maxKeys: o.maxKeys,
		closed:  make(chan struct{}),
	}
	for i := range l.shards {
		l.shards[i].entries = make(map[string]*entry)
	}
	return l
}

// Acquire 阻塞直到获得 key 的锁、ctx 结束或 Locker 关闭。ctx 为 nil 时 panic。
func (l *Locker) Acquire(ctx context.Context, key string) (Handle, error) {
	if ctx == nil {
		panic("xkeylock: nil Context")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, e, err := l.ref(key)
	if err != nil {
		return nil, err
	}
	select {
	case e.sem <- struct{}{}:
		if l.isClosed() {
			<-e.sem
			l.unref(s, key, e)
			return nil, ErrClosed
		}
		return &handle{l: l, s: s, e: e, key: key}, nil
	case <-ctx.Done():
		l.unref(s, key, e)
		return nil, ctx.Err()
	case <-l.closed:
		l.unref(s, key, e)
		return nil, ErrClosed
	}
}

// TryAcquire 非阻塞获取。锁被占用时返回 (nil, nil)。
func (l *Locker) TryAcquire(key string) (Handle, error) {
	s, e, err := l.ref(key)
	if err != nil {
		return nil, err
	}
	select {
	case e.sem <- struct{}{}:
		return &handle{l: l, s: s, e: e, key: key}, nil
	default:
		l.unref(s, key, e)
		return nil, nil
	}
}

// Len 当前被持有或等待的 key 数
func (l *Locker) Len() int {
	return int(l.keys.Load())
}

// Close 拒绝新请求并唤醒等待者，可重复调用
func (l *Locker) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *Locker) isClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

func (l *Locker) shardFor(key string) *shard {
	return &l.shards[xxhash.Sum64String(key)&l.mask]
}

func (l *Locker) ref(key string) (*shard, *entry, error) {
	if l.isClosed() {
		return nil, nil, ErrClosed
	}
	s := l.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		if l.maxKeys > 0 && l.keys.Load() >= int64(l.maxKeys) {
			return nil, nil, ErrMaxKeysExceeded
		}
		e = &entry{sem: make(chan struct{}, 1)}
		s.entries[key] = e
		l.keys.Add(1)
	}
	e.refs++
	return s, e, nil
}

func (l *Locker) unref(s *shard, key string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(s.entries, key)
		l.keys.Add(-1)
	}
}

type handle struct {
	l        *Locker
	s        *shard
	e        *entry
	key      string
	released atomic.Bool
}

func (h *handle) Unlock() error {
	if !h.released.CompareAndSwap(false, true) {
		return ErrLockNotHeld
	}
	<-h.e.sem
	h.l.unref(h.s, h.key, h.e)
	return nil
}

func (h *handle) Key() string {
	return h.key
}
