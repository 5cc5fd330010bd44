package taskqueue

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:generate mockgen -source=store.go -destination=mock_store_test.go -package=taskqueue

// Store 已处理任务的幂等记录
type Store interface {
	// Processed 报告 key 是否已处理
	Processed(ctx context.Context, key string) (bool, error)

	// MarkProcessed 标记 key 已处理。返回 false 表示 key 此前已被标记（并发重复投递）。
	MarkProcessed(ctx context.Context, key string) (bool, error)
}

// =============================================================================
// Redis 实现
// =============================================================================

// DefaultProcessedTTL 幂等记录保留时间
const DefaultProcessedTTL = 24 * time.Hour

const processedKeyPrefix = "tasks:processed:"

// RedisStore 基于 SET NX 的幂等记录，多实例共享
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisStore 创建 RedisStore，ttl 非正时使用 DefaultProcessedTTL
func NewRedisStore(client redis.Cmdable, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if ttl <= 0 {
		ttl = DefaultProcessedTTL
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Processed 实现 Store
func (s *RedisStore) Processed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, processedKeyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkProcessed 实现 Store
func (s *RedisStore) MarkProcessed(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, processedKeyPrefix+key, time.Now().Unix(), s.ttl).Result()
}

// =============================================================================
// 内存实现
// =============================================================================

// MemoryStore 进程内幂等记录，用于本地运行和测试。记录不过期。
type MemoryStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemoryStore 创建 MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]struct{})}
}

// Processed 实现 Store
func (s *MemoryStore) Processed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok, nil
}

// MarkProcessed 实现 Store
func (s *MemoryStore) MarkProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}
