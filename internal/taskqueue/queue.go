package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/lidz/tasks/pkg/observability/xlog"
	"github.com/lidz/tasks/pkg/resilience/xretry"
)

//go:generate mockgen -source=queue.go -destination=mock_queue_test.go -package=taskqueue

// Queue 任务队列
type Queue interface {
	// Enqueue 入队。同名信封在去重窗口内再次入队返回 ErrDuplicateTask。
	Enqueue(ctx context.Context, env Envelope) error
}

// 默认值
const (
	DefaultQueueKey    = "tasks:queue"
	DefaultDedupWindow = time.Hour
	dedupKeyPrefix     = "tasks:dedup:"
)

// RedisQueueOption RedisQueue 选项
type RedisQueueOption func(*RedisQueue)

// WithQueueKey 队列所在的 Redis list key
func WithQueueKey(key string) RedisQueueOption {
	return func(q *RedisQueue) {
		if key != "" {
			q.key = key
		}
	}
}

// WithDedupWindow 同名任务去重窗口，默认 1 小时
func WithDedupWindow(d time.Duration) RedisQueueOption {
	return func(q *RedisQueue) {
		if d > 0 {
			q.dedupWindow = d
		}
	}
}

// WithRetryer 写入 Redis 失败时的重试器
func WithRetryer(r *xretry.Retryer) RedisQueueOption {
	return func(q *RedisQueue) {
		if r != nil {
			q.retryer = r
		}
	}
}

// WithQueueLogger 日志
func WithQueueLogger(l xlog.Logger) RedisQueueOption {
	return func(q *RedisQueue) {
		if l != nil {
			q.logger = l
		}
	}
}

// RedisQueue 基于 Redis list 的队列：LPUSH 入队，Dispatcher BRPOP 出队。
//
// 去重通过 SET NX 实现，键为信封名；推入失败时删除去重键，调用方可以再次提交。
type RedisQueue struct {
	client      redis.Cmdable
	key         string
	dedupWindow time.Duration
	retryer     *xretry.Retryer
	logger      xlog.Logger
}

// NewRedisQueue 创建 RedisQueue
func NewRedisQueue(client redis.Cmdable, opts ...RedisQueueOption) (*RedisQueue, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	q := &RedisQueue{
		client:      client,
		key:         DefaultQueueKey,
		dedupWindow: DefaultDedupWindow,
		logger:      xlog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	if q.retryer == nil {
		q.retryer = xretry.New(xretry.WithLogger(q.logger))
	}
	return q, nil
}

// Key 队列 key
func (q *RedisQueue) Key() string {
	return q.key
}

// Enqueue 实现 Queue
func (q *RedisQueue) Enqueue(ctx context.Context, env Envelope) error {
	payload, err := sonic.Marshal(env)
	if err != nil {
		return fmt.Errorf("taskqueue: encode envelope: %w", err)
	}

	dedupKey := dedupKeyPrefix + env.Name
	var created bool
	err = q.retryer.Do(ctx, "taskqueue.dedup", func(ctx context.Context) error {
		ok, setErr := q.client.SetNX(ctx, dedupKey, env.EnqueuedAt.Unix(), q.dedupWindow).Result()
		created = ok
		return setErr
	})
	if err != nil {
		return fmt.Errorf("taskqueue: dedup %s: %w", env.Name, err)
	}
	if !created {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, env.Name)
	}

	err = q.retryer.Do(ctx, "taskqueue.enqueue", func(ctx context.Context) error {
		return q.client.LPush(ctx, q.key, payload).Err()
	})
	if err != nil {
		// ctx 可能已取消，释放去重键使用独立 context
		if delErr := q.client.Del(context.WithoutCancel(ctx), dedupKey).Err(); delErr != nil {
			err = errors.Join(err, delErr)
		}
		return fmt.Errorf("taskqueue: enqueue %s: %w", env.Name, err)
	}

	_ = q.logger.Debug(ctx, "taskqueue: enqueued",
		xlog.Payload(xlog.Fields{"task": env.Name, "queue": q.key}))
	return nil
}
