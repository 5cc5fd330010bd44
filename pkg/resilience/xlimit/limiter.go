package xlimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// Limit 每 Period 允许 Rate 个请求，突发上限 Burst
type Limit struct {
	Rate   int
	Burst  int
	Period time.Duration
}

// PerSecond 每秒 rate 个，突发与 rate 相同
func PerSecond(rate int) Limit {
	return Limit{Rate: rate, Burst: rate, Period: time.Second}
}

// PerMinute 每分钟 rate 个，突发与 rate 相同
func PerMinute(rate int) Limit {
	return Limit{Rate: rate, Burst: rate, Period: time.Minute}
}

// Result 一次限流判定的结果
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Headers X-RateLimit-* 响应头，被拒绝时附带 Retry-After（秒，向上取整）
func (r *Result) Headers() map[string]string {
	h := map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(r.Limit),
		"X-RateLimit-Remaining": strconv.Itoa(r.Remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(r.ResetAt.Unix(), 10),
	}
	if r.RetryAfter > 0 {
		h["Retry-After"] = strconv.FormatInt(int64(math.Ceil(r.RetryAfter.Seconds())), 10)
	}
	return h
}

// SetHeaders 写入响应头。Limit 为 0 时不写。
func (r *Result) SetHeaders(w http.ResponseWriter) {
	if r.Limit <= 0 {
		return
	}
	for k, v := range r.Headers() {
		w.Header().Set(k, v)
	}
}

// Limiter 限流器
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// Option RedisLimiter 选项
type Option func(*RedisLimiter)

// WithPrefix key 前缀，默认 "ratelimit:"
func WithPrefix(prefix string) Option {
	return func(l *RedisLimiter) {
		l.prefix = prefix
	}
}

// RedisLimiter 多实例共享配额的限流器
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
	prefix  string
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedis 创建 RedisLimiter。Burst 不大于 0 时取 Rate。
func NewRedis(client redis.UniversalClient, limit Limit, opts ...Option) (*RedisLimiter, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if limit.Rate <= 0 || limit.Period <= 0 {
		return nil, ErrInvalidLimit
	}
	if limit.Burst <= 0 {
		limit.Burst = limit.Rate
	}
	l := &RedisLimiter{
		limiter: redis_rate.NewLimiter(client),
		limit:   redis_rate.Limit{Rate: limit.Rate, Burst: limit.Burst, Period: limit.Period},
		prefix:  "ratelimit:",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Allow 消耗 key 的一个配额
func (l *RedisLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	return l.AllowN(ctx, key, 1)
}

// AllowN 消耗 key 的 n 个配额；n 为 0 时只查询
func (l *RedisLimiter) AllowN(ctx context.Context, key string, n int) (*Result, error) {
	res, err := l.limiter.AllowN(ctx, l.prefix+key, l.limit, n)
	if err != nil {
		return nil, err
	}
	return &Result{
		Allowed:    res.Allowed > 0 || (n == 0 && res.Remaining > 0),
		Limit:      l.limit.Rate,
		Remaining:  res.Remaining,
		RetryAfter: max(res.RetryAfter, 0),
		ResetAt:    time.Now().Add(res.ResetAfter),
	}, nil
}

// Reset 清空 key 的计数
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	return l.limiter.Reset(ctx, l.prefix+key)
}
