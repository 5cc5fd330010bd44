package xretry

import (
	"context"
	"log/slog"
	"math"
	"time"

	retry "github.com/avast/retry-go/v5"

	"github.com/lidz/tasks/pkg/observability/xlog"
)

// Retryer 重试执行器，创建后只读，可并发使用
type Retryer struct {
	attempts uint
	backoff  Backoff
	logger   xlog.Logger
}

// Option Retryer 选项
type Option func(*Retryer)

// WithAttempts 总尝试次数（含首次），默认 3；0 表示直到成功或 ctx 结束
func WithAttempts(n uint) Option {
	return func(r *Retryer) {
		r.attempts = n
	}
}

// WithBackoff 退避策略，默认 [DefaultBackoff]
func WithBackoff(b Backoff) Option {
	return func(r *Retryer) {
		if b != nil {
			r.backoff = b
		}
	}
}

// WithLogger 记录重试的 logger，默认 xlog.Default()
func WithLogger(l xlog.Logger) Option {
	return func(r *Retryer) {
		if l != nil {
			r.logger = l
		}
	}
}

// New 创建 Retryer
func New(opts ...Option) *Retryer {
	r := &Retryer{
		attempts: 3,
		backoff:  DefaultBackoff(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = xlog.Default()
	}
	return r
}

// Do 执行 fn，失败时按退避策略重试。
//
// 返回最后一次的错误；[Permanent] 错误和 ctx 结束会立即返回。
// op 是操作名，只用于日志。
func (r *Retryer) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !IsPermanent(err)
		}),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			// n 从 1 开始
			return r.backoff.NextDelay(clampInt(n))
		}),
		retry.OnRetry(func(n uint, err error) {
			// n 从 0 开始
			_ = r.logger.Warn(ctx, "xretry: attempt failed, retrying",
				slog.String("op", op),
				slog.Int("attempt", clampInt(n)+1),
				xlog.Err(err))
		}),
	}
	if r.attempts == 0 {
		opts = append(opts, retry.UntilSucceeded())
	} else {
		opts = append(opts, retry.Attempts(r.attempts))
	}

	return retry.New(opts...).Do(func() error {
		return fn(ctx)
	})
}

func clampInt(n uint) int {
	if n > math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}
