package taskqueue

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/lidz/tasks/pkg/context/xctx"
	"github.com/lidz/tasks/pkg/observability/xlog"
	"github.com/lidz/tasks/pkg/observability/xmetrics"
	"github.com/lidz/tasks/pkg/observability/xtrace"
	"github.com/lidz/tasks/pkg/resilience/xbreaker"
	"github.com/lidz/tasks/pkg/resilience/xretry"
)

// 默认值
const (
	DefaultPollTimeout     = time.Second
	DefaultDeliveryTimeout = 30 * time.Second
	pollErrorPause         = time.Second
)

// DispatcherOption Dispatcher 选项
type DispatcherOption func(*Dispatcher)

// WithDispatchQueueKey 监听的 Redis list key，需与 RedisQueue 一致
func WithDispatchQueueKey(key string) DispatcherOption {
	return func(d *Dispatcher) {
		if key != "" {
			d.key = key
		}
	}
}

// WithHTTPClient 投递使用的 HTTP 客户端
func WithHTTPClient(c *http.Client) DispatcherOption {
	return func(d *Dispatcher) {
		if c != nil {
			d.http = c
		}
	}
}

// WithResolver 从信封 traceparent 恢复追踪身份的 Resolver，默认不带项目 ID
func WithResolver(r *xtrace.Resolver) DispatcherOption {
	return func(d *Dispatcher) {
		if r != nil {
			d.resolver = r
		}
	}
}

// WithPollTimeout BRPOP 阻塞时间，也是 ctx 取消后的最长退出延迟。Redis 最小支持 1s。
func WithPollTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.pollTimeout = t
		}
	}
}

// WithBreaker 按目标主机熔断。被拒绝的投递不会被 Permanent 标记，仍按重试策略退避。
// 被目标拒绝的 4xx 不计入失败。
func WithBreaker(opts ...xbreaker.Option) DispatcherOption {
	return func(d *Dispatcher) {
		all := append([]xbreaker.Option{
			xbreaker.WithSuccessPolicy(xbreaker.SuccessFunc(func(err error) bool {
				return err == nil || xretry.IsPermanent(err)
			})),
		}, opts...)
		d.breakers = xbreaker.NewSet(all...)
	}
}

// WithDispatcherObserver 记录每个信封最终投递结果的次数和耗时
func WithDispatcherObserver(o xmetrics.Observer) DispatcherOption {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithDispatcherLogger 日志
func WithDispatcherLogger(l xlog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// Dispatcher 从队列取出信封，POST 到目标 URL。
//
// 每个信封在 [xctx.Run] 内投递：追踪身份取自信封的 traceparent（沿用入队时的 trace ID，
// 生成新的 span ID），投递日志和出站请求都带这一身份。
// 2xx 视为成功；4xx（429 除外）不重试；其余按信封的 RetryPolicy 重试。
type Dispatcher struct {
	client      redis.Cmdable
	key         string
	http        *http.Client
	resolver    *xtrace.Resolver
	breakers    *xbreaker.Set
	observer    xmetrics.Observer
	pollTimeout time.Duration
	logger      xlog.Logger
}

// NewDispatcher 创建 Dispatcher
func NewDispatcher(client redis.Cmdable, opts ...DispatcherOption) (*Dispatcher, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	d := &Dispatcher{
		client:      client,
		key:         DefaultQueueKey,
		http:        &http.Client{Timeout: DefaultDeliveryTimeout},
		pollTimeout: DefaultPollTimeout,
		observer:    xmetrics.NoopObserver{},
		logger:      xlog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.resolver == nil {
		d.resolver = xtrace.NewResolver(xtrace.WithLogger(d.logger))
	}
	return d, nil
}

// Run 循环出队投递，直到 ctx 结束（返回 nil）。可以直接作为 xrun 服务运行。
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := d.client.BRPop(ctx, d.pollTimeout, d.key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			_ = d.logger.Warn(ctx, "taskqueue: poll queue", xlog.Err(err))
			if !sleepCtx(ctx, pollErrorPause) {
				return nil
			}
			continue
		}

		// BRPOP 返回 [key, value]
		if len(res) != 2 {
			continue
		}
		var env Envelope
		if err := sonic.UnmarshalString(res[1], &env); err != nil {
			_ = d.logger.Error(ctx, "taskqueue: drop malformed envelope", xlog.Err(err))
			continue
		}
		_ = d.Dispatch(ctx, env)
	}
}

// Dispatch 投递单个信封，返回最终结果
func (d *Dispatcher) Dispatch(ctx context.Context, env Envelope) error {
	tr := d.resolver.Resolve(ctx, env.Header())
	return xctx.Run(ctx, tr, func(ctx context.Context) error {
		// 出站 instrumentation 以本次投递的身份为父 span，不另起新 trace
		ctx = xtrace.ContextWithRemoteSpan(ctx, tr)
		retryer := xretry.New(
			xretry.WithAttempts(max(env.Retry.MaxAttempts, 1)),
			xretry.WithBackoff(env.Retry.Backoff()),
			xretry.WithLogger(d.logger),
		)

		obs := d.observer.Start(ctx, xmetrics.Options{Component: "taskqueue", Operation: "deliver"})
		attempts := 0
		err := retryer.Do(ctx, "taskqueue.deliver", func(ctx context.Context) error {
			attempts++
			return d.attempt(ctx, env)
		})
		obs.End(xmetrics.Result{Err: err, Attrs: []xmetrics.Attr{xmetrics.Int("attempts", attempts)}})
		if err != nil {
			_ = d.logger.Error(ctx, "taskqueue: delivery failed",
				xlog.Payload(xlog.Fields{"task": env.Name, "url": env.URL}), xlog.Err(err))
			return err
		}
		_ = d.logger.Info(ctx, "taskqueue: delivered",
			xlog.Payload(xlog.Fields{"task": env.Name, "latency": time.Since(env.EnqueuedAt)}))
		return nil
	})
}

// attempt 一次投递，配置了熔断时经过目标主机的熔断器
func (d *Dispatcher) attempt(ctx context.Context, env Envelope) error {
	if d.breakers == nil {
		return d.deliver(ctx, env)
	}
	host := env.URL
	if u, err := url.Parse(env.URL); err == nil && u.Host != "" {
		host = u.Host
	}
	return d.breakers.Get(host).Do(ctx, func() error {
		return d.deliver(ctx, env)
	})
}

func (d *Dispatcher) deliver(ctx context.Context, env Envelope) error {
	body, err := sonic.Marshal(env.Task)
	if err != nil {
		return xretry.Permanent(fmt.Errorf("taskqueue: encode task: %w", err))
	}

	method := env.Method
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, env.URL, bytes.NewReader(body))
	if err != nil {
		return xretry.Permanent(fmt.Errorf("taskqueue: build request: %w", err))
	}
	req.Header = env.Header()
	// 覆盖信封中的 traceparent：父 span 是本次投递
	xtrace.InjectToRequest(ctx, req)

	resp, err := d.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, DefaultMaxBodyBytes))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return xretry.Permanent(fmt.Errorf("%w: %s", ErrDeliveryRejected, resp.Status))
	default:
		return fmt.Errorf("%w: %s", ErrDeliveryFailed, resp.Status)
	}
}

// sleepCtx 等待 d 或 ctx 结束，ctx 结束时返回 false
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
