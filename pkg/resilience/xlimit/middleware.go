package xlimit

import (
	"net"
	"net/http"
	"strings"

	"github.com/lidz/tasks/pkg/observability/xlog"
)

// MiddlewareOption 中间件选项
type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	key    func(r *http.Request) string
	skip   func(r *http.Request) bool
	deny   func(w http.ResponseWriter, r *http.Request, res *Result)
	logger xlog.Logger
}

// WithKeyFunc 限流 key，默认 [ClientIP]
func WithKeyFunc(fn func(r *http.Request) string) MiddlewareOption {
	return func(o *middlewareOptions) {
		if fn != nil {
			o.key = fn
		}
	}
}

// WithSkipFunc 返回 true 的请求不参与限流
func WithSkipFunc(fn func(r *http.Request) bool) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.skip = fn
	}
}

// WithDenyHandler 被限流时的响应，默认 429 "Too Many Requests"
func WithDenyHandler(fn func(w http.ResponseWriter, r *http.Request, res *Result)) MiddlewareOption {
	return func(o *middlewareOptions) {
		if fn != nil {
			o.deny = fn
		}
	}
}

// WithLogger 记录后端错误的 logger，默认 xlog.Default()
func WithLogger(l xlog.Logger) MiddlewareOption {
	return func(o *middlewareOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

func defaultDeny(w http.ResponseWriter, _ *http.Request, _ *Result) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte("Too Many Requests"))
}

// HTTPMiddleware 对每个请求按 key 限流。limiter 为 nil 时 panic。
func HTTPMiddleware(limiter Limiter, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if limiter == nil {
		panic("xlimit: HTTPMiddleware requires a non-nil Limiter")
	}
	o := middlewareOptions{key: ClientIP, deny: defaultDeny}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = xlog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if o.skip != nil && o.skip(r) {
				next.ServeHTTP(w, r)
				return
			}
			res, err := limiter.Allow(r.Context(), o.key(r))
			if err != nil {
				// 后端不可用时放行
				_ = o.logger.Warn(r.Context(), "xlimit: limiter unavailable, allowing request", xlog.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			res.SetHeaders(w)
			if !res.Allowed {
				o.deny(w, r, res)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP 依次取 X-Forwarded-For 的第一项、X-Real-IP、RemoteAddr 的主机部分
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
