package xtrace

import (
	"context"
	"net/http"

	"github.com/lidz/tasks/pkg/context/xctx"
	"github.com/lidz/tasks/pkg/observability/xlog"
)

// =============================================================================
// HTTP 服务端中间件
// =============================================================================

// HTTPMiddleware 返回 HTTP 中间件：解析追踪身份，并在 [xctx.Run] 内执行后续处理链。
//
// 处理链中（包括其派生的 goroutine）的日志都会带上同一身份。
// Resolver 禁用时直接透传。
//
// 与 otelhttp 组合时，otelhttp 应在外层，这样活跃 span 先于解析建立：
//
//	handler := otelhttp.NewHandler(xtrace.HTTPMiddleware(resolver)(mux), "server")
func HTTPMiddleware(r *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if r == nil || !r.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			tr := r.Resolve(req.Context(), req.Header)
			err := xctx.Run(req.Context(), tr, func(ctx context.Context) error {
				next.ServeHTTP(w, req.WithContext(ctx))
				return nil
			})
			if err != nil { // Run 只在参数为 nil 时失败
				_ = r.cfg.logger.Error(req.Context(), "xtrace: run request extent", xlog.Err(err))
			}
		})
	}
}

// =============================================================================
// HTTP 客户端注入
// =============================================================================

// InjectToRequest 将 ctx 中的追踪身份写入出站请求的 traceparent 头
func InjectToRequest(ctx context.Context, req *http.Request) {
	if req == nil {
		return
	}
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	InjectToHeader(ctx, req.Header)
}

// InjectToHeader 将 ctx 中的追踪身份写入 h。ctx 中没有完整身份时不做修改。
//
// 使用 Set 覆盖已有值，多次调用不会产生重复头。
func InjectToHeader(ctx context.Context, h http.Header) {
	if h == nil {
		return
	}
	if tp := traceparentFromContext(ctx); tp != "" {
		h.Set(HeaderTraceparent, tp)
	}
}

func traceparentFromContext(ctx context.Context) string {
	tr, ok := xctx.Current(ctx)
	if !ok {
		return ""
	}
	return FormatTraceparent(tr.TraceID, tr.SpanID, tr.TraceFlags)
}
