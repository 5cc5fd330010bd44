package xtrace

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"github.com/lidz/tasks/pkg/context/xctx"
)

// SpanInfo 活跃 span 的身份信息
type SpanInfo struct {
	TraceID string
	SpanID  string
	Sampled bool
}

// SpanSource 提供当前 context 中的活跃 span。
//
// 本包只读取 span，从不创建或导出 span。
type SpanSource interface {
	ActiveSpan(ctx context.Context) (SpanInfo, bool)
}

// SpanSourceFunc 函数适配器
type SpanSourceFunc func(ctx context.Context) (SpanInfo, bool)

// ActiveSpan 实现 SpanSource
func (f SpanSourceFunc) ActiveSpan(ctx context.Context) (SpanInfo, bool) {
	return f(ctx)
}

// OTelSpanSource 读取 OpenTelemetry 放入 context 的 span context。
//
// otelhttp、otelgrpc 等 instrumentation 创建 span 后，Resolver 通过它采用同一身份，
// 日志与导出的 span 因此落在同一条链路上。
type OTelSpanSource struct{}

// ActiveSpan 实现 SpanSource。span context 无效时返回 false。
func (OTelSpanSource) ActiveSpan(ctx context.Context) (SpanInfo, bool) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return SpanInfo{}, false
	}
	return SpanInfo{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
		Sampled: sc.IsSampled(),
	}, true
}

// ContextWithRemoteSpan 把 tr 作为远端父 span 放入 ctx。
//
// 之后由 otelhttp 等 instrumentation 创建的 span 成为 tr 的子 span，
// 注入的 traceparent 因此沿用 tr 的 trace id。tr 的 id 不是合法十六进制时原样返回 ctx；
// ctx 中已有同一身份的 span 时也不做替换。
func ContextWithRemoteSpan(ctx context.Context, tr xctx.Trace) context.Context {
	traceID, err := trace.TraceIDFromHex(tr.TraceID)
	if err != nil {
		return ctx
	}
	spanID, err := trace.SpanIDFromHex(tr.SpanID)
	if err != nil {
		return ctx
	}
	if cur := trace.SpanContextFromContext(ctx); cur.TraceID() == traceID && cur.SpanID() == spanID {
		return ctx
	}

	var flags trace.TraceFlags
	if tr.TraceFlags == xctx.FlagsSampled {
		flags = trace.FlagsSampled
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	})
	return trace.ContextWithRemoteSpanContext(ctx, sc)
}
