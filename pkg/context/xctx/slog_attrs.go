package xctx

import (
	"context"
	"log/slog"
)

// AppendTraceAttrs 将 context 中的追踪身份追加到 attrs。
//
// trace_id 取 [Trace.Reference]，即带项目前缀的 trace 引用；
// 只追加非空字段，未绑定身份时原样返回 attrs。
func AppendTraceAttrs(attrs []slog.Attr, ctx context.Context) []slog.Attr {
	tr, ok := Current(ctx)
	if !ok {
		return attrs
	}

	if v := tr.Reference(); v != "" {
		attrs = append(attrs, slog.String(KeyTraceID, v))
	}
	if tr.SpanID != "" {
		attrs = append(attrs, slog.String(KeySpanID, tr.SpanID))
	}
	if tr.TraceFlags != "" {
		attrs = append(attrs, slog.String(KeyTraceFlags, tr.TraceFlags))
	}
	return attrs
}

// TraceAttrs 从 context 提取追踪身份，转换为 slog.Attr 切片
//
// 每次调用会分配新切片，热路径建议使用 AppendTraceAttrs。
func TraceAttrs(ctx context.Context) []slog.Attr {
	attrs := AppendTraceAttrs(make([]slog.Attr, 0, traceFieldCount), ctx)
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
