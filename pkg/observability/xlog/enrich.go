package xlog

import (
	"context"
	"log/slog"

	"github.com/lidz/tasks/pkg/context/xctx"
)

// EnrichHandler 从 context 提取追踪身份并注入日志
//
// 装饰模式，包装底层 slog.Handler，在 Handle() 时追加 trace_id（带项目前缀的
// trace 引用）、span_id、trace_flags。context 中没有身份时不做任何修改。
//
// CloudHandler 与 PrettyHandler 按 key 识别这三个字段并提升到顶层，
// 因此即使调用过 WithGroup，追踪字段也不会被归入分组。
type EnrichHandler struct {
	base slog.Handler
}

// NewEnrichHandler 创建 EnrichHandler
func NewEnrichHandler(base slog.Handler) (*EnrichHandler, error) {
	if base == nil {
		return nil, ErrNilHandler
	}
	return &EnrichHandler{base: base}, nil
}

// Enabled 委托给底层 handler
func (h *EnrichHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

// maxEnrichAttrs 最大注入属性数量
const maxEnrichAttrs = 3

// Handle 在调用底层 handler 前追加追踪字段
//
// 根据 slog 契约，修改前先 Clone record。栈数组避免热路径堆分配。
func (h *EnrichHandler) Handle(ctx context.Context, r slog.Record) error {
	var buf [maxEnrichAttrs]slog.Attr
	attrs := xctx.AppendTraceAttrs(buf[:0], ctx)

	if len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.base.Handle(ctx, r)
}

// WithAttrs 返回带额外属性的新 handler
func (h *EnrichHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EnrichHandler{base: h.base.WithAttrs(attrs)}
}

// WithGroup 返回带分组的新 handler
func (h *EnrichHandler) WithGroup(name string) slog.Handler {
	return &EnrichHandler{base: h.base.WithGroup(name)}
}
