package xtrace

import (
	"context"
	"net/http"
	"strings"

	"github.com/lidz/tasks/pkg/context/xctx"
	"github.com/lidz/tasks/pkg/observability/xlog"
)

// traceparent 头名称，HTTP 与 gRPC metadata 共用（gRPC 要求小写）
const (
	HeaderTraceparent = "traceparent"
	MetaTraceparent   = "traceparent"
)

// traceparentFields traceparent 的字段数
const traceparentFields = 4

// =============================================================================
// 选项配置（HTTP 和 gRPC 共用）
// =============================================================================

// Option Resolver 选项
type Option func(*config)

type config struct {
	projectID string
	enabled   bool
	spans     SpanSource
	logger    xlog.Logger
}

// WithProjectID 设置云项目 ID，用于生成 projects/{projectId}/traces/{traceId} 形式的引用
func WithProjectID(id string) Option {
	return func(cfg *config) {
		cfg.projectID = strings.TrimSpace(id)
	}
}

// WithEnabled 设置是否启用。默认启用；禁用时中间件和拦截器直接透传。
func WithEnabled(enabled bool) Option {
	return func(cfg *config) {
		cfg.enabled = enabled
	}
}

// WithSpanSource 设置活跃 span 来源，默认 [OTelSpanSource]。传 nil 表示不读取活跃 span。
func WithSpanSource(src SpanSource) Option {
	return func(cfg *config) {
		cfg.spans = src
	}
}

// WithLogger 设置 Resolver 自身使用的 logger，默认 xlog.Default()
func WithLogger(l xlog.Logger) Option {
	return func(cfg *config) {
		if l != nil {
			cfg.logger = l
		}
	}
}

// =============================================================================
// Resolver
// =============================================================================

// Resolver 为入站请求解析追踪身份。创建后只读，可并发使用。
type Resolver struct {
	cfg config
}

// NewResolver 创建 Resolver。
//
// 启用且未配置项目 ID 时，通过 logger 警告一次。
func NewResolver(opts ...Option) *Resolver {
	cfg := config{
		enabled: true,
		spans:   OTelSpanSource{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = xlog.Default()
	}

	r := &Resolver{cfg: cfg}
	if cfg.enabled && cfg.projectID == "" {
		_ = cfg.logger.Warn(context.Background(),
			"xtrace: project id not configured, trace references fall back to raw trace ids")
	}
	return r
}

// Enabled 是否启用
func (r *Resolver) Enabled() bool {
	return r.cfg.enabled
}

// ProjectID 返回配置的项目 ID
func (r *Resolver) ProjectID() string {
	return r.cfg.projectID
}

// Resolve 从活跃 span 或 HTTP 头解析追踪身份，两者都没有时本地生成。
//
// 返回值总是完整的：TraceID 与 SpanID 非空，FormattedTrace 已计算。
func (r *Resolver) Resolve(ctx context.Context, h http.Header) xctx.Trace {
	var traceparent string
	if h != nil {
		// Values 保留重复头的顺序，取第一个
		if vs := h.Values(HeaderTraceparent); len(vs) > 0 {
			traceparent = vs[0]
		}
	}
	return r.resolve(ctx, traceparent)
}

func (r *Resolver) resolve(ctx context.Context, traceparent string) xctx.Trace {
	if ctx == nil {
		ctx = context.Background()
	}

	var tr xctx.Trace
	if span, ok := r.activeSpan(ctx); ok {
		tr = xctx.Trace{TraceID: span.TraceID, SpanID: span.SpanID, TraceFlags: xctx.FlagsNotSampled}
		if span.Sampled {
			tr.TraceFlags = xctx.FlagsSampled
		}
	} else if tp, ok := ParseTraceparent(traceparent); ok {
		tr = xctx.Trace{TraceID: tp.TraceID, SpanID: freshSpanID(tp.ParentID), TraceFlags: tp.Flags}
	} else {
		tr = xctx.Trace{TraceID: xctx.GenerateTraceID(), SpanID: xctx.GenerateSpanID()}
	}

	tr.FormattedTrace = FormatTrace(tr.TraceID, r.cfg.projectID)
	return tr
}

func (r *Resolver) activeSpan(ctx context.Context) (SpanInfo, bool) {
	if r.cfg.spans == nil {
		return SpanInfo{}, false
	}
	span, ok := r.cfg.spans.ActiveSpan(ctx)
	if !ok || span.TraceID == "" || span.SpanID == "" {
		return SpanInfo{}, false
	}
	return span, true
}

// freshSpanID 生成与上游 parent-id 不同的 span id
func freshSpanID(parent string) string {
	for {
		if id := xctx.GenerateSpanID(); id != parent {
			return id
		}
	}
}

// =============================================================================
// traceparent 与 trace 引用
// =============================================================================

// Traceparent traceparent 头的 4 个字段
type Traceparent struct {
	Version  string
	TraceID  string
	ParentID string
	Flags    string
}

// ParseTraceparent 按 "-" 拆分 traceparent。
//
// 恰好 4 段且 trace id 非空时返回 true；其余形状一律视为不存在，不做部分采用。
// 字段内容不做十六进制校验，原样保留。
func ParseTraceparent(s string) (Traceparent, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Traceparent{}, false
	}
	parts := strings.Split(s, "-")
	if len(parts) != traceparentFields || parts[1] == "" {
		return Traceparent{}, false
	}
	return Traceparent{
		Version:  parts[0],
		TraceID:  parts[1],
		ParentID: parts[2],
		Flags:    parts[3],
	}, true
}

// FormatTraceparent 生成版本 00 的 traceparent。flags 为空时使用 "00"；
// trace id 或 span id 为空时返回空字符串。
func FormatTraceparent(traceID, spanID, flags string) string {
	if traceID == "" || spanID == "" {
		return ""
	}
	if flags == "" {
		flags = xctx.FlagsNotSampled
	}
	var b strings.Builder
	b.Grow(3 + len(traceID) + 1 + len(spanID) + 1 + len(flags))
	b.WriteString("00-")
	b.WriteString(traceID)
	b.WriteByte('-')
	b.WriteString(spanID)
	b.WriteByte('-')
	b.WriteString(flags)
	return b.String()
}

// FormatTrace 返回 trace 引用：有项目 ID 时为 projects/{projectId}/traces/{traceId}，
// 否则原样返回 traceID。
func FormatTrace(traceID, projectID string) string {
	if projectID == "" {
		return traceID
	}
	return "projects/" + projectID + "/traces/" + traceID
}
