package xctx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// =============================================================================
// ID 格式常量（遵循 W3C Trace Context 规范）
// =============================================================================

const (
	// TraceIDSize W3C 规范: 128-bit (16 bytes) -> 32 hex chars
	TraceIDSize = 16

	// SpanIDSize W3C 规范: 64-bit (8 bytes) -> 16 hex chars
	SpanIDSize = 8
)

// trace-flags 取值
const (
	FlagsSampled    = "01"
	FlagsNotSampled = "00"
)

// Trace 日志属性 Key 常量（下划线分隔）
const (
	KeyTraceID    = "trace_id"
	KeySpanID     = "span_id"
	KeyTraceFlags = "trace_flags"

	traceFieldCount = 3
)

const keyTrace = contextKey("xctx:trace")

// =============================================================================
// Trace 结构体
// =============================================================================

// Trace 一次请求的追踪身份。
//
// 按值传递，创建后不再修改。TraceFlags 可以为空，表示上游没有携带采样决策。
// FormattedTrace 是日志中展示的 trace 引用，配置了项目 ID 时形如
// projects/{projectId}/traces/{traceId}，否则等于 TraceID。
type Trace struct {
	TraceID        string
	SpanID         string
	TraceFlags     string
	FormattedTrace string
}

// Validate 校验必填字段，按 TraceID → SpanID 顺序返回第一个缺失字段的哨兵错误。
func (t Trace) Validate() error {
	if t.TraceID == "" {
		return ErrMissingTraceID
	}
	if t.SpanID == "" {
		return ErrMissingSpanID
	}
	return nil
}

// IsComplete TraceID 与 SpanID 均非空时返回 true。
func (t Trace) IsComplete() bool {
	return t.TraceID != "" && t.SpanID != ""
}

// Sampled 返回采样标志。
//
// ok 为 false 表示没有 TraceFlags；有值时仅 "01" 视为已采样。
func (t Trace) Sampled() (sampled, ok bool) {
	if t.TraceFlags == "" {
		return false, false
	}
	return t.TraceFlags == FlagsSampled, true
}

// Reference 返回日志中使用的 trace 引用：优先 FormattedTrace，其次 TraceID。
func (t Trace) Reference() string {
	if t.FormattedTrace != "" {
		return t.FormattedTrace
	}
	return t.TraceID
}

// =============================================================================
// 绑定与读取
// =============================================================================

// WithTrace 将 tr 整体绑定到 context。
//
// 整体绑定而非逐字段注入：内层绑定完全遮蔽外层，不会出现新旧字段混杂。
// 如果 ctx 为 nil，返回 ErrNilContext。
func WithTrace(ctx context.Context, tr Trace) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, keyTrace, tr), nil
}

// Current 返回 ctx 上绑定的追踪身份。
func Current(ctx context.Context) (Trace, bool) {
	if ctx == nil {
		return Trace{}, false
	}
	tr, ok := ctx.Value(keyTrace).(Trace)
	return tr, ok
}

// TraceID 从 context 提取 trace ID，不存在返回空字符串
func TraceID(ctx context.Context) string {
	tr, _ := Current(ctx)
	return tr.TraceID
}

// SpanID 从 context 提取 span ID，不存在返回空字符串
func SpanID(ctx context.Context) string {
	tr, _ := Current(ctx)
	return tr.SpanID
}

// TraceFlags 从 context 提取 trace flags，不存在返回空字符串
func TraceFlags(ctx context.Context) string {
	tr, _ := Current(ctx)
	return tr.TraceFlags
}

// FormattedTrace 从 context 提取 trace 引用，未设置时回退到 trace ID
func FormattedTrace(ctx context.Context) string {
	tr, _ := Current(ctx)
	return tr.Reference()
}

// RequireTraceID 从 context 获取 trace ID，不存在则返回错误。
func RequireTraceID(ctx context.Context) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	v := TraceID(ctx)
	if v == "" {
		return "", ErrMissingTraceID
	}
	return v, nil
}

// RequireSpanID 从 context 获取 span ID，不存在则返回错误。
func RequireSpanID(ctx context.Context) (string, error) {
	if ctx == nil {
		return "", ErrNilContext
	}
	v := SpanID(ctx)
	if v == "" {
		return "", ErrMissingSpanID
	}
	return v, nil
}

// =============================================================================
// ID 生成函数
// 参考: https://www.w3.org/TR/trace-context/
// =============================================================================

// isAllZeros W3C 规范禁止全零的 trace-id 和 span-id
func isAllZeros(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// GenerateTraceID 生成 32 位小写十六进制的 TraceID（128-bit）。
//
// 使用 crypto/rand；出现全零时重新生成。
// 熵源不可用属于系统级故障，此时 panic，与 OpenTelemetry SDK 的策略一致。
func GenerateTraceID() string {
	var buf [TraceIDSize]byte
	return generateHex(buf[:])
}

// GenerateSpanID 生成 16 位小写十六进制的 SpanID（64-bit）。
//
// Panic 策略与 GenerateTraceID 相同。
func GenerateSpanID() string {
	var buf [SpanIDSize]byte
	return generateHex(buf[:])
}

func generateHex(buf []byte) string {
	for {
		if _, err := rand.Read(buf); err != nil {
			panic("xctx: crypto/rand.Read failed: " + err.Error())
		}
		if !isAllZeros(buf) {
			return hex.EncodeToString(buf)
		}
	}
}
