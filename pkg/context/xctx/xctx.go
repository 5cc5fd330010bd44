package xctx

import "errors"

// 设计决策: contextKey 使用 string 而非 int+iota，包私有类型不会与其他包冲突，
// 调试时打印出的 key 也可读。
type contextKey string

var (
	// ErrNilContext 表示传入的 context 为 nil。
	ErrNilContext = errors.New("xctx: nil context")

	// ErrNilFunc 表示 Run 的执行函数为 nil。
	ErrNilFunc = errors.New("xctx: nil function")

	// ErrMissingTraceID trace_id 缺失
	ErrMissingTraceID = errors.New("xctx: missing trace_id")

	// ErrMissingSpanID span_id 缺失
	ErrMissingSpanID = errors.New("xctx: missing span_id")
)
