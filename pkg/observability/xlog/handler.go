package xlog

import (
	"fmt"
	"log/slog"

	"github.com/bytedance/sonic"

	"github.com/lidz/tasks/pkg/context/xctx"
	"github.com/lidz/tasks/pkg/util/xeventid"
)

// ReplaceAttrFunc 属性替换函数类型
//
// 用于日志治理：字段重命名、敏感信息脱敏、字段过滤。
// 返回空 Key 且空值的 Attr 时该属性被移除。只作用于调用方字段，
// 不作用于 message、severity 等内置字段和分组本身。
//
// 参数：
//   - groups: 当前属性所在的分组路径（如 ["request", "headers"]）
//   - a: 原始属性
type ReplaceAttrFunc func(groups []string, a slog.Attr) slog.Attr

// HandlerOptions CloudHandler 与 PrettyHandler 的公共选项
type HandlerOptions struct {
	// Level 最低级别，nil 表示 LevelInfo
	Level slog.Leveler

	// AddSource 是否输出调用位置
	AddSource bool

	// ReplaceAttr 属性替换函数
	ReplaceAttr ReplaceAttrFunc

	// EventIDs 单调 ID 生成器，仅 CloudHandler 使用；nil 时自动创建
	EventIDs *xeventid.Generator

	// NoColor 关闭颜色输出，仅 PrettyHandler 使用
	NoColor bool
}

func (o *HandlerOptions) enabled(level slog.Level) bool {
	minLevel := slog.LevelInfo
	if o.Level != nil {
		minLevel = o.Level.Level()
	}
	return level >= minLevel
}

// jsonAPI 字段值编码：map key 排序保证输出稳定
var jsonAPI = sonic.Config{
	SortMapKeys:      true,
	CompactMarshaler: true,
	NoEncoderNewline: true,
}.Froze()

// ambient 从记录属性中摘出的追踪字段。
//
// 设计决策: 追踪字段按 key 识别并提升到记录顶层，不受 WithGroup 影响；
// trace_id / span_id / trace_flags 因此是保留 key。
type ambient struct {
	trace  string
	spanID string
	flags  string
}

// take 识别追踪字段，返回 true 表示已摘出
func (a *ambient) take(attr slog.Attr) bool {
	switch attr.Key {
	case xctx.KeyTraceID:
		a.trace = attr.Value.String()
	case xctx.KeySpanID:
		a.spanID = attr.Value.String()
	case xctx.KeyTraceFlags:
		a.flags = attr.Value.String()
	default:
		return false
	}
	return true
}

// merge 用 b 中的非空字段覆盖 a
func (a ambient) merge(b ambient) ambient {
	if b.trace != "" {
		a.trace = b.trace
	}
	if b.spanID != "" {
		a.spanID = b.spanID
	}
	if b.flags != "" {
		a.flags = b.flags
	}
	return a
}

// splitRecord 将记录属性分为追踪字段和调用方字段
func splitRecord(r slog.Record) (ambient, []slog.Attr) {
	var amb ambient
	fields := make([]slog.Attr, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		if !amb.take(a) {
			fields = append(fields, a)
		}
		return true
	})
	return amb, fields
}

// resolve 展开 LogValuer 并应用 ReplaceAttr；ok 为 false 表示属性应被丢弃
func resolve(a slog.Attr, groups []string, replace ReplaceAttrFunc) (slog.Attr, bool, error) {
	var err error
	if a.Value, err = resolveValue(a.Value); err != nil {
		return a, false, fmt.Errorf("%w: field %q: %w", ErrEncode, a.Key, err)
	}
	if replace != nil && a.Value.Kind() != slog.KindGroup {
		a = replace(groups, a)
		if a.Value, err = resolveValue(a.Value); err != nil {
			return a, false, fmt.Errorf("%w: field %q: %w", ErrEncode, a.Key, err)
		}
	}
	if a.Equal(slog.Attr{}) {
		return a, false, nil
	}
	if a.Value.Kind() == slog.KindGroup && len(a.Value.Group()) == 0 {
		return a, false, nil
	}
	return a, true, nil
}

// maxLogValues LogValuer 最多展开次数，与 slog 相同
const maxLogValues = 100

// resolveValue 展开 LogValuer；LogValue panic 或展开次数超限时返回错误
func resolveValue(v slog.Value) (rv slog.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			rv, err = slog.Value{}, fmt.Errorf("LogValue panicked: %v", r)
		}
	}()
	for range maxLogValues {
		if v.Kind() != slog.KindLogValuer {
			return v, nil
		}
		v = v.LogValuer().LogValue()
	}
	return slog.Value{}, fmt.Errorf("LogValue called too many times on %T", v.Any())
}

// withGroup 返回追加 name 后的新切片，不共享底层数组
func withGroup(groups []string, name string) []string {
	out := make([]string, len(groups), len(groups)+1)
	copy(out, groups)
	return append(out, name)
}
