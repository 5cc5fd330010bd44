package xlog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/lidz/tasks/pkg/util/xeventid"
)

// 云日志兼容的 JSON 字段名
const (
	CloudKeyMessage        = "message"
	CloudKeySeverity       = "severity"
	CloudKeyTimestamp      = "timestamp"
	CloudKeyTrace          = "logging.googleapis.com/trace"
	CloudKeySpanID         = "logging.googleapis.com/spanId"
	CloudKeyTraceSampled   = "logging.googleapis.com/trace_sampled"
	CloudKeyInsertID       = "logging.googleapis.com/insertId"
	CloudKeySourceLocation = "logging.googleapis.com/sourceLocation"
)

// ReservedKeyPrefix 顶层调用方字段与内置字段同名时加的前缀，
// 如 message → attr.message，避免同一对象出现重复 key
const ReservedKeyPrefix = "attr."

func isReservedKey(key string) bool {
	switch key {
	case CloudKeyMessage, CloudKeySeverity, CloudKeyTimestamp,
		CloudKeyTrace, CloudKeySpanID, CloudKeyTraceSampled,
		CloudKeyInsertID, CloudKeySourceLocation:
		return true
	}
	return false
}

// CloudHandler 机器可读渲染：每条记录一行 JSON，字段名与云日志的结构化日志约定一致。
//
// 字段顺序固定：message、severity、timestamp{seconds,nanos}、trace、spanId、
// trace_sampled（仅当有 trace_flags）、insertId、sourceLocation（可选），随后是调用方字段。
// 调用方字段的分组渲染为嵌套对象；顶层与内置字段同名的调用方字段加 [ReservedKeyPrefix]。
//
// 任一字段值无法序列化时 Handle 返回包装了 [ErrEncode] 的错误，整条记录不写出。
type CloudHandler struct {
	opts   HandlerOptions
	w      io.Writer
	mu     *sync.Mutex // 派生 handler 共享，保证整行写出不交错
	pre    []byte      // WithAttrs 预编码的字段，可能包含已打开的分组
	groups []string    // 全部分组路径
	nOpen  int         // pre 中已打开的分组数
	amb    ambient     // 通过 WithAttrs 绑定的追踪字段
	err    error       // WithAttrs 阶段的编码错误，推迟到 Handle 返回
}

var _ slog.Handler = (*CloudHandler)(nil)

// NewCloudHandler 创建 CloudHandler。opts 可以为 nil。
func NewCloudHandler(w io.Writer, opts *HandlerOptions) (*CloudHandler, error) {
	if w == nil {
		return nil, ErrNilWriter
	}
	h := &CloudHandler{w: w, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.EventIDs == nil {
		ids, err := xeventid.New()
		if err != nil {
			return nil, err
		}
		h.opts.EventIDs = ids
	}
	return h, nil
}

// Enabled 按最低级别过滤
func (h *CloudHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.opts.enabled(level)
}

// Handle 渲染并写出一条记录
func (h *CloudHandler) Handle(_ context.Context, r slog.Record) error {
	if h.err != nil {
		return h.err
	}
	recAmb, fields := splitRecord(r)
	amb := h.amb.merge(recAmb)

	buf := make([]byte, 0, 512)
	buf = append(buf, '{')
	var err error
	if buf, err = appendJSONKeyString(buf, CloudKeyMessage, r.Message); err != nil {
		return err
	}
	buf, _ = appendJSONKeyString(buf, CloudKeySeverity, Severity(Level(r.Level)))

	// 直接构造 {seconds, nanos}，比格式化时间字符串快
	if !r.Time.IsZero() {
		buf = appendKey(buf, CloudKeyTimestamp)
		buf = append(buf, `{"seconds":`...)
		buf = strconv.AppendInt(buf, r.Time.Unix(), 10)
		buf = append(buf, `,"nanos":`...)
		buf = strconv.AppendInt(buf, int64(r.Time.Nanosecond()), 10)
		buf = append(buf, '}')
	}

	if amb.trace != "" {
		buf, _ = appendJSONKeyString(buf, CloudKeyTrace, amb.trace)
	}
	if amb.spanID != "" {
		buf, _ = appendJSONKeyString(buf, CloudKeySpanID, amb.spanID)
	}
	if amb.flags != "" {
		buf = appendKey(buf, CloudKeyTraceSampled)
		buf = strconv.AppendBool(buf, amb.flags == "01")
	}
	buf, _ = appendJSONKeyString(buf, CloudKeyInsertID, h.opts.EventIDs.Next())

	if h.opts.AddSource && r.PC != 0 {
		buf = appendSource(buf, r.PC)
	}

	if len(h.pre) > 0 {
		buf = append(buf, ',')
		buf = append(buf, h.pre...)
	}

	closing := h.nOpen
	if len(fields) > 0 {
		for _, g := range h.groups[h.nOpen:] {
			buf = appendKey(buf, g)
			buf = append(buf, '{')
			closing++
		}
		for _, a := range fields {
			if buf, err = h.appendAttr(buf, a, h.groups); err != nil {
				return err
			}
		}
	}
	for range closing {
		buf = append(buf, '}')
	}
	buf = append(buf, '}', '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.w.Write(buf); err != nil {
		return fmt.Errorf("xlog: write record: %w", err)
	}
	return nil
}

// WithAttrs 预编码属性，打开尚未输出的分组
func (h *CloudHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	rest := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		if !h2.amb.take(a) {
			rest = append(rest, a)
		}
	}
	if len(rest) == 0 {
		return h2
	}

	for _, g := range h2.groups[h2.nOpen:] {
		h2.pre = appendKey(h2.pre, g)
		h2.pre = append(h2.pre, '{')
	}
	h2.nOpen = len(h2.groups)

	for _, a := range rest {
		var err error
		if h2.pre, err = h2.appendAttr(h2.pre, a, h2.groups); err != nil && h2.err == nil {
			h2.err = err
		}
	}
	return h2
}

// WithGroup 记录分组，延迟到有字段时才打开
func (h *CloudHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = withGroup(h.groups, name)
	return h2
}

func (h *CloudHandler) clone() *CloudHandler {
	h2 := *h
	h2.pre = append([]byte(nil), h.pre...)
	return &h2
}

func (h *CloudHandler) appendAttr(buf []byte, a slog.Attr, groups []string) ([]byte, error) {
	a, ok, err := resolve(a, groups, h.opts.ReplaceAttr)
	if err != nil || !ok {
		return buf, err
	}
	if len(groups) == 0 && isReservedKey(a.Key) {
		a.Key = ReservedKeyPrefix + a.Key
	}

	if a.Value.Kind() == slog.KindGroup {
		children := a.Value.Group()
		if a.Key == "" {
			for _, c := range children {
				if buf, err = h.appendAttr(buf, c, groups); err != nil {
					return buf, err
				}
			}
			return buf, nil
		}
		buf = appendKey(buf, a.Key)
		buf = append(buf, '{')
		sub := withGroup(groups, a.Key)
		for _, c := range children {
			if buf, err = h.appendAttr(buf, c, sub); err != nil {
				return buf, err
			}
		}
		return append(buf, '}'), nil
	}

	buf = appendKey(buf, a.Key)
	buf, err = appendValue(buf, a.Value)
	if err != nil {
		return buf, fmt.Errorf("%w: field %q: %w", ErrEncode, a.Key, err)
	}
	return buf, nil
}

// appendKey 写入 key 和冒号，必要时先写逗号
func appendKey(buf []byte, key string) []byte {
	if n := len(buf); n > 0 && buf[n-1] != '{' {
		buf = append(buf, ',')
	}
	b, err := jsonAPI.Marshal(key)
	if err != nil {
		b = []byte(strconv.Quote(key))
	}
	buf = append(buf, b...)
	return append(buf, ':')
}

func appendJSONKeyString(buf []byte, key, s string) ([]byte, error) {
	buf = appendKey(buf, key)
	b, err := jsonAPI.Marshal(s)
	if err != nil {
		return buf, fmt.Errorf("%w: field %q: %w", ErrEncode, key, err)
	}
	return append(buf, b...), nil
}

func appendValue(buf []byte, v slog.Value) ([]byte, error) {
	switch v.Kind() {
	case slog.KindString:
		return appendMarshal(buf, v.String())
	case slog.KindInt64:
		return strconv.AppendInt(buf, v.Int64(), 10), nil
	case slog.KindUint64:
		return strconv.AppendUint(buf, v.Uint64(), 10), nil
	case slog.KindFloat64:
		f := v.Float64()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return buf, fmt.Errorf("unsupported float value %v", f)
		}
		return strconv.AppendFloat(buf, f, 'g', -1, 64), nil
	case slog.KindBool:
		return strconv.AppendBool(buf, v.Bool()), nil
	case slog.KindDuration:
		return appendMarshal(buf, v.Duration().String())
	case slog.KindTime:
		return appendMarshal(buf, v.Time().Format(time.RFC3339Nano))
	default:
		if e, ok := v.Any().(error); ok {
			return appendMarshal(buf, e.Error())
		}
		return appendMarshal(buf, v.Any())
	}
}

func appendMarshal(buf []byte, v any) ([]byte, error) {
	b, err := jsonAPI.Marshal(v)
	if err != nil {
		return buf, err
	}
	return append(buf, b...), nil
}

// appendSource 写入调用位置
func appendSource(buf []byte, pc uintptr) []byte {
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return buf
	}
	buf = appendKey(buf, CloudKeySourceLocation)
	buf = append(buf, '{')
	buf, _ = appendJSONKeyString(buf, "file", frame.File)
	buf = appendKey(buf, "line")
	buf = strconv.AppendInt(buf, int64(frame.Line), 10)
	buf, _ = appendJSONKeyString(buf, "function", frame.Function)
	return append(buf, '}')
}
