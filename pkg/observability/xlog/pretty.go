package xlog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lidz/tasks/pkg/context/xctx"
)

// PrettyHandler 人类可读渲染：基于 zap 的 console 编码器输出单行文本。
//
//	2026-01-02T15:04:05.000Z  WARNING  retrying  {"trace_id": "...", "count": 3}
//
// 严重性映射与 CloudHandler 一致，终端下带颜色；追踪字段排在调用方字段之前，不输出 insertId。
type PrettyHandler struct {
	opts   HandlerOptions
	w      io.Writer
	mu     *sync.Mutex
	enc    zapcore.Encoder
	fields []zapcore.Field // WithAttrs 转换后的字段，包含分组的 Namespace
	groups []string
	nOpen  int
	amb    ambient
	err    error
}

var _ slog.Handler = (*PrettyHandler)(nil)

// ANSI 颜色
var severityColors = map[string]string{
	SeverityDebug:    "\x1b[35m",
	SeverityInfo:     "\x1b[34m",
	SeverityWarning:  "\x1b[33m",
	SeverityError:    "\x1b[31m",
	SeverityCritical: "\x1b[1;31m",
}

const colorReset = "\x1b[0m"

// zapSeverity zap 级别到严重性名称，与 toZapLevel 互逆
var zapSeverity = map[zapcore.Level]string{
	zapcore.DebugLevel: SeverityDebug,
	zapcore.InfoLevel:  SeverityInfo,
	zapcore.WarnLevel:  SeverityWarning,
	zapcore.ErrorLevel: SeverityError,
	zapcore.FatalLevel: SeverityCritical,
}

func toZapLevel(l Level) zapcore.Level {
	switch Severity(l) {
	case SeverityDebug:
		return zapcore.DebugLevel
	case SeverityWarning:
		return zapcore.WarnLevel
	case SeverityError:
		return zapcore.ErrorLevel
	case SeverityCritical:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func severityEncoder(color bool) zapcore.LevelEncoder {
	return func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		s, ok := zapSeverity[l]
		if !ok {
			s = SeverityInfo
		}
		if color {
			s = severityColors[s] + s + colorReset
		}
		enc.AppendString(s)
	}
}

// NewPrettyHandler 创建 PrettyHandler。opts 可以为 nil。
func NewPrettyHandler(w io.Writer, opts *HandlerOptions) (*PrettyHandler, error) {
	if w == nil {
		return nil, ErrNilWriter
	}
	h := &PrettyHandler{w: w, mu: &sync.Mutex{}}
	if opts != nil {
		h.opts = *opts
	}
	h.enc = zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "severity",
		MessageKey:       "message",
		CallerKey:        "caller",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      severityEncoder(!h.opts.NoColor),
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: "  ",
		NewReflectedEncoder: func(w io.Writer) zapcore.ReflectedEncoder {
			return jsonAPI.NewEncoder(w)
		},
	})
	return h, nil
}

// Enabled 按最低级别过滤
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.opts.enabled(level)
}

// Handle 渲染并写出一条记录
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	if h.err != nil {
		return h.err
	}
	recAmb, attrs := splitRecord(r)
	amb := h.amb.merge(recAmb)

	fields := make([]zapcore.Field, 0, 3+len(h.fields)+len(attrs))
	if amb.trace != "" {
		fields = append(fields, zap.String(xctx.KeyTraceID, amb.trace))
	}
	if amb.spanID != "" {
		fields = append(fields, zap.String(xctx.KeySpanID, amb.spanID))
	}
	if amb.flags != "" {
		fields = append(fields, zap.String(xctx.KeyTraceFlags, amb.flags))
	}
	fields = append(fields, h.fields...)

	if len(attrs) > 0 {
		for _, g := range h.groups[h.nOpen:] {
			fields = append(fields, zap.Namespace(g))
		}
		for _, a := range attrs {
			fs, err := h.toFields(a, h.groups)
			if err != nil {
				return err
			}
			fields = append(fields, fs...)
		}
	}

	entry := zapcore.Entry{
		Level:   toZapLevel(Level(r.Level)),
		Time:    r.Time,
		Message: r.Message,
	}
	if h.opts.AddSource && r.PC != 0 {
		frame, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		entry.Caller = zapcore.EntryCaller{
			Defined:  frame.File != "",
			PC:       r.PC,
			File:     frame.File,
			Line:     frame.Line,
			Function: frame.Function,
		}
	}

	buf, err := h.enc.EncodeEntry(entry, fields)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}
	defer buf.Free()

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("xlog: write record: %w", err)
	}
	return nil
}

// WithAttrs 预转换属性
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
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
		h2.fields = append(h2.fields, zap.Namespace(g))
	}
	h2.nOpen = len(h2.groups)

	for _, a := range rest {
		fs, err := h2.toFields(a, h2.groups)
		if err != nil {
			if h2.err == nil {
				h2.err = err
			}
			continue
		}
		h2.fields = append(h2.fields, fs...)
	}
	return h2
}

// WithGroup 记录分组，延迟到有字段时才打开
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = withGroup(h.groups, name)
	return h2
}

func (h *PrettyHandler) clone() *PrettyHandler {
	h2 := *h
	h2.fields = append([]zapcore.Field(nil), h.fields...)
	return &h2
}

// toFields 将属性转换为 zap 字段；空 key 的分组展开为多个字段
func (h *PrettyHandler) toFields(a slog.Attr, groups []string) ([]zapcore.Field, error) {
	a, ok, err := resolve(a, groups, h.opts.ReplaceAttr)
	if err != nil || !ok {
		return nil, err
	}

	v := a.Value
	switch v.Kind() {
	case slog.KindGroup:
		sub := groups
		if a.Key != "" {
			sub = withGroup(groups, a.Key)
		}
		var children []zapcore.Field
		for _, c := range v.Group() {
			fs, err := h.toFields(c, sub)
			if err != nil {
				return nil, err
			}
			children = append(children, fs...)
		}
		if a.Key == "" {
			return children, nil
		}
		return []zapcore.Field{zap.Object(a.Key, fieldList(children))}, nil
	case slog.KindString:
		return []zapcore.Field{zap.String(a.Key, v.String())}, nil
	case slog.KindInt64:
		return []zapcore.Field{zap.Int64(a.Key, v.Int64())}, nil
	case slog.KindUint64:
		return []zapcore.Field{zap.Uint64(a.Key, v.Uint64())}, nil
	case slog.KindFloat64:
		return []zapcore.Field{zap.Float64(a.Key, v.Float64())}, nil
	case slog.KindBool:
		return []zapcore.Field{zap.Bool(a.Key, v.Bool())}, nil
	case slog.KindDuration:
		return []zapcore.Field{zap.Duration(a.Key, v.Duration())}, nil
	case slog.KindTime:
		return []zapcore.Field{zap.Time(a.Key, v.Time())}, nil
	default:
		if e, ok := v.Any().(error); ok {
			return []zapcore.Field{zap.String(a.Key, e.Error())}, nil
		}
		// 先行序列化：zap 会把反射编码错误写成 "<key>Error" 字段而不是返回
		b, err := jsonAPI.Marshal(v.Any())
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %w", ErrEncode, a.Key, err)
		}
		return []zapcore.Field{zap.Reflect(a.Key, json.RawMessage(b))}, nil
	}
}

// fieldList 已转换的分组字段
type fieldList []zapcore.Field

// MarshalLogObject 实现 zapcore.ObjectMarshaler
func (l fieldList) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, f := range l {
		f.AddTo(enc)
	}
	return nil
}
