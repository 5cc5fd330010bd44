package xlog

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"
)

// 编译时接口检查
var (
	_ Logger          = (*xlogger)(nil)
	_ Leveler         = (*xlogger)(nil)
	_ LoggerWithLevel = (*xlogger)(nil)
)

// xlogger Logger 接口的实现
type xlogger struct {
	handler        slog.Handler
	levelVar       *slog.LevelVar
	onError        func(error)    // 内部错误回调
	errorCount     *atomic.Uint64 // 内部错误计数器，派生 logger 共享
	addSource      bool           // 是否记录源码位置（热路径优化）
	inErrorHandler *atomic.Bool   // 防止 onError 递归调用，派生 logger 共享
}

// logWithSkip 通用日志方法，支持额外的栈帧跳过
// extraSkip: 额外需要跳过的栈帧数（用于全局函数等间接调用场景）
//
//go:noinline
func (l *xlogger) logWithSkip(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr, extraSkip int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.handler.Enabled(ctx, level) {
		return nil
	}
	if msg == "" {
		msg = errorText(attrs)
	}

	// runtime.Callers 有不可忽略的开销，仅在启用 AddSource 时捕获
	var pc uintptr
	if l.addSource {
		var pcs [1]uintptr
		// 基础 skip=3: Callers(0) → logWithSkip(1) → 直接调用方(2) → 跳到(3)
		//   实例路径：业务代码 → Info → log → logWithSkip，extraSkip=1
		//   全局路径：业务代码 → xlog.Info → globalLog → logWithSkip，extraSkip=1
		runtime.Callers(3+extraSkip, pcs[:])
		pc = pcs[0]
	}

	r := slog.NewRecord(time.Now(), level, msg, pc)
	r.AddAttrs(attrs...)

	if err := l.handler.Handle(ctx, r); err != nil {
		l.handleError(err)
		return err
	}
	return nil
}

// log 实例方法共用入口，extraSkip=1 跳过 log 自身
//
//go:noinline
func (l *xlogger) log(ctx context.Context, level Level, msg string, attrs []slog.Attr) error {
	return l.logWithSkip(ctx, slog.Level(level), msg, attrs, 1)
}

// handleError 处理内部错误（Handler.Handle 失败）
//
// 错误同时返回给调用方；这里额外计数并通知 onError。
// 内置递归保护和 panic 隔离，保护标记在派生 logger 间共享。
//
// 设计决策: CAS 保护导致并发期间部分错误跳过 onError 回调，
// errorCount 仍计入所有错误，onError 定位为 best-effort 通知。
func (l *xlogger) handleError(err error) {
	l.errorCount.Add(1)
	if l.onError != nil && l.inErrorHandler.CompareAndSwap(false, true) {
		defer l.inErrorHandler.Store(false)
		l.safeOnError(err)
	}
}

// safeOnError 执行 onError 回调，回调 panic 被捕获并计入错误计数
func (l *xlogger) safeOnError(err error) {
	defer func() {
		if r := recover(); r != nil {
			l.errorCount.Add(1)
		}
	}()
	l.onError(err)
}

// Trace 记录 Trace 级别日志
func (l *xlogger) Trace(ctx context.Context, msg string, attrs ...slog.Attr) error {
	return l.log(ctx, LevelTrace, msg, attrs)
}

// Debug 记录 Debug 级别日志
func (l *xlogger) Debug(ctx context.Context, msg string, attrs ...slog.Attr) error {
	return l.log(ctx, LevelDebug, msg, attrs)
}

// Info 记录 Info 级别日志
func (l *xlogger) Info(ctx context.Context, msg string, attrs ...slog.Attr) error {
	return l.log(ctx, LevelInfo, msg, attrs)
}

// Warn 记录 Warn 级别日志
func (l *xlogger) Warn(ctx context.Context, msg string, attrs ...slog.Attr) error {
	return l.log(ctx, LevelWarn, msg, attrs)
}

// Error 记录 Error 级别日志
func (l *xlogger) Error(ctx context.Context, msg string, attrs ...slog.Attr) error {
	return l.log(ctx, LevelError, msg, attrs)
}

// Fatal 记录 Fatal 级别日志，不退出进程
func (l *xlogger) Fatal(ctx context.Context, msg string, attrs ...slog.Attr) error {
	return l.log(ctx, LevelFatal, msg, attrs)
}

// Log 以指定级别记录日志
func (l *xlogger) Log(ctx context.Context, level Level, msg string, attrs ...slog.Attr) error {
	return l.log(ctx, level, msg, attrs)
}

// derive 以新 handler 创建派生 logger，共享级别、回调和计数器
func (l *xlogger) derive(h slog.Handler) *xlogger {
	return &xlogger{
		handler:        h,
		levelVar:       l.levelVar,
		onError:        l.onError,
		errorCount:     l.errorCount,
		addSource:      l.addSource,
		inErrorHandler: l.inErrorHandler,
	}
}

// With 返回带额外属性的派生 Logger
func (l *xlogger) With(attrs ...slog.Attr) Logger {
	if len(attrs) == 0 {
		return l
	}
	return l.derive(l.handler.WithAttrs(attrs))
}

// Child 返回绑定 fields 的派生 Logger
func (l *xlogger) Child(fields Fields) Logger {
	return l.With(fields.Attrs()...)
}

// WithGroup 返回带分组的派生 Logger
func (l *xlogger) WithGroup(name string) Logger {
	if name == "" {
		return l
	}
	return l.derive(l.handler.WithGroup(name))
}

// SetLevel 动态设置日志级别（实现 Leveler 接口）
func (l *xlogger) SetLevel(level Level) {
	l.levelVar.Set(slog.Level(level))
}

// GetLevel 获取当前日志级别（实现 Leveler 接口）
func (l *xlogger) GetLevel() Level {
	return Level(l.levelVar.Level())
}

// Enabled 检查指定级别是否启用（实现 Leveler 接口）
func (l *xlogger) Enabled(ctx context.Context, level Level) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	return l.handler.Enabled(ctx, slog.Level(level))
}

// ErrorCount 返回 l 累计的内部错误数；非 xlog 实现返回 0。
func ErrorCount(l Logger) uint64 {
	if xl, ok := l.(*xlogger); ok {
		return xl.errorCount.Load()
	}
	return 0
}

// Handler 返回 l 底层的 slog.Handler，便于接入只接受 *slog.Logger 的第三方库；
// 非 xlog 实现返回 slog.DiscardHandler。
func Handler(l Logger) slog.Handler {
	if xl, ok := l.(*xlogger); ok {
		return xl.handler
	}
	return slog.DiscardHandler
}
