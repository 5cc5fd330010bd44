package xlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

// =============================================================================
// 全局 Logger
//
// 定位：脚手架/小工具等简单场景。服务端推荐依赖注入（显式持有 Logger）。
// =============================================================================

var (
	globalLogger atomic.Pointer[LoggerWithLevel]
	globalMu     sync.Mutex // 保护 globalOnce 的执行与重置
	globalOnce   sync.Once

	// newBuilder 默认 Logger 的构建器工厂，测试可替换
	newBuilder = New
)

// defaultLogger 惰性创建默认 Logger
//
// 设计决策: 持锁执行 once.Do，ResetDefault 重置 globalOnce 时不会与 Do 竞争。
// 初始化后 Default() 走 atomic.Load 快速路径，不进入此函数。
func defaultLogger() LoggerWithLevel {
	globalMu.Lock()
	defer globalMu.Unlock()

	globalOnce.Do(func() {
		logger, _, err := newBuilder().Build()
		if err != nil {
			// 构造不 panic：降级为最小可用 logger
			fmt.Fprintf(os.Stderr, "xlog: failed to build default logger: %v, using fallback\n", err)
			var fallback LoggerWithLevel = &xlogger{
				handler:        slog.NewTextHandler(os.Stderr, nil),
				levelVar:       new(slog.LevelVar),
				errorCount:     new(atomic.Uint64),
				inErrorHandler: new(atomic.Bool),
			}
			globalLogger.Store(&fallback)
			return
		}
		globalLogger.Store(&logger)
	})
	return *globalLogger.Load()
}

// Default 返回全局默认 Logger
//
// 首次调用时按 New() 的默认配置创建（stdout、Info 级别、渲染模式取 xenv.Current()）。
func Default() LoggerWithLevel {
	if l := globalLogger.Load(); l != nil {
		return *l
	}
	return defaultLogger()
}

// SetDefault 替换全局默认 Logger，nil 会被忽略
func SetDefault(l LoggerWithLevel) {
	if l == nil {
		return
	}
	globalLogger.Store(&l)
}

// ResetDefault 重置全局 Logger 为未初始化状态（仅用于测试）
func ResetDefault() {
	globalMu.Lock()
	globalLogger.Store(nil)
	globalOnce = sync.Once{}
	globalMu.Unlock()
}

// =============================================================================
// 便利函数：强制 ctx
// =============================================================================

// globalLog 全局函数比实例方法多一层调用，需要额外跳过 1 帧
func globalLog(ctx context.Context, level Level, msg string, attrs []slog.Attr) error {
	l := Default()
	if xl, ok := l.(*xlogger); ok {
		return xl.logWithSkip(ctx, slog.Level(level), msg, attrs, 1)
	}
	return l.Log(ctx, level, msg, attrs...)
}

// Trace 使用全局 Logger 记录 Trace 级别日志
func Trace(ctx context.Context, msg string, attrs ...slog.Attr) error {
	return globalLog(ctx, LevelTrace, msg, attrs)
}

// Debug 使用全局 Logger 记录 Debug 级别日志
func Debug(ctx context.Context, msg string, attrs ...slog.Attr) error {
	return globalLog(ctx, LevelDebug, msg, attrs)
}

// Info 使用全局 Logger 记录 Info 级别日志
func Info(ctx context.Context, msg string, attrs ...slog.Attr) error {
	return globalLog(ctx, LevelInfo, msg, attrs)
}

// Warn 使用全局 Logger 记录 Warn 级别日志
func Warn(ctx context.Context, msg string, attrs ...slog.Attr) error {
	return globalLog(ctx, LevelWarn, msg, attrs)
}

// Error 使用全局 Logger 记录 Error 级别日志
func Error(ctx context.Context, msg string, attrs ...slog.Attr) error {
	return globalLog(ctx, LevelError, msg, attrs)
}

// Fatal 使用全局 Logger 记录 Fatal 级别日志，不退出进程
func Fatal(ctx context.Context, msg string, attrs ...slog.Attr) error {
	return globalLog(ctx, LevelFatal, msg, attrs)
}
