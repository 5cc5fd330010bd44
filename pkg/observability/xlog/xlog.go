// xlog.go 定义核心接口：Logger、Leveler、LoggerWithLevel
//
// 设计理念：
//   - 强制 context 传递，追踪身份通过 ctx 自动合并进每条记录
//   - 每次调用恰好一次写出，不缓冲；渲染失败作为 error 返回给调用方
//   - 动态级别控制，支持运行时调整
//   - 生命周期管理，Build() 返回 cleanup 函数
package xlog

import (
	"context"
	"log/slog"
)

// Logger 日志接口
//
// 每个级别方法接受三种载荷：结构化字段（[Payload] 或任意 slog.Attr）加消息、
// 错误（[Err]，消息为空时取错误文本）、纯消息。
// 返回值非 nil 表示这条记录没有写出（字段无法序列化或输出失败）。
type Logger interface {
	Trace(ctx context.Context, msg string, attrs ...slog.Attr) error
	Debug(ctx context.Context, msg string, attrs ...slog.Attr) error
	Info(ctx context.Context, msg string, attrs ...slog.Attr) error
	Warn(ctx context.Context, msg string, attrs ...slog.Attr) error
	Error(ctx context.Context, msg string, attrs ...slog.Attr) error

	// Fatal 以 CRITICAL 记录，不退出进程
	Fatal(ctx context.Context, msg string, attrs ...slog.Attr) error

	// Log 以任意级别记录
	Log(ctx context.Context, level Level, msg string, attrs ...slog.Attr) error

	// With 返回带额外属性的派生 Logger，父 Logger 不受影响
	With(attrs ...slog.Attr) Logger

	// Child 返回绑定 fields 的派生 Logger，等价于 With(fields 展开后的属性)
	Child(fields Fields) Logger

	// WithGroup 返回带分组的派生 Logger，后续属性嵌套在该分组下。
	// 追踪字段始终保持在顶层。
	WithGroup(name string) Logger
}

// Leveler 级别控制接口
//
// 与 Logger 分离，避免污染核心日志接口。派生 logger 共享父级的 LevelVar。
type Leveler interface {
	SetLevel(level Level)
	GetLevel() Level

	// Enabled 在构造昂贵的日志参数前检查级别
	Enabled(ctx context.Context, level Level) bool
}

// LoggerWithLevel 组合接口：Logger + Leveler，Build() 返回此接口。
type LoggerWithLevel interface {
	Logger
	Leveler
}
