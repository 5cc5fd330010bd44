package xlog

import (
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/lidz/tasks/pkg/context/xenv"
	"github.com/lidz/tasks/pkg/observability/xrotate"
	"github.com/lidz/tasks/pkg/util/xeventid"
)

// Builder 日志配置构建器
//
// first-error-wins：记录第一个配置错误，Build 时返回。
type Builder struct {
	output       io.Writer
	levelVar     *slog.LevelVar
	mode         xenv.Mode
	addSource    bool
	enableEnrich bool
	noColor      bool
	replaceAttr  ReplaceAttrFunc
	eventIDs     *xeventid.Generator
	rotator      xrotate.Rotator
	onError      func(error)
	err          error
}

// New 创建配置构建器
//
// 默认：输出到 stdout，Info 级别，渲染模式取 xenv.Current()，启用追踪字段注入。
func New() *Builder {
	levelVar := new(slog.LevelVar)
	levelVar.Set(slog.LevelInfo)

	return &Builder{
		output:       os.Stdout,
		levelVar:     levelVar,
		mode:         xenv.Current(),
		enableEnrich: true,
	}
}

func (b *Builder) setErr(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// SetOutput 设置日志输出目标
func (b *Builder) SetOutput(w io.Writer) *Builder {
	if w == nil {
		return b.setErr(ErrNilWriter)
	}
	b.output = w
	return b
}

// SetLevel 设置日志级别
func (b *Builder) SetLevel(level Level) *Builder {
	b.levelVar.Set(slog.Level(level))
	return b
}

// SetLevelString 通过字符串设置日志级别
func (b *Builder) SetLevelString(s string) *Builder {
	level, err := ParseLevel(s)
	if err != nil {
		return b.setErr(err)
	}
	return b.SetLevel(level)
}

// SetMode 设置渲染模式：Production 输出 JSON，Development 输出彩色文本。
// 模式在 Build 时确定，之后不再改变。
func (b *Builder) SetMode(m xenv.Mode) *Builder {
	if !m.IsValid() {
		return b.setErr(xenv.ErrInvalidMode)
	}
	b.mode = m
	return b
}

// SetModeString 通过字符串设置渲染模式，空字符串保持当前值
func (b *Builder) SetModeString(s string) *Builder {
	if s == "" {
		return b
	}
	m, err := xenv.Parse(s)
	if err != nil {
		return b.setErr(err)
	}
	b.mode = m
	return b
}

// SetAddSource 是否在日志中添加源码位置
func (b *Builder) SetAddSource(enable bool) *Builder {
	b.addSource = enable
	return b
}

// SetEnrich 是否从 context 自动注入追踪字段，默认启用
func (b *Builder) SetEnrich(enable bool) *Builder {
	b.enableEnrich = enable
	return b
}

// SetColor 开发模式下是否输出颜色，默认启用
func (b *Builder) SetColor(enable bool) *Builder {
	b.noColor = !enable
	return b
}

// SetEventIDGenerator 指定生产模式使用的单调 ID 生成器，默认每个 logger 新建一个。
//
// 同一进程内多个 logger 共享一个生成器时，它们的 insertId 在同一序列上递增。
func (b *Builder) SetEventIDGenerator(g *xeventid.Generator) *Builder {
	b.eventIDs = g
	return b
}

// SetRotation 输出到文件并按大小轮转
func (b *Builder) SetRotation(filename string, opts ...xrotate.Option) *Builder {
	rotator, err := xrotate.NewLumberjack(filename, opts...)
	if err != nil {
		return b.setErr(err)
	}
	if b.rotator != nil {
		_ = b.rotator.Close()
	}
	b.rotator = rotator
	b.output = rotator
	return b
}

// SetOnError 设置内部错误回调
//
// 当 Handler.Handle() 失败时（字段无法序列化、磁盘满、writer 异常）调用。
// 错误本身已经返回给日志调用方，回调用于把错误接到 metrics/告警。
//
// 注意事项：
//   - 回调在热路径同步执行，应保持轻量
//   - 内置递归保护：回调内部触发日志错误不会无限递归
//   - 回调 panic 被隔离，计入错误计数
func (b *Builder) SetOnError(fn func(error)) *Builder {
	b.onError = fn
	return b
}

// SetReplaceAttr 设置属性替换函数（日志治理）
//
// 示例 - 脱敏：
//
//	logger, _, _ := xlog.New().
//		SetReplaceAttr(func(groups []string, a slog.Attr) slog.Attr {
//			if a.Key == "password" {
//				return slog.String(a.Key, "***")
//			}
//			return a
//		}).
//		Build()
func (b *Builder) SetReplaceAttr(fn ReplaceAttrFunc) *Builder {
	b.replaceAttr = fn
	return b
}

// Build 构建 Logger 实例
//
// 返回值：
//   - LoggerWithLevel: 日志实例，同时支持动态级别控制
//   - func() error: 清理函数，关闭文件输出；可重复调用
//   - error: 配置错误
func (b *Builder) Build() (LoggerWithLevel, func() error, error) {
	if b.err != nil {
		b.closeRotator()
		return nil, nil, b.err
	}

	opts := &HandlerOptions{
		Level:       b.levelVar,
		AddSource:   b.addSource,
		ReplaceAttr: b.replaceAttr,
		EventIDs:    b.eventIDs,
		NoColor:     b.noColor,
	}

	var (
		handler slog.Handler
		err     error
	)
	if b.mode == xenv.Production {
		handler, err = NewCloudHandler(b.output, opts)
	} else {
		handler, err = NewPrettyHandler(b.output, opts)
	}
	if err != nil {
		b.closeRotator()
		return nil, nil, err
	}

	if b.enableEnrich {
		if handler, err = NewEnrichHandler(handler); err != nil {
			b.closeRotator()
			return nil, nil, err
		}
	}

	logger := &xlogger{
		handler:        handler,
		levelVar:       b.levelVar,
		onError:        b.onError,
		errorCount:     new(atomic.Uint64),
		addSource:      b.addSource,
		inErrorHandler: new(atomic.Bool),
	}
	return logger, b.createCleanup(), nil
}

func (b *Builder) closeRotator() {
	if b.rotator != nil {
		_ = b.rotator.Close()
	}
}

// createCleanup 创建清理函数
func (b *Builder) createCleanup() func() error {
	var once sync.Once
	rotator := b.rotator

	return func() error {
		var err error
		once.Do(func() {
			if rotator != nil {
				err = rotator.Close()
			}
		})
		return err
	}
}
