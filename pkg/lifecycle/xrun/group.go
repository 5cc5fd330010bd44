package xrun

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/lidz/tasks/pkg/observability/xlog"
)

// Option Group 选项
type Option func(*options)

type options struct {
	logger   xlog.Logger
	signals  []os.Signal
	noSignal bool
}

// WithLogger 记录组件启停的 logger，默认 xlog.Default()
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSignals 覆盖 [Run] 监听的信号，默认 SIGINT、SIGTERM
func WithSignals(sigs ...os.Signal) Option {
	copied := append([]os.Signal(nil), sigs...)
	return func(o *options) {
		o.signals = copied
	}
}

// WithoutSignalHandler [Run] 不监听信号
func WithoutSignalHandler() Option {
	return func(o *options) {
		o.noSignal = true
	}
}

// Service 具名组件
type Service struct {
	Name string
	Run  func(ctx context.Context) error
}

// Group 一组共享取消的组件
type Group struct {
	eg     *errgroup.Group
	ctx    context.Context
	cause  context.Context
	cancel context.CancelCauseFunc
	opts   options
}

// NewGroup 创建 Group，返回的 context 在任一组件失败或 Cancel 时取消
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	o := options{signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM}}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = xlog.Default()
	}

	cause, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(cause)
	return &Group{eg: eg, ctx: egCtx, cause: cause, cancel: cancel, opts: o}, egCtx
}

// Go 启动组件
func (g *Group) Go(svc Service) {
	g.eg.Go(func() error {
		if svc.Run == nil {
			return ErrNilFunc
		}
		log := g.opts.logger.With(slog.String("service", svc.Name))
		_ = log.Info(g.ctx, "xrun: service starting")

		err := svc.Run(g.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			_ = log.Error(g.ctx, "xrun: service exited with error", xlog.Err(err))
		} else {
			_ = log.Info(g.ctx, "xrun: service stopped")
		}
		return err
	})
}

// Cancel 以 cause 取消所有组件
func (g *Group) Cancel(cause error) {
	g.cancel(cause)
}

// Wait 等待所有组件退出。
//
// 通过 Cancel 或信号终止时返回取消原因；原因是 context.Canceled 时返回 nil。
func (g *Group) Wait() error {
	defer g.cancel(nil)
	err := g.eg.Wait()

	if g.cause.Err() != nil {
		if c := context.Cause(g.cause); c != nil && !errors.Is(c, context.Canceled) {
			return c
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
	}
	return err
}

// Run 在新 Group 中运行 services，并监听终止信号，阻塞直到全部退出
func Run(ctx context.Context, opts []Option, services ...Service) error {
	g, _ := NewGroup(ctx, opts...)
	if !g.opts.noSignal {
		g.eg.Go(func() error {
			return g.watchSignals(g.ctx)
		})
	}
	for _, svc := range services {
		g.Go(svc)
	}
	return g.Wait()
}

func (g *Group) watchSignals(ctx context.Context) error {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, g.opts.signals...)
	defer signal.Stop(ch)

	var sig os.Signal
	select {
	case sig = <-testSigChan(ctx):
	case sig = <-ch:
	case <-ctx.Done():
		return nil
	}
	_ = g.opts.logger.Info(ctx, "xrun: received signal", slog.String("signal", sig.String()))
	g.cancel(&SignalError{Signal: sig})
	return nil
}

// testSigChanKey 测试通过 context 注入信号，避免发送真实信号
type testSigChanKey struct{}

// testSigChan 生产环境返回 nil，select 中永不就绪
func testSigChan(ctx context.Context) <-chan os.Signal {
	c, _ := ctx.Value(testSigChanKey{}).(<-chan os.Signal)
	return c
}
