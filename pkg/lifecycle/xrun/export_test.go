package xrun

import (
	"context"
	"os"
)

// WithTestSignal 在 ctx 中注入信号通道，Run 从中读取信号
func WithTestSignal(ctx context.Context, c <-chan os.Signal) context.Context {
	return context.WithValue(ctx, testSigChanKey{}, c)
}
