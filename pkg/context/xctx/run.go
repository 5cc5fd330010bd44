package xctx

import "context"

// Run 在绑定了 tr 的派生 context 中执行 fn。
//
// fn 及其派生的 goroutine 通过收到的 ctx 读取 tr。fn 返回（包括 panic 展开）时
// 派生 context 被取消，仍在运行的 goroutine 可以通过 ctx.Done() 感知请求已结束；
// 外层 ctx 从未持有 tr，所以绑定不会泄漏到范围之外。
//
// Run 不 recover panic。
func Run(ctx context.Context, tr Trace, fn func(context.Context) error) error {
	if ctx == nil {
		return ErrNilContext
	}
	if fn == nil {
		return ErrNilFunc
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	return fn(context.WithValue(ctx, keyTrace, tr))
}
