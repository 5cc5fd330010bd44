// Package xretry 为出站调用提供带退避的重试，基于 avast/retry-go/v5。
//
// # 使用方式
//
//	r := xretry.New(xretry.WithAttempts(5), xretry.WithLogger(logger))
//	err := r.Do(ctx, "enqueue", func(ctx context.Context) error {
//	    return queue.Push(ctx, task)
//	})
//
// 每次失败后的重试通过 logger 记录一条 WARNING，日志带上 ctx 中的追踪身份，
// 同一请求内的重试因此可以在日志里串起来。
//
// # 不重试的错误
//
// 用 [Permanent] 包装的错误立即返回，不再重试；ctx 取消或超时也会立即返回。
package xretry
