// Package xbreaker 提供熔断器，基于 sony/gobreaker。
//
// 连续失败达到阈值（或失败率超过比例）后熔断器打开，在 Timeout 内直接拒绝请求；
// 之后进入半开状态放行少量探测请求，探测成功则关闭。
//
// [Set] 按名称懒创建熔断器，适合按下游主机隔离故障：
//
//	set := xbreaker.NewSet(xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(5)))
//	err := set.Get(u.Host).Do(ctx, func() error { return call(ctx) })
//	if xbreaker.IsOpen(err) {
//	    // 下游已熔断
//	}
//
// WithSuccessPolicy 决定哪些错误不计入失败，例如调用方自身的参数错误。
package xbreaker
