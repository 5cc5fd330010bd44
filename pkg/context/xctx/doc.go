// Package xctx 在 context.Context 上承载请求级追踪身份。
//
// 一次入站请求对应一个 [Trace]（trace_id / span_id / trace_flags / 展示用的 trace 引用），
// 由 xtrace 在入口处解析后通过 [Run] 绑定到请求处理的整个调用链。调用链上的任意代码
// 只要持有该 ctx（包括由它派生的 goroutine），都能通过 [Current] 或单字段访问函数取回身份，
// 无需显式传参。
//
// # 命名约定
//
//	WithTrace(ctx, tr)   - 绑定：返回携带 tr 的新 context，外层绑定被遮蔽
//	Run(ctx, tr, fn)     - 执行：在绑定了 tr 的派生 context 中执行 fn，返回时取消该 context
//	Current(ctx)         - 读取：返回 (Trace, ok)
//	TraceID(ctx) 等      - 单字段读取，缺失时返回空字符串
//	RequireXxx(ctx)      - 强制读取：缺失时返回哨兵错误
//	GenerateXxx()        - 生成符合 W3C Trace Context 的随机 ID
//
// # 并发语义
//
// context 值不可变。并发请求各自持有独立的 context 链，互相不可见；
// 嵌套 Run 只在内层范围内遮蔽外层身份，内层返回后外层 ctx 不受影响。
//
// # 哨兵错误
//
//	ErrNilContext      - context 为 nil
//	ErrNilFunc         - Run 的执行函数为 nil
//	ErrMissingTraceID  - trace_id 缺失
//	ErrMissingSpanID   - span_id 缺失
//
// # 校验策略
//
// xctx 是纯粹的存取层，不校验 ID 的长度和 hex 格式，格式约束由 xtrace 在解析时保证。
package xctx
