// Package context 提供上下文与运行环境相关的子包。
//
// 子包列表：
//   - xctx: 在 context.Context 上绑定追踪身份（trace/span/flags）
//   - xenv: 运行模式检测（production / development）
//
// 上下文信息只通过 context.Context 传递，不使用全局变量。
package context
