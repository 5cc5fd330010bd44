// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog，输出云日志 JSON 或彩色文本
//   - xtrace: 为入站请求解析追踪身份的 HTTP/gRPC 中间件
//   - xmetrics: 基于 OpenTelemetry 的操作计数与耗时
//   - xrotate: 日志文件轮转
//
// 日志从 context 中提取追踪身份，与 OpenTelemetry 的 span 身份一致。
package observability
