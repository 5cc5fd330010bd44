// Package xtrace 为每个入站请求解析追踪身份，并在出站调用中传播。
//
// # 解析顺序
//
// [Resolver.Resolve] 按以下顺序确定一次请求的 [xctx.Trace]：
//
//  1. 当前 context 中存在活跃 span（默认读取 OpenTelemetry span context）：
//     原样采用其 trace id 与 span id，已采样时 flags 为 "01"，否则为 "00"
//  2. 否则读取第一个 traceparent 头（version-traceId-parentId-flags）。
//     恰好 4 段时采用其 trace id 与 flags，span id 在本地重新生成；
//     段数不是 4 的头视为不存在
//  3. 否则用 crypto/rand 生成 32 位十六进制 trace id 和 16 位十六进制 span id
//
// 最后根据项目 ID 计算展示用的 trace 引用（见 [FormatTrace]）。
//
// 设计决策: 上游 parent-id 不作为本进程的 span id。本进程是链路上新的一跳，
// 复用上游 span id 会让两跳的日志在追踪视图里合并。
//
// # 使用方式
//
// HTTP：[HTTPMiddleware] 解析身份并在 [xctx.Run] 内执行后续处理链，
// [InjectToRequest] 为出站请求写入 traceparent。
//
// gRPC：[GRPCUnaryServerInterceptor] / [GRPCStreamServerInterceptor] 服务端拦截器，
// [GRPCUnaryClientInterceptor] / [GRPCStreamClientInterceptor] 客户端拦截器。
//
// # 项目 ID
//
// 未配置项目 ID 时，trace 引用退化为原始 trace id。Resolver 构造时通过 logger
// 警告一次，之后不再提示。
package xtrace
