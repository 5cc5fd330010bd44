// Package taskqueue 实现任务投递服务：接收任务、入队、按目标 URL 回调、幂等处理。
//
// 数据流：
//
//	POST /handleTask   → Task 校验 → Envelope（带 traceparent）→ Queue
//	Dispatcher         → 从 Redis 取出 Envelope → POST 到 Task.URL（失败按 RetryPolicy 重试）
//	POST /receivedTask → Task 校验 → Store 幂等检查 → Processor → 标记已处理
//
// 投递时 Envelope 携带入队请求的追踪身份，回调端经 xtrace 中间件后沿用同一 trace ID，
// 两端日志可以在同一条 trace 下查看。
//
// 同名任务（task-{id}）在去重窗口内只入队一次。
package taskqueue
