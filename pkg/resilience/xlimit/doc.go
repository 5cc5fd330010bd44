// Package xlimit 提供基于 Redis 的分布式限流和 HTTP 限流中间件，底层使用 redis_rate（GCRA 算法）。
//
//	limiter, err := xlimit.NewRedis(client, xlimit.PerMinute(600))
//	mux := xlimit.HTTPMiddleware(limiter)(mux)
//
// 被限流的请求得到 429 和 Retry-After 头。限流后端出错时放行请求并记录警告。
package xlimit
