// Package xlog 基于 log/slog 的结构化日志库，输出与请求追踪身份关联的日志。
//
// # 核心功能
//
//   - Builder 模式配置（输出目标、级别、渲染模式、文件轮转）
//   - 自动从 context 注入 trace_id、span_id、trace_flags（EnrichHandler，默认启用）
//   - 两种渲染：生产模式 [CloudHandler] 输出云日志兼容 JSON，开发模式 [PrettyHandler] 输出彩色单行
//   - 每条 JSON 记录携带单调递增的 insertId，同一毫秒内的记录也能排序
//   - 动态级别调整（运行时热更新）
//   - 全局 Logger 便利函数
//
// # 创建 Logger
//
//	logger, cleanup, err := xlog.New().
//		SetMode(xenv.Production).
//		SetLevelString("debug").
//		Build()
//	if err != nil {
//		return err
//	}
//	defer cleanup()
//
// # 载荷形式
//
// 每个级别方法接受：
//
//	logger.Warn(ctx, "retrying", xlog.Payload(xlog.Fields{"count": 3})) // 结构化字段 + 消息
//	logger.Error(ctx, "", xlog.Err(err))                                // 错误，消息取错误文本
//	logger.Info(ctx, "started")                                         // 纯消息
//
// [Logger.Child] 返回绑定字段的派生 Logger，父 Logger 不受影响。
//
// # 错误处理
//
// 每次调用恰好写出一次或返回错误。字段值无法序列化（如 channel、NaN）或
// LogValue panic 时返回包装了 [ErrEncode] 的错误，记录不写出，也不会 panic。
// 错误同时计数并通知 SetOnError 回调。
//
// 机器模式下 message、severity、timestamp 和 logging.googleapis.com/* 是保留 key，
// 同名的顶层调用方字段输出为 attr.<key>。
//
// # 日志级别
//
// LevelTrace(-8)、LevelDebug(-4)、LevelInfo(0)、LevelWarn(4)、LevelError(8)、LevelFatal(12)。
// [Severity] 将级别映射为 DEBUG/INFO/WARNING/ERROR/CRITICAL，未知级别按 INFO 处理。
// Fatal 只记录，不退出进程。
//
// # 全局 Logger
//
//   - [Default]: 获取全局 Logger（惰性初始化）
//   - [SetDefault]: 替换全局 Logger（nil 会被忽略）
//   - [ResetDefault]: 重置为未初始化状态（仅用于测试）
//   - [Trace]、[Debug]、[Info]、[Warn]、[Error]、[Fatal]: 全局便利函数
package xlog
