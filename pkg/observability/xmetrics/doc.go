// Package xmetrics 记录操作的次数与耗时，基于 OpenTelemetry metrics API。
//
//	obs, _ := xmetrics.NewOTelObserver()
//	o := obs.Start(ctx, xmetrics.Options{Component: "taskqueue", Operation: "deliver"})
//	err := deliver(ctx)
//	o.End(xmetrics.Result{Err: err})
//
// 指标：
//   - tasks.operation.total    计数
//   - tasks.operation.duration 耗时直方图，单位秒
//
// 公共属性为 component、operation、status，Options.Attrs 与 Result.Attrs 追加在其后。
// 未安装 MeterProvider 时使用全局 provider（默认 noop）。
package xmetrics
