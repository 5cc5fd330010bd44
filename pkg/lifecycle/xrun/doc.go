// Package xrun 管理服务进程内多个长期运行组件的生命周期，基于 errgroup。
//
// 任一组件返回错误或收到终止信号时，共享 context 被取消，其余组件据此退出；
// [Group.Wait] 返回第一个错误（信号终止时返回 [*SignalError]）。
//
//	err := xrun.Run(ctx, []xrun.Option{xrun.WithLogger(logger)},
//	    xrun.Service{Name: "http", Run: xrun.HTTPServer(srv, 10*time.Second)},
//	    xrun.Service{Name: "grpc", Run: xrun.GRPCServer(gs, lis, 10*time.Second)},
//	)
//	if errors.Is(err, xrun.ErrSignal) {
//	    // 正常关闭
//	}
package xrun
