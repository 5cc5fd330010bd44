package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/lidz/tasks/internal/taskqueue"
	"github.com/lidz/tasks/pkg/config/xconf"
	"github.com/lidz/tasks/pkg/lifecycle/xrun"
	"github.com/lidz/tasks/pkg/observability/xlog"
	"github.com/lidz/tasks/pkg/observability/xmetrics"
	"github.com/lidz/tasks/pkg/observability/xrotate"
	"github.com/lidz/tasks/pkg/observability/xtrace"
	"github.com/lidz/tasks/pkg/resilience/xbreaker"
	"github.com/lidz/tasks/pkg/resilience/xlimit"
)

const (
	readHeaderTimeout = 10 * time.Second
	metricsInterval   = 30 * time.Second
)

// buildLogger 按配置构建 logger，返回关闭日志文件的 cleanup
func buildLogger(s Settings, stdout io.Writer) (xlog.LoggerWithLevel, func() error, error) {
	b := xlog.New().
		SetOutput(stdout).
		SetModeString(s.Log.Mode).
		SetLevelString(s.Log.Level)
	if s.Log.File != "" {
		b.SetRotation(s.Log.File,
			xrotate.WithMaxSize(s.Log.MaxSizeMB),
			xrotate.WithMaxBackups(s.Log.MaxBackups),
			xrotate.WithMaxAge(s.Log.MaxAgeDays),
			xrotate.WithCompress(s.Log.Compress),
		)
	}
	return b.Build()
}

// openRedis 连接 Redis；地址为空时启动进程内 miniredis，返回的 cleanup 关闭两者
func openRedis(s RedisSettings, logger xlog.Logger) (*redis.Client, func(), error) {
	addr := s.Addr
	var embedded *miniredis.Miniredis
	if addr == "" {
		embedded = miniredis.NewMiniRedis()
		if err := embedded.Start(); err != nil {
			return nil, nil, fmt.Errorf("tasksvc: start embedded redis: %w", err)
		}
		addr = embedded.Addr()
		_ = logger.Warn(context.Background(), "redis.addr not configured, using in-process redis; queued tasks are lost on exit")
	}

	client := redis.NewClient(&redis.Options{Addr: addr, Password: s.Password, DB: s.DB})
	return client, func() {
		_ = client.Close()
		if embedded != nil {
			embedded.Close()
		}
	}, nil
}

// newHTTPHandler 组装路由：otelhttp 在最外层创建活跃 span，xtrace 随后解析并绑定身份。
// limiter 非空时只对提交任务的接口限流。
func newHTTPHandler(h *taskqueue.Handler, resolver *xtrace.Resolver, serviceName string,
	limiter xlimit.Limiter, logger xlog.Logger) http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	var next http.Handler = mux
	if limiter != nil {
		next = xlimit.HTTPMiddleware(limiter,
			xlimit.WithSkipFunc(func(r *http.Request) bool { return r.URL.Path != taskqueue.PathHandleTask }),
			xlimit.WithLogger(logger),
		)(mux)
	}
	return otelhttp.NewHandler(xtrace.HTTPMiddleware(resolver)(next), serviceName)
}

// newLocker 按配置选择接收处理锁
func newLocker(s QueueSettings, client redis.UniversalClient) (taskqueue.Locker, error) {
	if strings.EqualFold(s.Locker, lockerLocal) {
		return taskqueue.NewLocalLocker(), nil
	}
	return taskqueue.NewRedisLocker(client, s.LockExpiry)
}

// newGRPCServer 带追踪拦截器和健康检查的 gRPC 服务
func newGRPCServer(resolver *xtrace.Resolver) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(xtrace.GRPCUnaryServerInterceptor(resolver)),
		grpc.ChainStreamInterceptor(xtrace.GRPCStreamServerInterceptor(resolver)),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return srv, hs
}

// serve 启动全部组件，阻塞到收到信号或任一组件失败
func serve(ctx context.Context, cfg *xconf.Config, s Settings) error {
	logger, closeLog, err := buildLogger(s, os.Stdout)
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidSettings, err)
	}
	defer func() { _ = closeLog() }()
	xlog.SetDefault(logger)

	shutdownTracing, err := setupTracing(ctx, s, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			_ = logger.Warn(sctx, "shutdown tracing", xlog.Err(err))
		}
	}()

	shutdownMetrics, err := setupMetrics(ctx, s, metricsInterval)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownMetrics(sctx); err != nil {
			_ = logger.Warn(sctx, "shutdown metrics", xlog.Err(err))
		}
	}()

	resolver := xtrace.NewResolver(
		xtrace.WithProjectID(s.Trace.ProjectID),
		xtrace.WithEnabled(s.Trace.Enabled),
		xtrace.WithLogger(logger),
	)

	client, closeRedis, err := openRedis(s.Redis, logger)
	if err != nil {
		return err
	}
	defer closeRedis()

	services, err := buildServices(s, cfg, logger, resolver, client)
	if err != nil {
		return err
	}
	_ = logger.Info(ctx, "tasksvc starting", xlog.Payload(xlog.Fields{
		"httpAddr": s.Server.HTTPAddr,
		"grpcAddr": s.Server.GRPCAddr,
		"mode":     s.Log.Mode,
	}))
	return xrun.Run(ctx, []xrun.Option{xrun.WithLogger(logger)}, services...)
}

// buildServices 创建队列、处理器与服务器，返回交给 xrun 运行的组件
func buildServices(s Settings, cfg *xconf.Config, logger xlog.LoggerWithLevel,
	resolver *xtrace.Resolver, client *redis.Client) ([]xrun.Service, error) {
	queue, err := taskqueue.NewRedisQueue(client,
		taskqueue.WithQueueKey(s.Queue.Key),
		taskqueue.WithDedupWindow(s.Queue.DedupWindow),
		taskqueue.WithQueueLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	store, err := taskqueue.NewRedisStore(client, s.Queue.ProcessedTTL)
	if err != nil {
		return nil, err
	}
	locker, err := newLocker(s.Queue, client)
	if err != nil {
		return nil, err
	}
	observer, err := xmetrics.NewOTelObserver()
	if err != nil {
		return nil, err
	}
	handler, err := taskqueue.NewHandler(queue, store,
		taskqueue.WithLocker(locker),
		taskqueue.WithHandlerObserver(observer),
		taskqueue.WithHandlerLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	var limiter xlimit.Limiter
	if s.Server.RateLimit > 0 {
		if limiter, err = xlimit.NewRedis(client, xlimit.PerMinute(s.Server.RateLimit)); err != nil {
			return nil, err
		}
	}

	httpSrv := &http.Server{
		Addr:              s.Server.HTTPAddr,
		Handler:           newHTTPHandler(handler, resolver, s.OTel.ServiceName, limiter, logger),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	services := []xrun.Service{
		{Name: "http", Run: xrun.HTTPServer(httpSrv, s.Server.ShutdownTimeout)},
	}

	if s.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", s.Server.GRPCAddr)
		if err != nil {
			return nil, fmt.Errorf("tasksvc: listen grpc: %w", err)
		}
		grpcSrv, _ := newGRPCServer(resolver)
		services = append(services, xrun.Service{Name: "grpc", Run: xrun.GRPCServer(grpcSrv, lis, s.Server.ShutdownTimeout)})
	}

	if s.Queue.Dispatch {
		opts := []taskqueue.DispatcherOption{
			taskqueue.WithDispatchQueueKey(s.Queue.Key),
			taskqueue.WithResolver(resolver),
			taskqueue.WithDispatcherLogger(logger),
			taskqueue.WithDispatcherObserver(observer),
			taskqueue.WithHTTPClient(&http.Client{
				Timeout:   taskqueue.DefaultDeliveryTimeout,
				Transport: otelhttp.NewTransport(http.DefaultTransport),
			}),
		}
		if b := s.Queue.Breaker; b.Failures > 0 {
			opts = append(opts, taskqueue.WithBreaker(
				xbreaker.WithTripPolicy(xbreaker.NewConsecutiveFailures(b.Failures)),
				xbreaker.WithTimeout(b.Timeout),
				xbreaker.WithOnStateChange(func(name string, from, to xbreaker.State) {
					_ = logger.Warn(context.Background(), "delivery breaker state changed", xlog.Payload(xlog.Fields{
						"host": name, "from": from.String(), "to": to.String(),
					}))
				}),
			))
		}
		dispatcher, err := taskqueue.NewDispatcher(client, opts...)
		if err != nil {
			return nil, err
		}
		services = append(services, xrun.Service{Name: "dispatcher", Run: dispatcher.Run})
	}

	if cfg.Path() != "" {
		services = append(services, xrun.Service{Name: "config-watch", Run: func(ctx context.Context) error {
			return cfg.Watch(ctx, reloadLogLevel(logger))
		}})
	}
	return services, nil
}

// reloadLogLevel 配置文件变更时更新日志级别
func reloadLogLevel(logger xlog.LoggerWithLevel) xconf.ChangeFunc {
	return func(cfg *xconf.Config, err error) {
		ctx := context.Background()
		if err != nil {
			_ = logger.Warn(ctx, "config reload failed, keeping previous settings", xlog.Err(err))
			return
		}
		raw := cfg.Client().String("log.level")
		level, err := xlog.ParseLevel(raw)
		if err != nil {
			_ = logger.Warn(ctx, "ignoring invalid log.level", xlog.Err(err))
			return
		}
		if level == logger.GetLevel() {
			return
		}
		logger.SetLevel(level)
		_ = logger.Info(ctx, "log level changed", xlog.Payload(xlog.Fields{"level": level.String()}))
	}
}
