// tasksvc 任务投递服务。
//
// 用法:
//
//	tasksvc [选项]
//
// 选项均可通过环境变量设置，也可以写入 --config 指定的 YAML/JSON 文件：
//
//	--config         配置文件路径（APP_CONFIG）
//	--mode           production | development（APP_ENV）
//	--log-level      日志级别（LOG_LEVEL）
//	--log-file       日志文件，按大小轮转（LOG_FILE）
//	--project-id     trace 引用使用的项目 ID（GOOGLE_CLOUD_PROJECT）
//	--port           HTTP 端口（PORT），覆盖 server.httpAddr
//	--grpc-addr      gRPC 监听地址（GRPC_ADDR）
//	--redis-addr     Redis 地址（REDIS_ADDR），为空时使用进程内 Redis
//	--otel-endpoint  OTLP gRPC 端点（OTEL_EXPORTER_OTLP_ENDPOINT）
//
// 配置文件变更时自动重新加载 log.level。
//
// 退出码:
//
//	0: 正常退出（包括收到 SIGINT/SIGTERM）
//	1: 运行失败
//	2: 配置错误
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/lidz/tasks/pkg/config/xconf"
	"github.com/lidz/tasks/pkg/lifecycle/xrun"
)

// 版本信息，通过 -ldflags "-X main.Version=..." 注入
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
)

// serveFunc 运行服务，测试中替换为只记录配置的实现
type serveFunc func(ctx context.Context, cfg *xconf.Config, s Settings) error

func main() {
	os.Exit(run(context.Background(), os.Args, serve))
}

func run(ctx context.Context, args []string, fn serveFunc) int {
	if err := createApp(fn).Run(ctx, args); err != nil {
		if errors.Is(err, errInvalidSettings) || errors.Is(err, xconf.ErrParseFailed) ||
			errors.Is(err, xconf.ErrLoadFailed) || errors.Is(err, xconf.ErrUnsupportedFormat) ||
			errors.Is(err, xconf.ErrUnmarshalFailed) {
			fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
			return 2
		}
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		return 1
	}
	return 0
}

// createApp 创建 CLI 应用
func createApp(fn serveFunc) *cli.Command {
	return &cli.Command{
		Name:    "tasksvc",
		Usage:   "任务投递服务：接收任务、入队、回调、幂等处理",
		Version: fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "配置文件路径（.yaml/.yml/.json）", Sources: cli.EnvVars("APP_CONFIG")},
			&cli.StringFlag{Name: "mode", Usage: "运行模式 production|development", Sources: cli.EnvVars("APP_ENV")},
			&cli.StringFlag{Name: "log-level", Usage: "日志级别 trace|debug|info|warn|error|fatal", Sources: cli.EnvVars("LOG_LEVEL")},
			&cli.StringFlag{Name: "log-file", Usage: "日志文件路径", Sources: cli.EnvVars("LOG_FILE")},
			&cli.StringFlag{Name: "project-id", Usage: "trace 引用使用的项目 ID", Sources: cli.EnvVars("GOOGLE_CLOUD_PROJECT", "PROJECT_ID")},
			&cli.BoolFlag{Name: "trace-enabled", Usage: "是否解析请求追踪身份", Sources: cli.EnvVars("TRACE_ENABLED")},
			&cli.IntFlag{Name: "port", Usage: "HTTP 端口", Sources: cli.EnvVars("PORT")},
			&cli.StringFlag{Name: "grpc-addr", Usage: "gRPC 监听地址，为空不启动", Sources: cli.EnvVars("GRPC_ADDR")},
			&cli.StringFlag{Name: "redis-addr", Usage: "Redis 地址，为空时使用进程内 Redis", Sources: cli.EnvVars("REDIS_ADDR")},
			&cli.StringFlag{Name: "otel-endpoint", Usage: "OTLP gRPC 端点", Sources: cli.EnvVars("OTEL_EXPORTER_OTLP_ENDPOINT")},
			&cli.StringFlag{Name: "otel-service-name", Usage: "OpenTelemetry 服务名", Sources: cli.EnvVars("OTEL_SERVICE_NAME")},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, s, err := loadSettings(cmd.String("config"))
			if err != nil {
				return err
			}
			applyFlags(cmd, &s)
			if err := s.Validate(); err != nil {
				return err
			}

			err = fn(ctx, cfg, s)
			var sig *xrun.SignalError
			if errors.As(err, &sig) {
				return nil
			}
			return err
		},
	}
}

// applyFlags 显式设置的命令行参数/环境变量覆盖配置文件
func applyFlags(cmd *cli.Command, s *Settings) {
	if cmd.IsSet("mode") {
		s.Log.Mode = cmd.String("mode")
	}
	if cmd.IsSet("log-level") {
		s.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-file") {
		s.Log.File = cmd.String("log-file")
	}
	if cmd.IsSet("project-id") {
		s.Trace.ProjectID = cmd.String("project-id")
	}
	if cmd.IsSet("trace-enabled") {
		s.Trace.Enabled = cmd.Bool("trace-enabled")
	}
	if cmd.IsSet("port") {
		s.Server.HTTPAddr = ":" + strconv.FormatInt(int64(cmd.Int("port")), 10)
	}
	if cmd.IsSet("grpc-addr") {
		s.Server.GRPCAddr = cmd.String("grpc-addr")
	}
	if cmd.IsSet("redis-addr") {
		s.Redis.Addr = cmd.String("redis-addr")
	}
	if cmd.IsSet("otel-endpoint") {
		s.OTel.Endpoint = cmd.String("otel-endpoint")
	}
	if cmd.IsSet("otel-service-name") {
		s.OTel.ServiceName = cmd.String("otel-service-name")
	}
}
