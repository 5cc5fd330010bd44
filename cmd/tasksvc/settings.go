package main

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/lidz/tasks/pkg/config/xconf"
	"github.com/lidz/tasks/pkg/context/xenv"
	"github.com/lidz/tasks/pkg/observability/xlog"
)

// Settings 服务配置，来源优先级：命令行/环境变量 > 配置文件 > 默认值
type Settings struct {
	Log    LogSettings    `koanf:"log"`
	Trace  TraceSettings  `koanf:"trace"`
	Server ServerSettings `koanf:"server"`
	Redis  RedisSettings  `koanf:"redis"`
	Queue  QueueSettings  `koanf:"queue"`
	OTel   OTelSettings   `koanf:"otel"`
}

// LogSettings 日志
type LogSettings struct {
	Level      string `koanf:"level"`
	Mode       string `koanf:"mode"` // production 输出 JSON，development 输出彩色文本
	File       string `koanf:"file"` // 为空时输出到 stdout
	MaxSizeMB  int    `koanf:"maxSizeMB"`
	MaxBackups int    `koanf:"maxBackups"`
	MaxAgeDays int    `koanf:"maxAgeDays"`
	Compress   bool   `koanf:"compress"`
}

// TraceSettings 追踪身份解析
type TraceSettings struct {
	ProjectID string `koanf:"projectId"`
	Enabled   bool   `koanf:"enabled"`
}

// ServerSettings 监听地址
type ServerSettings struct {
	HTTPAddr        string        `koanf:"httpAddr"`
	GRPCAddr        string        `koanf:"grpcAddr"` // 为空时不启动 gRPC
	ShutdownTimeout time.Duration `koanf:"shutdownTimeout"`
	RateLimit       int           `koanf:"rateLimit"` // 每个客户端 IP 每分钟可提交的任务数，0 不限流
}

// RedisSettings 为空地址时启动进程内 Redis（仅用于本地运行）
type RedisSettings struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

// QueueSettings 任务队列
type QueueSettings struct {
	Key          string          `koanf:"key"`
	DedupWindow  time.Duration   `koanf:"dedupWindow"`
	ProcessedTTL time.Duration   `koanf:"processedTTL"`
	Dispatch     bool            `koanf:"dispatch"` // 是否在本进程运行 Dispatcher
	Locker       string          `koanf:"locker"`   // local | redis
	LockExpiry   time.Duration   `koanf:"lockExpiry"`
	Breaker      BreakerSettings `koanf:"breaker"`
}

// BreakerSettings 投递目标按主机熔断，Failures 为 0 时不熔断
type BreakerSettings struct {
	Failures uint32        `koanf:"failures"`
	Timeout  time.Duration `koanf:"timeout"`
}

// OTelSettings OpenTelemetry 导出
type OTelSettings struct {
	ServiceName string `koanf:"serviceName"`
	Exporter    string `koanf:"exporter"` // otlp | stdout | none，为空时按模式选择
	Endpoint    string `koanf:"endpoint"`
	Insecure    bool   `koanf:"insecure"`
}

// 导出器
const (
	exporterOTLP   = "otlp"
	exporterStdout = "stdout"
	exporterNone   = "none"
)

// 接收处理锁
const (
	lockerLocal = "local"
	lockerRedis = "redis"
)

var errInvalidSettings = errors.New("tasksvc: invalid settings")

func defaultSettings() map[string]any {
	return map[string]any{
		"log.level":              "info",
		"log.mode":               string(xenv.Detect()),
		"log.maxSizeMB":          100,
		"log.maxBackups":         5,
		"log.maxAgeDays":         30,
		"log.compress":           true,
		"trace.enabled":          true,
		"server.httpAddr":        ":8080",
		"server.shutdownTimeout": "10s",
		"server.rateLimit":       600,
		"queue.key":              "tasks:queue",
		"queue.dedupWindow":      "1h",
		"queue.processedTTL":     "24h",
		"queue.dispatch":         true,
		"queue.locker":           lockerRedis,
		"queue.lockExpiry":       "30s",
		"queue.breaker.failures": 5,
		"queue.breaker.timeout":  "1m",
		"otel.serviceName":       "tasksvc",
	}
}

// loadSettings 加载配置文件（可为空）并合并默认值
func loadSettings(path string) (*xconf.Config, Settings, error) {
	cfg, err := xconf.Load(path, xconf.WithDefaults(defaultSettings()))
	if err != nil {
		return nil, Settings{}, err
	}
	var s Settings
	if err := cfg.Unmarshal("", &s); err != nil {
		return nil, Settings{}, err
	}
	return cfg, s, nil
}

// Validate 检查取值范围
func (s Settings) Validate() error {
	if _, err := xlog.ParseLevel(s.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", errInvalidSettings, err)
	}
	if _, err := xenv.Parse(s.Log.Mode); err != nil {
		return fmt.Errorf("%w: log.mode: %w", errInvalidSettings, err)
	}
	if _, _, err := net.SplitHostPort(s.Server.HTTPAddr); err != nil {
		return fmt.Errorf("%w: server.httpAddr: %w", errInvalidSettings, err)
	}
	if s.Server.GRPCAddr != "" {
		if _, _, err := net.SplitHostPort(s.Server.GRPCAddr); err != nil {
			return fmt.Errorf("%w: server.grpcAddr: %w", errInvalidSettings, err)
		}
	}
	if s.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: server.shutdownTimeout must be positive", errInvalidSettings)
	}
	if s.Server.RateLimit < 0 {
		return fmt.Errorf("%w: server.rateLimit must not be negative", errInvalidSettings)
	}
	if s.Queue.Key == "" {
		return fmt.Errorf("%w: queue.key is required", errInvalidSettings)
	}
	switch strings.ToLower(s.Queue.Locker) {
	case lockerLocal, lockerRedis:
	default:
		return fmt.Errorf("%w: queue.locker %q", errInvalidSettings, s.Queue.Locker)
	}
	switch strings.ToLower(s.OTel.Exporter) {
	case "", exporterOTLP, exporterStdout, exporterNone:
	default:
		return fmt.Errorf("%w: otel.exporter %q", errInvalidSettings, s.OTel.Exporter)
	}
	if strings.EqualFold(s.OTel.Exporter, exporterOTLP) && s.OTel.Endpoint == "" {
		return fmt.Errorf("%w: otel.endpoint is required for the otlp exporter", errInvalidSettings)
	}
	return nil
}

// exporter 返回实际使用的导出器：未指定时生产模式有 endpoint 用 otlp，开发模式用 stdout
func (s Settings) exporter() string {
	if e := strings.ToLower(s.OTel.Exporter); e != "" {
		return e
	}
	if m, _ := xenv.Parse(s.Log.Mode); m == xenv.Production {
		if s.OTel.Endpoint != "" {
			return exporterOTLP
		}
		return exporterNone
	}
	return exporterStdout
}
