package xmetrics

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	defaultInstrumentationName = "github.com/lidz/tasks/xmetrics"
	unknown                    = "unknown"

	MetricOperationTotal    = "tasks.operation.total"
	MetricOperationDuration = "tasks.operation.duration"
)

// Status 操作结果
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Attr 指标属性
type Attr struct {
	Key   string
	Value any
}

// String 字符串属性
func String(key, value string) Attr { return Attr{Key: key, Value: value} }

// Bool 布尔属性
func Bool(key string, value bool) Attr { return Attr{Key: key, Value: value} }

// Int 整数属性
func Int(key string, value int) Attr { return Attr{Key: key, Value: value} }

// Options 一次操作的标识
type Options struct {
	Component string
	Operation string
	Attrs     []Attr
}

// Result 操作结果。Status 为空时按 Err 推断。
type Result struct {
	Status Status
	Err    error
	Attrs  []Attr
}

// Observation 进行中的一次操作
type Observation interface {
	// End 记录结果，多次调用只记录第一次
	End(result Result)
}

// Observer 开始一次操作的观测
type Observer interface {
	Start(ctx context.Context, opts Options) Observation
}

// NoopObserver 不记录任何指标
type NoopObserver struct{}

// Start 实现 Observer
func (NoopObserver) Start(context.Context, Options) Observation { return noopObservation{} }

type noopObservation struct{}

func (noopObservation) End(Result) {}

// =============================================================================
// OpenTelemetry 实现
// =============================================================================

// Option OTel Observer 选项
type Option func(*otelConfig)

type otelConfig struct {
	name     string
	provider metric.MeterProvider
}

// WithInstrumentationName Meter 名称
func WithInstrumentationName(name string) Option {
	return func(c *otelConfig) {
		if name != "" {
			c.name = name
		}
	}
}

// WithMeterProvider MeterProvider，默认 otel.GetMeterProvider()
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(c *otelConfig) {
		if p != nil {
			c.provider = p
		}
	}
}

type otelObserver struct {
	total    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewOTelObserver 创建基于 OTel metrics 的 Observer
func NewOTelObserver(opts ...Option) (Observer, error) {
	cfg := otelConfig{name: defaultInstrumentationName, provider: otel.GetMeterProvider()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	meter := cfg.provider.Meter(cfg.name)

	total, err := meter.Int64Counter(MetricOperationTotal,
		metric.WithDescription("total operations"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("xmetrics: create counter: %w", err)
	}
	duration, err := meter.Float64Histogram(MetricOperationDuration,
		metric.WithDescription("operation duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("xmetrics: create histogram: %w", err)
	}
	return &otelObserver{total: total, duration: duration}, nil
}

func (o *otelObserver) Start(ctx context.Context, opts Options) Observation {
	if ctx == nil {
		ctx = context.Background()
	}
	return &otelObservation{
		o:     o,
		ctx:   context.WithoutCancel(ctx),
		opts:  opts,
		start: time.Now(),
	}
}

type otelObservation struct {
	o     *otelObserver
	ctx   context.Context
	opts  Options
	start time.Time
	once  sync.Once
}

func (s *otelObservation) End(result Result) {
	s.once.Do(func() {
		status := result.Status
		if status == "" {
			status = StatusOK
			if result.Err != nil {
				status = StatusError
			}
		}
		attrs := make([]attribute.KeyValue, 0, 3+len(s.opts.Attrs)+len(result.Attrs))
		attrs = append(attrs,
			attribute.String("component", orUnknown(s.opts.Component)),
			attribute.String("operation", orUnknown(s.opts.Operation)),
			attribute.String("status", string(status)),
		)
		attrs = appendAttrs(attrs, s.opts.Attrs)
		attrs = appendAttrs(attrs, result.Attrs)

		set := metric.WithAttributes(attrs...)
		s.o.total.Add(s.ctx, 1, set)
		s.o.duration.Record(s.ctx, time.Since(s.start).Seconds(), set)
	})
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

func appendAttrs(dst []attribute.KeyValue, attrs []Attr) []attribute.KeyValue {
	for _, a := range attrs {
		if a.Key == "" || a.Value == nil {
			continue
		}
		dst = append(dst, toKeyValue(a))
	}
	return dst
}

func toKeyValue(a Attr) attribute.KeyValue {
	switch v := a.Value.(type) {
	case string:
		return attribute.String(a.Key, v)
	case bool:
		return attribute.Bool(a.Key, v)
	case int:
		return attribute.Int(a.Key, v)
	case int64:
		return attribute.Int64(a.Key, v)
	case uint64:
		if v <= math.MaxInt64 {
			return attribute.Int64(a.Key, int64(v))
		}
		return attribute.String(a.Key, fmt.Sprint(v))
	case float64:
		return attribute.Float64(a.Key, v)
	case time.Duration:
		return attribute.Int64(a.Key, v.Nanoseconds())
	default:
		return attribute.String(a.Key, fmt.Sprint(v))
	}
}
