package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// setupTracing 安装全局 TracerProvider 和 W3C 传播器。
//
// otelhttp/grpc 入口据此创建活跃 span，xtrace.Resolver 优先采用活跃 span 的身份。
// 返回的 shutdown 刷新并关闭导出器。exporter 为 none 时仍安装 provider（只是不导出），
// 保证 span 身份照常生成。
func setupTracing(ctx context.Context, s Settings, stdout io.Writer) (func(context.Context) error, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(serviceResource(s)),
	}

	switch s.exporter() {
	case exporterOTLP:
		clientOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(s.OTel.Endpoint)}
		if s.OTel.Insecure {
			clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("tasksvc: otlp exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	case exporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(stdout))
		if err != nil {
			return nil, fmt.Errorf("tasksvc: stdout exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}

// setupMetrics 使用 otlp 导出器时安装全局 MeterProvider，按 interval 推送；
// 其他导出器下保持 noop provider，xmetrics 的记录被丢弃。
func setupMetrics(ctx context.Context, s Settings, interval time.Duration) (func(context.Context) error, error) {
	if s.exporter() != exporterOTLP {
		return func(context.Context) error { return nil }, nil
	}
	clientOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(s.OTel.Endpoint)}
	if s.OTel.Insecure {
		clientOpts = append(clientOpts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("tasksvc: otlp metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(serviceResource(s)),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(mp)
	return mp.Shutdown, nil
}

func serviceResource(s Settings) *resource.Resource {
	return resource.NewSchemaless(
		attribute.String("service.name", s.OTel.ServiceName),
		attribute.String("service.version", Version),
	)
}
