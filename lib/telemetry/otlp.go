package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// exporterDialTimeout bounds the initial OTLP endpoint handshake so a
// dead collector cannot stall a scrape run's startup.
const exporterDialTimeout = time.Second * 3

const metricExportInterval = time.Second * 5

// endpoint describes one OTLP destination. When both endpoints are set
// grpc wins.
type endpoint struct {
	GrpcEndpoint string            `json:"grpc_endpoint"`
	HttpEndpoint string            `json:"http_endpoint"`
	Headers      map[string]string `json:"headers"`
}

func (e endpoint) protocol() string {
	if e.GrpcEndpoint != "" {
		return "grpc"
	}
	return "http"
}

func (e endpoint) url() string {
	if e.GrpcEndpoint != "" {
		return e.GrpcEndpoint
	}
	return e.HttpEndpoint
}

func (e endpoint) log(signal string) {
	slog.Info(
		"otlp exporter initialized",
		"signal", signal,
		"protocol", e.protocol(),
		"endpoint", e.url(),
		"headers", len(e.Headers) > 0,
	)
}

type otlpConfig struct {
	Traces  endpoint `json:"traces"`
	Metrics endpoint `json:"metrics"`
}

type config struct {
	Otlp otlpConfig `json:"otlp"`
}

func newResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
}

func newTraceProvider(ctx context.Context, r *resource.Resource, config config) (*trace.TracerProvider, error) {
	ctx, cancel := context.WithTimeout(ctx, exporterDialTimeout)
	defer cancel()

	ep := config.Otlp.Traces
	ep.log("traces")

	var exporter trace.SpanExporter
	var err error
	if ep.GrpcEndpoint != "" {
		exporter, err = otlptracegrpc.New(
			ctx,
			otlptracegrpc.WithEndpointURL(ep.GrpcEndpoint),
			otlptracegrpc.WithHeaders(ep.Headers),
		)
	} else {
		exporter, err = otlptracehttp.New(
			ctx,
			otlptracehttp.WithEndpointURL(ep.HttpEndpoint),
			otlptracehttp.WithHeaders(ep.Headers),
		)
	}
	if err != nil {
		return nil, err
	}

	return trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(r),
	), nil
}

func newMetricProvider(ctx context.Context, r *resource.Resource, config config) (*metric.MeterProvider, error) {
	ctx, cancel := context.WithTimeout(ctx, exporterDialTimeout)
	defer cancel()

	ep := config.Otlp.Metrics
	ep.log("metrics")

	var exporter metric.Exporter
	var err error
	if ep.GrpcEndpoint != "" {
		exporter, err = otlpmetricgrpc.New(
			ctx,
			otlpmetricgrpc.WithEndpointURL(ep.GrpcEndpoint),
			otlpmetricgrpc.WithHeaders(ep.Headers),
		)
	} else {
		exporter, err = otlpmetrichttp.New(
			ctx,
			otlpmetrichttp.WithEndpointURL(ep.HttpEndpoint),
			otlpmetrichttp.WithHeaders(ep.Headers),
		)
	}
	if err != nil {
		return nil, err
	}

	return metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(
			exporter,
			metric.WithInterval(metricExportInterval),
		)),
		metric.WithResource(r),
	), nil
}
