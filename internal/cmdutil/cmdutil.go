package cmdutil

import (
	"context"
	"fmt"
	"os"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/go-redis/redis/extra/redisotel/v8"
	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.uber.org/zap"
)

const serviceName = "livestreams"

func NewLogger(debug bool) *zap.Logger {
	logger, _ := zap.NewProduction()
	if debug || os.Getenv("ENV") == "" {
		logger, _ = zap.NewDevelopment()
	}

	return logger
}

// NewStatsdClient falls back to a no-op client when STATSD_URL is unset.
func NewStatsdClient(tags ...string) (statsd.ClientInterface, error) {
	if env := os.Getenv("ENV"); env != "" {
		tags = append(tags, fmt.Sprintf("env:%s", env))
	}

	addr := os.Getenv("STATSD_URL")
	if addr == "" {
		return &statsd.NoOpClient{}, nil
	}

	return statsd.New(addr, statsd.WithTags(tags), statsd.WithNamespace(serviceName+"."))
}

func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opt.PoolSize = 4

	client := redis.NewClient(opt)
	client.AddHook(redisotel.NewTracingHook())

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// NewTracerProvider installs an OTLP/HTTP exporter as the global tracer
// provider. Without OTEL_EXPORTER_OTLP_ENDPOINT the global no-op provider is
// left in place and the returned shutdown does nothing.
func NewTracerProvider(ctx context.Context) (func(context.Context) error, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.DeploymentEnvironmentKey.String(os.Getenv("ENV")),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}
