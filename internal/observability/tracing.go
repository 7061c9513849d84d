package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/PaulBabatuyi/filesync"

// InitTracerProvider initializes OpenTelemetry tracing. With export enabled
// spans are pretty-printed to stdout; otherwise they are recorded and dropped.
func InitTracerProvider(logger *zap.Logger, export bool) (*trace.TracerProvider, error) {
	var opts []trace.TracerProviderOption
	if export {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			logger.Error("failed to create trace exporter", zap.Error(err))
			return nil, err
		}
		opts = append(opts, trace.WithBatcher(exporter))
	}

	tp := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// ShutdownTracerProvider flushes and stops the tracer provider.
func ShutdownTracerProvider(ctx context.Context, tp *trace.TracerProvider, logger *zap.Logger) {
	if err := tp.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown tracer provider", zap.Error(err))
	}
}

// Tracer returns the service tracer from tp.
func Tracer(tp oteltrace.TracerProvider) oteltrace.Tracer {
	return tp.Tracer(instrumentationName)
}
