package logging

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	// L is the shared structured logger used across the project.
	L    *zap.Logger
	once sync.Once
)

func init() {
	Init()
}

// Init builds the global logger if it has not been constructed yet.
// It uses zap's production configuration for consistent structured output.
func Init() {
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.Sampling = nil
		logger, err := cfg.Build()
		if err != nil {
			panic(err)
		}
		L = logger
	})
}

// WithTrace returns L enriched with the trace and span IDs from ctx, so log
// lines can be correlated with exported spans. Returns L unchanged when ctx
// carries no recording span.
func WithTrace(ctx context.Context) *zap.Logger {
	span := trace.SpanContextFromContext(ctx)
	if !span.IsValid() {
		return L
	}
	return L.With(
		zap.String("trace_id", span.TraceID().String()),
		zap.String("span_id", span.SpanID().String()),
	)
}
