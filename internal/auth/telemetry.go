package auth

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const library_name = "scrapebridge.auth"

var tracer = otel.Tracer(library_name)

// attemptCounterErr is reported by every new orchestrator.
var attemptCounter, attemptCounterErr = otel.Meter(library_name).Int64Counter(
	"auth.attempts",
	metric.WithDescription("authentication attempts by path and outcome"),
)

func SetTracerProvider(provider trace.TracerProvider) {
	tracer = provider.Tracer(library_name)
}
