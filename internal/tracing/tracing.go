// Package tracing wires a bare go.opentelemetry.io/otel SDK tracer provider
// with no span processor registered — spans are created with real
// trace/span ids (for correlation in AuditRecord, §3) but never exported
// anywhere, keeping this spec's Non-goal on inbound HTTP APIs intact while
// still exercising the tracing API the teacher depends on (§2b).
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/nextlevelbuilder/omegagate"

var tracer = otel.Tracer(instrumentationName)

// Init installs a tracer provider with no exporter and returns its shutdown
// function, called once at gateway startup.
func Init() func(context.Context) error {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer(instrumentationName)
	return tp.Shutdown
}

// StartSpan opens a span for one pipeline invocation (§4.1 step 1, closed at
// step 11) or background-loop cycle.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// IDs extracts the hex-encoded trace and span ids for AuditRecord.
func IDs(span trace.Span) (traceID, spanID string) {
	sc := span.SpanContext()
	return sc.TraceID().String(), sc.SpanID().String()
}
