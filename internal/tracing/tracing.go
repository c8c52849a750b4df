// Package tracing wraps the agent turn engine's pipeline stages in
// OpenTelemetry spans.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/omegaflow/agentcore/internal/agent"

// Tracer returns the package-scoped tracer used for turn-engine spans.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartStage opens a span named "turn.<stage>" for one pipeline phase of
// the agent turn engine (prompt assembly, model round-trip, tool dispatch).
func StartStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "turn."+stage)
}
