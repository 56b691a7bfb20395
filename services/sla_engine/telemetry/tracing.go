// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan creates a new span from the context using the global tracer.
//
// Description:
//
//	Convenience wrapper that uses otel.Tracer() to create spans without
//	explicitly managing tracer instances. Uses consistent naming conventions.
//
// Inputs:
//
//	ctx - Parent context. May contain existing span context.
//	tracerName - Tracer name (typically package path, e.g., "sla_engine.evaluator").
//	spanName - Span name (typically "package.Type.Method" or operation name).
//	opts - Optional span start options (attributes, links, etc.).
//
// Outputs:
//
//	context.Context - Context with the new span attached.
//	trace.Span - The created span. Caller must call span.End().
//
// Example:
//
//	func (e *Evaluator) EvaluateTenantSLA(ctx context.Context, tenant string, rc datatypes.RouteClass) (*datatypes.Evaluation, error) {
//	    ctx, span := telemetry.StartSpan(ctx, "sla_engine.evaluator", "Evaluator.EvaluateTenantSLA",
//	        trace.WithAttributes(attribute.String("tenant", tenant)),
//	    )
//	    defer span.End()
//	    // ... evaluate
//	}
//
// Thread Safety: Safe for concurrent use.
func StartSpan(ctx context.Context, tracerName, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, opts...)
}

// RecordError records an error on the current span with proper status.
//
// Description:
//
//	Records the error as a span event and sets the span status to Error.
//	If the span or error is nil, this is a no-op.
//
// Inputs:
//
//	span - The span to record the error on. May be nil.
//	err - The error to record. May be nil.
//	attrs - Optional additional attributes to record with the error.
//
// Thread Safety: Safe for concurrent use.
func RecordError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}

	opts := make([]trace.EventOption, 0, 1)
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	span.RecordError(err, opts...)

	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span as successful.
//
// Inputs:
//
//	span - The span to mark as OK. May be nil.
//
// Thread Safety: Safe for concurrent use.
func SetSpanOK(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds an event to the span with optional attributes.
//
// Description:
//
//	Records a timestamped event on the span. Events are useful for
//	marking significant points in a span's lifecycle.
//
// Inputs:
//
//	span - The span to add the event to. May be nil.
//	name - Event name describing what happened.
//	attrs - Optional attributes to include with the event.
//
// Example:
//
//	telemetry.AddSpanEvent(span, "breach_detected", attribute.String("breach_type", "latency_p95"))
//
// Thread Safety: Safe for concurrent use.
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanAttributes sets attributes on the span.
//
// Inputs:
//
//	span - The span to set attributes on. May be nil.
//	attrs - Attributes to set.
//
// Thread Safety: Safe for concurrent use.
func SetSpanAttributes(span trace.Span, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.SetAttributes(attrs...)
}

// TraceID returns the trace ID from the context as a string.
//
// Description:
//
//	Extracts the trace ID from the span context. Returns empty string
//	if no valid span context is present.
//
// Inputs:
//
//	ctx - Context potentially containing a span.
//
// Outputs:
//
//	string - Hex-encoded trace ID, or empty string if unavailable.
//
// Thread Safety: Safe for concurrent use.
func TraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// HasActiveSpan returns true if the context contains a valid, recording span.
//
// Inputs:
//
//	ctx - Context to check.
//
// Outputs:
//
//	bool - True if context has a valid, recording span.
//
// Thread Safety: Safe for concurrent use.
func HasActiveSpan(ctx context.Context) bool {
	span := trace.SpanFromContext(ctx)
	return span.SpanContext().IsValid() && span.IsRecording()
}
