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
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// LoggerWithTrace returns a logger with trace context injected.
//
// Description:
//
//	Extracts trace_id and span_id from the context and adds them as
//	structured log fields. This enables log correlation in Grafana/Loki
//	with traces in Jaeger.
//
// Inputs:
//
//	ctx - Context containing span context. May be nil or have no active span.
//	logger - Base logger to enhance. Must not be nil.
//
// Outputs:
//
//	*slog.Logger - Logger with trace_id and span_id fields added if available.
//	              Returns the original logger if no valid span context.
//
// Example:
//
//	func (e *Evaluator) EvaluateTenantSLA(ctx context.Context, tenant string) error {
//	    logger := telemetry.LoggerWithTrace(ctx, e.logger)
//	    logger.Info("evaluation started")
//	}
//
// Thread Safety: Safe for concurrent use.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		return logger
	}

	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}

	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}

// LoggerWithTenant returns a logger with trace context and tenant scope.
//
// Description:
//
//	Combines LoggerWithTrace with the tenant and route class being
//	evaluated, so every log line from one evaluation pass carries the
//	same correlation fields.
//
// Inputs:
//
//	ctx - Context containing span context.
//	logger - Base logger to enhance.
//	tenant - Tenant identifier.
//	routeClass - Route class being evaluated.
//
// Outputs:
//
//	*slog.Logger - Logger with trace_id, span_id, tenant, and route_class fields.
//
// Thread Safety: Safe for concurrent use.
func LoggerWithTenant(ctx context.Context, logger *slog.Logger, tenant, routeClass string) *slog.Logger {
	return LoggerWithTrace(ctx, logger).With(
		slog.String("tenant", tenant),
		slog.String("route_class", routeClass),
	)
}

// LoggerWithIncident returns a logger with trace context and incident ID.
//
// Description:
//
//	Adds the incident identifier for tracking related log entries across
//	the open/update/resolve lifecycle.
//
// Inputs:
//
//	ctx - Context containing span context.
//	logger - Base logger to enhance.
//	incidentID - Incident identifier.
//
// Outputs:
//
//	*slog.Logger - Logger with trace_id, span_id, and incident_id fields.
//
// Thread Safety: Safe for concurrent use.
func LoggerWithIncident(ctx context.Context, logger *slog.Logger, incidentID string) *slog.Logger {
	return LoggerWithTrace(ctx, logger).With(
		slog.String("incident_id", incidentID),
	)
}
