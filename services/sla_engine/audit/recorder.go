// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit records enforcement and autoscaling decisions durably.
//
// The Recorder implements extensions.AuditLogger on top of the BadgerDB
// store and fans each event out to structured logs, so every decision is
// both queryable after the fact and visible in the live log stream.
//
// Recording is best-effort by contract: callers that must not fail on a
// broken audit path (the sweep loop, the evaluator) log the returned
// error and move on rather than propagating it.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianGuard/pkg/extensions"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/store"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/telemetry"
)

// SystemUserID marks events produced by the engine's own loops rather
// than an authenticated caller.
const SystemUserID = "system"

// Recorder persists audit events and mirrors them to the log stream.
//
// Thread Safety: Safe for concurrent use.
type Recorder struct {
	store   *store.Store
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Compile-time interface check.
var _ extensions.AuditLogger = (*Recorder)(nil)

// NewRecorder creates a Recorder backed by the given store.
func NewRecorder(st *store.Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:  st,
		logger: logger.With(slog.String("component", "audit")),
	}
}

// SetMetrics attaches meter instruments. Without it the Recorder still
// works, it just does not count events.
func (r *Recorder) SetMetrics(m *telemetry.Metrics) {
	r.metrics = m
}

// Log persists one audit event.
//
// Description:
//
//	Stamps a timestamp and user when missing, attaches the active trace
//	context to the metadata so stored events can be correlated with
//	spans, writes the row, and mirrors the event to the log stream.
//
// Inputs:
//
//	ctx - Context carrying the active span, if any.
//	event - The event to record.
//
// Outputs:
//
//	error - Non-nil if the durable write fails. Callers on best-effort
//	        paths log this and continue.
//
// Thread Safety: Safe for concurrent use.
func (r *Recorder) Log(ctx context.Context, event extensions.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.UserID == "" {
		event.UserID = SystemUserID
	}

	// Stamp trace context into the stored row when a span is recording.
	if telemetry.HasActiveSpan(ctx) {
		if event.Metadata == nil {
			event.Metadata = extensions.NewMetadata()
		}
		for k, v := range telemetry.InjectToMap(ctx, nil) {
			event.Metadata.Set(k, v)
		}
	}

	logger := telemetry.LoggerWithTrace(ctx, r.logger)

	if err := r.store.AppendAuditEvent(ctx, event); err != nil {
		if r.metrics != nil {
			r.metrics.ErrorsTotal.Add(ctx, 1, metric.WithAttributes(
				attribute.String("component", "audit"),
				attribute.String("error_type", "append_failed"),
			))
		}
		return fmt.Errorf("record audit event %s: %w", event.EventType, err)
	}

	if r.metrics != nil {
		r.metrics.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event_type", event.EventType),
			attribute.String("outcome", event.Outcome),
		))
	}

	logger.Info("audit event",
		slog.String("event_type", event.EventType),
		slog.String("user_id", event.UserID),
		slog.String("action", event.Action),
		slog.String("resource_type", event.ResourceType),
		slog.String("resource_id", event.ResourceID),
		slog.String("outcome", event.Outcome),
	)
	return nil
}

// Query returns stored events matching the filter, newest first.
func (r *Recorder) Query(ctx context.Context, filter extensions.AuditFilter) ([]extensions.AuditEvent, error) {
	return r.store.QueryAuditEvents(ctx, filter)
}

// Flush forces pending writes to disk.
func (r *Recorder) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.store.Sync()
}
