// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"time"
)

// AuditEvent represents a decision-relevant event for compliance logging.
//
// The SLA engine emits one event per enforcement or scaling decision so
// postmortems and evidence exports can reconstruct exactly what the
// control loop saw and decided, even when nothing changed.
//
// # Event Categories
//
// Events are categorized by type for filtering and alerting:
//   - SLA: "sla.breach_detected", "sla.incident_opened",
//     "sla.incident_updated", "sla.incident_resolved",
//     "sla.signal_degraded", "sla.policy_invalid"
//   - Autoscaling: "autoscale.evaluated", "autoscale.applied"
//   - System: "system.start", "system.stop", "system.error"
//
// # Compliance Fields
//
// For audit trail integrity, always populate Timestamp, EventType, and
// ResourceType/ResourceID for data lineage. UserID is "system" for
// sweep-loop decisions and the operator identity for CLI-triggered ones.
//
// Example:
//
//	event := AuditEvent{
//	    EventType:    "sla.breach_detected",
//	    Timestamp:    time.Now().UTC(),
//	    UserID:       "system",
//	    Action:       "evaluate",
//	    ResourceType: "incident",
//	    ResourceID:   incidentID,
//	    Outcome:      "breached",
//	    Metadata: NewMetadata().
//	        Set("tenant", tenant).
//	        Set("route_class", "run").
//	        Set("breach_count", 2),
//	}
type AuditEvent struct {
	// EventType categorizes the event for filtering and alerting.
	// Format: "category.action" (e.g., "sla.breach_detected")
	EventType string `json:"event_type"`

	// Timestamp is when the event occurred (always UTC).
	// If zero, implementations should set it to time.Now().UTC().
	Timestamp time.Time `json:"timestamp"`

	// UserID identifies who triggered the decision.
	// Use "system" for loop-driven evaluations.
	UserID string `json:"user_id"`

	// Action describes what operation was attempted.
	// Common values: "evaluate", "apply", "open", "update", "resolve"
	Action string `json:"action"`

	// ResourceType is the category of resource involved.
	// Examples: "incident", "action", "policy", "measurement"
	ResourceType string `json:"resource_type"`

	// ResourceID is the specific resource instance (optional).
	ResourceID string `json:"resource_id,omitempty"`

	// Outcome indicates the result of the action.
	// Values: "success", "failure", "breached", "blocked", "error"
	Outcome string `json:"outcome"`

	// ErrorCode carries a machine-readable failure code when Outcome is
	// "failure" or "error" (optional).
	ErrorCode string `json:"error_code,omitempty"`

	// Metadata holds additional event-specific data: tenant, route class,
	// policy id, replica delta, reason codes, trace context.
	Metadata Metadata `json:"metadata,omitempty"`
}

// AuditFilter defines criteria for querying audit events.
//
// All fields are optional; only non-zero values are used as filters and
// multiple fields combine with AND logic.
type AuditFilter struct {
	// EventTypes limits results to specific event types.
	EventTypes []string

	// UserID limits results to events from a specific user.
	UserID string

	// StartTime is the earliest event timestamp to include (inclusive).
	StartTime time.Time

	// EndTime is the latest event timestamp to include (exclusive).
	EndTime time.Time

	// ResourceType limits results to a resource category.
	ResourceType string

	// ResourceID limits results to a specific resource.
	ResourceID string

	// Outcome limits results to events with a specific outcome.
	Outcome string

	// Limit is the maximum number of events to return.
	// If zero, an implementation-specific default is used.
	Limit int
}

// AuditLogger records decision events for compliance and analysis.
//
// Implementations must be safe for concurrent use. Log failures must be
// tolerable to the caller: the engine treats audit emission as
// best-effort and never fails an evaluation because the trail is down.
//
// # Open Source Behavior
//
// The default NopAuditLogger discards all events. AleutianGuard wires a
// badger-backed recorder in its place so the local audit trail survives
// restarts.
//
// # Enterprise Implementation
//
// Enterprise versions forward events to SIEM systems (Splunk, Datadog,
// ELK) or compliance databases in addition to local storage.
type AuditLogger interface {
	// Log records a decision event. Implementations should set Timestamp
	// if zero, persist or transmit the event, and return quickly.
	Log(ctx context.Context, event AuditEvent) error

	// Query retrieves audit events matching the filter criteria,
	// ordered by Timestamp descending.
	Query(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)

	// Flush ensures all buffered events are persisted. Call before
	// shutdown to prevent event loss; sync implementations may no-op.
	Flush(ctx context.Context) error
}

// NopAuditLogger is the default audit logger for open source.
//
// It discards all events without recording them. Appropriate only when
// a decision trail is explicitly not required.
//
// Thread-safe: this implementation has no mutable state.
type NopAuditLogger struct{}

// Log discards the event without recording it.
func (l *NopAuditLogger) Log(_ context.Context, _ AuditEvent) error {
	return nil
}

// Query returns an empty slice (no events are stored).
func (l *NopAuditLogger) Query(_ context.Context, _ AuditFilter) ([]AuditEvent, error) {
	return []AuditEvent{}, nil
}

// Flush is a no-op since nothing is buffered.
func (l *NopAuditLogger) Flush(_ context.Context) error {
	return nil
}

// Compile-time interface compliance check.
var _ AuditLogger = (*NopAuditLogger)(nil)
