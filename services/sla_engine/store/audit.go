// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianGuard/pkg/extensions"
)

// DefaultAuditQueryLimit caps audit queries that do not set a limit.
const DefaultAuditQueryLimit = 100

// -----------------------------------------------------------------------------
// Audit Keys
// -----------------------------------------------------------------------------

var auditPrefix = []byte("sla/audit/")

func auditKey(tsNano int64, id string) []byte {
	return []byte(fmt.Sprintf("sla/audit/%019d-%s", tsNano, id))
}

// -----------------------------------------------------------------------------
// Audit Operations
// -----------------------------------------------------------------------------

// AppendAuditEvent persists one audit event.
//
// Description:
//
//	Events are keyed by timestamp plus a fresh UUID, so two events in
//	the same nanosecond still land on distinct rows. The event itself
//	is stored verbatim as JSON for evidence export.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) AppendAuditEvent(ctx context.Context, event extensions.AuditEvent) error {
	if event.Timestamp.IsZero() {
		return fmt.Errorf("audit event %s has zero timestamp", event.EventType)
	}

	value, err := encodeRow(event)
	if err != nil {
		return err
	}

	key := auditKey(event.Timestamp.UnixNano(), uuid.NewString())
	if err := s.setRow(ctx, key, value); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// QueryAuditEvents returns events matching the filter, newest first.
//
// Description:
//
//	Reverse scan over the time-ordered keys. The scan short-circuits
//	once it passes below StartTime, since every remaining row is older.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) QueryAuditEvents(ctx context.Context, filter extensions.AuditFilter) ([]extensions.AuditEvent, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultAuditQueryLimit
	}

	events := make([]extensions.AuditEvent, 0, limit)
	err := s.reverseScan(ctx, auditPrefix, func(_ []byte, val []byte) (bool, error) {
		var event extensions.AuditEvent
		if err := decodeRow(val, &event); err != nil {
			return false, err
		}
		if !filter.StartTime.IsZero() && event.Timestamp.Before(filter.StartTime) {
			return true, nil
		}
		if !auditEventMatches(event, filter) {
			return false, nil
		}
		events = append(events, event)
		return len(events) >= limit, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan audit events: %w", err)
	}
	return events, nil
}

func auditEventMatches(event extensions.AuditEvent, filter extensions.AuditFilter) bool {
	if len(filter.EventTypes) > 0 && !slices.Contains(filter.EventTypes, event.EventType) {
		return false
	}
	if filter.UserID != "" && event.UserID != filter.UserID {
		return false
	}
	if filter.ResourceType != "" && event.ResourceType != filter.ResourceType {
		return false
	}
	if filter.ResourceID != "" && event.ResourceID != filter.ResourceID {
		return false
	}
	if filter.Outcome != "" && event.Outcome != filter.Outcome {
		return false
	}
	if !filter.EndTime.IsZero() && event.Timestamp.After(filter.EndTime) {
		return false
	}
	return true
}
