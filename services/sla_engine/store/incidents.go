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
	"log/slog"
	"sort"

	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
)

// -----------------------------------------------------------------------------
// Incident Keys
// -----------------------------------------------------------------------------

func incidentScopePrefix(tenant, policyID string, route datatypes.RouteClass) []byte {
	return []byte(fmt.Sprintf("sla/incident/%s/%s/%s/", tenant, policyID, route))
}

func incidentTenantPrefix(tenant string) []byte {
	return []byte(fmt.Sprintf("sla/incident/%s/", tenant))
}

// incidentKey is stable for the lifetime of an incident: CreatedAt never
// changes after the first write, so updates land on the same row.
func incidentKey(inc *datatypes.Incident) []byte {
	return []byte(fmt.Sprintf("sla/incident/%s/%s/%s/%019d-%s",
		inc.Tenant, inc.PolicyID, inc.RouteClass, inc.CreatedAt.UnixNano(), inc.ID))
}

// -----------------------------------------------------------------------------
// Incident Operations
// -----------------------------------------------------------------------------

// UpsertIncident writes an incident row, replacing any previous version
// of the same incident.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	inc - The incident to persist. Must not be nil with a non-zero
//	      CreatedAt, since the key embeds the creation time.
//
// Outputs:
//
//	error - Non-nil if validation or the write fails.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) UpsertIncident(ctx context.Context, inc *datatypes.Incident) error {
	if inc == nil {
		return fmt.Errorf("%w: incident", ErrNilRow)
	}
	if err := validateKeyPart("tenant", inc.Tenant); err != nil {
		return err
	}
	if err := validateKeyPart("policy id", inc.PolicyID); err != nil {
		return err
	}
	if err := validateKeyPart("incident id", inc.ID); err != nil {
		return err
	}
	if !inc.RouteClass.Valid() {
		return fmt.Errorf("invalid route class %q", inc.RouteClass)
	}
	if inc.CreatedAt.IsZero() {
		return fmt.Errorf("incident %s has zero created_at", inc.ID)
	}

	value, err := encodeRow(inc)
	if err != nil {
		return err
	}

	if err := s.setRow(ctx, incidentKey(inc), value); err != nil {
		return fmt.Errorf("upsert incident: %w", err)
	}

	s.logger.Debug("incident upserted",
		slog.String("incident_id", inc.ID),
		slog.String("tenant", inc.Tenant),
		slog.String("status", string(inc.Status)),
		slog.String("severity", string(inc.Severity)),
	)
	return nil
}

// FindOpenIncident returns the newest non-resolved incident for one
// (tenant, policy, route) scope, or nil when the scope is clean.
//
// Description:
//
//	The engine keeps at most one non-resolved incident per scope, so
//	the reverse scan stops at the first non-resolved row. Resolved
//	rows older than it are history and stay untouched.
//
// Outputs:
//
//	*datatypes.Incident - The open or mitigating incident, nil if none.
//	error - Non-nil if validation or the scan fails.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) FindOpenIncident(ctx context.Context, tenant, policyID string, route datatypes.RouteClass) (*datatypes.Incident, error) {
	if err := validateKeyPart("tenant", tenant); err != nil {
		return nil, err
	}
	if err := validateKeyPart("policy id", policyID); err != nil {
		return nil, err
	}
	if !route.Valid() {
		return nil, fmt.Errorf("invalid route class %q", route)
	}

	var found *datatypes.Incident
	prefix := incidentScopePrefix(tenant, policyID, route)

	err := s.reverseScan(ctx, prefix, func(_ []byte, val []byte) (bool, error) {
		var inc datatypes.Incident
		if err := decodeRow(val, &inc); err != nil {
			return false, err
		}
		if inc.Status == datatypes.IncidentResolved {
			return false, nil
		}
		found = &inc
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan incidents: %w", err)
	}
	return found, nil
}

// ListIncidents returns incidents for a tenant, most recently updated
// first. An empty tenant lists incidents across all tenants.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	tenant - Tenant to filter by, or empty for all tenants.
//	includeResolved - When false, resolved incidents are skipped.
//	limit - Maximum rows to return. Must be positive.
//
// Outputs:
//
//	[]*datatypes.Incident - Incidents in descending UpdatedAt order.
//	error - Non-nil if validation or the scan fails.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) ListIncidents(ctx context.Context, tenant string, includeResolved bool, limit int) ([]*datatypes.Incident, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	prefix := []byte("sla/incident/")
	if tenant != "" {
		if err := validateKeyPart("tenant", tenant); err != nil {
			return nil, err
		}
		prefix = incidentTenantPrefix(tenant)
	}

	// Key order within the prefix is (policy, route, created), not global
	// recency, so collect then sort. Incident counts per tenant are small.
	var rows []*datatypes.Incident
	err := s.reverseScan(ctx, prefix, func(_ []byte, val []byte) (bool, error) {
		var inc datatypes.Incident
		if err := decodeRow(val, &inc); err != nil {
			return false, err
		}
		if !includeResolved && inc.Status == datatypes.IncidentResolved {
			return false, nil
		}
		rows = append(rows, &inc)
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan incidents: %w", err)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].UpdatedAt.After(rows[j].UpdatedAt)
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}
