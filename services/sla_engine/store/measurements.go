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

	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
)

// -----------------------------------------------------------------------------
// Measurement Keys
// -----------------------------------------------------------------------------

func measurementPrefix(tenant string, route datatypes.RouteClass, windowSeconds int) []byte {
	return []byte(fmt.Sprintf("sla/measurement/%s/%s/%d/", tenant, route, windowSeconds))
}

func measurementKey(m *datatypes.Measurement) []byte {
	return []byte(fmt.Sprintf("sla/measurement/%s/%s/%d/%012d",
		m.Tenant, m.RouteClass, m.WindowSeconds, m.WindowEnd.Unix()))
}

// -----------------------------------------------------------------------------
// Measurement Operations
// -----------------------------------------------------------------------------

// UpsertMeasurement writes one aligned-bucket row, replacing any previous
// row for the same (tenant, route, window, bucket end).
//
// Description:
//
//	The key is derived from the bucket identity, not the row ID, so
//	repeated folds of the same bucket converge on a single row. The
//	last write wins.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	m - The measurement to persist. Must not be nil.
//
// Outputs:
//
//	error - Non-nil if validation or the write fails.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) UpsertMeasurement(ctx context.Context, m *datatypes.Measurement) error {
	if m == nil {
		return fmt.Errorf("%w: measurement", ErrNilRow)
	}
	if err := validateKeyPart("tenant", m.Tenant); err != nil {
		return err
	}
	if !m.RouteClass.Valid() {
		return fmt.Errorf("invalid route class %q", m.RouteClass)
	}
	if m.WindowSeconds <= 0 {
		return fmt.Errorf("window seconds must be positive, got %d", m.WindowSeconds)
	}

	value, err := encodeRow(m)
	if err != nil {
		return err
	}

	if err := s.setRow(ctx, measurementKey(m), value); err != nil {
		return fmt.Errorf("upsert measurement: %w", err)
	}

	s.logger.Debug("measurement upserted",
		slog.String("tenant", m.Tenant),
		slog.String("route_class", string(m.RouteClass)),
		slog.Int("window_seconds", m.WindowSeconds),
		slog.Time("window_end", m.WindowEnd),
		slog.Int64("request_count", m.RequestCount),
	)
	return nil
}

// LatestMeasurements returns up to limit rows for one (tenant, route,
// window) series, newest bucket first.
//
// Description:
//
//	A reverse prefix scan over the zero-padded bucket keys. Returns an
//	empty slice when the series has no rows yet; absence of data is not
//	an error.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	tenant - Tenant identifier. Must not be empty.
//	route - Route class. Must be valid.
//	windowSeconds - Window length of the series.
//	limit - Maximum rows to return. Must be positive.
//
// Outputs:
//
//	[]*datatypes.Measurement - Rows in descending bucket order.
//	error - Non-nil if validation or the scan fails.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) LatestMeasurements(ctx context.Context, tenant string, route datatypes.RouteClass, windowSeconds, limit int) ([]*datatypes.Measurement, error) {
	if err := validateKeyPart("tenant", tenant); err != nil {
		return nil, err
	}
	if !route.Valid() {
		return nil, fmt.Errorf("invalid route class %q", route)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows := make([]*datatypes.Measurement, 0, limit)
	prefix := measurementPrefix(tenant, route, windowSeconds)

	err := s.reverseScan(ctx, prefix, func(_ []byte, val []byte) (bool, error) {
		var m datatypes.Measurement
		if err := decodeRow(val, &m); err != nil {
			return false, err
		}
		rows = append(rows, &m)
		return len(rows) >= limit, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan measurements: %w", err)
	}
	return rows, nil
}
