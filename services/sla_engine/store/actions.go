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
// Action Keys
// -----------------------------------------------------------------------------

func actionPrefix(profileID string) []byte {
	return []byte(fmt.Sprintf("sla/action/%s/", profileID))
}

func actionKey(a *datatypes.AutoscalingAction) []byte {
	return []byte(fmt.Sprintf("sla/action/%s/%019d-%s",
		a.ProfileID, a.CreatedAt.UnixNano(), a.ID))
}

// -----------------------------------------------------------------------------
// Action Operations
// -----------------------------------------------------------------------------

// AppendAction persists one autoscaling decision.
//
// Description:
//
//	Every recommendation is recorded, including holds, so the action
//	history doubles as the cooldown source of truth and the dry-run
//	audit trail. Rows are immutable once written; a re-write with the
//	same ID and CreatedAt replaces the row (used to flip Executed
//	after the executor confirms).
//
// Thread Safety: Safe for concurrent use.
func (s *Store) AppendAction(ctx context.Context, a *datatypes.AutoscalingAction) error {
	if a == nil {
		return fmt.Errorf("%w: action", ErrNilRow)
	}
	if err := validateKeyPart("profile id", a.ProfileID); err != nil {
		return err
	}
	if err := validateKeyPart("action id", a.ID); err != nil {
		return err
	}
	if a.CreatedAt.IsZero() {
		return fmt.Errorf("action %s has zero created_at", a.ID)
	}

	value, err := encodeRow(a)
	if err != nil {
		return err
	}

	if err := s.setRow(ctx, actionKey(a), value); err != nil {
		return fmt.Errorf("append action: %w", err)
	}

	s.logger.Debug("action recorded",
		slog.String("action_id", a.ID),
		slog.String("profile_id", a.ProfileID),
		slog.String("action", string(a.Action)),
		slog.String("reason", string(a.Reason)),
		slog.Int("from_replicas", a.FromReplicas),
		slog.Int("to_replicas", a.ToReplicas),
		slog.Bool("executed", a.Executed),
	)
	return nil
}

// LastNonHoldAction returns the most recent action for a profile that
// was not a hold, or nil when the profile has never acted.
//
// Description:
//
//	Cooldown is anchored on the last action that changed or tried to
//	change the system, so holds are skipped during the reverse scan.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) LastNonHoldAction(ctx context.Context, profileID string) (*datatypes.AutoscalingAction, error) {
	if err := validateKeyPart("profile id", profileID); err != nil {
		return nil, err
	}

	var found *datatypes.AutoscalingAction
	err := s.reverseScan(ctx, actionPrefix(profileID), func(_ []byte, val []byte) (bool, error) {
		var a datatypes.AutoscalingAction
		if err := decodeRow(val, &a); err != nil {
			return false, err
		}
		if a.Action == datatypes.ActionHold {
			return false, nil
		}
		found = &a
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan actions: %w", err)
	}
	return found, nil
}

// ListActions returns up to limit actions for a profile, newest first.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) ListActions(ctx context.Context, profileID string, limit int) ([]*datatypes.AutoscalingAction, error) {
	if err := validateKeyPart("profile id", profileID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows := make([]*datatypes.AutoscalingAction, 0, limit)
	err := s.reverseScan(ctx, actionPrefix(profileID), func(_ []byte, val []byte) (bool, error) {
		var a datatypes.AutoscalingAction
		if err := decodeRow(val, &a); err != nil {
			return false, err
		}
		rows = append(rows, &a)
		return len(rows) >= limit, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan actions: %w", err)
	}
	return rows, nil
}
