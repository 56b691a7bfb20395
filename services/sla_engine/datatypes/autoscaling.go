// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the autoscaling profile, signal, and action types used
// by the recommender and its stores.
package datatypes

import (
	"time"
)

// =============================================================================
// PROFILES
// =============================================================================

// ProfileScope identifies what an autoscaling profile applies to.
type ProfileScope string

const (
	ScopeGlobal     ProfileScope = "global"
	ScopeTenant     ProfileScope = "tenant"
	ScopeRouteClass ProfileScope = "route_class"
)

// AutoscalingProfile is the externally authored scaling envelope for one
// scope: replica bounds, targets, cooldown, and step sizes.
type AutoscalingProfile struct {
	ID               string       `json:"id" yaml:"id" validate:"required"`
	Scope            ProfileScope `json:"scope" yaml:"scope" validate:"required,oneof=global tenant route_class"`
	Tenant           string       `json:"tenant,omitempty" yaml:"tenant,omitempty"`
	RouteClass       RouteClass   `json:"route_class,omitempty" yaml:"route_class,omitempty"`
	MinReplicas      int          `json:"min_replicas" yaml:"min_replicas" validate:"gte=0"`
	MaxReplicas      int          `json:"max_replicas" yaml:"max_replicas" validate:"gtefield=MinReplicas"`
	TargetP95MS      float64      `json:"target_p95_ms" yaml:"target_p95_ms" validate:"gt=0"`
	TargetQueueDepth float64      `json:"target_queue_depth" yaml:"target_queue_depth" validate:"gt=0"`
	CooldownSeconds  int          `json:"cooldown_seconds" yaml:"cooldown_seconds" validate:"gte=0"`
	StepUp           int          `json:"step_up" yaml:"step_up" validate:"gte=1"`
	StepDown         int          `json:"step_down" yaml:"step_down" validate:"gte=1"`
}

// Validate checks the profile's structural constraints.
func (p *AutoscalingProfile) Validate() error {
	if err := catalogValidate.Struct(p); err != nil {
		return err
	}
	if p.RouteClass != "" && !p.RouteClass.Valid() {
		return &FieldError{Field: "route_class", Message: "unknown route class " + string(p.RouteClass)}
	}
	return nil
}

// Cooldown returns the profile cooldown as a duration.
func (p *AutoscalingProfile) Cooldown() time.Duration {
	return time.Duration(p.CooldownSeconds) * time.Second
}

// FieldError reports a structural problem with a catalog record field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// =============================================================================
// SIGNALS AND ACTIONS
// =============================================================================

// SignalSnapshot is the scaling input captured at decision time: the replica
// count plus whichever latency and queue gauges were available.
type SignalSnapshot struct {
	CurrentReplicas int       `json:"current_replicas"`
	P95MS           *float64  `json:"p95_ms,omitempty"`
	QueueDepth      *float64  `json:"queue_depth,omitempty"`
	CollectedAt     time.Time `json:"collected_at"`
}

// Empty reports whether the snapshot carries no usable gauge at all.
func (s SignalSnapshot) Empty() bool {
	return s.P95MS == nil && s.QueueDepth == nil
}

// ActionKind is the scaling move the recommender chose.
type ActionKind string

const (
	ActionScaleUp   ActionKind = "scale_up"
	ActionScaleDown ActionKind = "scale_down"
	ActionHold      ActionKind = "hold"
	ActionDegrade   ActionKind = "degrade"
)

// ChangesReplicas reports whether the action would mutate the replica count.
func (a ActionKind) ChangesReplicas() bool {
	return a == ActionScaleUp || a == ActionScaleDown
}

// Scaling reason codes. Each recommendation carries exactly one.
const (
	ReasonSignalUnavailable = "signal_unavailable"
	ReasonCooldownActive    = "cooldown_active"
	ReasonAboveTarget       = "above_target"
	ReasonAtMaxReplicas     = "at_max_replicas"
	ReasonBelowTarget       = "below_target"
	ReasonWithinTargets     = "within_targets"
)

// AutoscalingAction is the immutable record of one recommendation or applied
// action. It doubles as the audit trail and as the sole source of "time since
// last action" for cooldown checks.
type AutoscalingAction struct {
	ID             string         `json:"id"`
	ProfileID      string         `json:"profile_id"`
	Tenant         string         `json:"tenant,omitempty"`
	RouteClass     RouteClass     `json:"route_class,omitempty"`
	Action         ActionKind     `json:"action"`
	FromReplicas   int            `json:"from_replicas"`
	ToReplicas     int            `json:"to_replicas"`
	Reason         string         `json:"reason"`
	CooldownActive bool           `json:"cooldown_active"`
	Signal         SignalSnapshot `json:"signal"`
	Executed       bool           `json:"executed"`
	CreatedAt      time.Time      `json:"created_at"`
	ExecutedAt     *time.Time     `json:"executed_at,omitempty"`
}

// EffectiveAt returns the executed timestamp when present, else CreatedAt.
// Cooldown windows are measured from this instant.
func (a *AutoscalingAction) EffectiveAt() time.Time {
	if a.ExecutedAt != nil {
		return *a.ExecutedAt
	}
	return a.CreatedAt
}
