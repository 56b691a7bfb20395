// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the SLA engine service.
//
// This file contains the measurement, breach, and evaluation types shared
// between the window aggregator, the evaluator, and the stores. Autoscaling
// types live in autoscaling.go; policy catalog records live in policy.go.
package datatypes

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROUTE CLASSES
// =============================================================================

// RouteClass is a fixed category of request used to scope objectives
// independently. Policies may only reference these values; anything else is
// rejected at parse time.
type RouteClass string

const (
	RouteRun      RouteClass = "run"
	RouteRead     RouteClass = "read"
	RouteMutation RouteClass = "mutation"
	RouteIngest   RouteClass = "ingest"
	RouteOps      RouteClass = "ops"
	RouteAdmin    RouteClass = "admin"
)

// AllRouteClasses lists every recognized route class in stable order.
func AllRouteClasses() []RouteClass {
	return []RouteClass{RouteRun, RouteRead, RouteMutation, RouteIngest, RouteOps, RouteAdmin}
}

// Valid reports whether rc is one of the recognized route classes.
func (rc RouteClass) Valid() bool {
	switch rc {
	case RouteRun, RouteRead, RouteMutation, RouteIngest, RouteOps, RouteAdmin:
		return true
	}
	return false
}

// ParseRouteClass converts a string into a RouteClass.
func ParseRouteClass(s string) (RouteClass, error) {
	rc := RouteClass(s)
	if !rc.Valid() {
		return "", fmt.Errorf("unknown route class %q", s)
	}
	return rc, nil
}

// =============================================================================
// STATUS AND DECISION ENUMS
// =============================================================================

// SLAStatus is the derived health state of a (tenant, route class) pair.
type SLAStatus string

const (
	StatusHealthy  SLAStatus = "healthy"
	StatusWarning  SLAStatus = "warning"
	StatusBreached SLAStatus = "breached"
)

// EnforcementDecision is the runtime action chosen for the current request
// window: pass traffic, warn, narrow functionality, or reject outright.
type EnforcementDecision string

const (
	DecisionAllow   EnforcementDecision = "allow"
	DecisionWarn    EnforcementDecision = "warn"
	DecisionDegrade EnforcementDecision = "degrade"
	DecisionShed    EnforcementDecision = "shed"
)

// EnforcementMode controls how aggressively a policy is applied.
type EnforcementMode string

const (
	ModeObserve EnforcementMode = "observe"
	ModeWarn    EnforcementMode = "warn"
	ModeEnforce EnforcementMode = "enforce"
)

// Valid reports whether m is a recognized enforcement mode.
func (m EnforcementMode) Valid() bool {
	switch m {
	case ModeObserve, ModeWarn, ModeEnforce:
		return true
	}
	return false
}

// SignalQuality records whether every signal the evaluator expected was
// actually available. Degraded quality is informational, never an error.
type SignalQuality string

const (
	SignalOK       SignalQuality = "ok"
	SignalDegraded SignalQuality = "degraded"
)

// =============================================================================
// BREACHES
// =============================================================================

// BreachType identifies which objective a breach violated. The evaluator
// always emits breaches in the order these constants are declared.
type BreachType string

const (
	BreachAvailability    BreachType = "availability"
	BreachLatencyP95      BreachType = "latency_p95"
	BreachLatencyP99      BreachType = "latency_p99"
	BreachSaturation      BreachType = "saturation"
	BreachErrorBudgetBurn BreachType = "error_budget_burn"
)

// Severity tiers a breach by how far past its threshold the metric landed.
// Sev1 is the most severe.
type Severity string

const (
	SeveritySev1 Severity = "sev1"
	SeveritySev2 Severity = "sev2"
	SeveritySev3 Severity = "sev3"
)

// rank orders severities for comparison; lower is worse.
func (s Severity) rank() int {
	switch s {
	case SeveritySev1:
		return 0
	case SeveritySev2:
		return 1
	default:
		return 2
	}
}

// Worse reports whether s is more severe than other.
func (s Severity) Worse(other Severity) bool {
	return s.rank() < other.rank()
}

// WorstSeverity returns the most severe value among breaches, or SeveritySev3
// when the list is empty.
func WorstSeverity(breaches []Breach) Severity {
	worst := SeveritySev3
	for _, b := range breaches {
		if b.Severity.Worse(worst) {
			worst = b.Severity
		}
	}
	return worst
}

// Breach is a single objective violation detected in the newest window.
type Breach struct {
	Type          BreachType `json:"type"`
	Actual        float64    `json:"actual"`
	Threshold     float64    `json:"threshold"`
	Severity      Severity   `json:"severity"`
	WindowSeconds int        `json:"window_seconds"`
	Detail        string     `json:"detail,omitempty"`
}

// =============================================================================
// SAMPLES AND MEASUREMENTS
// =============================================================================

// Sample is one observed request outcome fed into the window aggregator.
// SaturationPct is nil when the caller had no saturation gauge to attach.
type Sample struct {
	Timestamp     time.Time `json:"timestamp"`
	LatencyMS     float64   `json:"latency_ms"`
	StatusCode    int       `json:"status_code"`
	SaturationPct *float64  `json:"saturation_pct,omitempty"`
}

// Measurement is a closed time bucket [WindowStart, WindowEnd) for one
// (tenant, route class, window length) triple. The ID is deterministic for
// the bucket identity so concurrent writers upsert the same row.
type Measurement struct {
	ID               string     `json:"id"`
	Tenant           string     `json:"tenant"`
	RouteClass       RouteClass `json:"route_class"`
	WindowSeconds    int        `json:"window_seconds"`
	WindowStart      time.Time  `json:"window_start"`
	WindowEnd        time.Time  `json:"window_end"`
	RequestCount     int64      `json:"request_count"`
	ErrorCount       int64      `json:"error_count"`
	P50MS            float64    `json:"p50_ms"`
	P95MS            float64    `json:"p95_ms"`
	P99MS            float64    `json:"p99_ms"`
	AvailabilityPct  *float64   `json:"availability_pct,omitempty"`
	AvgSaturationPct *float64   `json:"avg_saturation_pct,omitempty"`
	ComputedAt       time.Time  `json:"computed_at"`
}

// ErrorRate returns errors as a fraction of requests, or 0 when the bucket
// is empty.
func (m *Measurement) ErrorRate() float64 {
	if m.RequestCount == 0 {
		return 0
	}
	return float64(m.ErrorCount) / float64(m.RequestCount)
}

// MeasurementID derives the deterministic bucket identity from the tenant,
// route class, window length, and aligned window end. Two writers that land
// in the same bucket always produce the same id.
func MeasurementID(tenant string, route RouteClass, windowSeconds int, windowEnd time.Time) string {
	name := fmt.Sprintf("aleutian://guard/measurement/%s/%s/%d/%d",
		tenant, route, windowSeconds, windowEnd.Unix())
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// LiveSignals is the point-in-time gauge snapshot collected from the
// telemetry backend. Nil fields mean the gauge was unavailable.
type LiveSignals struct {
	QueueDepth    *float64      `json:"queue_depth,omitempty"`
	SaturationPct *float64      `json:"saturation_pct,omitempty"`
	Quality       SignalQuality `json:"quality"`
	Details       []string      `json:"details,omitempty"`
}

// =============================================================================
// INCIDENTS
// =============================================================================

// IncidentStatus tracks the lifecycle of a breach incident.
type IncidentStatus string

const (
	IncidentOpen       IncidentStatus = "open"
	IncidentMitigating IncidentStatus = "mitigating"
	IncidentResolved   IncidentStatus = "resolved"
)

// Incident is the deduplicated breach record per (tenant, policy, route
// class). At most one non-resolved incident exists per scope; repeated
// breaches advance LastBreachAt instead of opening new rows.
type Incident struct {
	ID            string         `json:"id"`
	Tenant        string         `json:"tenant"`
	PolicyID      string         `json:"policy_id"`
	RouteClass    RouteClass     `json:"route_class"`
	Status        IncidentStatus `json:"status"`
	Severity      Severity       `json:"severity"`
	FirstBreachAt time.Time      `json:"first_breach_at"`
	LastBreachAt  time.Time      `json:"last_breach_at"`
	Breaches      []Breach       `json:"breaches"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	ResolvedAt    *time.Time     `json:"resolved_at,omitempty"`
}

// =============================================================================
// EVALUATION RESULT
// =============================================================================

// DegradeActions is the concrete mitigation set returned with a degrade
// decision, taken verbatim from the resolved policy's mitigation section.
type DegradeActions struct {
	DisableAudioChannel bool     `json:"disable_audio_channel"`
	MinResults          int      `json:"min_results"`
	MaxOutputBytes      int      `json:"max_output_bytes"`
	FallbackProviders   []string `json:"fallback_providers,omitempty"`
}

// Evaluation is the full result of one SLA evaluation call.
type Evaluation struct {
	Tenant             string              `json:"tenant"`
	RouteClass         RouteClass          `json:"route_class"`
	PolicyID           string              `json:"policy_id,omitempty"`
	PolicyMode         EnforcementMode     `json:"policy_mode,omitempty"`
	Status             SLAStatus           `json:"status"`
	Decision           EnforcementDecision `json:"decision"`
	Breaches           []Breach            `json:"breaches,omitempty"`
	BreachStreak       int                 `json:"breach_streak,omitempty"`
	RecommendedActions []string            `json:"recommended_actions,omitempty"`
	DegradeActions     *DegradeActions     `json:"degrade_actions,omitempty"`
	WindowEnd          *time.Time          `json:"window_end,omitempty"`
	SignalQuality      SignalQuality       `json:"signal_quality"`
	IncidentID         string              `json:"incident_id,omitempty"`
	EvaluatedAt        time.Time           `json:"evaluated_at"`
}
