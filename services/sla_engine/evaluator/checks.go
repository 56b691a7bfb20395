// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package evaluator

import (
	"fmt"
	"math"

	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/policy"
)

// -----------------------------------------------------------------------------
// Severity Classification
// -----------------------------------------------------------------------------

// Severity tier cut points. Platform constants, not tunable per policy.
const (
	// sev1DeltaPoints escalates availability and saturation breaches that
	// land this many percentage points past their threshold.
	sev1DeltaPoints = 10.0

	// sev2Delta escalates any breach whose delta reaches this value:
	// percentage points for availability and saturation, percent over
	// threshold for latency and burn.
	sev2Delta = 5.0
)

// breachDelta measures how far past its threshold a metric landed, on the
// scale the severity tiers compare against. Availability and saturation are
// already percentages, so their delta is in points. Latency and burn have
// arbitrary units, so their delta is the relative overshoot in percent.
func breachDelta(breachType datatypes.BreachType, actual, threshold float64) float64 {
	switch breachType {
	case datatypes.BreachAvailability:
		return threshold - actual
	case datatypes.BreachSaturation:
		return actual - threshold
	default:
		if threshold == 0 {
			return 0
		}
		return (actual - threshold) / threshold * 100
	}
}

// classifySeverity assigns the tier for one violated check. Only
// availability and saturation can reach sev1.
func classifySeverity(breachType datatypes.BreachType, actual, threshold float64) datatypes.Severity {
	delta := breachDelta(breachType, actual, threshold)
	pointScale := breachType == datatypes.BreachAvailability || breachType == datatypes.BreachSaturation

	switch {
	case pointScale && delta >= sev1DeltaPoints:
		return datatypes.SeveritySev1
	case delta >= sev2Delta:
		return datatypes.SeveritySev2
	default:
		return datatypes.SeveritySev3
	}
}

// -----------------------------------------------------------------------------
// Objective Checks
// -----------------------------------------------------------------------------

// checkWindow evaluates one stored window against the policy objectives and
// returns the violations in a fixed order: availability, p95, p99,
// saturation, error-budget burn. An absent objective produces no check.
//
// Inputs:
//   - cfg: The parsed policy.
//   - route: Route class being evaluated, selects the latency ceilings.
//   - m: The window under test.
//   - live: Live gauges, consulted only when the window stored no saturation.
//   - slow: Newest smoothing window for the burn check. May be nil.
func checkWindow(
	cfg *policy.Config,
	route datatypes.RouteClass,
	m *datatypes.Measurement,
	live datatypes.LiveSignals,
	slow *datatypes.Measurement,
) []datatypes.Breach {
	var breaches []datatypes.Breach

	if b, ok := checkAvailability(cfg.Objectives, m); ok {
		breaches = append(breaches, b)
	}
	if b, ok := checkLatencyCeiling(datatypes.BreachLatencyP95, cfg.Objectives.P95MSMax, route, m.P95MS, m.WindowSeconds); ok {
		breaches = append(breaches, b)
	}
	if b, ok := checkLatencyCeiling(datatypes.BreachLatencyP99, cfg.Objectives.P99MSMax, route, m.P99MS, m.WindowSeconds); ok {
		breaches = append(breaches, b)
	}
	if b, ok := checkSaturation(cfg.Objectives, m, live); ok {
		breaches = append(breaches, b)
	}
	if b, ok := checkErrorBudget(cfg.Objectives, slow); ok {
		breaches = append(breaches, b)
	}

	return breaches
}

// checkAvailability compares the window's availability against the floor.
// A window with no requests has no availability to judge, so it passes.
func checkAvailability(obj policy.Objectives, m *datatypes.Measurement) (datatypes.Breach, bool) {
	if m.AvailabilityPct == nil {
		return datatypes.Breach{}, false
	}
	actual := *m.AvailabilityPct
	if actual >= obj.AvailabilityPctMin {
		return datatypes.Breach{}, false
	}

	return datatypes.Breach{
		Type:          datatypes.BreachAvailability,
		Actual:        actual,
		Threshold:     obj.AvailabilityPctMin,
		Severity:      classifySeverity(datatypes.BreachAvailability, actual, obj.AvailabilityPctMin),
		WindowSeconds: m.WindowSeconds,
		Detail: fmt.Sprintf("availability %.2f%% under %.2f%% floor",
			actual, obj.AvailabilityPctMin),
	}, true
}

// checkLatencyCeiling compares one latency percentile against the ceiling
// configured for the route class. No ceiling for the route means no check.
func checkLatencyCeiling(
	breachType datatypes.BreachType,
	ceilings map[datatypes.RouteClass]float64,
	route datatypes.RouteClass,
	actualMS float64,
	windowSeconds int,
) (datatypes.Breach, bool) {
	ceiling, ok := ceilings[route]
	if !ok || actualMS <= ceiling {
		return datatypes.Breach{}, false
	}

	label := "p95"
	if breachType == datatypes.BreachLatencyP99 {
		label = "p99"
	}

	return datatypes.Breach{
		Type:          breachType,
		Actual:        actualMS,
		Threshold:     ceiling,
		Severity:      classifySeverity(breachType, actualMS, ceiling),
		WindowSeconds: windowSeconds,
		Detail: fmt.Sprintf("%s %.0fms over %.0fms ceiling for %s",
			label, actualMS, ceiling, route),
	}, true
}

// checkSaturation compares saturation against the ceiling, preferring the
// window's stored average over the live gauge.
func checkSaturation(obj policy.Objectives, m *datatypes.Measurement, live datatypes.LiveSignals) (datatypes.Breach, bool) {
	if obj.SaturationPctMax == nil {
		return datatypes.Breach{}, false
	}

	source := "window average"
	value := m.AvgSaturationPct
	if value == nil {
		source = "live gauge"
		value = live.SaturationPct
	}
	if value == nil {
		return datatypes.Breach{}, false
	}

	actual := *value
	ceiling := *obj.SaturationPctMax
	if actual <= ceiling {
		return datatypes.Breach{}, false
	}

	return datatypes.Breach{
		Type:          datatypes.BreachSaturation,
		Actual:        actual,
		Threshold:     ceiling,
		Severity:      classifySeverity(datatypes.BreachSaturation, actual, ceiling),
		WindowSeconds: m.WindowSeconds,
		Detail: fmt.Sprintf("saturation %.1f%% over %.1f%% ceiling (%s)",
			actual, ceiling, source),
	}, true
}

// checkErrorBudget compares the smoothing window's burn rate against the
// allowance. Skipped when the policy sets no allowance or no smoothing
// window exists yet.
func checkErrorBudget(obj policy.Objectives, slow *datatypes.Measurement) (datatypes.Breach, bool) {
	if obj.MaxErrorBudgetBurn5M == nil || slow == nil {
		return datatypes.Breach{}, false
	}

	burn := burnRate(slow.ErrorRate(), obj.AvailabilityPctMin)
	allowance := *obj.MaxErrorBudgetBurn5M
	if burn <= allowance {
		return datatypes.Breach{}, false
	}

	return datatypes.Breach{
		Type:          datatypes.BreachErrorBudgetBurn,
		Actual:        burn,
		Threshold:     allowance,
		Severity:      classifySeverity(datatypes.BreachErrorBudgetBurn, burn, allowance),
		WindowSeconds: slow.WindowSeconds,
		Detail: fmt.Sprintf("error budget burning %.2fx against %.2fx allowance",
			burn, allowance),
	}, true
}

// burnRate expresses an error rate as a multiple of the error budget the
// availability floor leaves. A floor of 100 leaves no budget at all, so any
// error burns infinitely fast and a clean window burns nothing.
func burnRate(errorRate, availabilityFloorPct float64) float64 {
	budget := 1 - availabilityFloorPct/100
	if budget <= 0 {
		if errorRate > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return errorRate / budget
}

// breachStreak counts how many of the fetched windows breach consecutively,
// newest first, stopping at the first clean one. The newest window's
// already-computed breaches are reused; older windows re-run the same
// checks against their own stored values.
func breachStreak(
	cfg *policy.Config,
	route datatypes.RouteClass,
	windows []*datatypes.Measurement,
	live datatypes.LiveSignals,
	slow *datatypes.Measurement,
	newest []datatypes.Breach,
) int {
	streak := 0
	for i, m := range windows {
		found := newest
		if i > 0 {
			found = checkWindow(cfg, route, m, live, slow)
		}
		if len(found) == 0 {
			break
		}
		streak++
	}
	return streak
}

// -----------------------------------------------------------------------------
// Enforcement Decision
// -----------------------------------------------------------------------------

// decide maps status, mode, and the breach list to the enforcement
// decision, returning the concrete mitigation set alongside a degrade.
//
// Description:
//
//	Healthy tenants and observe-mode policies always pass. Warnings and
//	warn-mode policies warn. A confirmed breach under enforce sheds on
//	saturation when shedding is enabled platform-wide, degrades when the
//	policy allows it, sheds as the fallback mitigation, and otherwise
//	fails open with a warning rather than dropping traffic a policy
//	never asked to drop.
func decide(
	cfg *policy.Config,
	status datatypes.SLAStatus,
	breaches []datatypes.Breach,
	shedEnabled bool,
) (datatypes.EnforcementDecision, *datatypes.DegradeActions) {
	switch {
	case status == datatypes.StatusHealthy:
		return datatypes.DecisionAllow, nil
	case cfg.Enforcement.Mode == datatypes.ModeObserve:
		return datatypes.DecisionAllow, nil
	case cfg.Enforcement.Mode == datatypes.ModeWarn || status == datatypes.StatusWarning:
		return datatypes.DecisionWarn, nil
	}

	if shedEnabled && hasBreach(breaches, datatypes.BreachSaturation) {
		return datatypes.DecisionShed, nil
	}
	if cfg.Mitigation.AllowDegrade {
		return datatypes.DecisionDegrade, cfg.DegradeActions()
	}
	if shedEnabled {
		return datatypes.DecisionShed, nil
	}
	return datatypes.DecisionWarn, nil
}

func hasBreach(breaches []datatypes.Breach, breachType datatypes.BreachType) bool {
	for _, b := range breaches {
		if b.Type == breachType {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Recommended Actions
// -----------------------------------------------------------------------------

// Operator-facing remediation hints attached to an evaluation.
const (
	// ActionInvestigateErrorSources points at failing dependencies behind
	// availability or budget-burn breaches.
	ActionInvestigateErrorSources = "investigate_error_sources"

	// ActionScaleUp suggests adding replicas through the linked
	// autoscaling profile.
	ActionScaleUp = "scale_up"

	// ActionIncreaseCapacity suggests manual capacity work when no
	// autoscaling profile is linked.
	ActionIncreaseCapacity = "increase_capacity"

	// ActionShedLoad suggests rejecting excess traffic during saturation.
	ActionShedLoad = "shed_load"
)

// recommendedActions derives remediation hints from the breach list,
// deduplicated in breach order.
func recommendedActions(cfg *policy.Config, breaches []datatypes.Breach) []string {
	var actions []string
	seen := make(map[string]bool)
	add := func(action string) {
		if !seen[action] {
			seen[action] = true
			actions = append(actions, action)
		}
	}

	for _, b := range breaches {
		switch b.Type {
		case datatypes.BreachAvailability, datatypes.BreachErrorBudgetBurn:
			add(ActionInvestigateErrorSources)
		case datatypes.BreachLatencyP95, datatypes.BreachLatencyP99:
			if cfg.AutoscalingLink != nil {
				add(ActionScaleUp)
			} else {
				add(ActionIncreaseCapacity)
			}
		case datatypes.BreachSaturation:
			add(ActionShedLoad)
			if cfg.AutoscalingLink != nil {
				add(ActionScaleUp)
			}
		}
	}
	return actions
}
