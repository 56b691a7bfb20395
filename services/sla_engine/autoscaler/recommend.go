// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package autoscaler

import (
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
)

// -----------------------------------------------------------------------------
// Recommendation
// -----------------------------------------------------------------------------

// Recommendation is the outcome of one pass of the scaling policy over a
// signal snapshot. TargetReplicas equals the current count unless the
// action changes replicas.
type Recommendation struct {
	Action         datatypes.ActionKind
	TargetReplicas int
	Reason         string
	CooldownActive bool
}

// Recommend maps one signal snapshot to a scaling move. It is a pure
// function of its arguments; persistence, cooldown measurement, and
// execution belong to the Recommender.
//
// The checks run in priority order and the first match wins:
//
//  1. No usable gauge: hold. Scaling on missing data is guessing.
//  2. Cooldown active: hold, whatever the gauges say.
//  3. Any gauge above its upper band: scale up, or degrade at max.
//  4. Every gauge below its lower band and replicas above min: scale down.
//  5. Otherwise hold within targets.
//
// Bands are target * (1 +/- hysteresis/100). An absent gauge never
// satisfies a band test, so a snapshot with only p95 can still scale up
// on p95 but cannot scale down, which needs both gauges quiet.
func Recommend(profile *datatypes.AutoscalingProfile, signal datatypes.SignalSnapshot, hysteresisPct float64, cooldownActive bool) Recommendation {
	current := signal.CurrentReplicas

	if signal.Empty() {
		return Recommendation{
			Action:         datatypes.ActionHold,
			TargetReplicas: current,
			Reason:         datatypes.ReasonSignalUnavailable,
			CooldownActive: cooldownActive,
		}
	}
	if cooldownActive {
		return Recommendation{
			Action:         datatypes.ActionHold,
			TargetReplicas: current,
			Reason:         datatypes.ReasonCooldownActive,
			CooldownActive: true,
		}
	}

	upper := 1 + hysteresisPct/100
	lower := 1 - hysteresisPct/100

	overloaded := gaugeAbove(signal.P95MS, profile.TargetP95MS*upper) ||
		gaugeAbove(signal.QueueDepth, profile.TargetQueueDepth*upper)
	if overloaded {
		if current >= profile.MaxReplicas {
			return Recommendation{
				Action:         datatypes.ActionDegrade,
				TargetReplicas: current,
				Reason:         datatypes.ReasonAtMaxReplicas,
			}
		}
		target := current + profile.StepUp
		if target > profile.MaxReplicas {
			target = profile.MaxReplicas
		}
		return Recommendation{
			Action:         datatypes.ActionScaleUp,
			TargetReplicas: target,
			Reason:         datatypes.ReasonAboveTarget,
		}
	}

	underloaded := gaugeBelow(signal.P95MS, profile.TargetP95MS*lower) &&
		gaugeBelow(signal.QueueDepth, profile.TargetQueueDepth*lower)
	if underloaded && current > profile.MinReplicas {
		target := current - profile.StepDown
		if target < profile.MinReplicas {
			target = profile.MinReplicas
		}
		return Recommendation{
			Action:         datatypes.ActionScaleDown,
			TargetReplicas: target,
			Reason:         datatypes.ReasonBelowTarget,
		}
	}

	return Recommendation{
		Action:         datatypes.ActionHold,
		TargetReplicas: current,
		Reason:         datatypes.ReasonWithinTargets,
	}
}

func gaugeAbove(v *float64, bound float64) bool {
	return v != nil && *v > bound
}

func gaugeBelow(v *float64, bound float64) bool {
	return v != nil && *v < bound
}
