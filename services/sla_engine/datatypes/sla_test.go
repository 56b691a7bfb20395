// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseRouteClass verifies recognized and unknown route class handling.
func TestParseRouteClass(t *testing.T) {
	for _, rc := range AllRouteClasses() {
		got, err := ParseRouteClass(string(rc))
		require.NoError(t, err)
		assert.Equal(t, rc, got)
	}

	_, err := ParseRouteClass("batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch")
}

// TestMeasurementIDDeterministic verifies the bucket identity is stable for
// the same key and distinct across keys.
func TestMeasurementIDDeterministic(t *testing.T) {
	end := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)

	a := MeasurementID("acme", RouteRun, 60, end)
	b := MeasurementID("acme", RouteRun, 60, end)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, MeasurementID("acme", RouteRead, 60, end))
	assert.NotEqual(t, a, MeasurementID("acme", RouteRun, 300, end))
	assert.NotEqual(t, a, MeasurementID("other", RouteRun, 60, end))
	assert.NotEqual(t, a, MeasurementID("acme", RouteRun, 60, end.Add(time.Minute)))
}

// TestSeverityOrdering verifies sev1 outranks sev2 outranks sev3.
func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeveritySev1.Worse(SeveritySev2))
	assert.True(t, SeveritySev2.Worse(SeveritySev3))
	assert.False(t, SeveritySev3.Worse(SeveritySev1))
	assert.False(t, SeveritySev2.Worse(SeveritySev2))

	worst := WorstSeverity([]Breach{
		{Type: BreachLatencyP95, Severity: SeveritySev3},
		{Type: BreachAvailability, Severity: SeveritySev1},
		{Type: BreachSaturation, Severity: SeveritySev2},
	})
	assert.Equal(t, SeveritySev1, worst)

	assert.Equal(t, SeveritySev3, WorstSeverity(nil))
}

// TestMeasurementErrorRate verifies the error fraction and the empty bucket.
func TestMeasurementErrorRate(t *testing.T) {
	m := &Measurement{RequestCount: 200, ErrorCount: 10}
	assert.InDelta(t, 0.05, m.ErrorRate(), 1e-9)

	empty := &Measurement{}
	assert.Zero(t, empty.ErrorRate())
}

// TestAssignmentCurrentAt verifies the [from, to) effective range.
func TestAssignmentCurrentAt(t *testing.T) {
	from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	open := &TenantAssignment{Tenant: "acme", PolicyID: "p1", EffectiveFrom: from}
	assert.False(t, open.CurrentAt(from.Add(-time.Second)))
	assert.True(t, open.CurrentAt(from))
	assert.True(t, open.CurrentAt(from.Add(365*24*time.Hour)))

	bounded := &TenantAssignment{Tenant: "acme", PolicyID: "p1", EffectiveFrom: from, EffectiveTo: &to}
	assert.True(t, bounded.CurrentAt(to.Add(-time.Second)))
	assert.False(t, bounded.CurrentAt(to))
}

// TestProfileValidate verifies structural checks on autoscaling profiles.
func TestProfileValidate(t *testing.T) {
	valid := AutoscalingProfile{
		ID:               "prof-1",
		Scope:            ScopeRouteClass,
		RouteClass:       RouteRun,
		MinReplicas:      1,
		MaxReplicas:      4,
		TargetP95MS:      200,
		TargetQueueDepth: 10,
		CooldownSeconds:  120,
		StepUp:           1,
		StepDown:         1,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(p *AutoscalingProfile)
	}{
		{"max below min", func(p *AutoscalingProfile) { p.MaxReplicas = 0 }},
		{"zero p95 target", func(p *AutoscalingProfile) { p.TargetP95MS = 0 }},
		{"bad scope", func(p *AutoscalingProfile) { p.Scope = "regional" }},
		{"unknown route class", func(p *AutoscalingProfile) { p.RouteClass = "batch" }},
		{"zero step", func(p *AutoscalingProfile) { p.StepUp = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

// TestActionEffectiveAt verifies cooldown anchoring on executed-then-created.
func TestActionEffectiveAt(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	executed := created.Add(3 * time.Second)

	a := &AutoscalingAction{CreatedAt: created}
	assert.Equal(t, created, a.EffectiveAt())

	a.ExecutedAt = &executed
	assert.Equal(t, executed, a.EffectiveAt())
}
