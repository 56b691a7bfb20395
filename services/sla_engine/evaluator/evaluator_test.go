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
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGuard/pkg/extensions"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/audit"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/catalog"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/policy"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/signals"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/storage/badger"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/store"
)

var evalBase = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

// harness wires an evaluator over an in-memory store and a temp-dir
// catalog, composed the same way the service composes the real thing.
type harness struct {
	root string
	cat  *catalog.Catalog
	st   *store.Store
	ev   *Evaluator
}

func newHarness(t *testing.T, collector signals.Collector, opts ...Option) *harness {
	t.Helper()
	db, err := badger.OpenDB(badger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.New(db, nil)
	h := &harness{root: t.TempDir(), st: st}
	h.cat = catalog.New(h.root, nil)
	require.NoError(t, h.cat.Load(context.Background()))
	h.ev = New(h.cat, st, collector, audit.NewRecorder(st, nil), opts...)
	return h
}

func (h *harness) writePolicy(t *testing.T, name, content string) {
	t.Helper()
	dir := filepath.Join(h.root, "policies")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	require.NoError(t, h.cat.Load(context.Background()))
}

func (h *harness) seed(t *testing.T, m *datatypes.Measurement) {
	t.Helper()
	require.NoError(t, h.st.UpsertMeasurement(context.Background(), m))
}

func (h *harness) auditEvents(t *testing.T, eventType string) []extensions.AuditEvent {
	t.Helper()
	events, err := h.st.QueryAuditEvents(context.Background(), extensions.AuditFilter{
		EventTypes: []string{eventType},
		Limit:      50,
	})
	require.NoError(t, err)
	return events
}

// runPolicyYAML renders an enabled global policy with a 500ms p95 ceiling
// on the run route.
func runPolicyYAML(mode string, trigger int, allowDegrade bool, extraObjectives string) string {
	return fmt.Sprintf(`id: pol-run
name: run guardrails
version: 1
enabled: true
updated_at: 2026-05-01T00:00:00Z
config:
  objectives:
    availability_pct_min: 99.5
    p95_ms_max:
      run: 500
%s  enforcement:
    mode: %s
    breach_window_seconds: 60
    consecutive_windows_to_trigger: %d
  mitigation:
    allow_degrade: %t
    disable_audio_channel: true
    min_results: 3
    max_output_bytes: 32768
    fallback_providers:
      - primary-alt
      - burst-pool
`, extraObjectives, mode, trigger, allowDegrade)
}

// window builds a clean one-minute measurement ending at end.
func window(tenant string, route datatypes.RouteClass, windowSeconds int, end time.Time) *datatypes.Measurement {
	avail := 100.0
	return &datatypes.Measurement{
		ID:              datatypes.MeasurementID(tenant, route, windowSeconds, end),
		Tenant:          tenant,
		RouteClass:      route,
		WindowSeconds:   windowSeconds,
		WindowStart:     end.Add(-time.Duration(windowSeconds) * time.Second),
		WindowEnd:       end,
		RequestCount:    100,
		P50MS:           40,
		P95MS:           120,
		P99MS:           200,
		AvailabilityPct: &avail,
		ComputedAt:      end,
	}
}

func pct(v float64) *float64 { return &v }

func okSignals() signals.Collector {
	return signals.NewStatic(signals.StaticValues{
		Replicas:      2,
		QueueDepth:    pct(2),
		SaturationPct: pct(15),
	})
}

// TestEvaluate_NoPolicy verifies an unconfigured tenant passes with
// degraded quality and no policy id.
func TestEvaluate_NoPolicy(t *testing.T) {
	h := newHarness(t, okSignals())

	eval, err := h.ev.EvaluateTenantSLA(context.Background(), "acme", datatypes.RouteRun)
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusHealthy, eval.Status)
	assert.Equal(t, datatypes.DecisionAllow, eval.Decision)
	assert.Equal(t, datatypes.SignalDegraded, eval.SignalQuality)
	assert.Empty(t, eval.PolicyID)
	assert.Empty(t, eval.Breaches)
	assert.False(t, eval.EvaluatedAt.IsZero())
}

// TestEvaluate_InvalidPolicy verifies a malformed document degrades to a
// warning with an audit record instead of failing the caller.
func TestEvaluate_InvalidPolicy(t *testing.T) {
	h := newHarness(t, okSignals())
	h.writePolicy(t, "broken.yaml", `id: pol-broken
name: broken
version: 1
enabled: true
updated_at: 2026-05-01T00:00:00Z
config:
  objectives:
    availability_pct_min: 99.5
    p95_ms_max:
      run: 500
  enforcement:
    mode: enforce
`)

	eval, err := h.ev.EvaluateTenantSLA(context.Background(), "acme", datatypes.RouteRun)
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusWarning, eval.Status)
	assert.Equal(t, datatypes.DecisionAllow, eval.Decision)
	assert.Equal(t, "pol-broken", eval.PolicyID)
	assert.Equal(t, datatypes.SignalDegraded, eval.SignalQuality)

	events := h.auditEvents(t, EventPolicyInvalid)
	require.Len(t, events, 1)
	assert.Equal(t, "pol-broken", events[0].ResourceID)
	assert.Equal(t, "invalid", events[0].Outcome)
	reason, ok := events[0].Metadata.Get("reason")
	require.True(t, ok)
	assert.Contains(t, reason, "mitigation")
}

// TestEvaluate_NoMeasurements verifies a configured tenant with no stored
// windows warns rather than passing silently.
func TestEvaluate_NoMeasurements(t *testing.T) {
	h := newHarness(t, okSignals())
	h.writePolicy(t, "run.yaml", runPolicyYAML("enforce", 3, true, ""))

	eval, err := h.ev.EvaluateTenantSLA(context.Background(), "acme", datatypes.RouteRun)
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusWarning, eval.Status)
	assert.Equal(t, datatypes.DecisionWarn, eval.Decision)
	assert.Equal(t, datatypes.SignalDegraded, eval.SignalQuality)
	assert.Nil(t, eval.WindowEnd)
	assert.Zero(t, eval.BreachStreak)
}

// TestEvaluate_P95BreachDegrades verifies a p95 of 900ms against a 500ms
// ceiling with a one-window trigger confirms a breach and returns the
// policy's mitigation set verbatim.
func TestEvaluate_P95BreachDegrades(t *testing.T) {
	h := newHarness(t, okSignals())
	h.writePolicy(t, "run.yaml", runPolicyYAML("enforce", 1, true, ""))

	m := window("acme", datatypes.RouteRun, 60, evalBase)
	m.P95MS = 900
	h.seed(t, m)

	eval, err := h.ev.EvaluateTenantSLA(context.Background(), "acme", datatypes.RouteRun)
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusBreached, eval.Status)
	assert.Equal(t, datatypes.DecisionDegrade, eval.Decision)
	assert.Equal(t, "pol-run", eval.PolicyID)
	assert.Equal(t, datatypes.ModeEnforce, eval.PolicyMode)
	assert.Equal(t, 1, eval.BreachStreak)
	require.NotNil(t, eval.WindowEnd)
	assert.True(t, eval.WindowEnd.Equal(evalBase))
	assert.Equal(t, datatypes.SignalOK, eval.SignalQuality)

	require.Len(t, eval.Breaches, 1)
	breach := eval.Breaches[0]
	assert.Equal(t, datatypes.BreachLatencyP95, breach.Type)
	assert.Equal(t, 900.0, breach.Actual)
	assert.Equal(t, 500.0, breach.Threshold)
	assert.Equal(t, datatypes.SeveritySev2, breach.Severity)

	require.NotNil(t, eval.DegradeActions)
	assert.Equal(t, &datatypes.DegradeActions{
		DisableAudioChannel: true,
		MinResults:          3,
		MaxOutputBytes:      32768,
		FallbackProviders:   []string{"primary-alt", "burst-pool"},
	}, eval.DegradeActions)

	assert.Equal(t, []string{ActionIncreaseCapacity}, eval.RecommendedActions)
	assert.NotEmpty(t, eval.IncidentID)
}

// TestEvaluate_DecisionTable drives the same confirmed breach through each
// enforcement mode and mitigation combination.
func TestEvaluate_DecisionTable(t *testing.T) {
	tests := []struct {
		name         string
		mode         string
		allowDegrade bool
		shed         bool
		want         datatypes.EnforcementDecision
	}{
		{"observe allows", "observe", true, false, datatypes.DecisionAllow},
		{"warn warns", "warn", true, false, datatypes.DecisionWarn},
		{"enforce degrades", "enforce", true, false, datatypes.DecisionDegrade},
		{"enforce without mitigation fails open", "enforce", false, false, datatypes.DecisionWarn},
		{"enforce sheds as fallback", "enforce", false, true, datatypes.DecisionShed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.shed {
				opts = append(opts, WithShedOnSaturation(true))
			}
			h := newHarness(t, okSignals(), opts...)
			h.writePolicy(t, "run.yaml", runPolicyYAML(tt.mode, 1, tt.allowDegrade, ""))

			m := window("acme", datatypes.RouteRun, 60, evalBase)
			m.P95MS = 900
			h.seed(t, m)

			eval, err := h.ev.EvaluateTenantSLA(context.Background(), "acme", datatypes.RouteRun)
			require.NoError(t, err)

			assert.Equal(t, datatypes.StatusBreached, eval.Status,
				"status is derived from the data, not the mode")
			assert.Equal(t, tt.want, eval.Decision)
			if tt.want != datatypes.DecisionDegrade {
				assert.Nil(t, eval.DegradeActions)
			}
		})
	}
}

// TestEvaluate_SaturationSheds verifies a saturation breach takes the shed
// branch ahead of degrade when shedding is enabled platform-wide.
func TestEvaluate_SaturationSheds(t *testing.T) {
	h := newHarness(t, okSignals(), WithShedOnSaturation(true))
	h.writePolicy(t, "run.yaml", runPolicyYAML("enforce", 1, true, "    saturation_pct_max: 85\n"))

	m := window("acme", datatypes.RouteRun, 60, evalBase)
	m.AvgSaturationPct = pct(95)
	h.seed(t, m)

	eval, err := h.ev.EvaluateTenantSLA(context.Background(), "acme", datatypes.RouteRun)
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusBreached, eval.Status)
	assert.Equal(t, datatypes.DecisionShed, eval.Decision)
	assert.Nil(t, eval.DegradeActions)

	require.Len(t, eval.Breaches, 1)
	assert.Equal(t, datatypes.BreachSaturation, eval.Breaches[0].Type)
	assert.Equal(t, datatypes.SeveritySev1, eval.Breaches[0].Severity)
	assert.Equal(t, []string{ActionShedLoad}, eval.RecommendedActions)

	incidents, err := h.st.ListIncidents(context.Background(), "acme", false, 10)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, datatypes.IncidentMitigating, incidents[0].Status)
}

// TestEvaluate_StreakGatesBreach verifies a three-window trigger holds the
// status at warning until the windows breach consecutively.
func TestEvaluate_StreakGatesBreach(t *testing.T) {
	h := newHarness(t, okSignals())
	h.writePolicy(t, "run.yaml", runPolicyYAML("enforce", 3, true, ""))

	newest := window("acme", datatypes.RouteRun, 60, evalBase)
	newest.P95MS = 900
	middle := window("acme", datatypes.RouteRun, 60, evalBase.Add(-time.Minute))
	oldest := window("acme", datatypes.RouteRun, 60, evalBase.Add(-2*time.Minute))
	oldest.P95MS = 900
	h.seed(t, newest)
	h.seed(t, middle)
	h.seed(t, oldest)

	eval, err := h.ev.EvaluateTenantSLA(context.Background(), "acme", datatypes.RouteRun)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusWarning, eval.Status)
	assert.Equal(t, datatypes.DecisionWarn, eval.Decision)
	assert.Equal(t, 1, eval.BreachStreak, "clean middle window cuts the streak")

	middle.P95MS = 900
	h.seed(t, middle)

	eval, err = h.ev.EvaluateTenantSLA(context.Background(), "acme", datatypes.RouteRun)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusBreached, eval.Status)
	assert.Equal(t, 3, eval.BreachStreak)
}

// TestEvaluate_IncidentDeduplication verifies repeated confirmed breaches
// update the one open incident instead of opening more, with the last
// breach time advancing.
func TestEvaluate_IncidentDeduplication(t *testing.T) {
	h := newHarness(t, okSignals())
	h.writePolicy(t, "run.yaml", runPolicyYAML("enforce", 1, true, ""))
	h.ev.now = func() time.Time { return evalBase }

	m := window("acme", datatypes.RouteRun, 60, evalBase)
	m.P95MS = 900
	h.seed(t, m)

	first, err := h.ev.EvaluateTenantSLA(context.Background(), "acme", datatypes.RouteRun)
	require.NoError(t, err)
	require.NotEmpty(t, first.IncidentID)

	h.ev.now = func() time.Time { return evalBase.Add(time.Minute) }
	second, err := h.ev.EvaluateTenantSLA(context.Background(), "acme", datatypes.RouteRun)
	require.NoError(t, err)

	assert.Equal(t, first.IncidentID, second.IncidentID)

	incidents, err := h.st.ListIncidents(context.Background(), "acme", true, 10)
	require.NoError(t, err)
	require.Len(t, incidents, 1, "no duplicate incident while one is open")

	inc := incidents[0]
	assert.Equal(t, datatypes.IncidentMitigating, inc.Status)
	assert.True(t, inc.FirstBreachAt.Equal(evalBase))
	assert.True(t, inc.LastBreachAt.After(inc.FirstBreachAt))

	assert.Len(t, h.auditEvents(t, EventIncidentOpened), 1)
	assert.Len(t, h.auditEvents(t, EventIncidentUpdated), 1)
	assert.Len(t, h.auditEvents(t, EventBreachDetected), 2)
}

// TestEvaluate_IncidentResolvesOnHealthy verifies the open incident closes
// once the newest window is clean again.
func TestEvaluate_IncidentResolvesOnHealthy(t *testing.T) {
	h := newHarness(t, okSignals())
	h.writePolicy(t, "run.yaml", runPolicyYAML("enforce", 1, true, ""))

	breached := window("acme", datatypes.RouteRun, 60, evalBase)
	breached.P95MS = 900
	h.seed(t, breached)

	first, err := h.ev.EvaluateTenantSLA(context.Background(), "acme", datatypes.RouteRun)
	require.NoError(t, err)
	require.NotEmpty(t, first.IncidentID)

	h.seed(t, window("acme", datatypes.RouteRun, 60, evalBase.Add(time.Minute)))

	second, err := h.ev.EvaluateTenantSLA(context.Background(), "acme", datatypes.RouteRun)
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusHealthy, second.Status)
	assert.Equal(t, datatypes.DecisionAllow, second.Decision)
	assert.Equal(t, first.IncidentID, second.IncidentID)

	incidents, err := h.st.ListIncidents(context.Background(), "acme", true, 10)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	assert.Equal(t, datatypes.IncidentResolved, incidents[0].Status)
	require.NotNil(t, incidents[0].ResolvedAt)

	assert.Len(t, h.auditEvents(t, EventIncidentResolved), 1)
}

// TestEvaluate_EmptyWindowHasNoAvailability verifies a window with no
// requests is not judged against the availability floor.
func TestEvaluate_EmptyWindowHasNoAvailability(t *testing.T) {
	h := newHarness(t, okSignals())
	h.writePolicy(t, "run.yaml", runPolicyYAML("enforce", 1, true, ""))

	m := window("acme", datatypes.RouteRun, 60, evalBase)
	m.RequestCount = 0
	m.ErrorCount = 0
	m.P50MS, m.P95MS, m.P99MS = 0, 0, 0
	m.AvailabilityPct = nil
	h.seed(t, m)

	eval, err := h.ev.EvaluateTenantSLA(context.Background(), "acme", datatypes.RouteRun)
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusHealthy, eval.Status)
	assert.Empty(t, eval.Breaches)
}

// TestEvaluate_ErrorBudgetBurn verifies the five-minute burn check fires
// from the smoothing window even when the newest reaction window is clean.
func TestEvaluate_ErrorBudgetBurn(t *testing.T) {
	h := newHarness(t, okSignals())
	h.writePolicy(t, "run.yaml", runPolicyYAML("enforce", 1, true, "    max_error_budget_burn_5m: 2\n"))

	h.seed(t, window("acme", datatypes.RouteRun, 60, evalBase))

	slow := window("acme", datatypes.RouteRun, 300, evalBase)
	slow.RequestCount = 100
	slow.ErrorCount = 3
	slow.AvailabilityPct = pct(97)
	h.seed(t, slow)

	eval, err := h.ev.EvaluateTenantSLA(context.Background(), "acme", datatypes.RouteRun)
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusBreached, eval.Status)
	require.Len(t, eval.Breaches, 1)

	// 3% errors against the 0.5% budget the 99.5 floor leaves: 6x burn.
	breach := eval.Breaches[0]
	assert.Equal(t, datatypes.BreachErrorBudgetBurn, breach.Type)
	assert.InDelta(t, 6.0, breach.Actual, 1e-9)
	assert.Equal(t, 2.0, breach.Threshold)
	assert.Equal(t, 300, breach.WindowSeconds)
	assert.Equal(t, []string{ActionInvestigateErrorSources}, eval.RecommendedActions)
}

// TestEvaluate_SaturationPrefersStored verifies the stored window average
// wins over the live gauge, which is only the fallback.
func TestEvaluate_SaturationPrefersStored(t *testing.T) {
	collector := signals.NewStatic(signals.StaticValues{
		Replicas:      2,
		QueueDepth:    pct(2),
		SaturationPct: pct(10),
	})
	h := newHarness(t, collector)
	h.writePolicy(t, "run.yaml", runPolicyYAML("enforce", 1, false, "    saturation_pct_max: 85\n"))

	stored := window("acme", datatypes.RouteRun, 60, evalBase)
	stored.AvgSaturationPct = pct(90)
	h.seed(t, stored)

	eval, err := h.ev.EvaluateTenantSLA(context.Background(), "acme", datatypes.RouteRun)
	require.NoError(t, err)
	require.Len(t, eval.Breaches, 1)
	assert.Equal(t, 90.0, eval.Breaches[0].Actual, "stored average wins over the 10%% live gauge")

	// Without a stored average the live gauge is consulted.
	hot := signals.NewStatic(signals.StaticValues{
		Replicas:      2,
		QueueDepth:    pct(2),
		SaturationPct: pct(95),
	})
	h2 := newHarness(t, hot)
	h2.writePolicy(t, "run.yaml", runPolicyYAML("enforce", 1, false, "    saturation_pct_max: 85\n"))
	h2.seed(t, window("acme", datatypes.RouteRun, 60, evalBase))

	eval, err = h2.ev.EvaluateTenantSLA(context.Background(), "acme", datatypes.RouteRun)
	require.NoError(t, err)
	require.Len(t, eval.Breaches, 1)
	assert.Equal(t, 95.0, eval.Breaches[0].Actual)
	assert.Contains(t, eval.Breaches[0].Detail, "live gauge")
}

// TestEvaluate_DegradedSignalsAudited verifies a degraded collector leaves
// an informational audit record without affecting the verdict.
func TestEvaluate_DegradedSignalsAudited(t *testing.T) {
	h := newHarness(t, signals.NewNop())
	h.writePolicy(t, "run.yaml", runPolicyYAML("enforce", 1, true, ""))
	h.seed(t, window("acme", datatypes.RouteRun, 60, evalBase))

	eval, err := h.ev.EvaluateTenantSLA(context.Background(), "acme", datatypes.RouteRun)
	require.NoError(t, err)

	assert.Equal(t, datatypes.StatusHealthy, eval.Status)
	assert.Equal(t, datatypes.SignalDegraded, eval.SignalQuality)

	events := h.auditEvents(t, EventSignalDegraded)
	require.Len(t, events, 1)
	assert.Equal(t, "acme", events[0].ResourceID)
}

// TestCheckWindow_FixedBreachOrder verifies the breach list always comes
// back availability, p95, p99, saturation, burn.
func TestCheckWindow_FixedBreachOrder(t *testing.T) {
	cfg := &policy.Config{
		Objectives: policy.Objectives{
			AvailabilityPctMin:   99.5,
			P95MSMax:             map[datatypes.RouteClass]float64{datatypes.RouteRun: 500},
			P99MSMax:             map[datatypes.RouteClass]float64{datatypes.RouteRun: 800},
			SaturationPctMax:     pct(85),
			MaxErrorBudgetBurn5M: pct(2),
		},
	}

	m := window("acme", datatypes.RouteRun, 60, evalBase)
	m.P95MS = 900
	m.P99MS = 1500
	m.AvailabilityPct = pct(95)
	m.AvgSaturationPct = pct(97)

	slow := window("acme", datatypes.RouteRun, 300, evalBase)
	slow.RequestCount = 100
	slow.ErrorCount = 10

	breaches := checkWindow(cfg, datatypes.RouteRun, m, datatypes.LiveSignals{}, slow)
	require.Len(t, breaches, 5)

	order := make([]datatypes.BreachType, 0, len(breaches))
	for _, b := range breaches {
		order = append(order, b.Type)
	}
	assert.Equal(t, []datatypes.BreachType{
		datatypes.BreachAvailability,
		datatypes.BreachLatencyP95,
		datatypes.BreachLatencyP99,
		datatypes.BreachSaturation,
		datatypes.BreachErrorBudgetBurn,
	}, order)
}

// TestClassifySeverity pins the tier cut points.
func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		name      string
		breach    datatypes.BreachType
		actual    float64
		threshold float64
		want      datatypes.Severity
	}{
		{"availability 14.5 points under", datatypes.BreachAvailability, 85, 99.5, datatypes.SeveritySev1},
		{"availability 6.5 points under", datatypes.BreachAvailability, 93, 99.5, datatypes.SeveritySev2},
		{"availability 3.5 points under", datatypes.BreachAvailability, 96, 99.5, datatypes.SeveritySev3},
		{"saturation 10 points over", datatypes.BreachSaturation, 95, 85, datatypes.SeveritySev1},
		{"p95 80 percent over", datatypes.BreachLatencyP95, 900, 500, datatypes.SeveritySev2},
		{"p95 2 percent over", datatypes.BreachLatencyP95, 510, 500, datatypes.SeveritySev3},
		{"p95 never reaches sev1", datatypes.BreachLatencyP95, 5000, 500, datatypes.SeveritySev2},
		{"burn 200 percent over", datatypes.BreachErrorBudgetBurn, 6, 2, datatypes.SeveritySev2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifySeverity(tt.breach, tt.actual, tt.threshold))
		})
	}
}

// TestBurnRate_NoBudgetLeft pins the division guard for a 100% floor.
func TestBurnRate_NoBudgetLeft(t *testing.T) {
	assert.True(t, math.IsInf(burnRate(0.01, 100), 1))
	assert.Zero(t, burnRate(0, 100))
	assert.InDelta(t, 6.0, burnRate(0.03, 99.5), 1e-9)
}
