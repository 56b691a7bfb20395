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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGuard/pkg/extensions"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/audit"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/storage/badger"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/store"
)

var scaleBase = time.Date(2026, 5, 12, 9, 0, 0, 0, time.UTC)

// harness wires a recommender over an in-memory store, composed the same
// way the service composes the real thing.
type harness struct {
	st  *store.Store
	rec *Recommender
}

func newHarness(t *testing.T, exec Executor, opts ...Option) *harness {
	t.Helper()
	db, err := badger.OpenDB(badger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.New(db, nil)
	return &harness{
		st:  st,
		rec: New(st, exec, audit.NewRecorder(st, nil), opts...),
	}
}

// setNow pins the recommender clock. Tests advance it between calls so
// action rows land on distinct keys and cooldown math is exact.
func (h *harness) setNow(at time.Time) {
	h.rec.now = func() time.Time { return at }
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

// runProfile builds the profile the scaling scenarios share: one to four
// replicas, 200ms p95 target, queue depth target of ten, five minute
// cooldown, single-step moves.
func runProfile() *datatypes.AutoscalingProfile {
	return &datatypes.AutoscalingProfile{
		ID:               "prof-run",
		Scope:            datatypes.ScopeRouteClass,
		RouteClass:       datatypes.RouteRun,
		MinReplicas:      1,
		MaxReplicas:      4,
		TargetP95MS:      200,
		TargetQueueDepth: 10,
		CooldownSeconds:  300,
		StepUp:           1,
		StepDown:         1,
	}
}

func f64(v float64) *float64 { return &v }

func snap(replicas int, p95, queue *float64) datatypes.SignalSnapshot {
	return datatypes.SignalSnapshot{
		CurrentReplicas: replicas,
		P95MS:           p95,
		QueueDepth:      queue,
		CollectedAt:     scaleBase,
	}
}

// fakeExecutor records scale calls and optionally refuses them.
type fakeExecutor struct {
	calls int
	fail  bool
	last  *datatypes.AutoscalingAction
}

func (f *fakeExecutor) Name() string { return "fake" }

func (f *fakeExecutor) Scale(_ context.Context, action *datatypes.AutoscalingAction) (bool, error) {
	f.calls++
	f.last = action
	if f.fail {
		return false, errors.New("connect: connection refused")
	}
	return true, nil
}

// -----------------------------------------------------------------------------
// Pure Recommendation
// -----------------------------------------------------------------------------

// TestRecommend_Table walks the priority ladder with a 10% band around
// the 200ms and depth-10 targets: upper bands 220 and 11, lower bands
// 180 and 9.
func TestRecommend_Table(t *testing.T) {
	profile := runProfile()

	tests := []struct {
		name     string
		signal   datatypes.SignalSnapshot
		cooldown bool
		action   datatypes.ActionKind
		target   int
		reason   string
	}{
		{"overloaded p95 scales up", snap(1, f64(500), nil), false, datatypes.ActionScaleUp, 2, datatypes.ReasonAboveTarget},
		{"overloaded queue scales up", snap(2, nil, f64(40)), false, datatypes.ActionScaleUp, 3, datatypes.ReasonAboveTarget},
		{"overload at max degrades", snap(4, f64(500), f64(40)), false, datatypes.ActionDegrade, 4, datatypes.ReasonAtMaxReplicas},
		{"no gauges holds", snap(2, nil, nil), false, datatypes.ActionHold, 2, datatypes.ReasonSignalUnavailable},
		{"cooldown holds despite overload", snap(1, f64(500), nil), true, datatypes.ActionHold, 1, datatypes.ReasonCooldownActive},
		{"missing gauges outrank cooldown", snap(2, nil, nil), true, datatypes.ActionHold, 2, datatypes.ReasonSignalUnavailable},
		{"quiet on both gauges scales down", snap(3, f64(100), f64(2)), false, datatypes.ActionScaleDown, 2, datatypes.ReasonBelowTarget},
		{"quiet at min holds", snap(1, f64(100), f64(2)), false, datatypes.ActionHold, 1, datatypes.ReasonWithinTargets},
		{"one quiet gauge cannot scale down", snap(3, f64(100), nil), false, datatypes.ActionHold, 3, datatypes.ReasonWithinTargets},
		{"inside the band holds", snap(2, f64(210), f64(10)), false, datatypes.ActionHold, 2, datatypes.ReasonWithinTargets},
		{"exactly on the upper band holds", snap(2, f64(220), f64(11)), false, datatypes.ActionHold, 2, datatypes.ReasonWithinTargets},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Recommend(profile, tt.signal, 10, tt.cooldown)
			assert.Equal(t, tt.action, rec.Action)
			assert.Equal(t, tt.target, rec.TargetReplicas)
			assert.Equal(t, tt.reason, rec.Reason)
		})
	}
}

// TestRecommend_StepClamping verifies steps never leave the replica
// bounds.
func TestRecommend_StepClamping(t *testing.T) {
	profile := runProfile()
	profile.StepUp = 3
	profile.StepDown = 5

	up := Recommend(profile, snap(2, f64(500), nil), 10, false)
	assert.Equal(t, datatypes.ActionScaleUp, up.Action)
	assert.Equal(t, 4, up.TargetReplicas)

	down := Recommend(profile, snap(4, f64(50), f64(1)), 10, false)
	assert.Equal(t, datatypes.ActionScaleDown, down.Action)
	assert.Equal(t, 1, down.TargetReplicas)
}

// -----------------------------------------------------------------------------
// Evaluate
// -----------------------------------------------------------------------------

// TestEvaluate_PersistsEveryCall verifies even a hold lands in the action
// trail and on the audit log.
func TestEvaluate_PersistsEveryCall(t *testing.T) {
	h := newHarness(t, nil)
	h.setNow(scaleBase)
	profile := runProfile()

	action, err := h.rec.Evaluate(context.Background(), profile, "acme", snap(2, f64(210), f64(10)))
	require.NoError(t, err)
	assert.Equal(t, datatypes.ActionHold, action.Action)
	assert.Equal(t, datatypes.ReasonWithinTargets, action.Reason)
	assert.False(t, action.Executed)
	assert.Equal(t, scaleBase, action.CreatedAt)

	rows, err := h.st.ListActions(context.Background(), profile.ID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, action.ID, rows[0].ID)

	events := h.auditEvents(t, EventAutoscaleEvaluated)
	require.Len(t, events, 1)
	assert.Equal(t, "success", events[0].Outcome)
	assert.Equal(t, profile.ID, events[0].ResourceID)
}

// TestEvaluate_DryRunSeesCooldown verifies evaluation reports cooldown
// as a hold rather than an error; only Apply raises the conflict.
func TestEvaluate_DryRunSeesCooldown(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHarness(t, exec)
	h.setNow(scaleBase)
	profile := runProfile()

	_, err := h.rec.Apply(context.Background(), profile, "acme", snap(1, f64(500), nil))
	require.NoError(t, err)

	h.setNow(scaleBase.Add(30 * time.Second))
	action, err := h.rec.Evaluate(context.Background(), profile, "acme", snap(2, f64(500), nil))
	require.NoError(t, err)
	assert.Equal(t, datatypes.ActionHold, action.Action)
	assert.Equal(t, datatypes.ReasonCooldownActive, action.Reason)
	assert.True(t, action.CooldownActive)
	assert.Equal(t, 1, exec.calls, "dry runs never reach the executor")
}

// TestEvaluate_NoSignalHolds verifies an empty snapshot recommends
// nothing and still leaves a row behind.
func TestEvaluate_NoSignalHolds(t *testing.T) {
	h := newHarness(t, nil)
	h.setNow(scaleBase)
	profile := runProfile()

	action, err := h.rec.Evaluate(context.Background(), profile, "acme", snap(3, nil, nil))
	require.NoError(t, err)
	assert.Equal(t, datatypes.ActionHold, action.Action)
	assert.Equal(t, datatypes.ReasonSignalUnavailable, action.Reason)
	assert.Equal(t, 3, action.ToReplicas)
}

// -----------------------------------------------------------------------------
// Apply
// -----------------------------------------------------------------------------

// TestApply_ScaleUpExecutes verifies an overloaded tenant under its
// replica cap scales up one step and the stored row flips to executed.
func TestApply_ScaleUpExecutes(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHarness(t, exec)
	h.setNow(scaleBase)
	profile := runProfile()

	action, err := h.rec.Apply(context.Background(), profile, "acme", snap(1, f64(500), nil))
	require.NoError(t, err)

	assert.Equal(t, datatypes.ActionScaleUp, action.Action)
	assert.Equal(t, 1, action.FromReplicas)
	assert.Equal(t, 2, action.ToReplicas)
	assert.Equal(t, datatypes.ReasonAboveTarget, action.Reason)
	assert.True(t, action.Executed)
	require.NotNil(t, action.ExecutedAt)
	assert.Equal(t, scaleBase, *action.ExecutedAt)
	assert.Equal(t, 1, exec.calls)

	// The executed flag replaces the row instead of appending a second.
	rows, err := h.st.ListActions(context.Background(), profile.ID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Executed)

	events := h.auditEvents(t, EventAutoscaleApplied)
	require.Len(t, events, 1)
	assert.Equal(t, "success", events[0].Outcome)
}

// TestApply_ImmediateReapplyConflicts verifies the second apply inside
// the cooldown window persists a hold, surfaces the conflict, and scales
// again once the window passes.
func TestApply_ImmediateReapplyConflicts(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHarness(t, exec)
	h.setNow(scaleBase)
	profile := runProfile()

	_, err := h.rec.Apply(context.Background(), profile, "acme", snap(1, f64(500), nil))
	require.NoError(t, err)

	h.setNow(scaleBase.Add(10 * time.Second))
	action, err := h.rec.Apply(context.Background(), profile, "acme", snap(2, f64(500), nil))
	require.ErrorIs(t, err, ErrCooldownActive)
	require.NotNil(t, action, "the blocking hold is still persisted")
	assert.Equal(t, datatypes.ActionHold, action.Action)
	assert.Equal(t, datatypes.ReasonCooldownActive, action.Reason)
	assert.True(t, action.CooldownActive)
	assert.Equal(t, 1, exec.calls, "the executor is not consulted under cooldown")

	h.setNow(scaleBase.Add(301 * time.Second))
	action, err = h.rec.Apply(context.Background(), profile, "acme", snap(2, f64(500), nil))
	require.NoError(t, err)
	assert.Equal(t, datatypes.ActionScaleUp, action.Action)
	assert.Equal(t, 3, action.ToReplicas)
	assert.Equal(t, 2, exec.calls)

	rows, err := h.st.ListActions(context.Background(), profile.ID, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	var denied int
	for _, ev := range h.auditEvents(t, EventAutoscaleApplied) {
		if ev.Outcome == "denied" {
			denied++
		}
	}
	assert.Equal(t, 1, denied)
}

// TestApply_HoldUnderCooldownIsNotConflict verifies cooldown only raises
// when the blocked recommendation would have changed replicas.
func TestApply_HoldUnderCooldownIsNotConflict(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHarness(t, exec)
	h.setNow(scaleBase)
	profile := runProfile()

	_, err := h.rec.Apply(context.Background(), profile, "acme", snap(1, f64(500), nil))
	require.NoError(t, err)

	// Gauges recovered, so the blocked recommendation would hold anyway.
	h.setNow(scaleBase.Add(10 * time.Second))
	action, err := h.rec.Apply(context.Background(), profile, "acme", snap(2, f64(210), f64(10)))
	require.NoError(t, err)
	assert.Equal(t, datatypes.ActionHold, action.Action)
	assert.Equal(t, datatypes.ReasonCooldownActive, action.Reason)
}

// TestApply_AtMaxDegrades verifies sustained overload at the replica cap
// recommends degrading instead of scaling past the cap.
func TestApply_AtMaxDegrades(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHarness(t, exec)
	h.setNow(scaleBase)
	profile := runProfile()

	action, err := h.rec.Apply(context.Background(), profile, "acme", snap(4, f64(900), f64(50)))
	require.NoError(t, err)
	assert.Equal(t, datatypes.ActionDegrade, action.Action)
	assert.Equal(t, datatypes.ReasonAtMaxReplicas, action.Reason)
	assert.Equal(t, 4, action.ToReplicas)
	assert.Equal(t, 0, exec.calls, "degrade is advisory, nothing to execute")
	assert.False(t, action.Executed)
}

// TestApply_ScaleDown verifies both gauges under their lower bands shed a
// replica and the executor sees the new target.
func TestApply_ScaleDown(t *testing.T) {
	exec := &fakeExecutor{}
	h := newHarness(t, exec)
	h.setNow(scaleBase)
	profile := runProfile()

	action, err := h.rec.Apply(context.Background(), profile, "acme", snap(3, f64(100), f64(2)))
	require.NoError(t, err)
	assert.Equal(t, datatypes.ActionScaleDown, action.Action)
	assert.Equal(t, 2, action.ToReplicas)
	assert.True(t, action.Executed)
	require.NotNil(t, exec.last)
	assert.Equal(t, 2, exec.last.ToReplicas)
}

// TestApply_ExecutorFailure verifies a refused scale call persists the
// action unexecuted and surfaces the executor error.
func TestApply_ExecutorFailure(t *testing.T) {
	exec := &fakeExecutor{fail: true}
	h := newHarness(t, exec)
	h.setNow(scaleBase)
	profile := runProfile()

	action, err := h.rec.Apply(context.Background(), profile, "acme", snap(1, f64(500), nil))
	require.ErrorIs(t, err, ErrExecutorUnavailable)
	require.NotNil(t, action)
	assert.Equal(t, datatypes.ActionScaleUp, action.Action)
	assert.False(t, action.Executed)
	assert.Nil(t, action.ExecutedAt)

	rows, err := h.st.ListActions(context.Background(), profile.ID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Executed)

	events := h.auditEvents(t, EventAutoscaleApplied)
	require.Len(t, events, 1)
	assert.Equal(t, "failure", events[0].Outcome)
	assert.Equal(t, "executor_unavailable", events[0].ErrorCode)
}

// TestApply_NoopKeepsUnexecuted verifies the default backend records the
// decision without scaling, and the recorded attempt still starts the
// cooldown clock.
func TestApply_NoopKeepsUnexecuted(t *testing.T) {
	h := newHarness(t, nil)
	h.setNow(scaleBase)
	profile := runProfile()

	action, err := h.rec.Apply(context.Background(), profile, "acme", snap(1, f64(500), nil))
	require.NoError(t, err)
	assert.Equal(t, datatypes.ActionScaleUp, action.Action)
	assert.False(t, action.Executed)

	h.setNow(scaleBase.Add(10 * time.Second))
	_, err = h.rec.Apply(context.Background(), profile, "acme", snap(1, f64(500), nil))
	require.ErrorIs(t, err, ErrCooldownActive)
}

// TestApply_InvalidProfile verifies structural problems fail before
// anything is persisted.
func TestApply_InvalidProfile(t *testing.T) {
	h := newHarness(t, nil)
	profile := runProfile()
	profile.MaxReplicas = 0

	_, err := h.rec.Apply(context.Background(), profile, "acme", snap(1, f64(500), nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid profile")

	rows, err := h.st.ListActions(context.Background(), profile.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

// -----------------------------------------------------------------------------
// Executors
// -----------------------------------------------------------------------------

func TestNewExecutor_Backends(t *testing.T) {
	exec, err := NewExecutor(ExecutorConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, BackendNoop, exec.Name())

	_, err = NewExecutor(ExecutorConfig{Backend: "kubernetes"}, nil)
	require.ErrorIs(t, err, ErrUnknownBackend)

	_, err = NewExecutor(ExecutorConfig{Backend: BackendHTTP}, nil)
	require.Error(t, err, "http backend needs a url")
}

// TestHTTPExecutor_Scale verifies the scale endpoint receives the replica
// change and a 2xx counts as applied.
func TestHTTPExecutor_Scale(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	exec, err := NewHTTP(ExecutorConfig{Backend: BackendHTTP, URL: server.URL}, nil)
	require.NoError(t, err)

	executed, err := exec.Scale(context.Background(), &datatypes.AutoscalingAction{
		ID:         "act-1",
		ProfileID:  "prof-run",
		Tenant:     "acme",
		RouteClass: datatypes.RouteRun,
		Action:     datatypes.ActionScaleUp,
		ToReplicas: 3,
		Reason:     datatypes.ReasonAboveTarget,
	})
	require.NoError(t, err)
	assert.True(t, executed)

	assert.Equal(t, "prof-run", got["profile_id"])
	assert.Equal(t, "scale_up", got["action"])
	assert.Equal(t, float64(3), got["replicas"])
	assert.Equal(t, "acme", got["tenant"])
}

// TestHTTPExecutor_RefusedStatus verifies a non-2xx response reports the
// change unapplied with the platform's reason.
func TestHTTPExecutor_RefusedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no capacity", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	exec, err := NewHTTP(ExecutorConfig{Backend: BackendHTTP, URL: server.URL}, nil)
	require.NoError(t, err)

	executed, err := exec.Scale(context.Background(), &datatypes.AutoscalingAction{
		ID:         "act-2",
		ProfileID:  "prof-run",
		Action:     datatypes.ActionScaleDown,
		ToReplicas: 1,
	})
	assert.False(t, executed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}
