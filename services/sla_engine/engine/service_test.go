// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGuard/services/sla_engine/config"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/storage/badger"
)

// ----------------------------------------------------------------------------
// Fixtures
// ----------------------------------------------------------------------------

const testPolicyYAML = `id: pol-standard
name: pol-standard
version: 1
enabled: true
updated_at: 2026-08-01T00:00:00Z
config:
  objectives:
    availability_pct_min: 99.5
    p95_ms_max:
      read: 250
  enforcement:
    mode: enforce
    breach_window_seconds: 60
    consecutive_windows_to_trigger: 3
  mitigation:
    allow_degrade: true
`

const testAssignmentYAML = `id: asg-acme
tenant: acme
policy_id: pol-standard
effective_from: 2026-01-01T00:00:00Z
`

const testProfileYAML = `id: prof-run
scope: route_class
route_class: run
min_replicas: 1
max_replicas: 5
target_p95_ms: 200
target_queue_depth: 10
cooldown_seconds: 120
step_up: 2
step_down: 1
`

func writeDoc(t *testing.T, root, kind, name, content string) {
	t.Helper()
	dir := filepath.Join(root, kind)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func catalogFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeDoc(t, root, "policies", "standard.yaml", testPolicyYAML)
	writeDoc(t, root, "assignments", "acme.yaml", testAssignmentYAML)
	writeDoc(t, root, "profiles", "run.yaml", testProfileYAML)
	return root
}

func f64(v float64) *float64 { return &v }

// testConfig returns a configuration pointed at a one-of-each catalog
// fixture, with static signals reporting an overloaded run route: p95 400ms
// against a 200ms target and queue depth 20 against a target of 10.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.CatalogDir = catalogFixture(t)
	cfg.Server.SweepSeconds = 1
	cfg.Signals.Backend = "static"
	cfg.Signals.Static = config.StaticSignalsConfig{
		Replicas:   2,
		P95MS:      f64(400),
		QueueDepth: f64(20),
	}
	return cfg
}

func newTestService(t *testing.T, cfg config.Config, opts ...Option) *Service {
	t.Helper()
	db, err := badger.OpenDB(badger.InMemoryConfig())
	require.NoError(t, err)
	svc, err := NewService(context.Background(), cfg, nil, append([]Option{WithDatabase(db)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

// fakeExecutor counts scale calls and reports success unless told to fail.
type fakeExecutor struct {
	calls int
	fail  bool
}

func (f *fakeExecutor) Name() string { return "fake" }

func (f *fakeExecutor) Scale(_ context.Context, _ *datatypes.AutoscalingAction) (bool, error) {
	f.calls++
	if f.fail {
		return false, errors.New("connect: connection refused")
	}
	return true, nil
}

// downCollector answers every call as an unreachable backend.
type downCollector struct{}

func (downCollector) Name() string { return "down" }

func (downCollector) LiveSignals(_ context.Context, _ string, _ datatypes.RouteClass) datatypes.LiveSignals {
	return datatypes.LiveSignals{
		Quality: datatypes.SignalDegraded,
		Details: []string{"backend unreachable"},
	}
}

func (downCollector) Snapshot(_ context.Context, _ string, _ datatypes.RouteClass) datatypes.SignalSnapshot {
	return datatypes.SignalSnapshot{}
}

func (downCollector) Ping(_ context.Context) error {
	return errors.New("dial tcp: connection refused")
}

// ----------------------------------------------------------------------------
// Construction
// ----------------------------------------------------------------------------

func TestNewService_WiresCatalogAndBackends(t *testing.T) {
	svc := newTestService(t, testConfig(t))

	stats := svc.catalog.Stats()
	assert.Equal(t, 1, stats.Policies)
	assert.Equal(t, 1, stats.Assignments)
	assert.Equal(t, 1, stats.Profiles)
	assert.True(t, stats.Watching)

	assert.Equal(t, "static", svc.collector.Name())
	assert.Equal(t, "noop", svc.executor.Name())
}

func TestNewService_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Port = 0

	_, err := NewService(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestNewService_UnknownSignalsBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Signals.Backend = "statsd"

	db, err := badger.OpenDB(badger.InMemoryConfig())
	require.NoError(t, err)

	_, err = NewService(context.Background(), cfg, nil, WithDatabase(db))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build signal collector")
}

func TestNewService_UnknownExecutorBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Autoscale.Backend = "kubernetes"

	db, err := badger.OpenDB(badger.InMemoryConfig())
	require.NoError(t, err)

	_, err = NewService(context.Background(), cfg, nil, WithDatabase(db))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build scale executor")
}

// ----------------------------------------------------------------------------
// Sweep Passes
// ----------------------------------------------------------------------------

func TestSweep_EvaluatesEveryRouteClass(t *testing.T) {
	svc := newTestService(t, testConfig(t))

	evaluated := svc.Sweep(context.Background())

	// One assigned tenant, every route class.
	assert.Equal(t, len(datatypes.AllRouteClasses()), evaluated)
}

func TestSweep_StopsOnCancelledContext(t *testing.T) {
	svc := newTestService(t, testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Zero(t, svc.Sweep(ctx))
}

func TestAutoscaleSweep_DryRunSkipsExecutor(t *testing.T) {
	exec := &fakeExecutor{}
	cfg := testConfig(t)
	cfg.Autoscale.DryRun = true

	svc := newTestService(t, cfg, WithExecutor(exec))

	recorded := svc.AutoscaleSweep(context.Background())
	require.Equal(t, 1, recorded)
	assert.Zero(t, exec.calls)

	actions, err := svc.store.ListActions(context.Background(), "prof-run", 10)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, datatypes.ActionScaleUp, actions[0].Action)
	assert.Equal(t, 4, actions[0].ToReplicas)
	assert.False(t, actions[0].Executed)
}

func TestAutoscaleSweep_ApplyDrivesExecutor(t *testing.T) {
	exec := &fakeExecutor{}
	cfg := testConfig(t)
	cfg.Autoscale.DryRun = false

	svc := newTestService(t, cfg, WithExecutor(exec))

	recorded := svc.AutoscaleSweep(context.Background())
	require.Equal(t, 1, recorded)
	assert.Equal(t, 1, exec.calls)

	actions, err := svc.store.ListActions(context.Background(), "prof-run", 10)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.True(t, actions[0].Executed)
	require.NotNil(t, actions[0].ExecutedAt)
}

func TestAutoscaleSweep_CooldownBlocksSecondPass(t *testing.T) {
	exec := &fakeExecutor{}
	cfg := testConfig(t)
	cfg.Autoscale.DryRun = false

	svc := newTestService(t, cfg, WithExecutor(exec))

	require.Equal(t, 1, svc.AutoscaleSweep(context.Background()))
	require.Equal(t, 1, svc.AutoscaleSweep(context.Background()))

	// The second pass recorded a blocked hold instead of scaling again.
	assert.Equal(t, 1, exec.calls)
	actions, err := svc.store.ListActions(context.Background(), "prof-run", 10)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, datatypes.ActionHold, actions[0].Action)
	assert.True(t, actions[0].CooldownActive)
}

func TestAutoscaleSweep_ExecutorFailureLogsAndContinues(t *testing.T) {
	exec := &fakeExecutor{fail: true}
	cfg := testConfig(t)
	cfg.Autoscale.DryRun = false

	svc := newTestService(t, cfg, WithExecutor(exec))

	// The pass records the unexecuted action but reports nothing recorded
	// cleanly.
	assert.Zero(t, svc.AutoscaleSweep(context.Background()))
	assert.Equal(t, 1, exec.calls)

	actions, err := svc.store.ListActions(context.Background(), "prof-run", 10)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.False(t, actions[0].Executed)
}

// ----------------------------------------------------------------------------
// Loops
// ----------------------------------------------------------------------------

func TestRunSweepLoop_DisabledByConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.SLA.Enabled = false

	svc := newTestService(t, cfg)

	// Returns immediately without waiting for ctx.
	require.NoError(t, svc.RunSweepLoop(context.Background()))
}

func TestRunLoops_StopOnCancel(t *testing.T) {
	svc := newTestService(t, testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, svc.RunSweepLoop(ctx))
	require.NoError(t, svc.RunAutoscaleLoop(ctx))
}
