// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package autoscaler turns live scaling signals into replica
// recommendations and, when asked, applies them through a pluggable
// platform executor.
//
// The decision core is a pure function over a profile and a signal
// snapshot. Around it, the Recommender measures cooldown from the stored
// action trail, persists every recommendation including holds, and emits
// the audit record. Evaluate is the dry run; Apply additionally drives
// the executor and raises a conflict error when cooldown blocks a
// replica change instead of silently holding.
package autoscaler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianGuard/pkg/extensions"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/store"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/telemetry"
)

// -----------------------------------------------------------------------------
// Audit Event Types
// -----------------------------------------------------------------------------

// Audit event types emitted by the recommender.
const (
	EventAutoscaleEvaluated = "autoscale.evaluated"
	EventAutoscaleApplied   = "autoscale.applied"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrCooldownActive rejects an apply whose recommendation would
	// change replicas while the profile cooldown still covers the last
	// replica change. The blocking hold is persisted before this error
	// is returned.
	ErrCooldownActive = errors.New("cooldown active")

	// ErrExecutorUnavailable marks a scale call the platform executor
	// could not complete. The unexecuted action is persisted before this
	// error is returned.
	ErrExecutorUnavailable = errors.New("executor unavailable")
)

// -----------------------------------------------------------------------------
// Recommender Configuration
// -----------------------------------------------------------------------------

// Config configures the recommender.
type Config struct {
	// HysteresisPct widens the target bands so gauges hovering near a
	// target do not flap the replica count.
	// Default: 10
	HysteresisPct float64

	// Logger for output.
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		HysteresisPct: 10,
		Logger:        slog.Default(),
	}
}

// -----------------------------------------------------------------------------
// Recommender Options
// -----------------------------------------------------------------------------

// Option configures the recommender.
type Option func(*Config)

// WithHysteresis sets the band width in percent.
func WithHysteresis(pct float64) Option {
	return func(c *Config) {
		if pct >= 0 {
			c.HysteresisPct = pct
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// -----------------------------------------------------------------------------
// Recommender
// -----------------------------------------------------------------------------

// Recommender runs the scaling policy against caller-provided signal
// snapshots and keeps the per-profile action trail that cooldown is
// measured from.
//
// Thread Safety: Safe for concurrent use across profiles. Concurrent
// calls for the same profile can race the cooldown read; run one
// scaling loop per profile.
type Recommender struct {
	store    *store.Store
	executor Executor
	audit    extensions.AuditLogger
	config   *Config
	logger   *slog.Logger
	metrics  *telemetry.Metrics

	// now is replaceable so cooldown arithmetic is controllable in tests.
	now func() time.Time
}

// New creates a recommender.
//
// Inputs:
//   - st: Action store. Must not be nil.
//   - exec: Platform executor. Nil selects the noop executor.
//   - auditLog: Audit sink. Nil selects the discarding logger.
//   - opts: Configuration options.
//
// Outputs:
//   - *Recommender: The new recommender. Never nil.
func New(
	st *store.Store,
	exec Executor,
	auditLog extensions.AuditLogger,
	opts ...Option,
) *Recommender {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if exec == nil {
		exec = NewNoop()
	}
	if auditLog == nil {
		auditLog = &extensions.NopAuditLogger{}
	}

	return &Recommender{
		store:    st,
		executor: exec,
		audit:    auditLog,
		config:   config,
		logger:   config.Logger.With(slog.String("component", "autoscaler")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetMetrics attaches meter instruments. Without it the recommender
// still works, it just does not record counters or durations.
func (r *Recommender) SetMetrics(m *telemetry.Metrics) {
	r.metrics = m
}

// -----------------------------------------------------------------------------
// Evaluate
// -----------------------------------------------------------------------------

// Evaluate runs one dry-run recommendation for a profile.
//
// Description:
//
//	Measures cooldown from the action trail, recommends against the
//	given snapshot, and persists the resulting action unexecuted. The
//	executor is never invoked and cooldown never raises an error here:
//	a blocked change records as a hold, exactly what Apply would have
//	done short of executing.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing. Must not be nil.
//	profile - Scaling profile to recommend under. Must be valid.
//	tenant - Tenant the snapshot was collected for. Empty for global
//	         profiles.
//	signal - Signal snapshot to recommend against.
//
// Outputs:
//
//	*datatypes.AutoscalingAction - The persisted action. Nil only on error.
//	error - Non-nil when inputs are invalid or storage fails.
//
// Thread Safety: Safe for concurrent use.
func (r *Recommender) Evaluate(ctx context.Context, profile *datatypes.AutoscalingProfile, tenant string, signal datatypes.SignalSnapshot) (*datatypes.AutoscalingAction, error) {
	if err := validateInputs(ctx, profile); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "sla_engine.autoscaler", "Recommender.Evaluate",
		trace.WithAttributes(
			attribute.String("profile_id", profile.ID),
			attribute.String("tenant", tenant),
		))
	defer span.End()

	start := time.Now()
	now := r.now()

	active, _, err := r.cooldown(ctx, profile, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	rec := Recommend(profile, signal, r.config.HysteresisPct, active)
	action := r.newAction(profile, tenant, rec, signal, now)

	if err := r.store.AppendAction(ctx, action); err != nil {
		err = fmt.Errorf("append action for profile %s: %w", profile.ID, err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	r.auditAction(ctx, EventAutoscaleEvaluated, "evaluate", action, "success", "")
	telemetry.SetSpanOK(span)
	r.finish(ctx, span, "evaluate", action, start)
	return action, nil
}

// -----------------------------------------------------------------------------
// Apply
// -----------------------------------------------------------------------------

// Apply runs one recommendation for a profile and enforces it.
//
// Description:
//
//	Measures cooldown, recommends, persists the action, and drives the
//	executor for replica-changing actions. When cooldown is active the
//	persisted action is a hold; if the unblocked recommendation would
//	have changed replicas the hold comes back with ErrCooldownActive so
//	the caller can distinguish "blocked" from "nothing to do". Executor
//	failures persist the action unexecuted and surface as
//	ErrExecutorUnavailable, never as a silent hold.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing. Must not be nil.
//	profile - Scaling profile to enforce. Must be valid.
//	tenant - Tenant the snapshot was collected for. Empty for global
//	         profiles.
//	signal - Signal snapshot to recommend against.
//
// Outputs:
//
//	*datatypes.AutoscalingAction - The persisted action. Non-nil even
//	        alongside ErrCooldownActive and ErrExecutorUnavailable.
//	error - Non-nil when inputs are invalid, storage fails, cooldown
//	        blocks a replica change, or the executor fails.
//
// Thread Safety: Safe for concurrent use.
func (r *Recommender) Apply(ctx context.Context, profile *datatypes.AutoscalingProfile, tenant string, signal datatypes.SignalSnapshot) (*datatypes.AutoscalingAction, error) {
	if err := validateInputs(ctx, profile); err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, "sla_engine.autoscaler", "Recommender.Apply",
		trace.WithAttributes(
			attribute.String("profile_id", profile.ID),
			attribute.String("tenant", tenant),
		))
	defer span.End()

	start := time.Now()
	now := r.now()

	active, remaining, err := r.cooldown(ctx, profile, now)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	rec := Recommend(profile, signal, r.config.HysteresisPct, active)
	action := r.newAction(profile, tenant, rec, signal, now)

	if err := r.store.AppendAction(ctx, action); err != nil {
		err = fmt.Errorf("append action for profile %s: %w", profile.ID, err)
		telemetry.RecordError(span, err)
		return nil, err
	}

	// A hold under cooldown is only a conflict when the gauges actually
	// called for a replica change.
	if active {
		wouldBe := Recommend(profile, signal, r.config.HysteresisPct, false)
		if wouldBe.Action.ChangesReplicas() {
			err := fmt.Errorf("profile %s: %w for another %s", profile.ID, ErrCooldownActive, remaining.Round(time.Second))
			telemetry.RecordError(span, err)
			r.auditAction(ctx, EventAutoscaleApplied, "apply", action, "denied", "cooldown_active")
			r.finish(ctx, span, "apply", action, start)
			return action, err
		}
		r.auditAction(ctx, EventAutoscaleApplied, "apply", action, "success", "")
		telemetry.SetSpanOK(span)
		r.finish(ctx, span, "apply", action, start)
		return action, nil
	}

	if rec.Action.ChangesReplicas() {
		executed, execErr := r.executor.Scale(ctx, action)
		if execErr != nil {
			r.countError(ctx, "executor_failed")
			telemetry.LoggerWithTrace(ctx, r.logger).Error("scale execution failed",
				slog.String("profile_id", profile.ID),
				slog.String("backend", r.executor.Name()),
				slog.String("action", string(action.Action)),
				slog.String("error", execErr.Error()),
			)
			err := fmt.Errorf("profile %s: %w: %v", profile.ID, ErrExecutorUnavailable, execErr)
			telemetry.RecordError(span, err, attribute.String("backend", r.executor.Name()))
			r.auditAction(ctx, EventAutoscaleApplied, "apply", action, "failure", "executor_unavailable")
			r.finish(ctx, span, "apply", action, start)
			return action, err
		}
		if executed {
			executedAt := r.now()
			action.Executed = true
			action.ExecutedAt = &executedAt
			telemetry.AddSpanEvent(span, "scale_executed",
				attribute.String("backend", r.executor.Name()),
				attribute.Int("to_replicas", action.ToReplicas))
			// Re-appending with the same ID and CreatedAt replaces the
			// row, flipping Executed in place.
			if err := r.store.AppendAction(ctx, action); err != nil {
				r.countError(ctx, "action_write_failed")
				telemetry.LoggerWithTrace(ctx, r.logger).Error("executed flag write failed",
					slog.String("action_id", action.ID),
					slog.String("profile_id", profile.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	r.auditAction(ctx, EventAutoscaleApplied, "apply", action, "success", "")
	telemetry.SetSpanOK(span)
	r.finish(ctx, span, "apply", action, start)
	return action, nil
}

// -----------------------------------------------------------------------------
// Internals
// -----------------------------------------------------------------------------

func validateInputs(ctx context.Context, profile *datatypes.AutoscalingProfile) error {
	if ctx == nil {
		return fmt.Errorf("context must not be nil")
	}
	if profile == nil {
		return fmt.Errorf("profile must not be nil")
	}
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("invalid profile %s: %w", profile.ID, err)
	}
	return nil
}

// cooldown reports whether the profile cooldown still covers now,
// measured from the last replica-changing action's effective time, and
// how long it has left.
func (r *Recommender) cooldown(ctx context.Context, profile *datatypes.AutoscalingProfile, now time.Time) (bool, time.Duration, error) {
	if profile.CooldownSeconds <= 0 {
		return false, 0, nil
	}

	last, err := r.store.LastNonHoldAction(ctx, profile.ID)
	if err != nil {
		return false, 0, fmt.Errorf("cooldown lookup for profile %s: %w", profile.ID, err)
	}
	if last == nil {
		return false, 0, nil
	}

	elapsed := now.Sub(last.EffectiveAt())
	if elapsed >= profile.Cooldown() {
		return false, 0, nil
	}
	return true, profile.Cooldown() - elapsed, nil
}

func (r *Recommender) newAction(profile *datatypes.AutoscalingProfile, tenant string, rec Recommendation, signal datatypes.SignalSnapshot, now time.Time) *datatypes.AutoscalingAction {
	return &datatypes.AutoscalingAction{
		ID:             uuid.NewString(),
		ProfileID:      profile.ID,
		Tenant:         tenant,
		RouteClass:     profile.RouteClass,
		Action:         rec.Action,
		FromReplicas:   signal.CurrentReplicas,
		ToReplicas:     rec.TargetReplicas,
		Reason:         rec.Reason,
		CooldownActive: rec.CooldownActive,
		Signal:         signal,
		CreatedAt:      now,
	}
}

// auditAction records one event, logging instead of failing when the
// sink is unavailable.
func (r *Recommender) auditAction(ctx context.Context, eventType, verb string, action *datatypes.AutoscalingAction, outcome, errorCode string) {
	metadata := extensions.NewMetadata().
		Set("action", string(action.Action)).
		Set("from_replicas", action.FromReplicas).
		Set("to_replicas", action.ToReplicas).
		Set("reason", action.Reason).
		Set("cooldown_active", action.CooldownActive).
		Set("executed", action.Executed)
	if action.Tenant != "" {
		metadata.Set("tenant", action.Tenant)
	}

	err := r.audit.Log(ctx, extensions.AuditEvent{
		EventType:    eventType,
		Action:       verb,
		ResourceType: "autoscaling_profile",
		ResourceID:   action.ProfileID,
		Outcome:      outcome,
		ErrorCode:    errorCode,
		Metadata:     metadata,
	})
	if err != nil {
		r.countError(ctx, "audit_failed")
		telemetry.LoggerWithTrace(ctx, r.logger).Warn("audit event dropped",
			slog.String("event_type", eventType),
			slog.String("error", err.Error()),
		)
	}
}

// finish stamps the span, records metrics, and logs the outcome.
func (r *Recommender) finish(ctx context.Context, span trace.Span, verb string, action *datatypes.AutoscalingAction, start time.Time) {
	duration := time.Since(start)

	telemetry.SetSpanAttributes(span,
		attribute.String("action", string(action.Action)),
		attribute.String("reason", action.Reason),
		attribute.Int("from_replicas", action.FromReplicas),
		attribute.Int("to_replicas", action.ToReplicas),
		attribute.Bool("cooldown_active", action.CooldownActive),
		attribute.Bool("executed", action.Executed),
	)

	if r.metrics != nil {
		r.metrics.AutoscaleActionsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action", string(action.Action)),
			attribute.String("reason", action.Reason),
		))
		r.metrics.RecommendationDuration.Record(ctx, duration.Seconds())
	}

	telemetry.LoggerWithTrace(ctx, r.logger).Info("scaling recommendation completed",
		slog.String("operation", verb),
		slog.String("profile_id", action.ProfileID),
		slog.String("tenant", action.Tenant),
		slog.String("action", string(action.Action)),
		slog.String("reason", action.Reason),
		slog.Int("from_replicas", action.FromReplicas),
		slog.Int("to_replicas", action.ToReplicas),
		slog.Bool("executed", action.Executed),
		slog.Duration("duration", duration),
	)
}

// countError increments the component error counter.
func (r *Recommender) countError(ctx context.Context, errType string) {
	if r.metrics == nil {
		return
	}
	r.metrics.ErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", "autoscaler"),
		attribute.String("error_type", errType),
	))
}
