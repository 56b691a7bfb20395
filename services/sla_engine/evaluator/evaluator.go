// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evaluator decides whether a tenant's traffic meets its service
// level objectives and what enforcement follows when it does not.
//
// Each call resolves the tenant's effective policy, reads the stored
// measurement windows and live gauges, classifies breaches, confirms them
// against the policy's consecutive-window trigger, and maps the result to
// an enforcement decision. Confirmed breaches open or update a single
// deduplicated incident per (tenant, policy, route class) scope, and every
// noteworthy transition lands on the audit trail.
//
// Evaluation never hard-fails the caller over policy content: a tenant
// without a policy is healthy and a malformed policy degrades to a warning
// with an audit record. Only infrastructure failures (storage reads and
// writes) surface as errors.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianGuard/pkg/extensions"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/catalog"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/policy"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/signals"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/store"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/telemetry"
)

// -----------------------------------------------------------------------------
// Audit Event Types
// -----------------------------------------------------------------------------

// Audit event types emitted by the evaluator.
const (
	EventBreachDetected   = "sla.breach_detected"
	EventIncidentOpened   = "sla.incident_opened"
	EventIncidentUpdated  = "sla.incident_updated"
	EventIncidentResolved = "sla.incident_resolved"
	EventSignalDegraded   = "sla.signal_degraded"
	EventPolicyInvalid    = "sla.policy_invalid"
)

// -----------------------------------------------------------------------------
// Evaluator Configuration
// -----------------------------------------------------------------------------

// Config configures the evaluator.
type Config struct {
	// Defaults fill the optional policy document fields.
	Defaults policy.Defaults

	// ShedOnSaturation enables the shed decision platform-wide.
	// Default: false
	ShedOnSaturation bool

	// FastWindowSeconds is the reaction window series read from the store.
	// Default: 60
	FastWindowSeconds int

	// SlowWindowSeconds is the burn-rate window series read from the store.
	// Default: 300
	SlowWindowSeconds int

	// Logger for output.
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Defaults: policy.Defaults{
			Mode:                datatypes.ModeObserve,
			BreachWindowSeconds: 60,
			TriggerWindows:      3,
			DisableAudioChannel: true,
			MinResults:          3,
			MaxOutputBytes:      65536,
		},
		ShedOnSaturation:  false,
		FastWindowSeconds: 60,
		SlowWindowSeconds: 300,
		Logger:            slog.Default(),
	}
}

// -----------------------------------------------------------------------------
// Evaluator Options
// -----------------------------------------------------------------------------

// Option configures the evaluator.
type Option func(*Config)

// WithDefaults sets the fallbacks for optional policy fields.
func WithDefaults(defaults policy.Defaults) Option {
	return func(c *Config) {
		c.Defaults = defaults
	}
}

// WithShedOnSaturation enables shedding platform-wide.
func WithShedOnSaturation(enabled bool) Option {
	return func(c *Config) {
		c.ShedOnSaturation = enabled
	}
}

// WithWindowLengths sets the measurement series the evaluator reads.
func WithWindowLengths(fastSeconds, slowSeconds int) Option {
	return func(c *Config) {
		if fastSeconds > 0 {
			c.FastWindowSeconds = fastSeconds
		}
		if slowSeconds > 0 {
			c.SlowWindowSeconds = slowSeconds
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
// Evaluator
// -----------------------------------------------------------------------------

// Evaluator derives SLA status and enforcement decisions from stored
// measurements, live gauges, and the policy catalog.
//
// Thread Safety: Safe for concurrent use.
type Evaluator struct {
	catalog *catalog.Catalog
	store   *store.Store
	signals signals.Collector
	audit   extensions.AuditLogger
	config  *Config
	logger  *slog.Logger
	metrics *telemetry.Metrics

	// now is replaceable so evaluation time is controllable in tests.
	now func() time.Time
}

// New creates an evaluator.
//
// Inputs:
//   - cat: Policy catalog. Must not be nil.
//   - st: Measurement and incident store. Must not be nil.
//   - collector: Live signal source. Nil selects the nop collector.
//   - auditLog: Audit sink. Nil selects the discarding logger.
//   - opts: Configuration options.
//
// Outputs:
//   - *Evaluator: The new evaluator. Never nil.
func New(
	cat *catalog.Catalog,
	st *store.Store,
	collector signals.Collector,
	auditLog extensions.AuditLogger,
	opts ...Option,
) *Evaluator {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if collector == nil {
		collector = signals.NewNop()
	}
	if auditLog == nil {
		auditLog = &extensions.NopAuditLogger{}
	}

	return &Evaluator{
		catalog: cat,
		store:   st,
		signals: collector,
		audit:   auditLog,
		config:  config,
		logger:  config.Logger.With(slog.String("component", "evaluator")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetMetrics attaches meter instruments. Without it the evaluator still
// works, it just does not record counters or durations.
func (e *Evaluator) SetMetrics(m *telemetry.Metrics) {
	e.metrics = m
}

// -----------------------------------------------------------------------------
// Evaluation
// -----------------------------------------------------------------------------

// EvaluateTenantSLA runs one full evaluation for a (tenant, route class)
// scope.
//
// Description:
//
//	Resolves the effective policy, parses it, fetches the newest stored
//	windows and live gauges, classifies breaches in a fixed order,
//	confirms them against the consecutive-window trigger, decides the
//	enforcement action, and maintains the scope's incident record. A
//	tenant with no policy returns healthy/allow; a malformed policy
//	returns warning/allow with an audit record.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing. Must not be nil.
//	tenant - Tenant identifier. Must not be empty.
//	route - Route class under evaluation. Must be valid.
//
// Outputs:
//
//	*datatypes.Evaluation - The full evaluation result. Nil only on error.
//	error - Non-nil when inputs are invalid or storage fails. Policy
//	        content problems never produce an error.
//
// Thread Safety: Safe for concurrent use.
func (e *Evaluator) EvaluateTenantSLA(ctx context.Context, tenant string, route datatypes.RouteClass) (*datatypes.Evaluation, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context must not be nil")
	}
	if tenant == "" {
		return nil, fmt.Errorf("tenant must not be empty")
	}
	if !route.Valid() {
		return nil, fmt.Errorf("invalid route class %q", route)
	}

	ctx, span := telemetry.StartSpan(ctx, "sla_engine.evaluator", "Evaluator.EvaluateTenantSLA",
		trace.WithAttributes(
			attribute.String("tenant", tenant),
			attribute.String("route_class", string(route)),
		))
	defer span.End()

	start := time.Now()
	now := e.now()

	eval := &datatypes.Evaluation{
		Tenant:        tenant,
		RouteClass:    route,
		Status:        datatypes.StatusHealthy,
		Decision:      datatypes.DecisionAllow,
		SignalQuality: datatypes.SignalOK,
		EvaluatedAt:   now,
	}

	// Resolve the effective policy. No policy configured means nothing to
	// enforce against.
	res, err := e.catalog.ResolveEffectivePolicy(ctx, tenant, now)
	if errors.Is(err, catalog.ErrNoPolicy) {
		eval.SignalQuality = datatypes.SignalDegraded
		e.finish(ctx, span, eval, start)
		return eval, nil
	}
	if err != nil {
		err = fmt.Errorf("resolve policy for %s: %w", tenant, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	eval.PolicyID = res.Policy.ID

	// Parse the merged document. A malformed policy is the policy author's
	// problem, not the caller's.
	cfg, err := policy.Parse(res.Document, e.config.Defaults)
	if err != nil {
		eval.Status = datatypes.StatusWarning
		eval.SignalQuality = datatypes.SignalDegraded
		e.auditPolicyInvalid(ctx, eval, res, err)
		e.finish(ctx, span, eval, start)
		return eval, nil
	}
	eval.PolicyMode = cfg.Enforcement.Mode

	// Fetch the stored windows and live gauges.
	trigger := cfg.Enforcement.ConsecutiveWindowsToTrigger
	fast, err := e.store.LatestMeasurements(ctx, tenant, route, e.config.FastWindowSeconds, trigger)
	if err != nil {
		err = fmt.Errorf("fetch %ds measurements: %w", e.config.FastWindowSeconds, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	slowRows, err := e.store.LatestMeasurements(ctx, tenant, route, e.config.SlowWindowSeconds, 1)
	if err != nil {
		err = fmt.Errorf("fetch %ds measurements: %w", e.config.SlowWindowSeconds, err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	var slow *datatypes.Measurement
	if len(slowRows) > 0 {
		slow = slowRows[0]
	}

	live := e.signals.LiveSignals(ctx, tenant, route)
	eval.SignalQuality = signalQuality(cfg, fast, slow, live)

	// Check the newest window, then confirm against the streak.
	if len(fast) == 0 {
		eval.Status = datatypes.StatusWarning
	} else {
		newest := fast[0]
		end := newest.WindowEnd
		eval.WindowEnd = &end
		eval.Breaches = checkWindow(cfg, route, newest, live, slow)
		eval.BreachStreak = breachStreak(cfg, route, fast, live, slow, eval.Breaches)

		switch {
		case len(eval.Breaches) > 0 && eval.BreachStreak >= trigger:
			eval.Status = datatypes.StatusBreached
			telemetry.AddSpanEvent(span, "breach_confirmed",
				attribute.String("worst_severity", string(datatypes.WorstSeverity(eval.Breaches))),
				attribute.Int("streak", eval.BreachStreak))
		case len(eval.Breaches) > 0:
			eval.Status = datatypes.StatusWarning
		}
	}

	eval.Decision, eval.DegradeActions = decide(cfg, eval.Status, eval.Breaches, e.config.ShedOnSaturation)
	eval.RecommendedActions = recommendedActions(cfg, eval.Breaches)

	// Incident bookkeeping and the audit trail are best-effort: the
	// decision stands even when a write fails.
	if eval.Status == datatypes.StatusBreached && len(eval.Breaches) > 0 {
		e.recordBreach(ctx, eval, now)
	} else if eval.Status == datatypes.StatusHealthy {
		e.resolveIncident(ctx, eval, now)
	}
	if eval.SignalQuality == datatypes.SignalDegraded {
		e.auditSignalDegraded(ctx, eval, live)
	}

	e.finish(ctx, span, eval, start)
	return eval, nil
}

// signalQuality reports degraded when any input the policy expects is
// absent: the live gauges, the reaction windows, or the smoothing window
// behind a configured burn allowance.
func signalQuality(cfg *policy.Config, fast []*datatypes.Measurement, slow *datatypes.Measurement, live datatypes.LiveSignals) datatypes.SignalQuality {
	if live.Quality == datatypes.SignalDegraded {
		return datatypes.SignalDegraded
	}
	if len(fast) == 0 {
		return datatypes.SignalDegraded
	}
	if cfg.Objectives.MaxErrorBudgetBurn5M != nil && slow == nil {
		return datatypes.SignalDegraded
	}
	return datatypes.SignalOK
}

// -----------------------------------------------------------------------------
// Incident Lifecycle
// -----------------------------------------------------------------------------

// recordBreach maintains the scope's single non-resolved incident and
// emits the breach audit trail.
func (e *Evaluator) recordBreach(ctx context.Context, eval *datatypes.Evaluation, now time.Time) {
	logger := telemetry.LoggerWithTenant(ctx, e.logger, eval.Tenant, string(eval.RouteClass))
	severity := datatypes.WorstSeverity(eval.Breaches)

	e.auditEvent(ctx, extensions.AuditEvent{
		EventType:    EventBreachDetected,
		Action:       "evaluate",
		ResourceType: "sla_policy",
		ResourceID:   eval.PolicyID,
		Outcome:      "breached",
		Metadata: extensions.NewMetadata().
			Set("tenant", eval.Tenant).
			Set("route_class", string(eval.RouteClass)).
			Set("severity", string(severity)).
			Set("breach_count", len(eval.Breaches)).
			Set("breach_streak", eval.BreachStreak).
			Set("decision", string(eval.Decision)),
	})

	inc, err := e.store.FindOpenIncident(ctx, eval.Tenant, eval.PolicyID, eval.RouteClass)
	if err != nil {
		e.countError(ctx, "incident_lookup_failed")
		logger.Error("incident lookup failed",
			slog.String("policy_id", eval.PolicyID),
			slog.String("error", err.Error()),
		)
		return
	}

	created := inc == nil
	if created {
		inc = &datatypes.Incident{
			ID:            uuid.NewString(),
			Tenant:        eval.Tenant,
			PolicyID:      eval.PolicyID,
			RouteClass:    eval.RouteClass,
			Severity:      severity,
			FirstBreachAt: now,
			CreatedAt:     now,
		}
	}

	inc.Status = datatypes.IncidentOpen
	if eval.Decision == datatypes.DecisionDegrade || eval.Decision == datatypes.DecisionShed {
		inc.Status = datatypes.IncidentMitigating
	}
	inc.LastBreachAt = now
	inc.UpdatedAt = now
	inc.Breaches = eval.Breaches
	// Severity escalates while the incident stays open, never downgrades.
	if severity.Worse(inc.Severity) {
		inc.Severity = severity
	}

	if err := e.store.UpsertIncident(ctx, inc); err != nil {
		e.countError(ctx, "incident_write_failed")
		telemetry.LoggerWithIncident(ctx, e.logger, inc.ID).Error("incident write failed",
			slog.String("tenant", eval.Tenant),
			slog.String("error", err.Error()),
		)
		return
	}
	eval.IncidentID = inc.ID

	eventType, action := EventIncidentUpdated, "update"
	if created {
		eventType, action = EventIncidentOpened, "open"
	}
	e.auditEvent(ctx, extensions.AuditEvent{
		EventType:    eventType,
		Action:       action,
		ResourceType: "incident",
		ResourceID:   inc.ID,
		Outcome:      "success",
		Metadata: extensions.NewMetadata().
			Set("tenant", inc.Tenant).
			Set("policy_id", inc.PolicyID).
			Set("route_class", string(inc.RouteClass)).
			Set("severity", string(inc.Severity)).
			Set("status", string(inc.Status)),
	})
}

// resolveIncident closes the scope's open incident once the tenant
// evaluates healthy again.
func (e *Evaluator) resolveIncident(ctx context.Context, eval *datatypes.Evaluation, now time.Time) {
	if eval.PolicyID == "" {
		return
	}

	inc, err := e.store.FindOpenIncident(ctx, eval.Tenant, eval.PolicyID, eval.RouteClass)
	if err != nil {
		e.countError(ctx, "incident_lookup_failed")
		telemetry.LoggerWithTenant(ctx, e.logger, eval.Tenant, string(eval.RouteClass)).Error("incident lookup failed",
			slog.String("policy_id", eval.PolicyID),
			slog.String("error", err.Error()),
		)
		return
	}
	if inc == nil {
		return
	}

	resolvedAt := now
	inc.Status = datatypes.IncidentResolved
	inc.ResolvedAt = &resolvedAt
	inc.UpdatedAt = now

	if err := e.store.UpsertIncident(ctx, inc); err != nil {
		e.countError(ctx, "incident_write_failed")
		telemetry.LoggerWithIncident(ctx, e.logger, inc.ID).Error("incident write failed",
			slog.String("tenant", eval.Tenant),
			slog.String("error", err.Error()),
		)
		return
	}
	eval.IncidentID = inc.ID

	e.auditEvent(ctx, extensions.AuditEvent{
		EventType:    EventIncidentResolved,
		Action:       "resolve",
		ResourceType: "incident",
		ResourceID:   inc.ID,
		Outcome:      "success",
		Metadata: extensions.NewMetadata().
			Set("tenant", inc.Tenant).
			Set("policy_id", inc.PolicyID).
			Set("route_class", string(inc.RouteClass)).
			Set("open_for_seconds", now.Sub(inc.FirstBreachAt).Seconds()),
	})
}

// -----------------------------------------------------------------------------
// Audit Helpers
// -----------------------------------------------------------------------------

func (e *Evaluator) auditPolicyInvalid(ctx context.Context, eval *datatypes.Evaluation, res *catalog.Resolved, parseErr error) {
	metadata := extensions.NewMetadata().
		Set("tenant", eval.Tenant).
		Set("route_class", string(eval.RouteClass)).
		Set("reason", parseErr.Error())
	if res.AssignmentID != "" {
		metadata.Set("assignment_id", res.AssignmentID)
	}

	e.auditEvent(ctx, extensions.AuditEvent{
		EventType:    EventPolicyInvalid,
		Action:       "evaluate",
		ResourceType: "sla_policy",
		ResourceID:   eval.PolicyID,
		Outcome:      "invalid",
		ErrorCode:    "validation_error",
		Metadata:     metadata,
	})
}

func (e *Evaluator) auditSignalDegraded(ctx context.Context, eval *datatypes.Evaluation, live datatypes.LiveSignals) {
	e.auditEvent(ctx, extensions.AuditEvent{
		EventType:    EventSignalDegraded,
		Action:       "evaluate",
		ResourceType: "signals",
		ResourceID:   eval.Tenant,
		Outcome:      "degraded",
		Metadata: extensions.NewMetadata().
			Set("route_class", string(eval.RouteClass)).
			Set("details", live.Details),
	})
}

// auditEvent records one event, logging instead of failing when the sink
// is unavailable.
func (e *Evaluator) auditEvent(ctx context.Context, event extensions.AuditEvent) {
	if err := e.audit.Log(ctx, event); err != nil {
		e.countError(ctx, "audit_failed")
		telemetry.LoggerWithTrace(ctx, e.logger).Warn("audit event dropped",
			slog.String("event_type", event.EventType),
			slog.String("error", err.Error()),
		)
	}
}

// -----------------------------------------------------------------------------
// Completion
// -----------------------------------------------------------------------------

// finish stamps the span, records metrics, and logs the outcome.
func (e *Evaluator) finish(ctx context.Context, span trace.Span, eval *datatypes.Evaluation, start time.Time) {
	duration := time.Since(start)

	telemetry.SetSpanAttributes(span,
		attribute.String("status", string(eval.Status)),
		attribute.String("decision", string(eval.Decision)),
		attribute.Int("breach_count", len(eval.Breaches)),
		attribute.Int("breach_streak", eval.BreachStreak),
		attribute.String("signal_quality", string(eval.SignalQuality)),
	)
	if eval.Status == datatypes.StatusBreached {
		span.SetStatus(codes.Error, "sla breached")
	} else {
		telemetry.SetSpanOK(span)
	}

	if e.metrics != nil {
		e.metrics.SLAEvaluationsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(eval.Status)),
			attribute.String("decision", string(eval.Decision)),
		))
		for _, b := range eval.Breaches {
			e.metrics.SLABreachesTotal.Add(ctx, 1, metric.WithAttributes(
				attribute.String("type", string(b.Type)),
				attribute.String("severity", string(b.Severity)),
			))
		}
		e.metrics.EvaluationDuration.Record(ctx, duration.Seconds())
	}

	telemetry.LoggerWithTrace(ctx, e.logger).Info("sla evaluation completed",
		slog.String("tenant", eval.Tenant),
		slog.String("route_class", string(eval.RouteClass)),
		slog.String("policy_id", eval.PolicyID),
		slog.String("status", string(eval.Status)),
		slog.String("decision", string(eval.Decision)),
		slog.Int("breaches", len(eval.Breaches)),
		slog.Int("streak", eval.BreachStreak),
		slog.Duration("duration", duration),
	)
}

// countError increments the component error counter.
func (e *Evaluator) countError(ctx context.Context, errType string) {
	if e.metrics == nil {
		return
	}
	e.metrics.ErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("component", "evaluator"),
		attribute.String("error_type", errType),
	))
}
