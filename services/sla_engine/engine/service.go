// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine wires the SLA enforcement and autoscaling components into
// one runnable service: BadgerDB storage, the policy catalog with hot
// reload, the window aggregator, the live signal collector, the evaluator,
// and the autoscaling recommender, plus the Gin handlers that expose them
// and the background sweep loops that drive them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianGuard/services/sla_engine/audit"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/autoscaler"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/catalog"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/config"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/evaluator"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/policy"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/signals"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/storage/badger"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/store"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/telemetry"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/windows"
)

// slowWindowFactor sizes the burn-rate smoothing window relative to the
// configured reaction window.
const slowWindowFactor = 5

// Service owns every component of the SLA engine and their shared
// lifecycle. Build it with NewService, drive the loops with RunSweepLoop
// and RunAutoscaleLoop, and release everything with Close.
type Service struct {
	config config.Config
	logger *slog.Logger

	db          *badger.DB
	store       *store.Store
	audit       *audit.Recorder
	catalog     *catalog.Catalog
	collector   signals.Collector
	aggregator  *windows.Aggregator
	evaluator   *evaluator.Evaluator
	executor    autoscaler.Executor
	recommender *autoscaler.Recommender

	windowConfig windows.Config
	startedAt    time.Time
	now          func() time.Time
}

// Option customizes service construction. Used by tests to substitute
// in-memory or fake components.
type Option func(*Service)

// WithDatabase injects an already-open database. The service takes
// ownership and closes it in Close.
func WithDatabase(db *badger.DB) Option {
	return func(s *Service) {
		s.db = db
	}
}

// WithCollector overrides the signal collector built from configuration.
func WithCollector(collector signals.Collector) Option {
	return func(s *Service) {
		if collector != nil {
			s.collector = collector
		}
	}
}

// WithExecutor overrides the scale executor built from configuration.
func WithExecutor(executor autoscaler.Executor) Option {
	return func(s *Service) {
		if executor != nil {
			s.executor = executor
		}
	}
}

// NewService builds the full component graph from configuration.
//
// Description:
//
//	Validates the configuration, opens the BadgerDB data directory, loads
//	the policy catalog and starts its file watcher, then wires the window
//	aggregator, evaluator, and autoscaling recommender on top. Catalog
//	watch failures are downgraded to a warning because the daemon can run
//	on the loaded snapshot; everything else is fatal.
//
// Inputs:
//
//	ctx - Context for the initial catalog load.
//	cfg - Daemon configuration, usually config.FromEnv().
//	logger - Base logger. Nil falls back to slog.Default().
//	opts - Test overrides.
//
// Outputs:
//
//	*Service - The wired service. Caller must call Close when done.
//	error - Non-nil if configuration is invalid or a component fails to
//	  initialize.
func NewService(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		config:    cfg,
		logger:    logger.With(slog.String("component", "sla_engine")),
		startedAt: time.Now().UTC(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.db == nil {
		dbCfg := badger.DefaultConfig()
		dbCfg.Path = cfg.Server.DataDir
		dbCfg.Logger = s.logger
		db, err := badger.OpenDB(dbCfg)
		if err != nil {
			return nil, fmt.Errorf("open data dir %s: %w", cfg.Server.DataDir, err)
		}
		s.db = db
	}
	s.store = store.New(s.db, s.logger)
	s.audit = audit.NewRecorder(s.store, s.logger)

	if s.collector == nil {
		collector, err := signals.New(signals.Config{
			Backend: cfg.Signals.Backend,
			URL:     cfg.Signals.InfluxURL,
			Token:   cfg.Signals.InfluxToken,
			Org:     cfg.Signals.InfluxOrg,
			Bucket:  cfg.Signals.InfluxBucket,
			Static: signals.StaticValues{
				Replicas:      cfg.Signals.Static.Replicas,
				P95MS:         cfg.Signals.Static.P95MS,
				QueueDepth:    cfg.Signals.Static.QueueDepth,
				SaturationPct: cfg.Signals.Static.SaturationPct,
			},
		}, s.logger)
		if err != nil {
			s.db.Close()
			return nil, fmt.Errorf("build signal collector: %w", err)
		}
		s.collector = collector
	}

	s.catalog = catalog.New(cfg.Server.CatalogDir, s.logger)
	if err := s.catalog.Load(ctx); err != nil {
		s.db.Close()
		return nil, fmt.Errorf("load catalog %s: %w", cfg.Server.CatalogDir, err)
	}
	if err := s.catalog.Watch(ctx); err != nil {
		s.logger.Warn("catalog watch unavailable, edits need a restart",
			slog.String("error", err.Error()))
	}

	s.windowConfig = windows.DefaultConfig()
	s.windowConfig.FastWindowSeconds = cfg.SLA.WindowGranularitySeconds
	s.windowConfig.SlowWindowSeconds = cfg.SLA.WindowGranularitySeconds * slowWindowFactor
	s.aggregator = windows.NewAggregator(s.windowConfig, s.store, s.logger)

	s.evaluator = evaluator.New(s.catalog, s.store, s.collector, s.audit,
		evaluator.WithDefaults(policy.Defaults{
			Mode:                cfg.SLA.DefaultMode,
			BreachWindowSeconds: cfg.SLA.WindowGranularitySeconds,
			TriggerWindows:      cfg.SLA.DefaultTriggerWindows,
			DisableAudioChannel: cfg.SLA.Degrade.DisableAudioChannel,
			MinResults:          cfg.SLA.Degrade.MinResults,
			MaxOutputBytes:      cfg.SLA.Degrade.MaxOutputBytes,
		}),
		evaluator.WithShedOnSaturation(cfg.SLA.ShedOnSaturation),
		evaluator.WithWindowLengths(s.windowConfig.FastWindowSeconds, s.windowConfig.SlowWindowSeconds),
		evaluator.WithLogger(s.logger),
	)

	if s.executor == nil {
		executor, err := autoscaler.NewExecutor(autoscaler.ExecutorConfig{
			Backend: cfg.Autoscale.Backend,
			URL:     cfg.Autoscale.ExecutorURL,
		}, s.logger)
		if err != nil {
			s.catalog.Stop()
			s.db.Close()
			return nil, fmt.Errorf("build scale executor: %w", err)
		}
		s.executor = executor
	}
	s.recommender = autoscaler.New(s.store, s.executor, s.audit,
		autoscaler.WithHysteresis(cfg.Autoscale.HysteresisPct),
		autoscaler.WithLogger(s.logger),
	)

	s.logger.Info("sla engine assembled",
		slog.String("data_dir", s.db.Path()),
		slog.String("catalog_dir", cfg.Server.CatalogDir),
		slog.String("signals_backend", s.collector.Name()),
		slog.String("executor_backend", s.executor.Name()),
		slog.Bool("autoscale_dry_run", cfg.Autoscale.DryRun),
		slog.Bool("sla_enabled", cfg.SLA.Enabled))

	return s, nil
}

// SetMetrics attaches meter instruments to every component that records
// them. Call it once after telemetry.Init.
func (s *Service) SetMetrics(m *telemetry.Metrics) {
	s.aggregator.SetMetrics(m)
	s.evaluator.SetMetrics(m)
	s.recommender.SetMetrics(m)
}

// Close stops the catalog watcher and closes the database. Safe to call
// once, after the loops have returned.
func (s *Service) Close() error {
	s.catalog.Stop()
	return s.db.Close()
}

// ----------------------------------------------------------------------------
// Background Loops
// ----------------------------------------------------------------------------

// RunSweepLoop periodically evaluates every assigned tenant across all
// route classes. Returns nil when ctx is cancelled, immediately when the
// SLA engine is disabled by configuration.
func (s *Service) RunSweepLoop(ctx context.Context) error {
	if !s.config.SLA.Enabled {
		s.logger.Info("sla sweep loop disabled by configuration")
		return nil
	}

	interval := time.Duration(s.config.Server.SweepSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("sla sweep loop started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sla sweep loop stopped")
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one enforcement pass: every tenant with an active assignment
// is evaluated for every route class. Evaluation failures are logged and
// skipped so one bad tenant cannot starve the rest of the pass.
//
// Outputs:
//
//	int - Number of evaluations that completed.
func (s *Service) Sweep(ctx context.Context) int {
	ctx, span := telemetry.StartSpan(ctx, "sla_engine.engine", "Service.Sweep")
	defer span.End()

	start := time.Now()
	tenants := s.catalog.AssignedTenants(s.now())
	evaluated := 0

	for _, tenant := range tenants {
		for _, route := range datatypes.AllRouteClasses() {
			if ctx.Err() != nil {
				return evaluated
			}
			if _, err := s.evaluator.EvaluateTenantSLA(ctx, tenant, route); err != nil {
				s.logger.Error("sweep evaluation failed",
					slog.String("tenant", tenant),
					slog.String("route_class", string(route)),
					slog.String("error", err.Error()))
				continue
			}
			evaluated++
		}
	}

	telemetry.SetSpanAttributes(span,
		attribute.Int("tenants", len(tenants)),
		attribute.Int("evaluated", evaluated))
	s.logger.Debug("sweep pass completed",
		slog.String("trace_id", telemetry.TraceID(ctx)),
		slog.Int("tenants", len(tenants)),
		slog.Int("evaluated", evaluated),
		slog.Duration("duration", time.Since(start)))
	return evaluated
}

// RunAutoscaleLoop periodically runs every autoscaling profile through the
// recommender. Returns nil when ctx is cancelled.
func (s *Service) RunAutoscaleLoop(ctx context.Context) error {
	interval := time.Duration(s.config.Server.SweepSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("autoscale loop started",
		slog.Duration("interval", interval),
		slog.Bool("dry_run", s.config.Autoscale.DryRun))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("autoscale loop stopped")
			return nil
		case <-ticker.C:
			s.AutoscaleSweep(ctx)
		}
	}
}

// AutoscaleSweep runs one autoscaling pass over every catalog profile.
// In dry-run mode recommendations are recorded without touching the
// executor; otherwise Apply drives the configured backend. A cooldown
// conflict is a normal outcome on this path, not an error.
//
// Outputs:
//
//	int - Number of profiles that produced a recorded action.
func (s *Service) AutoscaleSweep(ctx context.Context) int {
	ctx, span := telemetry.StartSpan(ctx, "sla_engine.engine", "Service.AutoscaleSweep")
	defer span.End()

	start := time.Now()
	profiles := s.catalog.Profiles()
	recorded := 0

	for _, profile := range profiles {
		if ctx.Err() != nil {
			return recorded
		}

		snapshot := s.collector.Snapshot(ctx, profile.Tenant, profile.RouteClass)

		var err error
		if s.config.Autoscale.DryRun {
			_, err = s.recommender.Evaluate(ctx, profile, profile.Tenant, snapshot)
		} else {
			_, err = s.recommender.Apply(ctx, profile, profile.Tenant, snapshot)
			if errors.Is(err, autoscaler.ErrCooldownActive) {
				s.logger.Info("autoscale blocked by cooldown",
					slog.String("profile_id", profile.ID))
				recorded++
				continue
			}
		}
		if err != nil {
			s.logger.Error("autoscale pass failed",
				slog.String("profile_id", profile.ID),
				slog.String("error", err.Error()))
			continue
		}
		recorded++
	}

	telemetry.SetSpanAttributes(span,
		attribute.Int("profiles", len(profiles)),
		attribute.Int("recorded", recorded))
	s.logger.Debug("autoscale pass completed",
		slog.String("trace_id", telemetry.TraceID(ctx)),
		slog.Int("profiles", len(profiles)),
		slog.Int("recorded", recorded),
		slog.Duration("duration", time.Since(start)))
	return recorded
}
