// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianGuard/pkg/extensions"
	"github.com/AleutianAI/AleutianGuard/pkg/logging"
	"github.com/AleutianAI/AleutianGuard/pkg/ux"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/config"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/engine"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/middleware"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/telemetry"
)

// runServe assembles and runs the same daemon the guardd binary runs. It
// exists so a single guard binary covers dev loops and small installs.
func runServe(cmd *cobra.Command, args []string) {
	cfg, err := config.FromEnv()
	if err != nil {
		ux.Error(fmt.Sprintf("Invalid configuration: %v", err))
		os.Exit(CLIExitError)
	}

	ux.Title("Starting the AleutianGuard SLA engine")
	ux.Info(fmt.Sprintf("port %d  data %s  catalog %s", cfg.Server.Port, cfg.Server.DataDir, cfg.Server.CatalogDir))
	ux.Info(fmt.Sprintf("signals %s  executor %s  dry-run %t", cfg.Signals.Backend, cfg.Autoscale.Backend, cfg.Autoscale.DryRun))

	logHandle := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Server.LogLevel),
		LogDir:  cfg.Server.LogDir,
		Service: "guardd",
		JSON:    true,
	})
	logger := logHandle.Slog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		ux.Error(fmt.Sprintf("Failed to initialize telemetry: %v", err))
		os.Exit(CLIExitError)
	}

	svc, err := engine.NewService(ctx, cfg, logger)
	if err != nil {
		ux.Error(fmt.Sprintf("Failed to assemble the SLA engine: %v", err))
		os.Exit(CLIExitError)
	}

	metrics, err := telemetry.NewMetrics(otel.Meter("sla_engine"))
	if err != nil {
		slog.Warn("meter instruments unavailable", "error", err)
	} else {
		svc.SetMetrics(metrics)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("guard-sla-engine"))

	handlers := engine.NewHandlers(svc)
	router.GET("/health", handlers.HandleHealth)
	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(&extensions.NopAuthProvider{}))
	engine.RegisterRoutes(v1, handlers)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return svc.RunSweepLoop(gCtx)
	})
	g.Go(func() error {
		return svc.RunAutoscaleLoop(gCtx)
	})
	g.Go(func() error {
		slog.Info("sla engine listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	waitErr := g.Wait()
	if waitErr != nil {
		slog.Error("sla engine exited with error", "error", waitErr)
	}

	if err := svc.Close(); err != nil {
		slog.Error("database close failed", "error", err)
	}
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := telemetryShutdown(closeCtx); err != nil {
		slog.Error("telemetry shutdown failed", "error", err)
	}
	if err := logHandle.Close(); err != nil {
		ux.Warning(fmt.Sprintf("Log close failed: %v", err))
	}

	if waitErr != nil {
		os.Exit(CLIExitError)
	}
	ux.Success("SLA engine stopped.")
}
