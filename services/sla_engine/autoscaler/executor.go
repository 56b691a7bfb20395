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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/telemetry"
)

// Backend names accepted by NewExecutor.
const (
	BackendNoop = "noop"
	BackendHTTP = "http"
)

// ErrUnknownBackend is returned when configuration names an executor
// backend this build does not provide.
var ErrUnknownBackend = errors.New("unknown executor backend")

// DefaultExecutorTimeout bounds one scale call to the platform.
const DefaultExecutorTimeout = 10 * time.Second

// Executor applies a replica change to the serving platform.
//
// Thread Safety: Implementations are safe for concurrent use.
type Executor interface {
	// Name identifies the backend in logs and health output.
	Name() string

	// Scale applies the action's target replica count. The boolean
	// reports whether the change reached the platform; the noop backend
	// records without executing and the error marks the platform
	// unreachable or refusing.
	Scale(ctx context.Context, action *datatypes.AutoscalingAction) (bool, error)
}

// ExecutorConfig selects and configures an executor backend.
type ExecutorConfig struct {
	// Backend is one of noop, http. Empty selects noop.
	Backend string

	// URL is the scale endpoint for the http backend.
	URL string

	// Timeout bounds one scale call for the http backend.
	// Zero selects DefaultExecutorTimeout.
	Timeout time.Duration
}

// NewExecutor builds the executor the configuration names.
func NewExecutor(cfg ExecutorConfig, logger *slog.Logger) (Executor, error) {
	switch cfg.Backend {
	case "", BackendNoop:
		return NewNoop(), nil
	case BackendHTTP:
		return NewHTTP(cfg, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// -----------------------------------------------------------------------------
// Noop Backend
// -----------------------------------------------------------------------------

// NoopExecutor accepts every action without touching any platform. It is
// the default so development and dry-run deployments record full action
// trails with nothing to scale against.
type NoopExecutor struct{}

// NewNoop creates the noop executor.
func NewNoop() *NoopExecutor {
	return &NoopExecutor{}
}

func (e *NoopExecutor) Name() string { return BackendNoop }

func (e *NoopExecutor) Scale(_ context.Context, _ *datatypes.AutoscalingAction) (bool, error) {
	return false, nil
}

// -----------------------------------------------------------------------------
// HTTP Backend
// -----------------------------------------------------------------------------

// HTTPExecutor posts replica changes to a platform scale endpoint.
type HTTPExecutor struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewHTTP creates an executor targeting the configured scale endpoint.
func NewHTTP(cfg ExecutorConfig, logger *slog.Logger) (*HTTPExecutor, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("http executor requires a url")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultExecutorTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPExecutor{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
		logger: logger.With(slog.String("component", "scale_executor")),
	}, nil
}

func (e *HTTPExecutor) Name() string { return BackendHTTP }

// Scale posts the replica change and treats any 2xx as applied.
func (e *HTTPExecutor) Scale(ctx context.Context, action *datatypes.AutoscalingAction) (bool, error) {
	payload := map[string]interface{}{
		"profile_id": action.ProfileID,
		"action":     string(action.Action),
		"replicas":   action.ToReplicas,
		"reason":     action.Reason,
	}
	if action.Tenant != "" {
		payload["tenant"] = action.Tenant
	}
	if action.RouteClass != "" {
		payload["route_class"] = string(action.RouteClass)
	}

	reqBody, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, e.url, bytes.NewBuffer(reqBody))
	if err != nil {
		return false, fmt.Errorf("build scale request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req = telemetry.PropagateToRequest(ctx, req)

	resp, err := e.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("scale endpoint status %d: %s", resp.StatusCode, string(body))
	}

	e.logger.Info("scale request accepted",
		slog.String("profile_id", action.ProfileID),
		slog.String("action", string(action.Action)),
		slog.Int("replicas", action.ToReplicas),
	)
	return true, nil
}
