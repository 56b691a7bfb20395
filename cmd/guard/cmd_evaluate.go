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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianGuard/pkg/ux"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/engine"
)

var (
	evaluateTenant string
	evaluateRoute  string
	evaluateJSON   bool
)

// fetchEvaluation runs one SLA evaluation against a running daemon.
func fetchEvaluation(baseURL, tenant, route string) (*datatypes.Evaluation, error) {
	postBody, err := json.Marshal(engine.EvaluateRequest{
		Tenant:     tenant,
		RouteClass: route,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Post(baseURL+"/v1/evaluate", "application/json", bytes.NewBuffer(postBody))
	if err != nil {
		return nil, fmt.Errorf("reach the SLA engine at %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		var apiErr engine.ErrorResponse
		if json.Unmarshal(bodyBytes, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("engine returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("engine returned %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var eval datatypes.Evaluation
	if err := json.Unmarshal(bodyBytes, &eval); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}
	return &eval, nil
}

// evaluationExitCode maps an evaluation to the CLI exit code. Anything that
// is not healthy counts as a finding for scripting.
func evaluationExitCode(eval *datatypes.Evaluation) int {
	if eval.Status == datatypes.StatusHealthy {
		return CLIExitSuccess
	}
	return CLIExitFindings
}

func runEvaluate(cmd *cobra.Command, args []string) {
	if evaluateTenant == "" || evaluateRoute == "" {
		ux.Error("Both --tenant and --route are required.")
		os.Exit(CLIExitError)
	}

	eval, err := fetchEvaluation(getEngineBaseURL(), evaluateTenant, evaluateRoute)
	if err != nil {
		OutputError(evaluateJSON, "Evaluation failed", err)
		if ux.GetPersonality().ShowTips {
			ux.Muted("Is guardd running? Start it with 'guard serve'.")
		}
		os.Exit(CLIExitError)
	}

	if evaluateJSON {
		if err := OutputJSON(eval, false); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			os.Exit(CLIExitError)
		}
		os.Exit(evaluationExitCode(eval))
	}

	printEvaluation(eval)
	os.Exit(evaluationExitCode(eval))
}

// printEvaluation renders the styled verdict for terminal users.
func printEvaluation(eval *datatypes.Evaluation) {
	scope := fmt.Sprintf("%s/%s", eval.Tenant, eval.RouteClass)

	headline := scope
	if eval.Status != datatypes.StatusHealthy {
		headline = fmt.Sprintf("%s  breach streak %d", scope, eval.BreachStreak)
	}
	fmt.Printf("%s %s\n", ux.StatusBadge(string(eval.Status)), headline)

	if eval.PolicyID == "" {
		ux.Muted("no policy assigned, evaluation is advisory only")
	} else {
		fmt.Printf("  policy %s  mode %s  decision %s\n",
			eval.PolicyID, eval.PolicyMode, ux.DecisionBadge(string(eval.Decision)))
	}
	if eval.SignalQuality == datatypes.SignalDegraded {
		ux.Warning("signal quality is degraded, treat the verdict with care")
	}

	for _, b := range eval.Breaches {
		detail := fmt.Sprintf("%s: %.2f over threshold %.2f (%ds window)",
			b.Type, b.Actual, b.Threshold, b.WindowSeconds)
		fmt.Printf("  %s %s %s\n", ux.IconBullet.Render(), ux.SeverityBadge(string(b.Severity)), detail)
	}
	for _, action := range eval.RecommendedActions {
		fmt.Printf("  %s %s\n", ux.IconArrow.Render(), action)
	}
	if eval.IncidentID != "" {
		ux.Muted("incident " + eval.IncidentID)
	}
}
