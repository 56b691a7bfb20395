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
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianGuard/pkg/ux"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/engine"
)

var (
	autoscaleProfile string
	autoscaleJSON    bool
	autoscaleYes     bool
)

// requestAction posts a profile id to one of the autoscale endpoints. A non-2xx
// status is not a transport error; the decoded engine envelope and the status
// code come back so the caller can map 409/404/502 to distinct messages.
func requestAction(url, profileID string) (*datatypes.AutoscalingAction, *engine.ErrorResponse, int, error) {
	postBody, err := json.Marshal(engine.AutoscaleRequest{ProfileID: profileID})
	if err != nil {
		return nil, nil, 0, fmt.Errorf("encode request: %w", err)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewBuffer(postBody))
	if err != nil {
		return nil, nil, 0, err
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		apiErr := &engine.ErrorResponse{}
		if json.Unmarshal(bodyBytes, apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = string(bodyBytes)
		}
		return nil, apiErr, resp.StatusCode, nil
	}

	var action datatypes.AutoscalingAction
	if err := json.Unmarshal(bodyBytes, &action); err != nil {
		return nil, nil, resp.StatusCode, fmt.Errorf("decode action: %w", err)
	}
	return &action, nil, resp.StatusCode, nil
}

func runAutoscaleEvaluate(cmd *cobra.Command, args []string) {
	os.Exit(autoscaleRound("/v1/autoscale/evaluate"))
}

func runAutoscaleApply(cmd *cobra.Command, args []string) {
	if autoscaleProfile == "" {
		ux.Error("--profile is required.")
		os.Exit(CLIExitError)
	}
	if !confirmApply() {
		ux.Info("Apply cancelled.")
		os.Exit(CLIExitSuccess)
	}
	os.Exit(autoscaleRound("/v1/autoscale/apply"))
}

// confirmApply asks before a round that executes against the backend. The
// prompt only appears when a human can answer it: --yes skips it, and a
// non-terminal stdin or stdout (pipes, CI) proceeds without asking.
func confirmApply() bool {
	if autoscaleYes || !ux.IsInteractive() {
		return true
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return true
	}

	fmt.Printf("Apply the recommended action for profile %s? (yes/no): ", autoscaleProfile)
	input, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	input = strings.ToLower(strings.TrimSpace(input))
	return input == "yes" || input == "y"
}

// autoscaleRound drives one recommendation round and returns the exit code.
func autoscaleRound(endpoint string) int {
	if autoscaleProfile == "" {
		ux.Error("--profile is required.")
		return CLIExitError
	}

	action, apiErr, status, err := requestAction(getEngineBaseURL()+endpoint, autoscaleProfile)
	if err != nil {
		OutputError(autoscaleJSON, "Autoscale request failed", err)
		if ux.GetPersonality().ShowTips {
			ux.Muted("Is guardd running? Start it with 'guard serve'.")
		}
		return CLIExitError
	}

	if apiErr != nil {
		switch status {
		case http.StatusConflict:
			ux.Warning(fmt.Sprintf("Cooldown active for profile %s; a hold was recorded.", autoscaleProfile))
			ux.Muted(apiErr.Error)
			return CLIExitFindings
		case http.StatusNotFound:
			ux.Error(fmt.Sprintf("Profile %q is not in the catalog.", autoscaleProfile))
			return CLIExitError
		case http.StatusBadGateway:
			ux.Error("The scale executor is unreachable: " + apiErr.Error)
			return CLIExitError
		default:
			OutputError(autoscaleJSON, "Autoscale request failed", fmt.Errorf("engine returned %d: %s", status, apiErr.Error))
			return CLIExitError
		}
	}

	if autoscaleJSON {
		if err := OutputJSON(action, false); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return CLIExitError
		}
		return CLIExitSuccess
	}

	printAction(action)
	return CLIExitSuccess
}

// printAction renders one recorded action for terminal users.
func printAction(action *datatypes.AutoscalingAction) {
	switch {
	case action.Action == datatypes.ActionHold:
		ux.Info(fmt.Sprintf("hold at %d replicas", action.FromReplicas))
	case action.Executed:
		ux.Success(fmt.Sprintf("Applied %s: %d %s %d replicas",
			action.Action, action.FromReplicas, ux.IconArrow, action.ToReplicas))
	case action.Action.ChangesReplicas():
		ux.Info(fmt.Sprintf("Recommended %s: %d %s %d replicas (not executed)",
			action.Action, action.FromReplicas, ux.IconArrow, action.ToReplicas))
	default:
		ux.Warning(fmt.Sprintf("Recommended %s at %d replicas", action.Action, action.FromReplicas))
	}
	if action.Reason != "" {
		ux.Muted(action.Reason)
	}
	if action.CooldownActive {
		ux.Muted("cooldown was active for this round")
	}
}
