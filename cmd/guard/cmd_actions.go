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
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianGuard/pkg/ux"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/engine"
)

var (
	actionsProfile string
	actionsLimit   int
)

// resolveOutputPath turns the --output flag into a concrete file path. An
// existing directory gets the default name appended; anything else is taken
// as the full file path.
func resolveOutputPath(outputFlag, defaultName string) string {
	if outputFlag == "" {
		return defaultName
	}
	info, err := os.Stat(outputFlag)
	if err == nil && info.IsDir() {
		return filepath.Join(outputFlag, defaultName)
	}
	return outputFlag
}

// fetchActions lists the recorded action trail for a profile.
func fetchActions(baseURL, profileID string, limit int) (*engine.ActionsResponse, error) {
	query := url.Values{}
	query.Set("profile", profileID)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(baseURL + "/v1/actions?" + query.Encode())
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

	var actions engine.ActionsResponse
	if err := json.Unmarshal(bodyBytes, &actions); err != nil {
		return nil, fmt.Errorf("decode actions: %w", err)
	}
	return &actions, nil
}

// writeActionsCSV writes the action trail to the given file.
func writeActionsCSV(outputFile string, actions *engine.ActionsResponse) (int, error) {
	f, err := os.Create(outputFile)
	if err != nil {
		return 0, fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close output file: %v\n", closeErr)
		}
	}()

	writer := csv.NewWriter(f)
	defer writer.Flush()

	header := []string{
		"Created", "Action", "Tenant", "Route_Class", "From_Replicas", "To_Replicas",
		"Executed", "Cooldown_Active", "Reason",
	}
	if err := writer.Write(header); err != nil {
		return 0, fmt.Errorf("write CSV header: %w", err)
	}

	count := 0
	for _, action := range actions.Actions {
		row := []string{
			action.CreatedAt.Format(time.RFC3339),
			string(action.Action),
			action.Tenant,
			string(action.RouteClass),
			strconv.Itoa(action.FromReplicas),
			strconv.Itoa(action.ToReplicas),
			strconv.FormatBool(action.Executed),
			strconv.FormatBool(action.CooldownActive),
			action.Reason,
		}
		if err := writer.Write(row); err != nil {
			return count, fmt.Errorf("write CSV row: %w", err)
		}
		count++
	}

	writer.Flush()
	return count, writer.Error()
}

func runExportActions(cmd *cobra.Command, args []string) {
	if actionsProfile == "" {
		ux.Error("--profile is required.")
		os.Exit(CLIExitError)
	}

	outputFlag, _ := cmd.Flags().GetString("output")
	defaultName := fmt.Sprintf("actions_%s.csv", actionsProfile)
	outputFile := resolveOutputPath(outputFlag, defaultName)

	spin := ux.NewSpinner(fmt.Sprintf("Exporting the action trail for profile %s...", actionsProfile)).
		WithType(ux.SpinnerPulse)
	spin.Start()

	actions, err := fetchActions(getEngineBaseURL(), actionsProfile, actionsLimit)
	if err != nil {
		spin.StopWithError("Failed to fetch actions: " + err.Error())
		if ux.GetPersonality().ShowTips {
			ux.Muted("Is guardd running? Start it with 'guard serve'.")
		}
		os.Exit(CLIExitError)
	}

	spin.UpdateMessage(fmt.Sprintf("Writing %d action(s) to %s...", actions.Count, outputFile))

	count, err := writeActionsCSV(outputFile, actions)
	if err != nil {
		spin.StopWithError("Export failed: " + err.Error())
		os.Exit(CLIExitError)
	}

	spin.StopWithSuccess(fmt.Sprintf("Exported %d action(s) to %s", count, outputFile))
	os.Exit(CLIExitSuccess)
}
