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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianGuard/pkg/ux"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/engine"
)

var (
	incidentsTenant string
	incidentsAll    bool
	incidentsLimit  int
	incidentsJSON   bool
)

// fetchIncidents lists incidents for a tenant from a running daemon.
func fetchIncidents(baseURL, tenant string, includeResolved bool, limit int) (*engine.IncidentsResponse, error) {
	query := url.Values{}
	query.Set("tenant", tenant)
	if includeResolved {
		query.Set("include_resolved", "true")
	}
	if limit > 0 {
		query.Set("limit", fmt.Sprintf("%d", limit))
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(baseURL + "/v1/incidents?" + query.Encode())
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

	var incidents engine.IncidentsResponse
	if err := json.Unmarshal(bodyBytes, &incidents); err != nil {
		return nil, fmt.Errorf("decode incidents: %w", err)
	}
	return &incidents, nil
}

func runListIncidents(cmd *cobra.Command, args []string) {
	if incidentsTenant == "" {
		ux.Error("--tenant is required.")
		os.Exit(CLIExitError)
	}

	incidents, err := fetchIncidents(getEngineBaseURL(), incidentsTenant, incidentsAll, incidentsLimit)
	if err != nil {
		OutputError(incidentsJSON, "Failed to list incidents", err)
		os.Exit(CLIExitError)
	}

	if incidentsJSON {
		if err := OutputJSON(incidents, false); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			os.Exit(CLIExitError)
		}
		os.Exit(incidentsExitCode(incidents))
	}

	if incidents.Count == 0 {
		ux.Info(fmt.Sprintf("No incidents recorded for tenant %s.", incidentsTenant))
		os.Exit(CLIExitSuccess)
	}

	ux.Title(fmt.Sprintf("Incidents for %s (%d)", incidentsTenant, incidents.Count))
	var open, mitigating, resolved int
	for _, incident := range incidents.Incidents {
		printIncident(incident)
		switch incident.Status {
		case datatypes.IncidentOpen:
			open++
		case datatypes.IncidentMitigating:
			mitigating++
		case datatypes.IncidentResolved:
			resolved++
		}
	}
	ux.Summary(open, mitigating, resolved)
	os.Exit(incidentsExitCode(incidents))
}

// incidentsExitCode reports findings when any listed incident is unresolved.
func incidentsExitCode(incidents *engine.IncidentsResponse) int {
	for _, incident := range incidents.Incidents {
		if incident.Status != datatypes.IncidentResolved {
			return CLIExitFindings
		}
	}
	return CLIExitSuccess
}

func printIncident(incident *datatypes.Incident) {
	icon := ux.IconWarning
	if incident.Severity == datatypes.SeveritySev1 {
		icon = ux.IconError
	}
	if incident.Status == datatypes.IncidentResolved {
		icon = ux.IconSuccess
	}

	fmt.Printf("%s %s  %s/%s  %s  %s  %d breach window(s)\n",
		icon.Render(), incident.ID, incident.PolicyID, incident.RouteClass,
		incident.Status, ux.SeverityBadge(string(incident.Severity)), len(incident.Breaches))
	ux.Muted(fmt.Sprintf("    first %s  last %s",
		incident.FirstBreachAt.Format(time.RFC3339),
		incident.LastBreachAt.Format(time.RFC3339)))
}
