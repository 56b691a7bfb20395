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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/engine"
)

func TestResolveOutputPath(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name       string
		outputFlag string
		want       string
	}{
		{name: "empty flag uses default", outputFlag: "", want: "actions_prof-run.csv"},
		{name: "directory gets default appended", outputFlag: dir, want: filepath.Join(dir, "actions_prof-run.csv")},
		{name: "file path used verbatim", outputFlag: filepath.Join(dir, "out.csv"), want: filepath.Join(dir, "out.csv")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveOutputPath(tt.outputFlag, "actions_prof-run.csv")
			if got != tt.want {
				t.Errorf("resolveOutputPath(%q) = %q, want %q", tt.outputFlag, got, tt.want)
			}
		})
	}
}

func TestFetchActions(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/actions" {
			t.Errorf("Hit wrong endpoint: %s", r.URL.Path)
		}
		if r.URL.Query().Get("profile") != "prof-run" {
			t.Errorf("profile = %q, want prof-run", r.URL.Query().Get("profile"))
		}
		if r.URL.Query().Get("limit") != "10" {
			t.Errorf("limit = %q, want 10", r.URL.Query().Get("limit"))
		}

		json.NewEncoder(w).Encode(engine.ActionsResponse{
			Actions: []*datatypes.AutoscalingAction{
				{ID: "act-2", ProfileID: "prof-run", Action: datatypes.ActionHold, FromReplicas: 4, ToReplicas: 4},
				{ID: "act-1", ProfileID: "prof-run", Action: datatypes.ActionScaleUp, FromReplicas: 2, ToReplicas: 4, Executed: true},
			},
			Count: 2,
		})
	}))
	defer mockServer.Close()

	actions, err := fetchActions(mockServer.URL, "prof-run", 10)
	if err != nil {
		t.Fatalf("fetchActions returned error: %v", err)
	}
	if actions.Count != 2 || len(actions.Actions) != 2 {
		t.Errorf("Count = %d with %d actions, want 2", actions.Count, len(actions.Actions))
	}
}

func TestWriteActionsCSV(t *testing.T) {
	outputFile := filepath.Join(t.TempDir(), "actions.csv")
	created := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	actions := &engine.ActionsResponse{
		Actions: []*datatypes.AutoscalingAction{
			{
				ID:           "act-1",
				ProfileID:    "prof-run",
				Tenant:       "acme",
				RouteClass:   datatypes.RouteRun,
				Action:       datatypes.ActionScaleUp,
				FromReplicas: 2,
				ToReplicas:   4,
				Reason:       "p95 above target",
				Executed:     true,
				CreatedAt:    created,
			},
			{
				ID:             "act-2",
				ProfileID:      "prof-run",
				Action:         datatypes.ActionHold,
				FromReplicas:   4,
				ToReplicas:     4,
				CooldownActive: true,
				CreatedAt:      created.Add(time.Minute),
			},
		},
		Count: 2,
	}

	count, err := writeActionsCSV(outputFile, actions)
	if err != nil {
		t.Fatalf("writeActionsCSV returned error: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	f, err := os.Open(outputFile)
	if err != nil {
		t.Fatalf("Failed to open the CSV: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse the CSV: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "Created" || rows[0][1] != "Action" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][1] != "scale_up" || rows[1][5] != "4" || rows[1][6] != "true" {
		t.Errorf("first row = %v", rows[1])
	}
	if rows[2][1] != "hold" || rows[2][7] != "true" {
		t.Errorf("second row = %v", rows[2])
	}
}

func TestFetchActions_EngineError(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(engine.ErrorResponse{Error: "Missing profile", Code: "MISSING_PROFILE"})
	}))
	defer mockServer.Close()

	if _, err := fetchActions(mockServer.URL, "", 0); err == nil {
		t.Fatal("fetchActions did not surface the engine error")
	}
}
