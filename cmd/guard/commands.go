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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianGuard/pkg/ux"
)

var (
	personalityLevel string // UX personality level (full/standard/minimal/machine)

	rootCmd = &cobra.Command{
		Use:   "guard",
		Short: "A cli to manage SLA policies and autoscaling for the Aleutian platform",
		Long: `Guard is the operator tool for the AleutianGuard SLA engine. It
				validates policy documents before they land in the catalog, drives
				one-shot evaluations and scaling recommendations against a running
				guardd daemon, and exports breach evidence.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}

	// --- Policy Catalog ---
	policyCmd = &cobra.Command{
		Use:   "policy",
		Short: "Base command to work with SLA policy documents",
		Long: `Use policy + subcommands to check catalog documents before dropping
				them into the catalog directory. Validation runs the same parser the
				engine runs at evaluation time, so a document that passes here will
				not be skipped by the daemon.`,
	}

	validatePolicyCmd = &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a policy document against the engine parser",
		Long:  `Parses the record envelope and the config body exactly the way the daemon does on catalog load. Each malformed field is reported with its dotted path.`,
		Args:  cobra.ExactArgs(1),
		Run:   runPolicyValidate, // Defined in cmd_policy.go
	}

	showPolicyCmd = &cobra.Command{
		Use:   "show [file]",
		Short: "Print the resolved policy with process defaults filled in",
		Long: `policy show parses the document and prints the fully-resolved config,
				including the defaults the engine would apply for omitted optional
				fields. Use this to see what the daemon will actually enforce.`,
		Args: cobra.ExactArgs(1),
		Run:  runPolicyShow,
	}

	fingerprintPolicyCmd = &cobra.Command{
		Use:   "fingerprint [file]",
		Short: "Calculate the SHA256 fingerprint of a policy document",
		Long:  `Calculates the same sha256 fingerprint the catalog computes on load. Compare it against the daemon's /v1/status fingerprints to verify which revision is live.`,
		Args:  cobra.ExactArgs(1),
		Run:   runPolicyFingerprint,
	}

	// --- Enforcement ---
	evaluateCmd = &cobra.Command{
		Use:   "evaluate",
		Short: "Run a one-shot SLA evaluation for a tenant and route class",
		Run:   runEvaluate, // Defined in cmd_evaluate.go
	}

	// --- Autoscaling ---
	autoscaleCmd = &cobra.Command{
		Use:   "autoscale",
		Short: "Autoscaling recommendation and apply commands",
	}

	autoscaleEvaluateCmd = &cobra.Command{
		Use:   "evaluate",
		Short: "Compute a scaling recommendation without executing it",
		Run:   runAutoscaleEvaluate, // Defined in cmd_autoscale.go
	}

	autoscaleApplyCmd = &cobra.Command{
		Use:   "apply",
		Short: "Compute a scaling recommendation and execute it",
		Run:   runAutoscaleApply,
	}

	// --- Evidence ---
	incidentsCmd = &cobra.Command{
		Use:   "incidents",
		Short: "SLA incident commands",
	}

	listIncidentsCmd = &cobra.Command{
		Use:   "list",
		Short: "List SLA incidents for a tenant",
		Run:   runListIncidents, // Defined in cmd_incidents.go
	}

	actionsCmd = &cobra.Command{
		Use:   "actions",
		Short: "Autoscaling action trail commands",
	}

	exportActionsCmd = &cobra.Command{
		Use:   "export",
		Short: "Export the autoscaling action trail to CSV",
		Run:   runExportActions, // Defined in cmd_actions.go
	}

	// --- Daemon ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the SLA engine daemon in-process",
		Long: `serve assembles the engine from GUARD_* environment variables and runs
				the HTTP API plus the background sweep loops until interrupted. This is
				the same daemon the guardd binary runs.`,
		Run: runServe, // Defined in cmd_serve.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the guard version",
		Run:   runVersion, // Defined in helpers.go
	}
)

// init runs when the Go program starts
func init() {
	// Global UX personality flag
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default, rich), standard, minimal, or machine (scripting)")

	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(validatePolicyCmd)
	validatePolicyCmd.Flags().BoolVar(&policyValidateJSON, "json", false, "Output results as JSON")
	policyCmd.AddCommand(showPolicyCmd)
	showPolicyCmd.Flags().BoolVar(&policyShowJSON, "json", false, "Output the resolved policy as JSON")
	policyCmd.AddCommand(fingerprintPolicyCmd)
	fingerprintPolicyCmd.Flags().BoolVar(&policyFingerprintJSON, "json", false, "Output the fingerprint as JSON")

	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringVar(&evaluateTenant, "tenant", "", "Tenant to evaluate (required)")
	evaluateCmd.Flags().StringVar(&evaluateRoute, "route", "", "Route class to evaluate: run, read, mutation, ingest, ops, or admin (required)")
	evaluateCmd.Flags().BoolVar(&evaluateJSON, "json", false, "Output the evaluation as JSON")

	rootCmd.AddCommand(autoscaleCmd)
	autoscaleCmd.AddCommand(autoscaleEvaluateCmd)
	autoscaleCmd.AddCommand(autoscaleApplyCmd)
	autoscaleCmd.PersistentFlags().StringVar(&autoscaleProfile, "profile", "", "Autoscaling profile id (required)")
	autoscaleCmd.PersistentFlags().BoolVar(&autoscaleJSON, "json", false, "Output the action as JSON")
	autoscaleApplyCmd.Flags().BoolVar(&autoscaleYes, "yes", false, "Apply without the confirmation prompt")

	rootCmd.AddCommand(incidentsCmd)
	incidentsCmd.AddCommand(listIncidentsCmd)
	listIncidentsCmd.Flags().StringVar(&incidentsTenant, "tenant", "", "Tenant to list incidents for (required)")
	listIncidentsCmd.Flags().BoolVar(&incidentsAll, "all", false, "Include resolved incidents")
	listIncidentsCmd.Flags().IntVar(&incidentsLimit, "limit", 50, "Maximum incidents to return")
	listIncidentsCmd.Flags().BoolVar(&incidentsJSON, "json", false, "Output incidents as JSON")

	rootCmd.AddCommand(actionsCmd)
	actionsCmd.AddCommand(exportActionsCmd)
	exportActionsCmd.Flags().StringVar(&actionsProfile, "profile", "", "Autoscaling profile id (required)")
	exportActionsCmd.Flags().IntVar(&actionsLimit, "limit", 200, "Maximum actions to export")
	exportActionsCmd.Flags().String("output", "", "Output file or directory for the CSV")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
