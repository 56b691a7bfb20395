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
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianGuard/pkg/ux"
	"github.com/AleutianAI/AleutianGuard/pkg/validation"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/config"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/policy"
)

var (
	policyValidateJSON    bool
	policyShowJSON        bool
	policyFingerprintJSON bool
)

// cliPolicyDefaults returns the same optional-field defaults the daemon uses
// with an unconfigured environment, so validate/show match what guardd loads.
func cliPolicyDefaults() policy.Defaults {
	cfg := config.Default()
	return policy.Defaults{
		Mode:                cfg.SLA.DefaultMode,
		BreachWindowSeconds: cfg.SLA.WindowGranularitySeconds,
		TriggerWindows:      cfg.SLA.DefaultTriggerWindows,
		DisableAudioChannel: cfg.SLA.Degrade.DisableAudioChannel,
		MinResults:          cfg.SLA.Degrade.MinResults,
		MaxOutputBytes:      cfg.SLA.Degrade.MaxOutputBytes,
	}
}

// validatePolicyDocument checks one policy file the way the catalog loader
// does: record envelope first, then the config body through the engine
// parser. A read failure is an error; everything else becomes findings.
//
// # Exit Codes (via runPolicyValidate)
//
//   - 0: Document is valid.
//   - 1: Document has findings.
//   - 2: File could not be read.
func validatePolicyDocument(path string) (PolicyValidateResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PolicyValidateResult{File: path}, err
	}

	result := PolicyValidateResult{
		File: path,
		Hash: fmt.Sprintf("sha256:%x", sha256.Sum256(data)),
	}

	var rec datatypes.Policy
	if err := yaml.Unmarshal(data, &rec); err != nil {
		result.Findings = append(result.Findings, PolicyFinding{Reason: fmt.Sprintf("parse yaml: %v", err)})
		return result, nil
	}
	result.PolicyID = rec.ID

	result.Findings = append(result.Findings, envelopeFindings(&rec)...)

	if rec.Document == nil {
		result.Valid = false
		return result, nil
	}
	if _, err := policy.Parse(rec.Document, cliPolicyDefaults()); err != nil {
		var verr *policy.ValidationError
		if errors.As(err, &verr) {
			finding := PolicyFinding{Path: "config", Reason: verr.Reason}
			if verr.Path != "" {
				finding.Path = "config." + verr.Path
			}
			result.Findings = append(result.Findings, finding)
		} else {
			result.Findings = append(result.Findings, PolicyFinding{Path: "config", Reason: err.Error()})
		}
	}

	result.Valid = len(result.Findings) == 0
	return result, nil
}

// envelopeFindings validates the record envelope and converts the errors to
// findings with field paths.
func envelopeFindings(rec *datatypes.Policy) []PolicyFinding {
	var findings []PolicyFinding

	if err := rec.Validate(); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				path := strings.ToLower(fe.Field())
				if path == "document" {
					// yaml key differs from the struct field
					path = "config"
				}
				findings = append(findings, PolicyFinding{
					Path:   path,
					Reason: fmt.Sprintf("failed %q validation", fe.Tag()),
				})
			}
		} else {
			findings = append(findings, PolicyFinding{Reason: err.Error()})
		}
		return findings
	}

	if err := validation.ValidateCatalogID(rec.ID); err != nil {
		findings = append(findings, PolicyFinding{Path: "id", Reason: err.Error()})
	}
	if rec.Tenant != "" {
		if err := validation.ValidateTenant(rec.Tenant); err != nil {
			findings = append(findings, PolicyFinding{Path: "tenant", Reason: err.Error()})
		}
	}
	return findings
}

func runPolicyValidate(cmd *cobra.Command, args []string) {
	result, err := validatePolicyDocument(args[0])
	if err != nil {
		OutputError(policyValidateJSON, "Failed to read policy file", err)
		os.Exit(CLIExitError)
	}

	if policyValidateJSON {
		if err := OutputJSON(result, false); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			os.Exit(CLIExitError)
		}
	} else {
		fmt.Println("--- Policy Document Validation ---")
		fmt.Printf("File:   %s\n", result.File)
		fmt.Printf("SHA256: %s\n", result.Hash)
		if result.Valid {
			ux.Success(fmt.Sprintf("Policy %q is valid", result.PolicyID))
		} else {
			ux.Error(fmt.Sprintf("Policy document has %d finding(s)", len(result.Findings)))
			for _, f := range result.Findings {
				if f.Path != "" {
					fmt.Printf("  [%s] %s\n", f.Path, f.Reason)
				} else {
					fmt.Printf("  %s\n", f.Reason)
				}
			}
		}
	}

	if !result.Valid {
		os.Exit(CLIExitFindings)
	}
	os.Exit(CLIExitSuccess)
}

// resolvePolicyDocument parses the file and fills in the process defaults,
// returning the config body the engine would enforce.
func resolvePolicyDocument(path string) (PolicyShowResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PolicyShowResult{}, err
	}

	var rec datatypes.Policy
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return PolicyShowResult{}, fmt.Errorf("parse yaml: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return PolicyShowResult{}, err
	}

	cfg, err := policy.Parse(rec.Document, cliPolicyDefaults())
	if err != nil {
		return PolicyShowResult{}, err
	}

	return PolicyShowResult{
		File:     path,
		PolicyID: rec.ID,
		Name:     rec.Name,
		Version:  rec.Version,
		Tenant:   rec.Tenant,
		Enabled:  rec.Enabled,
		Hash:     fmt.Sprintf("sha256:%x", sha256.Sum256(data)),
		Resolved: cfg.Document(),
	}, nil
}

func runPolicyShow(cmd *cobra.Command, args []string) {
	result, err := resolvePolicyDocument(args[0])
	if err != nil {
		OutputError(policyShowJSON, "Failed to resolve policy", err)
		os.Exit(CLIExitError)
	}

	if policyShowJSON {
		if err := OutputJSON(result, false); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			os.Exit(CLIExitError)
		}
		os.Exit(CLIExitSuccess)
	}

	scope := "global"
	if result.Tenant != "" {
		scope = "tenant " + result.Tenant
	}
	ux.Title(fmt.Sprintf("Policy %s v%d (%s)", result.PolicyID, result.Version, result.Name))
	ux.Muted(fmt.Sprintf("scope: %s  enabled: %t  %s", scope, result.Enabled, result.Hash))

	resolved, err := yaml.Marshal(result.Resolved)
	if err != nil {
		OutputError(false, "Failed to render resolved policy", err)
		os.Exit(CLIExitError)
	}
	fmt.Println(string(resolved))
	os.Exit(CLIExitSuccess)
}

func runPolicyFingerprint(cmd *cobra.Command, args []string) {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		OutputError(policyFingerprintJSON, "Failed to read policy file", err)
		os.Exit(CLIExitError)
	}

	hash := sha256.Sum256(data)
	hashStr := fmt.Sprintf("sha256:%x", hash)

	if policyFingerprintJSON {
		result := PolicyFingerprintResult{
			File:     path,
			Hash:     hashStr,
			ByteSize: len(data),
		}
		if err := OutputJSON(result, false); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			os.Exit(CLIExitError)
		}
	} else {
		fmt.Println("--- Policy Document Fingerprint ---")
		fmt.Printf("File:   %s\n", path)
		fmt.Printf("SHA256: %s\n", hashStr)
		fmt.Printf("Size:   %d bytes\n", len(data))
	}
	os.Exit(CLIExitSuccess)
}
