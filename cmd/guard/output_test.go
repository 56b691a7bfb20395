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
	"testing"
	"time"
)

// TestOutputResult_Success tests OutputResult on the happy path.
func TestOutputResult_Success(t *testing.T) {
	cfg := OutputConfig{JSON: false, Quiet: true}
	start := time.Now()
	data := map[string]string{"test": "value"}

	exitCode := OutputResult(cfg, "test", start, data, false, nil)

	if exitCode != CLIExitSuccess {
		t.Errorf("Exit code = %d, want %d", exitCode, CLIExitSuccess)
	}
}

// TestOutputResult_Findings tests OutputResult with findings.
func TestOutputResult_Findings(t *testing.T) {
	cfg := OutputConfig{JSON: false, Quiet: true}
	start := time.Now()
	data := map[string]string{"test": "value"}

	exitCode := OutputResult(cfg, "test", start, data, true, nil)

	if exitCode != CLIExitFindings {
		t.Errorf("Exit code = %d, want %d", exitCode, CLIExitFindings)
	}
}

// TestOutputResult_Error tests OutputResult with error.
func TestOutputResult_Error(t *testing.T) {
	cfg := OutputConfig{JSON: false, Quiet: true}
	start := time.Now()

	exitCode := OutputResult(cfg, "test", start, nil, false, bytes.ErrTooLarge)

	if exitCode != CLIExitError {
		t.Errorf("Exit code = %d, want %d", exitCode, CLIExitError)
	}
}

// TestExitCodeConstants tests exit code constant values.
func TestExitCodeConstants(t *testing.T) {
	if CLIExitSuccess != 0 {
		t.Errorf("CLIExitSuccess = %d, want 0", CLIExitSuccess)
	}
	if CLIExitFindings != 1 {
		t.Errorf("CLIExitFindings = %d, want 1", CLIExitFindings)
	}
	if CLIExitError != 2 {
		t.Errorf("CLIExitError = %d, want 2", CLIExitError)
	}
}
