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
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianGuard/services/sla_engine/engine"
)

const (
	DefaultEnginePort = 8092
	DefaultEngineHost = "localhost"
)

// getEngineBaseURL returns the standard address for the SLA engine daemon.
func getEngineBaseURL() string {
	// 1. Priority: Environment Variable (Used by Tests & Docker overrides)
	if url := os.Getenv("GUARD_ENGINE_URL"); url != "" {
		return url
	}
	// 2. Default: Standard Host/Port
	return fmt.Sprintf("http://%s:%d", DefaultEngineHost, DefaultEnginePort)
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("guard version %s\n", engine.ServiceVersion)
}
