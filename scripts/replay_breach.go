//go:build ignore

// Replay script that drives a running guardd through a full breach and
// recovery cycle: healthy baseline windows, four degraded windows that
// trip the breach streak, then clean traffic that resolves the incident.
// Observations are backfilled into aligned minute windows via the "at"
// field, so the whole cycle runs in seconds instead of real time.
//
// Run with: go run scripts/replay_breach.go
// Point it at a non-default daemon with GUARD_ENGINE_URL.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/AleutianAI/AleutianGuard/services/sla_engine/datatypes"
	"github.com/AleutianAI/AleutianGuard/services/sla_engine/engine"
)

const (
	replayTenant = "replay-demo"
	replayRoute  = "run"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	baseURL := os.Getenv("GUARD_ENGINE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8092"
	}
	client := &http.Client{Timeout: 10 * time.Second}

	fmt.Println("╔══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║              SLA BREACH REPLAY                                    ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════════╝")
	fmt.Printf("\n  Engine: %s\n  Tenant: %s  Route: %s\n", baseURL, replayTenant, replayRoute)

	// 1. Confirm the daemon is up before replaying anything into it.
	fmt.Println("\n┌─────────────────────────────────────────────────────────────────┐")
	fmt.Println("│ Step 1: Health Check                                            │")
	fmt.Println("└─────────────────────────────────────────────────────────────────┘")
	var health engine.HealthResponse
	if err := getJSON(ctx, client, baseURL+"/health", &health); err != nil {
		log.Fatalf("  ✗ guardd is not reachable at %s: %v", baseURL, err)
	}
	fmt.Printf("  ✓ guardd %s is %s\n", health.Version, health.Status)

	// Minute-aligned anchor. Backfilled windows count backwards from here.
	base := time.Now().UTC().Truncate(time.Minute)

	// 2. Five healthy windows establish the baseline.
	fmt.Println("\n┌─────────────────────────────────────────────────────────────────┐")
	fmt.Println("│ Step 2: Baseline (5 healthy windows)                            │")
	fmt.Println("└─────────────────────────────────────────────────────────────────┘")
	for offset := 9; offset >= 5; offset-- {
		start := base.Add(-time.Duration(offset) * time.Minute)
		sent, err := sendWindow(ctx, client, baseURL, start, false)
		if err != nil {
			log.Fatalf("  ✗ backfill of window %s failed: %v", start.Format("15:04"), err)
		}
		fmt.Printf("  ✓ window %s: %d healthy observations\n", start.Format("15:04"), sent)
	}

	eval, err := evaluate(ctx, client, baseURL)
	if err != nil {
		log.Fatalf("  ✗ evaluation failed: %v", err)
	}
	printEval("baseline", eval)

	// 3. Four degraded windows, evaluating after each so the streak and
	// the healthy → warning → breached transitions are visible.
	fmt.Println("\n┌─────────────────────────────────────────────────────────────────┐")
	fmt.Println("│ Step 3: Degradation (4 slow windows, 500s mixed in)             │")
	fmt.Println("└─────────────────────────────────────────────────────────────────┘")
	for offset := 4; offset >= 1; offset-- {
		start := base.Add(-time.Duration(offset) * time.Minute)
		sent, err := sendWindow(ctx, client, baseURL, start, true)
		if err != nil {
			log.Fatalf("  ✗ backfill of window %s failed: %v", start.Format("15:04"), err)
		}
		fmt.Printf("  ✓ window %s: %d degraded observations\n", start.Format("15:04"), sent)

		eval, err = evaluate(ctx, client, baseURL)
		if err != nil {
			log.Fatalf("  ✗ evaluation failed: %v", err)
		}
		printEval(fmt.Sprintf("after window %s", start.Format("15:04")), eval)
	}
	incidentID := eval.IncidentID

	// 4. Clean live traffic in the current window breaks the streak.
	fmt.Println("\n┌─────────────────────────────────────────────────────────────────┐")
	fmt.Println("│ Step 4: Recovery (live healthy traffic)                         │")
	fmt.Println("└─────────────────────────────────────────────────────────────────┘")
	for i := 0; i < 40; i++ {
		obs := engine.ObservationRequest{
			Tenant:     replayTenant,
			RouteClass: replayRoute,
			LatencyMS:  60 + float64(i%7)*8,
			StatusCode: 200,
		}
		var resp engine.ObservationResponse
		if err := postJSON(ctx, client, baseURL+"/v1/observations", obs, &resp); err != nil {
			log.Fatalf("  ✗ observation rejected: %v", err)
		}
	}
	fmt.Println("  ✓ 40 healthy observations sent at the current minute")

	eval, err = evaluate(ctx, client, baseURL)
	if err != nil {
		log.Fatalf("  ✗ evaluation failed: %v", err)
	}
	printEval("recovery", eval)

	// 5. The incident trail should show the whole arc.
	fmt.Println("\n┌─────────────────────────────────────────────────────────────────┐")
	fmt.Println("│ Step 5: Incident Trail                                          │")
	fmt.Println("└─────────────────────────────────────────────────────────────────┘")
	var incidents engine.IncidentsResponse
	incidentsURL := baseURL + "/v1/incidents?tenant=" + replayTenant + "&include_resolved=true"
	if err := getJSON(ctx, client, incidentsURL, &incidents); err != nil {
		log.Fatalf("  ✗ incident listing failed: %v", err)
	}
	fmt.Printf("  ✓ %d incident(s) recorded for %s\n", incidents.Count, replayTenant)
	for _, inc := range incidents.Incidents {
		fmt.Printf("    - %s: %s/%s %s sev=%s breaches=%d\n",
			inc.ID, inc.Tenant, inc.RouteClass, inc.Status, inc.Severity, len(inc.Breaches))
	}

	var actions engine.ActionsResponse
	if err := getJSON(ctx, client, baseURL+"/v1/actions", &actions); err != nil {
		log.Fatalf("  ✗ action listing failed: %v", err)
	}
	fmt.Printf("  ✓ %d autoscaling action(s) on record\n", actions.Count)

	// Summary
	fmt.Println("\n╔══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                    REPLAY SUMMARY                                 ║")
	fmt.Println("╠══════════════════════════════════════════════════════════════════╣")
	fmt.Println("║  Baseline:         5 healthy windows backfilled                   ║")
	fmt.Println("║  Degradation:      4 breached windows, streak observed            ║")
	fmt.Println("║  Recovery:         live traffic, streak broken                    ║")
	if incidentID != "" {
		fmt.Println("║  Incident:         ✓ opened during degradation                    ║")
	} else {
		fmt.Println("║  Incident:         none (check policy assignment for the tenant)  ║")
	}
	fmt.Println("╚══════════════════════════════════════════════════════════════════╝")
}

// sendWindow backfills one aligned minute window with 40 observations.
// Degraded windows run slow and fail every 8th request.
func sendWindow(ctx context.Context, client *http.Client, baseURL string, start time.Time, degraded bool) (int, error) {
	const samples = 40
	for i := 0; i < samples; i++ {
		at := start.Add(time.Duration(i*60/samples) * time.Second)
		obs := engine.ObservationRequest{
			Tenant:     replayTenant,
			RouteClass: replayRoute,
			StatusCode: 200,
			At:         &at,
		}
		if degraded {
			// The fixed jitter keeps the percentile spread realistic
			// while the replay stays reproducible.
			obs.LatencyMS = 700 + float64(i%9)*60
			saturation := 92.0
			obs.SaturationPct = &saturation
			if i%8 == 0 {
				obs.StatusCode = 500
			}
		} else {
			obs.LatencyMS = 60 + float64(i%7)*8
			saturation := 35.0
			obs.SaturationPct = &saturation
		}
		var resp engine.ObservationResponse
		if err := postJSON(ctx, client, baseURL+"/v1/observations", obs, &resp); err != nil {
			return i, err
		}
	}
	return samples, nil
}

func evaluate(ctx context.Context, client *http.Client, baseURL string) (*datatypes.Evaluation, error) {
	req := engine.EvaluateRequest{Tenant: replayTenant, RouteClass: replayRoute}
	var eval datatypes.Evaluation
	if err := postJSON(ctx, client, baseURL+"/v1/evaluate", req, &eval); err != nil {
		return nil, err
	}
	return &eval, nil
}

func printEval(label string, eval *datatypes.Evaluation) {
	marker := "✓"
	if eval.Status == datatypes.StatusBreached {
		marker = "✗"
	}
	fmt.Printf("  %s %s: status=%s decision=%s streak=%d breaches=%d\n",
		marker, label, eval.Status, eval.Decision, eval.BreachStreak, len(eval.Breaches))
	for _, b := range eval.Breaches {
		fmt.Printf("      %s: %.1f over %.1f (sev=%s)\n", b.Type, b.Actual, b.Threshold, b.Severity)
	}
	if eval.IncidentID != "" {
		fmt.Printf("      incident: %s\n", eval.IncidentID)
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, data)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned %d: %s", url, resp.StatusCode, data)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
