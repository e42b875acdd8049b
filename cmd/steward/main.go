// Command steward watches a running trafficsim and reverts configurations
// that are hurting it: a dead arrival feed or a congested pinned phase.
// It observes through the public API and acts via the admin endpoints.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/talgya/traffic-lights/internal/steward"
	"github.com/talgya/traffic-lights/internal/traffic"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Configuration from environment.
	apiURL := envOrDefault("TRAFFICSIM_API_URL", "http://localhost:8080")
	adminKey := os.Getenv("TRAFFICSIM_ADMIN_KEY")
	intervalSec := envIntOrDefault("STEWARD_INTERVAL", 60)
	fallbackMode := envOrDefault("STEWARD_FALLBACK_SOURCE", traffic.ModeFixed)

	if adminKey == "" {
		slog.Error("TRAFFICSIM_ADMIN_KEY is required")
		os.Exit(1)
	}

	interval := time.Duration(intervalSec) * time.Second

	slog.Info("steward starting",
		"api_url", apiURL,
		"interval", interval,
		"fallback_source", fallbackMode,
	)

	observer := steward.NewObserver(apiURL)
	actor := steward.NewActor(apiURL, adminKey)

	slog.Info("waiting for trafficsim API...")
	waitForAPI(apiURL)

	runCycle(observer, actor, fallbackMode)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			runCycle(observer, actor, fallbackMode)
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig)
			fmt.Println("Steward stopped.")
			return
		}
	}
}

// runCycle executes one observe → triage → decide → act cycle.
func runCycle(observer *steward.Observer, actor *steward.Actor, fallbackMode string) {
	snap, err := observer.Observe()
	if err != nil {
		slog.Error("observation failed", "error", err)
		return
	}

	health := steward.Triage(snap)
	slog.Info("observation complete",
		"run", snap.Status.RunID,
		"tick", snap.Status.Tick,
		"source", snap.Status.Source,
		"level", health.Level,
		"growth", fmt.Sprintf("%.2f", health.Growth),
		"fallback_share", fmt.Sprintf("%.2f", health.FallbackShare),
		"throughput", fmt.Sprintf("%.2f", health.Throughput),
	)

	decision := steward.Decide(snap, health, fallbackMode)
	if decision.Action == steward.ActionNone {
		return
	}

	if err := actor.Act(decision); err != nil {
		slog.Error("intervention failed", "action", decision.Action, "error", err)
		return
	}
	slog.Info("intervention executed", "action", decision.Action, "rationale", decision.Rationale)
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds. Exits after 5 minutes if the API never becomes ready.
func waitForAPI(apiURL string) {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		resp, err := http.Get(apiURL + "/api/v1/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				slog.Info("trafficsim API is ready")
				return
			}
		}
		if time.Now().After(deadline) {
			slog.Error("trafficsim API did not become ready within 5 minutes")
			os.Exit(1)
		}
		slog.Info("trafficsim not ready, retrying...", "backoff", backoff)
		time.Sleep(backoff)
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
