// Command trafficsim runs the four-crossing traffic-light simulation and
// serves it over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/talgya/traffic-lights/internal/api"
	"github.com/talgya/traffic-lights/internal/engine"
	"github.com/talgya/traffic-lights/internal/persistence"
	"github.com/talgya/traffic-lights/internal/traffic"
)

func main() {
	level := slog.LevelInfo
	if os.Getenv("TRAFFICSIM_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("Crossroads traffic-light simulation")

	apiPort := envIntOrDefault("TRAFFICSIM_PORT", 8080)
	dbPath := envOrDefault("TRAFFICSIM_DB", "data/traffic.db")
	mode := envOrDefault("TRAFFICSIM_SOURCE", traffic.ModeFixed)
	feedURL := os.Getenv("TRAFFICSIM_FEED_URL")
	seed := int64(envIntOrDefault("TRAFFICSIM_SEED", 0))
	interval := envDurationOrDefault("TRAFFICSIM_INTERVAL", time.Second)
	fetchTimeout := envDurationOrDefault("TRAFFICSIM_FETCH_TIMEOUT", 5*time.Second)

	// ── Traffic table ─────────────────────────────────────────────────
	table := traffic.DefaultTable()
	if path := os.Getenv("TRAFFICSIM_TABLE"); path != "" {
		loaded, err := traffic.LoadTable(path)
		if err != nil {
			slog.Error("failed to load traffic table", "path", path, "error", err)
			os.Exit(1)
		}
		table = loaded
		slog.Info("traffic table loaded", "path", path)
	}

	// ── Arrival source ────────────────────────────────────────────────
	src, err := traffic.NewSource(mode, traffic.Options{
		Table:   table,
		FeedURL: feedURL,
		Seed:    seed,
		Timeout: fetchTimeout,
	})
	if err != nil {
		slog.Error("invalid arrival source", "mode", mode, "error", err)
		os.Exit(1)
	}

	// ── Simulation ────────────────────────────────────────────────────
	cfg := engine.DefaultConfig()
	cfg.Weights = table.Weights()
	cfg.FetchTimeout = fetchTimeout
	if v := os.Getenv("TRAFFICSIM_PHASE"); v != "" {
		phase, err := strconv.Atoi(v)
		if err != nil {
			slog.Error("TRAFFICSIM_PHASE must be an integer", "value", v)
			os.Exit(1)
		}
		cfg.PinnedPhase = phase
	}

	sim, err := engine.NewSimulation(cfg, src)
	if err != nil {
		slog.Error("failed to start simulation", "error", err)
		os.Exit(1)
	}
	sim.SetNotifier(engine.NotifierFunc(func(e engine.Event) {
		slog.Warn("arrival feed unavailable, tick ran with no arrivals", "tick", e.Tick, "detail", e.Description)
	}))

	// ── Database ──────────────────────────────────────────────────────
	var db *persistence.DB
	var rec *persistence.Recorder
	if dbPath != "off" {
		os.MkdirAll(filepath.Dir(dbPath), 0755)
		db, err = persistence.Open(dbPath)
		if err != nil {
			slog.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		slog.Info("database opened", "path", dbPath)

		rec = &persistence.Recorder{DB: db, Sim: sim}
		rec.RecordRun()
	}

	eng := engine.NewEngine()
	eng.Interval = interval
	eng.OnTick = func(ctx context.Context, tick uint64) error {
		_, err := sim.Step(ctx)
		return err
	}
	eng.OnReport = sim.Report

	done := make(chan struct{})
	var recorded <-chan struct{}
	if rec != nil {
		recorded = rec.Follow(done)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	adminKey := os.Getenv("TRAFFICSIM_ADMIN_KEY")
	if adminKey == "" {
		slog.Warn("TRAFFICSIM_ADMIN_KEY not set, admin POST endpoints will be disabled")
	}

	apiServer := &api.Server{
		Sim:          sim,
		Eng:          eng,
		DB:           db,
		Table:        table,
		Port:         apiPort,
		AdminKey:     adminKey,
		RelayKey:     os.Getenv("TRAFFICSIM_RELAY_KEY"),
		FeedURL:      feedURL,
		Seed:         seed,
		FetchTimeout: fetchTimeout,
	}
	httpServer := apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\nCrossroads is running: source %s, one tick every %s.\n", src.Name(), interval)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", apiPort)
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	if err := eng.Run(ctx); err != nil {
		slog.Error("simulation halted", "tick", eng.Tick(), "error", err)
	}

	close(done)
	if rec != nil {
		<-recorded
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown", "error", err)
	}

	fmt.Printf("Simulation stopped after %d ticks (run %s).\n", sim.CurrentTick(), sim.RunID())
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
		slog.Warn("ignoring non-numeric setting", "key", key, "value", v)
	}
	return defaultVal
}

func envDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		slog.Warn("ignoring invalid duration", "key", key, "value", v)
	}
	return defaultVal
}
