// Command statsfeed serves synthetic per-road vehicle counts in the
// statistics report format that trafficsim's remote source reads.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/talgya/traffic-lights/internal/traffic"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	port := envIntOrDefault("STATSFEED_PORT", 8090)
	mode := envOrDefault("STATSFEED_SOURCE", traffic.ModeWave)
	seed := int64(envIntOrDefault("STATSFEED_SEED", 0))

	table := traffic.DefaultTable()
	if path := os.Getenv("STATSFEED_TABLE"); path != "" {
		loaded, err := traffic.LoadTable(path)
		if err != nil {
			slog.Error("failed to load traffic table", "path", path, "error", err)
			os.Exit(1)
		}
		table = loaded
	}

	if mode == traffic.ModeRemote {
		slog.Error("statsfeed cannot relay another feed", "mode", mode)
		os.Exit(1)
	}
	src, err := traffic.NewSource(mode, traffic.Options{Table: table, Seed: seed})
	if err != nil {
		slog.Error("invalid source", "mode", mode, "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/stats", traffic.NewFeed(src))

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	slog.Info("statistics feed starting", "addr", addr, "source", src.Name())
	fmt.Printf("Feed: http://localhost:%d/stats\n", port)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server error", "error", err)
		os.Exit(1)
	}
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
