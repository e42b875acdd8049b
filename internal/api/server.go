// Package api provides the HTTP API for watching and steering the
// simulation. GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/talgya/traffic-lights/internal/engine"
	"github.com/talgya/traffic-lights/internal/persistence"
	"github.com/talgya/traffic-lights/internal/signal"
	"github.com/talgya/traffic-lights/internal/traffic"
)

const (
	maxSSEConns = 2
	maxWSConns  = 16
)

// Server serves the simulation over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	DB       *persistence.DB // Optional; history endpoints answer 503 without it
	Table    *traffic.Table
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	RelayKey string // Bearer token for SSE stream endpoint. Empty = streaming disabled.

	// Used when the source is switched over the API.
	FeedURL      string
	Seed         int64
	FetchTimeout time.Duration

	// Active streaming connection counts (atomic).
	sseConns int32
	wsConns  int32

	limitersOnce sync.Once
	wsLimiter    *RateLimiter
	adminLimiter *RateLimiter
}

// Handler returns the routed API with CORS applied.
func (s *Server) Handler() http.Handler {
	s.limitersOnce.Do(func() {
		s.wsLimiter = NewRateLimiter(30, time.Minute)
		s.adminLimiter = NewRateLimiter(120, time.Minute)
	})
	wsLimiter, adminLimiter := s.wsLimiter, s.adminLimiter

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/network", s.handleNetwork)
	mux.HandleFunc("/api/v1/matrices", s.handleMatrices)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/stats/history", s.handleStatsHistory)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/tick/", s.handleTick)

	// Streaming.
	mux.HandleFunc("/api/v1/stream", s.handleStream)
	mux.HandleFunc("/api/v1/ws", RateLimitMiddleware(wsLimiter, s.handleWS))

	// Admin endpoints (POST, require bearer token). GET shows current values.
	mux.HandleFunc("/api/v1/speed", RateLimitMiddleware(adminLimiter, s.adminOnly(s.handleSpeed)))
	mux.HandleFunc("/api/v1/traffic", RateLimitMiddleware(adminLimiter, s.adminOnly(s.handleTraffic)))
	mux.HandleFunc("/api/v1/source", RateLimitMiddleware(adminLimiter, s.adminOnly(s.handleSource)))
	mux.HandleFunc("/api/v1/phase", RateLimitMiddleware(adminLimiter, s.adminOnly(s.handlePhase)))
	mux.HandleFunc("/api/v1/reset", RateLimitMiddleware(adminLimiter, s.adminOnly(s.handleReset)))
	mux.HandleFunc("/api/v1/step", RateLimitMiddleware(adminLimiter, s.adminOnly(s.handleStep)))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine and returns the server
// so the caller can shut it down.
func (s *Server) Start() *http.Server {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	srv.RegisterOnShutdown(s.Close)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "relay_auth", s.RelayKey != "")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// Close stops the rate limiters' cleanup goroutines.
func (s *Server) Close() {
	s.limitersOnce.Do(func() {})
	if s.wsLimiter != nil {
		s.wsLimiter.Stop()
	}
	if s.adminLimiter != nil {
		s.adminLimiter.Stop()
	}
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearer(r *http.Request, key string) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == key
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
		case http.MethodPost:
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no TRAFFICSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !bearer(r, s.AdminKey) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	res := s.Sim.Snapshot()
	cfg := s.Sim.Config()

	phases := make([]int, len(res.Intersections))
	for i, in := range res.Intersections {
		phases[i] = in.Phase
	}

	status := map[string]any{
		"run_id":       res.RunID,
		"tick":         res.Tick,
		"source":       s.Sim.SourceName(),
		"phases":       phases,
		"pinned_phase": cfg.PinnedPhase,
		"in_flight":    res.InFlight,
		"departed":     res.Departed,
		"fallback":     res.Fallback,
	}
	if s.Eng != nil {
		status["speed"] = s.Eng.Speed()
		status["running"] = s.Eng.Running()
		status["engine_tick"] = s.Eng.Tick()
	}
	writeJSON(w, status)
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Snapshot())
}

func (s *Server) handleMatrices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"model":   s.Sim.Model(),
		"phases":  signal.Catalog,
		"weights": s.Sim.Config().Weights,
	})
}

func queryInt(r *http.Request, name string, def, max int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= max {
			return n
		}
	}
	return def
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 500)

	// ?archive=1 reads the persisted log across runs, newest first.
	if r.URL.Query().Get("archive") != "" && s.DB != nil {
		events, err := s.DB.RecentEvents(limit)
		if err != nil {
			slog.Error("event archive query failed", "error", err)
			http.Error(w, "event archive unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, events)
		return
	}

	events := s.Sim.RecentEvents(limit)
	if category := r.URL.Query().Get("category"); category != "" {
		filtered := make([]engine.Event, 0, len(events))
		for _, e := range events {
			if e.Category == category {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	writeJSON(w, events)
}

func (s *Server) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	run := r.URL.Query().Get("run")
	if run == "" {
		run = s.Sim.RunID().String()
	}
	limit := queryInt(r, "limit", 60, 1000)

	rows, err := s.DB.StatsHistory(run, limit)
	if err != nil {
		slog.Error("stats history query failed", "error", err)
		// Return empty array instead of error; the run may not have ticks yet.
		writeJSON(w, []persistence.TickStat{})
		return
	}
	if rows == nil {
		rows = []persistence.TickStat{}
	}
	writeJSON(w, rows)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	runs, err := s.DB.Runs(queryInt(r, "limit", 20, 200))
	if err != nil {
		slog.Error("runs query failed", "error", err)
		http.Error(w, "runs unavailable", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.Run{}
	}
	writeJSON(w, runs)
}

// handleTick returns one logged tick: GET /api/v1/tick/:n?run=<id>.
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	tick, err := strconv.ParseUint(strings.TrimPrefix(r.URL.Path, "/api/v1/tick/"), 10, 64)
	if err != nil {
		http.Error(w, "invalid tick", http.StatusBadRequest)
		return
	}
	run := r.URL.Query().Get("run")
	if run == "" {
		run = s.Sim.RunID().String()
	}
	res, err := s.DB.LoadTick(run, tick)
	if err != nil {
		http.Error(w, "tick not found", http.StatusNotFound)
		return
	}
	writeJSON(w, res)
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "engine not attached", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		if err := s.Eng.SetSpeed(req.Speed); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Info("speed changed", "speed", req.Speed)
	}

	writeJSON(w, map[string]float64{"speed": s.Eng.Speed()})
}

// handleTraffic edits one field of the traffic table. The value may be a
// JSON number or string; it is validated as a non-negative integer.
// Interest edits restage the destination weights for the next reset.
func (s *Server) handleTraffic(w http.ResponseWriter, r *http.Request) {
	if s.Table == nil {
		http.Error(w, "traffic table not attached", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Road  int    `json:"road"`
			Field string `json:"field"`
			Value any    `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		raw := fmt.Sprint(req.Value)
		if req.Value == nil {
			raw = ""
		}
		if err := s.Table.SetField(req.Road, req.Field, raw); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Field == traffic.FieldInterest {
			if err := s.Sim.StageWeights(s.Table.Weights()); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		slog.Info("traffic table changed", "road", req.Road, "field", req.Field, "value", raw)
	}

	writeJSON(w, s.Table.Rows())
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Mode    string `json:"mode"`
			FeedURL string `json:"feed_url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		feed := req.FeedURL
		if feed == "" {
			feed = s.FeedURL
		}
		src, err := traffic.NewSource(req.Mode, traffic.Options{
			Table:   s.Table,
			FeedURL: feed,
			Seed:    s.Seed,
			Timeout: s.FetchTimeout,
		})
		if err != nil {
			http.Error(w, fmt.Sprintf("%v (modes: %s)", err, strings.Join(traffic.Modes, ", ")), http.StatusBadRequest)
			return
		}
		s.Sim.SetSource(src)
	}

	writeJSON(w, map[string]any{"source": s.Sim.SourceName(), "modes": traffic.Modes})
}

// handlePhase stages a pinned phase; -1 returns to adaptive selection.
// The pin takes effect at the next reset.
func (s *Server) handlePhase(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Phase *int `json:"phase"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phase == nil {
			http.Error(w, "invalid json (want {\"phase\": n})", http.StatusBadRequest)
			return
		}
		if err := s.Sim.StagePinnedPhase(*req.Phase); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	writeJSON(w, map[string]int{
		"pinned_phase": s.Sim.Config().PinnedPhase,
		"staged_phase": s.Sim.PendingConfig().PinnedPhase,
	})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	id, err := s.Sim.Reset()
	if err != nil {
		slog.Error("reset failed", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"run_id": id.String(), "config": s.Sim.Config()})
}

// handleStep advances one tick by hand; useful while the engine is paused.
func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	res, err := s.Sim.Step(ctx)
	if err != nil {
		slog.Error("manual step failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, res)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
