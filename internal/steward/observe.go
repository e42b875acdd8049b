// Package steward watches a running trafficsim over its HTTP API and
// undoes configurations that are hurting the network: it observes status
// and recent history, grades the trend, decides on at most one corrective
// action and performs it through the admin endpoints.
package steward

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Snapshot holds all data collected during an observation cycle.
type Snapshot struct {
	Status  Status       `json:"status"`
	History []HistoryRow `json:"history"`
}

// Status mirrors GET /api/v1/status.
type Status struct {
	RunID       string  `json:"run_id"`
	Tick        uint64  `json:"tick"`
	Source      string  `json:"source"`
	Phases      []int   `json:"phases"`
	PinnedPhase int     `json:"pinned_phase"`
	InFlight    float64 `json:"in_flight"`
	Departed    float64 `json:"departed"`
	Fallback    bool    `json:"fallback"`
	Speed       float64 `json:"speed"`
	Running     bool    `json:"running"`
}

// HistoryRow mirrors items from GET /api/v1/stats/history.
type HistoryRow struct {
	Tick     uint64  `json:"tick"`
	Source   string  `json:"source"`
	Fallback bool    `json:"fallback"`
	InFlight float64 `json:"in_flight"`
	Departed float64 `json:"departed"`
	Phases   []int   `json:"phases"`
}

// Observer fetches simulation state from the API.
type Observer struct {
	BaseURL    string
	Window     int // History rows per observation
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		Window:  30,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe fetches status and the recent history of the current run.
// History is optional: a server without a database yields none.
func (o *Observer) Observe() (*Snapshot, error) {
	snap := &Snapshot{}

	if err := o.fetchJSON("/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	path := fmt.Sprintf("/api/v1/stats/history?run=%s&limit=%d", snap.Status.RunID, o.Window)
	if err := o.fetchJSON(path, &snap.History); err != nil {
		snap.History = nil
	}

	return snap, nil
}

// fetchJSON GETs a path and decodes the JSON response into target.
func (o *Observer) fetchJSON(path string, target any) error {
	resp, err := o.HTTPClient.Get(o.BaseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
