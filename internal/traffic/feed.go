package traffic

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Feed serves statistics reports built from another source, one report
// per request. Each report covers the time since the previous one.
type Feed struct {
	Source Source
	Now    func() time.Time

	mu   sync.Mutex
	last time.Time
}

// NewFeed returns a feed drawing its counts from src.
func NewFeed(src Source) *Feed {
	return &Feed{Source: src, Now: time.Now}
}

// Next builds the next report.
func (f *Feed) Next(r *http.Request) (Report, error) {
	counts, err := f.Source.Arrivals(r.Context())
	if err != nil {
		return Report{}, err
	}

	f.mu.Lock()
	end := f.Now()
	start := f.last
	if start.IsZero() {
		start = end
	}
	f.last = end
	f.mu.Unlock()

	stats := make([]Stat, 0, len(counts))
	for id, n := range counts {
		stats = append(stats, Stat{ID: id, CountCars: n})
	}
	return Report{Start: start, End: end, Passed: end.Sub(start), Statistics: stats}, nil
}

func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET required", http.StatusMethodNotAllowed)
		return
	}
	rep, err := f.Next(r)
	if err != nil {
		slog.Error("feed source failed", "source", f.Source.Name(), "error", err)
		http.Error(w, "no statistics available", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rep)
}
