package traffic

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxReportBytes caps how much of a feed response is read.
const maxReportBytes = 1 << 20

// Remote fetches arrivals from a statistics feed serving JSON reports.
type Remote struct {
	url    string
	client *http.Client
}

// NewRemote creates a feed client. A zero timeout means 10 seconds.
func NewRemote(url string, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Remote{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (r *Remote) Name() string { return ModeRemote }

// Arrivals fetches and parses one report.
func (r *Remote) Arrivals(ctx context.Context) ([]int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		slog.Debug("statistics feed fetch failed", "url", r.url, "error", err)
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Debug("statistics feed bad status", "url", r.url, "status", resp.StatusCode)
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReportBytes))
	if err != nil {
		slog.Debug("statistics feed read failed", "url", r.url, "error", err)
		return nil, fmt.Errorf("read feed: %w", err)
	}

	report, err := ParseReport(body)
	if err != nil {
		slog.Debug("statistics feed parse failed", "url", r.url, "error", err)
		return nil, err
	}

	slog.Debug("statistics report received", "end", report.End, "passed", report.Passed, "stats", len(report.Statistics))
	return report.Counts(), nil
}
