package traffic

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/traffic-lights/internal/network"
)

// TimeLayout is the timestamp format of statistics reports.
const TimeLayout = "20060102150405"

// ErrEmptyReport is returned for a blank response body.
var ErrEmptyReport = errors.New("empty statistics report")

// Stat is one road's count in a statistics report.
type Stat struct {
	ID        int `json:"id"`
	CountCars int `json:"count_cars"`
}

// Report is a parsed statistics report.
type Report struct {
	Start      time.Time
	End        time.Time
	Passed     time.Duration
	Statistics []Stat
}

type wireReport struct {
	StartTime  *string `json:"start_time"`
	EndTime    *string `json:"end_time"`
	TimePassed *string `json:"time_passed"`
	Statistics []Stat  `json:"statistics"`
}

// ParseReport decodes a statistics report. Only the end time is required.
// A start time or time passed that does not parse is left zero and the
// counts are still used.
func ParseReport(body []byte) (*Report, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, ErrEmptyReport
	}

	var w wireReport
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	if w.EndTime == nil {
		return nil, fmt.Errorf("report has no end_time")
	}

	r := &Report{Statistics: w.Statistics}
	var err error
	if r.End, err = time.Parse(TimeLayout, *w.EndTime); err != nil {
		return nil, fmt.Errorf("report end_time: %w", err)
	}
	if w.StartTime != nil {
		if r.Start, err = time.Parse(TimeLayout, *w.StartTime); err != nil {
			slog.Debug("report start_time ignored", "value", *w.StartTime, "error", err)
			r.Start = time.Time{}
		}
	}
	if w.TimePassed != nil {
		if r.Passed, err = ParsePassed(*w.TimePassed); err != nil {
			slog.Debug("report time_passed ignored", "value", *w.TimePassed, "error", err)
			r.Passed = 0
		}
	}
	for _, s := range r.Statistics {
		if s.CountCars < 0 {
			return nil, fmt.Errorf("report road %d has negative count %d", s.ID, s.CountCars)
		}
	}
	return r, nil
}

// Counts returns one arrival count per external road. Ids outside the
// external range are ignored and unlisted roads count zero.
func (r *Report) Counts() []int {
	out := make([]int, network.ExternalRoads)
	for _, s := range r.Statistics {
		if s.ID < 0 || s.ID >= network.ExternalRoads {
			continue
		}
		out[s.ID] = s.CountCars
	}
	return out
}

// ParsePassed reads an h:mm:ss.ffffff duration.
func ParsePassed(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("duration %q is not h:mm:ss.ffffff", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, fmt.Errorf("duration %q has bad hours", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("duration %q has bad minutes", s)
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || sec < 0 || sec >= 60 {
		return 0, fmt.Errorf("duration %q has bad seconds", s)
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	return d + time.Duration(sec*float64(time.Second)).Round(time.Microsecond), nil
}

// FormatPassed writes d as h:mm:ss.ffffff.
func FormatPassed(d time.Duration) string {
	d = d.Round(time.Microsecond)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	us := (d - s*time.Second) / time.Microsecond
	return fmt.Sprintf("%d:%02d:%02d.%06d", h, m, s, us)
}

// MarshalJSON writes the report in its wire shape.
func (r Report) MarshalJSON() ([]byte, error) {
	start := r.Start.Format(TimeLayout)
	end := r.End.Format(TimeLayout)
	passed := FormatPassed(r.Passed)
	stats := r.Statistics
	if stats == nil {
		stats = []Stat{}
	}
	return json.Marshal(wireReport{StartTime: &start, EndTime: &end, TimePassed: &passed, Statistics: stats})
}
