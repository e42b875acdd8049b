package traffic

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleReport = `{
    "start_time": "20230608225051",
    "end_time": "20230608225121",
    "time_passed": "0:00:05.051019",
    "statistics": [
        {"id": 1, "count_cars": 3},
        {"id": 4, "count_cars": 7},
        {"id": 9, "count_cars": 100},
        {"id": -1, "count_cars": 100}
    ]
}`

func TestDefaultTable(t *testing.T) {
	tbl := DefaultTable()
	for _, r := range tbl.Rows() {
		if r.Interest != 5 || r.Min != 5 || r.Max != 10 || r.Value != 5 {
			t.Errorf("default row %+v", r)
		}
	}
	for _, w := range tbl.Weights() {
		if w != 5 {
			t.Errorf("default weight %v, want 5", w)
		}
	}
}

func TestSetFieldValidation(t *testing.T) {
	tbl := DefaultTable()

	if err := tbl.SetField(2, FieldValue, " 12 "); err != nil {
		t.Fatalf("SetField value: %v", err)
	}
	if got := tbl.Values()[2]; got != 12 {
		t.Errorf("value = %d, want 12", got)
	}

	cases := []struct {
		road       int
		field, raw string
		want       error
	}{
		{0, FieldMin, "abc", ErrInvalidValue},
		{0, FieldMin, "1.5", ErrInvalidValue},
		{0, FieldMax, "-3", ErrInvalidValue},
		{0, FieldMin, "11", ErrRange},
		{0, FieldMax, "4", ErrRange},
		{0, "speed", "1", ErrInvalidValue},
		{8, FieldMin, "1", ErrInvalidValue},
	}
	for _, c := range cases {
		if err := tbl.SetField(c.road, c.field, c.raw); !errors.Is(err, c.want) {
			t.Errorf("SetField(%d, %s, %q) = %v, want %v", c.road, c.field, c.raw, err, c.want)
		}
	}

	// Rejected edits leave the row alone.
	if r, _ := tbl.Row(0); r.Min != 5 || r.Max != 10 {
		t.Errorf("row 0 changed by rejected edits: %+v", r)
	}
}

func TestLoadTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.json")
	body := `[
		{"road": 0, "interest": 1, "min": 0, "max": 3, "value": 2},
		{"road": 1, "interest": 2, "min": 0, "max": 3, "value": 2},
		{"road": 2, "interest": 3, "min": 0, "max": 3, "value": 2},
		{"road": 3, "interest": 4, "min": 0, "max": 3, "value": 2},
		{"road": 4, "interest": 5, "min": 0, "max": 3, "value": 2},
		{"road": 5, "interest": 6, "min": 0, "max": 3, "value": 2},
		{"road": 6, "interest": 7, "min": 0, "max": 3, "value": 2},
		{"road": 7, "interest": 8, "min": 0, "max": 3, "value": 2}
	]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	tbl, err := LoadTable(path)
	if err != nil {
		t.Fatalf("LoadTable: %v", err)
	}
	if got := tbl.Weights()[7]; got != 8 {
		t.Errorf("weight 7 = %v, want 8", got)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`[{"road": 0, "min": 4, "max": 1}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTable(bad); err == nil {
		t.Error("LoadTable accepted a short table")
	}
}

func TestParseReport(t *testing.T) {
	r, err := ParseReport([]byte(sampleReport))
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}
	want := time.Date(2023, 6, 8, 22, 51, 21, 0, time.UTC)
	if !r.End.Equal(want) {
		t.Errorf("end = %v, want %v", r.End, want)
	}
	if r.Passed != 5051019*time.Microsecond {
		t.Errorf("passed = %v", r.Passed)
	}

	counts := r.Counts()
	wantCounts := []int{0, 3, 0, 0, 7, 0, 0, 0}
	for i := range wantCounts {
		if counts[i] != wantCounts[i] {
			t.Errorf("counts = %v, want %v", counts, wantCounts)
			break
		}
	}
}

func TestParseReportIgnoresBadOptionalFields(t *testing.T) {
	cases := map[string]string{
		"bad start":  `{"start_time": "2023-06-08", "end_time": "20230608225121", "statistics": [{"id": 1, "count_cars": 7}]}`,
		"bad passed": `{"end_time": "20230608225121", "time_passed": "5s", "statistics": [{"id": 1, "count_cars": 7}]}`,
	}
	for name, body := range cases {
		r, err := ParseReport([]byte(body))
		if err != nil {
			t.Errorf("%s: ParseReport: %v", name, err)
			continue
		}
		if !r.Start.IsZero() || r.Passed != 0 {
			t.Errorf("%s: start = %v, passed = %v, want zero", name, r.Start, r.Passed)
		}
		if counts := r.Counts(); counts[1] != 7 {
			t.Errorf("%s: counts = %v, want 7 on road 1", name, counts)
		}
	}
}

func TestParseReportErrors(t *testing.T) {
	cases := map[string]string{
		"empty":         "  ",
		"malformed":     `{"end_time": "2023`,
		"no end":        `{"start_time": "20230608225051", "statistics": []}`,
		"bad end":       `{"end_time": "yesterday"}`,
		"negative cars": `{"end_time": "20230608225121", "statistics": [{"id": 0, "count_cars": -2}]}`,
	}
	for name, body := range cases {
		if _, err := ParseReport([]byte(body)); err == nil {
			t.Errorf("%s: ParseReport succeeded", name)
		}
	}
	if _, err := ParseReport(nil); !errors.Is(err, ErrEmptyReport) {
		t.Errorf("nil body = %v, want ErrEmptyReport", err)
	}
}

func TestPassedRoundTrip(t *testing.T) {
	for _, s := range []string{"0:00:05.051019", "1:02:03.000000", "12:59:59.999999"} {
		d, err := ParsePassed(s)
		if err != nil {
			t.Fatalf("ParsePassed(%q): %v", s, err)
		}
		if got := FormatPassed(d); got != s {
			t.Errorf("FormatPassed(ParsePassed(%q)) = %q", s, got)
		}
	}
}

func TestUniformStaysInBounds(t *testing.T) {
	tbl := DefaultTable()
	if err := tbl.SetField(3, FieldMax, "5"); err != nil {
		t.Fatal(err)
	}
	u := NewUniform(tbl, 42)
	for i := 0; i < 200; i++ {
		got, err := u.Arrivals(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		for road, n := range got {
			if road == 3 {
				if n != 5 {
					t.Fatalf("road 3 with min == max drew %d", n)
				}
				continue
			}
			if n < 5 || n >= 10 {
				t.Fatalf("road %d drew %d outside [5, 10)", road, n)
			}
		}
	}
}

func TestFixedFollowsTableEdits(t *testing.T) {
	tbl := DefaultTable()
	f := &Fixed{Table: tbl}
	if err := tbl.SetField(0, FieldValue, "50"); err != nil {
		t.Fatal(err)
	}
	got, _ := f.Arrivals(context.Background())
	if got[0] != 50 || got[1] != 5 {
		t.Errorf("fixed arrivals = %v", got)
	}
}

func TestWaveStaysInBounds(t *testing.T) {
	w := NewWave(DefaultTable(), 7)
	for i := 0; i < 200; i++ {
		got, err := w.Arrivals(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		for road, n := range got {
			if n < 5 || n > 10 {
				t.Fatalf("road %d wave value %d outside [5, 10]", road, n)
			}
		}
	}
}

func TestRemote(t *testing.T) {
	body := sampleReport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	defer srv.Close()

	src := NewRemote(srv.URL, time.Second)
	got, err := src.Arrivals(context.Background())
	if err != nil {
		t.Fatalf("Arrivals: %v", err)
	}
	if got[1] != 3 || got[4] != 7 {
		t.Errorf("arrivals = %v", got)
	}

	body = `{"end_time": `
	if _, err := src.Arrivals(context.Background()); err == nil {
		t.Error("malformed report accepted")
	}
	body = ""
	if _, err := src.Arrivals(context.Background()); !errors.Is(err, ErrEmptyReport) {
		t.Errorf("empty body = %v, want ErrEmptyReport", err)
	}
}

func TestNewSource(t *testing.T) {
	opts := Options{Table: DefaultTable(), FeedURL: "http://localhost:1", Seed: 1}
	for _, mode := range Modes {
		src, err := NewSource(mode, opts)
		if err != nil {
			t.Fatalf("NewSource(%s): %v", mode, err)
		}
		if src.Name() != mode {
			t.Errorf("NewSource(%s).Name() = %s", mode, src.Name())
		}
	}
	if _, err := NewSource("tidal", opts); err == nil {
		t.Error("unknown mode accepted")
	}
	if _, err := NewSource(ModeRemote, Options{}); err == nil {
		t.Error("remote without URL accepted")
	}
}

func TestFeedServesRemoteReadableReports(t *testing.T) {
	table := DefaultTable()
	if err := table.SetField(6, FieldValue, "11"); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2023, 6, 8, 22, 50, 51, 0, time.UTC)
	feed := NewFeed(&Fixed{Table: table})
	feed.Now = func() time.Time { return now }

	srv := httptest.NewServer(feed)
	defer srv.Close()
	remote := NewRemote(srv.URL, time.Second)

	got, err := remote.Arrivals(context.Background())
	if err != nil {
		t.Fatalf("first report: %v", err)
	}
	if got[0] != 5 || got[6] != 11 {
		t.Errorf("arrivals = %v", got)
	}

	now = now.Add(90 * time.Second)
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	rep, err := ParseReport(body)
	if err != nil {
		t.Fatalf("ParseReport: %v", err)
	}
	if rep.Passed != 90*time.Second {
		t.Errorf("passed = %v, want 1m30s", rep.Passed)
	}
	if !rep.End.Equal(now) || !rep.Start.Equal(now.Add(-90*time.Second)) {
		t.Errorf("window = %v..%v", rep.Start, rep.End)
	}
}
