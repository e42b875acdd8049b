package steward

// Health levels, worst first.
const (
	LevelCritical = "CRITICAL"
	LevelWarning  = "WARNING"
	LevelWatch    = "WATCH"
	LevelHealthy  = "HEALTHY"
)

// Health holds derived diagnostic signals computed from a Snapshot.
type Health struct {
	Rows          int     // History rows considered
	FallbackShare float64 // Fraction of ticks that ran on the zero fallback
	Growth        float64 // Relative change in vehicles in flight across the window
	Throughput    float64 // Vehicles leaving per tick across the window
	Level         string
}

// Triage computes Health from the snapshot's history, which is ordered
// oldest first.
func Triage(snap *Snapshot) *Health {
	h := &Health{Rows: len(snap.History), Level: LevelHealthy}
	if h.Rows == 0 {
		if snap.Status.Fallback {
			h.FallbackShare = 1
			h.Level = LevelWatch
		}
		return h
	}

	fallbacks := 0
	for _, row := range snap.History {
		if row.Fallback {
			fallbacks++
		}
	}
	h.FallbackShare = float64(fallbacks) / float64(h.Rows)

	oldest := snap.History[0]
	newest := snap.History[h.Rows-1]
	if newest.Tick > oldest.Tick {
		h.Throughput = (newest.Departed - oldest.Departed) / float64(newest.Tick-oldest.Tick)
	}
	base := oldest.InFlight
	if base < 1 {
		base = 1
	}
	h.Growth = (newest.InFlight - oldest.InFlight) / base

	switch {
	case h.Rows >= 4 && h.FallbackShare >= 0.5:
		h.Level = LevelCritical
	case h.Rows >= 4 && h.Growth > 1:
		h.Level = LevelCritical
	case h.FallbackShare > 0.2 || h.Growth > 0.5:
		h.Level = LevelWarning
	case h.FallbackShare > 0 || h.Growth > 0.1:
		h.Level = LevelWatch
	}
	return h
}
