package steward

import "fmt"

// Action kinds.
const (
	ActionNone   = "none"
	ActionSource = "source" // Replace a failing arrival source
	ActionUnpin  = "unpin"  // Return a congested run to adaptive phases
)

// Decision is the steward's chosen response to one observation.
type Decision struct {
	Action    string `json:"action"`
	Rationale string `json:"rationale"`
	Mode      string `json:"mode,omitempty"` // Source mode for ActionSource
}

// Decide picks zero or one intervention. It only ever undoes an operator
// choice that the history shows is failing; healthy runs are left alone.
func Decide(snap *Snapshot, h *Health, fallbackMode string) Decision {
	switch {
	case h.Level == LevelCritical && h.FallbackShare >= 0.5 && snap.Status.Source != fallbackMode:
		return Decision{
			Action:    ActionSource,
			Mode:      fallbackMode,
			Rationale: fmt.Sprintf("%.0f%% of the last %d ticks had no arrival data from %s", 100*h.FallbackShare, h.Rows, snap.Status.Source),
		}
	case (h.Level == LevelCritical || h.Level == LevelWarning) && h.Growth > 0.5 && snap.Status.PinnedPhase != -1:
		return Decision{
			Action:    ActionUnpin,
			Rationale: fmt.Sprintf("vehicles in flight grew %.0f%% while every crossing was pinned to phase %d", 100*h.Growth, snap.Status.PinnedPhase),
		}
	}
	return Decision{Action: ActionNone, Rationale: fmt.Sprintf("level %s", h.Level)}
}
