package network

// LaneSet holds one value per movement: resolved vehicle counts on a road
// arriving at an intersection, or per-movement coefficients.
type LaneSet struct {
	Left     float64 `json:"left"`
	Straight float64 `json:"straight"`
	Right    float64 `json:"right"`
}

// Uniform returns a LaneSet with v in every lane.
func Uniform(v float64) LaneSet {
	return LaneSet{Left: v, Straight: v, Right: v}
}

// Sum returns the total over all three lanes.
func (l LaneSet) Sum() float64 {
	return l.Left + l.Straight + l.Right
}

// Get returns the lane for movement t.
func (l LaneSet) Get(t Turn) float64 {
	switch t {
	case TurnLeft:
		return l.Left
	case TurnStraight:
		return l.Straight
	case TurnRight:
		return l.Right
	}
	return 0
}

// Set assigns the lane for movement t.
func (l *LaneSet) Set(t Turn, v float64) {
	switch t {
	case TurnLeft:
		l.Left = v
	case TurnStraight:
		l.Straight = v
	case TurnRight:
		l.Right = v
	}
}

// Flow is one direction of travel along a road. Start counts vehicles that
// have just entered the road and not yet picked a lane; Finish splits the
// vehicles about to leave by movement.
type Flow struct {
	Start  float64 `json:"start"`
	Finish LaneSet `json:"finish"`
}

// Total returns Start plus every Finish lane.
func (f Flow) Total() float64 {
	return f.Start + f.Finish.Sum()
}
