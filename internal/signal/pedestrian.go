package signal

import (
	"math"

	"github.com/talgya/traffic-lights/internal/network"
)

// Pedestrian holds per-side, per-movement multipliers that favour movements
// kept red by the previous phase. A movement held red tick after tick grows
// its multiplier; turning it green resets it to 1.
type Pedestrian [4]network.LaneSet

// Lanes returns the multipliers for vehicles arriving from side s.
func (p *Pedestrian) Lanes(s network.Side) network.LaneSet {
	if p == nil {
		return network.Uniform(1)
	}
	return p[s]
}

// NextPedestrian chains the previous layer (nil on the first pass) through
// the phase that was active: each red slot becomes 1 + 0.01·(1 + prev)².
func NextPedestrian(prev *Pedestrian, active Phase) Pedestrian {
	var next Pedestrian
	for _, s := range network.Sides {
		green := active.Lanes(s)
		for _, t := range network.Turns {
			var carried float64
			if prev != nil {
				carried = prev[s].Get(t)
			}
			red := 1 - green.Get(t)
			next[s].Set(t, 1+0.01*math.Pow((1+carried)*red, 2))
		}
	}
	return next
}
