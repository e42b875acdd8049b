package engine

import (
	"math"

	"github.com/talgya/traffic-lights/internal/network"
	"github.com/talgya/traffic-lights/internal/signal"
)

// coefficients holds a loading coefficient per road, per endpoint, per lane.
type coefficients [network.TotalRoads][network.Intersections]network.LaneSet

// loadingCoefficients damps each lane by how congested the crossing it
// feeds is relative to the crossing it leaves. Lanes into the boundary are
// never damped; nothing moves out of an empty crossing.
func loadingCoefficients(net *network.Network) (*coefficients, error) {
	var loads [network.Intersections]float64
	for c := range loads {
		loads[c] = net.Load(c)
	}

	coefs := &coefficients{}
	for id := range net.Roads {
		r := net.Road(id)
		for _, c := range r.Ends() {
			useB := c == r.B
			var lane network.LaneSet
			for _, t := range network.Turns {
				target, err := net.RoadInDirection(id, t, useB)
				if err != nil {
					return nil, err
				}
				switch {
				case net.Road(target).External():
					lane.Set(t, 1)
				case loads[c] == 0:
				default:
					far, err := net.OtherEnd(target, c)
					if err != nil {
						return nil, err
					}
					lane.Set(t, 8/(math.Pow(loads[far]/loads[c], 3)+8))
				}
			}
			coefs[id][c] = lane
		}
	}
	return coefs, nil
}

// nextPedestrian chains each crossing's pedestrian layer through the phase
// it ran last tick. Crossings without a phase yet get no layer.
func (s *Simulation) nextPedestrian() [network.Intersections]*signal.Pedestrian {
	var layers [network.Intersections]*signal.Pedestrian
	for c := range layers {
		phase, ok := signal.Lookup(s.net.Intersection(c).Phase)
		if !ok {
			continue
		}
		layer := signal.NextPedestrian(s.pedestrian[c], phase)
		layers[c] = &layer
	}
	return layers
}

// scorePhases rates every catalog phase at crossing c by the damped,
// pedestrian-weighted traffic it would release.
func scorePhases(net *network.Network, c int, coefs *coefficients, ped *signal.Pedestrian) ([]float64, error) {
	scores := make([]float64, len(signal.Catalog))
	for i, p := range signal.Catalog {
		var total float64
		for _, id := range net.Intersection(c).Roads {
			r := net.Road(id)
			side, err := r.SideAt(c)
			if err != nil {
				return nil, err
			}
			lanes := r.Arriving(c).Finish
			coef := coefs[id][c]
			green := p.Lanes(side)
			walk := ped.Lanes(side)
			for _, t := range network.Turns {
				total += lanes.Get(t) * coef.Get(t) * green.Get(t) * walk.Get(t)
			}
		}
		scores[i] = signal.TypeMultiplier(p.Type) * total
	}
	return scores, nil
}

// selectPhase returns the index of the best score. Ties go to the highest
// index.
func selectPhase(scores []float64) int {
	best := -1
	for i, v := range scores {
		if best < 0 || v >= scores[best] {
			best = i
		}
	}
	return best
}
