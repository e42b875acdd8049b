package engine

import (
	"fmt"

	"github.com/talgya/traffic-lights/internal/network"
	"github.com/talgya/traffic-lights/internal/signal"
)

// greenAt returns the green flags for vehicles arriving at crossing c from
// side s under c's active phase. No phase means everything is red.
func greenAt(net *network.Network, c int, s network.Side) network.LaneSet {
	p, ok := signal.Lookup(net.Intersection(c).Phase)
	if !ok {
		return network.LaneSet{}
	}
	return p.Lanes(s)
}

// updateExternal moves traffic on a boundary road. Arrivals are split over
// the inbound lanes by destination and green lanes drain. On the outbound
// side a third of the entering vehicles resolve each tick and the entering
// count is replaced by what the crossing let through toward this road.
func (s *Simulation) updateExternal(before *network.Network, id, arrivals int) error {
	old := before.Road(id)
	live := s.net.Road(id)

	green := greenAt(before, old.B, old.SideB)
	for _, t := range network.Turns {
		target, err := before.RoadInDirection(id, t, true)
		if err != nil {
			return err
		}
		lane := old.AtoB.Finish.Get(t)
		live.AtoB.Finish.Set(t, lane+float64(arrivals)*s.model.Base[id][target]-lane*green.Get(t))
	}

	third := old.BtoA.Start / 3
	live.BtoA.Finish = network.LaneSet{
		Left:     old.BtoA.Finish.Left + third,
		Straight: old.BtoA.Finish.Straight + third,
		Right:    old.BtoA.Finish.Right + third,
	}

	var entering float64
	for _, rid := range before.Intersection(old.B).Roads {
		if rid == id {
			continue
		}
		r := before.Road(rid)
		turn, err := before.TurnBetween(rid, id)
		if err != nil {
			return err
		}
		side, err := r.SideAt(old.B)
		if err != nil {
			return err
		}
		entering += greenAt(before, old.B, side).Get(turn) * r.Arriving(old.B).Finish.Get(turn)
	}
	live.BtoA.Start = entering
	return nil
}

// updateInternal moves traffic on a connecting road, once per endpoint.
// Vehicles resolved two ticks ago are spread over the lanes by the depth
// matrices; lanes toward the boundary drain on green, lanes toward another
// internal road lose what that road recorded taking from them.
func (s *Simulation) updateInternal(before *network.Network, id int, last, prev *Snapshot) error {
	r := before.Road(id)
	k := r.Index()

	for _, c := range r.Ends() {
		useB := c == r.B
		side, err := r.SideAt(c)
		if err != nil {
			return err
		}
		green := greenAt(before, c, side)
		lanes := r.Arriving(c).Finish

		var curr, older float64
		if last != nil {
			m := last[k]
			curr, older = m.BtoACurr, m.BtoAPrev
			if useB {
				curr, older = m.AtoBCurr, m.AtoBPrev
			}
		}

		next := lanes
		for _, t := range network.Turns {
			target, err := before.RoadInDirection(id, t, useB)
			if err != nil {
				return err
			}
			tr := before.Road(target)

			var out float64
			switch {
			case tr.External():
				out = lanes.Get(t) * green.Get(t)
			case prev != nil:
				m := prev[tr.Index()]
				out = m.BtoAPrev
				if tr.A == c {
					out = m.AtoBPrev
				}
			}
			next.Set(t, lanes.Get(t)+curr*s.model.Depth0[k][target]+older*s.model.Depth1[k][target]-out)
		}

		live := s.net.Road(id)
		live.Arriving(c).Finish = next

		var start float64
		if prev != nil {
			m := prev[k]
			start = m.AtoBCurr + m.AtoBPrev
			if useB {
				start = m.BtoACurr + m.BtoAPrev
			}
		}
		live.Departing(c).Start = start
	}
	return nil
}

// snapshot records, for every internal road and endpoint, the vehicles the
// current phases let onto it: Curr from the crossing's external approaches,
// Prev from the crossing's other internal road.
func snapshot(net *network.Network) (Snapshot, error) {
	var snap Snapshot
	for id := network.ExternalRoads; id < network.TotalRoads; id++ {
		r := net.Road(id)
		k := r.Index()
		for _, c := range r.Ends() {
			var curr float64
			for _, ext := range net.Externals(c) {
				e := net.Road(ext)
				turn, err := net.TurnBetween(ext, id)
				if err != nil {
					return snap, err
				}
				curr += e.AtoB.Finish.Get(turn) * greenAt(net, c, e.SideB).Get(turn)
			}

			other, err := net.OtherInternal(c, id)
			if err != nil {
				return snap, err
			}
			o := net.Road(other)
			turn, err := net.TurnBetween(other, id)
			if err != nil {
				return snap, err
			}
			side, err := o.SideAt(c)
			if err != nil {
				return snap, err
			}
			prev := o.Arriving(c).Finish.Get(turn) * greenAt(net, c, side).Get(turn)

			if c == r.A {
				snap[k].AtoBCurr, snap[k].AtoBPrev = curr, prev
			} else {
				snap[k].BtoACurr, snap[k].BtoAPrev = curr, prev
			}
		}
	}
	return snap, nil
}

// advance runs one full tick of the recurrence on the live network and
// returns every intersection's phase scores.
func (s *Simulation) advance(arrivals []int) ([network.Intersections][]float64, error) {
	var scores [network.Intersections][]float64

	last, prev := s.hist.rotate()
	before := s.net.Clone()

	for id := 0; id < network.ExternalRoads; id++ {
		if err := s.updateExternal(before, id, arrivals[id]); err != nil {
			return scores, fmt.Errorf("external road %d: %w", id, err)
		}
	}
	for id := network.ExternalRoads; id < network.TotalRoads; id++ {
		if err := s.updateInternal(before, id, last, prev); err != nil {
			return scores, fmt.Errorf("internal road %d: %w", id, err)
		}
	}

	coefs, err := loadingCoefficients(s.net)
	if err != nil {
		return scores, fmt.Errorf("loading coefficients: %w", err)
	}
	layers := s.nextPedestrian()

	for c := range s.net.Intersections {
		sc, err := scorePhases(s.net, c, coefs, layers[c])
		if err != nil {
			return scores, fmt.Errorf("score intersection %d: %w", c, err)
		}
		scores[c] = sc
	}
	for c := range s.net.Intersections {
		phase := selectPhase(scores[c])
		if s.cfg.PinnedPhase >= 0 {
			phase = s.cfg.PinnedPhase
		}
		s.net.Intersection(c).Phase = phase
	}

	snap, err := snapshot(s.net)
	if err != nil {
		return scores, fmt.Errorf("history snapshot: %w", err)
	}
	s.hist.push(snap)
	s.pedestrian = layers
	s.tick++
	return scores, nil
}
