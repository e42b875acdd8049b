// Package probability builds the static route-choice matrices that spread
// arriving traffic over the network. A Model is derived from the topology
// and the per-road interest weights and never changes afterwards; a reset
// builds a new one.
package probability

import (
	"errors"
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/talgya/traffic-lights/internal/network"
)

// ErrWeights reports an interest-weight vector the model cannot use.
var ErrWeights = errors.New("invalid interest weights")

// Model holds the turn probabilities.
//
// Base[i][j] is the chance a vehicle entering on external road i leaves on
// external road j, or passes through internal road j on its way.
// Depth0[k][j] and Depth1[k][j] are the chances a vehicle on internal road
// 8+k turns onto road j, conditioned on having entered one or two crossings
// back respectively.
type Model struct {
	Base   [network.ExternalRoads][network.TotalRoads]float64 `json:"base"`
	Depth0 [network.InternalRoads][network.TotalRoads]float64 `json:"depth0"`
	Depth1 [network.InternalRoads][network.TotalRoads]float64 `json:"depth1"`
}

// ValidateWeights checks there is one finite, non-negative weight per
// external road.
func ValidateWeights(weights []float64) error {
	if len(weights) != network.ExternalRoads {
		return fmt.Errorf("%w: got %d, want %d", ErrWeights, len(weights), network.ExternalRoads)
	}
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: road %d has weight %v", ErrWeights, i, w)
		}
	}
	return nil
}

// Build derives every matrix from the network layout and the interest
// weights of the external roads.
func Build(net *network.Network, weights []float64) (*Model, error) {
	if err := ValidateWeights(weights); err != nil {
		return nil, err
	}

	b := &builder{net: net, m: &Model{}}
	b.base(weights)

	for i := 0; i < network.ExternalRoads; i++ {
		for j := network.ExternalRoads; j < network.TotalRoads; j++ {
			v, err := b.assign(i, j, false, func(e path) float64 {
				row := b.m.Base[i][:]
				return b.rowSum(row, e.after) + 0.5*b.rowSum(row, e.nextAfter)
			})
			if err != nil {
				return nil, fmt.Errorf("base %d→%d: %w", i, j, err)
			}
			b.m.Base[i][j] = v
		}
	}

	for k := 0; k < network.InternalRoads; k++ {
		in := k + network.ExternalRoads
		for j := 0; j < network.TotalRoads; j++ {
			external := j < network.ExternalRoads

			d0, err := b.assign(in, j, false, func(e path) float64 {
				if external {
					return ratio(b.column(e.before, j), b.column(e.before, in))
				}
				bound := lo.SumBy(b.net.Externals(e.after), func(x int) float64 {
					return b.column(e.before, x)
				})
				return ratio(0.5*bound, b.column(e.before, in))
			})
			if err != nil {
				return nil, fmt.Errorf("depth0 %d→%d: %w", in, j, err)
			}
			b.m.Depth0[k][j] = d0

			// Two crossings back, only exits at the shared crossing are
			// modelled.
			if !external {
				continue
			}
			d1, err := b.assign(in, j, true, func(e path) float64 {
				bound := lo.SumBy(b.net.Externals(e.at), func(x int) float64 {
					return b.column(e.before, x)
				})
				return ratio(b.column(e.before, j), bound)
			})
			if err != nil {
				return nil, fmt.Errorf("depth1 %d→%d: %w", in, j, err)
			}
			b.m.Depth1[k][j] = d1
		}
	}

	return b.m, nil
}

type builder struct {
	net *network.Network
	m   *Model
}

// base fills the external→external block: each destination's share of the
// total interest, excluding the origin itself.
func (b *builder) base(weights []float64) {
	total := lo.Sum(weights)
	for i := 0; i < network.ExternalRoads; i++ {
		rest := total - weights[i]
		for j := 0; j < network.ExternalRoads; j++ {
			if i == j || rest == 0 {
				continue
			}
			b.m.Base[i][j] = weights[j] / rest
		}
	}
}

// path names the crossings around a movement from one road onto another.
// Absent crossings are network.NoIntersection.
type path struct {
	at        int // Crossing shared by both roads
	before    int // Where the incoming road started
	after     int // Where the outgoing road leads
	nextAfter int // One internal hop past after, away from at
}

// assign evaluates combine for the movement from road in onto road out.
// Roads that share no crossing, or a road onto itself, get 0. With
// maxDistance the before crossing is pushed one internal hop further back.
func (b *builder) assign(in, out int, maxDistance bool, combine func(path) float64) (float64, error) {
	at, ok := b.net.Shared(in, out)
	if !ok || in == out {
		return 0, nil
	}

	p := path{at: at, before: network.NoIntersection, after: network.NoIntersection, nextAfter: network.NoIntersection}

	var err error
	if !b.net.Road(out).External() {
		if p.after, err = b.net.OtherEnd(out, at); err != nil {
			return 0, err
		}
	}
	if !b.net.Road(in).External() {
		if p.before, err = b.net.OtherEnd(in, at); err != nil {
			return 0, err
		}
		if maxDistance {
			if p.before, err = b.hop(p.before, in); err != nil {
				return 0, err
			}
		}
	}
	if p.after != network.NoIntersection {
		next, err := b.internalAwayFrom(p.after, at)
		if err != nil {
			return 0, err
		}
		if p.nextAfter, err = b.net.OtherEnd(next, p.after); err != nil {
			return 0, err
		}
	}

	return combine(p), nil
}

// hop crosses from c along its internal road that is not except.
func (b *builder) hop(c, except int) (int, error) {
	road, err := b.net.OtherInternal(c, except)
	if err != nil {
		return 0, err
	}
	return b.net.OtherEnd(road, c)
}

// internalAwayFrom returns the internal road at c that does not touch from.
func (b *builder) internalAwayFrom(c, from int) (int, error) {
	for _, id := range b.net.Internals(c) {
		if !b.net.Road(id).Touches(from) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("no internal road at %d leads away from %d: %w", c, from, network.ErrTopology)
}

// rowSum adds row entries over the external roads of crossing c.
func (b *builder) rowSum(row []float64, c int) float64 {
	if c == network.NoIntersection {
		return 0
	}
	return lo.SumBy(b.net.Externals(c), func(id int) float64 { return row[id] })
}

// column adds Base[x][col] over the external roads x of crossing c.
func (b *builder) column(c, col int) float64 {
	if c == network.NoIntersection {
		return 0
	}
	return lo.SumBy(b.net.Externals(c), func(id int) float64 { return b.m.Base[id][col] })
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
