// Package signal holds the fixed catalog of signal phases and the
// pedestrian-priority layers used when scoring them.
package signal

import "github.com/talgya/traffic-lights/internal/network"

// Phase types. The type selects a throughput multiplier when scoring.
const (
	TypeTurning    = 0 // Straight plus turns from one or two approaches
	TypeProtected  = 1
	TypeStraight   = 2 // Two non-conflicting movements
	TypePedestrian = 4 // All movements green: cars held, pedestrians walk
)

// Phase is one catalog entry. Green[from][to] is 1 when the movement from
// side from to side to is allowed.
type Phase struct {
	ID    int                `json:"id"`
	Type  int                `json:"type"`
	Green [4][4]float64      `json:"-"`
	Sides [4]network.LaneSet `json:"sides"`
}

// Lanes returns the green flags for vehicles arriving from side s,
// keyed by the movement they make.
func (p Phase) Lanes(s network.Side) network.LaneSet {
	return p.Sides[s]
}

type move struct {
	from, to network.Side
}

const (
	left   = network.SideLeft
	top    = network.SideTop
	right  = network.SideRight
	bottom = network.SideBottom
)

func newPhase(id, typ int, moves ...move) Phase {
	p := Phase{ID: id, Type: typ}
	for _, m := range moves {
		p.Green[m.from][m.to] = 1
	}
	for _, s := range network.Sides {
		for _, t := range network.Turns {
			p.Sides[s].Set(t, p.Green[s][network.Exit(s, t)])
		}
	}
	return p
}

func allMoves() []move {
	var moves []move
	for _, from := range network.Sides {
		for _, to := range network.Sides {
			if from != to {
				moves = append(moves, move{from, to})
			}
		}
	}
	return moves
}

// Catalog lists every phase an intersection can run, indexed by ID.
var Catalog = []Phase{
	newPhase(0, TypeStraight, move{top, bottom}, move{bottom, top}),
	newPhase(1, TypeTurning, move{top, left}, move{top, bottom}, move{bottom, top}, move{bottom, right}),
	newPhase(2, TypeStraight, move{left, right}, move{right, left}),
	newPhase(3, TypeTurning, move{left, right}, move{left, bottom}, move{right, top}, move{right, left}),
	newPhase(4, TypeTurning, move{left, bottom}, move{bottom, left}, move{bottom, top}, move{bottom, right}),
	newPhase(5, TypeTurning, move{top, left}, move{left, top}, move{left, right}, move{left, bottom}),
	newPhase(6, TypeTurning, move{top, left}, move{top, bottom}, move{top, right}, move{right, top}),
	newPhase(7, TypeTurning, move{right, top}, move{right, left}, move{right, bottom}, move{bottom, right}),
	newPhase(8, TypeStraight, move{left, bottom}, move{bottom, left}),
	newPhase(9, TypeStraight, move{top, left}, move{left, top}),
	newPhase(10, TypeStraight, move{top, right}, move{right, top}),
	newPhase(11, TypeStraight, move{right, bottom}, move{bottom, right}),
	newPhase(AllGreen, TypePedestrian, allMoves()...),
}

// AllGreen is the index of the phase with every movement green.
const AllGreen = 12

// Lookup returns the phase at idx. Index -1 (no phase yet) and anything
// out of range report false.
func Lookup(idx int) (Phase, bool) {
	if idx < 0 || idx >= len(Catalog) {
		return Phase{}, false
	}
	return Catalog[idx], true
}

// TypeMultiplier scales a phase's score by its type.
func TypeMultiplier(typ int) float64 {
	switch typ {
	case TypePedestrian:
		return 0.1
	case TypeStraight:
		return 1
	case TypeProtected:
		return 0.85
	case TypeTurning:
		return 0.75
	}
	return 0
}
