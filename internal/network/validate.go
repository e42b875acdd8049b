package network

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// ErrTopology marks a road or intersection that cannot be found where the
// network layout requires one. It always indicates a construction bug.
var ErrTopology = errors.New("topology inconsistency")

func topologyErrorf(format string, args ...any) error {
	return errors.Wrapf(ErrTopology, format, args...)
}

// Validate checks the invariants the simulation relies on: each
// intersection has exactly one road per side, internal roads run straight
// between opposite sides, and every intersection is reachable from every
// other through internal roads.
func (n *Network) Validate() error {
	for c := range n.Intersections {
		var seen [4]bool
		for _, id := range n.Intersections[c].Roads {
			side, err := n.Road(id).SideAt(c)
			if err != nil {
				return err
			}
			if seen[side] {
				return topologyErrorf("intersection %d has two roads on its %s side", c, side)
			}
			seen[side] = true
		}
		for _, s := range Sides {
			if !seen[s] {
				return topologyErrorf("intersection %d has no road on its %s side", c, s)
			}
		}
	}

	g := simple.NewUndirectedGraph()
	for c := range n.Intersections {
		g.AddNode(simple.Node(c))
	}
	for i := ExternalRoads; i < TotalRoads; i++ {
		r := n.Road(i)
		if r.External() {
			return topologyErrorf("road %d is in the internal range but has no A endpoint", i)
		}
		if r.SideA != r.SideB.Opposite() {
			return topologyErrorf("internal road %d sides %s/%s are not opposite", i, r.SideA, r.SideB)
		}
		if r.A == r.B {
			return topologyErrorf("internal road %d loops on intersection %d", i, r.A)
		}
		g.SetEdge(g.NewEdge(simple.Node(r.A), simple.Node(r.B)))
	}

	if parts := topo.ConnectedComponents(g); len(parts) != 1 {
		return topologyErrorf("network splits into %d disconnected parts", len(parts))
	}
	return nil
}
