package network

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
)

// Network dimensions. The layout is fixed:
//
//	        4                 5
//	     ________         ________
//	  0 |   0    |___8___|   1    | 1
//	    |________|       |________|
//	      |  11 |          |  9  |
//	     _|_____|_        _|_____|_
//	  3 |   3    |___10__|   2    | 2
//	    |________|       |________|
//	        7                 6
//
// External roads carry ids 0–7, internal roads 8–11, intersections 0–3.
const (
	ExternalRoads = 8
	InternalRoads = 4
	TotalRoads    = ExternalRoads + InternalRoads
	Intersections = 4

	// NoIntersection marks the missing A endpoint of an external road.
	NoIntersection = -1
)

// Corner is an intersection's place in the 2×2 grid.
type Corner uint8

const (
	CornerTopLeft Corner = iota
	CornerTopRight
	CornerBottomRight
	CornerBottomLeft
)

var cornerNames = [4]string{"top-left", "top-right", "bottom-right", "bottom-left"}

func (c Corner) String() string {
	if int(c) < len(cornerNames) {
		return cornerNames[c]
	}
	return fmt.Sprintf("corner(%d)", uint8(c))
}

func (c Corner) IsLeft() bool { return c == CornerTopLeft || c == CornerBottomLeft }
func (c Corner) IsTop() bool  { return c == CornerTopLeft || c == CornerTopRight }

// Intersection is a signal-controlled crossing.
type Intersection struct {
	ID     int    `json:"id"`
	Corner Corner `json:"corner"`
	Roads  []int  `json:"roads"`
	Phase  int    `json:"phase"` // Active catalog phase, -1 until first selection
}

// Road joins intersection A to intersection B. External roads have no A;
// their AtoB flow is inbound traffic and BtoA is traffic leaving the network.
type Road struct {
	ID    int  `json:"id"`
	A     int  `json:"a"`
	B     int  `json:"b"`
	SideA Side `json:"side_a"`
	SideB Side `json:"side_b"`
	AtoB  Flow `json:"a2b"`
	BtoA  Flow `json:"b2a"`
}

// External reports whether the road is a boundary source/sink.
func (r *Road) External() bool {
	return r.A == NoIntersection
}

// Index returns the road's position among internal roads.
func (r *Road) Index() int {
	return r.ID - ExternalRoads
}

// Touches reports whether c is one of the road's endpoints.
func (r *Road) Touches(c int) bool {
	return c != NoIntersection && (r.A == c || r.B == c)
}

// Ends returns the endpoints present, A first.
func (r *Road) Ends() []int {
	if r.External() {
		return []int{r.B}
	}
	return []int{r.A, r.B}
}

// SideAt returns the side of intersection c the road occupies.
func (r *Road) SideAt(c int) (Side, error) {
	switch {
	case c == NoIntersection:
	case r.B == c:
		return r.SideB, nil
	case r.A == c:
		return r.SideA, nil
	}
	return 0, topologyErrorf("road %d does not touch intersection %d", r.ID, c)
}

// Arriving returns the flow travelling toward intersection c, or nil when c
// is not an endpoint.
func (r *Road) Arriving(c int) *Flow {
	switch {
	case c == NoIntersection:
		return nil
	case r.B == c:
		return &r.AtoB
	case r.A == c:
		return &r.BtoA
	}
	return nil
}

// Departing returns the flow travelling away from intersection c, or nil
// when c is not an endpoint.
func (r *Road) Departing(c int) *Flow {
	switch {
	case c == NoIntersection:
		return nil
	case r.B == c:
		return &r.BtoA
	case r.A == c:
		return &r.AtoB
	}
	return nil
}

// Network is the arena of roads and intersections, addressed by id.
type Network struct {
	Roads         [TotalRoads]Road            `json:"roads"`
	Intersections [Intersections]Intersection `json:"intersections"`
}

// New builds the fixed four-intersection network and validates it.
func New() (*Network, error) {
	n := &Network{}
	for i := range n.Intersections {
		n.Intersections[i] = Intersection{ID: i, Corner: Corner(i), Phase: -1}
	}

	for i := 0; i < ExternalRoads; i++ {
		n.addRoad(i, NoIntersection, i%Intersections, i < Intersections)
	}
	for i := ExternalRoads; i < TotalRoads; i++ {
		k := i - ExternalRoads
		n.addRoad(i, k%Intersections, (k+1)%Intersections, i%2 == 0)
	}

	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// addRoad places a road and derives its sides from the corner of B. An
// external road sits on the outer side of B; an internal road sits on the
// side of B facing A.
func (n *Network) addRoad(id, a, b int, horizontal bool) {
	corner := n.Intersections[b].Corner
	external := a == NoIntersection

	var sideB Side
	switch {
	case horizontal && external == corner.IsLeft():
		sideB = SideLeft
	case horizontal:
		sideB = SideRight
	case external == corner.IsTop():
		sideB = SideTop
	default:
		sideB = SideBottom
	}

	n.Roads[id] = Road{ID: id, A: a, B: b, SideA: sideB.Opposite(), SideB: sideB}
	if !external {
		n.Intersections[a].Roads = append(n.Intersections[a].Roads, id)
	}
	n.Intersections[b].Roads = append(n.Intersections[b].Roads, id)
}

// Road returns the road with the given id.
func (n *Network) Road(id int) *Road {
	return &n.Roads[id]
}

// Intersection returns the intersection with the given id.
func (n *Network) Intersection(id int) *Intersection {
	return &n.Intersections[id]
}

// Clone copies all traffic values. Road lists are shared since the
// topology never changes after New.
func (n *Network) Clone() *Network {
	c := *n
	for i := range c.Intersections {
		c.Intersections[i].Roads = slices.Clone(n.Intersections[i].Roads)
	}
	return &c
}

// OtherEnd returns the endpoint of road opposite known.
func (n *Network) OtherEnd(road, known int) (int, error) {
	r := n.Road(road)
	switch {
	case r.External():
		return NoIntersection, topologyErrorf("external road %d has no crossing opposite %d", road, known)
	case r.A == known:
		return r.B, nil
	case r.B == known:
		return r.A, nil
	}
	return NoIntersection, topologyErrorf("road %d does not touch intersection %d", road, known)
}

// RoadAt returns the road occupying side s of intersection c.
func (n *Network) RoadAt(c int, s Side) (int, error) {
	for _, id := range n.Intersections[c].Roads {
		if side, err := n.Road(id).SideAt(c); err == nil && side == s {
			return id, nil
		}
	}
	return 0, topologyErrorf("intersection %d has no road on its %s side", c, s)
}

// RoadInDirection returns the road reached by making turn t at the B
// endpoint of road (or A when useB is false).
func (n *Network) RoadInDirection(road int, t Turn, useB bool) (int, error) {
	r := n.Road(road)
	at, side := r.B, r.SideB
	if !useB {
		if r.External() {
			return 0, topologyErrorf("external road %d has no A endpoint", road)
		}
		at, side = r.A, r.SideA
	}
	next, err := n.RoadAt(at, Exit(side, t))
	if err != nil {
		return 0, fmt.Errorf("turn %s from road %d: %w", t, road, err)
	}
	return next, nil
}

// Shared returns the first endpoint of road a (A before B) that road b also
// touches.
func (n *Network) Shared(a, b int) (int, bool) {
	rb := n.Road(b)
	for _, c := range n.Road(a).Ends() {
		if rb.Touches(c) {
			return c, true
		}
	}
	return NoIntersection, false
}

// TurnBetween returns the movement from road from onto road to at their
// shared intersection.
func (n *Network) TurnBetween(from, to int) (Turn, error) {
	c, ok := n.Shared(from, to)
	if !ok || from == to {
		return 0, topologyErrorf("roads %d and %d share no intersection", from, to)
	}
	in, err := n.Road(from).SideAt(c)
	if err != nil {
		return 0, err
	}
	out, err := n.Road(to).SideAt(c)
	if err != nil {
		return 0, err
	}
	return TurnDirection(in, out)
}

// Externals returns the external roads at intersection c.
func (n *Network) Externals(c int) []int {
	return lo.Filter(n.Intersections[c].Roads, func(id int, _ int) bool {
		return n.Road(id).External()
	})
}

// Internals returns the internal roads at intersection c.
func (n *Network) Internals(c int) []int {
	return lo.Filter(n.Intersections[c].Roads, func(id int, _ int) bool {
		return !n.Road(id).External()
	})
}

// OtherInternal returns the internal road at c that is not except.
func (n *Network) OtherInternal(c, except int) (int, error) {
	for _, id := range n.Internals(c) {
		if id != except {
			return id, nil
		}
	}
	return 0, topologyErrorf("intersection %d has no internal road besides %d", c, except)
}

// Load sums every lane arriving at intersection c.
func (n *Network) Load(c int) float64 {
	return lo.SumBy(n.Intersections[c].Roads, func(id int) float64 {
		return n.Road(id).Arriving(c).Finish.Sum()
	})
}

// InFlight counts vehicles still inside the modelled network: inbound
// approach lanes plus both directions of every internal road.
func (n *Network) InFlight() float64 {
	var total float64
	for i := range n.Roads {
		r := &n.Roads[i]
		if r.External() {
			total += r.AtoB.Total()
			continue
		}
		total += r.AtoB.Total() + r.BtoA.Total()
	}
	return total
}

// Departed sums the outbound flow of external roads. Outbound finish lanes
// only ever accumulate, so this is a running count of vehicles that left.
func (n *Network) Departed() float64 {
	var total float64
	for i := 0; i < ExternalRoads; i++ {
		total += n.Roads[i].BtoA.Total()
	}
	return total
}
