package signal

import (
	"math"
	"testing"

	"github.com/talgya/traffic-lights/internal/network"
)

func TestCatalogShape(t *testing.T) {
	if len(Catalog) != 13 {
		t.Fatalf("catalog has %d phases, want 13", len(Catalog))
	}
	for i, p := range Catalog {
		if p.ID != i {
			t.Errorf("phase at %d has ID %d", i, p.ID)
		}
	}

	all := Catalog[AllGreen]
	if all.Type != TypePedestrian {
		t.Errorf("all-green phase type = %d, want %d", all.Type, TypePedestrian)
	}
	for _, s := range network.Sides {
		if got := all.Lanes(s); got != network.Uniform(1) {
			t.Errorf("all-green lanes on %s = %+v", s, got)
		}
	}
}

func TestPhaseLanesFollowTurnAlgebra(t *testing.T) {
	// Phase 0 lets top and bottom go straight only.
	p := Catalog[0]
	if got := p.Lanes(network.SideTop); got != (network.LaneSet{Straight: 1}) {
		t.Errorf("phase 0 top = %+v", got)
	}
	if got := p.Lanes(network.SideLeft); got != (network.LaneSet{}) {
		t.Errorf("phase 0 left = %+v", got)
	}

	// Phase 1: top may turn onto the left road, which is a right turn.
	p = Catalog[1]
	if got := p.Lanes(network.SideTop); got != (network.LaneSet{Straight: 1, Right: 1}) {
		t.Errorf("phase 1 top = %+v", got)
	}
	if got := p.Lanes(network.SideBottom); got != (network.LaneSet{Straight: 1, Right: 1}) {
		t.Errorf("phase 1 bottom = %+v", got)
	}

	// Phase 5: everything from the left plus top onto left.
	p = Catalog[5]
	if got := p.Lanes(network.SideLeft); got != network.Uniform(1) {
		t.Errorf("phase 5 left = %+v", got)
	}
	if got := p.Lanes(network.SideTop); got != (network.LaneSet{Right: 1}) {
		t.Errorf("phase 5 top = %+v", got)
	}
}

func TestTypeMultiplier(t *testing.T) {
	cases := map[int]float64{4: 0.1, 2: 1, 1: 0.85, 0: 0.75, 3: 0, -1: 0, 9: 0}
	for typ, want := range cases {
		if got := TypeMultiplier(typ); got != want {
			t.Errorf("TypeMultiplier(%d) = %v, want %v", typ, got, want)
		}
	}
}

func TestLookup(t *testing.T) {
	if _, ok := Lookup(-1); ok {
		t.Error("Lookup(-1) should report no phase")
	}
	if _, ok := Lookup(len(Catalog)); ok {
		t.Error("Lookup past the end should report no phase")
	}
	if p, ok := Lookup(3); !ok || p.ID != 3 {
		t.Errorf("Lookup(3) = %+v, %v", p, ok)
	}
}

func TestNextPedestrianFavoursRedMovements(t *testing.T) {
	active := Catalog[0]
	first := NextPedestrian(nil, active)

	if got := first.Lanes(network.SideTop).Straight; got != 1 {
		t.Errorf("green slot multiplier = %v, want 1", got)
	}
	if got := first.Lanes(network.SideLeft).Left; math.Abs(got-1.01) > 1e-12 {
		t.Errorf("red slot multiplier after one tick = %v, want 1.01", got)
	}

	second := NextPedestrian(&first, active)
	if got := second.Lanes(network.SideLeft).Left; got <= first.Lanes(network.SideLeft).Left {
		t.Errorf("red slot should keep growing: %v then %v", first.Lanes(network.SideLeft).Left, got)
	}

	// Switching the slot to green resets it.
	third := NextPedestrian(&second, Catalog[5])
	if got := third.Lanes(network.SideLeft).Left; got != 1 {
		t.Errorf("slot turned green = %v, want 1", got)
	}

	var none *Pedestrian
	if got := none.Lanes(network.SideRight); got != network.Uniform(1) {
		t.Errorf("nil layer lanes = %+v", got)
	}
}
