package probability

import (
	"errors"
	"math"
	"testing"

	"github.com/talgya/traffic-lights/internal/network"
)

const eps = 1e-9

func equalWeights() []float64 {
	w := make([]float64, network.ExternalRoads)
	for i := range w {
		w[i] = 5
	}
	return w
}

func build(t *testing.T, weights []float64) (*network.Network, *Model) {
	t.Helper()
	n, err := network.New()
	if err != nil {
		t.Fatalf("network.New: %v", err)
	}
	m, err := Build(n, weights)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return n, m
}

func TestBaseRowsSumToOne(t *testing.T) {
	for _, weights := range [][]float64{
		equalWeights(),
		{1, 2, 3, 4, 5, 6, 7, 8},
		{0, 0, 9, 1, 0, 3, 0, 2},
	} {
		_, m := build(t, weights)
		for i := 0; i < network.ExternalRoads; i++ {
			if m.Base[i][i] != 0 {
				t.Errorf("weights %v: base[%d][%d] = %v, want 0", weights, i, i, m.Base[i][i])
			}
			var sum float64
			for j := 0; j < network.ExternalRoads; j++ {
				if m.Base[i][j] < 0 {
					t.Errorf("weights %v: base[%d][%d] = %v is negative", weights, i, j, m.Base[i][j])
				}
				sum += m.Base[i][j]
			}
			if math.Abs(sum-1) > eps {
				t.Errorf("weights %v: base row %d sums to %v over external roads", weights, i, sum)
			}
		}
	}
}

func TestEveryCellIsAProbability(t *testing.T) {
	for _, weights := range [][]float64{
		equalWeights(),
		{1, 2, 3, 4, 5, 6, 7, 8},
		{50, 0, 0, 0, 0, 0, 0, 0},
		{0, 0, 0, 0, 0, 0, 0, 0},
	} {
		_, m := build(t, weights)
		check := func(name string, row, col int, v float64) {
			if v < -eps || v > 1+eps || math.IsNaN(v) {
				t.Errorf("weights %v: %s[%d][%d] = %v out of [0,1]", weights, name, row, col, v)
			}
		}
		for i := range m.Base {
			for j, v := range m.Base[i] {
				check("base", i, j, v)
			}
		}
		for k := range m.Depth0 {
			for j := range m.Depth0[k] {
				check("depth0", k, j, m.Depth0[k][j])
				check("depth1", k, j, m.Depth1[k][j])
			}
		}
	}
}

func TestBaseThroughInternalRoads(t *testing.T) {
	_, m := build(t, equalWeights())

	// From road 0 every other exit weighs 1/7. Road 8 leads to crossing 1
	// (roads 1 and 5) and half of crossing 2 (roads 2 and 6).
	want := 2.0/7 + 0.5*2.0/7
	if got := m.Base[0][8]; math.Abs(got-want) > eps {
		t.Errorf("base[0][8] = %v, want %v", got, want)
	}
	// Road 9 does not touch crossing 0.
	if got := m.Base[0][9]; got != 0 {
		t.Errorf("base[0][9] = %v, want 0", got)
	}
}

func TestDepthRowsSplitEachEndpoint(t *testing.T) {
	n, m := build(t, equalWeights())

	for k := 0; k < network.InternalRoads; k++ {
		in := k + network.ExternalRoads
		for _, useB := range []bool{false, true} {
			var d0, d1 float64
			for _, turn := range network.Turns {
				target, err := n.RoadInDirection(in, turn, useB)
				if err != nil {
					t.Fatalf("RoadInDirection(%d, %s, %v): %v", in, turn, useB, err)
				}
				d0 += m.Depth0[k][target]
				d1 += m.Depth1[k][target]
				if !n.Road(target).External() && m.Depth1[k][target] != 0 {
					t.Errorf("depth1[%d][%d] = %v, internal targets are not modelled", k, target, m.Depth1[k][target])
				}
			}
			if math.Abs(d0-1) > eps {
				t.Errorf("depth0 road %d (useB=%v) sums to %v", in, useB, d0)
			}
			if math.Abs(d1-1) > eps {
				t.Errorf("depth1 road %d (useB=%v) sums to %v", in, useB, d1)
			}
		}
	}
}

func TestSingleDestinationWeight(t *testing.T) {
	weights := make([]float64, network.ExternalRoads)
	weights[0] = 50
	_, m := build(t, weights)

	// Everyone heads for road 0; road 0 itself has nowhere to go.
	for j := range m.Base[0] {
		if m.Base[0][j] != 0 {
			t.Errorf("base[0][%d] = %v, want 0", j, m.Base[0][j])
		}
	}
	for i := 1; i < network.ExternalRoads; i++ {
		if m.Base[i][0] != 1 {
			t.Errorf("base[%d][0] = %v, want 1", i, m.Base[i][0])
		}
	}
}

func TestValidateWeights(t *testing.T) {
	cases := [][]float64{
		nil,
		{1, 2, 3},
		{1, 1, 1, 1, 1, 1, 1, -1},
		{1, 1, 1, 1, 1, 1, 1, math.NaN()},
		{1, 1, 1, 1, 1, 1, 1, math.Inf(1)},
	}
	for _, w := range cases {
		if err := ValidateWeights(w); !errors.Is(err, ErrWeights) {
			t.Errorf("ValidateWeights(%v) = %v, want ErrWeights", w, err)
		}
	}
	if err := ValidateWeights(equalWeights()); err != nil {
		t.Errorf("ValidateWeights(equal) = %v", err)
	}

	n, err := network.New()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Build(n, []float64{1}); !errors.Is(err, ErrWeights) {
		t.Errorf("Build with short weights = %v, want ErrWeights", err)
	}
}
