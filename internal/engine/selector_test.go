package engine

import (
	"testing"

	"github.com/talgya/traffic-lights/internal/network"
	"github.com/talgya/traffic-lights/internal/signal"
)

func TestSelectPhasePrefersHighestIndexOnTie(t *testing.T) {
	cases := []struct {
		scores []float64
		want   int
	}{
		{[]float64{1, 3, 3, 2}, 2},
		{[]float64{0, 0, 0}, 2},
		{[]float64{5, 1, 1}, 0},
		{[]float64{1, 2, 3}, 2},
	}
	for _, c := range cases {
		if got := selectPhase(c.scores); got != c.want {
			t.Errorf("selectPhase(%v) = %d, want %d", c.scores, got, c.want)
		}
	}
}

func TestTiedPhasesPickHigherIndex(t *testing.T) {
	n, err := network.New()
	if err != nil {
		t.Fatal(err)
	}
	// Equal straight-through traffic from the left and the top of
	// intersection 0: phases 0 and 2 score the same.
	n.Road(0).AtoB.Finish.Straight = 10
	n.Road(4).AtoB.Finish.Straight = 10

	coefs, err := loadingCoefficients(n)
	if err != nil {
		t.Fatal(err)
	}
	scores, err := scorePhases(n, 0, coefs, nil)
	if err != nil {
		t.Fatal(err)
	}
	if scores[0] != scores[2] {
		t.Fatalf("phases 0 and 2 should tie: %v vs %v", scores[0], scores[2])
	}
	if got := selectPhase(scores); got != 2 {
		t.Errorf("selected phase %d, want 2 (scores %v)", got, scores)
	}
}

func TestLoadingCoefficients(t *testing.T) {
	n, err := network.New()
	if err != nil {
		t.Fatal(err)
	}

	// Nothing loaded: internal targets are shut, external ones open.
	coefs, err := loadingCoefficients(n)
	if err != nil {
		t.Fatal(err)
	}
	if got := coefs[0][0]; got != (network.LaneSet{Left: 1}) {
		t.Errorf("empty network road 0 coefs = %+v", got)
	}

	// Intersection 0 carries 10, intersection 1 carries 20: road 0's
	// straight lane feeds road 8 toward the busier crossing.
	n.Road(0).AtoB.Finish.Left = 10
	n.Road(1).AtoB.Finish.Left = 20
	coefs, err = loadingCoefficients(n)
	if err != nil {
		t.Fatal(err)
	}
	want := 8.0 / (8 + 8)
	if got := coefs[0][0].Straight; got != want {
		t.Errorf("road 0 straight coef = %v, want %v", got, want)
	}
	// Road 11 leads to the empty intersection 3.
	if got := coefs[0][0].Right; got != 1 {
		t.Errorf("road 0 right coef = %v, want 1", got)
	}
}

func TestPedestrianLayerFavoursWaitingSides(t *testing.T) {
	n, err := network.New()
	if err != nil {
		t.Fatal(err)
	}
	n.Road(0).AtoB.Finish.Straight = 10
	n.Road(4).AtoB.Finish.Straight = 10

	coefs, err := loadingCoefficients(n)
	if err != nil {
		t.Fatal(err)
	}

	// Phase 2 just ran, so the top approach has been waiting.
	layer := signal.NextPedestrian(nil, signal.Catalog[2])
	scores, err := scorePhases(n, 0, coefs, &layer)
	if err != nil {
		t.Fatal(err)
	}
	if scores[0] <= scores[2] {
		t.Errorf("waiting top side should win: phase 0 %v, phase 2 %v", scores[0], scores[2])
	}
	if got := selectPhase(scores); got != 0 {
		t.Errorf("selected phase %d, want 0", got)
	}
}
