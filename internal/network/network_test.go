package network

import (
	"errors"
	"testing"
)

func TestTurnDirectionTable(t *testing.T) {
	cases := []struct {
		in, out Side
		want    Turn
	}{
		{SideTop, SideBottom, TurnStraight},
		{SideBottom, SideTop, TurnStraight},
		{SideLeft, SideRight, TurnStraight},
		{SideRight, SideLeft, TurnStraight},
		{SideTop, SideRight, TurnLeft},
		{SideBottom, SideLeft, TurnLeft},
		{SideLeft, SideTop, TurnLeft},
		{SideRight, SideBottom, TurnLeft},
		{SideTop, SideLeft, TurnRight},
		{SideBottom, SideRight, TurnRight},
		{SideLeft, SideBottom, TurnRight},
		{SideRight, SideTop, TurnRight},
	}
	for _, c := range cases {
		got, err := TurnDirection(c.in, c.out)
		if err != nil {
			t.Fatalf("TurnDirection(%s, %s): %v", c.in, c.out, err)
		}
		if got != c.want {
			t.Errorf("TurnDirection(%s, %s) = %s, want %s", c.in, c.out, got, c.want)
		}
	}

	for _, s := range Sides {
		if _, err := TurnDirection(s, s); err == nil {
			t.Errorf("TurnDirection(%s, %s) should fail", s, s)
		}
	}
}

func TestExitInvertsTurnDirection(t *testing.T) {
	for _, s := range Sides {
		for _, turn := range Turns {
			out := Exit(s, turn)
			got, err := TurnDirection(s, out)
			if err != nil {
				t.Fatalf("TurnDirection(%s, %s): %v", s, out, err)
			}
			if got != turn {
				t.Errorf("Exit(%s, %s) = %s, turning back gives %s", s, turn, out, got)
			}
		}
	}
}

func TestNewLayout(t *testing.T) {
	n, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	wantSides := map[int]Side{
		0: SideLeft, 1: SideRight, 2: SideRight, 3: SideLeft,
		4: SideTop, 5: SideTop, 6: SideBottom, 7: SideBottom,
		8: SideLeft, 9: SideTop, 10: SideRight, 11: SideBottom,
	}
	for id, want := range wantSides {
		if got := n.Road(id).SideB; got != want {
			t.Errorf("road %d SideB = %s, want %s", id, got, want)
		}
	}

	wantRoads := [Intersections][]int{
		{0, 4, 8, 11},
		{1, 5, 8, 9},
		{2, 6, 9, 10},
		{3, 7, 10, 11},
	}
	for c, want := range wantRoads {
		got := n.Intersection(c).Roads
		if len(got) != len(want) {
			t.Fatalf("intersection %d roads = %v, want %v", c, got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("intersection %d roads = %v, want %v", c, got, want)
				break
			}
		}
		if n.Intersection(c).Phase != -1 {
			t.Errorf("intersection %d phase = %d, want -1", c, n.Intersection(c).Phase)
		}
	}

	for i := 0; i < ExternalRoads; i++ {
		if !n.Road(i).External() {
			t.Errorf("road %d should be external", i)
		}
	}
	for i := ExternalRoads; i < TotalRoads; i++ {
		if n.Road(i).External() {
			t.Errorf("road %d should be internal", i)
		}
	}
}

func TestRoadInDirection(t *testing.T) {
	n, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	cases := []struct {
		road int
		turn Turn
		useB bool
		want int
	}{
		// Road 0 enters intersection 0 from the left.
		{0, TurnLeft, true, 4},
		{0, TurnStraight, true, 8},
		{0, TurnRight, true, 11},
		// Road 8 arrives at intersection 1 from its left side.
		{8, TurnLeft, true, 5},
		{8, TurnStraight, true, 1},
		{8, TurnRight, true, 9},
		// Road 8 arrives at intersection 0 from its right side.
		{8, TurnLeft, false, 11},
		{8, TurnStraight, false, 0},
		{8, TurnRight, false, 4},
	}
	for _, c := range cases {
		got, err := n.RoadInDirection(c.road, c.turn, c.useB)
		if err != nil {
			t.Fatalf("RoadInDirection(%d, %s, %v): %v", c.road, c.turn, c.useB, err)
		}
		if got != c.want {
			t.Errorf("RoadInDirection(%d, %s, %v) = %d, want %d", c.road, c.turn, c.useB, got, c.want)
		}
	}

	if _, err := n.RoadInDirection(0, TurnLeft, false); !errors.Is(err, ErrTopology) {
		t.Errorf("external road A side: got %v, want ErrTopology", err)
	}
}

func TestOtherEndAndTurnBetween(t *testing.T) {
	n, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got, err := n.OtherEnd(9, 1); err != nil || got != 2 {
		t.Errorf("OtherEnd(9, 1) = %d, %v; want 2", got, err)
	}
	if _, err := n.OtherEnd(9, 0); !errors.Is(err, ErrTopology) {
		t.Errorf("OtherEnd on non-endpoint: got %v, want ErrTopology", err)
	}
	if _, err := n.OtherEnd(3, 3); !errors.Is(err, ErrTopology) {
		t.Errorf("OtherEnd on external road: got %v, want ErrTopology", err)
	}

	turn, err := n.TurnBetween(4, 8)
	if err != nil || turn != TurnLeft {
		t.Errorf("TurnBetween(4, 8) = %s, %v; want left", turn, err)
	}
	if _, err := n.TurnBetween(0, 6); !errors.Is(err, ErrTopology) {
		t.Errorf("TurnBetween on disjoint roads: got %v, want ErrTopology", err)
	}
}

func TestValidateRejectsBrokenLayout(t *testing.T) {
	n, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n.Roads[8].SideA = n.Roads[8].SideB
	if err := n.Validate(); !errors.Is(err, ErrTopology) {
		t.Errorf("Validate with bad sides: got %v, want ErrTopology", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	n, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n.Road(0).AtoB.Finish.Left = 3

	c := n.Clone()
	c.Road(0).AtoB.Finish.Left = 7
	c.Intersection(2).Phase = 5
	c.Intersection(1).Roads[0] = 99

	if n.Road(0).AtoB.Finish.Left != 3 {
		t.Errorf("clone write leaked into original lane: %v", n.Road(0).AtoB.Finish.Left)
	}
	if n.Intersection(2).Phase != -1 {
		t.Errorf("clone write leaked into original phase: %d", n.Intersection(2).Phase)
	}
	if n.Intersection(1).Roads[0] == 99 {
		t.Errorf("clone shares road list with original: %v", n.Intersection(1).Roads)
	}
}

func TestLoadCountsArrivingLanes(t *testing.T) {
	n, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n.Road(0).AtoB.Finish = LaneSet{Left: 1, Straight: 2, Right: 3}
	n.Road(0).BtoA.Finish = LaneSet{Left: 100}
	n.Road(8).BtoA.Finish = LaneSet{Straight: 4}
	n.Road(8).AtoB.Finish = LaneSet{Straight: 50}

	if got := n.Load(0); got != 10 {
		t.Errorf("Load(0) = %v, want 10", got)
	}
	if got := n.Load(1); got != 50 {
		t.Errorf("Load(1) = %v, want 50", got)
	}
}
