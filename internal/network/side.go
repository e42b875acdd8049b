// Package network provides the fixed road graph: intersections on a 2×2 grid,
// the roads joining them, and the direction algebra used to route vehicles.
package network

import "fmt"

// Side is the cardinal side of an intersection a road occupies.
// Values run clockwise so the distance between two sides encodes the turn.
type Side uint8

const (
	SideLeft Side = iota
	SideTop
	SideRight
	SideBottom
)

// Sides lists all four sides in clockwise order.
var Sides = [4]Side{SideLeft, SideTop, SideRight, SideBottom}

var sideNames = [4]string{"left", "top", "right", "bottom"}

func (s Side) String() string {
	if int(s) < len(sideNames) {
		return sideNames[s]
	}
	return fmt.Sprintf("side(%d)", uint8(s))
}

// Opposite returns the side facing s across the intersection.
func (s Side) Opposite() Side {
	return (s + 2) % 4
}

// Turn is a resolved movement through an intersection.
type Turn uint8

const (
	TurnLeft Turn = iota
	TurnStraight
	TurnRight
)

// Turns lists the three movements in lane order.
var Turns = [3]Turn{TurnLeft, TurnStraight, TurnRight}

var turnNames = [3]string{"left", "straight", "right"}

func (t Turn) String() string {
	if int(t) < len(turnNames) {
		return turnNames[t]
	}
	return fmt.Sprintf("turn(%d)", uint8(t))
}

// turnByOffset maps the clockwise distance from the approach side to the
// exit side onto the movement a driver makes. Offset 0 (U-turn) is unused.
var turnByOffset = [4]Turn{1: TurnLeft, 2: TurnStraight, 3: TurnRight}

// offsetByTurn is the inverse of turnByOffset.
var offsetByTurn = [3]Side{TurnLeft: 1, TurnStraight: 2, TurnRight: 3}

// TurnDirection returns the movement needed to enter from side in and leave
// by side out. Opposite sides are straight; Top→Right, Right→Bottom,
// Bottom→Left and Left→Top are left turns; the mirrored four are right turns.
func TurnDirection(in, out Side) (Turn, error) {
	if in > SideBottom || out > SideBottom {
		return 0, fmt.Errorf("invalid side pair %d→%d", in, out)
	}
	offset := (out + 4 - in) % 4
	if offset == 0 {
		return 0, fmt.Errorf("no movement from %s back to %s", in, out)
	}
	return turnByOffset[offset], nil
}

// Exit returns the side a vehicle leaves by after entering from side and
// making turn t.
func Exit(side Side, t Turn) Side {
	return (side + offsetByTurn[t]) % 4
}
