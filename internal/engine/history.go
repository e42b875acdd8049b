package engine

import "github.com/talgya/traffic-lights/internal/network"

// Lookahead is how many past snapshots the update recurrence reads.
const Lookahead = 2

// Movement counts vehicles that turned onto one internal road during a
// tick. Curr came straight off the external approaches; Prev came off the
// other internal road at the same crossing.
type Movement struct {
	AtoBCurr float64 `json:"a2b_curr"`
	BtoACurr float64 `json:"b2a_curr"`
	AtoBPrev float64 `json:"a2b_prev"`
	BtoAPrev float64 `json:"b2a_prev"`
}

// Snapshot is one tick's movements, indexed by internal road index.
type Snapshot [network.InternalRoads]Movement

// history is a fixed ring of the last Lookahead snapshots, oldest first.
type history struct {
	slots [Lookahead]Snapshot
	head  int
	n     int
}

func (h *history) len() int { return h.n }

// push appends s. A full ring drops its oldest entry.
func (h *history) push(s Snapshot) {
	if h.n == Lookahead {
		h.head = (h.head + 1) % Lookahead
		h.n--
	}
	h.slots[(h.head+h.n)%Lookahead] = s
	h.n++
}

// pop removes and returns the oldest entry.
func (h *history) pop() (Snapshot, bool) {
	if h.n == 0 {
		return Snapshot{}, false
	}
	s := h.slots[h.head]
	h.head = (h.head + 1) % Lookahead
	h.n--
	return s, true
}

// peek returns the oldest entry without removing it.
func (h *history) peek() (Snapshot, bool) {
	if h.n == 0 {
		return Snapshot{}, false
	}
	return h.slots[h.head], true
}

// rotate starts a tick: once the ring is full its oldest snapshot is
// consumed as last, and whatever is then at the front is prev. Either may
// be nil early in a run.
func (h *history) rotate() (last, prev *Snapshot) {
	if h.n == Lookahead {
		s, _ := h.pop()
		last = &s
	}
	if s, ok := h.peek(); ok {
		prev = &s
	}
	return last, prev
}

func (h *history) reset() {
	*h = history{}
}
