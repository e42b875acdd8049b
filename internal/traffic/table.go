// Package traffic supplies the vehicles arriving on each external road per
// tick and holds the editable table that configures them.
package traffic

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/talgya/traffic-lights/internal/network"
)

var (
	// ErrInvalidValue rejects a table entry that is not a non-negative
	// integer.
	ErrInvalidValue = errors.New("invalid traffic value")
	// ErrRange rejects a minimum above its maximum.
	ErrRange = errors.New("minimum exceeds maximum")
)

// Table fields editable through SetField.
const (
	FieldInterest = "interest"
	FieldMin      = "min"
	FieldMax      = "max"
	FieldValue    = "value"
)

// Row configures one external road.
type Row struct {
	Road     int `json:"road"`
	Interest int `json:"interest"` // Relative pull as a destination
	Min      int `json:"min"`      // Uniform and wave lower bound
	Max      int `json:"max"`      // Uniform and wave upper bound
	Value    int `json:"value"`    // Fixed arrivals per tick
}

func (r Row) validate() error {
	for name, v := range map[string]int{FieldInterest: r.Interest, FieldMin: r.Min, FieldMax: r.Max, FieldValue: r.Value} {
		if v < 0 {
			return fmt.Errorf("%w: road %d %s is %d", ErrInvalidValue, r.Road, name, v)
		}
	}
	if r.Min > r.Max {
		return fmt.Errorf("%w: road %d min %d > max %d", ErrRange, r.Road, r.Min, r.Max)
	}
	return nil
}

// Table is the per-road traffic configuration. It is safe for concurrent
// use; sources read it live.
type Table struct {
	mu   sync.RWMutex
	rows [network.ExternalRoads]Row
}

// DefaultTable gives every road interest 5, bounds [5, 10] and a fixed
// value of 5.
func DefaultTable() *Table {
	t := &Table{}
	for i := range t.rows {
		t.rows[i] = Row{Road: i, Interest: 5, Min: 5, Max: 10, Value: 5}
	}
	return t
}

// NewTable builds a table from rows, one per external road in any order.
func NewTable(rows []Row) (*Table, error) {
	if len(rows) != network.ExternalRoads {
		return nil, fmt.Errorf("%w: got %d rows, want %d", ErrInvalidValue, len(rows), network.ExternalRoads)
	}
	t := &Table{}
	var seen [network.ExternalRoads]bool
	for _, r := range rows {
		if r.Road < 0 || r.Road >= network.ExternalRoads {
			return nil, fmt.Errorf("%w: road %d out of range", ErrInvalidValue, r.Road)
		}
		if seen[r.Road] {
			return nil, fmt.Errorf("%w: road %d listed twice", ErrInvalidValue, r.Road)
		}
		if err := r.validate(); err != nil {
			return nil, err
		}
		seen[r.Road] = true
		t.rows[r.Road] = r
	}
	return t, nil
}

// LoadTable reads a JSON array of rows from path.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read table: %w", err)
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse table %s: %w", path, err)
	}
	t, err := NewTable(rows)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", path, err)
	}
	return t, nil
}

// Rows returns a copy of every row, ordered by road.
func (t *Table) Rows() []Row {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Row, len(t.rows))
	copy(out, t.rows[:])
	return out
}

// Row returns the row for road.
func (t *Table) Row(road int) (Row, error) {
	if road < 0 || road >= network.ExternalRoads {
		return Row{}, fmt.Errorf("%w: road %d out of range", ErrInvalidValue, road)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rows[road], nil
}

// SetField parses raw and stores it in one field of one road's row. The
// row is left untouched when the text is not a non-negative integer or the
// edit would put min above max.
func (t *Table) SetField(road int, field, raw string) error {
	if road < 0 || road >= network.ExternalRoads {
		return fmt.Errorf("%w: road %d out of range", ErrInvalidValue, road)
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: road %d %s %q is not a number", ErrInvalidValue, road, field, raw)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	r := t.rows[road]
	switch field {
	case FieldInterest:
		r.Interest = v
	case FieldMin:
		r.Min = v
	case FieldMax:
		r.Max = v
	case FieldValue:
		r.Value = v
	default:
		return fmt.Errorf("%w: unknown field %q", ErrInvalidValue, field)
	}
	if err := r.validate(); err != nil {
		return err
	}
	t.rows[road] = r
	return nil
}

// Weights returns the interest of every road as route-model weights.
func (t *Table) Weights() []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]float64, len(t.rows))
	for i, r := range t.rows {
		out[i] = float64(r.Interest)
	}
	return out
}

// Values returns the fixed arrivals of every road.
func (t *Table) Values() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]int, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Value
	}
	return out
}
