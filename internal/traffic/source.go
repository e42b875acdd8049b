package traffic

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/traffic-lights/internal/network"
)

// Source modes.
const (
	ModeFixed    = "fixed"
	ModeUniform  = "uniform"
	ModeDisabled = "disabled"
	ModeRemote   = "remote"
	ModeWave     = "wave"
)

// Modes lists every source mode NewSource accepts.
var Modes = []string{ModeFixed, ModeUniform, ModeDisabled, ModeRemote, ModeWave}

// Source produces one tick's arrivals: a count per external road.
type Source interface {
	Name() string
	Arrivals(ctx context.Context) ([]int, error)
}

// Options carries what the individual sources need.
type Options struct {
	Table   *Table
	FeedURL string
	Seed    int64 // 0 picks a random seed
	Timeout time.Duration
}

// NewSource builds the source for mode.
func NewSource(mode string, opts Options) (Source, error) {
	if opts.Table == nil && mode != ModeDisabled && mode != ModeRemote {
		return nil, fmt.Errorf("%s source needs a traffic table", mode)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	switch mode {
	case ModeFixed:
		return &Fixed{Table: opts.Table}, nil
	case ModeUniform:
		return NewUniform(opts.Table, seed), nil
	case ModeDisabled:
		return Disabled{}, nil
	case ModeRemote:
		if opts.FeedURL == "" {
			return nil, fmt.Errorf("remote source needs a feed URL")
		}
		return NewRemote(opts.FeedURL, opts.Timeout), nil
	case ModeWave:
		return NewWave(opts.Table, seed), nil
	}
	return nil, fmt.Errorf("unknown source mode %q", mode)
}

// Fixed repeats each road's configured value every tick.
type Fixed struct {
	Table *Table
}

func (f *Fixed) Name() string { return ModeFixed }

func (f *Fixed) Arrivals(context.Context) ([]int, error) {
	return f.Table.Values(), nil
}

// Disabled never sends any traffic.
type Disabled struct{}

func (Disabled) Name() string { return ModeDisabled }

func (Disabled) Arrivals(context.Context) ([]int, error) {
	return make([]int, network.ExternalRoads), nil
}

// Uniform draws each road's arrivals from [min, max), or exactly min when
// the bounds meet.
type Uniform struct {
	table *Table

	mu  sync.Mutex
	rng *rand.Rand
}

// NewUniform creates a uniform source over table's bounds.
func NewUniform(table *Table, seed int64) *Uniform {
	return &Uniform{table: table, rng: rand.New(rand.NewSource(seed))}
}

func (u *Uniform) Name() string { return ModeUniform }

func (u *Uniform) Arrivals(context.Context) ([]int, error) {
	rows := u.table.Rows()
	out := make([]int, len(rows))

	u.mu.Lock()
	defer u.mu.Unlock()
	for i, r := range rows {
		out[i] = r.Min
		if r.Max > r.Min {
			out[i] += u.rng.Intn(r.Max - r.Min)
		}
	}
	return out, nil
}

// Wave sweeps each road's arrivals through [min, max] along a slow simplex
// noise curve, so neighbouring ticks stay close.
type Wave struct {
	table *Table
	noise opensimplex.Noise
	Step  float64 // Noise distance per tick

	mu sync.Mutex
	t  float64
}

// NewWave creates a wave source over table's bounds.
func NewWave(table *Table, seed int64) *Wave {
	return &Wave{table: table, noise: opensimplex.NewNormalized(seed), Step: 0.05}
}

func (w *Wave) Name() string { return ModeWave }

func (w *Wave) Arrivals(context.Context) ([]int, error) {
	rows := w.table.Rows()
	out := make([]int, len(rows))

	w.mu.Lock()
	t := w.t
	w.t += w.Step
	w.mu.Unlock()

	for i, r := range rows {
		// Roads sit far apart on the noise plane so their curves are
		// unrelated.
		v := w.noise.Eval2(float64(i)*17.3, t)
		v = math.Max(0, math.Min(1, v))
		out[i] = r.Min + int(math.Round(v*float64(r.Max-r.Min)))
	}
	return out, nil
}
