package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/traffic-lights/internal/network"
	"github.com/talgya/traffic-lights/internal/probability"
	"github.com/talgya/traffic-lights/internal/signal"
)

// ErrPhase reports a pinned phase outside the catalog.
var ErrPhase = errors.New("unknown signal phase")

// ArrivalSource supplies the vehicles entering on each external road for
// one tick.
type ArrivalSource interface {
	Name() string
	Arrivals(ctx context.Context) ([]int, error)
}

type zeroSource struct{}

func (zeroSource) Name() string { return "disabled" }

func (zeroSource) Arrivals(context.Context) ([]int, error) {
	return make([]int, network.ExternalRoads), nil
}

// Config is the part of the simulation that only changes on reset.
type Config struct {
	Weights      []float64     `json:"weights"`       // Interest weight per external road
	PinnedPhase  int           `json:"pinned_phase"`  // -1 selects adaptively
	FetchTimeout time.Duration `json:"fetch_timeout"` // Budget for one arrival fetch
}

// DefaultConfig returns equal interest on every road and adaptive phases.
func DefaultConfig() Config {
	w := make([]float64, network.ExternalRoads)
	for i := range w {
		w[i] = 5
	}
	return Config{Weights: w, PinnedPhase: -1, FetchTimeout: 5 * time.Second}
}

func (c Config) validate() error {
	if err := probability.ValidateWeights(c.Weights); err != nil {
		return err
	}
	if c.PinnedPhase != -1 {
		if _, ok := signal.Lookup(c.PinnedPhase); !ok {
			return fmt.Errorf("%w: %d", ErrPhase, c.PinnedPhase)
		}
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout)
	}
	return nil
}

func (c Config) clone() Config {
	c.Weights = slices.Clone(c.Weights)
	return c
}

// IntersectionState is the per-crossing part of a tick result.
type IntersectionState struct {
	ID     int       `json:"id"`
	Corner string    `json:"corner"`
	Load   float64   `json:"load"`
	Phase  int       `json:"phase"`
	Scores []float64 `json:"scores,omitempty"`
}

// TickResult is everything a completed tick exposes to readers.
type TickResult struct {
	RunID         string              `json:"run_id"`
	Tick          uint64              `json:"tick"`
	Source        string              `json:"source"`
	Arrivals      []int               `json:"arrivals"`
	Fallback      bool                `json:"fallback"` // Arrivals replaced by zeros after a failed fetch
	Roads         []network.Road      `json:"roads"`
	Intersections []IntersectionState `json:"intersections"`
	InFlight      float64             `json:"in_flight"`
	Departed      float64             `json:"departed"`
}

// Simulation owns all engine state. Step is the only writer; everything
// else reads copies.
type Simulation struct {
	mu     sync.RWMutex
	stepMu sync.Mutex // Serialises Step, including the fetch outside mu

	cfg     Config
	pending Config

	net        *network.Network
	model      *probability.Model
	hist       history
	pedestrian [network.Intersections]*signal.Pedestrian
	source     ArrivalSource
	tick       uint64
	runID      uuid.UUID
	last       TickResult

	evMu     sync.Mutex
	events   []Event
	notifier Notifier

	eventFeed *broker[Event]
	tickFeed  *broker[TickResult]
}

// NewSimulation validates cfg and builds a fresh run. A nil source yields
// no arrivals.
func NewSimulation(cfg Config, src ArrivalSource) (*Simulation, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if src == nil {
		src = zeroSource{}
	}
	s := &Simulation{
		pending:   cfg.clone(),
		source:    src,
		eventFeed: newBroker[Event](),
		tickFeed:  newBroker[TickResult](),
	}
	if _, err := s.Reset(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reset applies the staged config and starts a new run from an empty
// network. It returns the new run id.
func (s *Simulation) Reset() (uuid.UUID, error) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	net, err := network.New()
	if err != nil {
		return uuid.Nil, fmt.Errorf("build network: %w", err)
	}

	s.mu.Lock()
	cfg := s.pending.clone()
	model, err := probability.Build(net, cfg.Weights)
	if err != nil {
		s.mu.Unlock()
		return uuid.Nil, fmt.Errorf("build model: %w", err)
	}

	s.cfg = cfg
	s.net = net
	s.model = model
	s.hist.reset()
	s.pedestrian = [network.Intersections]*signal.Pedestrian{}
	s.tick = 0
	s.runID = uuid.New()
	s.last = s.result(make([]int, network.ExternalRoads), false, [network.Intersections][]float64{})
	runID := s.runID
	s.mu.Unlock()

	slog.Info("simulation reset", "run", runID, "weights", cfg.Weights, "pinned_phase", cfg.PinnedPhase)
	s.emit(0, EventReset, fmt.Sprintf("run %s started", runID))
	return runID, nil
}

// Step runs one tick: fetch arrivals, advance the network, pick phases,
// record history and publish the result. A failed fetch falls back to no
// arrivals and the tick goes on. A topology error is returned and leaves
// the run unusable.
func (s *Simulation) Step(ctx context.Context) (TickResult, error) {
	s.stepMu.Lock()
	defer s.stepMu.Unlock()

	s.mu.RLock()
	src := s.source
	timeout := s.cfg.FetchTimeout
	next := s.tick + 1
	s.mu.RUnlock()

	arrivals, fallback := s.fetch(ctx, src, timeout, next)

	s.mu.Lock()
	oldPhases := s.phases()
	scores, err := s.advance(arrivals)
	if err != nil {
		s.mu.Unlock()
		return TickResult{}, fmt.Errorf("tick %d: %w", next, err)
	}
	res := s.result(arrivals, fallback, scores)
	res.Source = src.Name()
	s.last = res
	newPhases := s.phases()
	s.mu.Unlock()

	for c := range newPhases {
		if oldPhases[c] != newPhases[c] {
			s.emit(res.Tick, EventPhase, fmt.Sprintf("intersection %d switched from phase %d to %d", c, oldPhases[c], newPhases[c]))
		}
	}
	s.tickFeed.publish(res.clone())
	return res, nil
}

// fetch asks src for this tick's arrivals. It cannot be cancelled by the
// caller once started, only by its own timeout.
func (s *Simulation) fetch(ctx context.Context, src ArrivalSource, timeout time.Duration, tick uint64) ([]int, bool) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	arrivals, err := src.Arrivals(fctx)
	if err == nil {
		err = checkArrivals(arrivals)
	}
	if err != nil {
		slog.Warn("arrival fetch failed, using zeros", "tick", tick, "source", src.Name(), "error", err)
		s.emit(tick, EventFetchFailed, fmt.Sprintf("%s: %v", src.Name(), err))
		return make([]int, network.ExternalRoads), true
	}
	return slices.Clone(arrivals), false
}

func checkArrivals(arrivals []int) error {
	if len(arrivals) != network.ExternalRoads {
		return fmt.Errorf("got %d arrival counts, want %d", len(arrivals), network.ExternalRoads)
	}
	for i, n := range arrivals {
		if n < 0 {
			return fmt.Errorf("road %d has negative arrivals %d", i, n)
		}
	}
	return nil
}

func (s *Simulation) phases() [network.Intersections]int {
	var out [network.Intersections]int
	for c := range out {
		out[c] = s.net.Intersection(c).Phase
	}
	return out
}

// result builds a TickResult from the live state. Callers hold mu.
func (s *Simulation) result(arrivals []int, fallback bool, scores [network.Intersections][]float64) TickResult {
	res := TickResult{
		RunID:    s.runID.String(),
		Tick:     s.tick,
		Source:   s.source.Name(),
		Arrivals: arrivals,
		Fallback: fallback,
		Roads:    slices.Clone(s.net.Roads[:]),
		InFlight: s.net.InFlight(),
		Departed: s.net.Departed(),
	}
	for c := range s.net.Intersections {
		in := s.net.Intersection(c)
		res.Intersections = append(res.Intersections, IntersectionState{
			ID:     in.ID,
			Corner: in.Corner.String(),
			Load:   s.net.Load(c),
			Phase:  in.Phase,
			Scores: scores[c],
		})
	}
	return res
}

func (r TickResult) clone() TickResult {
	r.Arrivals = slices.Clone(r.Arrivals)
	r.Roads = slices.Clone(r.Roads)
	r.Intersections = slices.Clone(r.Intersections)
	for i := range r.Intersections {
		r.Intersections[i].Scores = slices.Clone(r.Intersections[i].Scores)
	}
	return r
}

// Snapshot returns a copy of the last completed tick.
func (s *Simulation) Snapshot() TickResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last.clone()
}

// Model returns the route model of the current run. It is never mutated.
func (s *Simulation) Model() *probability.Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

// CurrentTick returns the number of ticks run since the last reset.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

// RunID identifies the current run.
func (s *Simulation) RunID() uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

// Config returns the active config.
func (s *Simulation) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.clone()
}

// PendingConfig returns the config the next Reset will apply.
func (s *Simulation) PendingConfig() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending.clone()
}

// StageWeights sets the interest weights for the next run.
func (s *Simulation) StageWeights(weights []float64) error {
	if err := probability.ValidateWeights(weights); err != nil {
		return err
	}
	s.mu.Lock()
	s.pending.Weights = slices.Clone(weights)
	tick := s.tick
	s.mu.Unlock()

	s.emit(tick, EventConfig, fmt.Sprintf("interest weights %v staged for next reset", weights))
	return nil
}

// StagePinnedPhase pins every intersection to phase for the next run, or
// returns to adaptive selection with -1.
func (s *Simulation) StagePinnedPhase(phase int) error {
	if phase != -1 {
		if _, ok := signal.Lookup(phase); !ok {
			return fmt.Errorf("%w: %d", ErrPhase, phase)
		}
	}
	s.mu.Lock()
	s.pending.PinnedPhase = phase
	tick := s.tick
	s.mu.Unlock()

	s.emit(tick, EventConfig, fmt.Sprintf("pinned phase %d staged for next reset", phase))
	return nil
}

// SourceName reports the active arrival source.
func (s *Simulation) SourceName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source.Name()
}

// SetSource swaps the arrival source. The next tick uses it.
func (s *Simulation) SetSource(src ArrivalSource) {
	if src == nil {
		src = zeroSource{}
	}
	s.mu.Lock()
	old := s.source.Name()
	s.source = src
	tick := s.tick
	s.mu.Unlock()

	slog.Info("arrival source changed", "from", old, "to", src.Name())
	s.emit(tick, EventSource, fmt.Sprintf("arrival source changed from %s to %s", old, src.Name()))
}

// Report logs a periodic summary of the run.
func (s *Simulation) Report(tick uint64) {
	res := s.Snapshot()

	counts := make(map[string]int)
	for _, e := range s.RecentEvents(maxEvents) {
		counts[e.Category]++
	}

	phases := make([]int, len(res.Intersections))
	for i, in := range res.Intersections {
		phases[i] = in.Phase
	}

	slog.Info("traffic report",
		"tick", tick,
		"run", res.RunID,
		"run_tick", humanize.Comma(int64(res.Tick)),
		"source", res.Source,
		"in_flight", humanize.FormatFloat("#,###.##", res.InFlight),
		"departed", humanize.FormatFloat("#,###.##", res.Departed),
		"phases", phases,
		"events_phase", counts[EventPhase],
		"events_fetch_failed", counts[EventFetchFailed],
	)
}
