// Package engine provides the tick-based simulation loop and the traffic
// simulation it drives.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TicksPerReport is how often the engine asks for a summary log.
const TicksPerReport = 60

// Engine drives the simulation forward.
type Engine struct {
	Interval time.Duration // Base tick interval (default 1 second)
	MinDelay time.Duration // Floor on the gap between ticks at any speed

	// Callbacks populated during setup.
	OnTick   func(ctx context.Context, tick uint64) error // Every tick; an error stops the loop
	OnReport func(tick uint64)                            // Every TicksPerReport ticks

	mu      sync.Mutex
	tick    uint64  // Monotonic, survives simulation resets
	speed   float64 // Multiplier: 1.0 = real-time, 0 = paused
	running bool
	cancel  context.CancelFunc
}

// NewEngine creates a simulation engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		Interval: time.Second,
		MinDelay: 10 * time.Millisecond,
		speed:    1.0,
	}
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier. Zero pauses the loop.
func (e *Engine) SetSpeed(v float64) error {
	if v < 0 {
		return fmt.Errorf("speed must not be negative, got %v", v)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speed = v
	return nil
}

// Tick returns the number of ticks run.
func (e *Engine) Tick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Run starts the simulation loop. It blocks until ctx is cancelled, Stop
// is called, or a tick fails. A tick in progress always completes.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.cancel = cancel
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.cancel = nil
		e.mu.Unlock()
	}()

	slog.Info("simulation engine started", "tick", e.Tick(), "speed", e.Speed())

	for {
		if ctx.Err() != nil {
			slog.Info("simulation engine stopped", "tick", e.Tick())
			return nil
		}

		speed := e.Speed()
		if speed <= 0 {
			// Paused: sleep briefly and check again.
			sleep(ctx, 100*time.Millisecond)
			continue
		}

		start := time.Now()

		if err := e.step(ctx); err != nil {
			slog.Error("simulation engine halted", "tick", e.Tick(), "error", err)
			return err
		}

		// Sleep for the remainder of the tick interval, adjusted for speed.
		target := time.Duration(float64(e.Interval) / speed)
		if target < e.MinDelay {
			target = e.MinDelay
		}
		if elapsed := time.Since(start); elapsed < target {
			sleep(ctx, target-elapsed)
		}
	}
}

// Stop halts the loop after the current tick.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		e.cancel()
	}
}

// step advances the simulation by one tick.
func (e *Engine) step(ctx context.Context) error {
	e.mu.Lock()
	e.tick++
	tick := e.tick
	e.mu.Unlock()

	if e.OnTick != nil {
		if err := e.OnTick(ctx, tick); err != nil {
			return fmt.Errorf("tick %d: %w", tick, err)
		}
	}

	if tick%TicksPerReport == 0 && e.OnReport != nil {
		e.OnReport(tick)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
