// Package persistence keeps an append-only SQLite log of simulation runs:
// one row per run, per tick and per event. Nothing here is read back into
// the engine.
package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"github.com/talgya/traffic-lights/internal/engine"
)

// DB wraps a SQLite connection for the run log.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		source TEXT NOT NULL,
		pinned_phase INTEGER NOT NULL,
		weights_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ticks (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		source TEXT NOT NULL,
		fallback INTEGER NOT NULL,
		in_flight REAL NOT NULL,
		departed REAL NOT NULL,
		phases_json TEXT NOT NULL,
		snapshot BLOB NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(run_id, tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run describes one simulation run.
type Run struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	Source      string    `json:"source"`
	PinnedPhase int       `json:"pinned_phase"`
	Weights     []float64 `json:"weights"`
}

type runRow struct {
	ID          string `db:"id"`
	StartedAt   int64  `db:"started_at"`
	Source      string `db:"source"`
	PinnedPhase int    `db:"pinned_phase"`
	WeightsJSON string `db:"weights_json"`
}

// SaveRun records the start of a run.
func (db *DB) SaveRun(r Run) error {
	weights, err := json.Marshal(r.Weights)
	if err != nil {
		return fmt.Errorf("encode weights: %w", err)
	}
	_, err = db.conn.Exec(
		"INSERT OR REPLACE INTO runs (id, started_at, source, pinned_phase, weights_json) VALUES (?, ?, ?, ?, ?)",
		r.ID, r.StartedAt.UnixNano(), r.Source, r.PinnedPhase, string(weights),
	)
	return err
}

// Runs returns the most recent runs, newest first.
func (db *DB) Runs(limit int) ([]Run, error) {
	var rows []runRow
	if err := db.conn.Select(&rows,
		"SELECT id, started_at, source, pinned_phase, weights_json FROM runs ORDER BY started_at DESC LIMIT ?",
		limit,
	); err != nil {
		return nil, err
	}

	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		r := Run{
			ID:          row.ID,
			StartedAt:   time.Unix(0, row.StartedAt).UTC(),
			Source:      row.Source,
			PinnedPhase: row.PinnedPhase,
		}
		if err := json.Unmarshal([]byte(row.WeightsJSON), &r.Weights); err != nil {
			return nil, fmt.Errorf("run %s weights: %w", row.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, nil
}

// encodeSnapshot packs a tick result with msgpack, reusing its json names.
func encodeSnapshot(res engine.TickResult) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(res); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(data []byte) (engine.TickResult, error) {
	var res engine.TickResult
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	err := dec.Decode(&res)
	return res, err
}

// SaveTick appends one completed tick.
func (db *DB) SaveTick(res engine.TickResult) error {
	snapshot, err := encodeSnapshot(res)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	phases := make([]int, len(res.Intersections))
	for i, in := range res.Intersections {
		phases[i] = in.Phase
	}
	phasesJSON, err := json.Marshal(phases)
	if err != nil {
		return fmt.Errorf("encode phases: %w", err)
	}

	fallback := 0
	if res.Fallback {
		fallback = 1
	}

	_, err = db.conn.Exec(`INSERT OR REPLACE INTO ticks
		(run_id, tick, source, fallback, in_flight, departed, phases_json, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.Tick, res.Source, fallback, res.InFlight, res.Departed, string(phasesJSON), snapshot,
	)
	return err
}

// LoadTick returns the full result of one logged tick.
func (db *DB) LoadTick(runID string, tick uint64) (engine.TickResult, error) {
	var data []byte
	if err := db.conn.Get(&data, "SELECT snapshot FROM ticks WHERE run_id = ? AND tick = ?", runID, tick); err != nil {
		return engine.TickResult{}, fmt.Errorf("load tick %d of run %s: %w", tick, runID, err)
	}
	res, err := decodeSnapshot(data)
	if err != nil {
		return engine.TickResult{}, fmt.Errorf("decode tick %d of run %s: %w", tick, runID, err)
	}
	return res, nil
}

// TickStat is the summary row of one logged tick.
type TickStat struct {
	Tick     uint64  `db:"tick" json:"tick"`
	Source   string  `db:"source" json:"source"`
	Fallback bool    `db:"fallback" json:"fallback"`
	InFlight float64 `db:"in_flight" json:"in_flight"`
	Departed float64 `db:"departed" json:"departed"`
	Phases   []int   `db:"-" json:"phases"`

	PhasesJSON string `db:"phases_json" json:"-"`
}

// StatsHistory returns up to limit of the latest ticks of a run, oldest
// first.
func (db *DB) StatsHistory(runID string, limit int) ([]TickStat, error) {
	var stats []TickStat
	err := db.conn.Select(&stats, `SELECT tick, source, fallback, in_flight, departed, phases_json FROM (
		SELECT * FROM ticks WHERE run_id = ? ORDER BY tick DESC LIMIT ?
	) ORDER BY tick ASC`, runID, limit)
	if err != nil {
		return nil, err
	}
	for i := range stats {
		if err := json.Unmarshal([]byte(stats[i].PhasesJSON), &stats[i].Phases); err != nil {
			return nil, fmt.Errorf("tick %d phases: %w", stats[i].Tick, err)
		}
	}
	return stats, nil
}

// SaveEvents appends events to the database.
func (db *DB) SaveEvents(runID string, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex("INSERT INTO events (run_id, tick, description, category, at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(runID, e.Tick, e.Description, e.Category, e.Time.UnixNano()); err != nil {
			return err
		}
	}

	return tx.Commit()
}

type eventRow struct {
	Tick        uint64 `db:"tick"`
	Description string `db:"description"`
	Category    string `db:"category"`
	At          int64  `db:"at"`
}

// RecentEvents returns the most recent N events across runs, newest first.
func (db *DB) RecentEvents(limit int) ([]engine.Event, error) {
	var rows []eventRow
	err := db.conn.Select(&rows,
		"SELECT tick, description, category, at FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	events := make([]engine.Event, len(rows))
	for i, r := range rows {
		events[i] = engine.Event{Tick: r.Tick, Description: r.Description, Category: r.Category, Time: time.Unix(0, r.At).UTC()}
	}
	return events, nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// Recorder writes ticks and events as the simulation produces them.
type Recorder struct {
	DB  *DB
	Sim *engine.Simulation
}

// RecordTick logs a completed tick. Failures are logged, not returned, so
// a full disk never stops the simulation.
func (r *Recorder) RecordTick(res engine.TickResult) {
	if err := r.DB.SaveTick(res); err != nil {
		slog.Warn("failed to record tick", "run", res.RunID, "tick", res.Tick, "error", err)
		return
	}
	if err := r.DB.SaveMeta("last_tick", fmt.Sprintf("%s:%d", res.RunID, res.Tick)); err != nil {
		slog.Warn("failed to record meta", "error", err)
	}
}

// RecordRun logs the start of the simulation's current run.
func (r *Recorder) RecordRun() {
	cfg := r.Sim.Config()
	run := Run{
		ID:          r.Sim.RunID().String(),
		StartedAt:   time.Now().UTC(),
		Source:      r.Sim.SourceName(),
		PinnedPhase: cfg.PinnedPhase,
		Weights:     cfg.Weights,
	}
	if err := r.DB.SaveRun(run); err != nil {
		slog.Warn("failed to record run", "run", run.ID, "error", err)
		return
	}
	slog.Info("run recorded", "run", run.ID, "source", run.Source)
}

// tickBuffer holds ticks waiting to be written. The broker drops values
// for a full subscriber, so it must outlast a slow disk at full speed.
const tickBuffer = 4096

// Follow persists every tick and event the simulation emits until done is
// closed, whether the tick came from the engine loop or a manual step.
// A reset event also records the new run. Follow subscribes before it
// returns and writes from its own goroutine; the returned channel closes
// once that goroutine has exited.
func (r *Recorder) Follow(done <-chan struct{}) <-chan struct{} {
	id, events := r.Sim.Subscribe()
	tid, ticks := r.Sim.SubscribeTicksBuffered(tickBuffer)
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		defer r.Sim.Unsubscribe(id)
		defer r.Sim.UnsubscribeTicks(tid)

		for {
			select {
			case e, ok := <-events:
				if !ok {
					return
				}
				if e.Category == engine.EventReset {
					r.RecordRun()
				}
				if err := r.DB.SaveEvents(r.Sim.RunID().String(), []engine.Event{e}); err != nil {
					slog.Warn("failed to record event", "category", e.Category, "error", err)
				}
			case res, ok := <-ticks:
				if !ok {
					return
				}
				r.RecordTick(res)
			case <-done:
				return
			}
		}
	}()
	return finished
}
