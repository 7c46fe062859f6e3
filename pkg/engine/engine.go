// Package engine drives the simulation clock. Each tick loads the latest
// snapshot, hands it to the attached Archon for adjudication, and persists
// the result. The loop supports cooperative pause/resume and clean
// cancellation.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/geoscrai/universalis/pkg/archon"
	"github.com/geoscrai/universalis/pkg/logger"
	"github.com/geoscrai/universalis/pkg/memory"
	"github.com/geoscrai/universalis/pkg/model"
	"github.com/geoscrai/universalis/pkg/state"
	"github.com/geoscrai/universalis/pkg/stream"
)

// DefaultTickInterval is the pause between ticks in RunLoop.
const DefaultTickInterval = 1000 * time.Millisecond

// Adjudicator is what the engine requires of an attached archon.
type Adjudicator interface {
	SetMemorySystems(bank *memory.Bank, events *stream.Stream)
	RunCycle(ctx context.Context, ws *model.WorldState) (*archon.CycleResult, error)
}

// StepResult reports the outcome of one tick.
type StepResult struct {
	Cycle   int    `json:"cycle"`
	Status  string `json:"status"`
	Summary string `json:"summary"`
}

// Options configures a new engine.
type Options struct {
	// DBPath is the SQLite file backing the state store.
	DBPath string
	// Bank is the associative memory shared with the archon and agents.
	// A nil bank is a supported degraded mode.
	Bank *memory.Bank
	// Events is the event stream; created fresh when nil.
	Events *stream.Stream
	// TickInterval between RunLoop ticks; defaults to one second.
	TickInterval time.Duration
	// PerceptionRadius for GetEntitiesNear, in degrees.
	PerceptionRadius float64
}

// Engine is the master simulation clock for one simulation id.
type Engine struct {
	simID            string
	store            *state.StateStore
	bank             *memory.Bank
	events           *stream.Stream
	tickInterval     time.Duration
	perceptionRadius float64
	logger           *slog.Logger

	mu      sync.Mutex
	archon  Adjudicator
	steps   int
	running bool
	paused  bool
	gate    chan struct{} // closed = not paused
}

// New opens the state store and restores the cycle counter from the latest
// persisted snapshot.
func New(simID string, opts Options) (*Engine, error) {
	if simID == "" {
		return nil, fmt.Errorf("simulation id cannot be empty")
	}
	store, err := state.NewStateStore(opts.DBPath, simID, false)
	if err != nil {
		return nil, fmt.Errorf("initializing state store: %w", err)
	}

	steps, err := store.GetCurrentCycle()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("restoring cycle counter: %w", err)
	}

	events := opts.Events
	if events == nil {
		events = stream.NewStream(simID, 0)
	}
	tickInterval := opts.TickInterval
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	perceptionRadius := opts.PerceptionRadius
	if perceptionRadius <= 0 {
		perceptionRadius = archon.DefaultPerceptionRadius
	}

	gate := make(chan struct{})
	close(gate)

	e := &Engine{
		simID:            simID,
		store:            store,
		bank:             opts.Bank,
		events:           events,
		tickInterval:     tickInterval,
		perceptionRadius: perceptionRadius,
		logger:           logger.GetLogger(),
		steps:            steps,
		gate:             gate,
	}
	e.logger.Info("Engine initialized", "simulation", simID, "cycle", steps)
	return e, nil
}

// AttachArchon wires the adjudicator in and injects the memory systems.
// Required before productive ticking.
func (e *Engine) AttachArchon(a Adjudicator) error {
	if a == nil {
		return fmt.Errorf("archon cannot be nil")
	}
	e.mu.Lock()
	e.archon = a
	e.mu.Unlock()
	a.SetMemorySystems(e.bank, e.events)
	e.logger.Info("Archon attached", "simulation", e.simID)
	return nil
}

// SimulationID returns the simulation this engine drives.
func (e *Engine) SimulationID() string {
	return e.simID
}

// Steps returns the current cycle counter.
func (e *Engine) Steps() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.steps
}

// Bank returns the engine's memory bank (may be nil).
func (e *Engine) Bank() *memory.Bank {
	return e.bank
}

// Events returns the engine's event stream.
func (e *Engine) Events() *stream.Stream {
	return e.events
}

// Store returns the engine's state store.
func (e *Engine) Store() *state.StateStore {
	return e.store
}

// GetCurrentState fetches the latest world state.
func (e *Engine) GetCurrentState() (*model.WorldState, error) {
	return e.store.GetWorldState(nil)
}

// SaveAdjudicatedState stamps and persists the adjudicated state.
func (e *Engine) SaveAdjudicatedState(ws *model.WorldState) error {
	ws.LastUpdated = time.Now()
	if err := e.store.SaveWorldState(ws); err != nil {
		return err
	}
	e.logger.Info("Cycle adjudicated and saved", "cycle", ws.Environment.Cycle)
	return nil
}

// Step performs one full tick: wait out a pause, advance the cycle, load or
// synthesize the world, adjudicate, persist. Adjudication and persistence
// failures are absorbed so the clock keeps advancing; only cancellation
// while paused is returned as an error.
func (e *Engine) Step(ctx context.Context) (*StepResult, error) {
	e.mu.Lock()
	gate := e.gate
	e.mu.Unlock()
	select {
	case <-gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	e.mu.Lock()
	e.steps++
	steps := e.steps
	a := e.archon
	e.mu.Unlock()

	ws, err := e.GetCurrentState()
	if err != nil {
		e.logger.Error("Loading world state failed", "error", err)
		ws = nil
	}
	if ws != nil {
		ws.Environment.Cycle = steps
	} else {
		ws = model.NewWorldState(e.simID)
		ws.Environment.Cycle = steps
		ws.Environment.Time = time.Now().Format("15:04")
	}

	e.logger.Info("Triggering cognitive bridge", "cycle", steps)

	summary := "No summary provided"
	final := ws
	if a != nil {
		result, err := a.RunCycle(ctx, ws)
		if err != nil {
			e.logger.Error("Error during Archon adjudication", "error", err)
			summary = fmt.Sprintf("Adjudication error: %v", err)
		} else {
			final = result.World
			if result.Summary != "" {
				summary = result.Summary
			}
		}
	} else {
		e.logger.Warn("No Archon attached, passing world state through unchanged")
		summary = "No adjudication (Archon not attached)"
	}

	if err := e.SaveAdjudicatedState(final); err != nil {
		e.logger.Error("Error saving state", "error", err)
	}

	return &StepResult{Cycle: steps, Status: "Adjudicated", Summary: summary}, nil
}

// RunLoop ticks repeatedly until Stop is called or ctx is cancelled. The
// current tick always runs to completion before the loop exits.
func (e *Engine) RunLoop(ctx context.Context) error {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.logger.Info("Starting simulation loop", "interval", e.tickInterval)
	for {
		e.mu.Lock()
		running := e.running
		e.mu.Unlock()
		if !running {
			return nil
		}

		result, err := e.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				e.logger.Info("Simulation loop cancelled")
				return nil
			}
			return err
		}
		e.logger.Info("Tick complete", "cycle", result.Cycle, "status", result.Status)

		select {
		case <-time.After(e.tickInterval):
		case <-ctx.Done():
			e.logger.Info("Simulation loop cancelled")
			return nil
		}
	}
}

// Running reports whether the loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Paused reports whether the pause gate is cleared.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// Pause blocks further ticks after the current one completes.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.paused {
		return
	}
	e.paused = true
	e.gate = make(chan struct{})
	e.logger.Info("Simulation paused")
}

// Resume releases the pause gate.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.paused {
		return
	}
	e.paused = false
	close(e.gate)
	e.logger.Info("Simulation resumed")
}

// Stop ends the run loop after the current tick.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	e.logger.Info("Simulation stop requested")
}

// Reset clears all persisted simulation data and rewinds the clock.
func (e *Engine) Reset() error {
	if err := e.store.ClearSimulation(); err != nil {
		return err
	}
	e.mu.Lock()
	e.steps = 0
	e.mu.Unlock()
	e.logger.Info("Engine reset", "simulation", e.simID)
	return nil
}

// Shutdown stops the loop and closes the state store.
func (e *Engine) Shutdown() error {
	e.Stop()
	err := e.store.Close()
	e.logger.Info("Engine shutdown complete", "simulation", e.simID)
	return err
}

// GetEntitiesNear queries the perception sphere around a point.
// radiusDegrees <= 0 uses the configured perception radius.
func (e *Engine) GetEntitiesNear(lon, lat, radiusDegrees float64, entityType string) ([]state.EntityRecord, error) {
	if radiusDegrees <= 0 {
		radiusDegrees = e.perceptionRadius
	}
	return e.store.GetEntitiesWithinDistance(lon, lat, radiusDegrees, entityType)
}

// CheckMovementFeasible checks the straight path between two points,
// returning feasibility, a reason, and the movement cost (infinite when
// blocked).
func (e *Engine) CheckMovementFeasible(startLon, startLat, endLon, endLat float64) (bool, string, float64, error) {
	blocked, blocker, err := e.store.CheckPathBlocked(startLon, startLat, endLon, endLat)
	if err != nil {
		return false, "", 0, err
	}
	if blocked {
		return false, fmt.Sprintf("Path blocked by %s", blocker), math.Inf(1), nil
	}
	cost, err := e.store.CalculatePathCost(startLon, startLat, endLon, endLat)
	if err != nil {
		return false, "", 0, err
	}
	return true, "Path clear", cost, nil
}
