// Package archon implements the adjudicator: the omniscient referee that
// resolves one simulation cycle. A cycle runs through three nodes in order
// (perception, feasibility, adjudication) threading a shared CycleState.
package archon

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/geoscrai/universalis/pkg/agent"
	"github.com/geoscrai/universalis/pkg/feasibility"
	"github.com/geoscrai/universalis/pkg/llms"
	"github.com/geoscrai/universalis/pkg/logger"
	"github.com/geoscrai/universalis/pkg/memory"
	"github.com/geoscrai/universalis/pkg/model"
	"github.com/geoscrai/universalis/pkg/state"
	"github.com/geoscrai/universalis/pkg/stream"
)

// DefaultPerceptionRadius is the perception sphere radius in degrees.
const DefaultPerceptionRadius = 0.1

// CycleState is threaded through the three pipeline nodes.
type CycleState struct {
	World      *model.WorldState
	Intents    map[string]string
	Errors     map[string]string
	Reports    map[string]*feasibility.Report
	Perception map[string]*agent.Perception
	Summary    string
	Rationales []Rationale
}

// Rationale is the traceability record of one adjudication.
type Rationale struct {
	Cycle     int                            `json:"cycle"`
	Intents   map[string]string              `json:"intents"`
	Reports   map[string]*feasibility.Report `json:"feasibility_reports"`
	Errors    map[string]string              `json:"errors"`
	Summary   string                         `json:"summary"`
	Timestamp time.Time                      `json:"timestamp"`
}

// CycleResult is what RunCycle hands back to the engine.
type CycleResult struct {
	World      *model.WorldState
	Summary    string
	Rationales []Rationale
}

// Config tunes the Archon.
type Config struct {
	PerceptionRadius float64
}

// Archon orchestrates agent perception, feasibility checking, and
// adjudication for each cycle.
type Archon struct {
	llm              llms.LanguageModel
	store            *state.StateStore
	feasibility      *feasibility.Engine
	perceptionRadius float64
	logger           *slog.Logger

	bank   *memory.Bank
	events *stream.Stream

	// agents preserves per-actor instances across cycles; agent identity
	// is a correctness requirement, not a cache optimization.
	agents map[string]agent.Agent

	warnedNoMemory bool
}

// New builds an Archon over the given model and state store. store may be
// nil, which disables perception spheres and spatial feasibility.
func New(llm llms.LanguageModel, store *state.StateStore, cfg Config) (*Archon, error) {
	if llm == nil {
		return nil, fmt.Errorf("language model cannot be nil")
	}
	radius := cfg.PerceptionRadius
	if radius <= 0 {
		radius = DefaultPerceptionRadius
	}
	a := &Archon{
		llm:              llm,
		store:            store,
		feasibility:      feasibility.NewEngine(store),
		perceptionRadius: radius,
		logger:           logger.GetLogger(),
		agents:           make(map[string]agent.Agent),
	}
	a.logger.Info("Archon initialized", "model", llm.ModelName(), "perception_radius", radius)
	return a, nil
}

// SetMemorySystems injects the memory bank and event stream, normally called
// by the engine before the first tick.
func (a *Archon) SetMemorySystems(bank *memory.Bank, events *stream.Stream) {
	a.bank = bank
	a.events = events
	a.logger.Info("Archon connected to memory bank and stream")
}

// Feasibility exposes the adjudicator's feasibility engine.
func (a *Archon) Feasibility() *feasibility.Engine {
	return a.feasibility
}

// CheckFeasibility checks a single intent against the world state.
func (a *Archon) CheckFeasibility(intent string, ws *model.WorldState) *feasibility.Report {
	return a.feasibility.CheckFeasibility(intent, ws)
}

// ClearAgentCache drops every cached agent, resetting their state.
func (a *Archon) ClearAgentCache() {
	a.agents = make(map[string]agent.Agent)
	a.logger.Info("Agent cache cleared")
}

// RunCycle executes the full pipeline over the given world state and returns
// the updated world, the adjudication summary, and the rationale trail.
func (a *Archon) RunCycle(ctx context.Context, ws *model.WorldState) (*CycleResult, error) {
	if ws == nil {
		return nil, fmt.Errorf("world state cannot be nil")
	}
	if a.bank == nil && !a.warnedNoMemory {
		a.logger.Warn("Archon running without a memory bank; agents will not remember past cycles")
		a.warnedNoMemory = true
	}

	st := &CycleState{
		World:      ws,
		Intents:    map[string]string{},
		Errors:     map[string]string{},
		Reports:    map[string]*feasibility.Report{},
		Perception: map[string]*agent.Perception{},
	}

	a.perceptionNode(ctx, st)
	a.feasibilityNode(st)
	a.adjudicationNode(ctx, st)

	return &CycleResult{
		World:      st.World,
		Summary:    st.Summary,
		Rationales: st.Rationales,
	}, nil
}

// perceptionNode builds each actor's perception sphere and asks its agent for
// an intent. Agent failures are recorded per actor and do not stop the cycle.
func (a *Archon) perceptionNode(ctx context.Context, st *CycleState) {
	a.logger.Info("Node: actors perceiving", "cycle", st.World.Environment.Cycle)

	for _, actorID := range sortedActorIDs(st.World) {
		actor := st.World.Actors[actorID]
		perception := a.buildPerception(actorID, actor, st.World)
		st.Perception[actorID] = perception

		ag, err := a.getOrCreateAgent(actorID, actor)
		if err != nil {
			st.Errors[actorID] = fmt.Sprintf("Error in agent %s: %v", actorID, err)
			a.logger.Error("Agent creation failed", "actor", actorID, "error", err)
			continue
		}

		intent, err := ag.GenerateIntent(ctx, st.World, perception)
		if err != nil {
			st.Errors[actorID] = fmt.Sprintf("Error in agent %s: %v", actorID, err)
			a.logger.Error("Intent generation failed", "actor", actorID, "error", err)
			continue
		}
		st.Intents[actorID] = intent.Content
		a.logger.Info("Actor intent", "actor", actorID, "intent", truncate(intent.Content, 50))
	}
}

// feasibilityNode checks every non-errored intent.
func (a *Archon) feasibilityNode(st *CycleState) {
	a.logger.Info("Node: feasibility check")

	for _, actorID := range sortedKeys(st.Intents) {
		if _, errored := st.Errors[actorID]; errored {
			continue
		}
		report := a.feasibility.CheckFeasibility(st.Intents[actorID], st.World)
		st.Reports[actorID] = report
		if !report.Feasible {
			messages := make([]string, len(report.Violations))
			for i, v := range report.Violations {
				messages[i] = v.Message
			}
			a.logger.Warn("Intent infeasible", "actor", actorID, "violations", strings.Join(messages, "; "))
		}
	}
}

// adjudicationNode narrates the cycle with one model call and records the
// outcome in the world's global events, the stream, and the rationale trail.
func (a *Archon) adjudicationNode(ctx context.Context, st *CycleState) {
	a.logger.Info("Node: archon adjudicating")
	env := st.World.Environment

	var lines []string
	for _, actorID := range sortedKeys(st.Intents) {
		text := st.Intents[actorID]
		seen := st.Perception[actorID].Summary()
		if report := st.Reports[actorID]; report != nil && !report.Feasible {
			messages := make([]string, len(report.Violations))
			for i, v := range report.Violations {
				messages[i] = v.Message
			}
			lines = append(lines, fmt.Sprintf("%s [%s]: ATTEMPTED '%s' BUT FAILED due to: %s",
				actorID, seen, text, strings.Join(messages, "; ")))
		} else {
			lines = append(lines, fmt.Sprintf("%s [%s]: %s", actorID, seen, text))
		}
	}
	for _, actorID := range sortedKeys(st.Errors) {
		lines = append(lines, fmt.Sprintf("%s: ERROR - %s", actorID, st.Errors[actorID]))
	}

	prompt := a.buildAdjudicationPrompt(env, strings.Join(lines, "\n"))

	summary, err := a.llm.SampleText(ctx, prompt, llms.DefaultSampleOptions())
	if err != nil {
		summary = fmt.Sprintf("Archon Error: %v", err)
		a.logger.Error("Adjudication model call failed", "error", err)
	}

	// Replace rather than append in place so callers holding the old slice
	// keep seeing the pre-adjudication events.
	events := make([]string, 0, len(env.GlobalEvents)+1)
	events = append(events, env.GlobalEvents...)
	env.GlobalEvents = append(events, summary)
	st.Summary = summary

	if a.events != nil {
		a.events.AddAdjudication(summary, env.Cycle, map[string]any{
			"intents":             st.Intents,
			"feasibility_reports": st.Reports,
			"perception_context":  st.Perception,
			"errors":              st.Errors,
		})
	}

	st.Rationales = append(st.Rationales, Rationale{
		Cycle:     env.Cycle,
		Intents:   st.Intents,
		Reports:   st.Reports,
		Errors:    st.Errors,
		Summary:   summary,
		Timestamp: time.Now(),
	})
}

func (a *Archon) buildAdjudicationPrompt(env *model.Environment, intentsBlock string) string {
	recent := "None"
	if len(env.GlobalEvents) > 0 {
		tail := env.GlobalEvents
		if len(tail) > 3 {
			tail = tail[len(tail)-3:]
		}
		recent = strings.Join(tail, "; ")
	}
	return fmt.Sprintf(
		"You are the Archon, the omniscient referee of a simulation. "+
			"Adjudicate the cycle based on Actor Intents and Feasibility Reports. "+
			"1. If an action failed feasibility, describe the failure in the narrative. "+
			"2. If an actor had an error, note it but continue with other actors. "+
			"3. Respect each actor's spatial context. "+
			"4. Update the Global Events log and describe any environmental shifts (weather, etc).\n\n"+
			"Cycle: %d\nWeather: %s\nRecent Events: %s\n\nACTOR ACTIONS:\n%s\n\n"+
			"Generate the Adjudication Result:",
		env.Cycle, env.Weather, recent, intentsBlock)
}

// buildPerception assembles the perception sphere for one actor from the
// state store and the in-memory world.
func (a *Archon) buildPerception(actorID string, actor *model.Actor, ws *model.WorldState) *agent.Perception {
	perception := &agent.Perception{
		ControlledAssets: map[string]string{},
	}
	for _, assetID := range actor.Assets {
		if asset, ok := ws.Assets[assetID]; ok {
			perception.ControlledAssets[assetID] = asset.Status
		}
	}

	if a.store == nil || actor.Location == nil {
		return perception
	}

	records, err := a.store.GetEntitiesWithinDistance(
		actor.Location.Lon, actor.Location.Lat, a.perceptionRadius, "")
	if err != nil {
		a.logger.Warn("Perception query failed", "actor", actorID, "error", err)
	}
	for _, rec := range records {
		switch model.EntityType(rec.EntityType) {
		case model.EntityActor:
			if rec.ID != actorID {
				perception.NearbyActors = append(perception.NearbyActors, rec)
			}
		case model.EntityAsset:
			perception.NearbyAssets = append(perception.NearbyAssets, rec)
		}
	}

	terrain, err := a.store.GetTerrainAtPoint(actor.Location.Lon, actor.Location.Lat)
	if err != nil {
		a.logger.Warn("Terrain query failed", "actor", actorID, "error", err)
	}
	perception.Terrain = terrain

	return perception
}

// getOrCreateAgent returns the cached agent for an actor, creating it on
// first sight. The same instance is reused for the lifetime of the Archon.
func (a *Archon) getOrCreateAgent(actorID string, actor *model.Actor) (agent.Agent, error) {
	if ag, ok := a.agents[actorID]; ok {
		return ag, nil
	}
	ag, err := agent.New(actor, a.llm, a.bank, a.events)
	if err != nil {
		return nil, err
	}
	a.agents[actorID] = ag
	a.logger.Debug("Created agent", "actor", actorID, "resolution", string(actor.Resolution))
	return ag, nil
}

// sortedActorIDs fixes the actor processing order so identical inputs yield
// identical adjudication prompts.
func sortedActorIDs(ws *model.WorldState) []string {
	ids := make([]string, 0, len(ws.Actors))
	for id := range ws.Actors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
