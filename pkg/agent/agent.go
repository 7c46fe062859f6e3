// Package agent implements the actor runtimes. A macro agent reasons at the
// strategic level; a micro agent reasons at the individual level and
// additionally logs its intents to the event stream. Both retrieve scoped
// memories, prompt the language model, and record the produced intent as a
// private memory.
package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/geoscrai/universalis/pkg/llms"
	"github.com/geoscrai/universalis/pkg/logger"
	"github.com/geoscrai/universalis/pkg/memory"
	"github.com/geoscrai/universalis/pkg/model"
	"github.com/geoscrai/universalis/pkg/state"
	"github.com/geoscrai/universalis/pkg/stream"
)

// IntentMemoryImportance is the importance assigned to stored intents.
const IntentMemoryImportance = 0.5

// Perception is the slice of the world an actor perceives in one cycle:
// entities within the perception radius, the terrain under its feet, and the
// status of the assets it controls.
type Perception struct {
	NearbyActors     []state.EntityRecord `json:"nearby_actors"`
	NearbyAssets     []state.EntityRecord `json:"nearby_assets"`
	Terrain          *state.TerrainRecord `json:"terrain,omitempty"`
	ControlledAssets map[string]string    `json:"controlled_assets"`
}

// Summary renders the perception as a short line for adjudication prompts:
// terrain type plus up to three nearby actor names.
func (p *Perception) Summary() string {
	if p == nil {
		return "no perception data"
	}
	terrain := "open terrain"
	if p.Terrain != nil {
		terrain = p.Terrain.TerrainType
	}
	if len(p.NearbyActors) == 0 {
		return terrain + ", no actors nearby"
	}
	names := make([]string, 0, 3)
	for _, a := range p.NearbyActors {
		names = append(names, a.Name)
		if len(names) == 3 {
			break
		}
	}
	return fmt.Sprintf("%s, near %s", terrain, strings.Join(names, ", "))
}

// Agent generates one intent per cycle for its actor.
type Agent interface {
	ActorID() string
	GenerateIntent(ctx context.Context, ws *model.WorldState, perception *Perception) (*model.Intent, error)
}

// baseAgent carries the shared intent-generation flow.
type baseAgent struct {
	actor *model.Actor
	llm   llms.LanguageModel
	bank  *memory.Bank
}

// MacroAgent is the strategic-level actor runtime.
type MacroAgent struct {
	baseAgent
}

// NewMacroAgent builds a macro agent. bank may be nil (degraded mode without
// memory).
func NewMacroAgent(actor *model.Actor, llm llms.LanguageModel, bank *memory.Bank) (*MacroAgent, error) {
	if err := validateAgentArgs(actor, llm); err != nil {
		return nil, err
	}
	return &MacroAgent{baseAgent{actor: actor, llm: llm, bank: bank}}, nil
}

// ActorID returns the actor this agent speaks for.
func (a *MacroAgent) ActorID() string {
	return a.actor.ActorID
}

// GenerateIntent produces this cycle's intent and stores it as a private
// memory.
func (a *MacroAgent) GenerateIntent(ctx context.Context, ws *model.WorldState, perception *Perception) (*model.Intent, error) {
	return a.generate(ctx, ws, perception, nil)
}

// MicroAgent is the individual-level actor runtime. It behaves like a macro
// agent but also writes each intent to the event stream.
type MicroAgent struct {
	baseAgent
	stream *stream.Stream
}

// NewMicroAgent builds a micro agent. bank and eventStream may be nil.
func NewMicroAgent(actor *model.Actor, llm llms.LanguageModel, bank *memory.Bank, eventStream *stream.Stream) (*MicroAgent, error) {
	if err := validateAgentArgs(actor, llm); err != nil {
		return nil, err
	}
	return &MicroAgent{baseAgent: baseAgent{actor: actor, llm: llm, bank: bank}, stream: eventStream}, nil
}

// ActorID returns the actor this agent speaks for.
func (a *MicroAgent) ActorID() string {
	return a.actor.ActorID
}

// GenerateIntent produces this cycle's intent, stores it as a private memory,
// and logs an intent event to the stream.
func (a *MicroAgent) GenerateIntent(ctx context.Context, ws *model.WorldState, perception *Perception) (*model.Intent, error) {
	return a.generate(ctx, ws, perception, a.stream)
}

// New builds the agent matching the actor's resolution.
func New(actor *model.Actor, llm llms.LanguageModel, bank *memory.Bank, eventStream *stream.Stream) (Agent, error) {
	if actor != nil && actor.Resolution == model.ResolutionMicro {
		return NewMicroAgent(actor, llm, bank, eventStream)
	}
	return NewMacroAgent(actor, llm, bank)
}

func validateAgentArgs(actor *model.Actor, llm llms.LanguageModel) error {
	if actor == nil {
		return fmt.Errorf("actor cannot be nil")
	}
	if err := actor.Validate(); err != nil {
		return err
	}
	if llm == nil {
		return fmt.Errorf("agent %s: language model cannot be nil", actor.ActorID)
	}
	return nil
}

func (a *baseAgent) generate(ctx context.Context, ws *model.WorldState, perception *Perception, eventStream *stream.Stream) (*model.Intent, error) {
	if ws == nil {
		return nil, fmt.Errorf("agent %s: world state cannot be nil", a.actor.ActorID)
	}
	cycle := ws.Environment.Cycle

	memories := a.retrieveMemories(ctx, ws)
	prompt := a.buildPrompt(ws, perception, memories)

	content, err := a.llm.SampleText(ctx, prompt, llms.DefaultSampleOptions())
	if err != nil {
		return nil, fmt.Errorf("agent %s: sampling intent: %w", a.actor.ActorID, err)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("agent %s: model returned an empty intent", a.actor.ActorID)
	}

	if a.bank != nil {
		if _, err := a.bank.Add(ctx, content, memory.Metadata{
			Scope:      memory.ScopePrivate,
			OwnerID:    a.actor.ActorID,
			Cycle:      cycle,
			Importance: IntentMemoryImportance,
		}); err != nil {
			return nil, fmt.Errorf("agent %s: storing intent memory: %w", a.actor.ActorID, err)
		}
	}
	if eventStream != nil {
		eventStream.AddIntent(content, cycle, a.actor.ActorID)
	}

	return &model.Intent{
		ActorID:  a.actor.ActorID,
		Content:  content,
		Cycle:    cycle,
		Priority: 1.0,
	}, nil
}

// retrieveMemories queries the bank with the actor's role, objectives, and
// the latest global events. Retrieval failures degrade to no memories.
func (a *baseAgent) retrieveMemories(ctx context.Context, ws *model.WorldState) []string {
	if a.bank == nil {
		return nil
	}

	queryParts := []string{a.actor.Role}
	queryParts = append(queryParts, a.actor.Objectives...)
	queryParts = append(queryParts, lastN(ws.Environment.GlobalEvents, 3)...)
	query := strings.Join(queryParts, " ")

	filter := memory.NewScopeFilter(a.actor.ActorID, agentGroups(a.actor)...)
	memories, err := a.bank.RetrieveAssociative(ctx, query, 5, filter)
	if err != nil {
		logger.GetLogger().Warn("Memory retrieval failed", "actor", a.actor.ActorID, "error", err)
		return nil
	}
	return memories
}

func (a *baseAgent) buildPrompt(ws *model.WorldState, perception *Perception, memories []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, %s.\n", a.actor.ActorID, a.actor.Role)
	if a.actor.Description != "" {
		fmt.Fprintf(&b, "%s\n", a.actor.Description)
	}

	if len(a.actor.Objectives) > 0 {
		b.WriteString("\nYour objectives:\n")
		for _, obj := range a.actor.Objectives {
			fmt.Fprintf(&b, "- %s\n", obj)
		}
	}

	if perception != nil {
		if len(perception.ControlledAssets) > 0 {
			b.WriteString("\nAssets under your control:\n")
			for _, assetID := range a.actor.Assets {
				if status, ok := perception.ControlledAssets[assetID]; ok {
					fmt.Fprintf(&b, "- %s (status: %s)\n", assetID, status)
				}
			}
		}
		if len(perception.NearbyActors) > 0 {
			b.WriteString("\nNearby actors:\n")
			for _, rec := range perception.NearbyActors {
				fmt.Fprintf(&b, "- %s at distance %.4f°\n", rec.Name, rec.Distance)
			}
		}
		if len(perception.NearbyAssets) > 0 {
			b.WriteString("\nNearby assets:\n")
			for _, rec := range perception.NearbyAssets {
				fmt.Fprintf(&b, "- %s (%s) at distance %.4f°\n", rec.Name, rec.Status, rec.Distance)
			}
		}
		if perception.Terrain != nil {
			fmt.Fprintf(&b, "\nTerrain at your location: %s (%s)\n",
				perception.Terrain.Name, perception.Terrain.TerrainType)
		}
	} else if len(a.actor.Assets) > 0 {
		b.WriteString("\nAssets under your control:\n")
		for _, assetID := range a.actor.Assets {
			if asset, ok := ws.Assets[assetID]; ok {
				fmt.Fprintf(&b, "- %s (status: %s)\n", assetID, asset.Status)
			}
		}
	}

	fmt.Fprintf(&b, "\nCurrent situation (cycle %d, %s, weather: %s).\n",
		ws.Environment.Cycle, ws.Environment.Time, ws.Environment.Weather)
	if events := lastN(ws.Environment.GlobalEvents, 3); len(events) > 0 {
		b.WriteString("Recent events:\n")
		for _, ev := range events {
			fmt.Fprintf(&b, "- %s\n", ev)
		}
	}

	if len(memories) > 0 {
		b.WriteString("\nRelevant memories:\n")
		for _, m := range memories {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}

	b.WriteString("\nState your intent for this cycle in one short paragraph. " +
		"Be concrete about which assets you use and where they go.")
	return b.String()
}

// agentGroups reads the actor's group memberships from its attributes.
func agentGroups(actor *model.Actor) []string {
	raw, ok := actor.Attributes["groups"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		groups := make([]string, 0, len(v))
		for _, g := range v {
			if s, ok := g.(string); ok {
				groups = append(groups, s)
			}
		}
		return groups
	}
	return nil
}

func lastN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
