// Package observation routes structured observations into agent memory and
// the event stream. Observations carry a type and a priority; priority maps
// to memory importance. A processor can also diff two world states into
// observations (new events, weather shifts, asset status changes).
package observation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/geoscrai/universalis/pkg/logger"
	"github.com/geoscrai/universalis/pkg/memory"
	"github.com/geoscrai/universalis/pkg/model"
	"github.com/geoscrai/universalis/pkg/stream"
)

// Type classifies observations.
type Type string

const (
	TypeEnvironment   Type = "environment"
	TypeActorAction   Type = "actor_action"
	TypeAssetStatus   Type = "asset_status"
	TypeEvent         Type = "event"
	TypeCommunication Type = "communication"
	TypeSystem        Type = "system"
)

// Priority orders observations and maps to memory importance.
type Priority string

const (
	PriorityCritical   Priority = "critical"
	PriorityHigh       Priority = "high"
	PriorityMedium     Priority = "medium"
	PriorityLow        Priority = "low"
	PriorityBackground Priority = "background"
)

// rank returns the priority's position for ordering; higher is more urgent.
func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	case PriorityBackground:
		return 0
	}
	return 2
}

// Importance maps the priority to a memory importance score.
func (p Priority) Importance() float64 {
	switch p {
	case PriorityCritical:
		return 0.9
	case PriorityHigh:
		return 0.7
	case PriorityMedium:
		return 0.5
	case PriorityLow:
		return 0.4
	case PriorityBackground:
		return 0.2
	}
	return 0.5
}

// Observation is a single observed fact.
type Observation struct {
	ObservationID string         `json:"observation_id"`
	Content       string         `json:"content"`
	Type          Type           `json:"obs_type"`
	Priority      Priority       `json:"priority"`
	SourceID      string         `json:"source_id,omitempty"`
	TargetIDs     []string       `json:"target_ids,omitempty"`
	Cycle         int            `json:"cycle"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Filter selects observations by type, minimum priority, source, or target.
type Filter struct {
	Types       []Type
	MinPriority Priority
	SourceIDs   []string
	TargetIDs   []string
}

// Matches reports whether the observation passes the filter.
func (f *Filter) Matches(obs Observation) bool {
	if len(f.Types) > 0 && !containsType(f.Types, obs.Type) {
		return false
	}
	if f.MinPriority != "" && obs.Priority.rank() < f.MinPriority.rank() {
		return false
	}
	if len(f.SourceIDs) > 0 && !containsString(f.SourceIDs, obs.SourceID) {
		return false
	}
	if len(f.TargetIDs) > 0 {
		hit := false
		for _, target := range obs.TargetIDs {
			if containsString(f.TargetIDs, target) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// Handler is called for every observation as it is added.
type Handler func(Observation)

// Processor collects observations, fans them out to handlers, and stores
// them in the memory bank and event stream.
type Processor struct {
	bank      *memory.Bank
	events    *stream.Stream
	autoStore bool

	pending  []Observation
	filters  map[string]*Filter
	handlers []Handler
}

// NewProcessor builds a processor; bank and events may be nil. autoStore
// pushes every added observation into the memory systems.
func NewProcessor(bank *memory.Bank, events *stream.Stream, autoStore bool) *Processor {
	return &Processor{
		bank:      bank,
		events:    events,
		autoStore: autoStore,
		filters:   map[string]*Filter{},
	}
}

// Add records an observation, invokes the handlers, and (when auto-store is
// on) writes it to memory and the stream. An observation with targets
// becomes a private memory per target; an untargeted one is public.
func (p *Processor) Add(ctx context.Context, obs Observation) Observation {
	if obs.ObservationID == "" {
		obs.ObservationID = uuid.NewString()
	}
	if obs.Priority == "" {
		obs.Priority = PriorityMedium
	}
	if obs.Timestamp.IsZero() {
		obs.Timestamp = time.Now()
	}
	p.pending = append(p.pending, obs)

	for _, handler := range p.handlers {
		handler(obs)
	}

	if p.autoStore {
		p.store(ctx, obs)
	}
	return obs
}

// RegisterHandler adds a callback invoked for every observation.
func (p *Processor) RegisterHandler(handler Handler) {
	p.handlers = append(p.handlers, handler)
}

// RegisterFilter stores a named filter for ForActor queries.
func (p *Processor) RegisterFilter(name string, filter *Filter) {
	p.filters[name] = filter
}

func (p *Processor) store(ctx context.Context, obs Observation) {
	if p.bank != nil {
		importance := obs.Priority.Importance()
		if len(obs.TargetIDs) > 0 {
			for _, targetID := range obs.TargetIDs {
				if _, err := p.bank.Add(ctx, obs.Content, memory.Metadata{
					Scope:      memory.ScopePrivate,
					OwnerID:    targetID,
					Cycle:      obs.Cycle,
					Importance: importance,
				}); err != nil {
					logger.GetLogger().Warn("Storing observation failed", "target", targetID, "error", err)
				}
			}
		} else {
			if _, err := p.bank.Add(ctx, obs.Content, memory.Metadata{
				Scope:      memory.ScopePublic,
				Cycle:      obs.Cycle,
				Importance: importance,
			}); err != nil {
				logger.GetLogger().Warn("Storing observation failed", "error", err)
			}
		}
	}

	if p.events != nil {
		p.events.AddEvent(stream.EventObservation, obs.Content, obs.Cycle, obs.SourceID, map[string]any{
			"observation_id": obs.ObservationID,
			"obs_type":       string(obs.Type),
			"priority":       string(obs.Priority),
			"target_ids":     obs.TargetIDs,
		}, nil)
	}
}

// ForActor returns pending observations relevant to the actor (targeted at
// it, or untargeted), optionally through a named filter, ordered by
// descending priority. limit <= 0 returns all.
func (p *Processor) ForActor(actorID, filterName string, limit int) []Observation {
	filter := p.filters[filterName]

	var relevant []Observation
	for _, obs := range p.pending {
		if len(obs.TargetIDs) > 0 && !containsString(obs.TargetIDs, actorID) {
			continue
		}
		if filter != nil && !filter.Matches(obs) {
			continue
		}
		relevant = append(relevant, obs)
	}

	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].Priority.rank() > relevant[j].Priority.rank()
	})
	if limit > 0 && len(relevant) > limit {
		relevant = relevant[:limit]
	}
	return relevant
}

// ProcessWorldStateChange diffs two world states and emits observations for
// new global events, weather changes, and asset status transitions.
func (p *Processor) ProcessWorldStateChange(ctx context.Context, oldState, newState *model.WorldState, cycle int) []Observation {
	var observations []Observation

	known := make(map[string]bool, len(oldState.Environment.GlobalEvents))
	for _, event := range oldState.Environment.GlobalEvents {
		known[event] = true
	}
	for _, event := range newState.Environment.GlobalEvents {
		if !known[event] {
			observations = append(observations, p.Add(ctx, Observation{
				Content:  event,
				Type:     TypeEvent,
				Priority: PriorityHigh,
				SourceID: "archon",
				Cycle:    cycle,
			}))
		}
	}

	if oldState.Environment.Weather != newState.Environment.Weather {
		observations = append(observations, p.Add(ctx, Observation{
			Content:  fmt.Sprintf("Weather changed to: %s", newState.Environment.Weather),
			Type:     TypeEnvironment,
			Priority: PriorityMedium,
			SourceID: "gaia",
			Cycle:    cycle,
		}))
	}

	for assetID, newAsset := range newState.Assets {
		oldAsset, ok := oldState.Assets[assetID]
		if !ok || oldAsset.Status == newAsset.Status {
			continue
		}
		observations = append(observations, p.Add(ctx, Observation{
			Content:  fmt.Sprintf("%s status: %s -> %s", newAsset.Name, oldAsset.Status, newAsset.Status),
			Type:     TypeAssetStatus,
			Priority: PriorityHigh,
			SourceID: assetID,
			Cycle:    cycle,
		}))
	}

	return observations
}

// ClearPending drops the pending observation list.
func (p *Processor) ClearPending() {
	p.pending = nil
}

// PendingCount returns the number of pending observations.
func (p *Processor) PendingCount() int {
	return len(p.pending)
}

func containsType(types []Type, t Type) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func containsString(items []string, s string) bool {
	for _, candidate := range items {
		if candidate == s {
			return true
		}
	}
	return false
}
