// Package scenario compiles seed documents into an initial WorldState. A
// static .world.json base is patched (RFC 6902) and then overlaid with a
// .scenario.json delta carrying the starting environment, actors, and assets.
package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/geoscrai/universalis/pkg/logger"
	"github.com/geoscrai/universalis/pkg/model"
)

// Scenario is the dynamic delta applied on top of a world base.
type Scenario struct {
	ScenarioID     string          `json:"scenario_id"`
	Name           string          `json:"name,omitempty"`
	WorldID        string          `json:"world_id,omitempty"`
	InitialCycle   int             `json:"initial_cycle,omitempty"`
	InitialTime    string          `json:"initial_time,omitempty"`
	InitialWeather string          `json:"initial_weather,omitempty"`
	InitialEvents  []string        `json:"initial_events,omitempty"`
	Actors         []*model.Actor  `json:"actors,omitempty"`
	Assets         []*model.Asset  `json:"assets,omitempty"`
	Patches        json.RawMessage `json:"patches,omitempty"`
	Variables      map[string]any  `json:"variables,omitempty"`
}

// Result is the outcome of a compilation.
type Result struct {
	WorldState *model.WorldState
	Warnings   []string
}

// Pipeline loads world bases and scenario deltas from disk and compiles
// them into world states.
type Pipeline struct {
	worldsDir    string
	scenariosDir string
}

// NewPipeline creates a pipeline over the given directories.
func NewPipeline(worldsDir, scenariosDir string) *Pipeline {
	return &Pipeline{worldsDir: worldsDir, scenariosDir: scenariosDir}
}

// Compile loads the scenario (and its world base, when named) and compiles
// the initial world state. worldID overrides the scenario's world reference
// when non-empty. A missing world base is a warning, not an error.
func (p *Pipeline) Compile(scenarioID, worldID string) (*Result, error) {
	sc, err := p.loadScenario(scenarioID)
	if err != nil {
		return nil, err
	}

	if worldID == "" {
		worldID = sc.WorldID
	}
	var warnings []string
	var base map[string]any
	if worldID != "" {
		base, err = p.loadWorld(worldID)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("could not load world %s, proceeding without base: %v", worldID, err))
			logger.GetLogger().Warn("World base unavailable", "world", worldID, "error", err)
		}
	}

	ws, err := CompileFromDocuments(base, sc, scenarioID)
	if err != nil {
		return nil, err
	}
	return &Result{WorldState: ws, Warnings: warnings}, nil
}

func (p *Pipeline) loadWorld(worldID string) (map[string]any, error) {
	data, err := os.ReadFile(filepath.Join(p.worldsDir, worldID+".world.json"))
	if err != nil {
		return nil, fmt.Errorf("reading world %s: %w", worldID, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing world %s: %w", worldID, err)
	}
	return doc, nil
}

func (p *Pipeline) loadScenario(scenarioID string) (*Scenario, error) {
	data, err := os.ReadFile(filepath.Join(p.scenariosDir, scenarioID+".scenario.json"))
	if err != nil {
		return nil, fmt.Errorf("reading scenario %s: %w", scenarioID, err)
	}
	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", scenarioID, err)
	}
	if sc.ScenarioID == "" {
		sc.ScenarioID = scenarioID
	}
	return &sc, nil
}

// CompileFromDocuments merges an in-memory world base with a scenario delta:
// the base is deep-copied, the scenario's JSON Patch operations are applied
// in order, then the scenario's explicit fields overlay the result.
func CompileFromDocuments(base map[string]any, sc *Scenario, simulationID string) (*model.WorldState, error) {
	if sc == nil {
		return nil, fmt.Errorf("scenario cannot be nil")
	}

	merged, err := applyPatches(base, sc.Patches)
	if err != nil {
		return nil, err
	}

	ws := model.NewWorldState(simulationID)
	ws.Environment.Cycle = sc.InitialCycle
	if sc.InitialTime != "" {
		ws.Environment.Time = sc.InitialTime
	} else {
		ws.Environment.Time = "08:00"
	}
	if sc.InitialWeather != "" {
		ws.Environment.Weather = sc.InitialWeather
	}
	if sc.InitialEvents != nil {
		ws.Environment.GlobalEvents = sc.InitialEvents
	}

	for _, actor := range sc.Actors {
		normalized := normalizeActor(actor)
		if err := normalized.Validate(); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", sc.ScenarioID, err)
		}
		ws.Actors[normalized.ActorID] = normalized
	}
	for _, asset := range sc.Assets {
		normalized := normalizeAsset(asset)
		if err := normalized.Validate(); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", sc.ScenarioID, err)
		}
		ws.Assets[normalized.AssetID] = normalized
	}

	// Everything the base (plus patches) carried beyond the overlaid fields
	// survives in metadata.
	for key, value := range merged {
		switch key {
		case "environment", "actors", "assets":
		default:
			ws.Metadata[key] = value
		}
	}
	ws.Metadata["scenario_id"] = sc.ScenarioID
	if sc.Name != "" {
		ws.Metadata["scenario_name"] = sc.Name
	}
	if sc.Variables != nil {
		ws.Metadata["variables"] = sc.Variables
	}

	if err := ws.Validate(); err != nil {
		return nil, fmt.Errorf("compiled world state invalid: %w", err)
	}
	return ws, nil
}

// applyPatches runs the RFC 6902 operations against the base document.
func applyPatches(base map[string]any, rawPatches json.RawMessage) (map[string]any, error) {
	if base == nil {
		base = map[string]any{}
	}
	if len(rawPatches) == 0 {
		return base, nil
	}

	doc, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("serializing world base: %w", err)
	}
	patch, err := jsonpatch.DecodePatch(rawPatches)
	if err != nil {
		return nil, fmt.Errorf("decoding patches: %w", err)
	}
	patched, err := patch.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("applying patches: %w", err)
	}

	var merged map[string]any
	if err := json.Unmarshal(patched, &merged); err != nil {
		return nil, fmt.Errorf("parsing patched world: %w", err)
	}
	return merged, nil
}

// normalizeActor fills the defaults a hand-written scenario file may omit.
func normalizeActor(actor *model.Actor) *model.Actor {
	out := *actor
	if out.Role == "" {
		out.Role = "Unknown"
	}
	if out.Resolution == "" {
		out.Resolution = model.ResolutionMacro
	}
	if out.Assets == nil {
		out.Assets = []string{}
	}
	if out.Objectives == nil {
		out.Objectives = []string{}
	}
	if out.Attributes == nil {
		out.Attributes = map[string]any{}
	}
	if out.Status == "" {
		out.Status = "active"
	}
	return &out
}

// normalizeAsset fills the defaults a hand-written scenario file may omit.
func normalizeAsset(asset *model.Asset) *model.Asset {
	out := *asset
	if out.Name == "" {
		out.Name = "Unknown"
	}
	if out.AssetType == "" {
		out.AssetType = "Unknown"
	}
	if out.Location == nil {
		out.Location = map[string]float64{}
	}
	if out.Attributes == nil {
		out.Attributes = map[string]any{}
	}
	if out.Status == "" {
		out.Status = "active"
	}
	return &out
}
