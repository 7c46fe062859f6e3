// Package model defines the core data types shared across the simulation:
// WorldState (the per-cycle ground truth), Actor, Asset, Environment, and
// Terrain. These types are the contract between the state store, the agents,
// and the Archon.
package model

import (
	"fmt"
	"time"
)

// ResolutionType selects the reasoning granularity of an actor's agent.
type ResolutionType string

const (
	// ResolutionMacro marks strategic, organizational-level actors.
	ResolutionMacro ResolutionType = "macro"
	// ResolutionMicro marks individual, social-level actors.
	ResolutionMicro ResolutionType = "micro"
)

// EntityType classifies rows in the entity table.
type EntityType string

const (
	EntityActor    EntityType = "actor"
	EntityAsset    EntityType = "asset"
	EntityTerrain  EntityType = "terrain"
	EntityLandmark EntityType = "landmark"
)

// TerrainType enumerates terrain categories that affect movement.
type TerrainType string

const (
	TerrainPlains    TerrainType = "plains"
	TerrainMountains TerrainType = "mountains"
	TerrainForest    TerrainType = "forest"
	TerrainWater     TerrainType = "water"
	TerrainUrban     TerrainType = "urban"
	TerrainDesert    TerrainType = "desert"
	TerrainRoad      TerrainType = "road"
)

// Location is a geographic point with optional elevation.
type Location struct {
	Lat       float64  `json:"lat" yaml:"lat"`
	Lon       float64  `json:"lon" yaml:"lon"`
	Elevation *float64 `json:"elevation,omitempty" yaml:"elevation,omitempty"`
}

// Validate checks that the coordinates are within geographic bounds.
func (l Location) Validate() error {
	if l.Lat < -90 || l.Lat > 90 {
		return fmt.Errorf("latitude %.4f out of range [-90, 90]", l.Lat)
	}
	if l.Lon < -180 || l.Lon > 180 {
		return fmt.Errorf("longitude %.4f out of range [-180, 180]", l.Lon)
	}
	return nil
}

// ToWKTPoint serializes the location as a WKT POINT (lon first).
func (l Location) ToWKTPoint() string {
	return fmt.Sprintf("POINT(%g %g)", l.Lon, l.Lat)
}

// Actor is an agent that can propose intents in the simulation.
type Actor struct {
	ActorID     string         `json:"actor_id" yaml:"actor_id"`
	Role        string         `json:"role" yaml:"role"`
	Description string         `json:"description" yaml:"description"`
	Resolution  ResolutionType `json:"resolution" yaml:"resolution"`
	Assets      []string       `json:"assets" yaml:"assets"`
	Objectives  []string       `json:"objectives" yaml:"objectives"`
	Location    *Location      `json:"location,omitempty" yaml:"location,omitempty"`
	Attributes  map[string]any `json:"attributes" yaml:"attributes"`
	Status      string         `json:"status" yaml:"status"`
}

// Validate rejects malformed actors at the model boundary.
func (a *Actor) Validate() error {
	if a.ActorID == "" {
		return fmt.Errorf("actor id cannot be empty")
	}
	if a.Role == "" {
		return fmt.Errorf("actor %s: role cannot be empty", a.ActorID)
	}
	if a.Location != nil {
		if err := a.Location.Validate(); err != nil {
			return fmt.Errorf("actor %s: %w", a.ActorID, err)
		}
	}
	return nil
}

// NewActor builds an actor with the defaults the rest of the system assumes
// (macro resolution, active status).
func NewActor(actorID, role string) *Actor {
	return &Actor{
		ActorID:    actorID,
		Role:       role,
		Resolution: ResolutionMacro,
		Assets:     []string{},
		Objectives: []string{},
		Attributes: map[string]any{},
		Status:     "active",
	}
}

// Asset is a resource or unit controlled by actors.
type Asset struct {
	AssetID    string             `json:"asset_id" yaml:"asset_id"`
	Name       string             `json:"name" yaml:"name"`
	AssetType  string             `json:"asset_type" yaml:"asset_type"`
	Location   map[string]float64 `json:"location" yaml:"location"`
	Attributes map[string]any     `json:"attributes" yaml:"attributes"`
	Status     string             `json:"status" yaml:"status"`
}

// LocationObj returns the asset's location as a Location, or nil when the
// location map lacks lat/lon keys.
func (a *Asset) LocationObj() *Location {
	lat, okLat := a.Location["lat"]
	lon, okLon := a.Location["lon"]
	if !okLat || !okLon {
		return nil
	}
	loc := &Location{Lat: lat, Lon: lon}
	if elev, ok := a.Location["elevation"]; ok {
		loc.Elevation = &elev
	}
	return loc
}

// Validate rejects malformed assets at the model boundary.
func (a *Asset) Validate() error {
	if a.AssetID == "" {
		return fmt.Errorf("asset id cannot be empty")
	}
	if loc := a.LocationObj(); loc != nil {
		if err := loc.Validate(); err != nil {
			return fmt.Errorf("asset %s: %w", a.AssetID, err)
		}
	}
	return nil
}

// Environment holds the global environmental state of a cycle.
type Environment struct {
	Cycle            int                `json:"cycle" yaml:"cycle"`
	Time             string             `json:"time" yaml:"time"`
	Weather          string             `json:"weather" yaml:"weather"`
	GlobalEvents     []string           `json:"global_events" yaml:"global_events"`
	TerrainModifiers map[string]float64 `json:"terrain_modifiers" yaml:"terrain_modifiers"`
}

// NewEnvironment returns an environment with the canonical defaults.
func NewEnvironment() *Environment {
	return &Environment{
		Time:             "00:00",
		Weather:          "Clear",
		GlobalEvents:     []string{},
		TerrainModifiers: map[string]float64{},
	}
}

// WorldState is the complete state of a simulation at one cycle. It is the
// ground truth persisted by the state store and consumed by agents and the
// Archon.
type WorldState struct {
	SimulationID string            `json:"simulation_id" yaml:"simulation_id"`
	Environment  *Environment      `json:"environment" yaml:"environment"`
	Actors       map[string]*Actor `json:"actors" yaml:"actors"`
	Assets       map[string]*Asset `json:"assets" yaml:"assets"`
	LastUpdated  time.Time         `json:"last_updated" yaml:"last_updated"`
	Metadata     map[string]any    `json:"metadata" yaml:"metadata"`
}

// NewWorldState builds an empty world for the given simulation.
func NewWorldState(simulationID string) *WorldState {
	return &WorldState{
		SimulationID: simulationID,
		Environment:  NewEnvironment(),
		Actors:       map[string]*Actor{},
		Assets:       map[string]*Asset{},
		LastUpdated:  time.Now(),
		Metadata:     map[string]any{},
	}
}

// Validate checks the snapshot invariants, including that every asset id
// referenced by an actor exists in the asset map.
func (w *WorldState) Validate() error {
	if w.SimulationID == "" {
		return fmt.Errorf("simulation id cannot be empty")
	}
	if w.Environment == nil {
		return fmt.Errorf("environment cannot be nil")
	}
	if w.Environment.Cycle < 0 {
		return fmt.Errorf("cycle %d cannot be negative", w.Environment.Cycle)
	}
	for id, actor := range w.Actors {
		if err := actor.Validate(); err != nil {
			return err
		}
		for _, assetID := range actor.Assets {
			if _, ok := w.Assets[assetID]; !ok {
				return fmt.Errorf("actor %s references unknown asset %s", id, assetID)
			}
		}
	}
	for _, asset := range w.Assets {
		if err := asset.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Intent is a proposal generated by an agent for one cycle.
type Intent struct {
	ActorID  string         `json:"actor_id"`
	Content  string         `json:"content"`
	Cycle    int            `json:"cycle"`
	Priority float64        `json:"priority"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Terrain is a polygonal region with passability and movement-cost
// attributes, used by the spatial constraint checks.
type Terrain struct {
	TerrainID    string         `json:"terrain_id" yaml:"terrain_id"`
	Name         string         `json:"name" yaml:"name"`
	TerrainType  TerrainType    `json:"terrain_type" yaml:"terrain_type"`
	GeometryWKT  string         `json:"geometry_wkt" yaml:"geometry_wkt"`
	MovementCost float64        `json:"movement_cost" yaml:"movement_cost"`
	Passable     bool           `json:"passable" yaml:"passable"`
	Attributes   map[string]any `json:"attributes" yaml:"attributes"`
}

// Validate rejects terrain with an empty id or a negative movement cost.
func (t *Terrain) Validate() error {
	if t.TerrainID == "" {
		return fmt.Errorf("terrain id cannot be empty")
	}
	if t.MovementCost < 0 {
		return fmt.Errorf("terrain %s: movement cost %.2f cannot be negative", t.TerrainID, t.MovementCost)
	}
	if t.GeometryWKT == "" {
		return fmt.Errorf("terrain %s: geometry cannot be empty", t.TerrainID)
	}
	return nil
}
