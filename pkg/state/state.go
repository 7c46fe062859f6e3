// Package state persists the physical world state in SQLite and answers the
// spatial queries the perception and feasibility layers depend on. Entity and
// terrain coordinates are stored as lon/lat columns; polygon geometry is kept
// as WKT and evaluated in Go.
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/geoscrai/universalis/pkg/geo"
	"github.com/geoscrai/universalis/pkg/logger"
	"github.com/geoscrai/universalis/pkg/model"
)

const createEntitiesTable = `
CREATE TABLE IF NOT EXISTS entities (
	id TEXT NOT NULL,
	simulation_id TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT DEFAULT '',
	lon REAL,
	lat REAL,
	properties TEXT DEFAULT '{}',
	status TEXT DEFAULT 'active',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (simulation_id, id)
);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(simulation_id, entity_type);
`

const createEnvironmentTable = `
CREATE TABLE IF NOT EXISTS environment (
	id TEXT PRIMARY KEY,
	simulation_id TEXT NOT NULL,
	cycle INTEGER NOT NULL DEFAULT 0,
	time_of_day TEXT NOT NULL DEFAULT '00:00',
	weather TEXT NOT NULL DEFAULT 'Clear',
	global_events TEXT DEFAULT '[]',
	terrain_modifiers TEXT DEFAULT '{}',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

const createTerrainTable = `
CREATE TABLE IF NOT EXISTS terrain (
	id TEXT NOT NULL,
	simulation_id TEXT NOT NULL,
	name TEXT NOT NULL,
	terrain_type TEXT NOT NULL,
	geometry_wkt TEXT NOT NULL,
	movement_cost REAL DEFAULT 1.0,
	passable INTEGER DEFAULT 1,
	properties TEXT DEFAULT '{}',
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (simulation_id, id)
);
`

const createSnapshotsTable = `
CREATE TABLE IF NOT EXISTS world_state_snapshots (
	id TEXT PRIMARY KEY,
	simulation_id TEXT NOT NULL,
	cycle INTEGER NOT NULL,
	state_json TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_snapshots_cycle ON world_state_snapshots(simulation_id, cycle);
`

// EntityRecord is a row returned by spatial entity queries.
type EntityRecord struct {
	ID         string         `json:"id"`
	EntityType string         `json:"entity_type"`
	Name       string         `json:"name"`
	Lon        float64        `json:"lon"`
	Lat        float64        `json:"lat"`
	Distance   float64        `json:"distance"`
	Properties map[string]any `json:"properties"`
	Status     string         `json:"status"`
}

// TerrainRecord is the terrain information returned at a queried point.
type TerrainRecord struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	TerrainType  string         `json:"terrain_type"`
	MovementCost float64        `json:"movement_cost"`
	Passable     bool           `json:"passable"`
	Properties   map[string]any `json:"properties"`
}

// StateStore is the SQLite-backed world state manager for one simulation.
type StateStore struct {
	db           *sql.DB
	simulationID string
	readOnly     bool
	logger       *slog.Logger
}

// NewStateStore opens (and if needed creates) the database at dbPath and
// initializes the schema. A read-only store skips schema creation and rejects
// writes at the SQLite level.
func NewStateStore(dbPath, simulationID string, readOnly bool) (*StateStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if simulationID == "" {
		return nil, fmt.Errorf("simulation id cannot be empty")
	}

	if !readOnly {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	dsn := dbPath + "?_busy_timeout=5000&_journal_mode=WAL"
	if readOnly {
		dsn += "&mode=ro"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &StateStore{
		db:           db,
		simulationID: simulationID,
		readOnly:     readOnly,
		logger:       logger.GetLogger(),
	}

	if !readOnly {
		if err := s.initSchema(); err != nil {
			db.Close()
			return nil, fmt.Errorf("initializing schema: %w", err)
		}
	}

	s.logger.Info("State store initialized", "path", dbPath, "simulation", simulationID)
	return s, nil
}

func (s *StateStore) initSchema() error {
	for _, stmt := range []string{
		createEntitiesTable,
		createEnvironmentTable,
		createTerrainTable,
		createSnapshotsTable,
	} {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SimulationID returns the simulation this store is scoped to.
func (s *StateStore) SimulationID() string {
	return s.simulationID
}

// SaveWorldState persists a complete snapshot plus the denormalized entity
// and environment rows, all in one transaction.
func (s *StateStore) SaveWorldState(ws *model.WorldState) error {
	if s.readOnly {
		return fmt.Errorf("state store is read-only")
	}
	if ws == nil {
		return fmt.Errorf("world state cannot be nil")
	}
	if err := ws.Validate(); err != nil {
		return fmt.Errorf("invalid world state: %w", err)
	}

	cycle := ws.Environment.Cycle
	stateJSON, err := json.Marshal(ws)
	if err != nil {
		return fmt.Errorf("serializing world state: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	snapshotID := fmt.Sprintf("%s_cycle_%d", s.simulationID, cycle)
	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO world_state_snapshots (id, simulation_id, cycle, state_json)
		VALUES (?, ?, ?, ?)`,
		snapshotID, s.simulationID, cycle, string(stateJSON)); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	globalEvents, _ := json.Marshal(ws.Environment.GlobalEvents)
	terrainMods, _ := json.Marshal(ws.Environment.TerrainModifiers)
	envID := s.simulationID + "_env"
	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO environment
		(id, simulation_id, cycle, time_of_day, weather, global_events, terrain_modifiers, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		envID, s.simulationID, cycle, ws.Environment.Time, ws.Environment.Weather,
		string(globalEvents), string(terrainMods)); err != nil {
		return fmt.Errorf("saving environment: %w", err)
	}

	for actorID, actor := range ws.Actors {
		props := map[string]any{
			"role":       actor.Role,
			"resolution": string(actor.Resolution),
			"assets":     actor.Assets,
			"objectives": actor.Objectives,
			"attributes": actor.Attributes,
		}
		if err := upsertEntity(tx, s.simulationID, actorID, string(model.EntityActor),
			actor.Role, actor.Description, actor.Location, props, actor.Status); err != nil {
			return fmt.Errorf("saving actor %s: %w", actorID, err)
		}
	}

	for assetID, asset := range ws.Assets {
		props := map[string]any{
			"asset_type": asset.AssetType,
			"attributes": asset.Attributes,
		}
		if err := upsertEntity(tx, s.simulationID, assetID, string(model.EntityAsset),
			asset.Name, "", asset.LocationObj(), props, asset.Status); err != nil {
			return fmt.Errorf("saving asset %s: %w", assetID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing world state: %w", err)
	}

	s.logger.Info("World state saved", "cycle", cycle)
	return nil
}

func upsertEntity(tx *sql.Tx, simulationID, entityID, entityType, name, description string,
	loc *model.Location, properties map[string]any, status string) error {
	propsJSON, err := json.Marshal(properties)
	if err != nil {
		return fmt.Errorf("serializing properties: %w", err)
	}

	var lon, lat any
	if loc != nil {
		lon, lat = loc.Lon, loc.Lat
	}
	_, err = tx.Exec(`
		INSERT OR REPLACE INTO entities
		(id, simulation_id, entity_type, name, description, lon, lat, properties, status, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		entityID, simulationID, entityType, name, description, lon, lat, string(propsJSON), status)
	return err
}

// GetWorldState returns the snapshot for the given cycle, or the latest
// snapshot when cycle is nil. When no snapshot exists the state is
// reconstructed from the entity and environment tables; if those are empty
// too, (nil, nil) is returned.
func (s *StateStore) GetWorldState(cycle *int) (*model.WorldState, error) {
	var row *sql.Row
	if cycle != nil {
		row = s.db.QueryRow(`
			SELECT state_json FROM world_state_snapshots
			WHERE simulation_id = ? AND cycle = ?
			LIMIT 1`, s.simulationID, *cycle)
	} else {
		row = s.db.QueryRow(`
			SELECT state_json FROM world_state_snapshots
			WHERE simulation_id = ?
			ORDER BY cycle DESC
			LIMIT 1`, s.simulationID)
	}

	var stateJSON string
	err := row.Scan(&stateJSON)
	switch {
	case err == sql.ErrNoRows:
		return s.reconstructWorldState()
	case err != nil:
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	var ws model.WorldState
	if err := json.Unmarshal([]byte(stateJSON), &ws); err != nil {
		return nil, fmt.Errorf("deserializing snapshot: %w", err)
	}
	return &ws, nil
}

// reconstructWorldState rebuilds a WorldState from the denormalized tables
// when no snapshot row exists.
func (s *StateStore) reconstructWorldState() (*model.WorldState, error) {
	row := s.db.QueryRow(`
		SELECT cycle, time_of_day, weather, global_events, terrain_modifiers
		FROM environment
		WHERE simulation_id = ?
		ORDER BY cycle DESC
		LIMIT 1`, s.simulationID)

	env := model.NewEnvironment()
	var globalEvents, terrainMods string
	err := row.Scan(&env.Cycle, &env.Time, &env.Weather, &globalEvents, &terrainMods)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("loading environment: %w", err)
	}
	if err := json.Unmarshal([]byte(globalEvents), &env.GlobalEvents); err != nil {
		env.GlobalEvents = []string{}
	}
	if err := json.Unmarshal([]byte(terrainMods), &env.TerrainModifiers); err != nil {
		env.TerrainModifiers = map[string]float64{}
	}

	ws := model.NewWorldState(s.simulationID)
	ws.Environment = env

	rows, err := s.db.Query(`
		SELECT id, entity_type, name, description, lon, lat, properties, status
		FROM entities
		WHERE simulation_id = ? AND entity_type IN ('actor', 'asset') AND status != 'deleted'`,
		s.simulationID)
	if err != nil {
		return nil, fmt.Errorf("loading entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, entityType, name, description, propsJSON, status string
		var lon, lat sql.NullFloat64
		if err := rows.Scan(&id, &entityType, &name, &description, &lon, &lat, &propsJSON, &status); err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		var props map[string]any
		if err := json.Unmarshal([]byte(propsJSON), &props); err != nil {
			props = map[string]any{}
		}

		switch model.EntityType(entityType) {
		case model.EntityActor:
			actor := model.NewActor(id, stringProp(props, "role", name))
			actor.Description = description
			actor.Resolution = model.ResolutionType(stringProp(props, "resolution", string(model.ResolutionMacro)))
			actor.Assets = stringSliceProp(props, "assets")
			actor.Objectives = stringSliceProp(props, "objectives")
			actor.Attributes = mapProp(props, "attributes")
			actor.Status = status
			if lon.Valid && lat.Valid {
				actor.Location = &model.Location{Lat: lat.Float64, Lon: lon.Float64}
			}
			ws.Actors[id] = actor
		case model.EntityAsset:
			asset := &model.Asset{
				AssetID:    id,
				Name:       name,
				AssetType:  stringProp(props, "asset_type", "Unknown"),
				Location:   map[string]float64{},
				Attributes: mapProp(props, "attributes"),
				Status:     status,
			}
			if lon.Valid && lat.Valid {
				asset.Location = map[string]float64{"lat": lat.Float64, "lon": lon.Float64}
			}
			ws.Assets[id] = asset
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}

	ws.LastUpdated = time.Now()
	return ws, nil
}

// GetCurrentCycle returns the latest cycle recorded for this simulation, or 0
// when nothing was saved yet.
func (s *StateStore) GetCurrentCycle() (int, error) {
	var cycle sql.NullInt64
	err := s.db.QueryRow(`
		SELECT MAX(cycle) FROM environment WHERE simulation_id = ?`,
		s.simulationID).Scan(&cycle)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("querying current cycle: %w", err)
	}
	if !cycle.Valid {
		return 0, nil
	}
	return int(cycle.Int64), nil
}

// GetEntitiesWithinDistance returns non-deleted entities with a location
// within distanceDegrees of the center, ordered by ascending distance.
// entityType filters the result when non-empty.
func (s *StateStore) GetEntitiesWithinDistance(centerLon, centerLat, distanceDegrees float64, entityType string) ([]EntityRecord, error) {
	query := `
		SELECT id, entity_type, name, lon, lat, properties, status
		FROM entities
		WHERE simulation_id = ? AND lon IS NOT NULL AND lat IS NOT NULL AND status != 'deleted'`
	args := []any{s.simulationID}
	if entityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, entityType)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()

	center := geo.Point{Lon: centerLon, Lat: centerLat}
	var records []EntityRecord
	for rows.Next() {
		var rec EntityRecord
		var propsJSON string
		if err := rows.Scan(&rec.ID, &rec.EntityType, &rec.Name, &rec.Lon, &rec.Lat, &propsJSON, &rec.Status); err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		rec.Distance = geo.Distance(center, geo.Point{Lon: rec.Lon, Lat: rec.Lat})
		if rec.Distance > distanceDegrees {
			continue
		}
		if err := json.Unmarshal([]byte(propsJSON), &rec.Properties); err != nil {
			rec.Properties = map[string]any{}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities: %w", err)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Distance < records[j].Distance
	})
	return records, nil
}

// GetTerrainAtPoint returns the first terrain polygon (in insertion order)
// containing the point, or nil when the point is in open terrain.
func (s *StateStore) GetTerrainAtPoint(lon, lat float64) (*TerrainRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, name, terrain_type, geometry_wkt, movement_cost, passable, properties
		FROM terrain
		WHERE simulation_id = ?
		ORDER BY rowid`, s.simulationID)
	if err != nil {
		return nil, fmt.Errorf("querying terrain: %w", err)
	}
	defer rows.Close()

	pt := geo.Point{Lon: lon, Lat: lat}
	for rows.Next() {
		var rec TerrainRecord
		var wkt, propsJSON string
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.TerrainType, &wkt, &rec.MovementCost, &rec.Passable, &propsJSON); err != nil {
			return nil, fmt.Errorf("scanning terrain: %w", err)
		}
		poly, err := geo.ParsePolygon(wkt)
		if err != nil {
			s.logger.Warn("Skipping terrain with bad geometry", "terrain", rec.ID, "error", err)
			continue
		}
		if poly.Contains(pt) {
			if err := json.Unmarshal([]byte(propsJSON), &rec.Properties); err != nil {
				rec.Properties = map[string]any{}
			}
			return &rec, nil
		}
	}
	return nil, rows.Err()
}

// CheckPathBlocked reports whether the straight path between the two points
// crosses impassable terrain, returning the blocking terrain's name.
func (s *StateStore) CheckPathBlocked(startLon, startLat, endLon, endLat float64) (bool, string, error) {
	rows, err := s.db.Query(`
		SELECT name, geometry_wkt
		FROM terrain
		WHERE simulation_id = ? AND passable = 0
		ORDER BY rowid`, s.simulationID)
	if err != nil {
		return false, "", fmt.Errorf("querying terrain: %w", err)
	}
	defer rows.Close()

	start := geo.Point{Lon: startLon, Lat: startLat}
	end := geo.Point{Lon: endLon, Lat: endLat}
	for rows.Next() {
		var name, wkt string
		if err := rows.Scan(&name, &wkt); err != nil {
			return false, "", fmt.Errorf("scanning terrain: %w", err)
		}
		poly, err := geo.ParsePolygon(wkt)
		if err != nil {
			continue
		}
		if poly.IntersectsSegment(start, end) {
			return true, name, nil
		}
	}
	return false, "", rows.Err()
}

// CalculatePathCost returns the highest movement cost among terrain polygons
// the straight path crosses, with a floor of 1.0.
func (s *StateStore) CalculatePathCost(startLon, startLat, endLon, endLat float64) (float64, error) {
	rows, err := s.db.Query(`
		SELECT geometry_wkt, movement_cost
		FROM terrain
		WHERE simulation_id = ?`, s.simulationID)
	if err != nil {
		return 1.0, fmt.Errorf("querying terrain: %w", err)
	}
	defer rows.Close()

	start := geo.Point{Lon: startLon, Lat: startLat}
	end := geo.Point{Lon: endLon, Lat: endLat}
	cost := 1.0
	for rows.Next() {
		var wkt string
		var movementCost float64
		if err := rows.Scan(&wkt, &movementCost); err != nil {
			return 1.0, fmt.Errorf("scanning terrain: %w", err)
		}
		poly, err := geo.ParsePolygon(wkt)
		if err != nil {
			continue
		}
		if poly.IntersectsSegment(start, end) && movementCost > cost {
			cost = movementCost
		}
	}
	return cost, rows.Err()
}

// CalculateDistance returns the degree distance between two located entities,
// or an error when either is missing or has no location.
func (s *StateStore) CalculateDistance(entity1ID, entity2ID string) (float64, error) {
	p1, err := s.entityPoint(entity1ID)
	if err != nil {
		return 0, err
	}
	p2, err := s.entityPoint(entity2ID)
	if err != nil {
		return 0, err
	}
	return geo.Distance(p1, p2), nil
}

// EntityLocation returns the stored coordinates of an entity.
func (s *StateStore) EntityLocation(entityID string) (geo.Point, error) {
	return s.entityPoint(entityID)
}

func (s *StateStore) entityPoint(entityID string) (geo.Point, error) {
	var lon, lat sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT lon, lat FROM entities
		WHERE simulation_id = ? AND id = ?`, s.simulationID, entityID).Scan(&lon, &lat)
	switch {
	case err == sql.ErrNoRows:
		return geo.Point{}, fmt.Errorf("entity %s not found", entityID)
	case err != nil:
		return geo.Point{}, fmt.Errorf("querying entity %s: %w", entityID, err)
	}
	if !lon.Valid || !lat.Valid {
		return geo.Point{}, fmt.Errorf("entity %s has no location", entityID)
	}
	return geo.Point{Lon: lon.Float64, Lat: lat.Float64}, nil
}

// AddTerrain inserts or replaces a terrain feature. Geometry is validated
// before it is stored.
func (s *StateStore) AddTerrain(terrain *model.Terrain) error {
	if s.readOnly {
		return fmt.Errorf("state store is read-only")
	}
	if err := terrain.Validate(); err != nil {
		return fmt.Errorf("invalid terrain: %w", err)
	}
	if _, err := geo.ParsePolygon(terrain.GeometryWKT); err != nil {
		return fmt.Errorf("terrain %s: %w", terrain.TerrainID, err)
	}

	propsJSON, err := json.Marshal(terrain.Attributes)
	if err != nil {
		return fmt.Errorf("serializing terrain attributes: %w", err)
	}
	passable := 0
	if terrain.Passable {
		passable = 1
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO terrain
		(id, simulation_id, name, terrain_type, geometry_wkt, movement_cost, passable, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		terrain.TerrainID, s.simulationID, terrain.Name, string(terrain.TerrainType),
		terrain.GeometryWKT, terrain.MovementCost, passable, string(propsJSON))
	if err != nil {
		return fmt.Errorf("inserting terrain: %w", err)
	}
	return nil
}

// ClearSimulation deletes every row belonging to this simulation.
func (s *StateStore) ClearSimulation() error {
	if s.readOnly {
		return fmt.Errorf("state store is read-only")
	}
	for _, table := range []string{"entities", "environment", "terrain", "world_state_snapshots"} {
		if _, err := s.db.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE simulation_id = ?", table), s.simulationID); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	s.logger.Info("Cleared simulation", "simulation", s.simulationID)
	return nil
}

// Close closes the database connection.
func (s *StateStore) Close() error {
	return s.db.Close()
}

func stringProp(props map[string]any, key, fallback string) string {
	if v, ok := props[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func stringSliceProp(props map[string]any, key string) []string {
	out := []string{}
	raw, ok := props[key].([]any)
	if !ok {
		return out
	}
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func mapProp(props map[string]any, key string) map[string]any {
	if v, ok := props[key].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}
