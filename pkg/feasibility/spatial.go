package feasibility

import (
	"fmt"

	"github.com/geoscrai/universalis/pkg/geo"
	"github.com/geoscrai/universalis/pkg/state"
)

// SpatialConstraintType classifies spatial checks.
type SpatialConstraintType string

const (
	SpatialDistance  SpatialConstraintType = "distance"
	SpatialTerrain   SpatialConstraintType = "terrain"
	SpatialPath      SpatialConstraintType = "path"
	SpatialProximity SpatialConstraintType = "proximity"
	SpatialZone      SpatialConstraintType = "zone"
)

// SpatialResult is the outcome of one spatial constraint check.
type SpatialResult struct {
	Passed         bool                  `json:"passed"`
	ConstraintType SpatialConstraintType `json:"constraint_type"`
	Message        string                `json:"message"`
	Details        map[string]any        `json:"details"`
}

// SpatialChecker validates spatial constraints against the state store:
// distance limits between entities, terrain passability, path blocking,
// and zone restrictions.
type SpatialChecker struct {
	store *state.StateStore
}

// NewSpatialChecker builds a checker over the given store.
func NewSpatialChecker(store *state.StateStore) *SpatialChecker {
	return &SpatialChecker{store: store}
}

// CheckDistanceConstraint verifies two entities are within maxDistanceDegrees
// of each other.
func (c *SpatialChecker) CheckDistanceConstraint(entity1ID, entity2ID string, maxDistanceDegrees float64) SpatialResult {
	distance, err := c.store.CalculateDistance(entity1ID, entity2ID)
	if err != nil {
		return SpatialResult{
			Passed:         false,
			ConstraintType: SpatialDistance,
			Message:        fmt.Sprintf("Could not find entities %s and/or %s", entity1ID, entity2ID),
			Details:        map[string]any{"entity1": entity1ID, "entity2": entity2ID},
		}
	}

	passed := distance <= maxDistanceDegrees
	cmp := ">"
	if passed {
		cmp = "<="
	}
	return SpatialResult{
		Passed:         passed,
		ConstraintType: SpatialDistance,
		Message:        fmt.Sprintf("Distance %.4f° %s %g°", distance, cmp, maxDistanceDegrees),
		Details: map[string]any{
			"entity1":            entity1ID,
			"entity2":            entity2ID,
			"distance":           distance,
			"max_distance":       maxDistanceDegrees,
			"distance_km_approx": distance * 111,
		},
	}
}

// CheckTerrainPassability verifies the terrain at a point is passable. A
// point with no terrain defined is passable by default.
func (c *SpatialChecker) CheckTerrainPassability(lon, lat float64) (SpatialResult, error) {
	terrain, err := c.store.GetTerrainAtPoint(lon, lat)
	if err != nil {
		return SpatialResult{}, fmt.Errorf("querying terrain at (%g, %g): %w", lon, lat, err)
	}

	if terrain == nil {
		return SpatialResult{
			Passed:         true,
			ConstraintType: SpatialTerrain,
			Message:        "No terrain restrictions at this location",
			Details:        map[string]any{"lon": lon, "lat": lat, "terrain": nil},
		}, nil
	}

	word := "impassable"
	if terrain.Passable {
		word = "passable"
	}
	return SpatialResult{
		Passed:         terrain.Passable,
		ConstraintType: SpatialTerrain,
		Message:        fmt.Sprintf("Terrain '%s' (%s) is %s", terrain.Name, terrain.TerrainType, word),
		Details: map[string]any{
			"lon":           lon,
			"lat":           lat,
			"terrain":       terrain.Name,
			"terrain_type":  terrain.TerrainType,
			"movement_cost": terrain.MovementCost,
			"passable":      terrain.Passable,
		},
	}, nil
}

// CheckPathConstraint verifies the straight path between two points is not
// blocked by impassable terrain, reporting the movement cost when clear.
func (c *SpatialChecker) CheckPathConstraint(startLon, startLat, endLon, endLat float64) (SpatialResult, error) {
	blocked, blocker, err := c.store.CheckPathBlocked(startLon, startLat, endLon, endLat)
	if err != nil {
		return SpatialResult{}, fmt.Errorf("checking path: %w", err)
	}

	if blocked {
		return SpatialResult{
			Passed:         false,
			ConstraintType: SpatialPath,
			Message:        fmt.Sprintf("Path blocked by %s", blocker),
			Details: map[string]any{
				"start":   map[string]any{"lon": startLon, "lat": startLat},
				"end":     map[string]any{"lon": endLon, "lat": endLat},
				"blocker": blocker,
			},
		}, nil
	}

	cost, err := c.store.CalculatePathCost(startLon, startLat, endLon, endLat)
	if err != nil {
		return SpatialResult{}, fmt.Errorf("calculating path cost: %w", err)
	}
	return SpatialResult{
		Passed:         true,
		ConstraintType: SpatialPath,
		Message:        fmt.Sprintf("Path clear with movement cost %.2f", cost),
		Details: map[string]any{
			"start":         map[string]any{"lon": startLon, "lat": startLat},
			"end":           map[string]any{"lon": endLon, "lat": endLat},
			"movement_cost": cost,
		},
	}, nil
}

// CheckProximityConstraint verifies an entity sits within [minDistance,
// maxDistance] degrees of a target point.
func (c *SpatialChecker) CheckProximityConstraint(entityID string, targetLon, targetLat, minDistanceDegrees, maxDistanceDegrees float64) (SpatialResult, error) {
	entities, err := c.store.GetEntitiesWithinDistance(targetLon, targetLat, maxDistanceDegrees*2, "")
	if err != nil {
		return SpatialResult{}, fmt.Errorf("querying entities: %w", err)
	}

	var entity *state.EntityRecord
	for i := range entities {
		if entities[i].ID == entityID {
			entity = &entities[i]
			break
		}
	}
	if entity == nil {
		return SpatialResult{
			Passed:         false,
			ConstraintType: SpatialProximity,
			Message:        fmt.Sprintf("Entity %s not found or too far", entityID),
			Details:        map[string]any{"entity_id": entityID},
		}, nil
	}

	passed := entity.Distance >= minDistanceDegrees && entity.Distance <= maxDistanceDegrees
	word := "outside"
	if passed {
		word = "within"
	}
	return SpatialResult{
		Passed:         passed,
		ConstraintType: SpatialProximity,
		Message:        fmt.Sprintf("Entity at distance %.4f° (%s range)", entity.Distance, word),
		Details: map[string]any{
			"entity_id":    entityID,
			"distance":     entity.Distance,
			"min_distance": minDistanceDegrees,
			"max_distance": maxDistanceDegrees,
			"target":       map[string]any{"lon": targetLon, "lat": targetLat},
		},
	}, nil
}

// CheckZoneConstraint verifies the terrain type at a point against allowed
// and forbidden type lists. Open terrain passes.
func (c *SpatialChecker) CheckZoneConstraint(lon, lat float64, allowedTerrainTypes, forbiddenTerrainTypes []string) (SpatialResult, error) {
	terrain, err := c.store.GetTerrainAtPoint(lon, lat)
	if err != nil {
		return SpatialResult{}, fmt.Errorf("querying terrain at (%g, %g): %w", lon, lat, err)
	}

	if terrain == nil {
		return SpatialResult{
			Passed:         true,
			ConstraintType: SpatialZone,
			Message:        "No zone restrictions at this location",
			Details:        map[string]any{"lon": lon, "lat": lat},
		}, nil
	}

	for _, forbidden := range forbiddenTerrainTypes {
		if terrain.TerrainType == forbidden {
			return SpatialResult{
				Passed:         false,
				ConstraintType: SpatialZone,
				Message:        fmt.Sprintf("Location in forbidden zone: %s", terrain.TerrainType),
				Details: map[string]any{
					"lon":             lon,
					"lat":             lat,
					"terrain_type":    terrain.TerrainType,
					"forbidden_types": forbiddenTerrainTypes,
				},
			}, nil
		}
	}

	if len(allowedTerrainTypes) > 0 {
		allowed := false
		for _, t := range allowedTerrainTypes {
			if terrain.TerrainType == t {
				allowed = true
				break
			}
		}
		if !allowed {
			return SpatialResult{
				Passed:         false,
				ConstraintType: SpatialZone,
				Message:        fmt.Sprintf("Location not in allowed zone: %s not in %v", terrain.TerrainType, allowedTerrainTypes),
				Details: map[string]any{
					"lon":           lon,
					"lat":           lat,
					"terrain_type":  terrain.TerrainType,
					"allowed_types": allowedTerrainTypes,
				},
			}, nil
		}
	}

	return SpatialResult{
		Passed:         true,
		ConstraintType: SpatialZone,
		Message:        fmt.Sprintf("Location in valid zone: %s", terrain.TerrainType),
		Details: map[string]any{
			"lon":          lon,
			"lat":          lat,
			"terrain_type": terrain.TerrainType,
		},
	}, nil
}

// ValidateMovement runs the full movement check for an entity heading to a
// target point: distance (when maxDistanceDegrees is non-nil), terrain
// passability at the target, and path clearance.
func (c *SpatialChecker) ValidateMovement(entityID string, targetLon, targetLat float64, maxDistanceDegrees *float64) (bool, []SpatialResult, error) {
	start, err := c.store.EntityLocation(entityID)
	if err != nil {
		return false, []SpatialResult{{
			Passed:         false,
			ConstraintType: SpatialDistance,
			Message:        fmt.Sprintf("Entity %s not found", entityID),
			Details:        map[string]any{"entity_id": entityID},
		}}, nil
	}

	var results []SpatialResult

	if maxDistanceDegrees != nil {
		distance := geo.Distance(start, geo.Point{Lon: targetLon, Lat: targetLat})
		passed := distance <= *maxDistanceDegrees
		cmp := ">"
		if passed {
			cmp = "<="
		}
		results = append(results, SpatialResult{
			Passed:         passed,
			ConstraintType: SpatialDistance,
			Message:        fmt.Sprintf("Movement distance %.4f° %s %g°", distance, cmp, *maxDistanceDegrees),
			Details: map[string]any{
				"distance":     distance,
				"max_distance": *maxDistanceDegrees,
			},
		})
	}

	terrainResult, err := c.CheckTerrainPassability(targetLon, targetLat)
	if err != nil {
		return false, results, err
	}
	results = append(results, terrainResult)

	pathResult, err := c.CheckPathConstraint(start.Lon, start.Lat, targetLon, targetLat)
	if err != nil {
		return false, results, err
	}
	results = append(results, pathResult)

	allPassed := true
	for _, r := range results {
		if !r.Passed {
			allPassed = false
			break
		}
	}
	return allPassed, results, nil
}
