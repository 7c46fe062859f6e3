package feasibility

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoscrai/universalis/pkg/model"
	"github.com/geoscrai/universalis/pkg/state"
)

func testStore(t *testing.T) *state.StateStore {
	t.Helper()
	store, err := state.NewStateStore(filepath.Join(t.TempDir(), "test.db"), "feas_test", false)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testWorld() *model.WorldState {
	ws := model.NewWorldState("feas_test")
	ws.Assets["truck_1"] = &model.Asset{
		AssetID:    "truck_1",
		Name:       "Supply Truck",
		AssetType:  "vehicle",
		Location:   map[string]float64{"lat": 0.5, "lon": 0.5},
		Attributes: map[string]any{"fuel": 50.0},
		Status:     "active",
	}
	ws.Assets["tank_1"] = &model.Asset{
		AssetID:    "tank_1",
		Name:       "Tank",
		AssetType:  "vehicle",
		Location:   map[string]float64{},
		Attributes: map[string]any{},
		Status:     "destroyed",
	}
	alpha := model.NewActor("alpha", "Commander")
	alpha.Assets = []string{"truck_1"}
	ws.Actors["alpha"] = alpha
	return ws
}

func TestCheckFeasibilityClean(t *testing.T) {
	engine := NewEngine(nil)
	report := engine.CheckFeasibility("Hold position and observe", testWorld())

	assert.True(t, report.Feasible)
	assert.Empty(t, report.Violations)
	assert.Equal(t, []string{
		"resource_availability", "asset_operational", "actor_authorized", "spatial_movement",
	}, report.ConstraintsChecked)
}

func TestCheckFeasibilityDestroyedAsset(t *testing.T) {
	engine := NewEngine(nil)
	report := engine.CheckFeasibility("Order tank_1 to fire", testWorld())

	require.False(t, report.Feasible)
	require.Len(t, report.Violations, 2)
	assert.Equal(t, "resource_availability", report.Violations[0].Constraint)
	assert.Equal(t, ConstraintResource, report.Violations[0].Type)
	assert.Equal(t, "asset_operational", report.Violations[1].Constraint)
	assert.Contains(t, report.Recommendations, "Consider reallocating resources or waiting for replenishment")
	assert.Contains(t, report.Recommendations, "Asset may need repairs or status update before use")
}

func TestCheckFeasibilityEmptyFuel(t *testing.T) {
	engine := NewEngine(nil)
	ws := testWorld()
	ws.Assets["truck_1"].Attributes["fuel"] = 0.0

	report := engine.CheckFeasibility("Load the Supply Truck", ws)
	require.False(t, report.Feasible)
	assert.Equal(t, "resource_availability", report.Violations[0].Constraint)
}

func TestCheckFeasibilityUnauthorized(t *testing.T) {
	engine := NewEngine(nil)
	ws := testWorld()
	ws.Assets["jeep_1"] = &model.Asset{
		AssetID: "jeep_1", Name: "Jeep", AssetType: "vehicle",
		Location: map[string]float64{}, Attributes: map[string]any{}, Status: "active",
	}

	report := engine.CheckFeasibility("alpha orders jeep_1 forward", ws)
	require.False(t, report.Feasible)
	assert.Equal(t, "actor_authorized", report.Violations[0].Constraint)
	assert.Equal(t, ConstraintPolicy, report.Violations[0].Type)
	assert.Contains(t, report.Recommendations, "Request authorization or use assets under your control")
}

func TestCheckFeasibilityAuthorizedAsset(t *testing.T) {
	engine := NewEngine(nil)
	report := engine.CheckFeasibility("alpha loads truck_1 with supplies", testWorld())
	assert.True(t, report.Feasible)
}

func TestSpatialMovementConstraint(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.AddTerrain(&model.Terrain{
		TerrainID:    "lake",
		Name:         "Deep Lake",
		TerrainType:  model.TerrainWater,
		GeometryWKT:  "POLYGON((0 0, 0 1, 1 1, 1 0, 0 0))",
		MovementCost: 10,
		Passable:     false,
		Attributes:   map[string]any{},
	}))
	engine := NewEngine(store)

	// Coordinates read lat first: target (lat 0.5, lon 0.5) is in the lake.
	report := engine.CheckFeasibility("Move to 0.5, 0.5 immediately", testWorld())
	require.False(t, report.Feasible)
	assert.Equal(t, "spatial_movement", report.Violations[0].Constraint)
	assert.Contains(t, report.Recommendations, "Choose a different route or destination to avoid impassable terrain")

	// Outside the lake, and non-movement phrasing, both pass.
	assert.True(t, engine.CheckFeasibility("Move to 5.0, 5.0", testWorld()).Feasible)
	assert.True(t, engine.CheckFeasibility("Report status at 0.5, 0.5", testWorld()).Feasible)
}

func TestCheckMovementFeasibility(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.AddTerrain(&model.Terrain{
		TerrainID:    "cliff",
		Name:         "Cliff Face",
		TerrainType:  model.TerrainMountains,
		GeometryWKT:  "POLYGON((2 2, 2 3, 3 3, 3 2, 2 2))",
		MovementCost: 5,
		Passable:     false,
		Attributes:   map[string]any{},
	}))
	ws := testWorld()
	require.NoError(t, store.SaveWorldState(ws))
	engine := NewEngine(store)

	// Target inside the impassable cliff.
	report, err := engine.CheckMovementFeasibility("truck_1", 2.5, 2.5, nil)
	require.NoError(t, err)
	assert.False(t, report.Feasible)
	assert.NotEmpty(t, report.Violations)
	assert.Contains(t, report.Recommendations, "Consider alternative routes or closer destinations")

	// Short clear move.
	report, err = engine.CheckMovementFeasibility("truck_1", 0.6, 0.6, nil)
	require.NoError(t, err)
	assert.True(t, report.Feasible)
	assert.Equal(t, []string{"terrain", "path"}, report.ConstraintsChecked)

	// Distance limit violated.
	maxDist := 0.01
	report, err = engine.CheckMovementFeasibility("truck_1", 0.9, 0.9, &maxDist)
	require.NoError(t, err)
	assert.False(t, report.Feasible)
	assert.Equal(t, []string{"distance", "terrain", "path"}, report.ConstraintsChecked)

	// Unknown entity.
	report, err = engine.CheckMovementFeasibility("ghost", 0.6, 0.6, nil)
	require.NoError(t, err)
	assert.False(t, report.Feasible)
}

func TestCheckPathFeasibility(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.AddTerrain(&model.Terrain{
		TerrainID:    "swamp",
		Name:         "Swamp",
		TerrainType:  model.TerrainForest,
		GeometryWKT:  "POLYGON((1 0, 1 2, 2 2, 2 0, 1 0))",
		MovementCost: 3,
		Passable:     true,
		Attributes:   map[string]any{},
	}))
	require.NoError(t, store.AddTerrain(&model.Terrain{
		TerrainID:    "wall",
		Name:         "Wall",
		TerrainType:  model.TerrainUrban,
		GeometryWKT:  "POLYGON((4 0, 4 2, 5 2, 5 0, 4 0))",
		MovementCost: 100,
		Passable:     false,
		Attributes:   map[string]any{},
	}))
	engine := NewEngine(store)

	feasible, cost, blocker, err := engine.CheckPathFeasibility(0, 1, 3, 1)
	require.NoError(t, err)
	assert.True(t, feasible)
	assert.Equal(t, 3.0, cost)
	assert.Empty(t, blocker)

	feasible, _, blocker, err = engine.CheckPathFeasibility(3, 1, 6, 1)
	require.NoError(t, err)
	assert.False(t, feasible)
	assert.Equal(t, "Wall", blocker)
}

func TestCheckDistanceConstraint(t *testing.T) {
	store := testStore(t)
	ws := testWorld()
	ws.Assets["depot"] = &model.Asset{
		AssetID: "depot", Name: "Depot", AssetType: "facility",
		Location: map[string]float64{"lat": 0.5, "lon": 1.5},
		Attributes: map[string]any{}, Status: "active",
	}
	require.NoError(t, store.SaveWorldState(ws))
	engine := NewEngine(store)

	assert.True(t, engine.CheckDistanceConstraint("truck_1", "depot", 2.0))
	assert.False(t, engine.CheckDistanceConstraint("truck_1", "depot", 0.5))
	assert.False(t, engine.CheckDistanceConstraint("truck_1", "missing", 10.0))
}

func TestSpatialCheckerProximityAndZone(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.AddTerrain(&model.Terrain{
		TerrainID:    "city",
		Name:         "Old Town",
		TerrainType:  model.TerrainUrban,
		GeometryWKT:  "POLYGON((0 0, 0 1, 1 1, 1 0, 0 0))",
		MovementCost: 1.5,
		Passable:     true,
		Attributes:   map[string]any{},
	}))
	require.NoError(t, store.SaveWorldState(testWorld()))
	checker := NewSpatialChecker(store)

	result, err := checker.CheckProximityConstraint("truck_1", 0.6, 0.6, 0, 1.0)
	require.NoError(t, err)
	assert.True(t, result.Passed)

	result, err = checker.CheckProximityConstraint("truck_1", 0.6, 0.6, 0.5, 1.0)
	require.NoError(t, err)
	assert.False(t, result.Passed)

	result, err = checker.CheckZoneConstraint(0.5, 0.5, nil, []string{"urban"})
	require.NoError(t, err)
	assert.False(t, result.Passed)

	result, err = checker.CheckZoneConstraint(0.5, 0.5, []string{"urban"}, nil)
	require.NoError(t, err)
	assert.True(t, result.Passed)

	result, err = checker.CheckZoneConstraint(5, 5, nil, []string{"urban"})
	require.NoError(t, err)
	assert.True(t, result.Passed, "open terrain is unrestricted")
}

func TestRegisterConstraint(t *testing.T) {
	engine := NewEngine(nil)
	engine.RegisterConstraint(Constraint{
		Name: "curfew",
		Type: ConstraintTemporal,
		Check: func(intent string, ws *model.WorldState) (bool, error) {
			return ws.Environment.Time != "23:00", nil
		},
		ErrorMessage: "No operations during curfew",
	})

	ws := testWorld()
	ws.Environment.Time = "23:00"
	report := engine.CheckFeasibility("Patrol the perimeter", ws)
	require.False(t, report.Feasible)
	assert.Equal(t, "curfew", report.Violations[0].Constraint)
	assert.Equal(t, "No operations during curfew", report.Violations[0].Message)
}

func TestUtilityConstraints(t *testing.T) {
	engine := NewEngine(nil)
	assert.True(t, engine.CheckBudgetConstraint(100, 100))
	assert.False(t, engine.CheckBudgetConstraint(101, 100))
	assert.True(t, engine.CheckTimeConstraint(5, 10))
	assert.False(t, engine.CheckTimeConstraint(11, 10))
}
