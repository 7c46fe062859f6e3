package scenario

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoscrai/universalis/pkg/model"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func testDirs(t *testing.T) (string, string) {
	t.Helper()
	worlds := t.TempDir()
	scenarios := t.TempDir()

	writeFile(t, worlds, "socal.world.json", `{
		"name": "Southern California",
		"region": {"center": {"lat": 34.0, "lon": -118.2}},
		"landmarks": ["Griffith Observatory"]
	}`)

	writeFile(t, scenarios, "wildfire.scenario.json", `{
		"scenario_id": "wildfire",
		"name": "Wildfire Response",
		"world_id": "socal",
		"initial_cycle": 0,
		"initial_time": "06:00",
		"initial_weather": "Dry, High Winds",
		"initial_events": ["Simulation Initialized: Wildfire Warning in effect."],
		"patches": [
			{"op": "test", "path": "/name", "value": "Southern California"},
			{"op": "add", "path": "/alert_level", "value": "red"},
			{"op": "replace", "path": "/region/center/lat", "value": 34.1},
			{"op": "copy", "from": "/landmarks/0", "path": "/landmarks/-"},
			{"op": "remove", "path": "/landmarks/0"}
		],
		"actors": [
			{"actor_id": "Actor_FireChief", "role": "Fire Chief",
			 "assets": ["Truck_01"], "objectives": ["Contain the wildfire"],
			 "location": {"lat": 34.05, "lon": -118.25}}
		],
		"assets": [
			{"asset_id": "Truck_01", "name": "Engine 1", "asset_type": "vehicle",
			 "location": {"lat": 34.05, "lon": -118.25}}
		],
		"variables": {"containment_target": 0.9}
	}`)

	return worlds, scenarios
}

func TestCompile(t *testing.T) {
	worlds, scenarios := testDirs(t)
	p := NewPipeline(worlds, scenarios)

	result, err := p.Compile("wildfire", "")
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)
	ws := result.WorldState

	assert.Equal(t, "wildfire", ws.SimulationID)
	assert.Equal(t, 0, ws.Environment.Cycle)
	assert.Equal(t, "06:00", ws.Environment.Time)
	assert.Equal(t, "Dry, High Winds", ws.Environment.Weather)
	assert.Equal(t, []string{"Simulation Initialized: Wildfire Warning in effect."}, ws.Environment.GlobalEvents)

	require.Contains(t, ws.Actors, "Actor_FireChief")
	chief := ws.Actors["Actor_FireChief"]
	assert.Equal(t, "Fire Chief", chief.Role)
	assert.Equal(t, model.ResolutionMacro, chief.Resolution, "resolution defaults to macro")
	assert.Equal(t, "active", chief.Status)
	require.NotNil(t, chief.Location)
	assert.Equal(t, 34.05, chief.Location.Lat)

	require.Contains(t, ws.Assets, "Truck_01")
	assert.Equal(t, "Engine 1", ws.Assets["Truck_01"].Name)
	assert.Equal(t, "active", ws.Assets["Truck_01"].Status)

	// Base world survived in metadata with the patches applied.
	assert.Equal(t, "red", ws.Metadata["alert_level"])
	region := ws.Metadata["region"].(map[string]any)
	center := region["center"].(map[string]any)
	assert.Equal(t, 34.1, center["lat"])
	landmarks := ws.Metadata["landmarks"].([]any)
	assert.Equal(t, []any{"Griffith Observatory"}, landmarks)

	assert.Equal(t, "wildfire", ws.Metadata["scenario_id"])
	assert.Equal(t, "Wildfire Response", ws.Metadata["scenario_name"])
	vars := ws.Metadata["variables"].(map[string]any)
	assert.Equal(t, 0.9, vars["containment_target"])
}

func TestCompileMissingWorldIsWarning(t *testing.T) {
	worlds, scenarios := testDirs(t)
	writeFile(t, scenarios, "orphan.scenario.json", `{
		"scenario_id": "orphan",
		"world_id": "atlantis",
		"actors": [{"actor_id": "A1", "role": "Scout"}]
	}`)

	result, err := NewPipeline(worlds, scenarios).Compile("orphan", "")
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "atlantis")
	assert.Contains(t, result.WorldState.Actors, "A1")
	assert.Equal(t, "08:00", result.WorldState.Environment.Time, "default start time")
}

func TestCompileMissingScenarioIsError(t *testing.T) {
	worlds, scenarios := testDirs(t)
	_, err := NewPipeline(worlds, scenarios).Compile("nope", "")
	assert.Error(t, err)
}

func TestCompileFailedPatchTest(t *testing.T) {
	worlds, scenarios := testDirs(t)
	writeFile(t, scenarios, "badtest.scenario.json", `{
		"scenario_id": "badtest",
		"world_id": "socal",
		"patches": [{"op": "test", "path": "/name", "value": "Atlantis"}]
	}`)

	_, err := NewPipeline(worlds, scenarios).Compile("badtest", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "applying patches")
}

func TestCompileFromDocuments(t *testing.T) {
	base := map[string]any{"terrain_pack": "coastal"}
	sc := &Scenario{
		ScenarioID:     "inline",
		InitialWeather: "Fog",
		Actors:         []*model.Actor{{ActorID: "A1"}},
		Patches:        json.RawMessage(`[{"op": "add", "path": "/sea_state", "value": 3}]`),
	}

	ws, err := CompileFromDocuments(base, sc, "inline_sim")
	require.NoError(t, err)
	assert.Equal(t, "inline_sim", ws.SimulationID)
	assert.Equal(t, "Fog", ws.Environment.Weather)
	assert.Equal(t, "Unknown", ws.Actors["A1"].Role, "role defaults when omitted")
	assert.Equal(t, "coastal", ws.Metadata["terrain_pack"])
	assert.Equal(t, float64(3), ws.Metadata["sea_state"])

	_, err = CompileFromDocuments(nil, nil, "x")
	assert.Error(t, err)
}

func TestCompileRejectsDanglingAssetReference(t *testing.T) {
	sc := &Scenario{
		ScenarioID: "dangling",
		Actors:     []*model.Actor{{ActorID: "A1", Role: "Scout", Assets: []string{"ghost"}}},
	}
	_, err := CompileFromDocuments(nil, sc, "sim")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}
