package archon

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoscrai/universalis/pkg/embedder"
	"github.com/geoscrai/universalis/pkg/llms"
	"github.com/geoscrai/universalis/pkg/memory"
	"github.com/geoscrai/universalis/pkg/model"
	"github.com/geoscrai/universalis/pkg/state"
	"github.com/geoscrai/universalis/pkg/stream"
	"github.com/geoscrai/universalis/pkg/vector"
)

func testStore(t *testing.T) *state.StateStore {
	t.Helper()
	store, err := state.NewStateStore(filepath.Join(t.TempDir(), "test.db"), "archon_test", false)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testBank(t *testing.T) *memory.Bank {
	t.Helper()
	provider, err := vector.NewChromemProvider(vector.ChromemConfig{})
	require.NoError(t, err)
	bank, err := memory.NewBank(provider, embedder.NewHashEmbedder(64), "archon_test", "")
	require.NoError(t, err)
	t.Cleanup(func() { provider.Close() })
	return bank
}

func testWorld() *model.WorldState {
	ws := model.NewWorldState("archon_test")
	ws.Environment.Cycle = 1
	ws.Environment.Weather = "Dry, High Winds"
	ws.Environment.GlobalEvents = []string{"Simulation Initialized"}

	chief := model.NewActor("Actor_FireChief", "Fire Chief")
	chief.Assets = []string{"Truck_01"}
	chief.Location = &model.Location{Lat: 34.05, Lon: -118.25}
	ws.Actors[chief.ActorID] = chief

	mayor := model.NewActor("Actor_Mayor", "Mayor")
	mayor.Location = &model.Location{Lat: 34.06, Lon: -118.26}
	ws.Actors[mayor.ActorID] = mayor

	ws.Assets["Truck_01"] = &model.Asset{
		AssetID: "Truck_01", Name: "Engine 1", AssetType: "vehicle",
		Location:   map[string]float64{"lat": 34.05, "lon": -118.25},
		Attributes: map[string]any{}, Status: "active",
	}
	return ws
}

func TestRunCycle(t *testing.T) {
	llm := llms.NewStaticModel("")
	// Two agent intents (actors in sorted order), then the adjudication call.
	llm.Enqueue(
		"Dispatch Truck_01 north.",
		"Brief the press.",
		"The Fire Chief dispatched Truck_01 north while the Mayor briefed the press.",
	)
	events := stream.NewStream("archon_test", 0)

	a, err := New(llm, nil, Config{})
	require.NoError(t, err)
	a.SetMemorySystems(testBank(t), events)

	ws := testWorld()
	before := ws.Environment.GlobalEvents

	result, err := a.RunCycle(context.Background(), ws)
	require.NoError(t, err)

	assert.Equal(t, "The Fire Chief dispatched Truck_01 north while the Mayor briefed the press.", result.Summary)
	assert.Equal(t, result.Summary, ws.Environment.GlobalEvents[len(ws.Environment.GlobalEvents)-1])
	assert.Len(t, before, 1, "prior event slice is not mutated")

	require.Len(t, result.Rationales, 1)
	rationale := result.Rationales[0]
	assert.Equal(t, 1, rationale.Cycle)
	assert.Equal(t, "Dispatch Truck_01 north.", rationale.Intents["Actor_FireChief"])
	assert.Equal(t, "Brief the press.", rationale.Intents["Actor_Mayor"])
	assert.Contains(t, rationale.Reports, "Actor_FireChief")
	assert.Contains(t, rationale.Reports, "Actor_Mayor")
	assert.Empty(t, rationale.Errors)

	adjudications := events.GetEventsByType(stream.EventAdjudication, 0)
	require.Len(t, adjudications, 1)
	assert.Equal(t, 1, adjudications[0].Cycle)
	intents, ok := adjudications[0].Metadata["intents"].(map[string]string)
	require.True(t, ok)
	assert.Len(t, intents, 2)
}

func TestRunCyclePerceptionSphere(t *testing.T) {
	store := testStore(t)
	ws := testWorld()
	// Move the mayor within the perception radius of the chief.
	ws.Actors["Actor_Mayor"].Location = &model.Location{Lat: 34.06, Lon: -118.25}
	require.NoError(t, store.SaveWorldState(ws))
	require.NoError(t, store.AddTerrain(&model.Terrain{
		TerrainID:    "district",
		Name:         "Fire District",
		TerrainType:  model.TerrainUrban,
		GeometryWKT:  "POLYGON((-119 33, -119 35, -117 35, -117 33, -119 33))",
		MovementCost: 1.5,
		Passable:     true,
		Attributes:   map[string]any{},
	}))

	llm := llms.NewStaticModel("Hold position.")
	a, err := New(llm, store, Config{})
	require.NoError(t, err)

	result, err := a.RunCycle(context.Background(), ws)
	require.NoError(t, err)
	require.NotNil(t, result)

	// The adjudication prompt (last one seen) carries the spatial context.
	prompts := llm.Prompts()
	require.Len(t, prompts, 3)
	adjPrompt := prompts[len(prompts)-1]
	assert.Contains(t, adjPrompt, "urban")
	assert.Contains(t, adjPrompt, "Mayor")

	// Agent prompts mention the nearby truck.
	assert.Contains(t, prompts[0], "Engine 1")
}

func TestRunCycleInfeasibleIntentNarration(t *testing.T) {
	llm := llms.NewStaticModel("")
	ws := testWorld()
	ws.Assets["Helo_Alpha"] = &model.Asset{
		AssetID: "Helo_Alpha", Name: "Helo Alpha", AssetType: "aircraft",
		Location: map[string]float64{}, Attributes: map[string]any{}, Status: "ready",
	}
	// The Fire Chief grabs an aircraft it does not control.
	llm.Enqueue(
		"Actor_FireChief sends Helo_Alpha to the ridge.",
		"Observe.",
		"Cycle resolved.",
	)

	a, err := New(llm, nil, Config{})
	require.NoError(t, err)
	result, err := a.RunCycle(context.Background(), ws)
	require.NoError(t, err)

	report := result.Rationales[0].Reports["Actor_FireChief"]
	require.NotNil(t, report)
	assert.False(t, report.Feasible)

	prompts := llm.Prompts()
	adjPrompt := prompts[len(prompts)-1]
	assert.Contains(t, adjPrompt, "BUT FAILED due to:")
	assert.Contains(t, adjPrompt, "Actor is not authorized")
}

type flakyModel struct {
	*llms.StaticModel
	failOn string
}

func (m *flakyModel) SampleText(ctx context.Context, prompt string, opts llms.SampleOptions) (string, error) {
	if strings.Contains(prompt, m.failOn) {
		return "", errors.New("model unavailable")
	}
	return m.StaticModel.SampleText(ctx, prompt, opts)
}

func TestRunCycleAgentErrorIsolated(t *testing.T) {
	llm := &flakyModel{StaticModel: llms.NewStaticModel("Proceed."), failOn: "Fire Chief"}
	events := stream.NewStream("archon_test", 0)

	a, err := New(llm, nil, Config{})
	require.NoError(t, err)
	a.SetMemorySystems(nil, events)

	result, err := a.RunCycle(context.Background(), testWorld())
	require.NoError(t, err)

	rationale := result.Rationales[0]
	assert.Contains(t, rationale.Errors, "Actor_FireChief")
	assert.NotContains(t, rationale.Intents, "Actor_FireChief")
	assert.Contains(t, rationale.Intents, "Actor_Mayor", "other actors proceed")

	prompts := llm.Prompts()
	adjPrompt := prompts[len(prompts)-1]
	assert.Contains(t, adjPrompt, "Actor_FireChief: ERROR -")
}

func TestAgentIdentityAcrossCycles(t *testing.T) {
	llm := llms.NewStaticModel("Hold.")
	a, err := New(llm, nil, Config{})
	require.NoError(t, err)

	ws := testWorld()
	_, err = a.RunCycle(context.Background(), ws)
	require.NoError(t, err)
	first := a.agents["Actor_FireChief"]
	require.NotNil(t, first)

	ws.Environment.Cycle = 2
	_, err = a.RunCycle(context.Background(), ws)
	require.NoError(t, err)
	assert.Same(t, first, a.agents["Actor_FireChief"])

	a.ClearAgentCache()
	assert.Empty(t, a.agents)
}

func TestRunCycleAdjudicationModelError(t *testing.T) {
	llm := &flakyModel{StaticModel: llms.NewStaticModel("Hold."), failOn: "omniscient referee"}

	a, err := New(llm, nil, Config{})
	require.NoError(t, err)
	result, err := a.RunCycle(context.Background(), testWorld())
	require.NoError(t, err)

	assert.Contains(t, result.Summary, "Archon Error:")
	assert.Contains(t, result.World.Environment.GlobalEvents[len(result.World.Environment.GlobalEvents)-1], "Archon Error:")
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, nil, Config{})
	assert.Error(t, err)
}
