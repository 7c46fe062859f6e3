package stream

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddEventGeneratesID(t *testing.T) {
	s := NewStream("test-sim", 0)
	e := s.AddObservation("convoy spotted", 1, "alpha")

	assert.Len(t, e.EventID, 12)
	assert.Equal(t, EventObservation, e.EventType)
	assert.Equal(t, "alpha", e.ActorID)

	got, ok := s.GetEvent(e.EventID)
	require.True(t, ok)
	assert.Equal(t, e.EventID, got.EventID)
}

func TestOverflowDropsOldest(t *testing.T) {
	s := NewStream("test-sim", 3)

	first := s.AddObservation("first", 1, "alpha")
	s.AddObservation("second", 1, "alpha")
	s.AddObservation("third", 1, "alpha")
	fourth := s.AddObservation("fourth", 2, "alpha")

	assert.Equal(t, 3, s.Len())

	_, ok := s.GetEvent(first.EventID)
	assert.False(t, ok, "oldest event dropped")

	got, ok := s.GetEvent(fourth.EventID)
	require.True(t, ok, "lookup survives overflow")
	assert.Equal(t, "fourth", got.Content)

	recent := s.GetRecentEvents(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "second", recent[0].Content)
}

func TestGetEventsByCycleAndType(t *testing.T) {
	s := NewStream("test-sim", 0)
	s.AddObservation("obs c1", 1, "alpha")
	s.AddIntent("intent c1", 1, "alpha")
	s.AddObservation("obs c2", 2, "bravo")

	byCycle := s.GetEventsByCycle(1)
	require.Len(t, byCycle, 2)

	byType := s.GetEventsByType(EventObservation, 0)
	require.Len(t, byType, 2)

	limited := s.GetEventsByType(EventObservation, 1)
	require.Len(t, limited, 1)
	assert.Equal(t, "obs c2", limited[0].Content)
}

func TestGetEventsByActor(t *testing.T) {
	s := NewStream("test-sim", 0)
	s.AddIntent("one", 1, "alpha")
	s.AddIntent("two", 1, "bravo")
	s.AddIntent("three", 2, "alpha")

	events := s.GetEventsByActor("alpha", 0)
	require.Len(t, events, 2)
	assert.Equal(t, "one", events[0].Content)
	assert.Equal(t, "three", events[1].Content)
}

func TestRationaleLinksAdjudication(t *testing.T) {
	s := NewStream("test-sim", 0)
	adj := s.AddAdjudication("cycle summary", 3, map[string]any{"intents": 2})
	rat := s.AddRationale("because of weather", 3, adj.EventID, nil)

	require.Len(t, rat.LinkedEvents, 1)
	assert.Equal(t, adj.EventID, rat.LinkedEvents[0])

	rationales := s.GetRationalesForCycle(3)
	require.Len(t, rationales, 1)
	assert.Equal(t, "because of weather", rationales[0].Content)
	assert.Empty(t, s.GetRationalesForCycle(4))
}

func TestSearch(t *testing.T) {
	s := NewStream("test-sim", 0)
	s.AddObservation("Convoy near the bridge", 1, "alpha")
	s.AddIntent("move convoy south", 2, "alpha")
	s.AddObservation("storm incoming", 3, "bravo")

	results := s.Search(SearchQuery{Query: "CONVOY"})
	require.Len(t, results, 2, "case-insensitive content match")

	results = s.Search(SearchQuery{Query: "convoy", EventTypes: []EventType{EventIntent}})
	require.Len(t, results, 1)
	assert.Equal(t, "move convoy south", results[0].Content)

	results = s.Search(SearchQuery{Query: "", ActorID: "bravo"})
	require.Len(t, results, 1)

	results = s.Search(SearchQuery{Query: "", MinCycle: 2, MaxCycle: 3, HasRange: true})
	require.Len(t, results, 2)
}

func TestGetSetState(t *testing.T) {
	s := NewStream("test-sim", 0)
	e := s.AddObservation("persisted", 1, "alpha")

	state := s.GetState()

	restored := NewStream("test-sim", 0)
	restored.SetState(state)
	assert.Equal(t, 1, restored.Len())

	got, ok := restored.GetEvent(e.EventID)
	require.True(t, ok)
	assert.Equal(t, "persisted", got.Content)
}

func TestExportJSON(t *testing.T) {
	s := NewStream("test-sim", 0)
	s.AddObservation("exported", 1, "alpha")

	out, err := s.ExportJSON()
	require.NoError(t, err)

	var events []Event
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "exported", events[0].Content)
}

func TestClear(t *testing.T) {
	s := NewStream("test-sim", 0)
	e := s.AddObservation("gone", 1, "alpha")
	s.Clear()

	assert.Equal(t, 0, s.Len())
	_, ok := s.GetEvent(e.EventID)
	assert.False(t, ok)
}
