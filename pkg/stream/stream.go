// Package stream is the bounded chronological event log of a simulation.
// Every observation, intent, adjudication and rationale lands here, giving
// full traceability of a run.
package stream

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// EventType classifies stream events.
type EventType string

const (
	EventObservation  EventType = "observation"
	EventIntent       EventType = "intent"
	EventAdjudication EventType = "adjudication"
	EventRationale    EventType = "rationale"
	EventStateChange  EventType = "state_change"
	EventSystem       EventType = "system"
	EventActorAction  EventType = "actor_action"
	EventEnvironment  EventType = "environment"
)

// Event is a single entry in the stream.
type Event struct {
	EventID      string         `json:"event_id"`
	EventType    EventType      `json:"event_type"`
	Content      string         `json:"content"`
	Cycle        int            `json:"cycle"`
	Timestamp    time.Time      `json:"timestamp"`
	ActorID      string         `json:"actor_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	LinkedEvents []string       `json:"linked_events,omitempty"`
}

// eventID derives a short stable id from the event's identity fields.
func eventID(eventType EventType, content string, cycle int, timestamp time.Time) string {
	payload := fmt.Sprintf("%s:%s:%d:%s", eventType, content, cycle, timestamp.Format(time.RFC3339Nano))
	sum := md5.Sum([]byte(payload))
	return fmt.Sprintf("%x", sum)[:12]
}

// Stream is a bounded append-only event log. When the cap is reached the
// oldest event is dropped.
type Stream struct {
	simulationID string
	maxEvents    int

	mu     sync.Mutex
	events []Event
	// index maps event id to absolute position; base is the count of
	// dropped events, so a slice offset is position - base.
	index map[string]int
	base  int
}

// NewStream creates a stream; maxEvents defaults to 10000.
func NewStream(simulationID string, maxEvents int) *Stream {
	if maxEvents <= 0 {
		maxEvents = 10000
	}
	return &Stream{
		simulationID: simulationID,
		maxEvents:    maxEvents,
		index:        make(map[string]int),
	}
}

// AddEvent appends an event and returns it with its generated id.
func (s *Stream) AddEvent(eventType EventType, content string, cycle int, actorID string, metadata map[string]any, linkedEvents []string) Event {
	event := Event{
		EventType:    eventType,
		Content:      content,
		Cycle:        cycle,
		Timestamp:    time.Now(),
		ActorID:      actorID,
		Metadata:     metadata,
		LinkedEvents: linkedEvents,
	}
	event.EventID = eventID(eventType, content, cycle, event.Timestamp)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	s.index[event.EventID] = s.base + len(s.events) - 1

	if len(s.events) > s.maxEvents {
		dropped := s.events[0]
		s.events = s.events[1:]
		delete(s.index, dropped.EventID)
		s.base++
	}
	return event
}

// AddObservation records what an actor perceived.
func (s *Stream) AddObservation(content string, cycle int, actorID string) Event {
	return s.AddEvent(EventObservation, content, cycle, actorID, nil, nil)
}

// AddIntent records an actor's proposed action.
func (s *Stream) AddIntent(content string, cycle int, actorID string) Event {
	return s.AddEvent(EventIntent, content, cycle, actorID, nil, nil)
}

// AddAdjudication records the referee's cycle summary with its inputs.
func (s *Stream) AddAdjudication(content string, cycle int, metadata map[string]any) Event {
	return s.AddEvent(EventAdjudication, content, cycle, "", metadata, nil)
}

// AddRationale records the reasoning behind an adjudication, linked to it.
func (s *Stream) AddRationale(content string, cycle int, linkedAdjudication string, metadata map[string]any) Event {
	var linked []string
	if linkedAdjudication != "" {
		linked = []string{linkedAdjudication}
	}
	return s.AddEvent(EventRationale, content, cycle, "", metadata, linked)
}

// GetEvent returns the event with the given id.
func (s *Stream) GetEvent(eventID string) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[eventID]
	if !ok {
		return Event{}, false
	}
	return s.events[pos-s.base], true
}

// GetEventsByCycle returns all events of one cycle in order.
func (s *Stream) GetEventsByCycle(cycle int) []Event {
	return s.filter(func(e Event) bool { return e.Cycle == cycle }, 0)
}

// GetEventsByType returns events of one type; limit > 0 keeps only the most
// recent matches.
func (s *Stream) GetEventsByType(eventType EventType, limit int) []Event {
	return s.filter(func(e Event) bool { return e.EventType == eventType }, limit)
}

// GetEventsByActor returns one actor's events; limit > 0 keeps only the most
// recent matches.
func (s *Stream) GetEventsByActor(actorID string, limit int) []Event {
	return s.filter(func(e Event) bool { return e.ActorID == actorID }, limit)
}

// GetRecentEvents returns the newest limit events in order.
func (s *Stream) GetRecentEvents(limit int) []Event {
	return s.filter(func(Event) bool { return true }, limit)
}

// GetRationalesForCycle returns the rationale events of a cycle.
func (s *Stream) GetRationalesForCycle(cycle int) []Event {
	return s.filter(func(e Event) bool {
		return e.EventType == EventRationale && e.Cycle == cycle
	}, 0)
}

func (s *Stream) filter(keep func(Event) bool, limit int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Event
	for _, e := range s.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// SearchQuery filters events by content substring plus optional fields.
type SearchQuery struct {
	Query      string
	EventTypes []EventType
	ActorID    string
	MinCycle   int
	MaxCycle   int
	HasRange   bool
}

// Search returns events whose content contains the query (case-insensitive)
// and that match every set filter.
func (s *Stream) Search(q SearchQuery) []Event {
	queryLower := strings.ToLower(q.Query)
	typeSet := make(map[EventType]bool, len(q.EventTypes))
	for _, t := range q.EventTypes {
		typeSet[t] = true
	}

	return s.filter(func(e Event) bool {
		if queryLower != "" && !strings.Contains(strings.ToLower(e.Content), queryLower) {
			return false
		}
		if len(typeSet) > 0 && !typeSet[e.EventType] {
			return false
		}
		if q.ActorID != "" && e.ActorID != q.ActorID {
			return false
		}
		if q.HasRange && (e.Cycle < q.MinCycle || e.Cycle > q.MaxCycle) {
			return false
		}
		return true
	}, 0)
}

// GetState exports the stream for checkpointing.
func (s *Stream) GetState() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]Event, len(s.events))
	copy(events, s.events)
	return map[string]any{
		"simulation_id": s.simulationID,
		"events":        events,
	}
}

// SetState restores events from a checkpoint produced by GetState.
func (s *Stream) SetState(state map[string]any) {
	events, ok := state["events"].([]Event)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make([]Event, len(events))
	copy(s.events, events)
	s.base = 0
	s.index = make(map[string]int, len(events))
	for i, e := range s.events {
		s.index[e.EventID] = i
	}
}

// ExportJSON serializes all events as indented JSON.
func (s *Stream) ExportJSON() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s.events, "", "  ")
	if err != nil {
		return "", fmt.Errorf("exporting stream: %w", err)
	}
	return string(data), nil
}

// Clear drops all events.
func (s *Stream) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.base = 0
	s.index = make(map[string]int)
}

// Len returns the number of stored events.
func (s *Stream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
