package events

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// EventType names what happened.
type EventType string

const (
	EventToolCall EventType = "tool.call"

	EventSkillStarted       EventType = "skill.started"
	EventSkillCompleted     EventType = "skill.completed"
	EventSkillStepStarted   EventType = "skill.step.started"
	EventSkillStepCompleted EventType = "skill.step.completed"
	EventSkillsReloaded     EventType = "skills.reloaded"

	EventScheduleTrigger EventType = "schedule.trigger"
)

// EventSource identifies the component that emitted an event.
type EventSource string

const (
	SourceTool      EventSource = "tool"
	SourceSkill     EventSource = "skill"
	SourceScheduler EventSource = "scheduler"
	SourceGateway   EventSource = "gateway"
)

// Event is one bus message. RunID and User are set when the event belongs to
// a skill run.
type Event struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id,omitempty"`
	User      string         `json:"user,omitempty"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Source    EventSource    `json:"source"`
	Payload   map[string]any `json:"payload"`
}

// NewEvent stamps a new event with a fresh ID and the current time.
func NewEvent(eventType EventType, source EventSource, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    source,
		Payload:   payload,
	}
}

// Query selects events. Zero fields match everything.
type Query struct {
	RunID string
	Types []EventType
	Limit int // keep the newest Limit matches, 0 for all
}

// Match reports whether e passes the RunID and Types filters. Limit is ignored.
func (q Query) Match(e Event) bool {
	if q.RunID != "" && e.RunID != q.RunID {
		return false
	}
	return len(q.Types) == 0 || slices.Contains(q.Types, e.Type)
}
