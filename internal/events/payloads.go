package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventPayload is the interface all typed payloads implement.
type EventPayload interface {
	EventType() EventType
}

// =============================================================================
// TOOL EVENTS
// =============================================================================

type ToolStatus string

const (
	ToolStatusStarted   ToolStatus = "started"
	ToolStatusCompleted ToolStatus = "completed"
	ToolStatusFailed    ToolStatus = "failed"
)

type ToolCallPayload struct {
	Status    ToolStatus     `json:"status"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorKind string         `json:"error_kind,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
}

func (ToolCallPayload) EventType() EventType { return EventToolCall }

// =============================================================================
// SKILL EVENTS
// =============================================================================

type SkillStartedPayload struct {
	Skill     string `json:"skill"`
	StepCount int    `json:"step_count"`
	Trigger   string `json:"trigger,omitempty"`
}

func (SkillStartedPayload) EventType() EventType { return EventSkillStarted }

type SkillCompletedPayload struct {
	Skill    string        `json:"skill"`
	Success  bool          `json:"success"`
	Steps    int           `json:"steps"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (SkillCompletedPayload) EventType() EventType { return EventSkillCompleted }

type SkillStepStartedPayload struct {
	Skill string `json:"skill"`
	Step  string `json:"step"`
	Index int    `json:"index"`
	Tool  string `json:"tool"`
}

func (SkillStepStartedPayload) EventType() EventType { return EventSkillStepStarted }

type SkillStepCompletedPayload struct {
	Skill     string        `json:"skill"`
	Step      string        `json:"step"`
	Index     int           `json:"index"`
	Tool      string        `json:"tool"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Duration  time.Duration `json:"duration"`
}

func (SkillStepCompletedPayload) EventType() EventType { return EventSkillStepCompleted }

type SkillsReloadedPayload struct {
	Count  int      `json:"count"`
	Errors []string `json:"errors,omitempty"`
}

func (SkillsReloadedPayload) EventType() EventType { return EventSkillsReloaded }

// =============================================================================
// SCHEDULER EVENTS
// =============================================================================

type ScheduleTriggerPayload struct {
	Name    string `json:"name"`
	Skill   string `json:"skill"`
	Cron    string `json:"cron,omitempty"`
	Trigger string `json:"trigger"` // "cron", "interval", "event:<type>" or "manual"
}

func (ScheduleTriggerPayload) EventType() EventType { return EventScheduleTrigger }

// =============================================================================
// TYPED EVENT CONSTRUCTORS
// =============================================================================

func NewTypedEvent(source EventSource, payload EventPayload) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      payload.EventType(),
		Timestamp: time.Now(),
		Source:    source,
		Payload:   toMap(payload),
	}
}

// NewTypedEventFromContext stamps the event with the run ID and user carried by ctx.
func NewTypedEventFromContext(ctx context.Context, source EventSource, payload EventPayload) Event {
	e := NewTypedEvent(source, payload)
	e.RunID = RunIDFromContext(ctx)
	e.User = UserFromContext(ctx)
	return e
}

func toMap(v any) map[string]any {
	var result map[string]any
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}

// =============================================================================
// TYPED PAYLOAD EXTRACTORS
// =============================================================================

func ExtractPayload[T EventPayload](e Event) (T, bool) {
	var result T
	if e.Type != result.EventType() {
		return result, false
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return result, false
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, false
	}
	return result, true
}
