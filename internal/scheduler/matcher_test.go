package scheduler

import (
	"testing"

	"github.com/dohr-michael/bizclaw/internal/config"
	"github.com/dohr-michael/bizclaw/internal/events"
)

func TestMatchEvent(t *testing.T) {
	completed := func(payload map[string]any) events.Event {
		return events.Event{Type: events.EventSkillCompleted, Source: events.SourceSkill, Payload: payload}
	}
	newLead := &config.EventTrigger{Event: "skill.completed", Filter: map[string]string{"skill": "new_lead"}}

	tests := []struct {
		name    string
		event   events.Event
		trigger *config.EventTrigger
		want    bool
	}{
		{"nil trigger", completed(nil), nil, false},
		{"type match", completed(nil), &config.EventTrigger{Event: "skill.completed"}, true},
		{"type mismatch", completed(nil), &config.EventTrigger{Event: "skill.started"}, false},
		{"glob", completed(nil), &config.EventTrigger{Event: "skill.*"}, true},
		{"bad glob", completed(nil), &config.EventTrigger{Event: "skill.["}, false},
		{"filter match", completed(map[string]any{"skill": "new_lead", "success": true}), newLead, true},
		{"filter mismatch", completed(map[string]any{"skill": "customer_overview"}), newLead, false},
		{"filter key missing", completed(map[string]any{}), newLead, false},
		{
			"non-string payload",
			completed(map[string]any{"skill": "new_lead", "success": false}),
			&config.EventTrigger{Event: "skill.completed", Filter: map[string]string{"success": "false"}},
			true,
		},
		{
			"scheduler source",
			events.Event{Type: events.EventSkillCompleted, Source: events.SourceScheduler},
			&config.EventTrigger{Event: "skill.completed"},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchEvent(tt.event, tt.trigger); got != tt.want {
				t.Errorf("MatchEvent = %v, want %v", got, tt.want)
			}
		})
	}
}
