package scheduler

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dohr-michael/bizclaw/internal/config"
	"github.com/dohr-michael/bizclaw/internal/events"
)

// MatchEvent reports whether e fires trigger. The trigger's Event is a
// doublestar pattern over the event type; every Filter entry must equal the
// payload value's printed form. Scheduler-originated events never match, so
// schedules cannot trigger each other in a loop.
func MatchEvent(e events.Event, trigger *config.EventTrigger) bool {
	if trigger == nil || e.Source == events.SourceScheduler {
		return false
	}
	if ok, err := doublestar.Match(trigger.Event, string(e.Type)); err != nil || !ok {
		return false
	}
	for key, want := range trigger.Filter {
		got, ok := e.Payload[key]
		if !ok || payloadString(got) != want {
			return false
		}
	}
	return true
}

func payloadString(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
