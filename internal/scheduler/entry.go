package scheduler

import (
	"maps"
	"time"

	"github.com/dohr-michael/bizclaw/internal/config"
)

// DefaultCooldown is the minimum interval between two triggers of the same entry.
const DefaultCooldown = 60 * time.Second

// minInterval bounds interval entries.
const minInterval = 5 * time.Second

// Entry is a read-only snapshot of a schedule entry.
type Entry struct {
	Name        string               `json:"name"`
	Skill       string               `json:"skill"`
	Cron        string               `json:"cron,omitempty"`
	Interval    time.Duration        `json:"interval,omitempty"`
	OnEvent     *config.EventTrigger `json:"on_event,omitempty"`
	User        string               `json:"user,omitempty"`
	Enabled     bool                 `json:"enabled"`
	Next        *time.Time           `json:"next,omitempty"`
	LastRun     *time.Time           `json:"last_run,omitempty"`
	LastRunID   string               `json:"last_run_id,omitempty"`
	LastSuccess bool                 `json:"last_success"`
	Runs        int                  `json:"runs"`
}

// runtimeEntry is the internal, mutable state of an entry. Guarded by Scheduler.mu.
type runtimeEntry struct {
	name     string
	skill    string
	cron     *CronExpr
	interval time.Duration
	onEvent  *config.EventTrigger
	cooldown time.Duration
	context  map[string]any
	user     string
	enabled  bool

	running     bool
	lastRun     time.Time
	lastRunID   string
	lastSuccess bool
	runs        int
}

func (r *runtimeEntry) snapshot(now time.Time) Entry {
	e := Entry{
		Name:        r.name,
		Skill:       r.skill,
		Interval:    r.interval,
		OnEvent:     r.onEvent,
		User:        r.user,
		Enabled:     r.enabled,
		LastRunID:   r.lastRunID,
		LastSuccess: r.lastSuccess,
		Runs:        r.runs,
	}
	if r.cron != nil {
		e.Cron = r.cron.String()
		next := r.cron.Next(now)
		e.Next = &next
	} else if r.interval > 0 {
		next := r.lastRun.Add(r.interval)
		if r.lastRun.IsZero() || next.Before(now) {
			next = now
		}
		e.Next = &next
	}
	if !r.lastRun.IsZero() {
		t := r.lastRun
		e.LastRun = &t
	}
	return e
}

// input returns a fresh copy of the entry's context for one run.
func (r *runtimeEntry) input() map[string]any {
	if r.context == nil {
		return map[string]any{}
	}
	return maps.Clone(r.context)
}
