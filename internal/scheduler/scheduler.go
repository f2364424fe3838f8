// Package scheduler triggers skills on cron expressions, fixed intervals and bus events.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dohr-michael/bizclaw/internal/config"
	"github.com/dohr-michael/bizclaw/internal/events"
	"github.com/dohr-michael/bizclaw/internal/skills"
)

// Runner executes skills. *skills.Executor implements it.
type Runner interface {
	Execute(ctx context.Context, name string, input map[string]any, user string) *skills.Result
}

// Config holds dependencies for the scheduler.
type Config struct {
	Runner  Runner
	Bus     *events.Bus
	Entries []config.ScheduleConfig
}

// Scheduler manages cron-based, interval-based, and event-triggered execution.
type Scheduler struct {
	runner Runner
	bus    *events.Bus

	mu      sync.Mutex
	entries map[string]*runtimeEntry

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
}

// New creates a new Scheduler. Invalid entries are rejected as a whole.
func New(cfg Config) (*Scheduler, error) {
	s := &Scheduler{
		runner:  cfg.Runner,
		bus:     cfg.Bus,
		entries: make(map[string]*runtimeEntry, len(cfg.Entries)),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	var problems []string
	for i, sc := range cfg.Entries {
		re, err := newRuntimeEntry(sc)
		if err != nil {
			problems = append(problems, fmt.Sprintf("schedule %d: %v", i, err))
			continue
		}
		if _, dup := s.entries[re.name]; dup {
			problems = append(problems, fmt.Sprintf("schedule %d: duplicate name %q", i, re.name))
			continue
		}
		s.entries[re.name] = re
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid schedules: %s", strings.Join(problems, "; "))
	}
	return s, nil
}

func newRuntimeEntry(sc config.ScheduleConfig) (*runtimeEntry, error) {
	if sc.Skill == "" {
		return nil, fmt.Errorf("skill is required")
	}
	if sc.Cron == "" && sc.Interval == 0 && sc.OnEvent == nil {
		return nil, fmt.Errorf("schedule entry must have cron, interval, or on_event trigger")
	}
	if sc.Interval != 0 && sc.Interval.Duration() < minInterval {
		return nil, fmt.Errorf("interval must be at least %s", minInterval)
	}
	if sc.OnEvent != nil && sc.OnEvent.Event == "" {
		return nil, fmt.Errorf("on_event.event is required")
	}

	re := &runtimeEntry{
		name:     sc.Name,
		skill:    sc.Skill,
		interval: sc.Interval.Duration(),
		onEvent:  sc.OnEvent,
		cooldown: sc.Cooldown.Duration(),
		context:  sc.Context,
		user:     sc.User,
		enabled:  !sc.Disabled,
	}
	if re.name == "" {
		re.name = sc.Skill
	}
	if re.cooldown == 0 {
		re.cooldown = DefaultCooldown
	}
	if sc.Cron != "" {
		expr, err := ParseCron(sc.Cron)
		if err != nil {
			return nil, err
		}
		re.cron = expr
	}
	return re, nil
}

// Start begins the cron/interval tickers and event subscription.
func (s *Scheduler) Start() {
	if s.bus != nil {
		s.unsubscribe = s.bus.Subscribe(s.handleEvent)
	}
	s.wg.Add(2)
	go s.cronLoop()
	go s.intervalLoop()
	slog.Info("scheduler started", "entries", len(s.entries))
}

// Stop halts the scheduler, cancels running executions and waits for them.
func (s *Scheduler) Stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.cancel()
	s.wg.Wait()
	slog.Info("scheduler stopped")
}

// Entries returns a snapshot of all entries, sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]Entry, 0, len(s.entries))
	for _, re := range s.entries {
		out = append(out, re.snapshot(now))
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// SetEnabled pauses or resumes an entry.
func (s *Scheduler) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	re, ok := s.entries[name]
	if !ok {
		return fmt.Errorf("schedule entry not found: %s", name)
	}
	re.enabled = enabled
	return nil
}

// RunNow triggers an entry immediately, ignoring its cooldown, and waits for
// the run to finish.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*skills.Result, error) {
	s.mu.Lock()
	re, ok := s.entries[name]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("schedule entry not found: %s", name)
	}
	skill, input, user := re.skill, re.input(), re.user
	s.mu.Unlock()

	return s.run(ctx, re, skill, input, user, "manual"), nil
}

func (s *Scheduler) cronLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.checkCron(now)
		}
	}
}

func (s *Scheduler) intervalLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.checkIntervals(now)
		}
	}
}

func (s *Scheduler) checkCron(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.entries {
		if entry.cron == nil || !entry.enabled {
			continue
		}
		if !entry.cron.Matches(now) {
			continue
		}
		if now.Sub(entry.lastRun) < entry.cooldown {
			continue
		}

		s.triggerEntry(entry, "cron", now)
	}
}

func (s *Scheduler) checkIntervals(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.entries {
		if entry.interval <= 0 || !entry.enabled {
			continue
		}
		if now.Sub(entry.lastRun) < entry.interval {
			continue
		}

		s.triggerEntry(entry, "interval", now)
	}
}

func (s *Scheduler) handleEvent(e events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, entry := range s.entries {
		if entry.onEvent == nil || !entry.enabled {
			continue
		}
		if !MatchEvent(e, entry.onEvent) {
			continue
		}
		// A skill never re-triggers itself through its own events.
		if sk, _ := e.Payload["skill"].(string); sk == entry.skill {
			continue
		}
		if now.Sub(entry.lastRun) < entry.cooldown {
			continue
		}

		s.triggerEntry(entry, "event:"+string(e.Type), now)
	}
}

// triggerEntry starts a run for the given entry. Caller must hold s.mu.
// An entry whose previous run is still going is skipped.
func (s *Scheduler) triggerEntry(re *runtimeEntry, trigger string, now time.Time) {
	if re.running {
		slog.Warn("scheduler: previous run still in progress, skipping", "entry", re.name, "trigger", trigger)
		return
	}
	if s.ctx.Err() != nil {
		return
	}
	re.lastRun = now
	re.running = true

	skill, input, user := re.skill, re.input(), re.user
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(s.ctx, re, skill, input, user, trigger)
	}()
}

// run executes the entry's skill and records the outcome on the entry.
func (s *Scheduler) run(ctx context.Context, re *runtimeEntry, skill string, input map[string]any, user, trigger string) *skills.Result {
	if s.bus != nil {
		cron := ""
		if re.cron != nil {
			cron = re.cron.String()
		}
		s.bus.Publish(events.NewTypedEvent(events.SourceScheduler, events.ScheduleTriggerPayload{
			Name:    re.name,
			Skill:   skill,
			Cron:    cron,
			Trigger: trigger,
		}))
	}
	slog.Info("scheduler: triggered", "entry", re.name, "skill", skill, "trigger", trigger)

	res := s.runner.Execute(skills.WithTrigger(ctx, "schedule"), skill, input, user)

	s.mu.Lock()
	if trigger == "manual" {
		re.lastRun = time.Now()
	} else {
		re.running = false
	}
	re.runs++
	re.lastRunID = res.RunID
	re.lastSuccess = res.Success
	s.mu.Unlock()

	if !res.Success {
		slog.Warn("scheduler: run failed", "entry", re.name, "skill", skill, "run_id", res.RunID, "error", res.Error)
	}
	return res
}
