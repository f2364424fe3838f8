package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dohr-michael/bizclaw/internal/erp"
	"github.com/dohr-michael/bizclaw/internal/events"
)

// maxSkillDepth bounds skills invoking other skills through their tools.
const maxSkillDepth = 8

// Invoker runs a single tool on behalf of a user. Failures should be *erp.Error
// values so their kind is kept in step results.
type Invoker interface {
	Execute(ctx context.Context, tool string, args map[string]any, user string) (map[string]any, error)
}

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, run RunRecord) error
}

// RunRecord is a finished skill execution.
type RunRecord struct {
	ID         string         `json:"id"`
	Skill      string         `json:"skill"`
	User       string         `json:"user"`
	Trigger    string         `json:"trigger"`
	Context    map[string]any `json:"context"` // initial context, defaults applied
	Result     *Result        `json:"result"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// StepResult is the outcome of one attempted step.
type StepResult struct {
	Step      string         `json:"step"`
	Tool      string         `json:"tool"`
	Success   bool           `json:"success"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	ErrorKind erp.Kind       `json:"error_kind,omitempty"`
	Duration  time.Duration  `json:"duration"`
}

// Result is the outcome of a skill execution. Results holds one entry per
// attempted step, in order; steps after a stopping failure are absent.
type Result struct {
	RunID     string       `json:"run_id,omitempty"`
	Success   bool         `json:"success"`
	Skill     string       `json:"skill"`
	Results   []StepResult `json:"results"`
	Error     string       `json:"error,omitempty"`
	ErrorKind erp.Kind     `json:"error_kind,omitempty"`
}

// MarshalJSON renders an unknown skill as {"success": false, "error": ...}.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.ErrorKind == erp.KindNotFound && r.Results == nil {
		return json.Marshal(struct {
			Success bool   `json:"success"`
			Error   string `json:"error"`
		}{r.Success, r.Error})
	}
	type plain Result
	return json.Marshal(plain(r))
}

// Map returns the JSON object form of r.
func (r *Result) Map() map[string]any {
	b, err := json.Marshal(r)
	if err != nil {
		return map[string]any{"success": false, "error": err.Error()}
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

// FailedStep returns the first failed step, or nil.
func (r *Result) FailedStep() *StepResult {
	for i := range r.Results {
		if !r.Results[i].Success {
			return &r.Results[i]
		}
	}
	return nil
}

// ExecutorConfig holds the executor's collaborators. Only Invoker is required.
type ExecutorConfig struct {
	Invoker  Invoker
	Bus      *events.Bus
	Recorder Recorder
}

// Executor runs skills step by step. It is safe for concurrent use; each
// execution owns its context and results.
type Executor struct {
	store atomic.Pointer[Store]
	cfg   ExecutorConfig
}

// NewExecutor creates an executor reading skills from store.
func NewExecutor(store *Store, cfg ExecutorConfig) *Executor {
	e := &Executor{cfg: cfg}
	e.SetStore(store)
	return e
}

// Store returns the current skill store.
func (e *Executor) Store() *Store { return e.store.Load() }

// SetStore swaps the skill store. Running executions keep the skill they resolved.
func (e *Executor) SetStore(s *Store) {
	if s == nil {
		s = NewStore()
	}
	e.store.Store(s)
}

type triggerKey struct{}
type depthKey struct{}

// WithTrigger labels executions started with ctx ("cli", "mcp", "schedule", ...).
func WithTrigger(ctx context.Context, trigger string) context.Context {
	return context.WithValue(ctx, triggerKey{}, trigger)
}

// TriggerFromContext returns the trigger label set by WithTrigger, "api" by default.
func TriggerFromContext(ctx context.Context) string {
	if t, ok := ctx.Value(triggerKey{}).(string); ok {
		return t
	}
	return "api"
}

// Execute runs the named skill with input as its initial context on behalf of user.
// It never returns an error: unknown skills and failing steps are reported in the
// Result. input is not modified.
func (e *Executor) Execute(ctx context.Context, name string, input map[string]any, user string) *Result {
	runID := uuid.NewString()
	ctx = events.ContextWithRunID(ctx, runID)
	ctx = events.ContextWithUser(ctx, user)
	started := time.Now()

	skill := e.Store().Get(name)
	if skill == nil {
		slog.Warn("skill not found", "skill", name, "user", user)
		res := &Result{
			RunID:     runID,
			Success:   false,
			Skill:     name,
			Error:     "Skill not found: " + name,
			ErrorKind: erp.KindNotFound,
		}
		e.record(ctx, input, res, started)
		return res
	}

	vars, missing := seedContext(skill, input)
	if len(missing) > 0 {
		res := &Result{
			RunID:     runID,
			Skill:     name,
			Results:   []StepResult{},
			Error:     "missing required variable(s): " + strings.Join(missing, ", "),
			ErrorKind: erp.KindInvalidInput,
		}
		e.record(ctx, vars, res, started)
		return res
	}
	initial := maps.Clone(vars)

	depth, _ := ctx.Value(depthKey{}).(int)
	if depth >= maxSkillDepth {
		res := &Result{
			RunID:     runID,
			Skill:     name,
			Results:   []StepResult{},
			Error:     fmt.Sprintf("skill nesting deeper than %d", maxSkillDepth),
			ErrorKind: erp.KindInvalidInput,
		}
		e.record(ctx, initial, res, started)
		return res
	}
	ctx = context.WithValue(ctx, depthKey{}, depth+1)

	steps := skill.Workflow.Steps
	e.publish(ctx, events.SkillStartedPayload{Skill: name, StepCount: len(steps), Trigger: TriggerFromContext(ctx)})
	slog.Info("skill started", "skill", name, "run_id", runID, "user", user, "steps", len(steps))

	results := make([]StepResult, 0, len(steps))
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			results = append(results, StepResult{
				Step:      step.label(),
				Tool:      step.Tool,
				Error:     "execution canceled: " + err.Error(),
				ErrorKind: erp.KindCanceled,
			})
			break
		}

		sr := e.runStep(ctx, name, i, step, vars, user)
		results = append(results, sr)
		if sr.Success {
			maps.Copy(vars, sr.Result)
			continue
		}
		if !step.ContinueOnError {
			break
		}
	}

	res := &Result{
		RunID:   runID,
		Success: !slices.ContainsFunc(results, func(r StepResult) bool { return !r.Success }),
		Skill:   name,
		Results: results,
	}
	if failed := res.FailedStep(); failed != nil {
		res.Error = fmt.Sprintf("step %s (%s) failed: %s", failed.Step, failed.Tool, failed.Error)
		res.ErrorKind = failed.ErrorKind
	}

	e.publish(ctx, events.SkillCompletedPayload{
		Skill:    name,
		Success:  res.Success,
		Steps:    len(results),
		Error:    res.Error,
		Duration: time.Since(started),
	})
	slog.Info("skill completed", "skill", name, "run_id", runID, "success", res.Success, "steps", len(results), "duration", time.Since(started))
	e.record(ctx, initial, res, started)
	return res
}

// runStep substitutes the step arguments from vars and invokes the tool.
func (e *Executor) runStep(ctx context.Context, skill string, i int, step Step, vars map[string]any, user string) StepResult {
	sr := StepResult{Step: step.label(), Tool: step.Tool}
	e.publish(ctx, events.SkillStepStartedPayload{Skill: skill, Step: sr.Step, Index: i, Tool: step.Tool})

	start := time.Now()
	args, err := stepArguments(Substitute(step.Arguments, vars))
	var out map[string]any
	if err == nil {
		out, err = e.cfg.Invoker.Execute(ctx, step.Tool, args, user)
	}
	sr.Duration = time.Since(start)

	if err != nil {
		sr.Error = err.Error()
		sr.ErrorKind = erp.KindOf(err)
		slog.Warn("skill step failed", "skill", skill, "step", sr.Step, "tool", step.Tool, "kind", sr.ErrorKind, "error", err)
	} else {
		sr.Success = true
		sr.Result = out
		if sr.Result == nil {
			sr.Result = map[string]any{}
		}
	}

	e.publish(ctx, events.SkillStepCompletedPayload{
		Skill:     skill,
		Step:      sr.Step,
		Index:     i,
		Tool:      step.Tool,
		Success:   sr.Success,
		Error:     sr.Error,
		ErrorKind: string(sr.ErrorKind),
		Duration:  sr.Duration,
	})
	return sr
}

// stepArguments turns substituted step arguments into a tool argument object.
func stepArguments(v any) (map[string]any, error) {
	switch t := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return t, nil
	}
	return nil, erp.Errorf(erp.KindInvalidInput, "step arguments must be an object, got %T", v)
}

// seedContext copies input over the skill's variable defaults and lists the
// required variables that are still missing.
func seedContext(s *Skill, input map[string]any) (map[string]any, []string) {
	vars := make(map[string]any, len(input)+len(s.Vars))
	for name, v := range s.Vars {
		if v.Default != nil {
			vars[name] = v.Default
		}
	}
	maps.Copy(vars, input)

	var missing []string
	for name, v := range s.Vars {
		if _, ok := vars[name]; v.Required && !ok {
			missing = append(missing, name)
		}
	}
	slices.Sort(missing)
	return vars, missing
}

func (e *Executor) publish(ctx context.Context, p events.EventPayload) {
	if e.cfg.Bus == nil {
		return
	}
	e.cfg.Bus.Publish(events.NewTypedEventFromContext(ctx, events.SourceSkill, p))
}

func (e *Executor) record(ctx context.Context, initial map[string]any, res *Result, started time.Time) {
	if e.cfg.Recorder == nil {
		return
	}
	run := RunRecord{
		ID:         res.RunID,
		Skill:      res.Skill,
		User:       events.UserFromContext(ctx),
		Trigger:    TriggerFromContext(ctx),
		Context:    initial,
		Result:     res,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	// A canceled execution is still recorded.
	if err := e.cfg.Recorder.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		slog.Warn("failed to record skill run", "run_id", res.RunID, "error", err)
	}
}
