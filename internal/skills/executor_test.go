package skills

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dohr-michael/bizclaw/internal/erp"
	"github.com/dohr-michael/bizclaw/internal/events"
)

type invocation struct {
	Tool string
	Args map[string]any
	User string
}

// fakeInvoker returns scripted results per tool and records every call.
type fakeInvoker struct {
	mu      sync.Mutex
	results map[string]map[string]any
	errs    map[string]error
	calls   []invocation
	onCall  func(tool string)
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{results: map[string]map[string]any{}, errs: map[string]error{}}
}

func (f *fakeInvoker) Execute(_ context.Context, tool string, args map[string]any, user string) (map[string]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, invocation{Tool: tool, Args: args, User: user})
	res, err, hook := f.results[tool], f.errs[tool], f.onCall
	f.mu.Unlock()
	if hook != nil {
		hook(tool)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (f *fakeInvoker) Calls() []invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]invocation(nil), f.calls...)
}

type fakeRecorder struct {
	mu   sync.Mutex
	runs []RunRecord
}

func (r *fakeRecorder) RecordRun(_ context.Context, run RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func threeStepSkill(continueOnError bool) *Skill {
	return &Skill{
		Name:        "three",
		Description: "three steps",
		Tools:       []ToolRef{{Name: "one"}, {Name: "two"}, {Name: "three"}},
		Workflow: Workflow{Steps: []Step{
			{Label: "s1", Tool: "one", Arguments: map[string]any{}},
			{Label: "s2", Tool: "two", Arguments: map[string]any{}, ContinueOnError: continueOnError},
			{Label: "s3", Tool: "three", Arguments: map[string]any{}},
		}},
	}
}

func TestExecute_UnknownSkill(t *testing.T) {
	inv := newFakeInvoker()
	exec := NewExecutor(NewStore(), ExecutorConfig{Invoker: inv})

	res := exec.Execute(context.Background(), "nonexistent", map[string]any{}, "user1")
	if res.Success {
		t.Error("expected failure")
	}
	if res.Error != "Skill not found: nonexistent" {
		t.Errorf("unexpected error %q", res.Error)
	}
	if len(inv.Calls()) != 0 {
		t.Errorf("expected no tool calls, got %d", len(inv.Calls()))
	}

	b, err := json.Marshal(res)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"success":false,"error":"Skill not found: nonexistent"}` {
		t.Errorf("unexpected JSON %s", b)
	}
}

func TestExecute_ThreadsContext(t *testing.T) {
	inv := newFakeInvoker()
	inv.results["produce"] = map[string]any{"x": 5.0}
	skill := &Skill{
		Name:        "thread",
		Description: "d",
		Tools:       []ToolRef{{Name: "produce"}, {Name: "consume"}},
		Workflow: Workflow{Steps: []Step{
			{Label: "step1", Tool: "produce"},
			{Label: "step2", Tool: "consume", Arguments: map[string]any{"value": "${x}", "who": "${user_name}"}},
		}},
	}
	exec := NewExecutor(NewStore(skill), ExecutorConfig{Invoker: inv})

	input := map[string]any{"user_name": "bob"}
	res := exec.Execute(context.Background(), "thread", input, "alice")
	if !res.Success || len(res.Results) != 2 {
		t.Fatalf("expected 2 successful steps, got %+v", res)
	}

	calls := inv.Calls()
	if calls[1].Args["value"] != "5" {
		t.Errorf("expected step2 value %q, got %v", "5", calls[1].Args["value"])
	}
	if calls[1].Args["who"] != "bob" {
		t.Errorf("expected who=bob, got %v", calls[1].Args["who"])
	}
	if calls[0].User != "alice" || calls[1].User != "alice" {
		t.Errorf("expected user alice on every call, got %v", calls)
	}
	if len(input) != 1 {
		t.Errorf("caller context was modified: %v", input)
	}
	if calls[0].Args == nil {
		t.Error("expected empty arguments object for a step without arguments")
	}
}

func TestExecute_LastWriteWins(t *testing.T) {
	inv := newFakeInvoker()
	inv.results["a"] = map[string]any{"v": "from-a"}
	inv.results["b"] = map[string]any{"v": "from-b"}
	skill := &Skill{
		Name: "lww", Description: "d", Tools: []ToolRef{},
		Workflow: Workflow{Steps: []Step{
			{Tool: "a", Arguments: map[string]any{"seen": "${v}"}},
			{Tool: "b", Arguments: map[string]any{"seen": "${v}"}},
			{Tool: "c", Arguments: map[string]any{"seen": "${v}"}},
		}},
	}
	exec := NewExecutor(NewStore(skill), ExecutorConfig{Invoker: inv})

	res := exec.Execute(context.Background(), "lww", map[string]any{"v": "initial"}, "")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	calls := inv.Calls()
	for i, want := range []string{"initial", "from-a", "from-b"} {
		if calls[i].Args["seen"] != want {
			t.Errorf("call %d: expected %q, got %v", i, want, calls[i].Args["seen"])
		}
	}
	if res.Results[0].Step != "unknown" {
		t.Errorf("expected default step label, got %q", res.Results[0].Step)
	}
}

func TestExecute_StopsOnError(t *testing.T) {
	inv := newFakeInvoker()
	inv.errs["two"] = &erp.Error{Kind: erp.KindValidation, Status: 417, Message: "Mandatory field missing"}
	exec := NewExecutor(NewStore(threeStepSkill(false)), ExecutorConfig{Invoker: inv})

	res := exec.Execute(context.Background(), "three", nil, "u")
	if res.Success {
		t.Error("expected overall failure")
	}
	if len(res.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(res.Results))
	}
	if !res.Results[0].Success || res.Results[1].Success {
		t.Errorf("expected success then failure, got %+v", res.Results)
	}
	if res.Results[1].ErrorKind != erp.KindValidation {
		t.Errorf("expected validation kind, got %q", res.Results[1].ErrorKind)
	}
	if res.Results[1].Error != "HTTP 417: Mandatory field missing" {
		t.Errorf("unexpected error %q", res.Results[1].Error)
	}
	if len(inv.Calls()) != 2 {
		t.Errorf("expected step 3 never attempted, got %d calls", len(inv.Calls()))
	}
}

func TestExecute_ContinueOnError(t *testing.T) {
	inv := newFakeInvoker()
	inv.errs["two"] = errors.New("boom")
	exec := NewExecutor(NewStore(threeStepSkill(true)), ExecutorConfig{Invoker: inv})

	res := exec.Execute(context.Background(), "three", nil, "u")
	if len(res.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res.Results))
	}
	if res.Success {
		t.Error("expected overall failure with a failed step")
	}
	if res.Results[1].ErrorKind != erp.KindUnknown {
		t.Errorf("expected unknown kind for a plain error, got %q", res.Results[1].ErrorKind)
	}

	delete(inv.errs, "two")
	res = exec.Execute(context.Background(), "three", nil, "u")
	if !res.Success || len(res.Results) != 3 {
		t.Errorf("expected all steps to succeed, got %+v", res)
	}
}

func TestExecute_ZeroSteps(t *testing.T) {
	exec := NewExecutor(NewStore(&Skill{Name: "empty", Description: "d", Tools: []ToolRef{}}), ExecutorConfig{Invoker: newFakeInvoker()})

	res := exec.Execute(context.Background(), "empty", nil, "")
	if !res.Success {
		t.Error("expected vacuous success")
	}
	if res.Results == nil || len(res.Results) != 0 {
		t.Errorf("expected empty results, got %v", res.Results)
	}
	b, _ := json.Marshal(res)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	if list, ok := m["results"].([]any); !ok || len(list) != 0 {
		t.Errorf("expected results: [], got %s", b)
	}
}

func TestExecute_VarsDefaultsAndRequired(t *testing.T) {
	inv := newFakeInvoker()
	skill := &Skill{
		Name: "vars", Description: "d", Tools: []ToolRef{},
		Vars: map[string]Var{
			"group": {Default: "Commercial"},
			"name":  {Required: true},
		},
		Workflow: Workflow{Steps: []Step{{Tool: "create", Arguments: map[string]any{"g": "${group}", "n": "${name}"}}}},
	}
	exec := NewExecutor(NewStore(skill), ExecutorConfig{Invoker: inv})

	res := exec.Execute(context.Background(), "vars", map[string]any{}, "")
	if res.Success || res.ErrorKind != erp.KindInvalidInput {
		t.Errorf("expected invalid_input failure, got %+v", res)
	}
	if len(inv.Calls()) != 0 {
		t.Error("expected no calls when a required var is missing")
	}

	res = exec.Execute(context.Background(), "vars", map[string]any{"name": "ACME"}, "")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	args := inv.Calls()[0].Args
	if args["g"] != "Commercial" || args["n"] != "ACME" {
		t.Errorf("unexpected args %v", args)
	}
}

func TestExecute_NonObjectArguments(t *testing.T) {
	inv := newFakeInvoker()
	skill := &Skill{
		Name: "bad", Description: "d", Tools: []ToolRef{},
		Workflow: Workflow{Steps: []Step{{Tool: "x", Arguments: []any{"a"}}}},
	}
	exec := NewExecutor(NewStore(skill), ExecutorConfig{Invoker: inv})

	res := exec.Execute(context.Background(), "bad", nil, "")
	if res.Success || res.Results[0].ErrorKind != erp.KindInvalidInput {
		t.Errorf("expected invalid_input step failure, got %+v", res)
	}
	if len(inv.Calls()) != 0 {
		t.Error("expected the tool not to be invoked")
	}
}

func TestExecute_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inv := newFakeInvoker()
	inv.onCall = func(tool string) {
		if tool == "one" {
			cancel()
		}
	}
	exec := NewExecutor(NewStore(threeStepSkill(false)), ExecutorConfig{Invoker: inv})

	res := exec.Execute(ctx, "three", nil, "")
	if len(res.Results) != 2 {
		t.Fatalf("expected step1 and a canceled step2, got %+v", res.Results)
	}
	if res.Results[1].ErrorKind != erp.KindCanceled || res.Success {
		t.Errorf("expected canceled failure, got %+v", res.Results[1])
	}
	if len(inv.Calls()) != 1 {
		t.Errorf("expected a single tool call, got %d", len(inv.Calls()))
	}
}

func TestExecute_EventsAndRecorder(t *testing.T) {
	bus := events.NewBus(32)
	defer bus.Close()
	ch, unsub := bus.SubscribeChan(16, events.EventSkillStarted, events.EventSkillStepCompleted, events.EventSkillCompleted)
	defer unsub()

	rec := &fakeRecorder{}
	inv := newFakeInvoker()
	exec := NewExecutor(NewStore(threeStepSkill(false)), ExecutorConfig{Invoker: inv, Bus: bus, Recorder: rec})

	res := exec.Execute(WithTrigger(context.Background(), "cli"), "three", map[string]any{"a": 1.0}, "alice")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}

	var types []events.EventType
	for len(types) < 5 {
		select {
		case e := <-ch:
			if e.RunID != res.RunID {
				t.Errorf("expected run id %q, got %q", res.RunID, e.RunID)
			}
			types = append(types, e.Type)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %v", types)
		}
	}
	if types[0] != events.EventSkillStarted || types[4] != events.EventSkillCompleted {
		t.Errorf("unexpected event order %v", types)
	}

	if len(rec.runs) != 1 {
		t.Fatalf("expected 1 recorded run, got %d", len(rec.runs))
	}
	run := rec.runs[0]
	if run.ID != res.RunID || run.User != "alice" || run.Trigger != "cli" || run.Context["a"] != 1.0 {
		t.Errorf("unexpected run record %+v", run)
	}
}

func TestExecutor_SetStore(t *testing.T) {
	exec := NewExecutor(nil, ExecutorConfig{Invoker: newFakeInvoker()})
	if exec.Store().Len() != 0 {
		t.Error("expected empty store")
	}
	exec.SetStore(NewStore(&Skill{Name: "x", Description: "d", Tools: []ToolRef{}}))
	if res := exec.Execute(context.Background(), "x", nil, ""); !res.Success {
		t.Errorf("expected swapped store to serve x, got %+v", res)
	}
}
