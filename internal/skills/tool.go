package skills

import (
	"context"
	"log/slog"

	"github.com/dohr-michael/bizclaw/internal/erp"
	"github.com/dohr-michael/bizclaw/internal/events"
	"github.com/dohr-michael/bizclaw/internal/tools"
)

// ManifestName is the manifest skill tools are registered under.
const ManifestName = "skills"

// ToolPrefix prefixes the tool exposing each skill.
const ToolPrefix = "skill_"

type skillNameInput struct {
	Name string `json:"name"`
}

type executeSkillInput struct {
	Name    string         `json:"name"`
	Context map[string]any `json:"context"`
}

// RegisterTools registers list_skills, get_skill, execute_skill and one
// skill_<name> tool per loaded skill. Previously registered skill tools are
// replaced, so it is also the reload path.
func RegisterTools(registry *tools.ToolRegistry, exec *Executor) error {
	registry.Unregister(ManifestName)

	var all []tools.ToolSpec
	var impls []tools.NativeTool

	add := func(t tools.NativeTool) {
		impls = append(impls, t)
		all = append(all, *t.Spec())
	}

	add(tools.NewFuncTool(tools.ToolSpec{
		Name:        "list_skills",
		Description: "List the available skills with their descriptions.",
		ReadOnly:    true,
		Idempotent:  true,
	}, func(_ context.Context, _ struct{}) (map[string]any, error) {
		list := []any{}
		for _, s := range exec.Store().List() {
			list = append(list, map[string]any{
				"name":        s.Name,
				"description": s.Description,
				"steps":       len(s.Workflow.Steps),
			})
		}
		return map[string]any{"skills": list, "count": len(list)}, nil
	}))

	add(tools.NewFuncTool(tools.ToolSpec{
		Name:        "get_skill",
		Description: "Get the full definition of a skill.",
		Parameters: map[string]tools.ParamSpec{
			"name": {Type: "string", Description: "Skill name", Required: true},
		},
		ReadOnly:   true,
		Idempotent: true,
	}, func(_ context.Context, in skillNameInput) (map[string]any, error) {
		s := exec.Store().Get(in.Name)
		if s == nil {
			return nil, erp.Errorf(erp.KindNotFound, "Skill not found: %s", in.Name)
		}
		return Describe(s), nil
	}))

	add(tools.NewFuncTool(tools.ToolSpec{
		Name:        "execute_skill",
		Description: "Execute a skill workflow with the given context variables.",
		Parameters: map[string]tools.ParamSpec{
			"name":    {Type: "string", Description: "Skill name", Required: true},
			"context": {Type: "object", Description: "Initial context variables"},
		},
		GatesReadOnly: true,
	}, func(ctx context.Context, in executeSkillInput) (map[string]any, error) {
		if s := exec.Store().Get(in.Name); s != nil && registry.ReadOnly() {
			if readOnly, _ := access(s, registry); !readOnly {
				return nil, erp.Errorf(erp.KindPermission, "skill %q writes to the ERP and the server is read-only", in.Name)
			}
		}
		res := exec.Execute(WithTrigger(ctx, "tool"), in.Name, in.Context, events.UserFromContext(ctx))
		return res.Map(), nil
	}))

	for _, s := range exec.Store().List() {
		add(NewSkillTool(s, exec, registry))
	}

	manifest := &tools.Manifest{
		Name:        ManifestName,
		Description: "Declarative skill workflows",
		Provider:    "skill",
		Tools:       all,
	}
	for _, t := range impls {
		if err := registry.RegisterNative(t.Spec().Name, t, manifest); err != nil {
			slog.Warn("failed to register skill tool", "tool", t.Spec().Name, "error", err)
		}
	}
	return nil
}

// NewSkillTool exposes a skill as skill_<name>. Its parameters are the skill's
// vars; it is read-only when every step tool is, and dangerous when any is.
func NewSkillTool(s *Skill, exec *Executor, registry *tools.ToolRegistry) *tools.FuncTool[map[string]any] {
	spec := tools.ToolSpec{
		Name:        ToolPrefix + s.Name,
		Description: s.Description,
		Parameters:  make(map[string]tools.ParamSpec, len(s.Vars)),
	}
	for name, v := range s.Vars {
		spec.Parameters[name] = tools.ParamSpec{
			Type:        paramType(v.Default),
			Description: v.Description,
			Required:    v.Required,
			Default:     v.Default,
		}
	}
	spec.ReadOnly, spec.Dangerous = access(s, registry)
	spec.Idempotent = spec.ReadOnly

	name := s.Name
	return tools.NewFuncTool(spec, func(ctx context.Context, input map[string]any) (map[string]any, error) {
		res := exec.Execute(WithTrigger(ctx, "tool"), name, input, events.UserFromContext(ctx))
		return res.Map(), nil
	})
}

// access resolves a skill's access from its step tools as currently
// registered: read-only when every step tool is, dangerous when any is.
func access(s *Skill, registry *tools.ToolRegistry) (readOnly, dangerous bool) {
	readOnly = true
	for _, st := range s.Workflow.Steps {
		ts := registry.ToolSpec(st.Tool)
		if ts == nil || !ts.ReadOnly {
			readOnly = false
		}
		if ts != nil && ts.Dangerous {
			dangerous = true
		}
	}
	return readOnly, dangerous
}

func paramType(def any) string {
	switch def.(type) {
	case bool:
		return "boolean"
	case float64, int:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	return "string"
}

// Describe returns the JSON object form of a skill definition.
func Describe(s *Skill) map[string]any {
	steps := make([]any, len(s.Workflow.Steps))
	for i, st := range s.Workflow.Steps {
		step := map[string]any{"step": st.label(), "tool": st.Tool}
		if st.Arguments != nil {
			step["arguments"] = st.Arguments
		}
		if st.ContinueOnError {
			step["continue_on_error"] = true
		}
		steps[i] = step
	}
	vars := map[string]any{}
	for name, v := range s.Vars {
		vars[name] = map[string]any{"description": v.Description, "required": v.Required, "default": v.Default}
	}
	out := map[string]any{
		"name":        s.Name,
		"description": s.Description,
		"tools":       s.ToolNames(),
		"workflow":    map[string]any{"steps": steps},
		"source":      s.Source,
	}
	if len(vars) > 0 {
		out["vars"] = vars
	}
	return out
}
