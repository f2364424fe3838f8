package skills

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dohr-michael/bizclaw/internal/config"
)

// unknownStep labels steps declared without a "step" field.
const unknownStep = "unknown"

// Skill is a declarative workflow loaded from a definition file.
// Skills are never mutated after load.
type Skill struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Tools       []ToolRef      `json:"tools"`
	Vars        map[string]Var `json:"vars,omitempty"`
	Workflow    Workflow       `json:"workflow"`
	Source      string         `json:"-"` // file the skill was loaded from

	// set when the definition declared the field, even as ""
	hasName, hasDescription bool
}

// UnmarshalJSON records which of name and description were declared.
func (s *Skill) UnmarshalJSON(b []byte) error {
	type plain Skill
	var raw struct {
		plain
		Name        *string `json:"name"`
		Description *string `json:"description"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = Skill(raw.plain)
	s.Name, s.hasName = deref(raw.Name)
	s.Description, s.hasDescription = deref(raw.Description)
	return nil
}

// ToolRef names a tool the skill relies on.
type ToolRef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	hasName bool
}

// UnmarshalJSON records whether name was declared.
func (t *ToolRef) UnmarshalJSON(b []byte) error {
	type plain ToolRef
	var raw struct {
		plain
		Name *string `json:"name"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*t = ToolRef(raw.plain)
	t.Name, t.hasName = deref(raw.Name)
	return nil
}

func deref(p *string) (string, bool) {
	if p == nil {
		return "", false
	}
	return *p, true
}

// Var describes a skill input variable. Defaults seed the execution context.
type Var struct {
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
}

// Workflow holds the ordered steps of a skill.
type Workflow struct {
	Steps []Step `json:"steps"`
}

// Step is one tool invocation of a workflow.
type Step struct {
	Label           string `json:"step"`
	Tool            string `json:"tool"`
	Arguments       any    `json:"arguments,omitempty"`
	ContinueOnError bool   `json:"continue_on_error,omitempty"`
}

// UnmarshalJSON accepts numeric step labels ("step": 1).
func (s *Step) UnmarshalJSON(b []byte) error {
	type plain Step
	var raw struct {
		plain
		Label json.RawMessage `json:"step"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = Step(raw.plain)
	s.Label = ""
	if len(raw.Label) > 0 && string(raw.Label) != "null" {
		var label string
		if err := json.Unmarshal(raw.Label, &label); err != nil {
			label = strings.Trim(string(raw.Label), `"`)
		}
		s.Label = label
	}
	return nil
}

// label returns the step label, or "unknown" when none was declared.
func (s Step) label() string {
	if s.Label == "" {
		return unknownStep
	}
	return s.Label
}

// ToolNames returns the names of the declared tools.
func (s *Skill) ToolNames() []string {
	names := make([]string, 0, len(s.Tools))
	for _, t := range s.Tools {
		names = append(names, t.Name)
	}
	return names
}

// String returns a human-readable representation of the skill.
func (s *Skill) String() string {
	return fmt.Sprintf("%s (%d steps)", s.Name, len(s.Workflow.Steps))
}

// Validate reports whether s declares a name, a description, a tools list,
// and a name on every tool. Declared empty strings count as present. It does
// not check that the tools exist.
func Validate(s *Skill) bool {
	if s == nil || !s.declaresName() || !s.declaresDescription() || s.Tools == nil {
		return false
	}
	for _, t := range s.Tools {
		if !t.declaresName() {
			return false
		}
	}
	return true
}

func (s *Skill) declaresName() bool        { return s.hasName || s.Name != "" }
func (s *Skill) declaresDescription() bool { return s.hasDescription || s.Description != "" }
func (t ToolRef) declaresName() bool       { return t.hasName || t.Name != "" }

// ValidationError collects every problem found in a skill definition.
type ValidationError struct {
	Source   string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid skill %s: %s", e.Source, strings.Join(e.Problems, "; "))
}

// check returns the structural problems of s and warnings that do not prevent loading.
func (s *Skill) check() (problems, warnings []string) {
	if s.Name == "" {
		problems = append(problems, "name is required")
	}
	if !s.declaresDescription() {
		problems = append(problems, "description is required")
	}
	if s.Tools == nil {
		problems = append(problems, "tools is required")
	}
	declared := make(map[string]bool, len(s.Tools))
	for i, t := range s.Tools {
		if !t.declaresName() {
			problems = append(problems, fmt.Sprintf("tools[%d]: name is required", i))
		}
		declared[t.Name] = true
	}
	for i, st := range s.Workflow.Steps {
		if st.Tool == "" {
			problems = append(problems, fmt.Sprintf("workflow.steps[%d] (%s): tool is required", i, st.label()))
			continue
		}
		if !declared[st.Tool] {
			warnings = append(warnings, fmt.Sprintf("workflow.steps[%d] (%s): tool %q is not declared in tools", i, st.label(), st.Tool))
		}
	}
	for name := range s.Vars {
		if name == "" {
			problems = append(problems, "vars: empty variable name")
		}
	}
	return problems, warnings
}

// ParseSkill decodes a skill definition. The format is chosen from the file
// extension: .yaml/.yml are YAML, anything else is JSON with comments allowed.
func ParseSkill(data []byte, ext string) (*Skill, error) {
	var s Skill
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		js, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("convert yaml: %w", err)
		}
		if err := json.Unmarshal(js, &s); err != nil {
			return nil, err
		}
	default:
		if err := config.Unmarshal(data, &s); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// LoadSkill reads, parses and validates a skill definition file, returning
// non-fatal warnings alongside the skill. Structural problems are returned as
// a *ValidationError.
func LoadSkill(path string) (*Skill, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read skill %s: %w", path, err)
	}

	s, err := ParseSkill(data, filepath.Ext(path))
	if err != nil {
		return nil, nil, fmt.Errorf("parse skill %s: %w", path, err)
	}
	s.Source = path

	problems, warnings := s.check()
	if len(problems) > 0 {
		return nil, warnings, &ValidationError{Source: path, Problems: problems}
	}
	return s, warnings, nil
}
