package commands

import (
	"strings"
	"testing"

	"github.com/dohr-michael/bizclaw/internal/skills"
)

func TestParseInput(t *testing.T) {
	input, err := parseInput(`{"customer":"CUST-1","qty":1}`, []string{"qty=5", "note=hello world", "flag=true", "items=[1,2]"})
	if err != nil {
		t.Fatalf("parseInput: %v", err)
	}
	if input["customer"] != "CUST-1" {
		t.Errorf("expected customer from JSON, got %v", input["customer"])
	}
	if input["qty"] != float64(5) {
		t.Errorf("expected pair to override JSON with 5, got %v", input["qty"])
	}
	if input["note"] != "hello world" {
		t.Errorf("expected plain string, got %v", input["note"])
	}
	if input["flag"] != true {
		t.Errorf("expected bool, got %v", input["flag"])
	}
	if items, ok := input["items"].([]any); !ok || len(items) != 2 {
		t.Errorf("expected list, got %v", input["items"])
	}
}

func TestParseInput_Invalid(t *testing.T) {
	if _, err := parseInput(`[1]`, nil); err == nil {
		t.Error("expected error for non-object JSON")
	}
	if _, err := parseInput("", []string{"novalue"}); err == nil {
		t.Error("expected error for pair without =")
	}
	if _, err := parseInput("", []string{"=x"}); err == nil {
		t.Error("expected error for empty key")
	}
}

func TestRootCommand(t *testing.T) {
	root := NewRootCommand()
	want := map[string]bool{"serve": false, "skills": false, "tools": false, "runs": false, "schedule": false, "secret": false, "status": false, "watch": false}
	for _, c := range root.Commands {
		if _, ok := want[c.Name]; ok {
			want[c.Name] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected %s subcommand", name)
		}
	}
}

func TestSkillMarkdown(t *testing.T) {
	s := &skills.Skill{
		Name:        "find_item",
		Description: "Find an item",
		Vars: map[string]skills.Var{
			"qty":  {Description: "Quantity", Default: float64(5)},
			"code": {Description: "Item code", Required: true},
		},
		Workflow: skills.Workflow{Steps: []skills.Step{
			{Label: "find", Tool: "get_document"},
			{Tool: "get_count", ContinueOnError: true},
		}},
	}

	md := skillMarkdown(s)
	for _, want := range []string{
		"# find_item",
		"| `code` | true | - | Item code |",
		"| `qty` | false | `5` | Quantity |",
		"1. **find** calls `get_document`",
		"2. **unknown** calls `get_count` (continues on error)",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected markdown to contain %q, got:\n%s", want, md)
		}
	}
	if strings.Index(md, "`code`") > strings.Index(md, "`qty`") {
		t.Errorf("expected variables sorted by name")
	}
}
