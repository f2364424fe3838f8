package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/bizclaw/internal/erp"
)

// NativeTool is an InvokableTool that carries its own ToolSpec.
type NativeTool interface {
	tool.InvokableTool
	Spec() *ToolSpec
}

// FuncTool adapts a typed handler to tool.InvokableTool.
// The JSON arguments are decoded into In before the handler runs.
type FuncTool[In any] struct {
	spec ToolSpec
	run  func(ctx context.Context, in In) (map[string]any, error)
}

// NewFuncTool creates a FuncTool running run for every call.
func NewFuncTool[In any](spec ToolSpec, run func(context.Context, In) (map[string]any, error)) *FuncTool[In] {
	return &FuncTool[In]{spec: spec, run: run}
}

func (t *FuncTool[In]) Spec() *ToolSpec { return &t.spec }

// Info returns the ToolInfo for Eino registration.
func (t *FuncTool[In]) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.spec.ToolInfo(), nil
}

// InvokableRun decodes the arguments, runs the handler and encodes its result.
func (t *FuncTool[In]) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in In
	if s := strings.TrimSpace(argumentsInJSON); s != "" && s != "null" {
		if err := json.Unmarshal([]byte(s), &in); err != nil {
			return "", erp.Errorf(erp.KindInvalidInput, "%s: parse input: %v", t.spec.Name, err)
		}
	}
	if err := checkRequired(&t.spec, argumentsInJSON); err != nil {
		return "", err
	}

	res, err := t.run(ctx, in)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("%s: marshal result: %w", t.spec.Name, err)
	}
	return string(out), nil
}

// checkRequired rejects calls missing a required parameter.
func checkRequired(spec *ToolSpec, argumentsInJSON string) error {
	var missing []string
	var args map[string]any
	_ = json.Unmarshal([]byte(argumentsInJSON), &args)
	for name, p := range spec.Parameters {
		if !p.Required {
			continue
		}
		v, ok := args[name]
		if !ok || v == nil || v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return erp.Errorf(erp.KindInvalidInput, "%s: missing required parameter(s): %s", spec.Name, strings.Join(missing, ", "))
}

// flexJSON accepts a JSON value either inline or encoded as a string,
// e.g. {"filters": {"status": "Open"}} or {"filters": "{\"status\": \"Open\"}"}.
type flexJSON struct {
	Value any
}

func (f *flexJSON) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			f.Value = nil
			return nil
		}
		if err := json.Unmarshal([]byte(s), &f.Value); err != nil {
			return fmt.Errorf("invalid JSON: %w", err)
		}
		return nil
	}
	return json.Unmarshal(b, &f.Value)
}

// Object returns the value as a JSON object; absent values yield an empty object.
func (f flexJSON) Object(param string) (map[string]any, error) {
	switch v := f.Value.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	}
	return nil, erp.Errorf(erp.KindInvalidInput, "%s must be a JSON object", param)
}

// List returns the value as a JSON array.
func (f flexJSON) List(param string) ([]any, error) {
	if v, ok := f.Value.([]any); ok {
		return v, nil
	}
	return nil, erp.Errorf(erp.KindInvalidInput, "%s must be a JSON array", param)
}

// Filters returns the value as Frappe filters: an object or a list of conditions.
func (f flexJSON) Filters() (any, error) {
	switch v := f.Value.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any, []any:
		return v, nil
	}
	return nil, erp.Errorf(erp.KindInvalidInput, "filters must be a JSON object or array")
}

// flexInt accepts a JSON number or a numeric string.
type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("expected an integer, got %s", b)
	}
	f.Value = int(n)
	f.Set = true
	return nil
}

// Or returns the value, or def when unset.
func (f flexInt) Or(def int) int {
	if !f.Set {
		return def
	}
	return f.Value
}

// flexBool accepts true/false, 0/1 and their string forms.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	s := strings.ToLower(strings.Trim(string(b), `"`))
	switch s {
	case "true", "1", "yes":
		*f = true
	case "false", "0", "no", "", "null":
		*f = false
	default:
		return fmt.Errorf("expected a boolean, got %s", b)
	}
	return nil
}

// csvFields splits "name, status" into a field list.
func csvFields(s, def string) []string {
	if strings.TrimSpace(s) == "" {
		s = def
	}
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func clamp(n, lo, hi int) int {
	return max(lo, min(hi, n))
}

// dataField returns res["data"] as an object.
func dataField(res map[string]any) map[string]any {
	if d, ok := res["data"].(map[string]any); ok {
		return d
	}
	return map[string]any{}
}

// messageList returns res["message"] as a list.
func messageList(res map[string]any) []any {
	if l, ok := res["message"].([]any); ok {
		return l
	}
	return []any{}
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
