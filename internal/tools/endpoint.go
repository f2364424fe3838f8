package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/bizclaw/internal/erp"
)

var pathParamRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// EndpointTool maps a declarative ToolSpec onto a single ERP REST call.
type EndpointTool struct {
	spec   ToolSpec
	client *erp.Client
}

// NewEndpointTool creates an endpoint tool bound to client.
func NewEndpointTool(spec ToolSpec, client *erp.Client) *EndpointTool {
	return &EndpointTool{spec: spec, client: client}
}

func (t *EndpointTool) Spec() *ToolSpec { return &t.spec }

// Info returns the ToolInfo for Eino registration.
func (t *EndpointTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.spec.ToolInfo(), nil
}

// InvokableRun fills {param} placeholders in the path from the arguments.
// Remaining arguments go to the query string for GET and DELETE, to the JSON body otherwise.
func (t *EndpointTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	args := map[string]any{}
	if argumentsInJSON != "" {
		if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
			return "", erp.Errorf(erp.KindInvalidInput, "%s: parse input: %v", t.spec.Name, err)
		}
	}
	if err := checkRequired(&t.spec, argumentsInJSON); err != nil {
		return "", err
	}

	path, rest, err := fillPath(t.spec.Path, args)
	if err != nil {
		return "", erp.Errorf(erp.KindInvalidInput, "%s: %v", t.spec.Name, err)
	}
	for name, p := range t.spec.Parameters {
		if _, ok := rest[name]; !ok && p.Default != nil && !slices.Contains(pathParams(t.spec.Path), name) {
			rest[name] = p.Default
		}
	}

	req := erp.Request{Method: t.spec.Method, Path: path}
	switch t.spec.Method {
	case http.MethodGet, http.MethodDelete:
		req.Query = queryValues(rest)
	default:
		req.Body = rest
	}

	res, err := t.client.Do(ctx, req)
	if err != nil {
		return "", erp.WithContext(err, "", t.spec.Name)
	}
	out, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("%s: marshal result: %w", t.spec.Name, err)
	}
	return string(out), nil
}

func pathParams(path string) []string {
	var names []string
	for _, m := range pathParamRe.FindAllStringSubmatch(path, -1) {
		names = append(names, m[1])
	}
	return names
}

// fillPath substitutes {param} placeholders with escaped argument values.
// It returns the arguments that were not consumed by the path.
func fillPath(path string, args map[string]any) (string, map[string]any, error) {
	rest := make(map[string]any, len(args))
	for k, v := range args {
		rest[k] = v
	}
	var missing error
	filled := pathParamRe.ReplaceAllStringFunc(path, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := args[name]
		if !ok || str(v) == "" {
			if missing == nil {
				missing = fmt.Errorf("missing path parameter %q", name)
			}
			return m
		}
		delete(rest, name)
		return url.PathEscape(scalarString(v))
	})
	if missing != nil {
		return "", nil, missing
	}
	return filled, rest, nil
}

func queryValues(args map[string]any) url.Values {
	q := url.Values{}
	for k, v := range args {
		if v == nil {
			continue
		}
		q.Set(k, scalarString(v))
	}
	return q
}

// scalarString renders strings as is and everything else as JSON.
func scalarString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// LoadEndpointsDir registers endpoint tools from every *.json / *.jsonc manifest under dir.
// A broken manifest is logged and skipped. A missing directory is not an error.
func (r *ToolRegistry) LoadEndpointsDir(dir string, client *erp.Client, disabled []string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	matches, err := doublestar.Glob(os.DirFS(dir), "**/*.{json,jsonc}")
	if err != nil {
		return fmt.Errorf("glob manifests in %s: %w", dir, err)
	}
	slices.Sort(matches)

	for _, rel := range matches {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		m, err := LoadManifest(path)
		if err != nil {
			slog.Warn("skipping tool manifest", "path", path, "error", err)
			continue
		}
		m.Tools = slices.DeleteFunc(m.Tools, func(s ToolSpec) bool { return slices.Contains(disabled, s.Name) })
		for i := range m.Tools {
			spec := m.Tools[i]
			if err := r.RegisterNative(spec.Name, NewEndpointTool(spec, client), m); err != nil {
				slog.Warn("skipping endpoint tool", "manifest", m.Name, "tool", spec.Name, "error", err)
				continue
			}
		}
		slog.Debug("endpoint manifest loaded", "name", m.Name, "tools", len(m.Tools))
	}
	return nil
}

var _ tool.InvokableTool = (*EndpointTool)(nil)
