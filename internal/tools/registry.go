package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/tool"

	"github.com/dohr-michael/bizclaw/internal/erp"
	"github.com/dohr-michael/bizclaw/internal/events"
)

// ToolRegistry is the unified registry for all tools (native, endpoint and skill).
// It is safe for concurrent use.
type ToolRegistry struct {
	mu            sync.RWMutex
	tools         map[string]tool.InvokableTool
	manifests     map[string]*Manifest // tool name → parent manifest
	specs         map[string]*ToolSpec // tool name → specific ToolSpec
	manifestTools map[string][]string  // manifest name → tool names
	bus           *events.Bus
	readOnly      bool
}

// NewToolRegistry creates a new tool registry.
func NewToolRegistry(bus *events.Bus) *ToolRegistry {
	return &ToolRegistry{
		tools:         make(map[string]tool.InvokableTool),
		manifests:     make(map[string]*Manifest),
		specs:         make(map[string]*ToolSpec),
		manifestTools: make(map[string][]string),
		bus:           bus,
	}
}

// SetReadOnly rejects every tool not marked read-only when enabled.
func (r *ToolRegistry) SetReadOnly(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readOnly = v
}

// ReadOnly reports whether read-only mode is on.
func (r *ToolRegistry) ReadOnly() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.readOnly
}

// RegisterNative registers a Go-native tool with its manifest.
func (r *ToolRegistry) RegisterNative(name string, t tool.InvokableTool, manifest *Manifest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	r.manifests[name] = manifest
	for i := range manifest.Tools {
		if manifest.Tools[i].Name == name {
			r.specs[name] = &manifest.Tools[i]
			break
		}
	}
	r.manifestTools[manifest.Name] = append(r.manifestTools[manifest.Name], name)
	return nil
}

// Unregister removes every tool registered under the manifest name.
func (r *ToolRegistry) Unregister(manifestName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.manifestTools[manifestName] {
		delete(r.tools, name)
		delete(r.manifests, name)
		delete(r.specs, name)
	}
	delete(r.manifestTools, manifestName)
}

// Remove drops a single tool by name.
func (r *ToolRegistry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.manifests[name]
	if !ok {
		return
	}
	delete(r.tools, name)
	delete(r.manifests, name)
	delete(r.specs, name)
	r.manifestTools[m.Name] = slices.DeleteFunc(r.manifestTools[m.Name], func(n string) bool { return n == name })
}

// Manifest returns the parent manifest for a given tool name.
func (r *ToolRegistry) Manifest(name string) *Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.manifests[name]
}

// ToolSpec returns the specific ToolSpec for a given tool name.
func (r *ToolRegistry) ToolSpec(name string) *ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.specs[name]
}

// ManifestTools returns the tool names registered by a given manifest.
func (r *ToolRegistry) ManifestTools(manifestName string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.manifestTools[manifestName])
}

// ToolNames returns all registered tool names, sorted.
func (r *ToolRegistry) ToolNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Tool returns the InvokableTool for a given name, or nil if not found.
func (r *ToolRegistry) Tool(name string) tool.InvokableTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Execute invokes a tool with decoded arguments on behalf of user.
// Failures are *erp.Error values so callers can branch on their kind.
// A JSON object result is returned as is; anything else is wrapped as {"result": v}.
func (r *ToolRegistry) Execute(ctx context.Context, name string, args map[string]any, user string) (map[string]any, error) {
	r.mu.RLock()
	t := r.tools[name]
	spec := r.specs[name]
	readOnly := r.readOnly
	r.mu.RUnlock()

	if t == nil {
		return nil, erp.Errorf(erp.KindInvalidInput, "unknown tool: %s", name)
	}
	if readOnly && (spec == nil || !(spec.ReadOnly || spec.GatesReadOnly)) {
		return nil, erp.Errorf(erp.KindPermission, "tool %q writes to the ERP and the server is read-only", name)
	}

	if args == nil {
		args = map[string]any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, &erp.Error{Kind: erp.KindInvalidInput, Message: fmt.Sprintf("encode arguments for %s", name), Err: err}
	}

	ctx = events.ContextWithUser(ctx, user)
	r.publish(ctx, events.ToolCallPayload{Status: events.ToolStatusStarted, Name: name, Arguments: args})

	start := time.Now()
	out, err := t.InvokableRun(ctx, string(argsJSON))
	elapsed := time.Since(start)
	if err != nil {
		slog.Debug("tool failed", "tool", name, "user", user, "error", err)
		r.publish(ctx, events.ToolCallPayload{
			Status:    events.ToolStatusFailed,
			Name:      name,
			Error:     err.Error(),
			ErrorKind: string(erp.KindOf(err)),
			Duration:  elapsed,
		})
		return nil, err
	}
	r.publish(ctx, events.ToolCallPayload{Status: events.ToolStatusCompleted, Name: name, Duration: elapsed})

	return decodeResult(out), nil
}

func (r *ToolRegistry) publish(ctx context.Context, p events.ToolCallPayload) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(events.NewTypedEventFromContext(ctx, events.SourceTool, p))
}

func decodeResult(out string) map[string]any {
	var v any
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		return map[string]any{"result": out}
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{"result": v}
}
