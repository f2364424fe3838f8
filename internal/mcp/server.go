package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dohr-michael/bizclaw/internal/config"
	"github.com/dohr-michael/bizclaw/internal/erp"
	"github.com/dohr-michael/bizclaw/internal/events"
	"github.com/dohr-michael/bizclaw/internal/skills"
	"github.com/dohr-michael/bizclaw/internal/tools"
)

const instructions = "ERPNext tools and declarative skill workflows. " +
	"Start with list_doctypes or get_doctype_schema before writing documents; " +
	"use list_skills to discover multi-step workflows and run them with execute_skill or skill_<name>."

// Options configures NewMCPServer.
type Options struct {
	// Filter restricts the exposed tools to these tool or manifest names.
	Filter []string
	// User is the ERP user calls are made for. When empty, the user carried by
	// the request context is used.
	User string
}

// Server is an MCP server bound to a tool registry.
type Server struct {
	*mcpsdk.Server
	registry *tools.ToolRegistry
	opts     Options

	mu    sync.Mutex
	names []string
}

// NewMCPServer creates an MCP server exposing tools from the registry.
// Calls go through registry.Execute so read-only mode and tool events apply.
func NewMCPServer(registry *tools.ToolRegistry, opts Options) *Server {
	s := &Server{
		Server: mcpsdk.NewServer(&mcpsdk.Implementation{
			Name:    "bizclaw",
			Title:   "Business Claw",
			Version: config.Version,
		}, &mcpsdk.ServerOptions{Instructions: instructions}),
		registry: registry,
		opts:     opts,
	}
	s.Refresh()
	return s
}

// Refresh re-syncs the exposed tools with the registry, e.g. after skills
// were reloaded. Connected clients are notified of the change by the SDK.
func (s *Server) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.names) > 0 {
		s.RemoveTools(s.names...)
	}
	s.names = s.names[:0]

	for _, name := range s.registry.ToolNames() {
		if len(s.opts.Filter) > 0 && !matchesFilter(s.registry, name, s.opts.Filter) {
			continue
		}

		spec := s.registry.ToolSpec(name)
		if spec == nil {
			continue
		}

		s.AddTool(toolSpecToMCPTool(spec), callHandler(s.registry, name, s.opts.User))
		s.names = append(s.names, name)
	}
	slog.Debug("mcp tools synced", "tools", len(s.names))
}

// ToolNames returns the names of the exposed tools.
func (s *Server) ToolNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.names)
}

func callHandler(registry *tools.ToolRegistry, name, user string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args map[string]any
		if raw := req.Params.Arguments; len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return errorResult(erp.Errorf(erp.KindInvalidInput, "arguments must be a JSON object: %v", err), name), nil
			}
		}

		caller := user
		if caller == "" {
			caller = events.UserFromContext(ctx)
		}

		out, err := registry.Execute(skills.WithTrigger(ctx, "mcp"), name, args, caller)
		if err != nil {
			slog.Debug("mcp tool error", "tool", name, "error", err)
			return errorResult(err, name), nil
		}

		text, err := json.Marshal(out)
		if err != nil {
			return errorResult(err, name), nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(text)}},
		}, nil
	}
}

// errorResult reports a tool failure as an MCP error result carrying the
// enriched error object.
func errorResult(err error, tool string) *mcpsdk.CallToolResult {
	enriched := erp.Enrich(err, "", tool)
	text, mErr := json.Marshal(enriched)
	if mErr != nil {
		text = []byte(err.Error())
	}
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(text)}},
	}
}

// matchesFilter reports whether a tool is selected by the filter, either by
// its own name or by the name of its manifest.
func matchesFilter(registry *tools.ToolRegistry, toolName string, filter []string) bool {
	if slices.Contains(filter, toolName) {
		return true
	}
	for _, f := range filter {
		if slices.Contains(registry.ManifestTools(f), toolName) {
			return true
		}
	}
	return false
}
