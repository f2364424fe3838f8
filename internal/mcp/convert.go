// Package mcp exposes the bizclaw tool registry as an MCP server.
package mcp

import (
	"sort"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dohr-michael/bizclaw/internal/tools"
)

// toolSpecToMCPTool converts a tools.ToolSpec to an mcp.Tool with JSON Schema
// and behavior annotations.
func toolSpecToMCPTool(spec *tools.ToolSpec) *mcpsdk.Tool {
	inputSchema := objectSchema(spec.Parameters)

	destructive := spec.Dangerous
	openWorld := true
	return &mcpsdk.Tool{
		Name:        spec.Name,
		Title:       spec.Title,
		Description: spec.Description,
		InputSchema: inputSchema,
		Annotations: &mcpsdk.ToolAnnotations{
			Title:           spec.Title,
			ReadOnlyHint:    spec.ReadOnly,
			DestructiveHint: &destructive,
			IdempotentHint:  spec.Idempotent,
			OpenWorldHint:   &openWorld,
		},
	}
}

func objectSchema(params map[string]tools.ParamSpec) map[string]any {
	props := make(map[string]any, len(params))
	var required []string

	for name, p := range params {
		props[name] = paramSchema(p)
		if p.Required {
			required = append(required, name)
		}
	}

	// Sort required for deterministic output
	sort.Strings(required)

	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func paramSchema(p tools.ParamSpec) map[string]any {
	prop := map[string]any{"type": p.Type}
	if p.Type == "" {
		prop["type"] = "string"
	}
	if p.Description != "" {
		prop["description"] = p.Description
	}
	if len(p.Enum) > 0 {
		prop["enum"] = p.Enum
	}
	if p.Default != nil {
		prop["default"] = p.Default
	}
	if p.Items != nil {
		prop["items"] = paramSchema(*p.Items)
	}
	if len(p.Properties) > 0 {
		sub := objectSchema(p.Properties)
		prop["properties"] = sub["properties"]
		if req, ok := sub["required"]; ok {
			prop["required"] = req
		}
	}
	return prop
}
