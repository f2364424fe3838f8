// Package tools provides the tool registry and the ERPNext tool catalog.
package tools

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/dohr-michael/bizclaw/internal/config"
)

// Manifest groups tools under a common name and provider.
type Manifest struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Provider    string     `json:"provider"`  // "native", "endpoint" or "skill"
	ReadOnly    bool       `json:"read_only"` // default for all tools
	Dangerous   bool       `json:"dangerous"` // default for all tools
	Tools       []ToolSpec `json:"tools"`     // 1..N tools per manifest
}

// ToolSpec describes a single tool interface.
type ToolSpec struct {
	Name        string               `json:"name"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description"`
	Parameters  map[string]ParamSpec `json:"parameters"`
	ReadOnly    bool                 `json:"read_only"`  // never writes to the ERP
	Dangerous   bool                 `json:"dangerous"`  // destructive or irreversible
	Idempotent  bool                 `json:"idempotent"` // repeating the call has no extra effect

	// GatesReadOnly tools enforce read-only mode themselves, per call.
	GatesReadOnly bool `json:"-"`

	// Endpoint tools only.
	Method string `json:"method,omitempty"`
	Path   string `json:"path,omitempty"` // may contain {param} placeholders
}

// ParamSpec describes a single tool parameter.
type ParamSpec struct {
	Type        string               `json:"type"` // "string", "number", "boolean", "integer", "array", "object"
	Description string               `json:"description"`
	Required    bool                 `json:"required"`
	Enum        []string             `json:"enum,omitempty"`
	Default     any                  `json:"default,omitempty"`
	Items       *ParamSpec           `json:"items,omitempty"`      // element schema for arrays
	Properties  map[string]ParamSpec `json:"properties,omitempty"` // sub-properties for objects
}

// LoadManifest reads and parses a JSONC endpoint manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := config.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	if m.Name == "" {
		return nil, fmt.Errorf("manifest %s: name is required", path)
	}
	if len(m.Tools) == 0 {
		return nil, fmt.Errorf("manifest %s: at least one tool is required", path)
	}
	if m.Provider == "" {
		m.Provider = "endpoint"
	}

	for i := range m.Tools {
		t := &m.Tools[i]
		if t.Name == "" {
			if len(m.Tools) == 1 {
				t.Name = m.Name
			} else {
				return nil, fmt.Errorf("manifest %s: tool at index %d must have a name", path, i)
			}
		}
		if t.Path == "" {
			return nil, fmt.Errorf("manifest %s: tool %q: path is required", path, t.Name)
		}
		t.Method = strings.ToUpper(t.Method)
		switch t.Method {
		case "":
			t.Method = http.MethodGet
		case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete:
		default:
			return nil, fmt.Errorf("manifest %s: tool %q: unsupported method %q", path, t.Name, t.Method)
		}
		if m.ReadOnly {
			t.ReadOnly = true
		}
		if m.Dangerous {
			t.Dangerous = true
		}
		if t.Method == http.MethodGet {
			t.ReadOnly = true
			t.Idempotent = true
		}
	}

	return &m, nil
}
