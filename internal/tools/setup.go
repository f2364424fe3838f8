package tools

import (
	"fmt"
	"log/slog"

	"github.com/dohr-michael/bizclaw/internal/config"
	"github.com/dohr-michael/bizclaw/internal/erp"
	"github.com/dohr-michael/bizclaw/internal/events"
)

// NewERPClient builds the ERP client from configuration.
func NewERPClient(cfg config.ERPConfig) *erp.Client {
	return erp.NewClient(erp.Options{
		URL:            cfg.URL,
		APIKey:         cfg.APIKey,
		APISecret:      cfg.APISecret,
		Timeout:        cfg.Timeout.Duration(),
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: cfg.RetryBaseDelay.Duration(),
		RateLimit:      cfg.RateLimit,
	})
}

// SetupToolRegistry creates a ToolRegistry holding the ERP catalog and the
// endpoint tools declared in cfg.Tools.Dir. Skill tools are registered by the caller
// once the skill store exists.
func SetupToolRegistry(cfg *config.Config, bus *events.Bus, client *erp.Client) (*ToolRegistry, error) {
	registry := NewToolRegistry(bus)
	registry.SetReadOnly(cfg.Tools.ReadOnly)

	if err := RegisterERPTools(registry, client, cfg.ERP.BulkConcurrency, cfg.Tools.Disabled); err != nil {
		return nil, fmt.Errorf("register erp tools: %w", err)
	}
	if err := registry.LoadEndpointsDir(cfg.Tools.Dir, client, cfg.Tools.Disabled); err != nil {
		slog.Warn("failed to load endpoint tools", "dir", cfg.Tools.Dir, "error", err)
	}

	slog.Info("tool registry ready", "tools", len(registry.ToolNames()), "read_only", cfg.Tools.ReadOnly)
	return registry, nil
}
