package commands

import (
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/bizclaw/internal/config"
	"github.com/dohr-michael/bizclaw/internal/erp"
	"github.com/dohr-michael/bizclaw/internal/events"
	"github.com/dohr-michael/bizclaw/internal/skills"
	"github.com/dohr-michael/bizclaw/internal/storage"
	"github.com/dohr-michael/bizclaw/internal/tools"
)

// app bundles the components shared by serve and the one-shot commands.
type app struct {
	cfg      *config.Config
	bus      *events.Bus
	client   *erp.Client
	registry *tools.ToolRegistry
	exec     *skills.Executor
	runs     *storage.RunStore // nil when history is disabled
}

func newApp(cmd *cli.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, bus: events.NewBus(cfg.Events.BufferSize)}
	a.client = tools.NewERPClient(cfg.ERP)

	a.registry, err = tools.SetupToolRegistry(cfg, a.bus, a.client)
	if err != nil {
		a.Close()
		return nil, err
	}

	execCfg := skills.ExecutorConfig{Invoker: a.registry, Bus: a.bus}
	if !cfg.History.Disabled {
		a.runs, err = storage.OpenRunStore(cfg.History.Path)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open run history: %w", err)
		}
		execCfg.Recorder = a.runs
	}

	a.exec = skills.NewExecutor(skills.LoadStore(a.storeOptions()), execCfg)
	if err := skills.RegisterTools(a.registry, a.exec); err != nil {
		a.Close()
		return nil, fmt.Errorf("register skill tools: %w", err)
	}
	slog.Debug("bizclaw ready", "erp", cfg.ERP.URL, "skills", a.exec.Store().Len(), "tools", len(a.registry.ToolNames()))
	return a, nil
}

func (a *app) storeOptions() skills.StoreOptions {
	return skills.StoreOptions{
		Dirs:     a.cfg.Skills.Dirs,
		Patterns: a.cfg.Skills.Patterns,
		Enabled:  a.cfg.Skills.Enabled,
	}
}

// openRuns opens the run history without building the rest of the app.
func openRuns(cmd *cli.Command) (*storage.RunStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if cfg.History.Disabled {
		return nil, fmt.Errorf("run history is disabled (history.disabled)")
	}
	return storage.OpenRunStore(cfg.History.Path)
}

func (a *app) Close() {
	if a.runs != nil {
		if err := a.runs.Close(); err != nil {
			slog.Warn("close run history", "error", err)
		}
	}
	a.bus.Close()
}
