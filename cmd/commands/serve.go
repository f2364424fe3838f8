package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/bizclaw/internal/config"
	"github.com/dohr-michael/bizclaw/internal/gateway"
	"github.com/dohr-michael/bizclaw/internal/heartbeat"
	"github.com/dohr-michael/bizclaw/internal/mcp"
	"github.com/dohr-michael/bizclaw/internal/scheduler"
	"github.com/dohr-michael/bizclaw/internal/skills"
	"github.com/dohr-michael/bizclaw/internal/storage"
)

// NewServeCommand returns the serve subcommand.
func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve ERP tools and skills over MCP (stdio) or HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "transport",
				Usage: "stdio or http (default: server.transport)",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "Host to listen on (http)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on (http)",
			},
			&cli.StringSliceFlag{
				Name:  "filter",
				Usage: "Expose only these tools or manifests (stdio)",
			},
			&cli.BoolFlag{
				Name:  "no-schedules",
				Usage: "Do not run configured schedules",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.cfg

	// CLI flags override config
	if cmd.IsSet("transport") {
		cfg.Server.Transport = cmd.String("transport")
	}
	if cmd.IsSet("host") {
		cfg.Server.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Server.Port = cmd.Int("port")
	}
	if cfg.Server.Transport != "stdio" && cfg.Server.Transport != "http" {
		return fmt.Errorf("unknown transport %q (want stdio or http)", cfg.Server.Transport)
	}

	if cfg.Events.LogDir != "" {
		evlog := storage.NewEventLogger(cfg.Events.LogDir, a.bus)
		defer evlog.Close()
	}

	var mcpServer *mcp.Server
	if cfg.Server.Transport == "stdio" {
		mcpServer = mcp.NewMCPServer(a.registry, mcp.Options{
			Filter: cmd.StringSlice("filter"),
			User:   actingUser(cmd, cfg),
		})
	}

	watcher := skills.NewWatcher(a.storeOptions(), a.exec, a.bus, func(*skills.Store) {
		if err := skills.RegisterTools(a.registry, a.exec); err != nil {
			slog.Warn("re-register skill tools", "error", err)
		}
		if mcpServer != nil {
			mcpServer.Refresh()
		}
	})
	if cfg.Skills.Watch {
		go func() {
			if err := watcher.Run(ctx); err != nil {
				slog.Error("skill watcher stopped", "error", err)
			}
		}()
	}

	var sched *scheduler.Scheduler
	if len(cfg.Schedules) > 0 && !cmd.Bool("no-schedules") {
		sched, err = newScheduler(a)
		if err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	reloader := config.NewReloader(cmd.String("config"), config.DotenvPath(), cfg)
	reloader.AfterDotenv(decryptEnv)
	reloader.OnReload(func(prev, next *config.Config) {
		if restart := config.NeedsRestart(config.ChangedSections(prev, next)); len(restart) > 0 {
			slog.Warn("config changes need a restart", "sections", restart)
		}
		a.registry.SetReadOnly(next.Tools.ReadOnly)
		watcher.Reload()
	})
	stopHUP := reloadOnSIGHUP(reloader)
	defer stopHUP()

	hb := heartbeat.NewWriter(config.HeartbeatPath(), func() heartbeat.Info {
		info := heartbeat.Info{
			Version: config.Version,
			ERPURL:  cfg.ERP.URL,
			Skills:  a.exec.Store().Len(),
			Tools:   len(a.registry.ToolNames()),
		}
		if cfg.Server.Transport == "http" {
			info.Addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		}
		return info
	})
	stopHeartbeat := hb.Start(ctx)
	defer stopHeartbeat()

	if mcpServer != nil {
		slog.Info("serving MCP over stdio", "tools", len(mcpServer.ToolNames()), "user", actingUser(cmd, cfg))
		return mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
	}

	gwCfg := gateway.Config{
		Server:      cfg.Server,
		ERPURL:      cfg.ERP.URL,
		Bus:         a.bus,
		Registry:    a.registry,
		Executor:    a.exec,
		EventLogDir: cfg.Events.LogDir,
		Scheduler:   sched,
		Reload:      watcher.Reload,
	}
	if a.runs != nil {
		gwCfg.Runs = a.runs
	}
	server := gateway.NewServer(gwCfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newScheduler builds the scheduler from the configured entries. Entries
// without a user run as the server's default user.
func newScheduler(a *app) (*scheduler.Scheduler, error) {
	entries := make([]config.ScheduleConfig, len(a.cfg.Schedules))
	for i, sc := range a.cfg.Schedules {
		if sc.User == "" {
			sc.User = a.cfg.Server.DefaultUser
		}
		entries[i] = sc
	}
	return scheduler.New(scheduler.Config{Runner: a.exec, Bus: a.bus, Entries: entries})
}

// reloadOnSIGHUP reloads the config and skills on SIGHUP until the returned
// function is called.
func reloadOnSIGHUP(r *config.Reloader) func() {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-hup:
				if err := r.Reload(); err != nil {
					slog.Error("reload failed", "error", err)
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(hup)
		close(done)
	}
}
