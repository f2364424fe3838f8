// Package commands implements the bizclaw CLI.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/bizclaw/internal/config"
	"github.com/dohr-michael/bizclaw/internal/secrets"
)

// NewRootCommand returns the top-level CLI command.
func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:    "bizclaw",
		Usage:   "ERPNext tools and skill workflows over MCP",
		Version: config.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.ConfigPath(),
			},
			&cli.StringFlag{
				Name:    "user",
				Aliases: []string{"u"},
				Usage:   "Acting ERP user (default: server.default_user)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			NewServeCommand(),
			NewSkillsCommand(),
			NewToolsCommand(),
			NewRunsCommand(),
			NewScheduleCommand(),
			NewSecretCommand(),
			NewStatusCommand(),
			NewWatchCommand(),
		},
	}
}

// setup configures logging and decrypts ENC[age:...] values loaded from .env.
// Logs always go to stderr; stdout carries the MCP stdio transport.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	level := slog.LevelInfo
	if cmd.Bool("debug") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := decryptEnv(); err != nil {
		return ctx, err
	}
	return ctx, nil
}

func decryptEnv() error {
	identity, err := secrets.OptionalIdentity(secrets.KeyPath())
	if err != nil {
		return fmt.Errorf("load age key: %w", err)
	}
	if _, err := secrets.DecryptEnv(identity); err != nil {
		return err
	}
	return nil
}

// loadConfig reads the config file, falling back to defaults when it is missing.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	path := cmd.String("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := decryptConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decryptConfig decrypts an API secret written inline in the config file.
func decryptConfig(cfg *config.Config) error {
	if !secrets.IsEncrypted(cfg.ERP.APISecret) {
		return nil
	}
	identity, err := secrets.LoadIdentity(secrets.KeyPath())
	if err != nil {
		return fmt.Errorf("erp.api_secret is encrypted: %w", err)
	}
	plain, err := secrets.Decrypt(cfg.ERP.APISecret, identity)
	if err != nil {
		return fmt.Errorf("decrypt erp.api_secret: %w", err)
	}
	cfg.ERP.APISecret = plain
	return nil
}

// actingUser returns the --user flag or the configured default.
func actingUser(cmd *cli.Command, cfg *config.Config) string {
	if u := cmd.String("user"); u != "" {
		return u
	}
	return cfg.Server.DefaultUser
}
