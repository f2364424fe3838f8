package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/bizclaw/clients/term"
	"github.com/dohr-michael/bizclaw/internal/config"
	"github.com/dohr-michael/bizclaw/internal/heartbeat"
)

// NewStatusCommand returns the status subcommand.
func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show bizclaw server status",
		Action: func(_ context.Context, _ *cli.Command) error {
			status, hb, err := heartbeat.Check(config.HeartbeatPath(), heartbeat.StaleAfter)
			if err != nil {
				return fmt.Errorf("check heartbeat: %w", err)
			}

			switch status {
			case heartbeat.StatusAlive:
				fmt.Printf("Server: %s (PID %d, uptime %s)\n", term.SuccessStyle.Render("ALIVE"), hb.PID, hb.Uptime())
			case heartbeat.StatusStale:
				fmt.Printf("Server: %s (PID %d, last heartbeat %s ago)\n", term.WarningStyle.Render("STALE"),
					hb.PID, hb.Age())
			case heartbeat.StatusDead:
				fmt.Printf("Server: %s\n", term.ErrorStyle.Render("NOT RUNNING"))
				return nil
			}

			fmt.Printf("Version: %s\n", hb.Version)
			if hb.Addr != "" {
				fmt.Printf("Listening: http://%s\n", hb.Addr)
			} else {
				fmt.Println("Transport: stdio")
			}
			fmt.Printf("ERP: %s\nSkills: %d\nTools: %d\n", hb.ERPURL, hb.Skills, hb.Tools)
			return nil
		},
	}
}
