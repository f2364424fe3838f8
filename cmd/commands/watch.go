package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/bizclaw/clients/term"
	wsclient "github.com/dohr-michael/bizclaw/clients/ws"
	"github.com/dohr-michael/bizclaw/internal/events"
	wsprotocol "github.com/dohr-michael/bizclaw/internal/gateway/ws"
)

// NewWatchCommand returns the watch subcommand.
func NewWatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Stream events from a running HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Usage: "WebSocket URL (default: from server.host and server.port)",
			},
			&cli.StringSliceFlag{
				Name:  "type",
				Usage: "Only these event types (e.g. skill.completed)",
			},
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Only events of this run",
			},
		},
		Action: runWatch,
	}
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	url := cmd.String("url")
	if url == "" {
		url = fmt.Sprintf("ws://%s:%d/api/ws", cfg.Server.Host, cfg.Server.Port)
	}

	header := http.Header{}
	header.Set(cfg.Server.UserHeader, actingUser(cmd, cfg))
	client, err := wsclient.Dial(ctx, url, header)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Subscribe(wsprotocol.SubscribeParams{
		Types: cmd.StringSlice("type"),
		RunID: cmd.String("run-id"),
	}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	for {
		f, err := client.ReadFrame()
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if f.Type != wsprotocol.FrameTypeEvent {
			continue
		}
		var e events.Event
		if err := json.Unmarshal(f.Payload, &e); err != nil {
			continue
		}
		payload, _ := json.Marshal(e.Payload)
		runID := e.RunID
		if runID == "" {
			runID = "-"
		}
		fmt.Printf("%s  %s %s %s\n",
			term.MutedStyle.Render(e.Timestamp.Local().Format("15:04:05.000")),
			eventStyle(e).Render(fmt.Sprintf("%-22s", e.Type)),
			term.AccentStyle.Render(fmt.Sprintf("%-36s", runID)),
			payload,
		)
	}
}

// eventStyle colors failures red and completions green.
func eventStyle(e events.Event) lipgloss.Style {
	if ok, found := e.Payload["success"].(bool); found {
		if ok {
			return term.SuccessStyle
		}
		return term.ErrorStyle
	}
	if status, _ := e.Payload["status"].(string); status == string(events.ToolStatusFailed) {
		return term.ErrorStyle
	}
	return lipgloss.NewStyle()
}
