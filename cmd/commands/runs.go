package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/bizclaw/clients/term"
	"github.com/dohr-michael/bizclaw/internal/storage"
)

// NewRunsCommand returns the runs subcommand.
func NewRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "Inspect skill run history",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent runs",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "skill", Usage: "Only runs of this skill"},
					&cli.BoolFlag{Name: "failed", Usage: "Only failed runs"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of runs", Value: 20},
				},
				Action: runRunsList,
			},
			{
				Name:      "show",
				Usage:     "Show a run with its step results",
				ArgsUsage: "<run_id>",
				Action:    runRunsShow,
			},
			{
				Name:  "prune",
				Usage: "Delete runs and their event logs older than a duration",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "older-than", Usage: "Age cutoff", Value: 30 * 24 * time.Hour},
				},
				Action: runRunsPrune,
			},
		},
		DefaultCommand: "list",
	}
}

func runRunsList(ctx context.Context, cmd *cli.Command) error {
	store, err := openRuns(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(ctx, storage.ListOptions{
		Skill:  cmd.String("skill"),
		Failed: cmd.Bool("failed"),
		Limit:  cmd.Int("limit"),
	})
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSKILL\tUSER\tTRIGGER\tSTEPS\tSTARTED\tDURATION\tSTATUS")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			r.ID,
			r.Skill,
			r.User,
			r.Trigger,
			r.Steps,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Duration.Truncate(time.Millisecond),
			term.Status(r.Success),
		)
	}
	return w.Flush()
}

func runRunsShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.Args().First()
	if id == "" {
		return fmt.Errorf("usage: bizclaw runs show <run_id>")
	}
	store, err := openRuns(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.Get(ctx, id)
	if errors.Is(err, storage.ErrRunNotFound) {
		return fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return err
	}
	return printJSON(run)
}

func runRunsPrune(ctx context.Context, cmd *cli.Command) error {
	store, err := openRuns(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	cutoff := time.Now().Add(-cmd.Duration("older-than"))
	n, err := store.Prune(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune runs: %w", err)
	}
	fmt.Printf("Deleted %d run(s).\n", n)

	cfg, err := loadConfig(cmd)
	if err != nil || cfg.Events.LogDir == "" {
		return err
	}
	logs, err := storage.PruneEventLogs(cfg.Events.LogDir, cutoff)
	if err != nil {
		return fmt.Errorf("prune event logs: %w", err)
	}
	fmt.Printf("Deleted %d event log(s).\n", logs)
	return nil
}
