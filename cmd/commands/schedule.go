package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/bizclaw/internal/scheduler"
)

// NewScheduleCommand returns the schedule subcommand.
func NewScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "View and trigger configured schedules",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List schedules with their triggers and next run",
				Action: runScheduleList,
			},
			{
				Name:      "run",
				Usage:     "Run a schedule's skill now",
				ArgsUsage: "<name>",
				Action:    runScheduleRun,
			},
		},
		DefaultCommand: "list",
	}
}

func runScheduleList(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if len(cfg.Schedules) == 0 {
		fmt.Println("No schedules configured.")
		return nil
	}
	sched, err := scheduler.New(scheduler.Config{Entries: cfg.Schedules})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSKILL\tTRIGGER\tENABLED\tNEXT")
	for _, e := range sched.Entries() {
		trigger := "-"
		switch {
		case e.Cron != "":
			trigger = "cron " + e.Cron
		case e.Interval > 0:
			trigger = "every " + e.Interval.String()
		case e.OnEvent != nil:
			trigger = "on " + e.OnEvent.Event
		}
		next := "-"
		if e.Next != nil {
			next = e.Next.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", e.Name, e.Skill, trigger, e.Enabled, next)
	}
	return w.Flush()
}

func runScheduleRun(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: bizclaw schedule run <name>")
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := newScheduler(a)
	if err != nil {
		return err
	}
	res, err := sched.RunNow(ctx, name)
	if err != nil {
		return err
	}
	if err := printJSON(res); err != nil {
		return err
	}
	if !res.Success {
		return errors.New(res.Error)
	}
	return nil
}
