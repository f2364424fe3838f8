package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/bizclaw/internal/erp"
	"github.com/dohr-michael/bizclaw/internal/skills"
)

// NewToolsCommand returns the tools subcommand.
func NewToolsCommand() *cli.Command {
	return &cli.Command{
		Name:  "tools",
		Usage: "List and call tools",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List registered tools",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "manifest",
						Usage: "Only tools from this manifest",
					},
				},
				Action: runToolsList,
			},
			{
				Name:      "call",
				Usage:     "Call a tool",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "arg",
						Usage: "Argument as key=value (value parsed as JSON when possible)",
					},
					&cli.StringFlag{
						Name:  "args",
						Usage: "Arguments as a JSON object",
					},
				},
				Action: runToolsCall,
			},
		},
		DefaultCommand: "list",
	}
}

func runToolsList(_ context.Context, cmd *cli.Command) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	names := a.registry.ToolNames()
	if m := cmd.String("manifest"); m != "" {
		names = a.registry.ManifestTools(m)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tMANIFEST\tACCESS\tDESCRIPTION")
	for _, name := range names {
		spec := a.registry.ToolSpec(name)
		if spec == nil {
			continue
		}
		manifest := "-"
		if m := a.registry.Manifest(name); m != nil {
			manifest = m.Name
		}
		access := "write"
		switch {
		case spec.Dangerous:
			access = "dangerous"
		case spec.ReadOnly:
			access = "read"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, manifest, access, spec.Description)
	}
	return w.Flush()
}

func runToolsCall(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: bizclaw tools call <name> [--arg key=value]")
	}
	args, err := parseInput(cmd.String("args"), cmd.StringSlice("arg"))
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.registry.Execute(skills.WithTrigger(ctx, "cli"), name, args, actingUser(cmd, a.cfg))
	if err != nil {
		if perr := printJSON(erp.Enrich(err, "", name)); perr != nil {
			return perr
		}
		return fmt.Errorf("tool %s failed", name)
	}
	return printJSON(out)
}
