package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/bizclaw/clients/term"
	"github.com/dohr-michael/bizclaw/internal/skills"
)

// NewSkillsCommand returns the skills subcommand.
func NewSkillsCommand() *cli.Command {
	return &cli.Command{
		Name:  "skills",
		Usage: "List, inspect, validate and run skills",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List loaded skills",
				Action: runSkillsList,
			},
			{
				Name:      "show",
				Usage:     "Show a skill definition",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "markdown",
						Usage: "Render a readable summary instead of JSON",
					},
				},
				Action: runSkillsShow,
			},
			{
				Name:      "validate",
				Usage:     "Validate skill files (default: the configured skill directories)",
				ArgsUsage: "[file...]",
				Action:    runSkillsValidate,
			},
			{
				Name:      "run",
				Usage:     "Execute a skill",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "var",
						Usage: "Context variable as key=value (value parsed as JSON when possible)",
					},
					&cli.StringFlag{
						Name:  "context",
						Usage: "Initial context as a JSON object",
					},
				},
				Action: runSkillsRun,
			},
		},
		DefaultCommand: "list",
	}
}

func runSkillsList(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st := skills.LoadStore(skills.StoreOptions{Dirs: cfg.Skills.Dirs, Patterns: cfg.Skills.Patterns, Enabled: cfg.Skills.Enabled})

	if st.Len() == 0 {
		fmt.Println("No skills found.")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTEPS\tTOOLS\tDESCRIPTION")
		for _, s := range st.List() {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
				s.Name,
				len(s.Workflow.Steps),
				strings.Join(s.ToolNames(), ","),
				s.Description,
			)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if n := len(st.Errors()); n > 0 {
		fmt.Fprintf(os.Stderr, "\n%d skill file(s) failed to load; run `bizclaw skills validate` for details.\n", n)
	}
	return nil
}

func runSkillsShow(_ context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: bizclaw skills show <name>")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st := skills.LoadStore(skills.StoreOptions{Dirs: cfg.Skills.Dirs, Patterns: cfg.Skills.Patterns, Enabled: cfg.Skills.Enabled})
	s := st.Get(name)
	if s == nil {
		return fmt.Errorf("Skill not found: %s", name)
	}
	if cmd.Bool("markdown") {
		fmt.Print(term.RenderMarkdown(skillMarkdown(s), term.Width(100)))
		return nil
	}
	return printJSON(skills.Describe(s))
}

// skillMarkdown summarizes a skill: its variables and steps.
func skillMarkdown(s *skills.Skill) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n", s.Name, s.Description)

	if len(s.Vars) > 0 {
		b.WriteString("\n## Variables\n\n| Name | Required | Default | Description |\n|---|---|---|---|\n")
		names := slices.Sorted(maps.Keys(s.Vars))
		for _, name := range names {
			v := s.Vars[name]
			def := "-"
			if v.Default != nil {
				def = "`" + skills.Stringify(v.Default) + "`"
			}
			fmt.Fprintf(&b, "| `%s` | %t | %s | %s |\n", name, v.Required, def, v.Description)
		}
	}

	b.WriteString("\n## Steps\n\n")
	if len(s.Workflow.Steps) == 0 {
		b.WriteString("_No steps._\n")
	}
	for i, st := range s.Workflow.Steps {
		label := st.Label
		if label == "" {
			label = "unknown"
		}
		fmt.Fprintf(&b, "%d. **%s** calls `%s`", i+1, label, st.Tool)
		if st.ContinueOnError {
			b.WriteString(" (continues on error)")
		}
		b.WriteString("\n")
	}
	if s.Source != "" {
		fmt.Fprintf(&b, "\n_Source: %s_\n", s.Source)
	}
	return b.String()
}

func runSkillsValidate(_ context.Context, cmd *cli.Command) error {
	var errs []error
	if cmd.Args().Len() > 0 {
		for _, path := range cmd.Args().Slice() {
			s, warnings, err := skills.LoadSkill(path)
			for _, w := range warnings {
				fmt.Printf("%s  %s: %s\n", term.WarningStyle.Render("WARN"), path, w)
			}
			if err != nil {
				errs = append(errs, err)
				continue
			}
			fmt.Printf("%s    %s (%s, %d steps)\n", term.SuccessStyle.Render("OK"), path, s.Name, len(s.Workflow.Steps))
		}
	} else {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st := skills.LoadStore(skills.StoreOptions{Dirs: cfg.Skills.Dirs, Patterns: cfg.Skills.Patterns})
		for _, s := range st.List() {
			fmt.Printf("%s    %s (%s)\n", term.SuccessStyle.Render("OK"), s.Name, s.Source)
		}
		errs = st.Errors()
	}

	for _, err := range errs {
		fmt.Printf("%s  %v\n", term.ErrorStyle.Render("FAIL"), err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d invalid skill file(s)", len(errs))
	}
	return nil
}

func runSkillsRun(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if name == "" {
		return fmt.Errorf("usage: bizclaw skills run <name> [--var key=value]")
	}
	input, err := parseInput(cmd.String("context"), cmd.StringSlice("var"))
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.exec.Execute(skills.WithTrigger(ctx, "cli"), name, input, actingUser(cmd, a.cfg))
	if err := printJSON(res); err != nil {
		return err
	}
	if !res.Success {
		return errors.New(res.Error)
	}
	return nil
}

// parseInput merges a JSON object with key=value pairs. Values that parse as
// JSON keep their type; anything else is a string.
func parseInput(raw string, pairs []string) (map[string]any, error) {
	input := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			return nil, fmt.Errorf("invalid JSON object: %w", err)
		}
	}
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid key=value pair %q", p)
		}
		var v any
		if err := json.Unmarshal([]byte(value), &v); err != nil {
			v = value
		}
		input[key] = v
	}
	return input, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
