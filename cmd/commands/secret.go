package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/dohr-michael/bizclaw/internal/config"
	"github.com/dohr-michael/bizclaw/internal/secrets"
)

// NewSecretCommand returns the secret subcommand.
func NewSecretCommand() *cli.Command {
	return &cli.Command{
		Name:  "secret",
		Usage: "Manage encrypted values in the bizclaw .env file",
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Create the age key used to encrypt secrets",
				Action: runSecretInit,
			},
			{
				Name:      "set",
				Usage:     "Encrypt and store a value (read from the terminal or stdin when omitted)",
				ArgsUsage: "<KEY> [value]",
				Action:    runSecretSet,
			},
			{
				Name:   "list",
				Usage:  "List .env keys without their values",
				Action: runSecretList,
			},
		},
		DefaultCommand: "list",
	}
}

func runSecretInit(_ context.Context, _ *cli.Command) error {
	identity, err := secrets.LoadOrCreateIdentity(secrets.KeyPath())
	if err != nil {
		return err
	}
	fmt.Printf("Age key: %s\nPublic key: %s\n", secrets.KeyPath(), identity.Recipient().String())
	return nil
}

func runSecretSet(_ context.Context, cmd *cli.Command) error {
	key := cmd.Args().Get(0)
	if key == "" {
		return fmt.Errorf("usage: bizclaw secret set <KEY> [value]")
	}

	value := cmd.Args().Get(1)
	if value == "" {
		v, err := readSecret(key)
		if err != nil {
			return err
		}
		value = v
	}
	if value == "" {
		return fmt.Errorf("empty value for %s", key)
	}

	identity, err := secrets.LoadOrCreateIdentity(secrets.KeyPath())
	if err != nil {
		return err
	}
	if err := secrets.SetSecret(config.DotenvPath(), key, value, identity.Recipient()); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	fmt.Printf("Stored %s (encrypted) in %s\n", key, config.DotenvPath())
	return nil
}

// readSecret prompts without echo on a terminal, otherwise reads one line of stdin.
func readSecret(key string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprintf(os.Stderr, "%s: ", key)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read value: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read value: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func runSecretList(_ context.Context, _ *cli.Command) error {
	entries, err := secrets.ListEntries(config.DotenvPath())
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No entries found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tENCRYPTED")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%t\n", e.Key, e.Encrypted)
	}
	return w.Flush()
}
