// Package secrets keeps ERP credentials encrypted at rest as ENC[age:...]
// values in the bizclaw .env file.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"github.com/dohr-michael/bizclaw/internal/config"
)

// KeyPath returns the default age key file path: $BIZCLAW_PATH/.age-key.
func KeyPath() string {
	return config.AgeKeyPath()
}

// GenerateIdentity writes a fresh X25519 key to path (mode 0600). An
// existing key file is never replaced.
func GenerateIdentity(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create age key: %w", err)
	}
	defer f.Close()

	id, err := age.GenerateX25519Identity()
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("generate age identity: %w", err)
	}
	_, err = fmt.Fprintf(f, "# bizclaw secrets key\n# public key: %s\n%s\n", id.Recipient(), id)
	if err != nil {
		return fmt.Errorf("write age key: %w", err)
	}
	return nil
}

// LoadIdentity reads the first AGE-SECRET-KEY line of the key file. Blank
// lines and # comments are skipped.
func LoadIdentity(path string) (*age.X25519Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read age key: %w", err)
	}
	for line := range strings.Lines(string(data)) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("parse age key %s: %w", path, err)
		}
		return id, nil
	}
	return nil, fmt.Errorf("no age key found in %s", path)
}

// LoadOrCreateIdentity generates the key at path when missing, then loads it.
func LoadOrCreateIdentity(path string) (*age.X25519Identity, error) {
	if err := GenerateIdentity(path); err != nil {
		return nil, err
	}
	return LoadIdentity(path)
}

// OptionalIdentity loads the key at path, or returns nil when there is none.
// A server without a key simply cannot use encrypted values.
func OptionalIdentity(path string) (*age.X25519Identity, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return LoadIdentity(path)
}
