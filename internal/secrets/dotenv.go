package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"filippo.io/age"
	"github.com/joho/godotenv"
)

var envKeyRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Entry is a key of the .env file. Values are never listed.
type Entry struct {
	Key       string `json:"key"`
	Encrypted bool   `json:"encrypted"`
}

// ListEntries returns the keys of a .env file, sorted. A missing file has none.
func ListEntries(path string) ([]Entry, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dotenv: %w", err)
	}
	out := make([]Entry, 0, len(values))
	for k, v := range values {
		out = append(out, Entry{Key: k, Encrypted: IsEncrypted(v)})
	}
	slices.SortFunc(out, func(a, b Entry) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

// SetSecret encrypts value for recipient and stores it under key.
func SetSecret(path, key, value string, recipient *age.X25519Recipient) error {
	blob, err := Encrypt(value, recipient)
	if err != nil {
		return err
	}
	return SetEntry(path, key, blob)
}

// SetEntry writes key=value into the .env file at path, creating it with 0600
// when missing. An existing assignment (with or without "export") is replaced
// in place; comments, blank lines and other keys are kept as they are.
func SetEntry(path, key, value string) error {
	if !envKeyRe.MatchString(key) {
		return fmt.Errorf("invalid variable name %q", key)
	}

	var lines []string
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		lines = strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	case !os.IsNotExist(err):
		return fmt.Errorf("read dotenv: %w", err)
	}

	assignment := key + "=" + quoteValue(value)
	replaced := false
	for i, line := range lines {
		if lineKey(line) == key {
			lines[i] = assignment
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, assignment)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dotenv directory: %w", err)
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600)
}

// lineKey returns the variable assigned on line, or "" for comments and blanks.
func lineKey(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	line = strings.TrimPrefix(line, "export ")
	k, _, ok := strings.Cut(line, "=")
	if !ok {
		return ""
	}
	return strings.TrimSpace(k)
}

// quoteValue double-quotes values godotenv would otherwise split or expand.
// ENC[age:...] blobs are base64 and stay bare.
func quoteValue(v string) string {
	if IsEncrypted(v) || !strings.ContainsAny(v, " \t\"'\\#$") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(v) + `"`
}
