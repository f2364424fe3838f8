package secrets

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"filippo.io/age"

	"github.com/dohr-michael/bizclaw/internal/config"
)

func TestDecryptEnv(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatal(err)
	}
	blob, err := Encrypt("s3cret", identity.Recipient())
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("BIZCLAW_TEST_API_SECRET", blob)
	t.Setenv("BIZCLAW_TEST_PLAIN", "visible")

	names, err := DecryptEnv(identity)
	if err != nil {
		t.Fatalf("DecryptEnv: %v", err)
	}
	if !slices.Contains(names, "BIZCLAW_TEST_API_SECRET") {
		t.Errorf("expected secret decrypted, got %v", names)
	}
	if got := os.Getenv("BIZCLAW_TEST_API_SECRET"); got != "s3cret" {
		t.Errorf("expected plaintext in env, got %q", got)
	}
	if got := os.Getenv("BIZCLAW_TEST_PLAIN"); got != "visible" {
		t.Errorf("plain value changed to %q", got)
	}
}

func TestDecryptEnv_NoIdentity(t *testing.T) {
	t.Setenv("BIZCLAW_TEST_LOCKED", "ENC[age:AAAA]")
	if _, err := DecryptEnv(nil); err == nil {
		t.Error("expected error for encrypted value without a key")
	}
}

func TestSetSecret_FeedsConfig(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, ".age-key")
	envPath := filepath.Join(dir, ".env")

	identity, err := LoadOrCreateIdentity(keyPath)
	if err != nil {
		t.Fatalf("LoadOrCreateIdentity: %v", err)
	}
	if err := SetSecret(envPath, "BIZCLAW_TEST_ERP_SECRET", "abc 123", identity.Recipient()); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}

	entries, err := ListEntries(envPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Key != "BIZCLAW_TEST_ERP_SECRET" || !entries[0].Encrypted {
		t.Fatalf("unexpected entries %+v", entries)
	}

	t.Setenv("BIZCLAW_TEST_ERP_SECRET", "")
	os.Unsetenv("BIZCLAW_TEST_ERP_SECRET")
	if err := config.LoadDotenv(envPath); err != nil {
		t.Fatal(err)
	}
	if _, err := DecryptEnv(identity); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("BIZCLAW_TEST_ERP_SECRET"); got != "abc 123" {
		t.Errorf("expected decrypted secret, got %q", got)
	}
}

func TestOptionalIdentity_Missing(t *testing.T) {
	id, err := OptionalIdentity(filepath.Join(t.TempDir(), "none"))
	if err != nil || id != nil {
		t.Errorf("expected nil identity and no error, got %v, %v", id, err)
	}
}

func TestListEntries_Missing(t *testing.T) {
	entries, err := ListEntries(filepath.Join(t.TempDir(), ".env"))
	if err != nil || entries != nil {
		t.Errorf("expected no entries, got %v, %v", entries, err)
	}
}
