package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"
)

func TestGenerateIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "home", ".age-key")

	if err := GenerateIdentity(path); err != nil {
		t.Fatalf("GenerateIdentity: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected permissions 0600, got %o", info.Mode().Perm())
	}

	first, _ := os.ReadFile(path)
	id, err := LoadIdentity(path)
	if err != nil {
		t.Fatalf("LoadIdentity: %v", err)
	}
	if !strings.Contains(string(first), "# public key: "+id.Recipient().String()) {
		t.Errorf("expected public key comment, got:\n%s", first)
	}

	if err := GenerateIdentity(path); err != nil {
		t.Fatal(err)
	}
	second, _ := os.ReadFile(path)
	if string(first) != string(second) {
		t.Error("expected an existing key to be kept")
	}
}

func TestLoadIdentity_Invalid(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadIdentity(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing key")
	}

	bad := filepath.Join(dir, "bad")
	if err := os.WriteFile(bad, []byte("# nothing here\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadIdentity(bad); err == nil {
		t.Error("expected error for key file without identities")
	}
	if _, err := OptionalIdentity(bad); err == nil {
		t.Error("expected OptionalIdentity to report a corrupt key")
	}
}

func TestLoadOrCreateIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".age-key")

	a, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := LoadOrCreateIdentity(path)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if a.String() != b.String() {
		t.Error("expected the same identity on the second call")
	}

	opt, err := OptionalIdentity(path)
	if err != nil || opt == nil || opt.String() != a.String() {
		t.Errorf("expected OptionalIdentity to load the key, got %v, %v", opt, err)
	}
}

func TestDecrypt_WrongIdentity(t *testing.T) {
	owner, _ := age.GenerateX25519Identity()
	other, _ := age.GenerateX25519Identity()

	blob, err := Encrypt("api-secret", owner.Recipient())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decrypt(blob, other); err == nil {
		t.Error("expected decrypt with another key to fail")
	}
	if _, err := Decrypt("plain", owner); err == nil {
		t.Error("expected error for a value that is not a blob")
	}
	if IsEncrypted("ENC[age:abc") {
		t.Error("expected an unterminated blob not to count as encrypted")
	}
}
