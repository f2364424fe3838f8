package config

import (
	"os"
	"path/filepath"
)

// BizclawPath returns the root directory for bizclaw data.
// It uses $BIZCLAW_PATH if set, otherwise defaults to ~/.bizclaw.
func BizclawPath() string {
	if v := os.Getenv("BIZCLAW_PATH"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".bizclaw")
	}
	return filepath.Join(home, ".bizclaw")
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(BizclawPath(), "config.jsonc")
}

// DotenvPath returns the path to the .env file.
func DotenvPath() string {
	return filepath.Join(BizclawPath(), ".env")
}

// AgeKeyPath returns the path to the age identity used for ENC[age:...] secrets.
func AgeKeyPath() string {
	return filepath.Join(BizclawPath(), ".age-key")
}

// HeartbeatPath returns the path of the serve heartbeat file.
func HeartbeatPath() string {
	return filepath.Join(BizclawPath(), "heartbeat.json")
}
