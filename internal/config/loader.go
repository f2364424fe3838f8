package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates,
// standardizes it to plain JSON, unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := Unmarshal([]byte(expandEnvTemplates(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadOrDefault loads the config at path, falling back to defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		cfg = &Config{}
		applyDefaults(cfg)
		return cfg, nil
	}
	return nil, err
}

// Unmarshal decodes JSONC (comments, trailing commas) into v.
func Unmarshal(data []byte, v any) error {
	std, err := hujson.Standardize(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(std, v)
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.ERP.URL == "" {
		cfg.ERP.URL = envOr("ERPNEXT_URL", "http://localhost:8001")
	}
	if cfg.ERP.APIKey == "" {
		cfg.ERP.APIKey = os.Getenv("API_KEY")
	}
	if cfg.ERP.APISecret == "" {
		cfg.ERP.APISecret = os.Getenv("API_SECRET")
	}
	if cfg.ERP.Timeout == 0 {
		cfg.ERP.Timeout = Duration(30 * time.Second)
	}
	if cfg.ERP.MaxRetries == 0 {
		cfg.ERP.MaxRetries = 3
	}
	if cfg.ERP.RetryBaseDelay == 0 {
		cfg.ERP.RetryBaseDelay = Duration(time.Second)
	}
	if cfg.ERP.BulkConcurrency == 0 {
		cfg.ERP.BulkConcurrency = 4
	}

	if cfg.Server.Name == "" {
		cfg.Server.Name = "business-claw"
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8003
	}
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = "stdio"
	}
	if cfg.Server.DefaultUser == "" {
		cfg.Server.DefaultUser = "Administrator"
	}
	if cfg.Server.UserHeader == "" {
		cfg.Server.UserHeader = "X-Bizclaw-User"
	}

	if len(cfg.Skills.Dirs) == 0 {
		cfg.Skills.Dirs = []string{filepath.Join(BizclawPath(), "skills")}
	}
	if len(cfg.Skills.Patterns) == 0 {
		cfg.Skills.Patterns = []string{"*.json", "*.jsonc", "*.yaml", "*.yml"}
	}
	if cfg.Tools.Dir == "" {
		cfg.Tools.Dir = filepath.Join(BizclawPath(), "tools")
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(BizclawPath(), "history.db")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
