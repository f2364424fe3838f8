package config

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
)

// Listener is told about a successful reload. prev is the config that was
// active before it.
type Listener func(prev, next *Config)

// Reloader re-reads .env and the config file on demand and swaps the active
// config atomically.
type Reloader struct {
	configPath string
	dotenvPath string
	current    atomic.Pointer[Config]

	mu        sync.Mutex
	listeners []Listener
	afterEnv  func() error
}

func NewReloader(configPath, dotenvPath string, initial *Config) *Reloader {
	r := &Reloader{configPath: configPath, dotenvPath: dotenvPath}
	r.current.Store(initial)
	return r
}

// Current returns the active config.
func (r *Reloader) Current() *Config {
	return r.current.Load()
}

// OnReload adds a listener. Listeners run in order on the reloading goroutine.
func (r *Reloader) OnReload(fn Listener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// AfterDotenv sets a hook run between re-reading .env and parsing the config,
// e.g. to decrypt ENC[age:...] values.
func (r *Reloader) AfterDotenv(fn func() error) {
	r.mu.Lock()
	r.afterEnv = fn
	r.mu.Unlock()
}

// Reload refreshes the environment and config. The active config is left
// untouched when anything fails.
func (r *Reloader) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ReloadDotenv(r.dotenvPath); err != nil {
		return fmt.Errorf("reload dotenv: %w", err)
	}
	if r.afterEnv != nil {
		if err := r.afterEnv(); err != nil {
			return fmt.Errorf("prepare environment: %w", err)
		}
	}
	next, err := LoadOrDefault(r.configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	prev := r.current.Swap(next)
	changed := ChangedSections(prev, next)
	slog.Info("config reloaded", "path", r.configPath, "changed", changed)

	for _, fn := range r.listeners {
		fn(prev, next)
	}
	return nil
}

// ChangedSections lists the top-level sections (by JSON name) that differ
// between a and b. A nil config differs in every section.
func ChangedSections(a, b *Config) []string {
	var changed []string
	t := reflect.TypeFor[Config]()
	for i := range t.NumField() {
		name := t.Field(i).Tag.Get("json")
		if a == nil || b == nil {
			changed = append(changed, name)
			continue
		}
		av := reflect.ValueOf(*a).Field(i).Interface()
		bv := reflect.ValueOf(*b).Field(i).Interface()
		if !reflect.DeepEqual(av, bv) {
			changed = append(changed, name)
		}
	}
	return changed
}

// NeedsRestart reports the changed sections that only take effect on restart.
func NeedsRestart(changed []string) []string {
	var out []string
	for _, s := range changed {
		switch s {
		case "erp", "server", "skills", "events", "history", "schedules":
			out = append(out, s)
		}
	}
	return out
}
