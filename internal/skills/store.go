package skills

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPatterns match the skill definition formats.
var DefaultPatterns = []string{"*.json", "*.jsonc", "*.yaml", "*.yml"}

// StoreOptions selects the skill files a Store loads.
type StoreOptions struct {
	Dirs     []string
	Patterns []string // doublestar patterns relative to each dir, DefaultPatterns when empty
	Enabled  []string // skill names to keep, all when empty
}

// Store holds the skills loaded at construction. It is read-only afterwards and
// safe to share; reloading means building a new Store.
type Store struct {
	skills map[string]*Skill
	errs   []error
}

// NewStore builds a Store from already parsed skills. Invalid or duplicate
// skills are skipped and reported by Errors.
func NewStore(skills ...*Skill) *Store {
	st := &Store{skills: make(map[string]*Skill, len(skills))}
	for _, s := range skills {
		st.add(s)
	}
	return st
}

// LoadStore scans the configured directories. A file that cannot be read,
// parsed or validated is logged and skipped; it never prevents other skills
// from loading.
func LoadStore(opts StoreOptions) *Store {
	st := &Store{skills: make(map[string]*Skill)}
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	for _, dir := range opts.Dirs {
		for _, path := range st.match(dir, patterns) {
			s, warnings, err := LoadSkill(path)
			for _, w := range warnings {
				slog.Warn("skill definition warning", "path", path, "warning", w)
			}
			if err != nil {
				slog.Warn("failed to load skill", "path", path, "error", err)
				st.errs = append(st.errs, err)
				continue
			}
			if len(opts.Enabled) > 0 && !slices.Contains(opts.Enabled, s.Name) {
				slog.Debug("skill not enabled, skipping", "name", s.Name)
				continue
			}
			st.add(s)
		}
	}

	slog.Debug("skills loaded", "count", len(st.skills), "errors", len(st.errs))
	return st
}

// match lists the files in dir matching any pattern, sorted and deduplicated.
func (st *Store) match(dir string, patterns []string) []string {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		slog.Debug("skills directory not found, skipping", "dir", dir)
		return nil
	}
	fsys := os.DirFS(dir)
	var paths []string
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			st.errs = append(st.errs, fmt.Errorf("glob %s in %s: %w", pattern, dir, err))
			continue
		}
		for _, m := range matches {
			paths = append(paths, filepath.Join(dir, filepath.FromSlash(m)))
		}
	}
	slices.Sort(paths)
	return slices.Compact(paths)
}

func (st *Store) add(s *Skill) {
	if s == nil {
		st.errs = append(st.errs, errors.New("nil skill"))
		return
	}
	if !Validate(s) {
		st.errs = append(st.errs, &ValidationError{Source: s.Source, Problems: []string{"structurally invalid"}})
		return
	}
	if prev, exists := st.skills[s.Name]; exists {
		err := fmt.Errorf("skill %q from %s already loaded from %s", s.Name, s.Source, prev.Source)
		slog.Warn("duplicate skill, skipping", "name", s.Name, "path", s.Source)
		st.errs = append(st.errs, err)
		return
	}
	st.skills[s.Name] = s
}

// Get returns the skill with the given name, or nil.
func (st *Store) Get(name string) *Skill {
	if st == nil {
		return nil
	}
	return st.skills[name]
}

// All returns every loaded skill keyed by name.
func (st *Store) All() map[string]*Skill {
	if st == nil {
		return map[string]*Skill{}
	}
	return maps.Clone(st.skills)
}

// List returns every loaded skill sorted by name.
func (st *Store) List() []*Skill {
	names := st.Names()
	out := make([]*Skill, len(names))
	for i, n := range names {
		out[i] = st.skills[n]
	}
	return out
}

// Names returns the loaded skill names sorted alphabetically.
func (st *Store) Names() []string {
	if st == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(st.skills))
}

// Len returns the number of loaded skills.
func (st *Store) Len() int {
	if st == nil {
		return 0
	}
	return len(st.skills)
}

// Errors returns the problems met while loading, one per rejected file or skill.
func (st *Store) Errors() []error {
	if st == nil {
		return nil
	}
	return slices.Clone(st.errs)
}
