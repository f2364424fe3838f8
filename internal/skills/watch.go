package skills

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dohr-michael/bizclaw/internal/events"
)

// DebounceInterval is how long the watcher waits after the last file event before reloading.
const DebounceInterval = 300 * time.Millisecond

// Watcher rebuilds the skill store when definition files change.
type Watcher struct {
	opts     StoreOptions
	exec     *Executor
	bus      *events.Bus
	onReload func(*Store)
	debounce time.Duration
}

// NewWatcher creates a watcher swapping exec's store on change. onReload, when
// set, runs after each swap (e.g. to re-register skill tools).
func NewWatcher(opts StoreOptions, exec *Executor, bus *events.Bus, onReload func(*Store)) *Watcher {
	return &Watcher{opts: opts, exec: exec, bus: bus, onReload: onReload, debounce: DebounceInterval}
}

// Reload loads a fresh store and installs it.
func (w *Watcher) Reload() *Store {
	st := LoadStore(w.opts)
	w.exec.SetStore(st)
	if w.onReload != nil {
		w.onReload(st)
	}

	errs := make([]string, 0, len(st.Errors()))
	for _, err := range st.Errors() {
		errs = append(errs, err.Error())
	}
	if w.bus != nil {
		w.bus.Publish(events.NewTypedEvent(events.SourceSkill, events.SkillsReloadedPayload{Count: st.Len(), Errors: errs}))
	}
	slog.Info("skills reloaded", "count", st.Len(), "errors", len(errs))
	return st
}

// Run watches the skill directories until ctx is done. A directory that does
// not exist yet is picked up once created: its nearest existing ancestor is
// watched until then.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create skill watcher: %w", err)
	}
	defer fw.Close()

	dirs := make([]string, len(w.opts.Dirs))
	for i, dir := range w.opts.Dirs {
		dirs[i] = filepath.Clean(dir)
		if _, err := os.Stat(dirs[i]); err != nil {
			anc := existingAncestor(dirs[i])
			slog.Debug("skills directory missing, watching ancestor", "dir", dirs[i], "ancestor", anc)
			if anc != "" {
				if err := fw.Add(anc); err != nil {
					slog.Warn("failed to watch skills directory ancestor", "dir", anc, "error", err)
				}
			}
			continue
		}
		if err := addTree(fw, dirs[i]); err != nil {
			slog.Warn("failed to watch skills directory", "dir", dirs[i], "error", err)
		}
	}

	var timer *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 || !onSkillPath(dirs, ev.Name) {
				continue
			}
			if ev.Op&fsnotify.Create != 0 {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					_ = addTree(fw, ev.Name)
				}
			}
			slog.Debug("skill file event", "op", ev.Op.String(), "path", ev.Name)
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			w.Reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("skill watcher error", "error", err)
		}
	}
}

// existingAncestor returns the closest existing parent directory of dir.
func existingAncestor(dir string) string {
	for d := filepath.Dir(dir); ; d = filepath.Dir(d) {
		if fi, err := os.Stat(d); err == nil && fi.IsDir() {
			return d
		}
		if d == filepath.Dir(d) {
			return ""
		}
	}
}

// onSkillPath reports whether path lies inside a skill directory or on the
// way to one. Other entries of a watched ancestor are ignored.
func onSkillPath(dirs []string, path string) bool {
	for _, dir := range dirs {
		if within(dir, path) || within(path, dir) {
			return true
		}
	}
	return false
}

func within(parent, path string) bool {
	rel, err := filepath.Rel(parent, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// addTree watches dir and its subdirectories.
func addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}
