package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dohr-michael/bizclaw/internal/events"
)

// globalLog receives events not tied to a skill run.
const globalLog = "_global"

// EventLogger appends bus events as JSON lines to <dir>/<run_id>.jsonl.
// Step-started events are not logged: the matching completion carries the
// same information.
type EventLogger struct {
	dir    string
	mu     sync.Mutex
	cancel func()
}

// NewEventLogger starts logging every bus event under dir.
func NewEventLogger(dir string, bus *events.Bus) *EventLogger {
	el := &EventLogger{dir: dir}
	el.cancel = bus.Watch(events.Query{}, func(e events.Event) {
		if e.Type == events.EventSkillStepStarted {
			return
		}
		if err := el.append(e); err != nil {
			slog.Warn("failed to write event log", "event", e.Type, "run_id", e.RunID, "error", err)
		}
	})
	return el
}

// Close stops logging.
func (el *EventLogger) Close() {
	if el.cancel != nil {
		el.cancel()
	}
}

func (el *EventLogger) append(e events.Event) error {
	line, err := json.Marshal(e)
	if err != nil {
		return err
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	if err := os.MkdirAll(el.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(logPath(el.dir, e.RunID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadRunEvents returns the logged events of a run in write order. A run
// without a log yields no events.
func ReadRunEvents(dir, runID string) ([]events.Event, error) {
	f, err := os.Open(logPath(dir, runID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var out []events.Event
	dec := json.NewDecoder(f)
	for {
		var e events.Event
		err := dec.Decode(&e)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("decode event %d of run %s: %w", len(out)+1, runID, err)
		}
		out = append(out, e)
	}
}

// PruneEventLogs removes run logs last written before cutoff and returns how
// many were removed. The global log is kept.
func PruneEventLogs(dir string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list event logs: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".jsonl") || name == globalLog+".jsonl" {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return removed, fmt.Errorf("remove %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}

func logPath(dir, runID string) string {
	if runID == "" {
		runID = globalLog
	}
	return filepath.Join(dir, filepath.Base(runID)+".jsonl")
}
