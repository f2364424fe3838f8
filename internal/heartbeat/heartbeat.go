// Package heartbeat lets `bizclaw status` tell whether a server is running.
//
// A running server rewrites a small JSON file every Interval; readers judge
// liveness from the age of the last beat.
package heartbeat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"
)

// Status is the liveness of a server as seen from its heartbeat file.
type Status string

const (
	StatusAlive Status = "alive"
	StatusStale Status = "stale"
	StatusDead  Status = "dead"
)

const (
	// DefaultInterval is how often the heartbeat file is rewritten.
	DefaultInterval = 30 * time.Second
	// StaleAfter is the age past which a beat no longer counts as alive.
	StaleAfter = 2 * time.Minute
)

// Info is the live server state reported with every beat.
type Info struct {
	Version string `json:"version"`
	Addr    string `json:"addr,omitempty"`
	ERPURL  string `json:"erp_url,omitempty"`
	Skills  int    `json:"skills"`
	Tools   int    `json:"tools"`
}

// Beat is one heartbeat record.
type Beat struct {
	Info
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	At        time.Time `json:"timestamp"`
}

// Uptime is the time between server start and this beat.
func (b Beat) Uptime() time.Duration {
	return b.At.Sub(b.StartedAt).Truncate(time.Second)
}

// Age is how long ago the beat was written.
func (b Beat) Age() time.Duration {
	return time.Since(b.At).Truncate(time.Second)
}

// Writer keeps a heartbeat file fresh while a server runs.
type Writer struct {
	Path     string
	Interval time.Duration
	// Info, when set, is sampled on every beat.
	Info func() Info
}

// NewWriter returns a writer for path at DefaultInterval.
func NewWriter(path string, info func() Info) *Writer {
	return &Writer{Path: path, Interval: DefaultInterval, Info: info}
}

// Start beats in the background until ctx is done or stop is called. stop
// waits for the loop to exit and removes the file.
func (w *Writer) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.run(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (w *Writer) run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	started := time.Now()
	defer os.Remove(w.Path)

	for {
		beat := Beat{PID: os.Getpid(), StartedAt: started, At: time.Now()}
		if w.Info != nil {
			beat.Info = w.Info()
		}
		if err := Write(w.Path, beat); err != nil {
			slog.Debug("heartbeat write failed", "path", w.Path, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// Write stores beat at path through a temp file and rename.
func Write(path string, beat Beat) error {
	data, err := json.MarshalIndent(beat, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Check reads the beat at path and classifies it. A missing file is
// StatusDead with no error.
func Check(path string, maxAge time.Duration) (Status, *Beat, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return StatusDead, nil, nil
	}
	if err != nil {
		return StatusDead, nil, fmt.Errorf("read heartbeat: %w", err)
	}

	var beat Beat
	if err := json.Unmarshal(data, &beat); err != nil {
		return StatusDead, nil, fmt.Errorf("decode heartbeat %s: %w", path, err)
	}
	if time.Since(beat.At) > maxAge {
		return StatusStale, &beat, nil
	}
	return StatusAlive, &beat, nil
}
