package heartbeat

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func beatPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "heartbeat.json")
}

func TestWriter_ReportsInfo(t *testing.T) {
	path := beatPath(t)
	w := NewWriter(path, func() Info {
		return Info{Version: "2.0.0", Addr: "127.0.0.1:8765", Skills: 3, Tools: 41}
	})
	stop := w.Start(context.Background())
	defer stop()

	var (
		status Status
		beat   *Beat
	)
	for i := 0; i < 100; i++ {
		var err error
		status, beat, err = Check(path, StaleAfter)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		if status == StatusAlive {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if status != StatusAlive {
		t.Fatalf("status = %s, want alive", status)
	}
	if beat.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", beat.PID, os.Getpid())
	}
	want := Info{Version: "2.0.0", Addr: "127.0.0.1:8765", Skills: 3, Tools: 41}
	if beat.Info != want {
		t.Errorf("info = %+v, want %+v", beat.Info, want)
	}
}

func TestWriter_StopRemovesFile(t *testing.T) {
	path := beatPath(t)
	stop := NewWriter(path, nil).Start(context.Background())
	for i := 0; i < 100; i++ {
		if _, err := os.Stat(path); err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	stop()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("heartbeat file still present after stop: %v", err)
	}
}

func TestCheck(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name   string
		at     time.Time
		status Status
	}{
		{"fresh", now, StatusAlive},
		{"old", now.Add(-time.Hour), StatusStale},
		{"just inside", now.Add(-StaleAfter + 10*time.Second), StatusAlive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := beatPath(t)
			if err := Write(path, Beat{PID: 42, StartedAt: tt.at.Add(-time.Hour), At: tt.at}); err != nil {
				t.Fatal(err)
			}
			status, beat, err := Check(path, StaleAfter)
			if err != nil {
				t.Fatalf("Check: %v", err)
			}
			if status != tt.status {
				t.Errorf("status = %s, want %s", status, tt.status)
			}
			if beat == nil || beat.PID != 42 {
				t.Fatalf("beat = %+v", beat)
			}
			if beat.Uptime() != time.Hour {
				t.Errorf("uptime = %s, want 1h", beat.Uptime())
			}
		})
	}
}

func TestCheck_Missing(t *testing.T) {
	status, beat, err := Check(beatPath(t), StaleAfter)
	if err != nil || status != StatusDead || beat != nil {
		t.Errorf("got %s, %+v, %v; want dead with nothing", status, beat, err)
	}
}

func TestCheck_Corrupt(t *testing.T) {
	path := beatPath(t)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	status, _, err := Check(path, StaleAfter)
	if err == nil || status != StatusDead {
		t.Errorf("got %s, %v; want dead with error", status, err)
	}
}
