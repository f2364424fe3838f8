package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_Reload(t *testing.T) {
	dir := t.TempDir()
	writeSkillFile(t, dir, "a.json", validSkill("alpha"))

	opts := StoreOptions{Dirs: []string{dir}}
	exec := NewExecutor(LoadStore(opts), ExecutorConfig{Invoker: newFakeInvoker()})

	var reloaded int
	w := NewWatcher(opts, exec, nil, func(*Store) { reloaded++ })

	writeSkillFile(t, dir, "b.json", validSkill("beta"))
	st := w.Reload()
	if st.Len() != 2 || exec.Store().Get("beta") == nil {
		t.Errorf("expected beta after reload, got %v", exec.Store().Names())
	}
	if reloaded != 1 {
		t.Errorf("expected reload callback once, got %d", reloaded)
	}
}

func TestWatcher_RunPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	opts := StoreOptions{Dirs: []string{dir}}
	exec := NewExecutor(LoadStore(opts), ExecutorConfig{Invoker: newFakeInvoker()})

	w := NewWatcher(opts, exec, nil, nil)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "c.json"), []byte(validSkill("gamma")), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if exec.Store().Get("gamma") != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected gamma to be loaded by the watcher")
}

func TestWatcher_RunPicksUpCreatedDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "bizclaw", "skills")
	opts := StoreOptions{Dirs: []string{dir}}
	exec := NewExecutor(LoadStore(opts), ExecutorConfig{Invoker: newFakeInvoker()})

	w := NewWatcher(opts, exec, nil, nil)
	w.debounce = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(root, "unrelated.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "late.json"), []byte(validSkill("late")), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if exec.Store().Get("late") != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected late to be loaded once its directory was created")
}

func TestOnSkillPath(t *testing.T) {
	dirs := []string{filepath.Join("/srv", "bizclaw", "skills")}
	cases := map[string]bool{
		"/srv":                           true,
		"/srv/bizclaw":                   true,
		"/srv/bizclaw/skills":            true,
		"/srv/bizclaw/skills/a.json":     true,
		"/srv/bizclaw/skills/sub/b.yaml": true,
		"/srv/bizclaw/other":             false,
		"/srv/bizclaw/skills-old":        false,
		"/srv/unrelated.txt":             false,
	}
	for path, want := range cases {
		if got := onSkillPath(dirs, filepath.FromSlash(path)); got != want {
			t.Errorf("onSkillPath(%s) = %v, want %v", path, got, want)
		}
	}
}
