package reload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestWatcher_DetectsContentChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rolechat.yaml")
	writeFile(t, path, "version: \"1\"\n")

	w := NewWatcher(path, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	time.Sleep(60 * time.Millisecond)
	writeFile(t, path, "version: \"1\"\n")
	select {
	case ev := <-w.Events():
		t.Fatalf("identical rewrite triggered %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}

	writeFile(t, path, "version: \"1\"\nchat:\n  model: gpt-4o\n")
	select {
	case ev := <-w.Events():
		if ev.Source != SourceFile || ev.ConfigPath != path {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
}

func TestWatcher_Stop(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		start      bool
		startAfter bool
	}{
		{name: "after start", start: true},
		{name: "before start"},
		{name: "start after stop", startAfter: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			w := NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), 10*time.Millisecond)
			if tt.start {
				w.Start(context.Background())
			}
			done := make(chan struct{})
			go func() {
				w.Stop()
				if tt.startAfter {
					w.Start(context.Background())
				}
				w.Stop()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("Stop did not return")
			}
			if tt.startAfter && w.polling {
				t.Error("Start after Stop began polling")
			}
		})
	}
}

func TestWatcher_MissingFileIsQuiet(t *testing.T) {
	t.Parallel()

	w := NewWatcher("/nonexistent/rolechat.yaml", 10*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	select {
	case ev := <-w.Events():
		t.Errorf("unexpected event %+v", ev)
	case <-ctx.Done():
	}
}
