package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/rolechat/internal/provider"
	"github.com/flemzord/rolechat/internal/security"
)

const testConfig = `version: "1"
provider:
  api_key: AIzaSyD-test-key-0123456789abcdefghijk
chat:
  model: gemini-2.5-flash
storage:
  path: data/history.db
gateway:
  bind: 127.0.0.1:0
  audit_log: data/audit.jsonl
log:
  level: debug
characters:
  - id: aria
    name: Aria
    instruction: You are Aria, a wandering bard.
    greeting: Well met, traveler!
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rolechat.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestResolveConfigPath_XDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "rolechat")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfgPath := filepath.Join(cfgDir, "rolechat.yaml")
	if err := os.WriteFile(cfgPath, []byte("version: \"1\""), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("XDG_CONFIG_HOME", dir)

	got, err := ResolveConfigPath()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != cfgPath {
		t.Errorf("got %q, want %q", got, cfgPath)
	}
}

func TestResolveConfigPath_NotFound(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/nonexistent/path")
	t.Chdir(t.TempDir())

	if _, err := ResolveConfigPath(); err == nil {
		t.Error("expected error when no config file found")
	}
}

func TestDefaultDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got, want := DefaultDataDir(), "/custom/data/rolechat"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	t.Setenv("XDG_DATA_HOME", "")
	home, _ := os.UserHomeDir()
	if got, want := DefaultDataDir(), filepath.Join(home, ".local", "share", "rolechat"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "invalid yaml", content: "not: valid: yaml: ["},
		{name: "validation", content: "version: \"2\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := LoadConfig(Params{ConfigPath: writeConfig(t, tt.content)}); err == nil {
				t.Error("LoadConfig() error = nil")
			}
		})
	}
	if _, _, err := LoadConfig(Params{ConfigPath: "/nonexistent/config.yaml"}); err == nil {
		t.Error("missing file: error = nil")
	}
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/nonexistent/path")
	t.Chdir(t.TempDir())

	cfg, path, err := LoadConfig(Params{Environ: map[string]string{"ROLECHAT_BASE_URL": "https://openrouter.ai/api/v1"}})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if path != "" {
		t.Errorf("path = %q, want empty", path)
	}
	if cfg.Provider.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("base url = %q", cfg.Provider.BaseURL)
	}
}

func TestBuild(t *testing.T) {
	var logs bytes.Buffer
	path := writeConfig(t, testConfig)
	ctx := context.Background()

	a, err := Build(ctx, Params{ConfigPath: path, Version: "test", LogOutput: &logs})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	b, err := a.Service.Backend()
	if err != nil {
		t.Fatalf("Backend: %v", err)
	}
	if b.Kind() != provider.KindNative {
		t.Errorf("kind = %q, want native", b.Kind())
	}
	if a.Metrics == nil {
		t.Error("metrics disabled by default")
	}
	if v, _ := a.Credentials.Get(security.CredProviderKey); v == "" {
		t.Error("provider key not registered")
	}

	c, err := a.Service.Open(ctx, "aria")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	msgs, err := c.Messages(ctx)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("messages = %v, %v", msgs, err)
	}

	a.Logger.Info("provider", "key", "AIzaSyD-test-key-0123456789abcdefghijk")
	if err := a.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if strings.Contains(logs.String(), "AIzaSyD-test-key") {
		t.Errorf("API key leaked into logs:\n%s", logs.String())
	}

	dataDir := filepath.Join(filepath.Dir(path), "data")
	if _, err := os.Stat(filepath.Join(dataDir, "history.db")); err != nil {
		t.Errorf("history database not created: %v", err)
	}

	// History survives a restart.
	a, err = Build(ctx, Params{ConfigPath: path, LogOutput: &logs})
	if err != nil {
		t.Fatalf("Build again: %v", err)
	}
	defer func() { _ = a.Close(ctx) }()
	c, err = a.Service.Open(ctx, "aria")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if msgs, _ := c.Messages(ctx); len(msgs) != 1 {
		t.Errorf("greeting seeded twice: %d messages", len(msgs))
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	var logs bytes.Buffer
	a, err := Build(context.Background(), Params{ConfigPath: writeConfig(t, testConfig), LogOutput: &logs})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer func() { _ = a.Close(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if !strings.Contains(logs.String(), "shutdown complete") {
		t.Errorf("logs:\n%s", logs.String())
	}
}
