package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider != "anthropic" {
		t.Fatalf("provider = %q", cfg.Provider)
	}
	if cfg.GitPollEvery() != 30*time.Second {
		t.Fatalf("git poll = %v", cfg.GitPollEvery())
	}
	if cfg.Terminal.ProbeDelay() != 800*time.Millisecond {
		t.Fatalf("probe delay = %v", cfg.Terminal.ProbeDelay())
	}
	if cfg.HistoryTTL() != 0 {
		t.Fatalf("history ttl = %v, want keep-forever", cfg.HistoryTTL())
	}
}

func TestLoad_EmptyPathYieldsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load("  ")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider != "anthropic" {
		t.Fatalf("provider = %q", cfg.Provider)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "console.yaml")
	body := `
provider: openai
model: gpt-5.1
event_url: ws://localhost:7070/events
redis_url: redis://localhost:6379/0
history_ttl_hours: 48
git_poll_seconds: 120
verbose_events: true
terminal:
  fullterm_commands: [mycurses]
  fast_commands: [myfast]
  probe_delay_ms: 250
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider != "openai" || cfg.Model != "gpt-5.1" {
		t.Fatalf("provider/model = %q/%q", cfg.Provider, cfg.Model)
	}
	if cfg.EventURL != "ws://localhost:7070/events" {
		t.Fatalf("event url = %q", cfg.EventURL)
	}
	if cfg.GitPollEvery() != 2*time.Minute {
		t.Fatalf("git poll = %v", cfg.GitPollEvery())
	}
	if cfg.HistoryTTL() != 48*time.Hour {
		t.Fatalf("history ttl = %v", cfg.HistoryTTL())
	}
	if !cfg.VerboseEvents {
		t.Fatal("verbose_events not set")
	}
	if len(cfg.Terminal.FulltermCommands) != 1 || cfg.Terminal.FulltermCommands[0] != "mycurses" {
		t.Fatalf("fullterm = %v", cfg.Terminal.FulltermCommands)
	}
	if cfg.Terminal.ProbeDelay() != 250*time.Millisecond {
		t.Fatalf("probe delay = %v", cfg.Terminal.ProbeDelay())
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "console.yaml")
	if err := os.WriteFile(path, []byte("provider: [unclosed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_PartialFileKeepsRemainingDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "console.yaml")
	if err := os.WriteFile(path, []byte("model: claude-sonnet-4-5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider != "anthropic" {
		t.Fatalf("provider = %q", cfg.Provider)
	}
	if cfg.Model != "claude-sonnet-4-5" {
		t.Fatalf("model = %q", cfg.Model)
	}
	if cfg.Terminal.ProbeDelay() != 800*time.Millisecond {
		t.Fatalf("probe delay = %v", cfg.Terminal.ProbeDelay())
	}
}
