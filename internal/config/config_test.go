package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("discord_token: from-file\nscheduler:\n  poll_seconds: 30\nredis:\n  addr: redis:6379\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("SCHEDULER_MAX_FAILURES", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DiscordToken != "from-file" {
		t.Fatalf("unexpected token %q", cfg.DiscordToken)
	}
	if cfg.Scheduler.PollSeconds != 30 {
		t.Fatalf("expected poll 30, got %d", cfg.Scheduler.PollSeconds)
	}
	if cfg.Scheduler.MaxFailures != 3 {
		t.Fatalf("expected max failures 3, got %d", cfg.Scheduler.MaxFailures)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.Redis.Addr)
	}
	if cfg.Commands.CooldownSeconds != 3 {
		t.Fatalf("expected default cooldown, got %d", cfg.Commands.CooldownSeconds)
	}
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected missing token error")
	}
}

func TestReadAllowsMissingToken(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("DISCORD_TOKEN", "")
	t.Setenv("DATABASE_URL", "postgres://example/db")
	cfg, err := Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.URL != "postgres://example/db" {
		t.Fatalf("expected env database url, got %q", cfg.Database.URL)
	}
}
