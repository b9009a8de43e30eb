package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.IdleDelay != 30*time.Second {
		t.Errorf("IdleDelay = %v, want 30s", cfg.IdleDelay)
	}
	if cfg.ForegroundMinInterval != 30*time.Second {
		t.Errorf("ForegroundMinInterval = %v, want 30s", cfg.ForegroundMinInterval)
	}
	if cfg.BackstopInterval != 10*time.Minute {
		t.Errorf("BackstopInterval = %v, want 10m", cfg.BackstopInterval)
	}
	if cfg.StalenessThreshold != 5*time.Second {
		t.Errorf("StalenessThreshold = %v, want 5s", cfg.StalenessThreshold)
	}
	if cfg.Parallelism != 4 {
		t.Errorf("Parallelism = %d, want 4", cfg.Parallelism)
	}
	if cfg.DataDir == "" {
		t.Error("DataDir must have a default")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server_url: https://sync.internal.example.com
user_id: rep-42
idle_delay: 45s
parallelism: 2
data_dir: ` + dir + `
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ServerURL != "https://sync.internal.example.com" {
		t.Errorf("ServerURL = %q", cfg.ServerURL)
	}
	if cfg.UserID != "rep-42" {
		t.Errorf("UserID = %q", cfg.UserID)
	}
	if cfg.IdleDelay != 45*time.Second {
		t.Errorf("IdleDelay = %v, want 45s", cfg.IdleDelay)
	}
	if cfg.Parallelism != 2 {
		t.Errorf("Parallelism = %d, want 2", cfg.Parallelism)
	}
	// Unset keys fall back to defaults.
	if cfg.BackstopInterval != 10*time.Minute {
		t.Errorf("BackstopInterval = %v, want default 10m", cfg.BackstopInterval)
	}

	if got := cfg.DocumentsDir(); got != filepath.Join(dir, "documents") {
		t.Errorf("DocumentsDir = %q", got)
	}
	if got := cfg.JournalPath(); got != filepath.Join(dir, "journal.db") {
		t.Errorf("JournalPath = %q", got)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("parallelism: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for parallelism 0")
	}

	if err := os.WriteFile(path, []byte("server_url: \"\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for empty server_url")
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}
