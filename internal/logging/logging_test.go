package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoggerPrefixesSubsystem(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	f := New(Options{File: path, MaxSizeMB: 1, Backups: 1})
	defer f.Close()

	f.Logger("sync").Printf("pass complete")
	f.Logger("store").Printf("index rebuilt")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "[sync] ") || !strings.Contains(out, "pass complete") {
		t.Errorf("sync line missing from log: %q", out)
	}
	if !strings.Contains(out, "[store] ") {
		t.Errorf("store prefix missing from log: %q", out)
	}
}

func TestStderrFactoryHasNoCloser(t *testing.T) {
	f := New(Options{})
	if err := f.Close(); err != nil {
		t.Errorf("Close on stderr factory returned %v", err)
	}
	if f.Logger("x") == nil {
		t.Fatal("nil logger")
	}
}
