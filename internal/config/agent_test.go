package config

import (
	"path/filepath"
	"testing"
)

func TestLoadAgentConfig_MissingFileReturnsDefaults(t *testing.T) {
	home := t.TempDir()
	cfg, err := LoadAgentConfig(home)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != "agent" {
		t.Fatalf("expected default name 'agent', got %q", cfg.Name)
	}
	if cfg.Embedding.Dimensions != 1024 {
		t.Fatalf("expected default dimensions 1024, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Search.Alpha != 0.7 {
		t.Fatalf("expected default alpha 0.7, got %v", cfg.Search.Alpha)
	}
}

func TestAgentConfig_SaveAndReload(t *testing.T) {
	home := t.TempDir()
	cfg := DefaultAgentConfig(home)
	cfg.Name = "test-agent"
	cfg.Search.Alpha = 0.5

	if err := cfg.Save(home); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded, err := LoadAgentConfig(home)
	if err != nil {
		t.Fatalf("LoadAgentConfig failed: %v", err)
	}
	if reloaded.Name != "test-agent" {
		t.Fatalf("expected reloaded name 'test-agent', got %q", reloaded.Name)
	}
	if reloaded.Search.Alpha != 0.5 {
		t.Fatalf("expected reloaded alpha 0.5, got %v", reloaded.Search.Alpha)
	}
}

func TestAgentConfig_ValidateRejectsBadAlpha(t *testing.T) {
	cfg := DefaultAgentConfig(t.TempDir())
	cfg.Search.Alpha = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate() to reject alpha > 1")
	}
}

func TestAgentConfig_ValidateRejectsEmptyName(t *testing.T) {
	cfg := DefaultAgentConfig(t.TempDir())
	cfg.Name = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate() to reject an empty name")
	}
}

func TestDefaultAgentConfig_DatabasePathUnderHome(t *testing.T) {
	home := "/tmp/some-home"
	cfg := DefaultAgentConfig(home)
	want := filepath.Join(home, "memory", "memories.db")
	if cfg.Memory.DatabasePath != want {
		t.Fatalf("expected database path %q, got %q", want, cfg.Memory.DatabasePath)
	}
}

func TestHarnessesOrDefault(t *testing.T) {
	got := harnessesOrDefault([]string{"claude-code"})
	if len(got) != 1 || got[0] != "claude-code" {
		t.Fatalf("expected fallback harness list, got %v", got)
	}

	t.Setenv("SIGNET_HARNESSES", "a,b")
	got = harnessesOrDefault([]string{"claude-code"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected override harness list [a b], got %v", got)
	}
}
