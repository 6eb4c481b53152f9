package config

import (
	"path/filepath"
	"testing"
)

func TestLoadSettingsMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.Version != 1 {
		t.Errorf("version = %d, want 1", s.Version)
	}
	if !s.AutoCleanupOrphans {
		t.Error("expected auto-cleanup on by default")
	}
	if len(s.AllowedDirectories) != 0 {
		t.Errorf("expected empty allow-list, got %v", s.AllowedDirectories)
	}
}

func TestSaveAndLoadSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := &Settings{
		AllowedDirectories:    []string{"/home/user/project-a", "/home/user/project-b"},
		DefaultDirectory:      "/home/user/project-a",
		AutoCleanupOrphans:    true,
		MaxConcurrentSessions: 4,
		TerminalApp:           "iTerm2",
	}
	if err := SaveSettings(path, s); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Version != 1 {
		t.Errorf("version = %d, want 1", got.Version)
	}
	if !got.IsDirectoryAllowed("/home/user/project-a") {
		t.Error("expected project-a to be allowed")
	}
	if got.IsDirectoryAllowed("/home/user/project-c") {
		t.Error("expected project-c to not be allowed")
	}
	if got.MaxConcurrentSessions != 4 {
		t.Errorf("max concurrent sessions = %d, want 4", got.MaxConcurrentSessions)
	}
}

func TestSaveSettingsLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	if err := SaveSettings(path, &Settings{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no leftover temp files, got %v", matches)
	}
}
