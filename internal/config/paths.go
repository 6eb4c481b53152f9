// Package config is the daemon's configuration layer (SPEC_FULL.md
// "Configuration"): a YAML bootstrap file (relayd.yaml) plus path
// resolution for the JSON runtime documents spec.md §6 names (Registry,
// Settings; the Router owns the session-to-thread mapping file
// separately, but in the same directory).
//
// Path resolution is grounded on the teacher's internal/config/paths.go
// (GetUserConfigDir/EnsureConfigDirs), renamed from ~/.wingthing to
// ~/.relayd. Unlike the teacher, this daemon has no project-local
// config root to walk up and find — every session's config lives under
// one user-level directory — so the teacher's project-dir half of this
// file was dropped rather than ported; see DESIGN.md.
package config

import (
	"os"
	"path/filepath"
)

// GetUserConfigDir returns ~/.relayd, the daemon's per-user config root.
func GetUserConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, ".relayd"), nil
}

// EnsureConfigDirs creates dir (the user config root) if it doesn't
// already exist.
func EnsureConfigDirs(dir string) error {
	return os.MkdirAll(dir, 0755)
}
