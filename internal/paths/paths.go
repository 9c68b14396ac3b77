// Package paths provides centralized path resolution for relaybot.
// This package has NO internal imports (only stdlib) to avoid import cycles.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigFileName is the name of the optional JSON config file
const ConfigFileName = "relaybot.json"

// TOMLConfigFileName is checked after ConfigFileName in each location
const TOMLConfigFileName = "relaybot.toml"

// baseEnv replaces ~/.relaybot when set.
const baseEnv = "RELAYBOT_HOME"

// BaseDir returns the relaybot base directory (~/.relaybot, or $RELAYBOT_HOME).
func BaseDir() (string, error) {
	if dir := os.Getenv(baseEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".relaybot"), nil
}

// DataPath returns a path within the data directory (~/.relaybot/<subpath>).
func DataPath(subpath string) (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, subpath), nil
}

// ConfigPath returns the active config file path.
// Priority: ./relaybot.json > ./relaybot.toml > ~/.relaybot/relaybot.json > ~/.relaybot/relaybot.toml
// Returns ("", nil) if no config exists - this is a valid state, not an error.
func ConfigPath() (string, error) {
	for _, name := range []string{ConfigFileName, TOMLConfigFileName} {
		if _, err := os.Stat(name); err == nil {
			absPath, err := filepath.Abs(name)
			if err != nil {
				return "", fmt.Errorf("failed to get absolute path: %w", err)
			}
			return absPath, nil
		}
	}

	for _, name := range []string{ConfigFileName, TOMLConfigFileName} {
		globalPath, err := DataPath(name)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(globalPath); err == nil {
			return globalPath, nil
		}
	}

	return "", nil
}

// MetricsDBPath returns the sqlite file used to persist metrics.
func MetricsDBPath() (string, error) {
	return DataPath("metrics.db")
}

// EnsureDir creates a directory if it doesn't exist.
// Uses 0750 permissions (owner: rwx, group: rx, other: none).
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// EnsureParentDir creates the parent directory of a file path if it doesn't exist.
func EnsureParentDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// ExpandTilde expands a path that starts with ~ to the user's home directory.
// Returns the path unchanged if it doesn't start with ~.
func ExpandTilde(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if len(path) == 1 {
		return home, nil
	}
	return filepath.Join(home, path[1:]), nil
}
