package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// AppName names the manager's own config and state directories.
	AppName = "opencode-mcp-manager"

	// OpencodeFileName is the file name in both scopes.
	OpencodeFileName = "opencode.json"
)

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// ConfigHome returns $XDG_CONFIG_HOME, defaulting to ~/.config.
func ConfigHome() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return dir
	}
	return filepath.Join(homeDir(), ".config")
}

// StateDir returns the directory for logs, locks and history
// ($XDG_STATE_HOME/opencode-mcp-manager, defaulting to ~/.local/state).
func StateDir() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		base = filepath.Join(homeDir(), ".local", "state")
	}
	return filepath.Join(base, AppName)
}

// LockDir holds the advisory locks taken while saving opencode.json files.
func LockDir() string {
	return filepath.Join(StateDir(), "locks")
}

// DefaultGlobalPath is opencode's per-user config file.
func DefaultGlobalPath() string {
	return filepath.Join(ConfigHome(), "opencode", OpencodeFileName)
}

// DefaultLocalPath is opencode.json in the working directory, made absolute
// so later chdirs do not move it.
func DefaultLocalPath() string {
	if abs, err := filepath.Abs(OpencodeFileName); err == nil {
		return abs
	}
	return OpencodeFileName
}

// ExpandPath expands a leading ~ and makes the path absolute.
func ExpandPath(path string) string {
	if path == "~" {
		path = homeDir()
	} else if strings.HasPrefix(path, "~/") {
		path = filepath.Join(homeDir(), path[2:])
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
