package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// PreferencesFileName is the TOML file for the manager's own settings.
const PreferencesFileName = "config.toml"

const (
	DefaultPollInterval = 2 * time.Second
	DefaultReloadDelay  = 2 * time.Second
)

// Preferences are the manager's own settings. They never touch opencode.json.
type Preferences struct {
	// Theme is "auto" (default), "light" or "dark"
	Theme string `toml:"theme"`

	// Paths overrides the two opencode.json locations
	Paths PathSettings `toml:"paths"`

	// Watch controls external-change detection
	Watch WatchSettings `toml:"watch"`

	// History controls the toggle audit log
	History HistorySettings `toml:"history"`

	// Logs controls the debug log file
	Logs LogSettings `toml:"logs"`
}

// PathSettings overrides where the scopes live. Empty means the default.
type PathSettings struct {
	Global string `toml:"global"`
	Local  string `toml:"local"`
}

// WatchSettings defines change detection timing.
type WatchSettings struct {
	// PollIntervalMs is how often file mtimes are compared (default: 2000)
	PollIntervalMs int `toml:"poll_interval_ms"`

	// ReloadDelayMs is the delay before the reload that follows a save (default: 2000)
	ReloadDelayMs int `toml:"reload_delay_ms"`

	// FSNotify wakes the poller early on filesystem events (default: true)
	FSNotify bool `toml:"fsnotify"`
}

// HistorySettings defines the toggle audit log.
type HistorySettings struct {
	// Enabled records every toggle (default: true)
	Enabled bool `toml:"enabled"`

	// Path of the SQLite database (default: <state dir>/history.db)
	Path string `toml:"path"`
}

// LogSettings defines log file configuration.
type LogSettings struct {
	// Level is "debug", "info" (default), "warn" or "error"
	Level string `toml:"level"`

	// Format is "json" (default) or "text"
	Format string `toml:"format"`

	// MaxSizeMB before rotation (default: 10)
	MaxSizeMB int `toml:"max_size_mb"`

	// MaxBackups rotated files to keep (default: 3)
	MaxBackups int `toml:"max_backups"`

	// MaxAgeDays to keep rotated files (default: 10)
	MaxAgeDays int `toml:"max_age_days"`
}

// DefaultPreferences returns the settings used when no file exists.
func DefaultPreferences() *Preferences {
	p := &Preferences{}
	p.applyDefaults(nil)
	return p
}

func (p *Preferences) applyDefaults(md *toml.MetaData) {
	defined := func(key ...string) bool {
		return md != nil && md.IsDefined(key...)
	}

	if p.Theme == "" {
		p.Theme = "auto"
	}
	if p.Watch.PollIntervalMs <= 0 {
		p.Watch.PollIntervalMs = int(DefaultPollInterval / time.Millisecond)
	}
	if p.Watch.ReloadDelayMs <= 0 {
		p.Watch.ReloadDelayMs = int(DefaultReloadDelay / time.Millisecond)
	}
	if !defined("watch", "fsnotify") {
		p.Watch.FSNotify = true
	}
	if !defined("history", "enabled") {
		p.History.Enabled = true
	}
	if p.Logs.Level == "" {
		p.Logs.Level = "info"
	}
	if p.Logs.Format == "" {
		p.Logs.Format = "json"
	}
}

// PollInterval returns Watch.PollIntervalMs as a duration.
func (p *Preferences) PollInterval() time.Duration {
	return time.Duration(p.Watch.PollIntervalMs) * time.Millisecond
}

// ReloadDelay returns Watch.ReloadDelayMs as a duration.
func (p *Preferences) ReloadDelay() time.Duration {
	return time.Duration(p.Watch.ReloadDelayMs) * time.Millisecond
}

// GlobalPath returns the configured global opencode.json or the default.
func (p *Preferences) GlobalPath() string {
	if p.Paths.Global != "" {
		return ExpandPath(p.Paths.Global)
	}
	return DefaultGlobalPath()
}

// LocalPath returns the configured local opencode.json or the default.
func (p *Preferences) LocalPath() string {
	if p.Paths.Local != "" {
		return ExpandPath(p.Paths.Local)
	}
	return DefaultLocalPath()
}

// HistoryPath returns the history database path.
func (p *Preferences) HistoryPath() string {
	if p.History.Path != "" {
		return ExpandPath(p.History.Path)
	}
	return filepath.Join(StateDir(), "history.db")
}

// PreferencesPath returns the path to the preferences file.
func PreferencesPath() string {
	return filepath.Join(ConfigHome(), AppName, PreferencesFileName)
}

// LoadPreferencesFrom decodes path. A missing file yields defaults and no
// error; a broken file yields defaults and the decode error.
func LoadPreferencesFrom(path string) (*Preferences, error) {
	var p Preferences
	md, err := toml.DecodeFile(path, &p)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultPreferences(), nil
	}
	if err != nil {
		return DefaultPreferences(), fmt.Errorf("failed to parse %s: %w", path, err)
	}
	p.applyDefaults(&md)
	return &p, nil
}

// Cache for preferences (loaded once per process)
var (
	prefsCache   *Preferences
	prefsCacheMu sync.RWMutex
)

// LoadPreferences loads the preferences file once and caches the result.
// Errors are returned alongside usable defaults.
func LoadPreferences() (*Preferences, error) {
	prefsCacheMu.RLock()
	if prefsCache != nil {
		defer prefsCacheMu.RUnlock()
		return prefsCache, nil
	}
	prefsCacheMu.RUnlock()

	prefsCacheMu.Lock()
	defer prefsCacheMu.Unlock()

	// Double-check after acquiring write lock
	if prefsCache != nil {
		return prefsCache, nil
	}

	p, err := LoadPreferencesFrom(PreferencesPath())
	prefsCache = p
	return prefsCache, err
}

// ReloadPreferences drops the cache and loads again.
func ReloadPreferences() (*Preferences, error) {
	prefsCacheMu.Lock()
	prefsCache = nil
	prefsCacheMu.Unlock()
	return LoadPreferences()
}

// EnsureStateDir creates the state directory.
func EnsureStateDir() error {
	return os.MkdirAll(StateDir(), 0o755)
}
