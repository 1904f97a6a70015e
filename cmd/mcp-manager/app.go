package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/NyanDanKun/opencode-mcp-manager/internal/config"
	"github.com/NyanDanKun/opencode-mcp-manager/internal/engine"
	"github.com/NyanDanKun/opencode-mcp-manager/internal/history"
	"github.com/NyanDanKun/opencode-mcp-manager/internal/logging"
	"github.com/NyanDanKun/opencode-mcp-manager/internal/mcpconfig"
)

// options are the persistent flags shared by every command.
type options struct {
	globalPath string
	localPath  string
	prefsPath  string
	debug      bool
}

func (o *options) preferences() (*config.Preferences, error) {
	if o.prefsPath != "" {
		return config.LoadPreferencesFrom(config.ExpandPath(o.prefsPath))
	}
	return config.LoadPreferences()
}

// paths resolves the two scope files: flags win over preferences.
func (o *options) paths(prefs *config.Preferences) (global, local string, err error) {
	global, local = prefs.GlobalPath(), prefs.LocalPath()
	if o.globalPath != "" {
		global = config.ExpandPath(o.globalPath)
	}
	if o.localPath != "" {
		local = config.ExpandPath(o.localPath)
	}
	if local, err = filepath.Abs(local); err != nil {
		return "", "", fmt.Errorf("resolving local config path: %w", err)
	}
	return global, local, nil
}

func (o *options) debugEnabled() bool {
	return o.debug || os.Getenv("MCP_MANAGER_DEBUG") == "1"
}

// initLogging starts the log file under the state directory when debugging.
// Otherwise logs are discarded.
func initLogging(opts *options, prefs *config.Preferences) {
	cfg := logging.Config{
		Level:      prefs.Logs.Level,
		Format:     prefs.Logs.Format,
		MaxSizeMB:  prefs.Logs.MaxSizeMB,
		MaxBackups: prefs.Logs.MaxBackups,
		MaxAgeDays: prefs.Logs.MaxAgeDays,
		Debug:      opts.debugEnabled(),
	}
	if cfg.Debug {
		if err := config.EnsureStateDir(); err == nil {
			cfg.LogDir = config.StateDir()
		}
	}
	logging.Init(cfg)
}

// app is a running engine plus everything it was built from.
type app struct {
	prefs   *config.Preferences
	eng     *engine.Engine
	history *history.Store
	log     *slog.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

// openApp loads preferences, starts logging and runs the engine in the
// background. interactive enables the fsnotify watcher.
func openApp(ctx context.Context, opts *options, stderr io.Writer, interactive bool) (*app, error) {
	prefs, prefsErr := opts.preferences()
	initLogging(opts, prefs)
	log := logging.ForComponent(logging.CompCLI)
	if prefsErr != nil {
		log.Warn("preferences_invalid", slog.Any("error", prefsErr))
		fmt.Fprintf(stderr, "warning: %v (using defaults)\n", prefsErr)
	}

	global, local, err := opts.paths(prefs)
	if err != nil {
		return nil, err
	}

	a := &app{prefs: prefs, log: log}

	engOpts := engine.Options{
		PollInterval: prefs.PollInterval(),
		ReloadDelay:  prefs.ReloadDelay(),
		WatchFiles:   interactive && prefs.Watch.FSNotify,
	}
	if prefs.History.Enabled {
		store, err := history.Open(prefs.HistoryPath())
		if err != nil {
			log.Warn("history_unavailable", slog.Any("error", err))
			fmt.Fprintf(stderr, "warning: history disabled: %v\n", err)
		} else {
			a.history = store
			engOpts.Recorder = store
		}
	}

	reg := mcpconfig.NewRegistry(global, local, config.LockDir())
	a.eng = engine.New(reg, engOpts)

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.group, runCtx = errgroup.WithContext(runCtx)
	a.group.Go(func() error { return a.eng.Run(runCtx) })

	log.Debug("app_started",
		slog.String("global", global),
		slog.String("local", local),
		slog.Bool("interactive", interactive))
	return a, nil
}

// Close stops the engine and releases the history database.
func (a *app) Close() {
	a.cancel()
	if err := a.group.Wait(); err != nil {
		a.log.Warn("engine_run_failed", slog.Any("error", err))
	}
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.log.Warn("history_close_failed", slog.Any("error", err))
		}
	}
	logging.Shutdown()
}

// warnOnErrors prints error statuses to w.
func (a *app) warnOnErrors(w io.Writer) {
	a.eng.OnStatusChange(func(st engine.Status) {
		if msg, ok := warning(st); ok {
			fmt.Fprintln(w, msg)
		}
	})
}

// warning returns the stderr line for st. Save failures are left out: the
// command that asked for the save returns them as its error.
func warning(st engine.Status) (string, bool) {
	if !st.Kind.IsError() || st.Kind == engine.StatusSaveFailed {
		return "", false
	}
	return "warning: " + st.Message, true
}
