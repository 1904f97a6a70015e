package engine

import (
	"log/slog"

	"github.com/NyanDanKun/opencode-mcp-manager/internal/mcpconfig"
	"github.com/NyanDanKun/opencode-mcp-manager/internal/watcher"
)

// checkForUpdates reloads both scopes when either file changed on disk.
// It does not matter which one: a full reload is always correct.
func (e *Engine) checkForUpdates() {
	changed := e.reg.Drifted()
	if len(changed) == 0 {
		return
	}

	scopes := make([]string, len(changed))
	for i, s := range changed {
		scopes[i] = s.String()
	}
	e.log.Info("external_change", slog.Any("scopes", scopes))

	e.reloadAll(StatusReloaded)
}

// onWake runs a check now, or once at the limiter's next slot when wakes
// arrive faster than wakeInterval. At most one deferred check is pending.
func (e *Engine) onWake() {
	if e.wakePending {
		return
	}
	delay := e.wakeLimit.Reserve().Delay()
	if delay == 0 {
		e.checkForUpdates()
		return
	}
	e.wakePending = true
	e.after(delay, func() {
		e.wakePending = false
		e.checkForUpdates()
	})
}

func newFileWatcher(reg *mcpconfig.Registry) (*watcher.Watcher, error) {
	return watcher.New(reg.Path(mcpconfig.ScopeGlobal), reg.Path(mcpconfig.ScopeLocal))
}
