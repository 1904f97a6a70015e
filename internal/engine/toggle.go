package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/NyanDanKun/opencode-mcp-manager/internal/history"
	"github.com/NyanDanKun/opencode-mcp-manager/internal/mcpconfig"
)

const recordTimeout = 2 * time.Second

// Result is the outcome of a toggle as shown to the operator.
type Result struct {
	OK      bool
	Message string
	// Enabled is the entry's in-memory state after the call.
	Enabled bool
}

// Toggle flips the enabled flag of (scope, name), saves that scope and
// schedules a confirmatory reload. A missing enabled field counts as true,
// so the first toggle of such an entry writes false.
func (e *Engine) Toggle(ctx context.Context, scope mcpconfig.Scope, name string) (Result, error) {
	return submit(ctx, e, func() Result {
		return e.apply(scope, name, func(current bool) bool { return !current })
	})
}

// SetEnabled sets the flag of (scope, name) to value, even if it already
// has that value, through the same save path as Toggle.
func (e *Engine) SetEnabled(ctx context.Context, scope mcpconfig.Scope, name string, value bool) (Result, error) {
	return submit(ctx, e, func() Result {
		return e.apply(scope, name, func(bool) bool { return value })
	})
}

func (e *Engine) apply(scope mcpconfig.Scope, name string, next func(current bool) bool) Result {
	// The in-memory mutation is not trusted as truth: whatever happens,
	// re-read both files shortly.
	defer e.after(e.opts.ReloadDelay, e.confirmReload)

	log := e.log.With(slog.String("scope", scope.String()), slog.String("name", name))

	entry, ok := e.reg.Entry(scope, name)
	if !ok {
		log.Info("toggle_missing_entry")
		e.emit(Status{Kind: StatusNothingToToggle, Scope: scope, Message: MsgNothingToToggle})
		return Result{Message: MsgNothingToToggle}
	}
	prior := entry.EnabledState()
	value := next(entry.Enabled())

	if !e.reg.SetEnabled(scope, name, value) {
		e.emit(Status{Kind: StatusNothingToToggle, Scope: scope, Message: MsgNothingToToggle})
		return Result{Message: MsgNothingToToggle}
	}

	if _, err := e.reg.Persist(scope); err != nil {
		e.reg.RestoreEnabled(scope, name, prior)
		msg := fmt.Sprintf("failed to save %s: %v", scope, err)
		log.Error("toggle_save_failed", slog.Bool("enabled", value), slog.Any("error", err))
		e.record(scope, name, value, err)
		e.emit(Status{Kind: StatusSaveFailed, Scope: scope, Message: msg, Err: err})
		return Result{Message: msg, Enabled: entry.Enabled()}
	}

	log.Info("toggle_saved", slog.Bool("enabled", value))
	e.record(scope, name, value, nil)
	msg := fmt.Sprintf("saved to %s", scope)
	e.emit(Status{Kind: StatusSaved, Scope: scope, Message: msg})
	return Result{OK: true, Message: msg, Enabled: value}
}

func (e *Engine) confirmReload() {
	e.reloadAll(StatusLoaded)
}

func (e *Engine) record(scope mcpconfig.Scope, name string, value bool, saveErr error) {
	if e.opts.Recorder == nil {
		return
	}
	ev := history.Event{
		Scope:   scope.String(),
		Name:    name,
		Path:    e.reg.Path(scope),
		Enabled: value,
		OK:      saveErr == nil,
	}
	if saveErr != nil {
		ev.Error = saveErr.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := e.opts.Recorder.Record(ctx, ev); err != nil {
		e.log.Warn("history_record_failed", slog.Any("error", err))
	}
}

type previewResult struct {
	preview mcpconfig.Preview
	found   bool
	err     error
}

// PreviewToggle reports what Toggle would write, without saving or
// changing the in-memory state. found is false for an unknown entry.
func (e *Engine) PreviewToggle(ctx context.Context, scope mcpconfig.Scope, name string) (p mcpconfig.Preview, found bool, err error) {
	return e.preview(ctx, scope, name, func(current bool) bool { return !current })
}

// PreviewSet is PreviewToggle for SetEnabled.
func (e *Engine) PreviewSet(ctx context.Context, scope mcpconfig.Scope, name string, value bool) (p mcpconfig.Preview, found bool, err error) {
	return e.preview(ctx, scope, name, func(bool) bool { return value })
}

func (e *Engine) preview(ctx context.Context, scope mcpconfig.Scope, name string, next func(current bool) bool) (mcpconfig.Preview, bool, error) {
	res, err := submit(ctx, e, func() previewResult {
		entry, ok := e.reg.Entry(scope, name)
		if !ok {
			return previewResult{}
		}
		p, found, err := e.reg.PreviewEnabled(scope, name, next(entry.Enabled()))
		return previewResult{preview: p, found: found, err: err}
	})
	if err != nil {
		return mcpconfig.Preview{}, false, err
	}
	return res.preview, res.found, res.err
}
