// Package engine keeps the in-memory view of both opencode.json scopes in
// sync with disk. Every operation runs on one goroutine (Run), so the
// registry needs no locking: toggles, deferred reloads and watcher ticks are
// tasks executed one at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/NyanDanKun/opencode-mcp-manager/internal/config"
	"github.com/NyanDanKun/opencode-mcp-manager/internal/history"
	"github.com/NyanDanKun/opencode-mcp-manager/internal/logging"
	"github.com/NyanDanKun/opencode-mcp-manager/internal/mcpconfig"
)

var (
	// ErrStopped is returned for calls made after Run has returned.
	ErrStopped = errors.New("engine stopped")
	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("engine already running")
)

// Recorder receives every attempted enable/disable change.
type Recorder interface {
	Record(ctx context.Context, ev history.Event) error
}

// Options tunes the engine. Zero values take the defaults.
type Options struct {
	// PollInterval between mtime checks (default: 2s)
	PollInterval time.Duration

	// ReloadDelay before the reload that follows every toggle (default: 2s)
	ReloadDelay time.Duration

	// WatchFiles wakes the mtime check early on fsnotify events
	WatchFiles bool

	// Recorder, if set, logs toggles
	Recorder Recorder
}

// wakeInterval is the minimum spacing of fsnotify-driven checks.
const wakeInterval = 250 * time.Millisecond

func (o *Options) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = config.DefaultPollInterval
	}
	if o.ReloadDelay <= 0 {
		o.ReloadDelay = config.DefaultReloadDelay
	}
}

// Engine is the core the presentation layer talks to.
type Engine struct {
	reg  *mcpconfig.Registry
	opts Options
	log  *slog.Logger

	tasks   chan func()
	done    chan struct{}
	running atomic.Bool

	// wakeLimit spaces out fsnotify-driven checks. Owned by Run, like
	// wakePending.
	wakeLimit   *rate.Limiter
	wakePending bool

	listenersMu sync.RWMutex
	listeners   []func(Status)
}

// New creates an engine over reg. Nothing happens until Run.
func New(reg *mcpconfig.Registry, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{
		reg:       reg,
		opts:      opts,
		log:       logging.ForComponent(logging.CompEngine),
		tasks:     make(chan func()),
		done:      make(chan struct{}),
		wakeLimit: rate.NewLimiter(rate.Every(wakeInterval), 1),
	}
}

// OnStatusChange registers fn for every status event. Callbacks run on the
// engine goroutine and must not call back into the engine synchronously.
func (e *Engine) OnStatusChange(fn func(Status)) {
	e.listenersMu.Lock()
	e.listeners = append(e.listeners, fn)
	e.listenersMu.Unlock()
}

func (e *Engine) emit(st Status) {
	if st.Time.IsZero() {
		st.Time = time.Now()
	}
	e.log.Info("status",
		slog.String("kind", st.Kind.String()),
		slog.String("scope", st.Scope.String()),
		slog.String("message", st.Message))

	e.listenersMu.RLock()
	listeners := e.listeners
	e.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(st)
	}
}

// Run executes tasks until ctx is done. It must be running for any other
// method to complete. An engine runs once: a second Run returns
// ErrAlreadyRunning, and after Run returns every call fails with ErrStopped.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(e.done)

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	var wake <-chan struct{}
	if e.opts.WatchFiles {
		if w, err := newFileWatcher(e.reg); err != nil {
			e.log.Warn("fsnotify_unavailable", slog.Any("error", err))
		} else {
			w.Start()
			defer w.Close()
			wake = w.Changes()
		}
	}

	e.log.Info("engine_started",
		slog.String("global", e.reg.Path(mcpconfig.ScopeGlobal)),
		slog.String("local", e.reg.Path(mcpconfig.ScopeLocal)),
		slog.Duration("poll_interval", e.opts.PollInterval))

	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine_stopped")
			return nil
		case task := <-e.tasks:
			task()
		case <-ticker.C:
			e.checkForUpdates()
		case <-wake:
			e.onWake()
		}
	}
}

// submit runs fn on the engine goroutine and waits for its result. Once
// dispatched, fn runs to completion even if ctx is cancelled meanwhile.
func submit[T any](ctx context.Context, e *Engine, fn func() T) (T, error) {
	var zero T
	out := make(chan T, 1)
	task := func() { out <- fn() }

	select {
	case e.tasks <- task:
	case <-e.done:
		return zero, ErrStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case v := <-out:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// after enqueues fn once d has elapsed. It cannot be cancelled; if the
// engine has stopped by then, fn is dropped.
func (e *Engine) after(d time.Duration, fn func()) {
	time.AfterFunc(d, func() {
		select {
		case e.tasks <- fn:
		case <-e.done:
		}
	})
}

// ReloadAll reloads both scopes from disk and returns the entry counts.
func (e *Engine) ReloadAll(ctx context.Context) (mcpconfig.Counts, error) {
	return submit(ctx, e, func() mcpconfig.Counts {
		return e.reloadAll(StatusLoaded)
	})
}

// LoadStatuses reports how the last load of each scope went.
func (e *Engine) LoadStatuses(ctx context.Context) (map[mcpconfig.Scope]ScopeLoad, error) {
	return submit(ctx, e, e.loadStatuses)
}

// ListEntries returns the current entry view, global scope first.
func (e *Engine) ListEntries(ctx context.Context) ([]mcpconfig.ServerView, error) {
	return submit(ctx, e, e.reg.Entries)
}

// Paths returns the file bound to each scope.
func (e *Engine) Paths() map[mcpconfig.Scope]string {
	out := make(map[mcpconfig.Scope]string, len(mcpconfig.Scopes))
	for _, scope := range mcpconfig.Scopes {
		out[scope] = e.reg.Path(scope)
	}
	return out
}

// reloadAll replaces both documents and emits a single summary status of
// the given kind, or StatusMalformed when a file is broken.
func (e *Engine) reloadAll(kind StatusKind) mcpconfig.Counts {
	counts := e.reg.ReloadAll()
	loads := e.loadStatuses()
	for _, scope := range mcpconfig.Scopes {
		if l := loads[scope]; l.Status == mcpconfig.StatusMalformed {
			e.log.Warn("config_malformed", slog.String("scope", scope.String()), slog.Any("error", l.Err))
		}
	}
	e.emit(Summary(kind, counts, loads))
	return counts
}

func (e *Engine) loadStatuses() map[mcpconfig.Scope]ScopeLoad {
	out := make(map[mcpconfig.Scope]ScopeLoad, len(mcpconfig.Scopes))
	for _, scope := range mcpconfig.Scopes {
		st, err := e.reg.LoadStatus(scope)
		out[scope] = ScopeLoad{Status: st, Err: err}
	}
	return out
}

func loadedMessage(counts mcpconfig.Counts) string {
	return fmt.Sprintf("%d server(s) loaded", counts.Total())
}
