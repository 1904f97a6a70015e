package mcpconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/NyanDanKun/opencode-mcp-manager/internal/logging"
)

// ErrUnknownScope is returned for a scope other than global or local.
var ErrUnknownScope = errors.New("unknown scope")

// Counts is the number of server entries per scope.
type Counts struct {
	Global int `json:"global"`
	Local  int `json:"local"`
}

// Total returns the entries across both scopes.
func (c Counts) Total() int {
	return c.Global + c.Local
}

type scopeState struct {
	store   *Store
	doc     *Document
	modTime time.Time
	status  LoadStatus
	err     error
}

// Registry holds the in-memory documents of both scopes and the mtimes
// last observed for their files. It is not safe for concurrent use; the
// engine serializes every call.
type Registry struct {
	scopes map[Scope]*scopeState
	log    *slog.Logger
}

// NewRegistry binds the global and local scopes to their files. Documents
// start empty until ReloadAll.
func NewRegistry(globalPath, localPath, lockDir string) *Registry {
	newState := func(path string) *scopeState {
		return &scopeState{store: NewStore(path, lockDir), doc: NewDocument()}
	}
	return &Registry{
		scopes: map[Scope]*scopeState{
			ScopeGlobal: newState(globalPath),
			ScopeLocal:  newState(localPath),
		},
		log: logging.ForComponent(logging.CompRegistry),
	}
}

// ReloadAll replaces both documents and their mtimes from disk.
func (r *Registry) ReloadAll() Counts {
	for _, scope := range Scopes {
		st := r.scopes[scope]
		res := st.store.Load()
		st.doc = res.Document
		st.modTime = res.ModTime
		st.status = res.Status
		st.err = res.Err
	}
	counts := Counts{
		Global: r.scopes[ScopeGlobal].doc.Len(),
		Local:  r.scopes[ScopeLocal].doc.Len(),
	}
	r.log.Debug("reload_all", slog.Int("global", counts.Global), slog.Int("local", counts.Local))
	return counts
}

// LoadStatus reports how the scope's file looked at the last load.
func (r *Registry) LoadStatus(scope Scope) (LoadStatus, error) {
	st, ok := r.scopes[scope]
	if !ok {
		return StatusMissing, ErrUnknownScope
	}
	return st.status, st.err
}

// Path returns the file bound to scope.
func (r *Registry) Path(scope Scope) string {
	if st, ok := r.scopes[scope]; ok {
		return st.store.Path()
	}
	return ""
}

// ModTime returns the tracked modification time of scope.
func (r *Registry) ModTime(scope Scope) time.Time {
	if st, ok := r.scopes[scope]; ok {
		return st.modTime
	}
	return time.Time{}
}

// Document returns the in-memory document of scope.
func (r *Registry) Document(scope Scope) (*Document, bool) {
	st, ok := r.scopes[scope]
	if !ok {
		return nil, false
	}
	return st.doc, true
}

// Entry looks up a server entry. Callers must not keep the entry across a reload.
func (r *Registry) Entry(scope Scope, name string) (*Entry, bool) {
	st, ok := r.scopes[scope]
	if !ok {
		return nil, false
	}
	return st.doc.Entry(name)
}

// SetEnabled changes the in-memory flag only; Persist writes it out.
func (r *Registry) SetEnabled(scope Scope, name string, value bool) bool {
	st, ok := r.scopes[scope]
	if !ok {
		return false
	}
	return st.doc.SetEnabled(name, value)
}

// RestoreEnabled puts back a state captured with Entry.EnabledState,
// including removing the field if it was absent.
func (r *Registry) RestoreEnabled(scope Scope, name string, prior EnabledState) bool {
	entry, ok := r.Entry(scope, name)
	if !ok {
		return false
	}
	entry.restore(prior)
	return true
}

// Persist saves the scope's document and tracks the resulting mtime.
func (r *Registry) Persist(scope Scope) (time.Time, error) {
	st, ok := r.scopes[scope]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
	modTime, err := st.store.Save(st.doc)
	if err != nil {
		r.log.Error("persist_failed", slog.String("scope", scope.String()), slog.Any("error", err))
		return time.Time{}, err
	}
	st.modTime = modTime
	return modTime, nil
}

// Drifted returns the scopes whose file changed on disk since the last load
// or save: an existing file newer than the tracked mtime, or a tracked file
// that has since been removed.
func (r *Registry) Drifted() []Scope {
	var changed []Scope
	for _, scope := range Scopes {
		st := r.scopes[scope]
		info, err := os.Stat(st.store.Path())
		switch {
		case err == nil:
			if info.ModTime().After(st.modTime) {
				changed = append(changed, scope)
			}
		case errors.Is(err, fs.ErrNotExist):
			if !st.modTime.IsZero() {
				changed = append(changed, scope)
			}
		}
	}
	return changed
}
