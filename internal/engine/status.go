package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NyanDanKun/opencode-mcp-manager/internal/mcpconfig"
)

// StatusKind classifies a status event.
type StatusKind int

const (
	StatusLoaded StatusKind = iota
	StatusReloaded
	StatusSaved
	StatusSaveFailed
	StatusNothingToToggle
	StatusMalformed
)

func (k StatusKind) String() string {
	switch k {
	case StatusLoaded:
		return "loaded"
	case StatusReloaded:
		return "reloaded"
	case StatusSaved:
		return "saved"
	case StatusSaveFailed:
		return "save_failed"
	case StatusNothingToToggle:
		return "nothing_to_toggle"
	case StatusMalformed:
		return "malformed"
	}
	return "unknown"
}

// IsError reports whether the event should be shown as a failure.
func (k StatusKind) IsError() bool {
	return k == StatusSaveFailed || k == StatusMalformed
}

// Status is what the engine reports after a reload, save or failure.
type Status struct {
	Kind StatusKind
	// Scope is empty for events covering both scopes.
	Scope   mcpconfig.Scope
	Message string
	Err     error
	Time    time.Time
}

func (s Status) String() string {
	return s.Message
}

// Human-readable status messages.
const (
	MsgNothingToToggle = "nothing to toggle"
	MsgReloaded        = "configuration reloaded"
)

// ScopeLoad is the outcome of the last load of one scope.
type ScopeLoad struct {
	Status mcpconfig.LoadStatus
	Err    error
}

// Summary is the status reported after a reload of the given kind. A broken
// file turns it into a StatusMalformed event naming every broken scope, so
// the warning is what stays on screen.
func Summary(kind StatusKind, counts mcpconfig.Counts, loads map[mcpconfig.Scope]ScopeLoad) Status {
	st := Status{Kind: kind, Message: loadedMessage(counts)}
	if kind == StatusReloaded {
		st.Message = MsgReloaded
	}

	var (
		msgs   []string
		errs   []error
		broken []mcpconfig.Scope
	)
	for _, scope := range mcpconfig.Scopes {
		l := loads[scope]
		if l.Status != mcpconfig.StatusMalformed {
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s config is malformed: %v", scope, l.Err))
		errs = append(errs, l.Err)
		broken = append(broken, scope)
	}
	if len(broken) == 0 {
		return st
	}

	out := Status{
		Kind:    StatusMalformed,
		Message: strings.Join(msgs, "; ") + " (" + st.Message + ")",
		Err:     errors.Join(errs...),
	}
	if len(broken) == 1 {
		out.Scope = broken[0]
	}
	return out
}
