package mcpconfig

import (
	"fmt"
	"strings"
)

// Scope names one of the two configuration files.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeLocal  Scope = "local"
)

// Scopes lists every scope in display order.
var Scopes = []Scope{ScopeGlobal, ScopeLocal}

// ParseScope accepts "global" or "local" in any case.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeGlobal:
		return ScopeGlobal, nil
	case ScopeLocal:
		return ScopeLocal, nil
	}
	return "", fmt.Errorf("unknown scope %q (want %q or %q)", s, ScopeGlobal, ScopeLocal)
}

func (s Scope) String() string {
	return string(s)
}
