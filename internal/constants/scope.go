package constants

import (
	"fmt"
	"strings"
)

// Scope selects which catalog a sigil lives in.
type Scope string

const (
	// ScopeLocal is the catalog under the project root.
	ScopeLocal Scope = "local"
	// ScopeGlobal is the catalog under the user's home directory.
	ScopeGlobal Scope = "global"
	// ScopeBoth reads from both catalogs, local first. It cannot be written.
	ScopeBoth Scope = "both"
)

// ParseScope reads a --scope value. Case and surrounding space are ignored.
func ParseScope(s string) (Scope, error) {
	scope := Scope(strings.ToLower(strings.TrimSpace(s)))
	if !scope.Valid() {
		return "", fmt.Errorf("invalid scope: %q (must be local, global, or both)", s)
	}
	return scope, nil
}

// Valid reports whether s is one of the known scopes.
func (s Scope) Valid() bool {
	switch s {
	case ScopeLocal, ScopeGlobal, ScopeBoth:
		return true
	}
	return false
}

// Writable reports whether sigils can be saved to or removed from s.
func (s Scope) Writable() bool {
	return s == ScopeLocal || s == ScopeGlobal
}

func (s Scope) String() string { return string(s) }
