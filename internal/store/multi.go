package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/nvandessel/sigilgate/internal/constants"
)

// MultiCatalog combines a project-local and a global catalog. Reads check
// local first so a project can shadow a global sigil of the same name.
type MultiCatalog struct {
	local      Catalog
	global     Catalog
	writeScope constants.Scope
}

// NewMultiCatalog opens the local catalog under projectRoot and the global
// catalog under the user's home directory. Writes go to writeScope, which
// must be local or global.
func NewMultiCatalog(projectRoot string, writeScope constants.Scope) (*MultiCatalog, error) {
	if writeScope != constants.ScopeLocal && writeScope != constants.ScopeGlobal {
		return nil, fmt.Errorf("invalid write scope %q: must be local or global", writeScope)
	}

	local, err := NewSQLiteCatalog(LocalPath(projectRoot), constants.ScopeLocal)
	if err != nil {
		return nil, fmt.Errorf("failed to open local catalog: %w", err)
	}

	globalDir, err := GlobalPath()
	if err != nil {
		local.Close()
		return nil, err
	}
	global, err := NewSQLiteCatalog(globalDir, constants.ScopeGlobal)
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("failed to open global catalog: %w", err)
	}

	return NewMultiCatalogFrom(local, global, writeScope), nil
}

// NewMultiCatalogFrom wraps already-open catalogs.
func NewMultiCatalogFrom(local, global Catalog, writeScope constants.Scope) *MultiCatalog {
	if writeScope != constants.ScopeGlobal {
		writeScope = constants.ScopeLocal
	}
	return &MultiCatalog{local: local, global: global, writeScope: writeScope}
}

// Catalog returns the single catalog for a local or global scope, or the
// merged view for ScopeBoth.
func (m *MultiCatalog) Catalog(scope constants.Scope) Catalog {
	if scope == constants.ScopeBoth {
		return m
	}
	return m.scoped(scope)
}

func (m *MultiCatalog) scoped(scope constants.Scope) Catalog {
	if scope == constants.ScopeGlobal {
		return m.global
	}
	return m.local
}

// Save writes to rec.Scope when it is local or global, otherwise to the
// default write scope.
func (m *MultiCatalog) Save(ctx context.Context, rec SigilRecord) (string, error) {
	scope := rec.Scope
	if scope != constants.ScopeLocal && scope != constants.ScopeGlobal {
		scope = m.writeScope
	}
	rec.Scope = scope
	return m.scoped(scope).Save(ctx, rec)
}

// Get checks the local catalog, then the global one.
func (m *MultiCatalog) Get(ctx context.Context, key string) (*SigilRecord, error) {
	rec, err := m.local.Get(ctx, key)
	if err == nil {
		rec.Scope = constants.ScopeLocal
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	rec, err = m.global.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	rec.Scope = constants.ScopeGlobal
	return rec, nil
}

// List merges both catalogs by name. A local record hides a global one
// with the same name.
func (m *MultiCatalog) List(ctx context.Context) ([]SigilRecord, error) {
	locals, err := m.ListScope(ctx, constants.ScopeLocal)
	if err != nil {
		return nil, err
	}
	globals, err := m.ListScope(ctx, constants.ScopeGlobal)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(locals))
	out := make([]SigilRecord, 0, len(locals)+len(globals))
	for _, rec := range locals {
		seen[rec.Name] = true
		out = append(out, rec)
	}
	for _, rec := range globals {
		if !seen[rec.Name] {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b SigilRecord) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// ListScope lists one catalog, or the merged view for ScopeBoth.
func (m *MultiCatalog) ListScope(ctx context.Context, scope constants.Scope) ([]SigilRecord, error) {
	if scope == constants.ScopeBoth {
		return m.List(ctx)
	}
	recs, err := m.scoped(scope).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s catalog: %w", scope, err)
	}
	for i := range recs {
		recs[i].Scope = scope
	}
	return recs, nil
}

// Delete removes key from the local catalog, or from the global one when
// the local catalog has no match.
func (m *MultiCatalog) Delete(ctx context.Context, key string) error {
	err := m.local.Delete(ctx, key)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return err
	}
	return m.global.Delete(ctx, key)
}

// Close closes both catalogs.
func (m *MultiCatalog) Close() error {
	return errors.Join(m.local.Close(), m.global.Close())
}
