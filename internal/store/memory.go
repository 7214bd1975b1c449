package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryCatalog is a Catalog held in memory. Used by tests and by the MCP
// server when no catalog directory is configured.
type InMemoryCatalog struct {
	mu   sync.RWMutex
	recs map[string]SigilRecord // by ID
	now  func() time.Time
}

// NewInMemoryCatalog returns an empty catalog.
func NewInMemoryCatalog() *InMemoryCatalog {
	return &InMemoryCatalog{recs: make(map[string]SigilRecord), now: time.Now}
}

// Save inserts or replaces rec by name.
func (m *InMemoryCatalog) Save(_ context.Context, rec SigilRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	rec.CreatedAt = now
	if existing, ok := m.byName(rec.Name); ok {
		if rec.ID != "" && rec.ID != existing.ID {
			return "", fmt.Errorf("sigil name %q already used by %s", rec.Name, existing.ID)
		}
		rec.ID = existing.ID
		rec.CreatedAt = existing.CreatedAt
	} else if rec.ID == "" {
		rec.ID = uuid.NewString()
	} else if other, ok := m.recs[rec.ID]; ok {
		return "", fmt.Errorf("sigil id %s already used by %q", rec.ID, other.Name)
	}
	rec.UpdatedAt = now
	rec.Anchors = slices.Clone(rec.Anchors)
	rec.Edges = slices.Clone(rec.Edges)
	m.recs[rec.ID] = rec
	return rec.ID, nil
}

// Get returns the record whose ID or name is key.
func (m *InMemoryCatalog) Get(_ context.Context, key string) (*SigilRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return &rec, nil
}

// List returns every record ordered by name.
func (m *InMemoryCatalog) List(_ context.Context) ([]SigilRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SigilRecord, 0, len(m.recs))
	for _, rec := range m.recs {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b SigilRecord) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Delete removes the record whose ID or name is key.
func (m *InMemoryCatalog) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.lookup(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(m.recs, rec.ID)
	return nil
}

// Close is a no-op.
func (m *InMemoryCatalog) Close() error { return nil }

func (m *InMemoryCatalog) lookup(key string) (SigilRecord, bool) {
	if rec, ok := m.recs[key]; ok {
		return rec, true
	}
	return m.byName(key)
}

func (m *InMemoryCatalog) byName(name string) (SigilRecord, bool) {
	for _, rec := range m.recs {
		if rec.Name == name {
			return rec, true
		}
	}
	return SigilRecord{}, false
}
