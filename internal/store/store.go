// Package store defines the sigil catalog: named anchor graphs saved for
// reuse by the CLI and the MCP server.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nvandessel/sigilgate/internal/constants"
	"github.com/nvandessel/sigilgate/internal/sigil"
)

// ErrNotFound is returned when no sigil matches the requested ID or name.
var ErrNotFound = errors.New("sigil not found")

// SigilRecord is one catalog entry.
type SigilRecord struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Anchors     []sigil.Anchor  `json:"anchors"`
	Edges       []sigil.Edge    `json:"edges,omitempty"` // empty means anchor order
	Scope       constants.Scope `json:"scope,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Graph builds and validates the record's anchor graph.
func (r SigilRecord) Graph() (*sigil.Graph, error) {
	if len(r.Edges) == 0 {
		return sigil.NewPath(r.Anchors)
	}
	return sigil.NewGraph(r.Anchors, r.Edges)
}

// ContentHash identifies the shape independently of name and ID.
func (r SigilRecord) ContentHash() string {
	data, _ := json.Marshal(struct {
		Anchors []sigil.Anchor `json:"a"`
		Edges   []sigil.Edge   `json:"e"`
	}{r.Anchors, r.Edges})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Validate checks the record can be traced.
func (r SigilRecord) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("sigil name is required")
	}
	if _, err := r.Graph(); err != nil {
		return fmt.Errorf("sigil %q: %w", r.Name, err)
	}
	return nil
}

// Catalog stores sigil records.
type Catalog interface {
	// Save inserts or replaces a record by name and returns its ID.
	// A record without an ID is assigned a new one.
	Save(ctx context.Context, rec SigilRecord) (string, error)

	// Get returns the record whose ID or name matches key.
	Get(ctx context.Context, key string) (*SigilRecord, error)

	// List returns every record ordered by name.
	List(ctx context.Context) ([]SigilRecord, error)

	// Delete removes the record whose ID or name matches key.
	Delete(ctx context.Context, key string) error

	Close() error
}
