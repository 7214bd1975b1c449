package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/sigilgate/internal/constants"
	"github.com/nvandessel/sigilgate/internal/sigil"
)

// SQLiteCatalog implements Catalog on a SQLite database.
type SQLiteCatalog struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
	scope  constants.Scope
	now    func() time.Time
}

// NewSQLiteCatalog opens (creating if needed) dir/sigils.db. scope is
// stamped on every record read from this catalog.
func NewSQLiteCatalog(dir string, scope constants.Scope) (*SQLiteCatalog, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}
	dbPath := filepath.Join(dir, constants.CatalogFile)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteCatalog{db: db, dbPath: dbPath, scope: scope, now: time.Now}, nil
}

// Path returns the database file path.
func (s *SQLiteCatalog) Path() string { return s.dbPath }

// Save inserts or replaces rec by name.
func (s *SQLiteCatalog) Save(ctx context.Context, rec SigilRecord) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	created := now

	// Replacing by name keeps the original ID and creation time.
	var existingID, existingCreated string
	err = tx.QueryRowContext(ctx, `SELECT id, created_at FROM sigils WHERE name = ?`, rec.Name).
		Scan(&existingID, &existingCreated)
	switch {
	case err == nil:
		if rec.ID != "" && rec.ID != existingID {
			return "", fmt.Errorf("sigil name %q already used by %s", rec.Name, existingID)
		}
		rec.ID = existingID
		if t, perr := time.Parse(time.RFC3339Nano, existingCreated); perr == nil {
			created = t
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sigils WHERE id = ?`, existingID); err != nil {
			return "", fmt.Errorf("failed to replace sigil: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		if rec.ID == "" {
			rec.ID = uuid.NewString()
			break
		}
		var other string
		err := tx.QueryRowContext(ctx, `SELECT name FROM sigils WHERE id = ?`, rec.ID).Scan(&other)
		if err == nil {
			return "", fmt.Errorf("sigil id %s already used by %q", rec.ID, other)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("failed to look up sigil: %w", err)
		}
	default:
		return "", fmt.Errorf("failed to look up sigil: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sigils (id, name, description, content_hash, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Description, rec.ContentHash(),
		created.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano)); err != nil {
		return "", fmt.Errorf("failed to insert sigil: %w", err)
	}

	for i, a := range rec.Anchors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sigil_anchors (sigil_id, position, anchor_id, x, y, is_entry, is_exit) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, a.ID, a.Pos.X, a.Pos.Y, boolToInt(a.IsEntry), boolToInt(a.IsExit)); err != nil {
			return "", fmt.Errorf("failed to insert anchor %d: %w", i, err)
		}
	}
	for i, e := range rec.Edges {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sigil_edges (sigil_id, position, from_index, to_index) VALUES (?, ?, ?, ?)`,
			rec.ID, i, e.From, e.To); err != nil {
			return "", fmt.Errorf("failed to insert edge %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit sigil: %w", err)
	}
	return rec.ID, nil
}

// Get returns the record whose ID or name is key.
func (s *SQLiteCatalog) Get(ctx context.Context, key string) (*SigilRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM sigils WHERE id = ? OR name = ? LIMIT 1`, key, key)
	rec, err := s.scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadShape(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns every record ordered by name.
func (s *SQLiteCatalog) List(ctx context.Context) ([]SigilRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM sigils ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sigils: %w", err)
	}
	var recs []*SigilRecord
	for rows.Next() {
		rec, err := s.scanRecord(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate sigils: %w", err)
	}
	rows.Close()

	out := make([]SigilRecord, 0, len(recs))
	for _, rec := range recs {
		if err := s.loadShape(ctx, rec); err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// Delete removes the record whose ID or name is key.
func (s *SQLiteCatalog) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM sigils WHERE id = ? OR name = ?`, key, key)
	if err != nil {
		return fmt.Errorf("failed to delete sigil: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteCatalog) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteCatalog) scanRecord(row rowScanner) (*SigilRecord, error) {
	var (
		rec              SigilRecord
		desc             sql.NullString
		created, updated string
	)
	if err := row.Scan(&rec.ID, &rec.Name, &desc, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan sigil: %w", err)
	}
	rec.Description = desc.String
	rec.Scope = s.scope
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &rec, nil
}

func (s *SQLiteCatalog) loadShape(ctx context.Context, rec *SigilRecord) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT anchor_id, x, y, is_entry, is_exit FROM sigil_anchors WHERE sigil_id = ? ORDER BY position`, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to load anchors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			a           sigil.Anchor
			id          sql.NullString
			entry, exit int
		)
		if err := rows.Scan(&id, &a.Pos.X, &a.Pos.Y, &entry, &exit); err != nil {
			return fmt.Errorf("failed to scan anchor: %w", err)
		}
		a.ID = id.String
		a.IsEntry = entry != 0
		a.IsExit = exit != 0
		rec.Anchors = append(rec.Anchors, a)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate anchors: %w", err)
	}

	erows, err := s.db.QueryContext(ctx,
		`SELECT from_index, to_index FROM sigil_edges WHERE sigil_id = ? ORDER BY position`, rec.ID)
	if err != nil {
		return fmt.Errorf("failed to load edges: %w", err)
	}
	defer erows.Close()
	for erows.Next() {
		var e sigil.Edge
		if err := erows.Scan(&e.From, &e.To); err != nil {
			return fmt.Errorf("failed to scan edge: %w", err)
		}
		rec.Edges = append(rec.Edges, e)
	}
	return erows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
