// Package backup exports sigil catalogs to archive files and imports them
// back, with retention for the archives kept in a backup directory.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nvandessel/sigilgate/internal/sanitize"
	"github.com/nvandessel/sigilgate/internal/store"
)

// FilePrefix starts every generated archive name.
const FilePrefix = "sigilgate-catalog-"

// Archive is the payload of an archive file.
type Archive struct {
	Version   int                 `json:"version"`
	CreatedAt time.Time           `json:"created_at"`
	Sigils    []store.SigilRecord `json:"sigils"`
}

// ImportMode controls how existing sigils are handled during import.
type ImportMode string

const (
	// ImportMerge keeps existing sigils and skips archived ones with the same name.
	ImportMerge ImportMode = "merge"
	// ImportReplace empties the catalog before importing.
	ImportReplace ImportMode = "replace"
)

// ParseImportMode validates a mode name.
func ParseImportMode(s string) (ImportMode, error) {
	switch m := ImportMode(strings.ToLower(s)); m {
	case ImportMerge, ImportReplace:
		return m, nil
	}
	return "", fmt.Errorf("invalid import mode %q (must be merge or replace)", s)
}

// ImportResult reports what an import changed.
type ImportResult struct {
	Added   []string `json:"added"`
	Skipped []string `json:"skipped"`
	Removed int      `json:"removed"`
}

// Export writes every sigil in catalog to path. compress selects the V2
// header+gzip format; otherwise the archive is plain JSON.
func Export(ctx context.Context, catalog store.Catalog, path string, compress bool) (*Archive, error) {
	recs, err := catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sigils: %w", err)
	}

	a := &Archive{
		Version:   FormatV1,
		CreatedAt: time.Now().UTC(),
		Sigils:    recs,
	}
	if compress {
		a.Version = FormatV2
		if err := WriteV2(path, a); err != nil {
			return nil, err
		}
		return a, nil
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling archive: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("writing archive: %w", err)
	}
	return a, nil
}

// Read loads an archive in either format.
func Read(path string) (*Archive, error) {
	version, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if version == FormatV2 {
		return ReadV2(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	var a Archive
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parsing archive: %w", err)
	}
	return &a, nil
}

// Import loads the archive at path into catalog. Names and descriptions are
// sanitized, and every sigil is validated before anything is written.
func Import(ctx context.Context, catalog store.Catalog, path string, mode ImportMode) (*ImportResult, error) {
	a, err := Read(path)
	if err != nil {
		return nil, err
	}

	recs := make([]store.SigilRecord, 0, len(a.Sigils))
	seen := make(map[string]bool, len(a.Sigils))
	seenIDs := make(map[string]bool, len(a.Sigils))
	for i, rec := range a.Sigils {
		name := sanitize.SanitizeSigilName(rec.Name)
		if name == "" {
			return nil, fmt.Errorf("sigil %d: name %q is empty after sanitizing", i, rec.Name)
		}
		if seen[name] {
			return nil, fmt.Errorf("sigil %d: duplicate name %q", i, name)
		}
		seen[name] = true
		if rec.ID != "" {
			if seenIDs[rec.ID] {
				return nil, fmt.Errorf("sigil %d (%s): duplicate id %s", i, name, rec.ID)
			}
			seenIDs[rec.ID] = true
		}
		rec.Name = name
		rec.Description = sanitize.SanitizeDescription(rec.Description)
		rec.Scope = ""
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	result := &ImportResult{}
	existing, err := catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sigils: %w", err)
	}
	names := make(map[string]bool, len(existing))
	ids := make(map[string]bool, len(existing))
	if mode == ImportReplace {
		for _, rec := range existing {
			if err := catalog.Delete(ctx, rec.ID); err != nil {
				return result, fmt.Errorf("removing %s: %w", rec.Name, err)
			}
			result.Removed++
		}
	} else {
		for _, rec := range existing {
			names[rec.Name] = true
			ids[rec.ID] = true
		}
	}

	for _, rec := range recs {
		if names[rec.Name] {
			result.Skipped = append(result.Skipped, rec.Name)
			continue
		}
		// Same ID under another name gets a fresh one.
		if ids[rec.ID] {
			rec.ID = ""
		}
		id, err := catalog.Save(ctx, rec)
		if err != nil {
			return result, fmt.Errorf("saving %s: %w", rec.Name, err)
		}
		ids[id] = true
		names[rec.Name] = true
		result.Added = append(result.Added, rec.Name)
	}
	return result, nil
}

// GeneratePath returns a timestamped archive path in dir.
func GeneratePath(dir string, compress bool) string {
	ts := time.Now().UTC().Format("20060102-150405.000")
	ext := ".json"
	if compress {
		ext = ".json.gz"
	}
	return filepath.Join(dir, FilePrefix+ts+ext)
}

func isArchiveFile(name string) bool {
	return strings.HasPrefix(name, FilePrefix) &&
		(strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.gz"))
}
