package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ArchiveInfo describes an archive file. CreatedAt and Sigils come from the
// archive's own header or payload; the file's mtime stands in for CreatedAt
// only when the archive does not record one. Err is set when the archive
// could not be read.
type ArchiveInfo struct {
	Path      string
	Size      int64
	Version   int
	CreatedAt time.Time
	Sigils    int
	Err       error
}

// Retention bounds the archives kept in a backup directory. A zero limit is
// unset; an archive survives when any set limit keeps it.
type Retention struct {
	MaxCount      int
	MaxAge        time.Duration
	MaxTotalBytes int64
}

// DefaultMaxArchives applies when no retention limit is configured.
const DefaultMaxArchives = 10

// NewRetention builds a Retention from configuration values. maxAge accepts
// Go durations plus d and w suffixes; maxTotalSize accepts B, KB, MB and GB.
func NewRetention(maxCount int, maxAge, maxTotalSize string) (Retention, error) {
	if maxCount < 0 {
		return Retention{}, fmt.Errorf("max count %d is negative", maxCount)
	}
	r := Retention{MaxCount: maxCount}
	if maxAge != "" {
		d, err := parseAge(maxAge)
		if err != nil {
			return Retention{}, err
		}
		r.MaxAge = d
	}
	if maxTotalSize != "" {
		n, err := parseSize(maxTotalSize)
		if err != nil {
			return Retention{}, err
		}
		r.MaxTotalBytes = n
	}
	if r == (Retention{}) {
		r.MaxCount = DefaultMaxArchives
	}
	return r, nil
}

// Keep returns the archives r retains, in input order. archives must be
// sorted newest first. The newest archive holding at least one sigil is
// always kept, so exporting an empty catalog never prunes the last useful
// archive. Unreadable archives are never selected for removal.
func (r Retention) Keep(archives []ArchiveInfo, now time.Time) []ArchiveInfo {
	cutoff := now.Add(-r.MaxAge)
	var total int64
	kept := make([]ArchiveInfo, 0, len(archives))
	counted := 0
	anchored := false
	for _, a := range archives {
		if a.Err != nil {
			kept = append(kept, a)
			continue
		}
		keep := r.MaxCount > 0 && counted < r.MaxCount
		if r.MaxAge > 0 && a.CreatedAt.After(cutoff) {
			keep = true
		}
		// The size limit always admits the newest archive.
		if r.MaxTotalBytes > 0 && (counted == 0 || total+a.Size <= r.MaxTotalBytes) {
			keep = true
		}
		if !anchored && a.Sigils > 0 {
			anchored = true
			keep = true
		}
		counted++
		total += a.Size
		if keep {
			kept = append(kept, a)
		}
	}
	return kept
}

// ListArchives scans dir for generated archive files, newest first by the
// creation time each archive records.
func ListArchives(dir string) ([]ArchiveInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading archive directory: %w", err)
	}

	var archives []ArchiveInfo
	for _, e := range entries {
		if e.IsDir() || !isArchiveFile(e.Name()) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		archives = append(archives, inspect(filepath.Join(dir, e.Name()), fi))
	}

	slices.SortFunc(archives, func(a, b ArchiveInfo) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.Path, a.Path)
	})
	return archives, nil
}

func inspect(path string, fi os.FileInfo) ArchiveInfo {
	info := ArchiveInfo{Path: path, Size: fi.Size()}
	info.Version, info.Err = DetectFormat(path)
	if info.Err == nil {
		if info.Version == FormatV2 {
			var h *Header
			if h, info.Err = ReadV2Header(path); h != nil {
				info.CreatedAt, info.Sigils = h.CreatedAt, h.SigilCount
			}
		} else {
			var a *Archive
			if a, info.Err = Read(path); a != nil {
				info.CreatedAt, info.Sigils = a.CreatedAt, len(a.Sigils)
			}
		}
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = fi.ModTime()
	}
	return info
}

// ApplyRetention deletes the archives in dir that r does not keep.
func ApplyRetention(dir string, r Retention) (deleted []string, err error) {
	archives, err := ListArchives(dir)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool, len(archives))
	for _, a := range r.Keep(archives, time.Now()) {
		keep[a.Path] = true
	}
	for _, a := range archives {
		if keep[a.Path] {
			continue
		}
		if err := os.Remove(a.Path); err != nil {
			return deleted, fmt.Errorf("removing %s: %w", filepath.Base(a.Path), err)
		}
		deleted = append(deleted, a.Path)
	}
	return deleted, nil
}

type unit struct {
	suffix string
	scale  int64
}

var (
	ageUnits  = []unit{{"w", int64(7 * 24 * time.Hour)}, {"d", int64(24 * time.Hour)}}
	sizeUnits = []unit{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}}
)

// scaled parses a non-negative integer followed by one of units.
// Longer suffixes must come first in units.
func scaled(s string, units []unit) (int64, bool) {
	s = strings.TrimSpace(s)
	for _, u := range units {
		num, ok := strings.CutSuffix(s, u.suffix)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(num, 10, 64)
		if err != nil || n < 0 {
			return 0, false
		}
		return n * u.scale, true
	}
	return 0, false
}

// parseAge accepts "720h" style durations and "30d" or "2w".
func parseAge(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d, nil
	}
	if n, ok := scaled(s, ageUnits); ok {
		return time.Duration(n), nil
	}
	return 0, fmt.Errorf("invalid max age %q (use e.g. 720h, 30d or 2w)", s)
}

func parseSize(s string) (int64, error) {
	if n, ok := scaled(s, sizeUnits); ok {
		return n, nil
	}
	return 0, fmt.Errorf("invalid max size %q (use B, KB, MB or GB)", s)
}
