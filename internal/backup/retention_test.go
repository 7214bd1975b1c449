package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func archiveSet(now time.Time) []ArchiveInfo {
	return []ArchiveInfo{
		{Path: "/b/5", CreatedAt: now, Size: 500, Sigils: 2},
		{Path: "/b/4", CreatedAt: now.Add(-1 * time.Hour), Size: 500, Sigils: 2},
		{Path: "/b/3", CreatedAt: now.Add(-30 * time.Hour), Size: 500, Sigils: 2},
		{Path: "/b/2", CreatedAt: now.Add(-72 * time.Hour), Size: 500, Sigils: 2},
		{Path: "/b/1", CreatedAt: now.Add(-720 * time.Hour), Size: 500, Sigils: 2},
	}
}

func paths(archives []ArchiveInfo) []string {
	var out []string
	for _, a := range archives {
		out = append(out, a.Path)
	}
	return out
}

func TestRetention_Keep(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	all := archiveSet(now)

	emptyNewest := archiveSet(now)
	emptyNewest[0].Sigils = 0
	emptyNewest[1].Sigils = 0

	unreadable := archiveSet(now)
	unreadable[4].Err = errors.New("checksum mismatch")

	tests := []struct {
		name     string
		r        Retention
		archives []ArchiveInfo
		want     []string
	}{
		{"count keeps newest", Retention{MaxCount: 3}, all, []string{"/b/5", "/b/4", "/b/3"}},
		{"count larger than set", Retention{MaxCount: 10}, all, []string{"/b/5", "/b/4", "/b/3", "/b/2", "/b/1"}},
		{"age drops old", Retention{MaxAge: 24 * time.Hour}, all, []string{"/b/5", "/b/4"}},
		{"size fits under limit", Retention{MaxTotalBytes: 1200}, all, []string{"/b/5", "/b/4"}},
		{"size keeps newest when over limit", Retention{MaxTotalBytes: 10}, all, []string{"/b/5"}},
		{"limits are a union", Retention{MaxCount: 1, MaxAge: 48 * time.Hour}, all, []string{"/b/5", "/b/4", "/b/3"}},
		{"newest non-empty archive survives", Retention{MaxCount: 1}, emptyNewest, []string{"/b/5", "/b/3"}},
		{"unreadable archives are left alone", Retention{MaxCount: 1}, unreadable, []string{"/b/5", "/b/1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := paths(tt.r.Keep(tt.archives, now))
			if len(got) != len(tt.want) {
				t.Fatalf("Keep() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Keep()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// exportAt writes a V2 archive of catalog named by stamp but recording
// created as its creation time.
func exportAt(t *testing.T, dir, stamp string, created time.Time, sigilNames ...string) string {
	t.Helper()
	path := filepath.Join(dir, FilePrefix+stamp+".json.gz")
	a, err := Export(context.Background(), seedCatalog(t, sigilNames...), path, true)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	a.CreatedAt = created
	if err := WriteV2(path, a); err != nil {
		t.Fatalf("WriteV2: %v", err)
	}
	return path
}

func TestListArchives_OrdersByRecordedCreation(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	// File names disagree with the recorded times on purpose.
	older := exportAt(t, dir, "20260209-000000.000", base, "alpha")
	newer := exportAt(t, dir, "20260201-000000.000", base.Add(48*time.Hour), "alpha", "beta")
	plain := filepath.Join(dir, FilePrefix+"20260205-000000.000.json")
	if err := os.WriteFile(plain, []byte(`{"version":1,"created_at":"2026-02-02T12:00:00Z","sigils":[]}`), 0600); err != nil {
		t.Fatal(err)
	}
	broken := filepath.Join(dir, FilePrefix+"20260207-000000.000.json.gz")
	if err := os.WriteFile(broken, []byte("not really gzip"), 0600); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{FilePrefix + "x.yaml", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("ignore"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	archives, err := ListArchives(dir)
	if err != nil {
		t.Fatalf("ListArchives() error = %v", err)
	}
	if len(archives) != 4 {
		t.Fatalf("ListArchives() found %d, want 4", len(archives))
	}

	byPath := make(map[string]ArchiveInfo)
	for _, a := range archives {
		byPath[a.Path] = a
	}
	if a := byPath[newer]; a.Version != FormatV2 || a.Sigils != 2 || !a.CreatedAt.Equal(base.Add(48*time.Hour)) {
		t.Errorf("newer archive = %+v", a)
	}
	if a := byPath[plain]; a.Version != FormatV1 || a.Sigils != 0 || a.Err != nil {
		t.Errorf("plain archive = %+v", a)
	}
	if a := byPath[broken]; a.Err == nil {
		t.Error("unreadable archive should report an error")
	}

	idx := func(p string) int {
		for i, a := range archives {
			if a.Path == p {
				return i
			}
		}
		return -1
	}
	if !(idx(newer) < idx(plain) && idx(plain) < idx(older)) {
		t.Errorf("order = %v, want recorded creation time newest first", paths(archives))
	}

	missing, err := ListArchives(filepath.Join(dir, "nope"))
	if err != nil || missing != nil {
		t.Errorf("ListArchives(missing) = %v, %v; want nil, nil", missing, err)
	}
}

func TestApplyRetention(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().UTC()
	var made []string
	for i := range 5 {
		stamp := "2026020" + string(rune('1'+i)) + "-120000.000"
		made = append(made, exportAt(t, dir, stamp, now.Add(time.Duration(i-5)*time.Hour), "alpha"))
	}
	keepMe := filepath.Join(dir, "hand-made.json.gz")
	if err := os.WriteFile(keepMe, []byte("data"), 0600); err != nil {
		t.Fatal(err)
	}

	deleted, err := ApplyRetention(dir, Retention{MaxCount: 2})
	if err != nil {
		t.Fatalf("ApplyRetention() error = %v", err)
	}
	if len(deleted) != 3 {
		t.Errorf("deleted %d files, want 3", len(deleted))
	}
	for _, p := range made[3:] {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("newest archive %s removed: %v", filepath.Base(p), err)
		}
	}
	if _, err := os.Stat(keepMe); err != nil {
		t.Errorf("files without the archive prefix must be left alone: %v", err)
	}
}

func TestNewRetention(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		age     string
		size    string
		want    Retention
		wantErr bool
	}{
		{name: "defaults", want: Retention{MaxCount: DefaultMaxArchives}},
		{name: "count only", count: 3, want: Retention{MaxCount: 3}},
		{name: "days", age: "30d", want: Retention{MaxAge: 30 * 24 * time.Hour}},
		{name: "weeks", age: "2w", want: Retention{MaxAge: 14 * 24 * time.Hour}},
		{name: "go duration", age: "720h", want: Retention{MaxAge: 720 * time.Hour}},
		{name: "all limits", count: 3, age: "7d", size: "10MB",
			want: Retention{MaxCount: 3, MaxAge: 7 * 24 * time.Hour, MaxTotalBytes: 10 << 20}},
		{name: "kilobytes", size: "500KB", want: Retention{MaxTotalBytes: 500 << 10}},
		{name: "gigabytes", size: "1GB", want: Retention{MaxTotalBytes: 1 << 30}},
		{name: "bytes", size: " 1024B ", want: Retention{MaxTotalBytes: 1024}},
		{name: "negative count", count: -1, wantErr: true},
		{name: "bad age", age: "soon", wantErr: true},
		{name: "unknown age unit", age: "3y", wantErr: true},
		{name: "negative age", age: "-2d", wantErr: true},
		{name: "bad size", size: "lots", wantErr: true},
		{name: "size without unit", size: "100", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewRetention(tt.count, tt.age, tt.size)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRetention() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("NewRetention() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
