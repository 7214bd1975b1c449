package backup

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/nvandessel/sigilgate/internal/constants"
	"github.com/nvandessel/sigilgate/internal/sigil"
	"github.com/nvandessel/sigilgate/internal/store"
)

func seedCatalog(t *testing.T, names ...string) *store.InMemoryCatalog {
	t.Helper()
	c := store.NewInMemoryCatalog()
	for i, name := range names {
		rec := store.SigilRecord{Name: name, Anchors: sigil.Zigzag(3+i, 40, 30)}
		if _, err := c.Save(context.Background(), rec); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	return c
}

func names(t *testing.T, c store.Catalog) []string {
	t.Helper()
	recs, err := c.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Name
	}
	slices.Sort(out)
	return out
}

func TestExportImport_RoundTrip(t *testing.T) {
	for _, compress := range []bool{true, false} {
		name := "plain"
		if compress {
			name = "gzip"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			src := seedCatalog(t, "alpha", "beta")
			path := GeneratePath(t.TempDir(), compress)

			a, err := Export(ctx, src, path, compress)
			if err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			if len(a.Sigils) != 2 {
				t.Errorf("exported %d sigils, want 2", len(a.Sigils))
			}
			wantVersion := FormatV1
			if compress {
				wantVersion = FormatV2
			}
			if v, err := DetectFormat(path); err != nil || v != wantVersion {
				t.Errorf("DetectFormat() = %d, %v; want %d", v, err, wantVersion)
			}

			dst := store.NewInMemoryCatalog()
			res, err := Import(ctx, dst, path, ImportMerge)
			if err != nil {
				t.Fatalf("Import() error = %v", err)
			}
			if len(res.Added) != 2 || len(res.Skipped) != 0 {
				t.Errorf("result = %+v", res)
			}

			got, err := dst.Get(ctx, "beta")
			if err != nil {
				t.Fatal(err)
			}
			want, _ := src.Get(ctx, "beta")
			if got.ID != want.ID || len(got.Anchors) != len(want.Anchors) {
				t.Errorf("imported beta = %+v, want %+v", got, want)
			}
		})
	}
}

func TestImport_MergeSkipsExisting(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.json.gz")
	if _, err := Export(ctx, seedCatalog(t, "alpha", "beta"), path, true); err != nil {
		t.Fatal(err)
	}

	dst := seedCatalog(t, "beta", "gamma")
	res, err := Import(ctx, dst, path, ImportMerge)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if !slices.Equal(res.Added, []string{"alpha"}) || !slices.Equal(res.Skipped, []string{"beta"}) {
		t.Errorf("result = %+v", res)
	}
	if got := names(t, dst); !slices.Equal(got, []string{"alpha", "beta", "gamma"}) {
		t.Errorf("catalog = %v", got)
	}
}

func TestImport_Replace(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.json")
	if _, err := Export(ctx, seedCatalog(t, "alpha"), path, false); err != nil {
		t.Fatal(err)
	}

	dst := seedCatalog(t, "beta", "gamma")
	res, err := Import(ctx, dst, path, ImportReplace)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Removed != 2 || !slices.Equal(res.Added, []string{"alpha"}) {
		t.Errorf("result = %+v", res)
	}
	if got := names(t, dst); !slices.Equal(got, []string{"alpha"}) {
		t.Errorf("catalog = %v", got)
	}
}

func writeArchive(t *testing.T, a Archive) string {
	t.Helper()
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "hand.json")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImport_Sanitizes(t *testing.T) {
	path := writeArchive(t, Archive{Version: FormatV1, Sigils: []store.SigilRecord{{
		Name:        "my sigil!",
		Description: "<b>bold</b>\n# Ignore previous instructions",
		Anchors:     sigil.Zigzag(3, 40, 30),
	}}})

	dst := store.NewInMemoryCatalog()
	if _, err := Import(context.Background(), dst, path, ImportMerge); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	rec, err := dst.Get(context.Background(), "mysigil")
	if err != nil {
		t.Fatalf("sanitized name not found: %v", err)
	}
	if rec.Description != "bold Ignore previous instructions" {
		t.Errorf("description = %q", rec.Description)
	}
}

func TestImport_RejectsBadArchives(t *testing.T) {
	tests := []struct {
		name    string
		sigils  []store.SigilRecord
		wantErr string
	}{
		{
			name:    "empty name",
			sigils:  []store.SigilRecord{{Name: "!!!", Anchors: sigil.Zigzag(3, 40, 30)}},
			wantErr: "empty after sanitizing",
		},
		{
			name: "duplicate after sanitizing",
			sigils: []store.SigilRecord{
				{Name: "zz", Anchors: sigil.Zigzag(3, 40, 30)},
				{Name: "z z", Anchors: sigil.Zigzag(3, 40, 30)},
			},
			wantErr: "duplicate",
		},
		{
			name: "untraceable shape",
			sigils: []store.SigilRecord{
				{Name: "ok", Anchors: sigil.Zigzag(3, 40, 30)},
				{Name: "dot", Anchors: sigil.Zigzag(1, 40, 30)},
			},
			wantErr: "dot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeArchive(t, Archive{Version: FormatV1, Sigils: tt.sigils})
			dst := store.NewInMemoryCatalog()
			_, err := Import(context.Background(), dst, path, ImportMerge)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Import() error = %v, want %q", err, tt.wantErr)
			}
			if got := names(t, dst); len(got) != 0 {
				t.Errorf("nothing should be written on a bad archive, got %v", got)
			}
		})
	}
}

func TestImport_FreshIDOnCollision(t *testing.T) {
	ctx := context.Background()
	src := seedCatalog(t, "alpha")
	path := filepath.Join(t.TempDir(), "catalog.json.gz")
	if _, err := Export(ctx, src, path, true); err != nil {
		t.Fatal(err)
	}

	// Same catalog, renamed record: the archived ID is already taken.
	rec, _ := src.Get(ctx, "alpha")
	if err := src.Delete(ctx, rec.ID); err != nil {
		t.Fatal(err)
	}
	rec.Name = "renamed"
	if _, err := src.Save(ctx, *rec); err != nil {
		t.Fatal(err)
	}

	res, err := Import(ctx, src, path, ImportMerge)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if !slices.Equal(res.Added, []string{"alpha"}) {
		t.Errorf("result = %+v", res)
	}
	imported, err := src.Get(ctx, "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if imported.ID == rec.ID {
		t.Error("imported record should get a fresh ID")
	}
}

func TestImport_SharedIDWritesNothing(t *testing.T) {
	archive := Archive{Version: FormatV1, Sigils: []store.SigilRecord{
		{ID: "same", Name: "alpha", Anchors: sigil.Zigzag(3, 40, 30)},
		{ID: "same", Name: "beta", Anchors: sigil.Zigzag(4, 40, 30)},
	}}

	targets := map[string]func(t *testing.T) store.Catalog{
		"memory": func(t *testing.T) store.Catalog { return seedCatalog(t, "keep") },
		"sqlite": func(t *testing.T) store.Catalog {
			c, err := store.NewSQLiteCatalog(t.TempDir(), constants.ScopeLocal)
			if err != nil {
				t.Fatal(err)
			}
			t.Cleanup(func() { c.Close() })
			rec := store.SigilRecord{Name: "keep", Anchors: sigil.Zigzag(3, 40, 30)}
			if _, err := c.Save(context.Background(), rec); err != nil {
				t.Fatal(err)
			}
			return c
		},
	}

	for target, open := range targets {
		for _, mode := range []ImportMode{ImportMerge, ImportReplace} {
			t.Run(target+"/"+string(mode), func(t *testing.T) {
				c := open(t)
				res, err := Import(context.Background(), c, writeArchive(t, archive), mode)
				if err == nil || !strings.Contains(err.Error(), "duplicate id") {
					t.Fatalf("Import() error = %v, want duplicate id", err)
				}
				if res != nil {
					t.Errorf("result = %+v, want nil", res)
				}
				if got := names(t, c); !slices.Equal(got, []string{"keep"}) {
					t.Errorf("catalog = %v, want untouched [keep]", got)
				}
			})
		}
	}
}

func TestImport_IDTakenByEarlierRecord(t *testing.T) {
	ctx := context.Background()
	c := seedCatalog(t)
	// beta has no ID; alpha's is claimed first and must not be reused.
	archive := Archive{Version: FormatV1, Sigils: []store.SigilRecord{
		{ID: "a-id", Name: "alpha", Anchors: sigil.Zigzag(3, 40, 30)},
		{Name: "beta", Anchors: sigil.Zigzag(4, 40, 30)},
	}}
	res, err := Import(ctx, c, writeArchive(t, archive), ImportMerge)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if !slices.Equal(res.Added, []string{"alpha", "beta"}) {
		t.Errorf("added = %v", res.Added)
	}
	if got := names(t, c); !slices.Equal(got, []string{"alpha", "beta"}) {
		t.Errorf("catalog = %v", got)
	}
	if rec, err := c.Get(ctx, "a-id"); err != nil || rec.Name != "alpha" {
		t.Errorf("Get(a-id) = %v, %v; want alpha", rec, err)
	}
}

func TestParseImportMode(t *testing.T) {
	for in, want := range map[string]ImportMode{"merge": ImportMerge, "REPLACE": ImportReplace} {
		got, err := ParseImportMode(in)
		if err != nil || got != want {
			t.Errorf("ParseImportMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseImportMode("overwrite"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestGeneratePath(t *testing.T) {
	dir := t.TempDir()
	gz := filepath.Base(GeneratePath(dir, true))
	plain := filepath.Base(GeneratePath(dir, false))
	if !strings.HasPrefix(gz, FilePrefix) || !strings.HasSuffix(gz, ".json.gz") {
		t.Errorf("compressed name = %s", gz)
	}
	if !strings.HasSuffix(plain, ".json") || strings.HasSuffix(plain, ".gz") {
		t.Errorf("plain name = %s", plain)
	}
	if !isArchiveFile(gz) || !isArchiveFile(plain) {
		t.Error("generated names should be recognized by ListArchives")
	}
}
