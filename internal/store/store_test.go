package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/nvandessel/sigilgate/internal/constants"
	"github.com/nvandessel/sigilgate/internal/sigil"
)

func zigzagRecord(name string, n int) SigilRecord {
	return SigilRecord{Name: name, Anchors: sigil.Zigzag(n, 40, 30)}
}

func newSQLite(t *testing.T) *SQLiteCatalog {
	t.Helper()
	c, err := NewSQLiteCatalog(t.TempDir(), constants.ScopeLocal)
	if err != nil {
		t.Fatalf("NewSQLiteCatalog: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// catalogs runs each test against every Catalog implementation.
func catalogs(t *testing.T) map[string]Catalog {
	return map[string]Catalog{
		"sqlite": newSQLite(t),
		"memory": NewInMemoryCatalog(),
	}
}

func TestCatalog_SaveGetByIDAndName(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := zigzagRecord("wave", 5)
			rec.Description = "five anchor wave"

			id, err := c.Save(ctx, rec)
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			if id == "" {
				t.Fatal("Save returned empty id")
			}

			for _, key := range []string{id, "wave"} {
				got, err := c.Get(ctx, key)
				if err != nil {
					t.Fatalf("Get(%q): %v", key, err)
				}
				if got.ID != id || got.Name != "wave" || got.Description != "five anchor wave" {
					t.Errorf("Get(%q) = %+v", key, got)
				}
				if len(got.Anchors) != 5 {
					t.Fatalf("anchors = %d, want 5", len(got.Anchors))
				}
				if !got.Anchors[0].IsEntry || !got.Anchors[4].IsExit {
					t.Error("entry/exit flags not preserved")
				}
				if got.Anchors[1].Pos.Y != 30 || got.Anchors[2].Pos.X != 80 {
					t.Errorf("positions not preserved: %+v", got.Anchors)
				}
				if got.ContentHash() != rec.ContentHash() {
					t.Error("content hash changed across save")
				}
				if _, err := got.Graph(); err != nil {
					t.Errorf("Graph: %v", err)
				}
			}
		})
	}
}

func TestCatalog_SaveReplacesByName(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id1, err := c.Save(ctx, zigzagRecord("wave", 5))
			if err != nil {
				t.Fatal(err)
			}
			id2, err := c.Save(ctx, zigzagRecord("wave", 3))
			if err != nil {
				t.Fatal(err)
			}
			if id1 != id2 {
				t.Errorf("replacement changed id %s -> %s", id1, id2)
			}
			got, err := c.Get(ctx, "wave")
			if err != nil {
				t.Fatal(err)
			}
			if len(got.Anchors) != 3 {
				t.Errorf("anchors = %d, want 3", len(got.Anchors))
			}
			all, _ := c.List(ctx)
			if len(all) != 1 {
				t.Errorf("List len = %d, want 1", len(all))
			}
		})
	}
}

func TestCatalog_NameConflictWithDifferentID(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := c.Save(ctx, zigzagRecord("wave", 3)); err != nil {
				t.Fatal(err)
			}
			rec := zigzagRecord("wave", 3)
			rec.ID = "other-id"
			if _, err := c.Save(ctx, rec); err == nil {
				t.Error("expected conflict error")
			}
		})
	}
}

func TestCatalog_IDConflictWithDifferentName(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			first := zigzagRecord("alpha", 3)
			first.ID = "same"
			if _, err := c.Save(ctx, first); err != nil {
				t.Fatal(err)
			}

			second := zigzagRecord("beta", 4)
			second.ID = "same"
			if _, err := c.Save(ctx, second); err == nil {
				t.Fatal("expected conflict error for an id owned by another name")
			}

			got, err := c.Get(ctx, "same")
			if err != nil {
				t.Fatal(err)
			}
			if got.Name != "alpha" {
				t.Errorf("id now resolves to %q, want alpha", got.Name)
			}
			if _, err := c.Get(ctx, "beta"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(beta) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestCatalog_ExplicitEdges(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			anchors := sigil.Zigzag(3, 40, 30)
			anchors[0].IsEntry, anchors[2].IsExit = false, false
			anchors[2].IsEntry, anchors[0].IsExit = true, true
			rec := SigilRecord{
				Name:    "reverse",
				Anchors: anchors,
				Edges:   []sigil.Edge{{From: 2, To: 1}, {From: 1, To: 0}},
			}
			if _, err := c.Save(ctx, rec); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := c.Get(ctx, "reverse")
			if err != nil {
				t.Fatal(err)
			}
			g, err := got.Graph()
			if err != nil {
				t.Fatalf("Graph: %v", err)
			}
			if g.Entry().ID != "a2" || g.Exit().ID != "a0" {
				t.Errorf("entry/exit = %s/%s, want a2/a0", g.Entry().ID, g.Exit().ID)
			}
		})
	}
}

func TestCatalog_ListOrderedByName(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, n := range []string{"gamma", "alpha", "beta"} {
				if _, err := c.Save(ctx, zigzagRecord(n, 3)); err != nil {
					t.Fatal(err)
				}
			}
			recs, err := c.List(ctx)
			if err != nil {
				t.Fatal(err)
			}
			want := []string{"alpha", "beta", "gamma"}
			if len(recs) != len(want) {
				t.Fatalf("List len = %d, want %d", len(recs), len(want))
			}
			for i, r := range recs {
				if r.Name != want[i] {
					t.Errorf("recs[%d] = %s, want %s", i, r.Name, want[i])
				}
				if len(r.Anchors) != 3 {
					t.Errorf("%s anchors = %d, want 3", r.Name, len(r.Anchors))
				}
			}
		})
	}
}

func TestCatalog_Delete(t *testing.T) {
	for name, c := range catalogs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, err := c.Save(ctx, zigzagRecord("wave", 3))
			if err != nil {
				t.Fatal(err)
			}
			if err := c.Delete(ctx, id); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := c.Get(ctx, "wave"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after delete = %v, want ErrNotFound", err)
			}
			if err := c.Delete(ctx, "wave"); !errors.Is(err, ErrNotFound) {
				t.Errorf("second Delete = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestCatalog_RejectsInvalidRecords(t *testing.T) {
	tests := []struct {
		name string
		rec  SigilRecord
	}{
		{"missing name", SigilRecord{Anchors: sigil.Zigzag(3, 40, 30)}},
		{"one anchor", SigilRecord{Name: "solo", Anchors: sigil.Zigzag(1, 40, 30)}},
		{"branching edges", SigilRecord{
			Name:    "branch",
			Anchors: sigil.Zigzag(3, 40, 30),
			Edges:   []sigil.Edge{{From: 0, To: 1}, {From: 0, To: 2}},
		}},
	}
	for name, c := range catalogs(t) {
		for _, tt := range tests {
			t.Run(name+"/"+tt.name, func(t *testing.T) {
				if _, err := c.Save(context.Background(), tt.rec); err == nil {
					t.Error("expected error")
				}
			})
		}
	}
}

func TestSQLiteCatalog_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	c, err := NewSQLiteCatalog(dir, constants.ScopeGlobal)
	if err != nil {
		t.Fatal(err)
	}
	if c.Path() != filepath.Join(dir, constants.CatalogFile) {
		t.Errorf("Path = %s", c.Path())
	}
	if _, err := c.Save(ctx, zigzagRecord("wave", 4)); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c2, err := NewSQLiteCatalog(dir, constants.ScopeGlobal)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()
	got, err := c2.Get(ctx, "wave")
	if err != nil {
		t.Fatal(err)
	}
	if got.Scope != constants.ScopeGlobal {
		t.Errorf("Scope = %s, want global", got.Scope)
	}
	if len(got.Anchors) != 4 {
		t.Errorf("anchors = %d, want 4", len(got.Anchors))
	}
}

func TestContentHash_IgnoresName(t *testing.T) {
	a := zigzagRecord("one", 4)
	b := zigzagRecord("two", 4)
	c := zigzagRecord("three", 5)
	if a.ContentHash() != b.ContentHash() {
		t.Error("same shape, different names should hash equal")
	}
	if a.ContentHash() == c.ContentHash() {
		t.Error("different shapes should hash differently")
	}
}
