package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/sigilgate/internal/constants"
)

type exportResult struct {
	Path       string `json:"path"`
	SigilCount int    `json:"sigil_count"`
	Version    int    `json:"version"`
	Compressed bool   `json:"compressed"`
}

type importResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Removed int `json:"removed"`
}

func TestCatalogCmd_ExportImport(t *testing.T) {
	isolateHome(t)
	home, _ := os.UserHomeDir()
	root := t.TempDir()

	mustRun(t, "catalog", "add", "zz", "--zigzag", "4", "--root", root)
	mustRun(t, "catalog", "add", "wide", "--zigzag", "3", "--step", "200", "--scope", "global", "--root", root)

	var exp exportResult
	decodeJSON(t, mustRun(t, "catalog", "export", "--scope", "both", "--root", root, "--json"), &exp)
	wantDir := filepath.Join(home, constants.DirName, constants.BackupsDir)
	if filepath.Dir(exp.Path) != wantDir {
		t.Errorf("export path = %s, want it under %s", exp.Path, wantDir)
	}
	if exp.SigilCount != 2 || exp.Version != 2 || !exp.Compressed {
		t.Errorf("export = %+v", exp)
	}

	other := t.TempDir()
	var imp importResult
	decodeJSON(t, mustRun(t, "catalog", "import", exp.Path, "--root", other, "--json"), &imp)
	if imp.Added != 2 || imp.Skipped != 0 {
		t.Errorf("first import = %+v", imp)
	}

	decodeJSON(t, mustRun(t, "catalog", "import", exp.Path, "--root", other, "--json"), &imp)
	if imp.Added != 0 || imp.Skipped != 2 {
		t.Errorf("merge re-import = %+v", imp)
	}

	decodeJSON(t, mustRun(t, "catalog", "import", exp.Path, "--mode", "replace", "--root", other, "--json"), &imp)
	if imp.Added != 2 || imp.Removed != 2 {
		t.Errorf("replace import = %+v", imp)
	}

	out := mustRun(t, "catalog", "show", "wide", "--root", other)
	if !strings.Contains(out, "local") {
		t.Errorf("imported sigil should live in the local catalog:\n%s", out)
	}
}

func TestCatalogCmd_ExportLocalPlain(t *testing.T) {
	isolateHome(t)
	root := t.TempDir()
	mustRun(t, "catalog", "add", "zz", "--zigzag", "4", "--root", root)

	target := filepath.Join(root, constants.DirName, constants.BackupsDir, "mine.json")
	var exp exportResult
	decodeJSON(t, mustRun(t, "catalog", "export", "--no-compress", "-o", target, "--root", root, "--json"), &exp)
	if exp.Version != 1 || exp.Compressed || exp.SigilCount != 1 {
		t.Errorf("export = %+v", exp)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("archive not written: %v", err)
	}

	mustRun(t, "catalog", "export", "--root", root)

	var listing struct {
		Count    int `json:"count"`
		Archives []struct {
			Path       string `json:"path"`
			SigilCount int    `json:"sigil_count"`
			Status     string `json:"status"`
		} `json:"archives"`
	}
	decodeJSON(t, mustRun(t, "catalog", "archives", "--verify", "--root", root, "--json"), &listing)
	// mine.json has no generated name, so only the default export is listed.
	if listing.Count != 1 || listing.Archives[0].Status != "ok" || listing.Archives[0].SigilCount != 1 {
		t.Errorf("archives = %+v", listing)
	}
}

func TestCatalogCmd_ArchivePathRejected(t *testing.T) {
	isolateHome(t)
	root := t.TempDir()
	mustRun(t, "catalog", "add", "zz", "--zigzag", "4", "--root", root)

	outside := filepath.Join(t.TempDir(), "escape.json.gz")
	if _, err := runCmd(t, "catalog", "export", "-o", outside, "--root", root); err == nil ||
		!strings.Contains(err.Error(), "outside allowed directories") {
		t.Errorf("export outside backup dirs error = %v", err)
	}

	wrongExt := filepath.Join(root, constants.DirName, constants.BackupsDir, "sigils.yaml")
	if _, err := runCmd(t, "catalog", "export", "-o", wrongExt, "--root", root); err == nil {
		t.Error("export with a non-archive extension should fail")
	}

	if _, err := runCmd(t, "catalog", "import", outside, "--root", root); err == nil {
		t.Error("import outside backup dirs should fail")
	}
	inside := filepath.Join(root, constants.DirName, constants.BackupsDir, "x.json")
	if _, err := runCmd(t, "catalog", "import", inside, "--mode", "clobber", "--root", root); err == nil {
		t.Error("unknown import mode should fail")
	}
}

func TestCatalogCmd_AddSanitizesName(t *testing.T) {
	isolateHome(t)
	root := t.TempDir()

	out := mustRun(t, "catalog", "add", "my sigil!", "--zigzag", "3", "--description", "<i>slanted</i>", "--root", root)
	if !strings.Contains(out, `"mysigil"`) {
		t.Errorf("add output = %q", out)
	}
	show := mustRun(t, "catalog", "show", "mysigil", "--root", root)
	if !strings.Contains(show, "slanted") || strings.Contains(show, "<i>") {
		t.Errorf("show output:\n%s", show)
	}

	if _, err := runCmd(t, "catalog", "add", "!!!", "--zigzag", "3", "--root", root); err == nil {
		t.Error("a name with no usable characters should fail")
	}
}
