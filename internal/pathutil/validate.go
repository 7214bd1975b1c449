// Package pathutil validates user-supplied file paths for catalog archives.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/sigilgate/internal/constants"
)

// ArchiveExtensions are the file suffixes accepted for catalog archives.
var ArchiveExtensions = []string{".json", ".json.gz"}

// RedactPath reduces a full path to .../<parent>/<basename> for safe error messages.
// For example, "/home/user/.sigilgate/config.yaml" becomes ".../.sigilgate/config.yaml".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	dir := filepath.Dir(cleaned)
	base := filepath.Base(cleaned)
	parent := filepath.Base(dir)
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// ValidatePath checks that path lies within one of allowedDirs after
// cleaning and symlink resolution. The file itself need not exist.
func ValidatePath(path string, allowedDirs []string) error {
	if path == "" {
		return fmt.Errorf("path validation failed: path is empty")
	}
	if len(allowedDirs) == 0 {
		return fmt.Errorf("path validation failed: no allowed directories configured")
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("path validation failed: path contains null byte")
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("path validation failed: cannot resolve absolute path: %w", err)
	}

	// A symlinked directory inside an allowed tree may point outside it.
	resolvedDir, err := resolveExistingParent(filepath.Dir(absPath))
	if err != nil {
		return fmt.Errorf("path validation failed: cannot resolve parent directory: %w", err)
	}
	resolvedPath := filepath.Join(resolvedDir, filepath.Base(absPath))

	for _, allowed := range allowedDirs {
		allowedAbs, err := filepath.Abs(filepath.Clean(allowed))
		if err != nil {
			continue
		}
		allowedResolved, err := resolveExistingParent(allowedAbs)
		if err != nil {
			continue
		}
		if isSubpath(resolvedPath, allowedResolved) {
			return nil
		}
	}

	return fmt.Errorf("path validation failed: %q is outside allowed directories", RedactPath(absPath))
}

// ValidateArchivePath applies ValidatePath and also requires one of
// ArchiveExtensions.
func ValidateArchivePath(path string, allowedDirs []string) error {
	if err := ValidatePath(path, allowedDirs); err != nil {
		return err
	}
	for _, ext := range ArchiveExtensions {
		if strings.HasSuffix(path, ext) {
			return nil
		}
	}
	return fmt.Errorf("path validation failed: %q must end in one of %s",
		RedactPath(path), strings.Join(ArchiveExtensions, ", "))
}

// resolveExistingParent resolves symlinks on the deepest existing ancestor
// of dir and re-appends the missing tail.
func resolveExistingParent(dir string) (string, error) {
	resolved, err := filepath.EvalSymlinks(dir)
	if err == nil {
		return resolved, nil
	}

	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(dir))
	}

	resolvedParent, err := resolveExistingParent(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(dir)), nil
}

// isSubpath reports whether path equals base or lies below it.
func isSubpath(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(os.PathSeparator))
}

// GlobalBackupDir returns ~/.sigilgate/backups.
func GlobalBackupDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DirName, constants.BackupsDir), nil
}

// AllowedBackupDirs returns the directories catalog archives may be read
// from or written to: ~/.sigilgate/backups and, when projectRoot is set,
// <projectRoot>/.sigilgate/backups.
func AllowedBackupDirs(projectRoot string) ([]string, error) {
	global, err := GlobalBackupDir()
	if err != nil {
		return nil, err
	}
	dirs := []string{global}
	if projectRoot != "" {
		dirs = append(dirs, filepath.Join(projectRoot, constants.DirName, constants.BackupsDir))
	}
	return dirs, nil
}
