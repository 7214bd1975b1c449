package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/sigilgate/internal/constants"
)

// GlobalPath returns the global .sigilgate directory.
// On Unix: ~/.sigilgate
// On Windows: %USERPROFILE%\.sigilgate
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DirName), nil
}

// LocalPath returns the .sigilgate directory for the given project root.
func LocalPath(projectRoot string) string {
	return filepath.Join(projectRoot, constants.DirName)
}
