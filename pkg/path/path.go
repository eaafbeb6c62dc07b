// Package path locates well-known files and directories by walking up
// the tree, so lookups behave the same from the repository root and
// from a test's working directory.
package path

import (
	"fmt"
	"os"
	"path/filepath"
)

// FindRoot walks up from startDir until it finds an entry named
// targetName of the requested kind and returns the directory holding it.
func FindRoot(startDir, targetName string, isDir bool) (string, error) {
	dir := startDir

	for {
		fullPath := filepath.Join(dir, targetName)
		if info, err := os.Stat(fullPath); err == nil {
			if isDir && info.IsDir() {
				return dir, nil
			} else if !isDir && !info.IsDir() {
				return dir, nil
			}
		}

		parentDir := filepath.Dir(dir)
		if parentDir == dir {
			break
		}
		dir = parentDir
	}

	return "", fmt.Errorf("could not find %s starting from %s", targetName, startDir)
}
