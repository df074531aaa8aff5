package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrTargetInsideRoot is returned when the archive's destination directory
// is nested inside one of the configured backup roots. Left unchecked, each
// run would walk into its own output file (or a prior run's) and feed it
// straight back into the next archive.
var ErrTargetInsideRoot = errors.New("target directory is nested inside a backup root")

// ValidateTargetOutsideRoots rejects a target directory that sits inside
// (or equal to) any of the configured backup roots.
func ValidateTargetOutsideRoots(targetDir string, roots []string) error {
	targetDir = filepath.Clean(targetDir)

	for _, root := range roots {
		root = filepath.Clean(root)

		rel, err := filepath.Rel(root, targetDir)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return fmt.Errorf("%w: %s is under %s", ErrTargetInsideRoot, targetDir, root)
		}
	}

	return nil
}
