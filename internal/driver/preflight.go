package driver

import (
	"fmt"
	"os"
)

// checkTargetDirWritable verifies that dir exists, is a directory, and
// accepts a real write before the run spends any time walking sources or
// spawning the archive pipeline. A best-effort probe: even a success here
// doesn't guarantee the eventual archive write will succeed, but it catches
// the common cases (missing mount, read-only share, stale credentials)
// before the pipeline is spawned or any path is admitted. The run's volume
// row has already been recorded in the catalog by then.
func checkTargetDirWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("target directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("target directory %s: not a directory", dir)
	}

	f, err := os.CreateTemp(dir, ".cyclicbackup_preflight_*")
	if err != nil {
		return fmt.Errorf("target directory %s: not writable: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	return nil
}
