package utils

import (
	"os"
	"path/filepath"
)

// ExeDir returns the directory containing the currently running executable.
//
// cli.Run uses this to locate an implicit config file beside the binary
// when no -c flag is given: a cron job or service manager often starts the
// process with an unpredictable working directory, so resolving relative
// to the executable is more reliable than os.Getwd().
//
// Behavior:
// - Uses os.Executable() to obtain the full path to the running binary
// - Resolves symlinks (important when launched via shortcuts, symlinks, or wrappers)
// - Returns the parent directory of the executable
//
// Errors:
// - Returns an error if the executable path cannot be resolved
// - Callers may safely fall back to os.Getwd() if this fails
func ExeDir() (string, error) {
	// Get the absolute path to the currently running executable.
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}

	// Resolve any symlinks to get the real on-disk location.
	// This avoids surprises when the binary is invoked via a shortcut.
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "", err
	}

	// Return the directory containing the executable.
	return filepath.Dir(exe), nil
}
