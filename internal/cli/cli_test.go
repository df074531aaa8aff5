package cli_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"cyclicbackup/internal/cli"
)

func TestRun_HelpPrintsUsageAndExitsTwo(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := cli.Run(t.Context(), &stdout, &stderr, []string{"-h"})

	require.Equal(t, cli.ExitUsageError, code)
	require.Contains(t, stdout.String(), "usage: backup")
	require.Empty(t, stderr.String())
}

func TestRun_UnknownFlagExitsTwo(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := cli.Run(t.Context(), &stdout, &stderr, []string{"--not-a-real-flag"})

	require.Equal(t, cli.ExitUsageError, code)
	require.Contains(t, stderr.String(), "error:")
}

func TestRun_MissingConfigFileExitsTwo(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	code := cli.Run(t.Context(), &stdout, &stderr, []string{"-c", "/nonexistent/path.yaml"})

	require.Equal(t, cli.ExitUsageError, code)
	require.Contains(t, stderr.String(), "error:")
}
