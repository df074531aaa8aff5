package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cyclicbackup/internal/config"
)

func TestValidateTargetOutsideRoots(t *testing.T) {
	t.Parallel()

	roots := []string{"/home/alice/docs", "/home/alice/photos"}

	require.NoError(t, config.ValidateTargetOutsideRoots("/var/backups", roots))

	err := config.ValidateTargetOutsideRoots("/home/alice/docs/archives", roots)
	require.ErrorIs(t, err, config.ErrTargetInsideRoot)

	err = config.ValidateTargetOutsideRoots("/home/alice/docs", roots)
	require.ErrorIs(t, err, config.ErrTargetInsideRoot)
}
