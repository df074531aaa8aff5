package counters_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cyclicbackup/internal/counters"
)

func TestSnapshot_ReflectsIncrements(t *testing.T) {
	t.Parallel()

	var c counters.Counters
	c.BackedUp.Add(3)
	c.Cyclic.Add(1)
	c.Excluded.Add(2)

	snap := c.Snapshot()

	require.EqualValues(t, 3, snap.BackedUp)
	require.EqualValues(t, 1, snap.Cyclic)
	require.EqualValues(t, 2, snap.Excluded)
	require.Zero(t, snap.Incremental)
}
