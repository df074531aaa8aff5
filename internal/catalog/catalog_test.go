package catalog_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cyclicbackup/internal/catalog"
)

func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.sqlite")

	c, err := catalog.Open(t.Context(), path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = c.Close() })

	return c
}

func TestOpen_CreatesSchemaOnEmptyCatalog(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)

	vol, err := c.CurrentVolume(t.Context())
	require.NoError(t, err)
	require.Equal(t, 1, vol, "current volume of an empty catalog must be 1 (I5)")
}

func TestCurrentVolume_IsOneMoreThanMax(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)

	require.NoError(t, c.UpsertFile(t.Context(), "/a", 100, 1))
	require.NoError(t, c.UpsertFile(t.Context(), "/b", 200, 3))

	vol, err := c.CurrentVolume(t.Context())
	require.NoError(t, err)
	require.Equal(t, 4, vol)
}

func TestUpsertFile_ReplacesExistingRow(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)

	require.NoError(t, c.UpsertFile(t.Context(), "/a", 100, 1))
	require.NoError(t, c.UpsertFile(t.Context(), "/a", 200, 2))

	mtime, ok, err := c.MtimeOf(t.Context(), "/a")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 200, mtime, "I1: at most one row per path, and it must reflect the latest write")
}

func TestMtimeOf_MissingPath(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)

	_, ok, err := c.MtimeOf(t.Context(), "/does/not/exist")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDeleteFile_IsIdempotent(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)

	require.NoError(t, c.UpsertFile(t.Context(), "/a", 100, 1))
	require.NoError(t, c.DeleteFile(t.Context(), "/a"))
	require.NoError(t, c.DeleteFile(t.Context(), "/a"))

	_, ok, err := c.MtimeOf(t.Context(), "/a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIterOlderThan_OrdersAscendingByVolume(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)

	require.NoError(t, c.UpsertFile(t.Context(), "/c", 100, 3))
	require.NoError(t, c.UpsertFile(t.Context(), "/a", 100, 1))
	require.NoError(t, c.UpsertFile(t.Context(), "/b", 100, 2))
	require.NoError(t, c.UpsertFile(t.Context(), "/future", 100, 5))

	rows, err := c.IterOlderThan(t.Context(), 5)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []catalog.Row{
		{Path: "/a", Volume: 1},
		{Path: "/b", Volume: 2},
		{Path: "/c", Volume: 3},
	}, rows)
}

func TestRetireEmptyVolumes_DeletesOnlyUnreferencedVolumes(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)

	require.NoError(t, c.RecordVolume(t.Context(), 1, "vol1.tar.xz.gpg"))
	require.NoError(t, c.RecordVolume(t.Context(), 2, "vol2.tar.xz.gpg"))

	// Volume 2 still has a referencing file; volume 1 does not (L3).
	require.NoError(t, c.UpsertFile(t.Context(), "/a", 100, 2))

	retired, err := c.RetireEmptyVolumes(t.Context())
	require.NoError(t, err)
	require.Len(t, retired, 1)
	require.Equal(t, catalog.RetiredVolume{Num: 1, Tarfile: "vol1.tar.xz.gpg"}, retired[0])
}

func TestRecordVolume_DuplicateNumberFails(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)

	require.NoError(t, c.RecordVolume(t.Context(), 1, "vol1.tar"))
	err := c.RecordVolume(t.Context(), 1, "vol1-again.tar")
	require.Error(t, err)
}
