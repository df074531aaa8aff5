package ackreader_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"cyclicbackup/internal/ackreader"
	"cyclicbackup/internal/catalog"
	"cyclicbackup/internal/counters"
	"cyclicbackup/internal/errbuf"
	"cyclicbackup/internal/pendingset"
)

func openTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Open(t.Context(), filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })
	return cat
}

func TestRun_CommitsAcknowledgedFileAndIncrementsBackedUp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	filePath := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("hi"), 0o644))

	key := strings.TrimPrefix(filePath, "/")

	pending := pendingset.New()
	pending.Add(key)

	cat := openTestCatalog(t)
	cnt := &counters.Counters{}
	buf := errbuf.New()

	stderr := strings.NewReader(key + "\n")
	err := ackreader.Run(t.Context(), stderr, pending, cat, 3, cnt, buf)
	require.NoError(t, err)

	require.EqualValues(t, 1, cnt.BackedUp.Load())
	require.Equal(t, 0, pending.Len())

	mtime, found, err := cat.MtimeOf(t.Context(), key)
	require.NoError(t, err)
	require.True(t, found)
	require.NotZero(t, mtime)
}

func TestRun_UnmatchedLineGoesToErrorBuffer(t *testing.T) {
	t.Parallel()

	pending := pendingset.New()
	cat := openTestCatalog(t)
	cnt := &counters.Counters{}
	buf := errbuf.New()

	stderr := strings.NewReader("tar: some diagnostic\n")
	err := ackreader.Run(t.Context(), stderr, pending, cat, 1, cnt, buf)
	require.NoError(t, err)

	require.EqualValues(t, 0, cnt.BackedUp.Load())
	require.Equal(t, []string{"tar: some diagnostic"}, buf.Errors())
}

func TestRun_DirectoryAckStripsTrailingSeparator(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))

	key := strings.TrimPrefix(sub, "/") // pending keys never carry a trailing separator

	pending := pendingset.New()
	pending.Add(key)

	cat := openTestCatalog(t)
	cnt := &counters.Counters{}
	buf := errbuf.New()

	stderr := strings.NewReader(key + "/\n")
	err := ackreader.Run(t.Context(), stderr, pending, cat, 2, cnt, buf)
	require.NoError(t, err)

	require.EqualValues(t, 1, cnt.BackedUp.Load())
	require.Empty(t, buf.Errors())

	_, found, err := cat.MtimeOf(t.Context(), key)
	require.NoError(t, err)
	require.True(t, found, "catalog row must be keyed without the trailing separator, matching selector.NormalizePath")

	_, found, err = cat.MtimeOf(t.Context(), key+"/")
	require.NoError(t, err)
	require.False(t, found, "no row should exist under the un-normalized, separator-suffixed key")
}
