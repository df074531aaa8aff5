package walker_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cyclicbackup/internal/sizebudget"
	"cyclicbackup/internal/walker"
)

func TestWalk_VisitsFilesBeforeSubdirsWithinADirectory(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("x"), 0o644))

	var visited []string
	err := walker.Walk(t.Context(), root, walker.Options{}, func(path string, info os.FileInfo) error {
		visited = append(visited, path)
		return nil
	})
	require.NoError(t, err)

	// root's own file, then its subdirectory, then the subdirectory's file.
	// root itself is never visited.
	require.Equal(t, []string{
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "sub"),
		filepath.Join(root, "sub", "b.txt"),
	}, visited)
}

func TestWalk_RegistersBlacklistBeforeDescending(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	sub := filepath.Join(root, "excluded")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sub, ".nobackup"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "child.txt"), []byte("x"), 0o644))

	var blacklisted []string
	var visited []string
	registeredAt := -1 // number of visits made when RegisterBlacklist fired
	err := walker.Walk(t.Context(), root, walker.Options{
		ExcludeFlag: ".nobackup",
		RegisterBlacklist: func(dir string) {
			blacklisted = append(blacklisted, dir)
			registeredAt = len(visited)
		},
	}, func(path string, info os.FileInfo) error {
		visited = append(visited, path)
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, []string{sub}, blacklisted)
	// The walker itself does not suppress descent; that is the selector's
	// job once RegisterBlacklist has fired. We only assert registration
	// happened before the child was visited.
	require.Contains(t, visited, filepath.Join(sub, "child.txt"))
	childIdx := indexOf(visited, filepath.Join(sub, "child.txt"))
	require.LessOrEqual(t, registeredAt, childIdx)
}

func TestWalk_StopsDescendingOnceBudgetFilled(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("x"), 0o644))

	budget := sizebudget.New(0) // zero cap: IsFilled is true from the start
	var visited []string
	err := walker.Walk(t.Context(), root, walker.Options{Budget: budget}, func(path string, info os.FileInfo) error {
		visited = append(visited, path)
		return nil
	})
	require.NoError(t, err)
	require.Empty(t, visited, "filled budget must stop recursion before entering any subdirectory")
}

func TestWalk_ContextCancellationAborts(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := walker.Walk(ctx, root, walker.Options{}, func(path string, info os.FileInfo) error {
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func indexOf(ss []string, s string) int {
	for i, v := range ss {
		if v == s {
			return i
		}
	}
	return -1
}
