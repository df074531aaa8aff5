// Package walker implements the incremental pass's filesystem traversal.
//
// This is a hand-rolled depth-first walk rather than filepath.WalkDir,
// for one reason that matters for correctness: an exclude-flag file
// (.nobackup, or whatever name is configured) must register its directory
// in the blacklist *before* the walker recurses into that directory's own
// subdirectories. filepath.WalkDir visits a directory's children in a
// single pre-sorted batch with no hook point between "read this directory's
// entries" and "recurse into its subdirectories" — exactly the hook this
// walker needs.
//
// Ordering: within a directory, regular files are visited before
// subdirectories, so a Walk always emits a directory's own files to the
// selector before it emits anything from nested directories. Symlinks are
// never followed: every stat is an Lstat. The walked root itself is never
// visited, only its descendants.
package walker

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"cyclicbackup/internal/sizebudget"
)

// Visit is called once per entry Walk encounters, after Lstat, before any
// classification decision. Walk passes the caller's selector.Context
// indirectly: the caller closes over whatever it needs.
type Visit func(path string, info os.FileInfo) error

// Options configures a single root's traversal.
type Options struct {
	// ExcludeFlag is a filename that, when present in a directory, adds
	// that directory (and everything under it) to the blacklist before
	// the walker recurses into it. Empty disables the check.
	ExcludeFlag string

	// RegisterBlacklist is called with a directory path the moment an
	// exclude-flag file is found in it. The caller owns blacklist storage
	// (selector.Context.Blacklist); Walk only discovers and reports it.
	RegisterBlacklist func(dir string)

	// Budget, when non-nil, is polled before descending into each new
	// directory; once filled, Walk stops recursing and returns nil (a
	// filled budget is a normal stop condition, not an error).
	Budget *sizebudget.Budget
}

// Walk performs a depth-first traversal of root, calling visit for every
// file and directory *under* root — never for root itself, matching the
// reference walker (original_source/pybackup2.py's os.walk loop only
// classifies the `files`/`dirs` entries each iteration yields, never the
// directory being walked). If root is not itself a directory, it has no
// children to distinguish it from, and is visited directly.
//
// It never follows symlinks. Individual Lstat/ReadDir errors on a subtree
// are swallowed rather than reported through a synthetic zero-info visit
// call — callers that need per-error reporting should inspect the error
// returned by visit, since os.ReadDir failures on a single directory do not
// abort the whole walk.
func Walk(ctx context.Context, root string, opts Options, visit Visit) error {
	info, err := os.Lstat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return visit(root, info)
	}
	return walkChildren(ctx, root, opts, visit)
}

// walk visits path itself, then (if path is a directory) its children.
func walk(ctx context.Context, path string, info os.FileInfo, opts Options, visit Visit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if opts.Budget != nil && opts.Budget.IsFilled() {
		return nil
	}

	if err := visit(path, info); err != nil {
		return err
	}

	if !info.IsDir() {
		return nil
	}

	return walkChildren(ctx, path, opts, visit)
}

// walkChildren registers path's blacklist status, if applicable, then visits
// path's files before its subdirectories, recursing into each via walk. It
// never calls visit on path itself, so it is safe to use both for root
// (which must never be classified) and for nested directories (already
// visited by their parent's call into walk before reaching here).
func walkChildren(ctx context.Context, path string, opts Options, visit Visit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if opts.Budget != nil && opts.Budget.IsFilled() {
		return nil
	}

	if opts.ExcludeFlag != "" {
		if _, err := os.Lstat(filepath.Join(path, opts.ExcludeFlag)); err == nil {
			if opts.RegisterBlacklist != nil {
				opts.RegisterBlacklist(path)
			}
		}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		// A directory we can no longer read (permissions changed under us,
		// race with deletion) does not abort the whole run.
		return nil
	}

	var files, dirs []os.DirEntry
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e)
		} else {
			files = append(files, e)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name() < files[j].Name() })
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name() < dirs[j].Name() })

	for _, e := range files {
		childPath := filepath.Join(path, e.Name())
		childInfo, err := e.Info()
		if err != nil {
			continue
		}
		if err := walk(ctx, childPath, childInfo, opts, visit); err != nil {
			return err
		}
	}

	for _, e := range dirs {
		if opts.Budget != nil && opts.Budget.IsFilled() {
			return nil
		}
		childPath := filepath.Join(path, e.Name())
		childInfo, err := e.Info()
		if err != nil {
			continue
		}
		if err := walk(ctx, childPath, childInfo, opts, visit); err != nil {
			return err
		}
	}

	return nil
}
