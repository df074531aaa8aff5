// Package selector implements the pure classification function that decides,
// for each path the Walker visits (incremental pass) or each row the Catalog
// yields (cyclic pass), whether to admit it to the archiver, skip it with a
// counted reason, or drop it silently.
//
// Classification never touches the pending set or writes to the archiver
// directly; admission side effects (pending-set insert, stdin write) are the
// caller's responsibility so this package stays a pure decision procedure,
// matching spec.md §4.3's "pure function over (path, stat, context)".
package selector

import (
	"context"
	"os"
	"regexp"
	"strings"
	"syscall"
	"time"

	"cyclicbackup/internal/catalog"
	"cyclicbackup/internal/counters"
	"cyclicbackup/internal/sizebudget"
)

// Reason names why a path was skipped or dropped; it maps 1-to-1 to a
// counter, except for the silent drops which carry ReasonNone.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonExcluded
	ReasonTooRecent
	ReasonSameOld
	ReasonPermissions
	ReasonCyclic
	ReasonRemoved
)

// Outcome is one of Admit, Skip (the size budget could not take the entry;
// no counter is bumped), or Drop (silent or counted via Reason, depending
// on the call site's §4.3 step).
type Outcome int

const (
	Admit Outcome = iota
	Skip
	Drop
)

// Decision is the result of classifying a single path.
type Decision struct {
	Outcome Outcome
	Reason  Reason
}

// Context carries everything classification needs that is constant across a
// whole pass: compiled exclude patterns, the exclude-flag filename, the
// paths the run must never archive itself, the starting device id, the
// min-age cutoff, and the blacklist of directories suppressed by an
// exclude-flag file.
type Context struct {
	ExcludePatterns []*regexp.Regexp
	ExcludeFlag     string
	CatalogPath     string
	TargetPath      string
	StartDevice     uint64
	MinAgeCutoff    time.Time
	Blacklist       map[string]struct{}
}

// InBlacklist reports whether path is under any directory registered in the
// blacklist (an exclude-flag file was found in that directory).
func (c *Context) InBlacklist(path string) bool {
	for bl := range c.Blacklist {
		if strings.HasPrefix(path, bl) {
			return true
		}
	}
	return false
}

// ExcludeMatch reports whether probe (the path, with a trailing separator
// appended for directories) matches any configured exclude pattern. Matching
// is substring-regex, per spec.md §4.3.
func (c *Context) ExcludeMatch(probe string) bool {
	for _, pt := range c.ExcludePatterns {
		if pt.MatchString(probe) {
			return true
		}
	}
	return false
}

// probe returns path with a trailing separator appended when isDir is true,
// the form exclude patterns are matched against (spec.md §4.3 step 2).
func probe(path string, isDir bool) string {
	if isDir {
		return path + string(os.PathSeparator)
	}
	return path
}

// ClassifyIncremental implements spec.md §4.3's incremental-pass algorithm.
//
// The mtime-compare-against-catalog step normalizes path (stripping the
// leading separator, as the archiver will see it) *before* querying the
// catalog — resolving spec.md §9's open question on normalization order
// in favor of the original reference implementation's behavior, where
// `fullname[1:]` is computed before the `select mtime` lookup.
func ClassifyIncremental(
	ctx context.Context,
	cat *catalog.Catalog,
	budget *sizebudget.Budget,
	cctx *Context,
	path string,
	info os.FileInfo,
	cnt *counters.Counters,
) Decision {
	isDir := info.IsDir()

	if cctx.InBlacklist(path) {
		cnt.Excluded.Add(1)
		return Decision{Outcome: Drop, Reason: ReasonExcluded}
	}

	if cctx.ExcludeMatch(probe(path, isDir)) {
		cnt.Excluded.Add(1)
		return Decision{Outcome: Drop, Reason: ReasonExcluded}
	}

	if path == cctx.CatalogPath || path == cctx.TargetPath {
		return Decision{Outcome: Drop}
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if ok && uint64(stat.Dev) != cctx.StartDevice {
		return Decision{Outcome: Drop}
	}
	if ok && stat.Mode&syscall.S_IFMT == syscall.S_IFSOCK {
		return Decision{Outcome: Drop}
	}

	if info.ModTime().After(cctx.MinAgeCutoff) {
		cnt.TooRecent.Add(1)
		return Decision{Outcome: Drop, Reason: ReasonTooRecent}
	}

	normalized := NormalizePath(path, isDir)

	mtime := info.ModTime().Unix()
	if existing, found, err := cat.MtimeOf(ctx, normalized); err == nil && found && existing == mtime {
		cnt.SameOld.Add(1)
		return Decision{Outcome: Drop, Reason: ReasonSameOld}
	}

	if !isDir {
		if err := syscall.Access(path, syscall.R_OK); err != nil {
			cnt.Permissions.Add(1)
			return Decision{Outcome: Drop, Reason: ReasonPermissions}
		}
	}

	if !budget.Reserve(info.Size()) {
		return Decision{Outcome: Skip}
	}

	cnt.Incremental.Add(1)
	return Decision{Outcome: Admit}
}

// ClassifyCyclic implements spec.md §4.3's cyclic-pass algorithm for a row
// (path, volume) read from the catalog in ascending volume order.
func ClassifyCyclic(
	ctx context.Context,
	cat *catalog.Catalog,
	budget *sizebudget.Budget,
	cctx *Context,
	row catalog.Row,
	cnt *counters.Counters,
) Decision {
	path := "/" + row.Path

	if cctx.InBlacklist(path) {
		cnt.Removed.Add(1)
		_ = cat.DeleteFile(ctx, row.Path)
		return Decision{Outcome: Drop, Reason: ReasonRemoved}
	}

	info, err := os.Lstat(path)
	if cctx.ExcludeMatch(probe(path, err == nil && info.IsDir())) {
		cnt.Removed.Add(1)
		_ = cat.DeleteFile(ctx, row.Path)
		return Decision{Outcome: Drop, Reason: ReasonRemoved}
	}

	if os.IsNotExist(err) {
		cnt.Removed.Add(1)
		_ = cat.DeleteFile(ctx, row.Path)
		return Decision{Outcome: Drop, Reason: ReasonRemoved}
	}
	if err != nil {
		// Any other lstat error is treated conservatively: leave the row
		// alone and drop silently this run; it will be retried next time.
		return Decision{Outcome: Drop}
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if ok && stat.Mode&syscall.S_IFMT == syscall.S_IFSOCK {
		return Decision{Outcome: Drop}
	}

	if info.ModTime().After(cctx.MinAgeCutoff) {
		cnt.Removed.Add(1)
		_ = cat.DeleteFile(ctx, row.Path)
		return Decision{Outcome: Drop, Reason: ReasonRemoved}
	}

	if !budget.Reserve(info.Size()) {
		return Decision{Outcome: Drop}
	}

	cnt.Cyclic.Add(1)
	return Decision{Outcome: Admit}
}

// NormalizePath strips the leading path separator and cleans trailing
// separators, the form under which catalog rows and pending-set keys are
// keyed (spec.md §4.3's "Admit side-effect").
func NormalizePath(path string, isDir bool) string {
	stripped := strings.TrimPrefix(path, string(os.PathSeparator))
	if isDir {
		return strings.TrimRight(stripped, string(os.PathSeparator))
	}
	return stripped
}
