// Package ackreader implements the single-threaded reader over the
// packer's stderr stream that correlates acknowledgment lines against the
// pending set and commits catalog rows.
//
// Grounded on original_source/pybackup2.py's handle_finished: read a line,
// reconstruct the absolute path, lstat it for its current mtime, and
// replace the catalog row for current_volume. This is the only writer of
// current-volume catalog rows and the only place backed_up is incremented,
// which is what guarantees an acknowledgment never outruns its admission.
package ackreader

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"cyclicbackup/internal/catalog"
	"cyclicbackup/internal/counters"
	"cyclicbackup/internal/errbuf"
	"cyclicbackup/internal/pendingset"
)

// Run reads lines from stderr until EOF. Each line is first checked against
// pending: if present, it is an acknowledgment for an admitted member and
// is removed from pending, lstat'd, and upserted into the catalog under
// volume. Otherwise the raw line is a packer diagnostic and is appended to
// buf's error list.
//
// Run returns when stderr reaches EOF or a read error occurs; a read error
// is returned to the caller, an EOF is not.
func Run(ctx context.Context, stderr io.Reader, pending *pendingset.Set, cat *catalog.Catalog, volume int, cnt *counters.Counters, buf *errbuf.Buffer) error {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		key := strings.TrimSuffix(line, "/")

		if !pending.Remove(key) {
			buf.AddError(line)
			continue
		}

		absPath := "/" + line
		info, err := os.Lstat(absPath)
		if err != nil {
			buf.AddError("ackreader: lstat " + absPath + ": " + err.Error())
			continue
		}

		// key, not line: the catalog is keyed the same way the pending set
		// and selector.NormalizePath are, without a trailing separator for
		// directory members, so the next run's same-old comparison hits.
		if err := cat.UpsertFile(ctx, key, info.ModTime().Unix(), volume); err != nil {
			buf.AddError("ackreader: upsert " + absPath + ": " + err.Error())
			continue
		}

		cnt.BackedUp.Add(1)
	}

	return scanner.Err()
}
