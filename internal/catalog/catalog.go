// Package catalog implements the durable per-file record described by the
// backup system: for every path that has been archived, it remembers the
// modification time at which it was archived and the volume (run) that
// archived it.
//
// The catalog is the system's only persistent state. Everything else
// (pending set, counters, error buffers) lives for one run and is discarded.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

// Catalog wraps a single sqlite connection plus the mutex that serializes
// every mutation, per the backup system's concurrency model: one catalog
// connection, every mutation under its lock.
type Catalog struct {
	mu sync.Mutex
	db *sql.DB
}

// RetiredVolume names a volume row that was deleted because no catalog row
// referenced it any longer (invariant I2).
type RetiredVolume struct {
	Num     int
	Tarfile string
}

// Open opens or creates the sqlite-backed catalog at path. If the schema
// table is absent or empty, all three relations are created and schema
// version 1 is recorded.
func Open(ctx context.Context, path string) (*Catalog, error) {
	if path == "" {
		return nil, errors.New("open catalog: path is empty")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	// The catalog is mutated from multiple goroutines (AckReader, the
	// cyclic-pass selector, volume retirement). sqlite only supports one
	// writer at a time; pinning the pool to a single connection makes our
	// in-process mutex the sole source of serialization instead of relying
	// on sqlite's busy-timeout retries.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	c := &Catalog{db: db}

	if err := c.bootstrap(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	return c, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	statements := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}
	return nil
}

// bootstrap creates the files/volumes/schema relations if the schema table
// is absent or has no rows, then inserts schema version 1.
func (c *Catalog) bootstrap(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var exists int
	err := c.db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='schema'`,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check schema table: %w", err)
	}

	needsBootstrap := exists == 0
	if !needsBootstrap {
		var version int
		err := c.db.QueryRowContext(ctx, `SELECT version FROM schema LIMIT 1`).Scan(&version)
		if errors.Is(err, sql.ErrNoRows) {
			needsBootstrap = true
		} else if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
	}

	if !needsBootstrap {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bootstrap tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS files (
			name   TEXT NOT NULL UNIQUE,
			mtime  INTEGER NOT NULL,
			volume INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS files_volume ON files (volume ASC)`,
		`CREATE TABLE IF NOT EXISTS volumes (
			num     INTEGER NOT NULL UNIQUE,
			tarfile TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS schema (version INTEGER NOT NULL)`,
		`INSERT INTO schema (version) SELECT 1 WHERE NOT EXISTS (SELECT 1 FROM schema)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}

	return tx.Commit()
}

// CurrentVolume computes 1 + max(volume in catalog), or 1 if the catalog has
// no rows (invariant I5).
func (c *Catalog) CurrentVolume(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var maxVol sql.NullInt64
	err := c.db.QueryRowContext(ctx, `SELECT max(volume) FROM files`).Scan(&maxVol)
	if err != nil {
		return 0, fmt.Errorf("current volume: %w", err)
	}
	if !maxVol.Valid {
		return 1, nil
	}
	return int(maxVol.Int64) + 1, nil
}

// RecordVolume inserts a row into volumes for the run that is about to begin.
func (c *Catalog) RecordVolume(ctx context.Context, num int, tarfile string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO volumes (num, tarfile) VALUES (?, ?)`, num, tarfile)
	if err != nil {
		return fmt.Errorf("record volume %d: %w", num, err)
	}
	return nil
}

// UpsertFile replaces any existing row for path with the given mtime/volume.
// Called only by AckReader, after the archiver has acknowledged the path
// (invariant I4).
func (c *Catalog) UpsertFile(ctx context.Context, path string, mtime int64, volume int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx,
		`REPLACE INTO files (name, mtime, volume) VALUES (?, ?, ?)`, path, mtime, volume)
	if err != nil {
		return fmt.Errorf("upsert file %q: %w", path, err)
	}
	return nil
}

// DeleteFile removes the catalog row for path, if any. Idempotent.
func (c *Catalog) DeleteFile(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.ExecContext(ctx, `DELETE FROM files WHERE name = ?`, path)
	if err != nil {
		return fmt.Errorf("delete file %q: %w", path, err)
	}
	return nil
}

// MtimeOf returns the catalog's recorded mtime for path and whether a row
// exists at all. Used by the incremental selector's same_old check.
func (c *Catalog) MtimeOf(ctx context.Context, path string) (mtime int64, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	row := c.db.QueryRowContext(ctx, `SELECT mtime FROM files WHERE name = ?`, path)
	err = row.Scan(&mtime)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("mtime of %q: %w", path, err)
	}
	return mtime, true, nil
}

// Row is one (path, volume) pair yielded by IterOlderThan.
type Row struct {
	Path   string
	Volume int
}

// IterOlderThan returns, in ascending volume order, every catalog row with
// volume strictly less than the given volume. The cyclic pass consumes this
// to refresh the oldest previously-archived files first.
func (c *Catalog) IterOlderThan(ctx context.Context, volume int) ([]Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx,
		`SELECT name, volume FROM files WHERE volume < ? ORDER BY volume ASC, name ASC`, volume)
	if err != nil {
		return nil, fmt.Errorf("iter older than %d: %w", volume, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Path, &r.Volume); err != nil {
			return nil, fmt.Errorf("scan older-than row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RetireEmptyVolumes deletes any volumes row with zero referencing files and
// returns what it retired, so the caller can emit the advisory message
// required by invariant I2. The on-disk archive file is never touched here;
// retirement is bookkeeping only.
func (c *Catalog) RetireEmptyVolumes(ctx context.Context) ([]RetiredVolume, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.QueryContext(ctx, `
		SELECT v.num, v.tarfile, count(f.name)
		FROM volumes AS v
		LEFT JOIN files AS f ON f.volume = v.num
		GROUP BY v.num
	`)
	if err != nil {
		return nil, fmt.Errorf("scan volumes for retirement: %w", err)
	}

	var candidates []RetiredVolume
	for rows.Next() {
		var v RetiredVolume
		var count int
		if err := rows.Scan(&v.Num, &v.Tarfile, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan volume row: %w", err)
		}
		if count == 0 {
			candidates = append(candidates, v)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, v := range candidates {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM volumes WHERE num = ?`, v.Num); err != nil {
			return nil, fmt.Errorf("retire volume %d: %w", v.Num, err)
		}
	}

	return candidates, nil
}

// Close releases the sqlite connection. Safe to call on a nil Catalog.
func (c *Catalog) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}
