package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const (
	kindIDSet    = "idset"
	kindSnapshot = "snapshot"
)

// DB is the SQLite-backed cache. It runs in WAL mode so the CLI and a
// running daemon can read concurrently.
type DB struct {
	conn *sqlx.DB
	path string
	now  func() time.Time
}

var _ Cache = (*DB)(nil)

// Open creates or opens the cache database at path.
//
// The caller MUST call Close() when done so the WAL is checkpointed.
//
// Example:
//
//	db, err := cache.Open(filepath.Join(dataDir, "cache.db"))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string, opts ...Option) (*DB, error) {
	o := buildOptions(opts)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sqlx.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
		now:  o.now,
	}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close checkpoints the WAL and closes the connection.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cache: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the cache tables if they don't exist. Idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the cache tables with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		key TEXT PRIMARY KEY,
		kind TEXT NOT NULL,   -- idset, snapshot
		value TEXT NOT NULL,  -- JSON
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pending_mutations (
		queue TEXT NOT NULL,   -- pendingMutations:{actor}
		target TEXT NOT NULL,
		scope TEXT NOT NULL,
		seq INTEGER NOT NULL,
		enqueued_at TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		exhausted INTEGER NOT NULL DEFAULT 0,
		payload BLOB,
		last_error TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (queue, target)
	);

	CREATE INDEX IF NOT EXISTS idx_pending_scope ON pending_mutations(queue, scope);
	CREATE INDEX IF NOT EXISTS idx_pending_seq ON pending_mutations(queue, seq);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return nil
}

type entryRow struct {
	Value     string `db:"value"`
	UpdatedAt string `db:"updated_at"`
}

func (db *DB) readEntry(ctx context.Context, key string) (entryRow, bool, error) {
	var row entryRow
	err := db.conn.GetContext(ctx, &row, `SELECT value, updated_at FROM entries WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return entryRow{}, false, nil
	}
	if err != nil {
		return entryRow{}, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return row, true, nil
}

func (db *DB) writeEntry(ctx context.Context, key, kind string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	query := `
	INSERT INTO entries (key, kind, value, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		kind = excluded.kind,
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	if _, err := db.conn.ExecContext(ctx, query, key, kind, string(data), db.now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// ReadIDSet returns the id set stored under key.
func (db *DB) ReadIDSet(ctx context.Context, key string) (IDSet, bool, error) {
	row, found, err := db.readEntry(ctx, key)
	if err != nil || !found {
		return IDSet{}, found, err
	}

	var ids []string
	if err := json.Unmarshal([]byte(row.Value), &ids); err != nil {
		return IDSet{}, false, fmt.Errorf("failed to decode id set %s: %w", key, err)
	}
	if ids == nil {
		ids = []string{}
	}

	return IDSet{IDs: ids, Freshness: parseTime(row.UpdatedAt)}, true, nil
}

// WriteIDSet replaces the id set stored under key.
func (db *DB) WriteIDSet(ctx context.Context, key string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	return db.writeEntry(ctx, key, kindIDSet, ids)
}

// ReadSnapshot decodes the snapshot stored under key into into.
func (db *DB) ReadSnapshot(ctx context.Context, key string, into any) (time.Time, bool, error) {
	row, found, err := db.readEntry(ctx, key)
	if err != nil || !found {
		return time.Time{}, found, err
	}

	if err := json.Unmarshal([]byte(row.Value), into); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	return parseTime(row.UpdatedAt), true, nil
}

// WriteSnapshot replaces the snapshot stored under key.
func (db *DB) WriteSnapshot(ctx context.Context, key string, value any) error {
	return db.writeEntry(ctx, key, kindSnapshot, value)
}

// Delete removes key. Deleting a missing key is not an error.
func (db *DB) Delete(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every entry whose key starts with prefix.
func (db *DB) DeletePrefix(ctx context.Context, prefix string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM entries WHERE substr(key, 1, ?) = ?`, len(prefix), prefix); err != nil {
		return fmt.Errorf("failed to delete prefix %s: %w", prefix, err)
	}
	return nil
}

// GetMeta returns a metadata value.
func (db *DB) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := db.conn.GetContext(ctx, &value, `SELECT value FROM meta WHERE key = ?`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read meta %s: %w", key, err)
	}
	return value, true, nil
}

// SetMeta stores a metadata value.
func (db *DB) SetMeta(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO meta (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := db.conn.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write meta %s: %w", key, err)
	}
	return nil
}

type pendingRow struct {
	Target     string `db:"target"`
	Scope      string `db:"scope"`
	Seq        int64  `db:"seq"`
	EnqueuedAt string `db:"enqueued_at"`
	Attempts   int    `db:"attempts"`
	Exhausted  bool   `db:"exhausted"`
	Payload    []byte `db:"payload"`
	LastError  string `db:"last_error"`
}

// PutPending inserts or replaces the pending mutation for rec.Target.
func (db *DB) PutPending(ctx context.Context, actor string, rec PendingRecord) error {
	query := `
	INSERT INTO pending_mutations (
		queue, target, scope, seq, enqueued_at, attempts, exhausted, payload, last_error
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(queue, target) DO UPDATE SET
		scope = excluded.scope,
		seq = excluded.seq,
		enqueued_at = excluded.enqueued_at,
		attempts = excluded.attempts,
		exhausted = excluded.exhausted,
		payload = excluded.payload,
		last_error = excluded.last_error
	`

	_, err := db.conn.ExecContext(ctx, query,
		PendingKey(actor),
		rec.Target,
		rec.Scope,
		int64(rec.Seq),
		rec.EnqueuedAt.UTC().Format(time.RFC3339Nano),
		rec.Attempts,
		rec.Exhausted,
		rec.Payload,
		rec.LastError,
	)
	if err != nil {
		return fmt.Errorf("failed to persist pending mutation %s: %w", rec.Target, err)
	}
	return nil
}

// DeletePending removes the pending mutation for target.
func (db *DB) DeletePending(ctx context.Context, actor, target string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM pending_mutations WHERE queue = ? AND target = ?`,
		PendingKey(actor), target)
	if err != nil {
		return fmt.Errorf("failed to delete pending mutation %s: %w", target, err)
	}
	return nil
}

// ListPending returns the actor's pending mutations in enqueue order.
func (db *DB) ListPending(ctx context.Context, actor string) ([]PendingRecord, error) {
	var rows []pendingRow
	err := db.conn.SelectContext(ctx, &rows, `
		SELECT target, scope, seq, enqueued_at, attempts, exhausted, payload, last_error
		FROM pending_mutations
		WHERE queue = ?
		ORDER BY seq`, PendingKey(actor))
	if err != nil {
		return nil, fmt.Errorf("failed to list pending mutations: %w", err)
	}

	records := make([]PendingRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, PendingRecord{
			Target:     r.Target,
			Scope:      r.Scope,
			Seq:        uint64(r.Seq),
			EnqueuedAt: parseTime(r.EnqueuedAt),
			Attempts:   r.Attempts,
			Exhausted:  r.Exhausted,
			Payload:    r.Payload,
			LastError:  r.LastError,
		})
	}
	return records, nil
}

// DeletePendingScope drops every pending mutation belonging to scope.
func (db *DB) DeletePendingScope(ctx context.Context, actor, scope string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM pending_mutations WHERE queue = ? AND scope = ?`,
		PendingKey(actor), scope)
	if err != nil {
		return fmt.Errorf("failed to drop pending mutations for %s: %w", scope, err)
	}
	return nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}
