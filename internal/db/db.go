// Package db is the sqlite archive for pruned history entries. Pruning keeps
// the flat JSON log bounded; the archive keeps the old observations queryable.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/valutatrade/valutatrade-hub/internal/rates"
)

type DB struct {
	sql *sql.DB
}

func Open(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dbPath)
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	sqldb.SetMaxOpenConns(1) // SQLite best practice for embedded use
	sqldb.SetConnMaxLifetime(0)

	db := &DB{sql: sqldb}
	if err := db.migrate(context.Background()); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS history (
			id TEXT PRIMARY KEY,
			from_currency TEXT NOT NULL,
			to_currency TEXT NOT NULL,
			rate REAL NOT NULL,
			timestamp INTEGER NOT NULL,
			source TEXT NOT NULL,
			meta TEXT NOT NULL DEFAULT '{}',
			archived_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_history_pair_ts ON history(from_currency, to_currency, timestamp);`,
	}
	for _, s := range stmts {
		if _, err := d.sql.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// ArchiveEntries inserts pruned history entries in one transaction. Entries
// already archived (same id) are skipped so a retried prune stays idempotent.
func (d *DB) ArchiveEntries(ctx context.Context, entries []rates.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO history
		(id, from_currency, to_currency, rate, timestamp, source, meta, archived_at)
		VALUES (?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, e := range entries {
		meta, err := json.Marshal(e.Meta)
		if err != nil {
			meta = []byte("{}")
		}
		if _, err := stmt.ExecContext(ctx, e.ID, e.FromCurrency, e.ToCurrency, e.Rate,
			e.Timestamp.Unix(), e.Source, string(meta), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Query returns archived entries, newest first. from/to and source filter
// when non-empty; limit <= 0 means no limit.
func (d *DB) Query(ctx context.Context, from, to, source string, limit int) ([]rates.HistoryEntry, error) {
	q := `SELECT id, from_currency, to_currency, rate, timestamp, source, meta FROM history WHERE 1=1`
	args := []any{}
	if from != "" {
		q += ` AND from_currency=?`
		args = append(args, from)
	}
	if to != "" {
		q += ` AND to_currency=?`
		args = append(args, to)
	}
	if source != "" {
		q += ` AND source=?`
		args = append(args, source)
	}
	q += ` ORDER BY timestamp DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rates.HistoryEntry
	for rows.Next() {
		var e rates.HistoryEntry
		var ts int64
		var meta string
		if err := rows.Scan(&e.ID, &e.FromCurrency, &e.ToCurrency, &e.Rate, &ts, &e.Source, &meta); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(ts, 0).UTC()
		if err := json.Unmarshal([]byte(meta), &e.Meta); err != nil {
			e.Meta = map[string]any{}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM history`).Scan(&n)
	return n, err
}
