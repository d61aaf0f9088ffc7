// Package sqlite is the persistent store for the club ledger.
// It holds account summaries, the append-only transaction history, the
// account directory and the remembered tier per member, in one SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "clube.db"

// DB wraps the SQLite handle. All ledger writes go through single SQL
// transactions, so a reader never sees a summary without its transaction.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database in dir and applies the schema.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	dsn := "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(1)"

	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection keeps writers queued in
	// Go instead of failing with SQLITE_BUSY.
	sqldb.SetMaxOpenConns(1)

	d := &DB{db: sqldb}
	if err := d.migrate(); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return d, nil
}

// Close releases the database handle.
func (d *DB) Close() error { return d.db.Close() }

// Ping checks the database is reachable.
func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

func (d *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := d.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Account directory
		`CREATE TABLE IF NOT EXISTS profiles (
			account_id TEXT PRIMARY KEY,
			email      TEXT NOT NULL,
			email_norm TEXT NOT NULL,
			full_name  TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_profiles_email ON profiles(email_norm)`,

		// Ledger summaries (one per member)
		`CREATE TABLE IF NOT EXISTS member_accounts (
			account_id       TEXT PRIMARY KEY,
			is_member        INTEGER NOT NULL DEFAULT 0,
			tier             TEXT NOT NULL,
			balance          TEXT NOT NULL DEFAULT '0',
			total_credits    TEXT NOT NULL DEFAULT '0',
			total_debits     TEXT NOT NULL DEFAULT '0',
			qualifying_count INTEGER NOT NULL DEFAULT 0 CHECK(qualifying_count >= 0),
			member_since     INTEGER,
			last_credit_at   INTEGER,
			version          INTEGER NOT NULL DEFAULT 0,
			updated_at       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_member ON member_accounts(is_member)`,

		// Append-only transaction history. legacy_owner_id is the deprecated
		// owner column written by older clients.
		`CREATE TABLE IF NOT EXISTS club_transactions (
			id              TEXT PRIMARY KEY,
			account_id      TEXT,
			legacy_owner_id TEXT,
			kind            TEXT NOT NULL CHECK(kind IN ('credit', 'debit')),
			amount          TEXT NOT NULL,
			base_amount     TEXT NOT NULL DEFAULT '0',
			cashback_amount TEXT NOT NULL DEFAULT '0',
			is_qualifying   INTEGER NOT NULL DEFAULT 0,
			description     TEXT NOT NULL DEFAULT '',
			source          TEXT NOT NULL,
			created_by      TEXT NOT NULL DEFAULT '',
			created_at      INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_owner ON club_transactions(account_id, created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_legacy_owner ON club_transactions(legacy_owner_id, created_at DESC, id DESC)`,

		// Last tier announced to each member
		`CREATE TABLE IF NOT EXISTS tier_memory (
			account_id TEXT PRIMARY KEY,
			tier       TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
}

// ─── Encoding Helpers ───────────────────────────────────────────────────────
// Timestamps are stored as unix nanoseconds so ordering is numeric.

func unixNano(t time.Time) int64 { return t.UnixNano() }

func fromUnixNano(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromUnixNano(n.Int64)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
