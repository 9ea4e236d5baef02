// Package sqlite persists user aggregates and game leaderboards in a single
// SQLite file using the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// FileName is the database file created inside the data directory.
const FileName = "dojo.db"

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is the SQLite-backed store. A DB returned by Open runs each call in its
// own implicit transaction; inside Atomic the same methods run on the
// surrounding transaction.
type DB struct {
	db   *sql.DB
	q    querier
	tx   *sql.Tx
	path string

	defaultNextLevelXP int64
}

// Open creates dir if needed, opens dir/dojo.db and applies migrations.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	path := filepath.Join(dir, FileName)

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; WAL lets readers proceed alongside it.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	db := &DB{db: conn, q: conn, path: path, defaultNextLevelXP: 100}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.db.Close()
}

// Path returns the database file path.
func (db *DB) Path() string { return db.path }

// SetDefaultNextLevelXP sets the level-2 threshold used when a stored
// document carries none (legacy records).
func (db *DB) SetDefaultNextLevelXP(xp int64) {
	if xp > 0 {
		db.defaultNextLevelXP = xp
	}
}

// Ping checks the connection (health endpoint).
func (db *DB) Ping(ctx context.Context) error {
	return db.db.PingContext(ctx)
}

// ─── Schema ─────────────────────────────────────────────────────────────────

// Migrations returns the schema statements in order. Each string is a single
// SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		// Per-user aggregate document. xp/level are denormalized for ad-hoc
		// queries; the JSON document is authoritative.
		`CREATE TABLE IF NOT EXISTS user_aggregates (
			user_id        TEXT PRIMARY KEY,
			display_name   TEXT NOT NULL DEFAULT '',
			revision       INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			xp             INTEGER NOT NULL DEFAULT 0,
			level          INTEGER NOT NULL DEFAULT 1,
			document       TEXT NOT NULL,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_aggregates_xp ON user_aggregates(xp DESC, user_id)`,

		// Per-game top-K boards, one row per retained entry.
		`CREATE TABLE IF NOT EXISTS game_scores (
			id           TEXT PRIMARY KEY,
			game_id      TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			score        REAL NOT NULL,
			played_on    TEXT NOT NULL,
			submitted_at TEXT NOT NULL,
			position     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_game_scores_game ON game_scores(game_id, position)`,
	}
}

func (db *DB) migrate() error {
	for i, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

// ─── Transactions ───────────────────────────────────────────────────────────

// inTx runs fn on the current transaction, or on a new one committed when fn
// succeeds.
func (db *DB) inTx(ctx context.Context, fn func(tx *DB) error) error {
	if db.tx != nil {
		return fn(db)
	}
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	txdb := &DB{db: db.db, q: tx, tx: tx, path: db.path, defaultNextLevelXP: db.defaultNextLevelXP}
	if err := fn(txdb); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
