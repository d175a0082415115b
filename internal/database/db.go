package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
	path string
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database connection
	// Use WAL mode for better concurrency
	conn, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Test connection
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)

	return &DB{
		conn: conn,
		path: dbPath,
	}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB connection
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Migrate creates the schema if it does not exist yet.
func (db *DB) Migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			account_id   TEXT PRIMARY KEY,
			cash_balance REAL NOT NULL DEFAULT 0,
			active       INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS positions (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id    TEXT NOT NULL,
			symbol        TEXT NOT NULL,
			quantity      REAL NOT NULL,
			entry_price   REAL NOT NULL,
			current_price REAL NOT NULL DEFAULT 0,
			strategy_tag  TEXT NOT NULL DEFAULT '',
			opened_at     TIMESTAMP NOT NULL,
			last_updated  TIMESTAMP NOT NULL,
			UNIQUE(account_id, symbol)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id         TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			type       TEXT NOT NULL,
			urgency    TEXT NOT NULL,
			symbol     TEXT,
			message    TEXT NOT NULL,
			data       TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_account_created
			ON alerts(account_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS trade_executions (
			id               TEXT PRIMARY KEY,
			alert_id         TEXT NOT NULL,
			account_id       TEXT NOT NULL,
			symbol           TEXT NOT NULL,
			action           TEXT NOT NULL,
			quantity_delta   REAL NOT NULL,
			price            REAL NOT NULL,
			mode             TEXT NOT NULL,
			outcome          TEXT NOT NULL,
			rejection_reason TEXT,
			reason           TEXT,
			executed_at      TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_account_executed
			ON trade_executions(account_id, executed_at)`,
		`CREATE TABLE IF NOT EXISTS orders (
			execution_id TEXT PRIMARY KEY,
			account_id   TEXT NOT NULL,
			symbol       TEXT NOT NULL,
			side         TEXT NOT NULL,
			quantity     REAL NOT NULL,
			price        REAL NOT NULL,
			status       TEXT NOT NULL,
			created_at   TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			data       BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_account_created
			ON snapshots(account_id, created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Begin starts a new transaction
func (db *DB) Begin() (*sql.Tx, error) {
	return db.conn.Begin()
}

// Exec executes a query without returning rows
func (db *DB) Exec(query string, args ...interface{}) (sql.Result, error) {
	return db.conn.Exec(query, args...)
}

// Query executes a query that returns rows
func (db *DB) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return db.conn.Query(query, args...)
}

// QueryRow executes a query that returns at most one row
func (db *DB) QueryRow(query string, args ...interface{}) *sql.Row {
	return db.conn.QueryRow(query, args...)
}
