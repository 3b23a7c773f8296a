package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	pingTimeout     = 5 * time.Second
	connMaxLifetime = time.Hour
	connMaxIdleTime = 30 * time.Minute
)

// DB is the SQLite handle holding the attribute audit trail.
type DB struct {
	*sql.DB
	path string
}

// Config mirrors the database section of config.yaml.
type Config struct {
	Path string

	// WALMode lets audit readers proceed while a write commits.
	WALMode bool

	// BusyTimeout is the lock wait in seconds.
	BusyTimeout int
}

// dsn builds the go-sqlite3 connection string; pragmas are applied by
// the driver on every new connection.
func dsn(cfg Config) string {
	q := url.Values{}
	q.Set("_busy_timeout", strconv.Itoa(cfg.BusyTimeout*int(time.Second/time.Millisecond)))
	q.Set("_foreign_keys", "on")
	if cfg.WALMode {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	return "file:" + cfg.Path + "?" + q.Encode()
}

// Open connects to the audit database described by cfg.
//
// It performs the following setup:
//  1. Creates the database directory (0750) if it does not exist
//  2. Opens the file through go-sqlite3 with the busy timeout, foreign
//     keys and, when WALMode is set, WAL journalling
//  3. Pins the pool to one connection
//  4. Verifies the connection with a ping
//  5. Restricts the file to 0600
//
// Parameters:
//   - cfg: path, journal mode and lock wait
//
// Returns:
//   - *DB: connected handle; run Migrate before use
//   - error: if the path is empty or the database cannot be reached
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("opening database: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	sqlDB, err := sql.Open("sqlite3", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.Path, err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Path, err)
	}

	// Without WAL the file may not exist until the first write.
	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // See above

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// Close closes the database connection. The daemon calls it last during
// shutdown, after the API server and the audit recorder have stopped.
//
// Returns:
//   - error: if closing fails; nil for a zero DB
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the database file.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck runs a trivial query to prove the audit store is usable.
//
// Parameters:
//   - ctx: bounds the query
//
// Returns:
//   - error: nil if healthy, otherwise the failing query error
func (db *DB) HealthCheck(ctx context.Context) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// ExecContext runs a statement that returns no rows and prefixes any
// error with "executing query".
//
// Parameters:
//   - ctx: bounds the statement
//   - query: SQL with ? placeholders
//   - args: placeholder values
//
// Returns:
//   - sql.Result: LastInsertId and RowsAffected
//   - error: if execution fails
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	result, err := db.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return result, nil
}

// BeginTx starts a transaction. Migrations run one per version.
//
//	tx, err := db.BeginTx(ctx, nil)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback() // no-op after Commit
//	// ... statements on tx ...
//	return tx.Commit()
//
// Parameters:
//   - ctx: cancels the transaction if done before Commit
//   - opts: isolation level and read-only flag; nil for defaults
//
// Returns:
//   - *sql.Tx: the open transaction
//   - error: if it cannot be started
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}
