package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// openTestDB opens a WAL database in a temporary directory.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return db
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var", "lib", "nvdisplay", "audit.db")

	db, err := Open(Config{Path: path, WALMode: true, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("database file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != filePermissions {
		t.Errorf("file mode = %o, want %o", perm, filePermissions)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(Config{})
	if err == nil || !strings.Contains(err.Error(), "empty path") {
		t.Errorf("Open() error = %v, want empty path error", err)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	tests := []struct {
		name    string
		wal     bool
		journal string
	}{
		{"wal", true, "wal"},
		{"rollback journal", false, "delete"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := Open(Config{Path: filepath.Join(t.TempDir(), "audit.db"), WALMode: tt.wal, BusyTimeout: 3})
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer db.Close() //nolint:errcheck // Test cleanup

			ctx := context.Background()
			var journal string
			if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journal); err != nil {
				t.Fatalf("journal_mode: %v", err)
			}
			if journal != tt.journal {
				t.Errorf("journal_mode = %q, want %q", journal, tt.journal)
			}

			var busy int
			if err := db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy); err != nil {
				t.Fatalf("busy_timeout: %v", err)
			}
			if busy != 3000 {
				t.Errorf("busy_timeout = %d ms, want 3000", busy)
			}

			var fk int
			if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
				t.Fatalf("foreign_keys: %v", err)
			}
			if fk != 1 {
				t.Error("foreign keys not enforced")
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	db := openTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.HealthCheck(ctx); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := db.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := db.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() after Close should fail")
	}
}

func TestClose_NilHandle(t *testing.T) {
	db := &DB{}
	if err := db.Close(); err != nil {
		t.Errorf("Close() on nil handle error = %v", err)
	}
}

func TestExecContext_WrapsErrors(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE samples (display_id TEXT NOT NULL, value INTEGER)"); err != nil {
		t.Fatalf("CREATE error = %v", err)
	}
	res, err := db.ExecContext(ctx, "INSERT INTO samples VALUES (?, ?)", "0:0", 512)
	if err != nil {
		t.Fatalf("INSERT error = %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Errorf("RowsAffected() = %d, want 1", n)
	}

	_, err = db.ExecContext(ctx, "INSERT INTO samples VALUES (NULL, 1)")
	if err == nil || !strings.HasPrefix(err.Error(), "executing query:") {
		t.Errorf("NOT NULL violation error = %v, want executing query prefix", err)
	}
}

func TestBeginTx(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "CREATE TABLE writes (attribute TEXT)"); err != nil {
		t.Fatalf("CREATE error = %v", err)
	}

	count := func() int {
		t.Helper()
		var n int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM writes").Scan(&n); err != nil {
			t.Fatalf("COUNT error = %v", err)
		}
		return n
	}

	for _, commit := range []bool{false, true} {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("BeginTx() error = %v", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO writes VALUES (?)", "vibrance"); err != nil {
			t.Fatalf("INSERT error = %v", err)
		}
		if commit {
			err = tx.Commit()
		} else {
			err = tx.Rollback()
		}
		if err != nil {
			t.Fatalf("commit=%v: %v", commit, err)
		}
	}

	if n := count(); n != 1 {
		t.Errorf("rows = %d, want only the committed one", n)
	}
}

func TestStats_SingleConnection(t *testing.T) {
	db := openTestDB(t)
	defer db.Close() //nolint:errcheck // Test cleanup

	if got := db.Stats().MaxOpenConnections; got != 1 {
		t.Errorf("MaxOpenConnections = %d, want 1", got)
	}
}

func TestDSN(t *testing.T) {
	got := dsn(Config{Path: "/var/lib/nvdisplay/audit.db", WALMode: true, BusyTimeout: 5})
	for _, want := range []string{"file:/var/lib/nvdisplay/audit.db?", "_busy_timeout=5000", "_foreign_keys=on", "_journal_mode=WAL", "_synchronous=NORMAL"} {
		if !strings.Contains(got, want) {
			t.Errorf("dsn() = %q, missing %q", got, want)
		}
	}

	if got := dsn(Config{Path: "audit.db"}); strings.Contains(got, "_journal_mode") {
		t.Errorf("dsn() without WAL = %q, want no journal mode", got)
	}
}
