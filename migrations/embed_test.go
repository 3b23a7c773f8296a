package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/database"
)

func TestEmbeddedMigrationsApply(t *testing.T) {
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "audit.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	ctx := context.Background()
	if err := db.Migrate(ctx, FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs").Scan(&count); err != nil {
		t.Fatalf("audit_logs not queryable: %v", err)
	}

	if err := db.MigrateDown(ctx, FS); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
}
