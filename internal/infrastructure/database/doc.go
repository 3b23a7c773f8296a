// Package database provides the SQLite store behind the attribute audit trail.
//
// The database runs in WAL mode with a single connection, a busy timeout
// and 0600 file permissions. Schema changes are versioned SQL files read
// from an fs.FS (the migrations package embeds the shipped ones):
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are NULLABLE or carry a DEFAULT,
// and every .up.sql ships with a .down.sql.
package database
