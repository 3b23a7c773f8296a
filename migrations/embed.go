// Package migrations embeds the SQL schema of the audit database so that
// the binary can migrate without the files on disk.
package migrations

import "embed"

//go:embed *.sql
var files embed.FS

// FS holds the migration files at its root.
var FS = files
