package migrations

import "embed"

// FS holds the MySQL schema migrations.
//
//go:embed *.sql
var FS embed.FS
