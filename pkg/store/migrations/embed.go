package migrations

import "embed"

// FS contains the embedded SQLite migrations for the relnotes index.
//
//go:embed *.sql
var FS embed.FS
