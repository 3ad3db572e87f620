// Package migrations holds the goose SQL files for the core and queue schemas.
package migrations

import "embed"

// FS is read by internal/migrate.
//
//go:embed *.sql
var FS embed.FS
