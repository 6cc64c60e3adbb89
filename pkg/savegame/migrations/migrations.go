// Package migrations embeds the SQLite schema for save slots.
package migrations

import "embed"

// FS holds the ordered .sql migration files.
//
//go:embed *.sql
var FS embed.FS
