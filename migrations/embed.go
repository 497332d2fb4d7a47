// Package migrations holds the PostgreSQL schema.
package migrations

import "embed"

// FS contains the *.sql migration files.
//
//go:embed *.sql
var FS embed.FS
