// Package migrations embeds the PostgreSQL schema applied by cmd/migrate.
package migrations

import "embed"

// FS holds every *.up.sql migration, applied in lexical order.
//
//go:embed *.sql
var FS embed.FS
