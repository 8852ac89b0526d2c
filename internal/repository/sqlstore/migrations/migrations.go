// Package migrations embeds the goose SQL migrations.
//
// Every statement is written in the subset of SQL shared by SQLite and
// PostgreSQL, so one set of files serves both drivers.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
