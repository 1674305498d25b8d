// Package migrations embeds the versioned schema migrations for the
// guestkiosk database. Each deployment that changes the schema adds a new
// numbered file; existing files are never edited.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
