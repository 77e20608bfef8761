// Package migrations embeds the goose SQL migrations of the identity service.
package migrations

import "embed"

// FS holds the versioned migrations applied by database.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
