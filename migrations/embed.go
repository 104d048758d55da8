// Package migrations embeds the SQL migrations for both store backends.
// Migrations are embedded so they work regardless of working directory.
package migrations

import "embed"

// FS holds one directory of golang-migrate files per backend:
// postgres/ and sqlite/.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
