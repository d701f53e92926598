// Package migrations holds the schema of the rule store, one directory per
// database driver.
package migrations

import "embed"

// FS contains sqlite/*.sql and postgres/*.sql.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
