// Package migrations holds the numbered schema scripts of the index
// database. Only the *.up.sql files are applied; the down scripts are
// kept for manual rollback.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
