// Package migrations embeds the CRM schema so binaries can apply it
// without shipping the .sql files alongside.
package migrations

import "embed"

// FS holds every NNNNNN_name.{up,down}.sql file in this directory
//
//go:embed *.sql
var FS embed.FS
