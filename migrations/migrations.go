// Package migrations embeds the SQL schema files so binaries and tests can apply
// them without depending on the working directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
