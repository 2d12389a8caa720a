// Package migrations embeds the schema of the auth audit tables.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
