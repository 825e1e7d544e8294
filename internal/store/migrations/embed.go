// Package migrations embeds the SQL migrations for the showroom cache DB.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
