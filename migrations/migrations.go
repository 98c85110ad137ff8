// Package migrations embeds the per-tenant SQL migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
