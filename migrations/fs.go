// Package migrations embeds the versioned SQL migrations applied at
// startup when AUTO_MIGRATE is enabled.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
