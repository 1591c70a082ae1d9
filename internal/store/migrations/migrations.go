// Package migrations embeds the goose migrations of the local sqlite store.
package migrations

import "embed"

// FS holds the numbered goose SQL files.
//
//go:embed *.sql
var FS embed.FS
