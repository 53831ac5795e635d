// Package migrations embeds the goose SQL migrations for the ledger
// database. The goose version table is what makes the ledger file
// "versioned": every schema change ships as a new numbered migration.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
