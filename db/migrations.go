// Package db carries the SQL schema migrations compiled into the binary.
package db

import "embed"

// Migrations holds the goose SQL files under migrations/sql.
//
//go:embed migrations/sql/*.sql
var Migrations embed.FS
