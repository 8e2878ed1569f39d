// Package migrations holds the schema for the PostgreSQL store. Each file
// registers one bun migration named after its timestamp prefix.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
