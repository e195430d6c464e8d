package sandbox

import (
	"embed"

	"github.com/bharatemr/practice/internal/platform/db"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// NewMigrator returns a migrator over the sandbox schema.
func NewMigrator(conn db.Conn) *db.Migrator {
	return db.NewMigrator(conn, migrationFiles, "migrations")
}
