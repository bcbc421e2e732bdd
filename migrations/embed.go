// Package migrations embeds the gateway's SQL migration files into the binary.
//
// Importing this package registers the files with the database package, so
// migrations run without the SQL files present on the filesystem.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.RegisterMigrations(migrationsFS, ".")
}
