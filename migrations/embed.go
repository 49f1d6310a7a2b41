// Package migrations embeds the SQL schema into the binary so the service
// can migrate without the files present on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/boardflow-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
