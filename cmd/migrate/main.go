// Command migrate applies the PostgreSQL schema migrations. The server can
// also migrate at startup (MIGRATIONS_DIR); this binary exists for deploy
// pipelines that migrate before rolling the fleet.
package main

import (
	"context"
	"log"
	"os"

	"github.com/skillswap/realtime/internal/store"
)

func main() {
	config := store.DefaultConfig()
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		config.DSN = dsn
	}

	migrationsDir := "migrations"
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		migrationsDir = v
	}

	db, err := store.Open(context.Background(), config)
	if err != nil {
		log.Fatalf("failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	if err := store.Migrate(db, migrationsDir); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("migrations applied")
}
