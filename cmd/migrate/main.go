package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/x3na-dev/x3na/internal/persistence"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: migrate <up|down|version>")
		fmt.Println("  up      - apply all pending migrations")
		fmt.Println("  down    - roll back the last migration")
		fmt.Println("  version - print the current schema version")
		fmt.Println()
		fmt.Println("Environment:")
		fmt.Println("  X3NA_POSTGRES_DSN    - Postgres connection string")
		fmt.Println("  X3NA_MIGRATIONS_DIR  - migrations directory (default: migrations)")
		os.Exit(1)
	}

	_ = godotenv.Load()

	pgURL := os.Getenv("X3NA_POSTGRES_DSN")
	if pgURL == "" {
		pgURL = "postgres://localhost:5432/x3na?sslmode=disable"
	}

	migrationsDir := os.Getenv("X3NA_MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = "migrations"
	}

	db, err := sql.Open("postgres", pgURL)
	if err != nil {
		log.Fatalf("FATAL: open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, migrationsDir)

	switch os.Args[1] {
	case "up":
		if err := migrator.Up(ctx); err != nil {
			log.Fatalf("FATAL: migrate up: %v", err)
		}
		log.Println("INFO: all migrations applied")

	case "down":
		if err := migrator.Down(ctx); err != nil {
			log.Fatalf("FATAL: migrate down: %v", err)
		}
		log.Println("INFO: last migration rolled back")

	case "version":
		v, err := migrator.Version(ctx)
		if err != nil {
			log.Fatalf("FATAL: migrate version: %v", err)
		}
		if v == "" {
			fmt.Println("no migrations applied")
		} else {
			fmt.Println(v)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s (use 'up', 'down', or 'version')\n", os.Args[1])
		os.Exit(1)
	}
}
