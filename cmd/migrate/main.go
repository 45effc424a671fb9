package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"minder/internal/config"
	"minder/internal/db"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	switch cfg.Database.Driver {
	case "postgres":
		database, err := db.New(cfg.Database)
		if err != nil {
			log.Fatalf("Unable to connect to database: %v", err)
		}
		defer database.Close()

		if err := database.Migrate(ctx); err != nil {
			log.Fatalf("Error executing migration: %v", err)
		}
	case "sqlite":
		// Opening applies the schema.
		database, err := db.OpenSQLite(ctx, cfg.Database.Path)
		if err != nil {
			log.Fatalf("Error executing migration: %v", err)
		}
		defer database.Close()
	default:
		log.Printf("Driver %q has no schema to migrate", cfg.Database.Driver)
		os.Exit(0)
	}

	log.Println("Migration completed successfully")
}
