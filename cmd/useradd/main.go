package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"minder/internal/config"
	"minder/internal/db"
	"minder/internal/users"

	"github.com/jmhodges/clock"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	username := flag.String("username", "", "login name")
	password := flag.String("password", os.Getenv("MINDER_USER_PASSWORD"), "password (defaults to $MINDER_USER_PASSWORD)")
	admin := flag.Bool("admin", false, "grant admin rights")
	reset := flag.Bool("reset", false, "reset the password of an existing user")
	disable := flag.Bool("disable", false, "disable an existing user")
	flag.Parse()

	if err := run(*configPath, *username, *password, *admin, *reset, *disable); err != nil {
		fmt.Fprintf(os.Stderr, "useradd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, username, password string, admin, reset, disable bool) error {
	if username == "" {
		return errors.New("-username is required")
	}

	_ = godotenv.Load()
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	kv, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer kv.Close()

	store := users.NewStore(kv, cfg.Web.BcryptCost, clock.New())

	switch {
	case disable:
		if err := store.SetEnabled(ctx, username, false); err != nil {
			return err
		}
		fmt.Printf("Disabled %s\n", username)
	case reset:
		if err := store.SetPassword(ctx, username, password); err != nil {
			return err
		}
		fmt.Printf("Password of %s updated\n", username)
	default:
		u, err := store.Create(ctx, username, password, admin)
		if err != nil {
			return err
		}
		fmt.Printf("Created %s (%s)\n", u.Username, u.ID)
	}
	return nil
}
