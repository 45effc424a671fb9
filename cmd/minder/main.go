package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"minder/internal/api"
	"minder/internal/bot"
	"minder/internal/config"
	"minder/internal/db"
	"minder/internal/delivery"
	"minder/internal/fuzzytime"
	"minder/internal/logger"
	"minder/internal/manager"
	"minder/internal/reminder"
	"minder/internal/scheduler"
	"minder/internal/settings"
	"minder/internal/status"
	"minder/internal/users"

	"github.com/jmhodges/clock"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", envOr("MINDER_CONFIG", "config.yaml"), "path to the YAML configuration file")
	importSettings := flag.String("import-settings", "", "YAML user settings document to import before starting")
	flag.Parse()

	// Load environment variables from .env file
	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if envErr != nil {
		log.Debug("No .env file found")
	}

	if err := run(cfg, *importSettings, log); err != nil {
		log.Error("Application stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("Application shutdown complete")
}

func run(cfg *config.Config, importSettings string, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting minder", zap.String("driver", cfg.Database.Driver))

	kv, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer kv.Close()

	clk := clock.New()

	registry, err := settings.NewRegistry(log, settings.DefaultHandlers()...)
	if err != nil {
		return err
	}
	if err := registry.ValidateBotConfig(ctx, cfg.Bot); err != nil {
		return fmt.Errorf("bot configuration: %w", err)
	}
	userSettings := settings.NewStore(kv, registry, cfg.Bot)
	if importSettings != "" {
		us, err := userSettings.Import(ctx, importSettings)
		if err != nil {
			return fmt.Errorf("import settings: %w", err)
		}
		log.Info("Imported user settings", zap.String("member_id", us.MemberID), zap.String("path", importSettings))
	}

	recorder := status.NewRecorder(kv, clk, log)
	reminders := reminder.NewStore(kv, log)
	sched := scheduler.New(clk, log, cfg.Scheduler.DeliveryTimeout)

	discordBot, err := bot.New(cfg, bot.Deps{
		Settings: userSettings,
		Status:   recorder,
		Clock:    clk,
		Log:      log,
	})
	if err != nil {
		return err
	}

	mgr := manager.New(manager.Deps{
		Store:     reminders,
		Scheduler: sched,
		Delivery:  delivery.NewHandler(reminders, discordBot, clk, log),
		Resolver:  fuzzytime.NewResolver(clk),
		Timezones: userSettings,
		Clock:     clk,
		Log:       log,
	}, manager.Options{
		DefaultTimezone: cfg.Scheduler.DefaultTimezone,
		FireOverdue:     cfg.Scheduler.FireOverdue,
	})
	discordBot.SetManager(mgr)

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := discordBot.Start(ctx); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("bot: %w", err)
		}
	}()

	// Overdue reminders fire during the rescan, so hold it until Discord is reachable.
	select {
	case <-discordBot.Connected():
	case <-ctx.Done():
	case err := <-errCh:
		stop()
		wg.Wait()
		return err
	}
	if ctx.Err() == nil {
		if err := mgr.Start(ctx); err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("start reminders: %w", err)
		}
	}

	switch {
	case ctx.Err() != nil:
	case cfg.Web.Addr == "":
	case cfg.Web.JWTSecret == "":
		log.Warn("Web API disabled: web.jwt_secret is not set")
	default:
		server := api.New(cfg.Web, api.Deps{
			Manager: mgr,
			Users:   users.NewStore(kv, cfg.Web.BcryptCost, clk),
			Status:  recorder,
			Clock:   clk,
			Log:     log,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := server.ListenAndServe(ctx); err != nil {
				errCh <- fmt.Errorf("web api: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case runErr = <-errCh:
		stop()
	}

	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		log.Warn("Scheduler did not stop cleanly", zap.Error(err))
	}
	return runErr
}

func envOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
