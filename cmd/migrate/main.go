package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/offline-pos/pkg/config"
	"github.com/angelmondragon/offline-pos/pkg/db"
	"github.com/angelmondragon/offline-pos/pkg/logger"
	"github.com/angelmondragon/offline-pos/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "up|down|status|current|version|create|validate")
	flag.StringVar(&opts.dir, "dir", "", "migrations directory; empty uses the migrations compiled into the binary")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	cfg, err := config.LoadStore()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"store": cfg.Store.Path,
		"cmd":   opts.cmd,
	})

	if err := run(ctx, cfg.Store, opts, logg); err != nil {
		logg.Error(ctx, "migrate failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, store config.StoreConfig, opts options, logg *logger.Logger) error {
	// create and validate work on files and never open the terminal database.
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return fmt.Errorf("missing -name for create")
		}
		dir := opts.dir
		if dir == "" {
			dir = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path, "(bump migrate.SchemaVersion)")
		return nil
	case "validate":
		if opts.dir == "" {
			latest, err := migrate.ValidateEmbedded()
			if err != nil {
				return err
			}
			fmt.Println("embedded migrations valid, latest version:", latest)
			return nil
		}
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		fmt.Println("migration validation passed")
		return nil
	}

	client, err := db.New(ctx, store, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logg.Error(ctx, "failed to close store", err)
		}
	}()
	sqlDB, err := client.SQL()
	if err != nil {
		return err
	}

	switch opts.cmd {
	case "up", "down", "status":
		return migrate.Run(ctx, sqlDB, opts.dir, opts.cmd)
	case "current":
		v, err := migrate.CurrentVersion(sqlDB)
		if err != nil {
			return err
		}
		fmt.Printf("schema version: %d (binary expects %d)\n", v, migrate.SchemaVersion)
		return nil
	case "version":
		if opts.version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version)
	default:
		return fmt.Errorf("unknown -cmd value %q", opts.cmd)
	}
}
