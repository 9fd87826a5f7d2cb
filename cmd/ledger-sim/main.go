package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/offline-pos/api"
	"github.com/angelmondragon/offline-pos/internal/ledgersim"
	"github.com/angelmondragon/offline-pos/pkg/config"
	"github.com/angelmondragon/offline-pos/pkg/logger"
	pkgredis "github.com/angelmondragon/offline-pos/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "ledger-sim"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.LoadLedgerSim()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "ledger-sim",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "port": cfg.LedgerSim.Port})

	book := ledgersim.NewLedger()
	if cfg.LedgerSim.SeedFile != "" {
		seed, err := ledgersim.LoadSeedFile(cfg.LedgerSim.SeedFile)
		if err != nil {
			logg.Error(ctx, "failed to load seed file", err)
			os.Exit(1)
		}
		book.Seed(seed.Products, seed.Customers)
		logg.Info(logg.WithFields(ctx, map[string]any{
			"products":  len(seed.Products),
			"customers": len(seed.Customers),
		}), "catalog seeded")
	}

	opts := []ledgersim.Option{
		ledgersim.WithTTL(cfg.LedgerSim.IdempotencyTTL),
		ledgersim.WithLogger(logg),
	}
	var store pkgredis.IdempotencyStore
	if cfg.Redis.Enabled {
		client, err := pkgredis.New(ctx, cfg.Redis, logg)
		if err != nil {
			logg.Error(ctx, "failed to connect to redis", err)
			os.Exit(1)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logg.Error(ctx, "failed to close redis", err)
			}
		}()
		store = client
		opts = append(opts, ledgersim.WithRateLimit(client, cfg.LedgerSim.RateLimit, cfg.LedgerSim.RateWindow))
	}

	sim := ledgersim.NewServer(book, store, opts...)
	server := api.NewServer(cfg.LedgerSim.Port, sim.Routes())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "ledger simulator shutdown failed", err)
		}
	}()

	logg.Info(ctx, "ledger simulator listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "ledger simulator stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "ledger simulator shut down gracefully")
}
