package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/offline-pos/api"
	"github.com/angelmondragon/offline-pos/api/controllers"
	cartcontrollers "github.com/angelmondragon/offline-pos/api/controllers/cart"
	"github.com/angelmondragon/offline-pos/api/routes"
	"github.com/angelmondragon/offline-pos/internal/cart"
	"github.com/angelmondragon/offline-pos/internal/catalog"
	"github.com/angelmondragon/offline-pos/internal/checkout"
	"github.com/angelmondragon/offline-pos/internal/connectivity"
	"github.com/angelmondragon/offline-pos/internal/cron"
	"github.com/angelmondragon/offline-pos/internal/ledger"
	"github.com/angelmondragon/offline-pos/internal/localstore"
	"github.com/angelmondragon/offline-pos/internal/operator"
	"github.com/angelmondragon/offline-pos/internal/syncengine"
	"github.com/angelmondragon/offline-pos/internal/syncqueue"
	"github.com/angelmondragon/offline-pos/pkg/config"
	"github.com/angelmondragon/offline-pos/pkg/db"
	"github.com/angelmondragon/offline-pos/pkg/logger"
	"github.com/angelmondragon/offline-pos/pkg/metrics"
	pkgredis "github.com/angelmondragon/offline-pos/pkg/redis"
)

// app holds everything the terminal runs. engine, cron and store are nil
// in online-only mode.
type app struct {
	server  *http.Server
	monitor *connectivity.Monitor
	engine  *syncengine.Engine
	cron    *cron.Service

	store      *localstore.Store
	redis      *pkgredis.Client
	stopOnline func()
}

func bootstrap(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*app, error) {
	if cfg.App.IsProd() && cfg.Ledger.APIKey == "" {
		return nil, fmt.Errorf("ledger api key is required in %s", cfg.App.Env)
	}

	a := &app{}
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client, err := ledger.NewHTTPClient(cfg.Ledger.BaseURL,
		ledger.WithTimeout(cfg.Ledger.Timeout),
		ledger.WithAPIKey(cfg.Ledger.APIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("ledger client: %w", err)
	}
	a.monitor = connectivity.NewMonitor(client, cfg.Connectivity.LivenessInterval, cfg.Connectivity.LivenessTimeout, logg)

	syncMetrics := metrics.NewSyncMetrics(promReg)
	a.stopOnline = watchOnline(a.monitor, syncMetrics)

	if cfg.Redis.Enabled {
		a.redis, err = pkgredis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return nil, multierr.Append(fmt.Errorf("redis: %w", err), a.Close())
		}
	}

	store, err := localstore.Open(ctx, cfg.Store, logg)
	if err != nil {
		// Sales can still be taken while the ledger is reachable.
		logg.Error(ctx, "local store unavailable; running online-only checkout", err)
	} else {
		a.store = store
	}

	deps := routes.Deps{
		Config:       cfg,
		Logger:       logg,
		Connectivity: a.monitor,
		Gatherer:     promReg,
		HTTPMetrics:  metrics.NewHTTPMetrics(promReg),
		CORSOrigins:  cfg.App.CORSOrigins,
	}

	if a.store == nil {
		if err := a.wireOnlineOnly(ctx, cfg, logg, client, &deps); err != nil {
			return nil, multierr.Append(err, a.Close())
		}
	} else {
		deps.Store = a.store
		if err := a.wireOfflineFirst(ctx, cfg, logg, client, promReg, syncMetrics, &deps); err != nil {
			return nil, multierr.Append(err, a.Close())
		}
	}

	a.server = api.NewServer(cfg.App.Port, routes.NewRouter(deps))
	return a, nil
}

func (a *app) wireOnlineOnly(ctx context.Context, cfg *config.Config, logg *logger.Logger, client ledger.Client, deps *routes.Deps) error {
	drafts := cart.NewMemoryDrafts()
	register, err := cart.NewRegister(drafts, drafts, logg)
	if err != nil {
		return err
	}
	if _, err := register.Restore(ctx); err != nil {
		return err
	}
	finalizer, err := checkout.NewOnlineOnly(client,
		checkout.WithTerminalID(cfg.Terminal.ID),
		checkout.WithSubmitTimeout(cfg.Sync.SubmitTimeout),
		checkout.WithLogger(logg),
	)
	if err != nil {
		return err
	}
	deps.Cart = cartcontrollers.NewHandlers(register, finalizer, nil, logg)
	return nil
}

func (a *app) wireOfflineFirst(ctx context.Context, cfg *config.Config, logg *logger.Logger, client ledger.Client, promReg *prometheus.Registry, syncMetrics *metrics.SyncMetrics, deps *routes.Deps) error {
	queue := syncqueue.New(a.store.DB(), syncqueue.DefaultRegistry(), cfg.Terminal.ID, logg)
	drafts := cart.NewDraftRepository(a.store)

	register, err := cart.NewRegister(drafts, a.store, logg)
	if err != nil {
		return err
	}
	if _, err := register.Restore(ctx); err != nil {
		return err
	}

	finalizer, err := checkout.NewService(a.store, queue, drafts, cfg.Terminal.ID, logg)
	if err != nil {
		return err
	}
	catalogSvc, err := catalog.NewService(a.store, queue, client, logg)
	if err != nil {
		return err
	}

	params := syncengine.Params{
		Config:       cfg.Sync,
		Logger:       logg,
		Store:        a.store,
		Queue:        queue,
		Ledger:       client,
		Connectivity: a.monitor,
		Metrics:      syncMetrics,
	}
	var cronLock cron.Lock
	if a.redis != nil {
		drainLock, err := pkgredis.NewLock(a.redis, a.redis.LockKey("sync:"+cfg.Terminal.ID), cfg.Sync.LockTTL)
		if err != nil {
			return err
		}
		params.Lock = drainLock
		lock, err := pkgredis.NewLock(a.redis, a.redis.LockKey("cron:"+cfg.Terminal.ID), cfg.Cron.Interval)
		if err != nil {
			return err
		}
		cronLock = lock
	}
	a.engine, err = syncengine.New(params)
	if err != nil {
		return err
	}

	operatorSvc, err := operator.NewService(queue, a.engine, a.monitor, logg)
	if err != nil {
		return err
	}

	a.cron, err = newCron(cfg, logg, a.store, catalogSvc, a.monitor, cronLock, metrics.NewCronJobMetrics(promReg))
	if err != nil {
		return err
	}

	deps.Cart = cartcontrollers.NewHandlers(register, finalizer, catalogSvc, logg)
	deps.Sync = operatorSvc
	deps.Catalog = catalogSvc
	deps.Journal = a.store
	return nil
}

func newCron(cfg *config.Config, logg *logger.Logger, store *localstore.Store, catalogSvc *catalog.Service, monitor *connectivity.Monitor, lock cron.Lock, m *metrics.CronJobMetrics) (*cron.Service, error) {
	retention, err := cron.NewSyncedRetentionJob(cron.SyncedRetentionJobParams{
		Logger:     logg,
		DB:         store,
		Repository: store,
		Retention:  cfg.Cron.SyncedRetention,
	})
	if err != nil {
		return nil, err
	}
	heldCarts, err := cron.NewHeldCartCleanupJob(cron.HeldCartCleanupJobParams{
		Logger:     logg,
		DB:         store,
		Repository: store,
	})
	if err != nil {
		return nil, err
	}
	registry, err := cron.NewRegistry(retention, heldCarts)
	if err != nil {
		return nil, err
	}
	if cfg.Cron.CatalogRefresh {
		refresh, err := cron.NewCatalogRefreshJob(cron.CatalogRefreshJobParams{
			Logger:       logg,
			Catalog:      catalogSvc,
			Connectivity: monitor,
		})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(refresh); err != nil {
			return nil, err
		}
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  m,
		Interval: cfg.Cron.Interval,
	})
}

// watchOnline mirrors the connectivity signal into the online gauge.
func watchOnline(monitor *connectivity.Monitor, m *metrics.SyncMetrics) func() {
	ch, cancel := monitor.Subscribe()
	m.SetOnline(monitor.Online())
	go func() {
		for online := range ch {
			m.SetOnline(online)
		}
	}()
	return cancel
}

func (a *app) Close() error {
	if a.stopOnline != nil {
		a.stopOnline()
	}
	var err error
	if a.store != nil {
		err = multierr.Append(err, a.store.Close())
	}
	if a.redis != nil {
		err = multierr.Append(err, a.redis.Close())
	}
	return err
}

var (
	_ controllers.SyncOperator       = (*operator.Service)(nil)
	_ controllers.CatalogService     = (*catalog.Service)(nil)
	_ controllers.ConnectivitySignal = (*connectivity.Monitor)(nil)
	_ controllers.Journal            = (*localstore.Store)(nil)
	_ db.Pinger                      = (*localstore.Store)(nil)
)
