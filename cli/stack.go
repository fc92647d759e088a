package cli

import (
	"fmt"

	"go.hackfix.me/switchboard/app/config"
	actx "go.hackfix.me/switchboard/app/context"
	aerrors "go.hackfix.me/switchboard/app/errors"
	"go.hackfix.me/switchboard/cache"
	"go.hackfix.me/switchboard/dispatch"
	"go.hackfix.me/switchboard/handlers"
	"go.hackfix.me/switchboard/invalidation"
	"go.hackfix.me/switchboard/metrics"
	"go.hackfix.me/switchboard/route"
)

// stack holds the components that serve requests, built from the app
// configuration.
type stack struct {
	table      *route.Table
	registry   *dispatch.Registry
	dispatcher *dispatch.Dispatcher
	store      cache.Store
	queue      *invalidation.Queue
	sweeper    *invalidation.Sweeper
	metrics    *metrics.Collector
}

func newStack(appCtx *actx.Context) (*stack, error) {
	cfg := appCtx.Config
	logger := appCtx.Logger

	table, err := loadRoutes(appCtx)
	if err != nil {
		return nil, err
	}

	store, err := newCacheStore(appCtx)
	if err != nil {
		return nil, err
	}

	queue := invalidation.NewQueue(appCtx.DB, store, logger)
	hook := invalidation.NewHook(queue, logger)
	loader := cache.NewLoader(store, logger)
	collector := metrics.New()

	registry := dispatch.NewRegistry()
	err = handlers.Register(registry, appCtx.DB, loader, hook, cfg.Cache.TTL.V, logger)
	if err != nil {
		return nil, fmt.Errorf("failed registering handlers: %w", err)
	}
	if err = registry.Validate(table); err != nil {
		return nil, aerrors.NewRuntimeError("invalid route table", err,
			fmt.Sprintf("available handlers: %v", registry.IDs()))
	}

	dispatcher := dispatch.New(route.NewResolver(table), registry,
		dispatch.WithDefaultMaxAge(int(cfg.Server.DefaultMaxAge.V.Seconds())),
		dispatch.WithAuthHeader(cfg.Server.AuthHeader.V),
		dispatch.WithObserver(collector),
		dispatch.WithTimeSource(appCtx.TimeNow),
		dispatch.WithLogger(logger),
	)

	sweeper := invalidation.NewSweeper(queue, logger,
		invalidation.WithInterval(cfg.Cache.SweepInterval.V),
		invalidation.WithGracePeriod(cfg.Cache.GracePeriod.V),
		invalidation.WithObserver(collector),
	)

	return &stack{
		table:      table,
		registry:   registry,
		dispatcher: dispatcher,
		store:      store,
		queue:      queue,
		sweeper:    sweeper,
		metrics:    collector,
	}, nil
}

// loadRoutes reads the configured route file, or falls back to the routes of
// the built-in handlers.
func loadRoutes(appCtx *actx.Context) (*route.Table, error) {
	table := &route.Table{}
	routesCfg := appCtx.Config.Routes
	if !routesCfg.File.Valid {
		if err := handlers.DefaultRoutes(table); err != nil {
			return nil, fmt.Errorf("failed loading default routes: %w", err)
		}
		return table, nil
	}

	if err := route.LoadFile(appCtx.FS, appCtx.ExpandPath(routesCfg.File.V), table); err != nil {
		return nil, aerrors.NewRuntimeError("failed loading routes", err, "")
	}

	return table, nil
}

func newCacheStore(appCtx *actx.Context) (cache.Store, error) {
	cacheCfg := appCtx.Config.Cache
	switch cacheCfg.Backend.V {
	case config.CacheBackendMemory:
		store, err := cache.NewMemoryStore(cacheCfg.MemorySize.V, appCtx.TimeNow, appCtx.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed creating memory cache: %w", err)
		}
		return store, nil
	default:
		return cache.NewDBStore(appCtx.DB, appCtx.Logger), nil
	}
}
