package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/star/skypass/internal/api"
	"github.com/star/skypass/internal/config"
	"github.com/star/skypass/internal/metrics"
	"github.com/star/skypass/internal/passes"
	"github.com/star/skypass/internal/propagation"
	"github.com/star/skypass/internal/stream"
	"github.com/star/skypass/internal/tle"
	"github.com/star/skypass/internal/tracing"
)

func main() {
	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg, err := config.Load(bootLogger)
	if err != nil {
		bootLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, logger)
	if err != nil {
		logger.Error("tracing init failed", "error", err)
		os.Exit(1)
	}
	defer tracing.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	if err := cfg.Model.Validate(); err != nil {
		logger.Error("invalid earth model", "error", err)
		os.Exit(1)
	}

	engine := propagation.NewEngine(propagation.Config{Workers: cfg.Search.Workers}, logger)
	searcher := passes.NewSearcher(cfg.Model, engine, logger, passes.WithMaxDays(cfg.Search.MaxDays))
	logger.Info("search engine ready", "workers", engine.Workers(), "time_of_day", cfg.Model.TimeOfDay.String())

	store := tle.NewStore()
	disk := tle.NewDiskCache(cfg.TLE.CacheDir, cfg.TLE.Keep)
	fetcher := tle.NewFetcher(cfg.TLE.SourceURL, logger, cfg.TLE.ExtraSourceURLs...)
	refresher := tle.NewRefresher(store, fetcher, disk, logger)

	// Attempt to load cached TLE data on startup.
	if err := refresher.LoadCached(); err != nil {
		logger.Info("no TLE cache found, starting without TLE data", "error", err)
	}

	var fetchRefresher *tle.Refresher
	if cfg.TLE.EnableFetch {
		fetchRefresher = refresher
		go refresher.Run(ctx, cfg.TLE.RefreshInterval, cfg.TLE.MaxAge)
	}

	// Background goroutine to update TLE catalog gauges.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if ds := store.Get(); ds != nil {
					metrics.SetTLECatalog(len(ds.Satellites), store.Age(time.Now()))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	ready := func() error {
		if cfg.TLE.EnableFetch && store.Get() == nil {
			return propagation.ErrNoCatalog
		}
		return nil
	}

	catalog := propagation.NewCatalog(store, logger)
	tracker := stream.NewHandler(catalog, store, cfg.Model, stream.Config{
		MaxConcurrentPerIP: cfg.Stream.MaxConcurrentPerIP,
		MaxConcurrent:      cfg.Stream.MaxConcurrent,
		KeepaliveInterval:  cfg.Stream.KeepaliveInterval,
		TrustProxy:         cfg.TrustProxy,
	}, logger)

	srv := api.NewServer(cfg.HTTPAddr, logger, api.Deps{
		Searcher:  searcher,
		Catalog:   catalog,
		Store:     store,
		Refresher: fetchRefresher,
		Tracker:   tracker,
		Auth:      cfg.Auth,
		Limits: api.Limits{
			Budget:             cfg.Search.Budget,
			MaxPositions:       cfg.Search.MaxPositions,
			MaxConcurrentPerIP: cfg.Search.MaxConcurrentPerIP,
			MaxConcurrent:      cfg.Search.MaxConcurrent,
		},
		TrustProxy: cfg.TrustProxy,
		Ready:      ready,
	})

	go func() {
		logger.Info("starting server", "addr", cfg.HTTPAddr, "auth_enabled", cfg.Auth.Enabled, "tle_fetch_enabled", cfg.TLE.EnableFetch)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
