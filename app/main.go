package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/news-comb/app/aggregator"
	"github.com/lysyi3m/news-comb/app/api"
	"github.com/lysyi3m/news-comb/app/cache"
	"github.com/lysyi3m/news-comb/app/cfg"
	"github.com/lysyi3m/news-comb/app/database"
	"github.com/lysyi3m/news-comb/app/feed"
	"github.com/lysyi3m/news-comb/app/metrics"
	"github.com/lysyi3m/news-comb/app/ratelimit"
	"github.com/lysyi3m/news-comb/app/tasks"
)

const (
	taskQueueSize       = 100
	rateLimitSweepEvery = time.Minute
	shutdownTimeout     = 30 * time.Second
)

func main() {
	appConfig, err := cfg.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appConfig == nil {
		// Help was shown
		return
	}

	setupLogging(appConfig.Debug)

	if err := run(appConfig); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

func run(appConfig *cfg.Cfg) error {
	slog.Info("Starting News Comb server", "version", appConfig.Version)
	metrics.Init(appConfig.Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Feed sources
	registry, err := feed.LoadRegistry(appConfig.FeedsFile)
	if err != nil {
		return err
	}
	slog.Info("Feed sources loaded", "count", registry.Count())

	fetcher := feed.NewFetcher(feed.FetcherOptions{
		Timeout:        appConfig.FetchTimeout,
		Concurrency:    appConfig.FetchConcurrency,
		ItemsPerSource: appConfig.ItemsPerSource,
		UserAgent:      appConfig.UserAgent,
		MaxBytes:       appConfig.MaxFeedBytes,
	})
	store := cache.NewStore(appConfig.CacheTTL, time.Now)

	limiter := ratelimit.New(time.Now)
	go limiter.Run(ctx, rateLimitSweepEvery)

	aggOpts := aggregator.Options{}
	handlerOpts := api.HandlerOptions{
		SourceCount: registry.Count(),
		CacheTTL:    store.TTL(),
		Version:     appConfig.Version,
	}

	// Optional article archive
	if appConfig.DBPath != "" {
		db, err := database.Open(appConfig.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		version, dirty, err := database.RunMigrations(db)
		if err != nil {
			return err
		}
		slog.Info("Database ready", "path", appConfig.DBPath, "schema_version", version, "dirty", dirty)

		articleStore := database.NewArticleStore(db)

		scheduler := tasks.NewScheduler(appConfig.WorkerCount, taskQueueSize)
		scheduler.Start()
		defer scheduler.Stop()

		aggOpts.Persister = aggregator.NewTaskPersister(scheduler, articleStore)
		aggOpts.ArticleRepo = articleStore
		handlerOpts.Articles = articleStore
	} else {
		slog.Info("Article archive disabled (DB_PATH not set)")
	}

	agg := aggregator.New(registry, fetcher, store, aggOpts)

	baseURL := cmp.Or(appConfig.AppURL, "http://localhost:"+appConfig.Port)
	handler := api.NewHandler(agg, feed.NewGenerator(baseURL, appConfig.Version), handlerOpts)
	router, err := api.NewServer(handler, limiter, api.ServerOptions{
		APIAccessKey:   appConfig.APIAccessKey,
		AppURL:         appConfig.AppURL,
		TrustedProxies: appConfig.TrustedProxies,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appConfig.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("News Comb server shutdown complete")

	return nil
}
