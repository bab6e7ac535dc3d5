// Package main wires together the catalog monitor service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/shopmon/shopmon/internal/api"
	"github.com/shopmon/shopmon/internal/archive"
	"github.com/shopmon/shopmon/internal/catalog"
	"github.com/shopmon/shopmon/internal/classify"
	"github.com/shopmon/shopmon/internal/config"
	"github.com/shopmon/shopmon/internal/detect"
	"github.com/shopmon/shopmon/internal/logging"
	"github.com/shopmon/shopmon/internal/monitor"
	"github.com/shopmon/shopmon/internal/notify"
	"github.com/shopmon/shopmon/internal/publish"
	"github.com/shopmon/shopmon/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Local development keeps secrets in .env; missing file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	productStore, err := store.New(ctx, store.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	defer productStore.Close()
	if err := productStore.Init(ctx); err != nil {
		logger.Fatal("store schema init failed", zap.Error(err))
	}

	var feedArchive catalog.Archiver = &archive.NoOpProvider{}
	if cfg.Archive.Bucket != "" {
		gcs, err := archive.NewGCS(ctx, cfg.Archive.Bucket, logger)
		if err != nil {
			logger.Fatal("archive init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := gcs.Close(); closeErr != nil {
				logger.Warn("archive close failed", zap.Error(closeErr))
			}
		}()
		feedArchive = gcs
	}

	var publisher publish.Provider
	if cfg.PubSub.ProjectID != "" && cfg.PubSub.TopicID != "" {
		pubsubPublisher, err := publish.NewPubSub(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicID)
		if err != nil {
			logger.Fatal("pubsub init failed", zap.Error(err))
		}
		defer func() {
			if closeErr := pubsubPublisher.Close(); closeErr != nil {
				logger.Warn("pubsub close failed", zap.Error(closeErr))
			}
		}()
		publisher = pubsubPublisher
	}

	client := catalog.NewCollyClient(catalog.ClientConfig{
		Timeout: cfg.FetchTimeout(),
		Proxies: cfg.Proxies,
	})
	fetcherCfg := catalog.DefaultFetcherConfig()
	fetcherCfg.PageSize = cfg.Fetch.PageSize
	fetcherCfg.MaxProducts = cfg.Fetch.MaxProducts
	fetcherCfg.MaxErrors = cfg.Fetch.MaxErrors
	fetcherCfg.RateLimitThreshold = cfg.Fetch.RateLimitThreshold
	fetcherCfg.Cooldown = cfg.Cooldown()

	classifier := classify.New(cfg.Classify.TablePath, logger)
	detector := detect.New(cfg.Monitor.PriceDropThreshold)
	notifier := notify.New(notify.Config{
		NotifyURL: cfg.Webhooks.NotifyURL,
		ErrorURL:  cfg.Webhooks.ErrorURL,
	}, logger)

	sleepMin, sleepMax := cfg.SleepWindow()
	var wg sync.WaitGroup
	for _, site := range cfg.Sites {
		siteLogger := logging.ForSite(logger, site)
		fetcher := catalog.NewFetcher(client, feedArchive, fetcherCfg, siteLogger)
		m := monitor.New(monitor.Config{
			Site:         site,
			SleepMin:     sleepMin,
			SleepMax:     sleepMax,
			MaxFailures:  cfg.Monitor.MaxFailures,
			NewNotifyCap: cfg.Monitor.NewNotifyCap,
			EventTopic:   cfg.PubSub.TopicID,
		}, fetcher, productStore, notifier, classifier, detector, publisher, siteLogger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Run(ctx)
		}()
	}

	if err := notifier.Operational(ctx,
		fmt.Sprintf("catalog monitor started with %d sites", len(cfg.Sites))); err != nil {
		logger.Warn("startup alert failed", zap.Error(err))
	}

	apiServer := api.NewServer(productStore, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()
	logger.Info("shutdown complete")
}
