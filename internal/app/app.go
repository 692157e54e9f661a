// Package app wires the crawler's components together and supervises a
// crawl run from startup to graceful shutdown.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jooya/crawler/internal/config"
	"github.com/jooya/crawler/internal/database"
	"github.com/jooya/crawler/internal/fetcher"
	"github.com/jooya/crawler/internal/logger"
	"github.com/jooya/crawler/internal/metrics"
	"github.com/jooya/crawler/internal/politeness"
	"github.com/jooya/crawler/internal/rawstore"
	"github.com/jooya/crawler/internal/robots"
)

// queuePollInterval is how often the pending-queue gauge is refreshed.
const queuePollInterval = 2 * time.Second

// App holds the assembled crawler.
type App struct {
	cfg *config.Config
	log logger.Logger

	db       *sqlx.DB
	raw      *rawstore.Store
	met      *metrics.Metrics
	metSrv   *metrics.Server
	frontier *database.FrontierRepository
	pool     *fetcher.Pool
}

// New assembles the crawler from configuration. Every connection is
// verified before the app is returned; a Postgres failure here is fatal to
// the process.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	raw, err := rawstore.NewStore(
		ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection,
		cfg.MaxSavedHTMLBytes, log,
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	registry := prometheus.NewRegistry()
	met := metrics.New(registry)
	metSrv := metrics.NewServer(cfg.MetricsAddr, registry, log)

	frontierRepo := database.NewFrontierRepository(db, cfg.MaxDepth, cfg.MaxPages)
	pageRepo := database.NewPageRepository(db)
	policy := politeness.NewController(db, log)
	robotsChecker := robots.NewChecker(nil, cfg.UserAgent, robots.DefaultCacheTTL)
	client := fetcher.NewClient(cfg.UserAgent, cfg.AcceptLanguage, cfg.RequestTimeout, cfg.MaxDownloadBytes)

	pool := fetcher.NewPool(
		frontierRepo, policy, robotsChecker, pageRepo, raw, client, met, log,
		fetcher.PoolConfig{Workers: cfg.Workers},
	)

	return &App{
		cfg:      cfg,
		log:      log,
		db:       db,
		raw:      raw,
		met:      met,
		metSrv:   metSrv,
		frontier: frontierRepo,
		pool:     pool,
	}, nil
}

// Run executes a crawl until the context is cancelled, a termination signal
// arrives, or all workers exit on the page cap.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.frontier.RecoverCrawledCount(ctx); err != nil {
		return fmt.Errorf("recover crawled count: %w", err)
	}

	a.metSrv.Start()
	go a.pollQueueDepth(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			a.log.Info("shutdown signal received", logger.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	a.pool.Start(ctx)

	return a.shutdown()
}

// pollQueueDepth keeps the pending-queue gauge fresh.
func (a *App) pollQueueDepth(ctx context.Context) {
	ticker := time.NewTicker(queuePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, err := a.frontier.CountScheduled(ctx)
			if err != nil {
				a.log.Warn("queue depth poll failed", logger.Error(err))
				continue
			}
			a.met.QueuePending.Set(float64(pending))
		}
	}
}

// shutdown releases connections and stops the metrics server.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.metSrv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("metrics server shutdown failed", logger.Error(err))
	}

	if err := a.raw.Close(shutdownCtx); err != nil {
		a.log.Warn("mongodb close failed", logger.Error(err))
	}

	if err := a.db.Close(); err != nil {
		a.log.Warn("postgres close failed", logger.Error(err))
	}

	a.log.Info("crawler stopped")
	return nil
}
