package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"PosTrack/internal/config"
	"PosTrack/internal/exchange"
	"PosTrack/internal/ingestion"
	"PosTrack/internal/observability"
	"PosTrack/internal/persistence"
	"PosTrack/internal/query"
	"PosTrack/internal/scheduler"
	"PosTrack/internal/server"
	"PosTrack/internal/syncer"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	log := observability.NewLogger("main")
	log.Info().Msg("postrack starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres open")
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("postgres ping")
	}
	log.Info().Msg("postgres connected")

	// --- SQL migrations ---
	migrator := persistence.NewMigrator(db, cfg.MigrationsDir)
	if err := migrator.Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}
	log.Info().Msg("migrations applied")

	// --- Observability ---
	metrics := observability.NewMetrics()
	health := observability.NewHealthChecker("postgres", "nats")
	health.SetReady("postgres", true)

	// --- NATS ---
	nc, js, err := ingestion.ConnectNATS(cfg.NATSURL, observability.NewLogger("nats"))
	if err != nil {
		log.Fatal().Err(err).Msg("nats connect")
	}
	defer nc.Close()

	if err := ingestion.EnsureStreams(ctx, js, log); err != nil {
		log.Fatal().Err(err).Msg("ensure nats streams")
	}
	health.SetReady("nats", true)
	log.Info().Msg("nats connected")

	// --- Sync pipeline ---
	store := persistence.NewStore(db)
	dedup := syncer.NewTradeDedup(cfg.DedupCapacity, store, metrics)
	reconciler := syncer.NewReconciler(store, dedup, cfg.FeeRate, metrics, observability.NewLogger("reconciler"))

	client := exchange.NewClient(exchange.Config{
		BaseURL:         cfg.ExchangeBaseURL,
		Timeout:         cfg.ExchangeTimeout,
		RecvWindow:      cfg.RecvWindow,
		WeightPerMinute: cfg.WeightPerMinute,
	})

	publisher := ingestion.NewPositionPublisher(js)
	sync := syncer.NewSyncer(client, store, reconciler, publisher, syncer.Config{
		LookbackDays:       cfg.LookbackDays,
		FeeRate:            cfg.FeeRate,
		MaxParallelSymbols: cfg.MaxParallelSymbols,
	}, metrics, observability.NewLogger("syncer"))

	// --- NATS sync triggers ---
	subscriber := ingestion.NewSyncSubscriber(js, func(ctx context.Context, account string) error {
		acct, err := store.GetAccount(ctx, account)
		if err != nil {
			return fmt.Errorf("lookup account %q: %w", account, err)
		}
		_, err = sync.SyncAccount(ctx, acct, "nats")
		return err
	}, observability.NewLogger("subscriber"))

	if err := subscriber.Subscribe(ctx); err != nil {
		log.Fatal().Err(err).Msg("subscribe sync requests")
	}

	// --- Scheduled syncs ---
	sched := scheduler.New(store, sync, cfg.SyncInterval, observability.NewLogger("scheduler"))
	go sched.Run(ctx)

	errChan := make(chan error, 3)

	// --- HTTP API ---
	queries := query.NewService(db)
	api := server.New(queries, store, sync, health, metrics, observability.NewLogger("http"))
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.Router(),
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http api listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	// --- Prometheus metrics server ---
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: metricsMux,
	}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	log.Info().
		Str("http", cfg.HTTPAddr).
		Str("metrics", cfg.MetricsAddr).
		Dur("sync_interval", cfg.SyncInterval).
		Msg("postrack ready")

	// --- Wait for shutdown ---
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errChan:
		log.Error().Err(err).Msg("server failed, shutting down")
	}
	stop()

	subscriber.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics shutdown")
	}

	log.Info().Msg("postrack shutdown complete")
}
