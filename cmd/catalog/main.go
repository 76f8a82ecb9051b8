package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"product-catalog/internal/catalog"
	"product-catalog/internal/catalog/engine"
	cataloghttp "product-catalog/internal/catalog/http"
	"product-catalog/internal/catalog/messaging"
	"product-catalog/internal/catalog/remote"
	"product-catalog/internal/catalog/store"
	"product-catalog/internal/config"

	_ "product-catalog/docs"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	metricCreatedTotal       = "products_created_total"
	metricUpdatedTotal       = "products_updated_total"
	metricDeletedTotal       = "products_deleted_total"
	metricFlushFailuresTotal = "state_flush_failures_total"
	migrateSourcePrefix      = "file://"
	postgresDriverName       = "postgres"
)

type stateStore interface {
	Load(ctx context.Context) (catalog.StateSnapshot, error)
	Save(ctx context.Context, snap catalog.StateSnapshot) error
	Health() error
}

// @title        Catalog API
// @version      1.0
// @description  Product catalog browsing service with local persistence and remote reconciliation.
// @host         localhost:8080
// @BasePath     /
func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadCatalog()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	var st stateStore
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		if err := runMigrations(cfg.DatabaseURL, cfg.MigrationsPath); err != nil {
			logger.Error("run migrations", "error", err)
			os.Exit(1)
		}

		db, err := sql.Open(postgresDriverName, cfg.DatabaseURL)
		if err != nil {
			logger.Error("open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		db.SetMaxOpenConns(cfg.DBMaxOpenConns)
		db.SetMaxIdleConns(cfg.DBMaxIdleConns)
		db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

		pingCtx, pingCancel := context.WithTimeout(context.Background(), cfg.DBPingTimeout)
		defer pingCancel()
		if err := db.PingContext(pingCtx); err != nil {
			logger.Error("ping database", "error", err)
			os.Exit(1)
		}

		st = store.NewPostgres(db)
	default:
		bs, err := store.OpenBolt(cfg.StorePath)
		if err != nil {
			logger.Error("open state store", "error", err)
			os.Exit(1)
		}
		defer bs.Close()
		st = bs
	}

	var publisher engine.Publisher = messaging.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		rabbitConn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			logger.Error("connect rabbitmq", "error", err)
			os.Exit(1)
		}
		defer rabbitConn.Close()

		rabbitPublisher, err := messaging.NewRabbitPublisher(rabbitConn, catalog.EventsQueue)
		if err != nil {
			logger.Error("init publisher", "error", err)
			os.Exit(1)
		}
		defer rabbitPublisher.Close()
		publisher = rabbitPublisher
	}

	metrics := engine.Metrics{
		Created: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricCreatedTotal,
			Help: "Total number of products created",
		}),
		Updated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricUpdatedTotal,
			Help: "Total number of products updated",
		}),
		Deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricDeletedTotal,
			Help: "Total number of products deleted",
		}),
		FlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricFlushFailuresTotal,
			Help: "Total number of failed state flushes",
		}),
	}
	prometheus.MustRegister(metrics.Created, metrics.Updated, metrics.Deleted, metrics.FlushFailures)

	eng := engine.New(st, publisher, logger, metrics, cfg.PageSize)

	hydrateCtx, hydrateCancel := context.WithTimeout(context.Background(), cfg.DBPingTimeout)
	if err := eng.Hydrate(hydrateCtx); err != nil {
		logger.Warn("hydrate state failed, starting empty", "error", err)
	}
	hydrateCancel()

	remoteClient := remote.NewClient(cfg.RemoteAPIURL, logger)

	if eng.NeedsRemoteSync() {
		syncCtx, syncCancel := context.WithTimeout(context.Background(), cfg.RemoteSyncTimeout)
		list, err := remoteClient.FetchProducts(syncCtx)
		syncCancel()
		switch {
		case err != nil:
			logger.Warn("remote catalog unavailable, continuing with local data", "error", err)
		case len(list) > 0:
			added := eng.IngestRemote(list)
			logger.Info("remote catalog ingested", "fetched", len(list), "added", added)
		}
	}

	handler := cataloghttp.NewHandler(eng, remoteClient, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cataloghttp.RequestIDMiddleware())
	router.Use(cataloghttp.AccessLogMiddleware(logger))
	cataloghttp.RegisterRoutes(router, handler, st)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("catalog service started", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if err := eng.Close(shutdownCtx); err != nil {
		logger.Error("final state flush did not complete", "error", err)
		os.Exit(1)
	}
	logger.Info("catalog service stopped")
}

func runMigrations(databaseURL, migrationsPath string) error {
	m, err := migrate.New(migrateSourcePrefix+migrationsPath, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
