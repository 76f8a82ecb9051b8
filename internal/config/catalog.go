package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	StoreDriverBolt     = "bolt"
	StoreDriverPostgres = "postgres"

	defaultHTTPAddr       = ":8080"
	defaultStoreDriver    = StoreDriverBolt
	defaultStorePath      = "catalog.db"
	defaultMigrationsPath = "migrations/catalog"
	defaultRemoteAPIURL   = "https://fakestoreapi.com"
	defaultPageSize       = 12

	defaultShutdownTimeout = 10 * time.Second

	defaultDBMaxOpenConns    = 25
	defaultDBMaxIdleConns    = 5
	defaultDBConnMaxLifetime = 5 * time.Minute
	defaultDBPingTimeout     = 5 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
	defaultRemoteSyncTimeout = 30 * time.Second
)

type Catalog struct {
	HTTPAddr          string
	StoreDriver       string
	StorePath         string
	DatabaseURL       string
	MigrationsPath    string
	RemoteAPIURL      string
	RabbitMQURL       string
	PageSize          int
	ShutdownTimeout   time.Duration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBPingTimeout     time.Duration
	ReadHeaderTimeout time.Duration
	RemoteSyncTimeout time.Duration
}

func LoadCatalog() (Catalog, error) {
	cfg := Catalog{
		HTTPAddr:          getEnv("HTTP_ADDR", defaultHTTPAddr),
		StoreDriver:       getEnv("STORE_DRIVER", defaultStoreDriver),
		StorePath:         getEnv("STORE_PATH", defaultStorePath),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		MigrationsPath:    getEnv("MIGRATIONS_PATH", defaultMigrationsPath),
		RemoteAPIURL:      getEnv("REMOTE_API_URL", defaultRemoteAPIURL),
		RabbitMQURL:       getEnv("RABBITMQ_URL", ""),
		PageSize:          defaultPageSize,
		ShutdownTimeout:   defaultShutdownTimeout,
		DBMaxOpenConns:    defaultDBMaxOpenConns,
		DBMaxIdleConns:    defaultDBMaxIdleConns,
		DBConnMaxLifetime: defaultDBConnMaxLifetime,
		DBPingTimeout:     defaultDBPingTimeout,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		RemoteSyncTimeout: defaultRemoteSyncTimeout,
	}

	if raw := os.Getenv("PAGE_SIZE"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return Catalog{}, fmt.Errorf("PAGE_SIZE must be a positive integer")
		}
		cfg.PageSize = size
	}

	switch cfg.StoreDriver {
	case StoreDriverBolt:
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return Catalog{}, fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return Catalog{}, fmt.Errorf("STORE_DRIVER must be %q or %q", StoreDriverBolt, StoreDriverPostgres)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
