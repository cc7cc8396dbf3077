package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Store drivers understood by STORE_DRIVER.
const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

// Config holds the application's configuration values.
// Tags like `envconfig:"APP_ENV"` specify the environment variable name.
// `default:""` provides a default value if the env var is not set.
type Config struct {
	AppEnv     string `envconfig:"APP_ENV" default:"development"` // e.g., development, staging, production
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`      // e.g., debug, info, warn, error
	HttpServer ServerConfig
	GrpcServer GrpcServerConfig
	Store      StoreConfig
	Postgres   PostgresConfig
	ImageCache ImageCacheConfig
	Catalog    CatalogConfig
}

// ServerConfig holds HTTP server-specific configurations.
type ServerConfig struct {
	Port         string        `envconfig:"HTTP_SERVER_PORT" default:"8080"`
	TimeoutRead  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_READ" default:"15s"`
	TimeoutWrite time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_WRITE" default:"15s"`
	TimeoutIdle  time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_IDLE" default:"60s"`
}

// GrpcServerConfig holds gRPC server-specific configurations.
type GrpcServerConfig struct {
	Port string `envconfig:"GRPC_SERVER_PORT" default:"9090"`
}

// StoreConfig selects where the product collection lives.
type StoreConfig struct {
	Driver   string `envconfig:"STORE_DRIVER" default:"memory"`
	SeedFile string `envconfig:"STORE_SEED_FILE"` // JSON array loaded into the memory store on start
}

// PostgresConfig holds PostgreSQL database connection details.
// Host, user and database name are only required with the postgres driver.
type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST"`
	Port     string `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER"`
	Password string `envconfig:"POSTGRES_PASSWORD"`
	DBName   string `envconfig:"POSTGRES_DBNAME"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

// DSN constructs the Data Source Name string for connecting to PostgreSQL.
func (pc *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName, pc.SSLMode)
}

// ImageCacheConfig tunes the image proxy in front of the WB CDN.
type ImageCacheConfig struct {
	TTL            time.Duration `envconfig:"IMAGE_CACHE_TTL" default:"1h"`
	MaxBytes       int64         `envconfig:"IMAGE_CACHE_MAX_BYTES" default:"83886080"`
	FetchTimeout   time.Duration `envconfig:"IMAGE_FETCH_TIMEOUT" default:"10s"`
	OriginHost     string        `envconfig:"IMAGE_ORIGIN_HOST" default:"https://basket-0{shard}.wb.ru"`
	MaxObjectBytes int64         `envconfig:"IMAGE_MAX_OBJECT_BYTES" default:"16777216"`
	CoalesceMisses bool          `envconfig:"IMAGE_COALESCE_MISSES" default:"false"`
	BrowserMaxAge  time.Duration `envconfig:"IMAGE_BROWSER_MAX_AGE" default:"30m"`
}

// maxPageSizeLimit is the largest CATALOG_MAX_PAGE_SIZE accepted.
const maxPageSizeLimit = 1000

// CatalogConfig holds the paging policy of product queries.
type CatalogConfig struct {
	DefaultPageSize int `envconfig:"CATALOG_DEFAULT_PAGE_SIZE" default:"20"`
	MaxPageSize     int `envconfig:"CATALOG_MAX_PAGE_SIZE" default:"100"`
}

// Load reads the configuration from environment variables and validates it.
// It should be called once during application startup.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"app_env":      cfg.AppEnv,
		"store_driver": cfg.Store.Driver,
	}).Debug("Configuration loaded")
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if c.Postgres.Host == "" || c.Postgres.User == "" || c.Postgres.DBName == "" {
			return errors.New("config: POSTGRES_HOST, POSTGRES_USER and POSTGRES_DBNAME are required for the postgres store")
		}
	default:
		return errors.Errorf("config: unknown STORE_DRIVER %q", c.Store.Driver)
	}

	ic := c.ImageCache
	if ic.TTL <= 0 {
		return errors.New("config: IMAGE_CACHE_TTL must be positive")
	}
	if ic.MaxBytes <= 0 {
		return errors.New("config: IMAGE_CACHE_MAX_BYTES must be positive")
	}
	if ic.FetchTimeout <= 0 {
		return errors.New("config: IMAGE_FETCH_TIMEOUT must be positive")
	}
	if ic.MaxObjectBytes <= 0 {
		return errors.New("config: IMAGE_MAX_OBJECT_BYTES must be positive")
	}
	if ic.BrowserMaxAge < 0 {
		return errors.New("config: IMAGE_BROWSER_MAX_AGE must not be negative")
	}

	if c.Catalog.DefaultPageSize <= 0 || c.Catalog.MaxPageSize <= 0 {
		return errors.New("config: catalog page sizes must be positive")
	}
	if c.Catalog.MaxPageSize > maxPageSizeLimit {
		return errors.Errorf("config: CATALOG_MAX_PAGE_SIZE %d exceeds %d", c.Catalog.MaxPageSize, maxPageSizeLimit)
	}
	if c.Catalog.DefaultPageSize > c.Catalog.MaxPageSize {
		return errors.Errorf("config: CATALOG_DEFAULT_PAGE_SIZE %d exceeds CATALOG_MAX_PAGE_SIZE %d",
			c.Catalog.DefaultPageSize, c.Catalog.MaxPageSize)
	}
	return nil
}
