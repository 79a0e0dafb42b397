package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const envPrefix = "storefront"

type Config struct {
	HTTPAddr string `envconfig:"http_addr" default:":8080"`
	GRPCAddr string `envconfig:"grpc_addr" default:":50051"`

	MySQLDSN  string `envconfig:"mysql_dsn" default:"root:root@tcp(localhost:3306)/storefront?parseTime=true"`
	RedisAddr string `envconfig:"redis_addr" default:"localhost:6379"`

	CartTTL         time.Duration `envconfig:"cart_ttl" default:"168h"`
	SessionIdleTTL  time.Duration `envconfig:"session_idle_ttl" default:"30m"`
	CatalogTTL      time.Duration `envconfig:"catalog_ttl" default:"5m"`
	CatalogCapacity uint64        `envconfig:"catalog_capacity" default:"10000"`

	Workers   int `envconfig:"workers" default:"10"`
	QueueSize int `envconfig:"queue_size" default:"10000"`

	MigrationsDir string `envconfig:"migrations_dir" default:"migrations"`
	LogLevel      string `envconfig:"log_level" default:"info"`
	EnableTracing bool   `envconfig:"enable_tracing"`
}

// loadConfig reads STOREFRONT_* environment variables.
func loadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "load config")
	}
	if cfg.Workers < 1 {
		return Config{}, errors.Errorf("STOREFRONT_WORKERS must be positive, got %d", cfg.Workers)
	}
	return cfg, nil
}
