package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvConfig mirrors the TASKFIRE_* environment variables.
type EnvConfig struct {
	Instance string `env:"TASKFIRE_INSTANCE" envDefault:"taskfire"`

	StorageDriver string `env:"TASKFIRE_STORAGE_DRIVER" envDefault:"postgres"`
	PostgresURL   string `env:"TASKFIRE_POSTGRES_URL"`

	CacheDriver    string `env:"TASKFIRE_CACHE_DRIVER" envDefault:"memory"`
	RedisAddr      string `env:"TASKFIRE_REDIS_ADDR"`
	RedisPassword  string `env:"TASKFIRE_REDIS_PASSWORD"`
	RedisDB        int    `env:"TASKFIRE_REDIS_DB" envDefault:"0"`
	RedisKeyPrefix string `env:"TASKFIRE_REDIS_KEY_PREFIX"`

	MQDriver           string `env:"TASKFIRE_MQ_DRIVER" envDefault:"log"`
	RabbitMQURL        string `env:"TASKFIRE_RABBITMQ_URL"`
	RabbitMQExchange   string `env:"TASKFIRE_RABBITMQ_EXCHANGE" envDefault:"taskfire.notifications"`
	RabbitMQQueue      string `env:"TASKFIRE_RABBITMQ_QUEUE" envDefault:"taskfire.notifications"`
	RabbitMQBindingKey string `env:"TASKFIRE_RABBITMQ_BINDING_KEY" envDefault:"task.#"`

	WorkerCount     int           `env:"TASKFIRE_WORKER_COUNT" envDefault:"5"`
	RateMax         int           `env:"TASKFIRE_RATE_MAX" envDefault:"0"`
	RateWindow      time.Duration `env:"TASKFIRE_RATE_WINDOW" envDefault:"0s"`
	PollInterval    time.Duration `env:"TASKFIRE_POLL_INTERVAL" envDefault:"1s"`
	StaleJobTimeout time.Duration `env:"TASKFIRE_STALE_JOB_TIMEOUT" envDefault:"30m"`

	ScanSchedule       string        `env:"TASKFIRE_SCAN_SCHEDULE" envDefault:"@hourly"`
	ScanBatchSize      int           `env:"TASKFIRE_SCAN_BATCH_SIZE" envDefault:"100"`
	ScanDedupeBucket   time.Duration `env:"TASKFIRE_SCAN_DEDUPE_BUCKET" envDefault:"24h"`
	ActionableStatuses []string      `env:"TASKFIRE_ACTIONABLE_STATUSES" envDefault:"pending,in_progress" envSeparator:","`

	CacheTTL time.Duration `env:"TASKFIRE_CACHE_TTL" envDefault:"5m"`

	AdminPort uint `env:"TASKFIRE_ADMIN_PORT" envDefault:"0"`

	LogLevel  string `env:"TASKFIRE_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"TASKFIRE_LOG_FORMAT" envDefault:"json"`
}

// LoadFromEnv reads TASKFIRE_* variables and validates them like the equivalent options.
// overrides are applied after the environment.
func LoadFromEnv(overrides ...ConfigOption) (*TaskfireConfig, error) {
	var e EnvConfig
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return NewTaskfireConfig(e.Instance, append(e.Options(), overrides...)...)
}

// Options converts the environment into config options.
func (e EnvConfig) Options() []ConfigOption {
	opts := []ConfigOption{
		WithWorkerCount(e.WorkerCount),
		WithRateLimit(e.RateMax, e.RateWindow),
		WithPollInterval(e.PollInterval),
		WithStaleJobTimeout(e.StaleJobTimeout),
		WithScanSchedule(e.ScanSchedule),
		WithScanBatchSize(e.ScanBatchSize),
		WithScanDedupeBucket(e.ScanDedupeBucket),
		WithActionableStatuses(e.ActionableStatuses...),
		WithCacheTTL(e.CacheTTL),
		WithLogging(e.LogLevel, e.LogFormat),
	}

	switch ParseStorageDriver(e.StorageDriver) {
	case Postgres:
		opts = append(opts, WithPostgresConfig(PostgresConfig{ConnectionUrl: e.PostgresURL}))
	case MemoryStorage:
		opts = append(opts, WithMemoryStorage())
	default:
		opts = append(opts, unknownDriver("storage", e.StorageDriver))
	}

	switch ParseCacheDriver(e.CacheDriver) {
	case Redis:
		opts = append(opts, WithRedisConfig(RedisConfig{
			Address:   e.RedisAddr,
			Password:  e.RedisPassword,
			DB:        e.RedisDB,
			KeyPrefix: e.RedisKeyPrefix,
		}))
	case MemoryCache:
	default:
		opts = append(opts, unknownDriver("cache", e.CacheDriver))
	}

	switch ParseMessageQueueDriver(e.MQDriver) {
	case RabbitMQ:
		opts = append(opts, WithRabbitMQConfig(RabbitMQConfig{
			URL:        e.RabbitMQURL,
			Exchange:   e.RabbitMQExchange,
			Queue:      e.RabbitMQQueue,
			BindingKey: e.RabbitMQBindingKey,
		}))
	case LogNotifications:
	default:
		opts = append(opts, unknownDriver("message queue", e.MQDriver))
	}

	if e.AdminPort > 0 {
		opts = append(opts, WithAdminServer(e.AdminPort))
	}
	return opts
}

func unknownDriver(kind, name string) ConfigOption {
	return func(*TaskfireConfig) error {
		return fmt.Errorf("unknown %s driver %q", kind, name)
	}
}
