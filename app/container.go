package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/RezaEskandarii/taskfire/internal/cache"
	"github.com/RezaEskandarii/taskfire/internal/db"
	"github.com/RezaEskandarii/taskfire/internal/jobs"
	"github.com/RezaEskandarii/taskfire/internal/lifecycle"
	"github.com/RezaEskandarii/taskfire/internal/lock"
	"github.com/RezaEskandarii/taskfire/internal/logger"
	"github.com/RezaEskandarii/taskfire/internal/message_broaker"
	"github.com/RezaEskandarii/taskfire/internal/metrics"
	"github.com/RezaEskandarii/taskfire/internal/queue"
	"github.com/RezaEskandarii/taskfire/internal/scanner"
	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/internal/store/memory"
	"github.com/RezaEskandarii/taskfire/internal/store/postgres"
	"github.com/RezaEskandarii/taskfire/internal/worker"
	"github.com/RezaEskandarii/taskfire/types/config"
	"github.com/redis/go-redis/v9"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config *config.TaskfireConfig
	Logger *slog.Logger

	// Connections, nil when the configured drivers do not need them
	DB     *sql.DB
	Redis  redis.UniversalClient
	Broker message_broaker.MessageBroker

	JobStore    store.JobStore
	TaskStore   store.TaskStore
	LockManager lock.DistributedLockManager

	Cache       *cache.Cache
	Coordinator *cache.Coordinator
	Queue       *queue.Queue
	Registry    *jobs.Registry
	Notifier    jobs.Notifier
	Metrics     *metrics.Registry
	Pool        *worker.Pool
	Scanner     *scanner.OverdueScanner
	Hooks       *lifecycle.Hooks

	closers []io.Closer
}

// NewContainer creates and wires all dependencies. Call it once per process.
// Connections passed through options are used as-is and not closed by Close.
func NewContainer(ctx context.Context, cfg *config.TaskfireConfig, opts ...ContainerOption) (c *Container, err error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}

	c = &Container{Config: cfg, Logger: opt.logger}
	defer func() {
		if err != nil {
			c.Close()
			c = nil
		}
	}()

	if c.Logger == nil {
		if c.Logger, err = logger.New(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
			return c, err
		}
	}
	c.Logger = c.Logger.With("instance", cfg.Instance)

	if err = c.initStorage(ctx, cfg, opt); err != nil {
		return c, fmt.Errorf("init storage: %w", err)
	}
	if err = c.initCache(ctx, cfg, opt); err != nil {
		return c, fmt.Errorf("init cache: %w", err)
	}
	if err = c.initNotifier(cfg, opt); err != nil {
		return c, fmt.Errorf("init notifier: %w", err)
	}

	c.Queue = queue.New(c.JobStore, c.Logger)
	c.Registry = jobs.NewRegistry()
	if err = jobs.NewHandlers(c.TaskStore, c.Notifier, c.Logger).RegisterAll(c.Registry); err != nil {
		return c, fmt.Errorf("register handlers: %w", err)
	}

	c.Metrics = metrics.NewRegistry()
	c.Pool = worker.NewPool(c.JobStore, c.Registry, c.Metrics, c.Logger, worker.Config{
		WorkerID:     cfg.Instance,
		Concurrency:  cfg.WorkerCount,
		RateMax:      cfg.RateMax,
		RateWindow:   cfg.RateWindow,
		PollInterval: cfg.PollInterval,
		StaleTimeout: cfg.StaleJobTimeout,
	})
	c.Scanner = scanner.New(c.TaskStore, c.Queue, c.Logger, scanner.Config{
		BatchSize:          cfg.ScanBatchSize,
		Schedule:           cfg.ScanSchedule,
		DedupeBucket:       cfg.ScanDedupeBucket,
		ActionableStatuses: cfg.ActionableStatuses,
	})
	c.Hooks = lifecycle.NewHooks(c.Coordinator, c.Queue, c.Logger)

	return c, nil
}

func (c *Container) initStorage(ctx context.Context, cfg *config.TaskfireConfig, opt *containerConfig) error {
	switch cfg.StorageDriver {
	case config.Postgres:
		c.DB = opt.db
		if c.DB == nil {
			conn, err := db.Open(ctx, cfg.PostgresConfig.ConnectionUrl)
			if err != nil {
				return err
			}
			c.DB = conn
			c.closers = append(c.closers, conn)
		}
		c.JobStore = postgres.NewPostgresJobStore(c.DB)
		c.TaskStore = postgres.NewPostgresTaskStore(c.DB)
		c.LockManager = lock.NewPostgresDistributedLockManager(c.DB)
	case config.MemoryStorage:
		c.JobStore = memory.NewJobStore()
		c.TaskStore = memory.NewTaskStore()
	default:
		return fmt.Errorf("unsupported storage driver: %v", cfg.StorageDriver)
	}

	if opt.taskStore != nil {
		c.TaskStore = opt.taskStore
	}
	return nil
}

func (c *Container) initCache(ctx context.Context, cfg *config.TaskfireConfig, opt *containerConfig) error {
	var cacheStore cache.Store
	switch cfg.CacheDriver {
	case config.Redis:
		c.Redis = opt.redis
		if c.Redis == nil {
			client := redis.NewClient(&redis.Options{
				Addr:     cfg.RedisConfig.Address,
				Password: cfg.RedisConfig.Password,
				DB:       cfg.RedisConfig.DB,
			})
			c.closers = append(c.closers, client)
			c.Redis = client
		}
		// Cache reads fail open, so an unreachable Redis is logged rather than fatal.
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			c.Logger.Warn("redis unreachable, cache will miss until it recovers", "error", err)
		}
		cacheStore = cache.NewRedisStore(c.Redis, cfg.RedisConfig.KeyPrefix)
	case config.MemoryCache:
		cacheStore = cache.NewMemoryStore()
	default:
		return fmt.Errorf("unsupported cache driver: %v", cfg.CacheDriver)
	}

	c.Cache = cache.New(cacheStore, cfg.CacheTTL, c.Logger)
	c.Coordinator = cache.NewCoordinator(c.Cache, c.Logger)
	return nil
}

func (c *Container) initNotifier(cfg *config.TaskfireConfig, opt *containerConfig) error {
	c.Broker = opt.broker
	if c.Broker == nil && cfg.MQDriver == config.RabbitMQ {
		rmq, err := message_broaker.NewRabbitMQ(
			cfg.RabbitMQConfig.URL,
			cfg.RabbitMQConfig.Exchange,
			cfg.RabbitMQConfig.Queue,
			cfg.RabbitMQConfig.BindingKey,
		)
		if err != nil {
			return fmt.Errorf("init rabbitmq: %w", err)
		}
		c.Broker = rmq
		c.closers = append(c.closers, rmq)
	}

	if c.Broker != nil {
		c.Notifier = jobs.NewBrokerNotifier(c.Broker)
	} else {
		c.Notifier = jobs.NewLogNotifier(c.Logger)
	}
	return nil
}

// Close releases the connections the container opened itself, newest first.
func (c *Container) Close() error {
	if c.Scanner != nil {
		c.Scanner.Stop()
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
