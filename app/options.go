package app

import (
	"database/sql"
	"log/slog"

	"github.com/RezaEskandarii/taskfire/internal/message_broaker"
	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/redis/go-redis/v9"
)

// ContainerOption configures Container creation. Used for testing and customization.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	db        *sql.DB
	redis     redis.UniversalClient
	broker    message_broaker.MessageBroker
	taskStore store.TaskStore
	logger    *slog.Logger
}

// WithDB injects a database connection instead of opening one from config.
func WithDB(db *sql.DB) ContainerOption {
	return func(c *containerConfig) {
		c.db = db
	}
}

// WithRedis injects a Redis client instead of creating one from config.
func WithRedis(client redis.UniversalClient) ContainerOption {
	return func(c *containerConfig) {
		c.redis = client
	}
}

// WithBroker injects the broker notifications are published to.
func WithBroker(broker message_broaker.MessageBroker) ContainerOption {
	return func(c *containerConfig) {
		c.broker = broker
	}
}

// WithTaskStore replaces the task reader, e.g. with a seeded in-memory store.
func WithTaskStore(tasks store.TaskStore) ContainerOption {
	return func(c *containerConfig) {
		c.taskStore = tasks
	}
}

func WithLogger(logger *slog.Logger) ContainerOption {
	return func(c *containerConfig) {
		c.logger = logger
	}
}
