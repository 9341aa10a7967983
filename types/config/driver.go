package config

type StorageDriver int

const (
	Postgres StorageDriver = iota + 1
	MemoryStorage
)

// String converts the StorageDriver enum to a human-readable string.
func (d StorageDriver) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case MemoryStorage:
		return "memory"
	}
	return "unknown"
}

type CacheDriver int

const (
	MemoryCache CacheDriver = iota + 1
	Redis
)

func (d CacheDriver) String() string {
	switch d {
	case MemoryCache:
		return "memory"
	case Redis:
		return "redis"
	}
	return "unknown"
}

type MessageQueueDriver int

const (
	// LogNotifications writes notifications to the log instead of a broker.
	LogNotifications MessageQueueDriver = iota + 1
	RabbitMQ
)

func (d MessageQueueDriver) String() string {
	switch d {
	case LogNotifications:
		return "log"
	case RabbitMQ:
		return "rabbitmq"
	default:
		return "unknown"
	}
}

// ParseStorageDriver, ParseCacheDriver and ParseMessageQueueDriver return 0 for unknown names.
func ParseStorageDriver(name string) StorageDriver {
	for _, d := range []StorageDriver{Postgres, MemoryStorage} {
		if d.String() == name {
			return d
		}
	}
	return 0
}

func ParseCacheDriver(name string) CacheDriver {
	for _, d := range []CacheDriver{MemoryCache, Redis} {
		if d.String() == name {
			return d
		}
	}
	return 0
}

func ParseMessageQueueDriver(name string) MessageQueueDriver {
	for _, d := range []MessageQueueDriver{LogNotifications, RabbitMQ} {
		if d.String() == name {
			return d
		}
	}
	return 0
}
