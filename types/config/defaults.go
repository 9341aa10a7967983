package config

import "time"

const (
	DefaultWorkerCount     = 5
	DefaultStorageDriver   = Postgres
	DefaultCacheDriver     = MemoryCache
	DefaultMQDriver        = LogNotifications
	DefaultPollInterval    = time.Second
	DefaultStaleJobTimeout = 30 * time.Minute
	DefaultScanSchedule    = "@hourly"
	DefaultScanBatchSize   = 100
	DefaultDedupeBucket    = 24 * time.Hour
	DefaultCacheTTL        = 5 * time.Minute
	DefaultAdminPort       = 8080
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
)

var DefaultActionableStatuses = []string{"pending", "in_progress"}
