package constants

import "time"

// MigrationLock is the advisory lock id held while schema migrations run.
// Advisory locks are global to the database, so the id is offset to stay clear of
// other applications sharing it.
const MigrationLock = 7_340_001

const (
	// Schema holds the job table. Work items live in the public schema owned by the CRUD layer.
	Schema    = "taskfire"
	JobsTable = Schema + ".jobs"
)

const (
	DefaultMaxAttempts     = 3
	MutationBackoffBase    = 2 * time.Second
	OverdueBackoffBase     = 5 * time.Second
	OverduePriority        = 10
	DefaultCacheTTL        = 5 * time.Minute
	DefaultScanBatchSize   = 100
	DefaultScanSchedule    = "@hourly"
	DefaultDedupeBucket    = 24 * time.Hour
	DefaultStaleJobTimeout = 30 * time.Minute
)
