package lock

import "context"

// DistributedLockManager serializes work across instances sharing one database.
type DistributedLockManager interface {
	Acquire(ctx context.Context, lockID int) error
	Release(ctx context.Context, lockID int) error
}
