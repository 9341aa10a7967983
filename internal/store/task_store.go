package store

import (
	"context"
	"time"

	"github.com/RezaEskandarii/taskfire/types"
)

// TaskStore is the read side of the external work-item store.
type TaskStore interface {
	// FetchOverdue returns work items whose due date is before cutoff and whose status is one
	// of statuses, ordered by due date ascending.
	FetchOverdue(ctx context.Context, cutoff time.Time, statuses []string, limit, offset int) ([]types.WorkItem, error)

	// FindByID returns ErrNotFound when no work item has the given id.
	FindByID(ctx context.Context, id string) (*types.WorkItem, error)
}
