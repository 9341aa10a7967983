// Package lifecycle is called by the task CRUD layer after a mutation commits.
// Each hook invalidates the cached views of the task and enqueues its notification.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/RezaEskandarii/taskfire/internal/cache"
	"github.com/RezaEskandarii/taskfire/internal/jobs"
	"github.com/RezaEskandarii/taskfire/internal/queue"
	"github.com/RezaEskandarii/taskfire/types"
)

const (
	Namespace  = "tasks"
	EntityKind = "task"
)

// DefaultScopes are the viewer scopes an entity is cached under.
var DefaultScopes = []string{"admin", "user"}

type Hooks struct {
	coordinator *cache.Coordinator
	queue       queue.Enqueuer
	logger      *slog.Logger
	scopes      []string
}

func NewHooks(coordinator *cache.Coordinator, q queue.Enqueuer, logger *slog.Logger, scopes ...string) *Hooks {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &Hooks{
		coordinator: coordinator,
		queue:       q,
		logger:      logger,
		scopes:      scopes,
	}
}

func (h *Hooks) TaskCreated(ctx context.Context, item types.WorkItem) (queue.EnqueueResult, error) {
	h.invalidate(ctx, item.ID)
	return h.enqueue(ctx, types.KindTaskCreated, jobs.TaskCreatedPayload{
		EntityID: item.ID,
		Status:   item.Status,
	}, "created:"+item.ID)
}

// TaskUpdated covers edits that do not change the status; nothing is enqueued.
func (h *Hooks) TaskUpdated(ctx context.Context, item types.WorkItem) {
	h.invalidate(ctx, item.ID)
}

func (h *Hooks) TaskStatusChanged(ctx context.Context, item types.WorkItem, previousStatus string) (queue.EnqueueResult, error) {
	h.invalidate(ctx, item.ID)
	if item.Status == previousStatus {
		return queue.EnqueueResult{}, nil
	}
	return h.enqueue(ctx, types.KindTaskStatusChanged, jobs.TaskStatusChangedPayload{
		EntityID:       item.ID,
		Status:         item.Status,
		PreviousStatus: previousStatus,
	}, fmt.Sprintf("status:%s:%s", item.ID, item.Status))
}

func (h *Hooks) TaskDeleted(ctx context.Context, id string) {
	h.invalidate(ctx, id)
}

func (h *Hooks) invalidate(ctx context.Context, id string) {
	res := h.coordinator.InvalidateMutation(ctx, Namespace, EntityKind, id, h.scopes)
	if !res.OK() {
		h.logger.Warn("cache invalidation incomplete", "task_id", id, "deleted", res.Deleted, "error", res.Err())
		return
	}
	h.logger.Debug("cache invalidated", "task_id", id, "deleted", res.Deleted)
}

func (h *Hooks) enqueue(ctx context.Context, kind types.JobKind, payload any, dedupeID string) (queue.EnqueueResult, error) {
	res, err := h.queue.Enqueue(ctx, kind, payload, queue.EnqueueOptions{DedupeID: dedupeID})
	if err != nil {
		return res, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	return res, nil
}
