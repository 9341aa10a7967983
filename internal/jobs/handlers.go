package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/taskfire/custom_errors"
	"github.com/RezaEskandarii/taskfire/internal/store"
	"github.com/RezaEskandarii/taskfire/types"
)

// Handlers holds the side effects of every job kind: load the work item and
// publish a notification about it.
type Handlers struct {
	tasks    store.TaskStore
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func NewHandlers(tasks store.TaskStore, notifier Notifier, logger *slog.Logger) *Handlers {
	return &Handlers{
		tasks:    tasks,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterAll binds every job kind to its handler.
func (h *Handlers) RegisterAll(r *Registry) error {
	return errors.Join(
		Register(r, types.KindTaskStatusChanged, h.TaskStatusChanged),
		Register(r, types.KindTaskCreated, h.TaskCreated),
		Register(r, types.KindTaskOverdue, h.TaskOverdue),
	)
}

func (h *Handlers) TaskStatusChanged(ctx context.Context, p TaskStatusChangedPayload) error {
	item, err := h.loadTask(ctx, "task.status_changed", p.EntityID)
	if err != nil {
		return err
	}
	return h.notify(ctx, "task.status_changed", Notification{
		Type:           types.KindTaskStatusChanged.String(),
		EntityID:       item.ID,
		OwnerID:        item.OwnerID,
		Title:          item.Title,
		Status:         p.Status,
		PreviousStatus: p.PreviousStatus,
		OccurredAt:     h.now(),
	})
}

func (h *Handlers) TaskCreated(ctx context.Context, p TaskCreatedPayload) error {
	item, err := h.loadTask(ctx, "task.created", p.EntityID)
	if err != nil {
		return err
	}
	return h.notify(ctx, "task.created", Notification{
		Type:       types.KindTaskCreated.String(),
		EntityID:   item.ID,
		OwnerID:    item.OwnerID,
		Title:      item.Title,
		Status:     p.Status,
		OccurredAt: h.now(),
	})
}

func (h *Handlers) TaskOverdue(ctx context.Context, p TaskOverduePayload) error {
	item, err := h.loadTask(ctx, "task.overdue", p.EntityID)
	if err != nil {
		return err
	}

	now := h.now()
	if item.DueAt.IsZero() || !item.DueAt.Before(now) {
		h.logger.Info("task no longer overdue, skipping notification", "task_id", item.ID)
		return nil
	}

	return h.notify(ctx, "task.overdue", Notification{
		Type:       types.KindTaskOverdue.String(),
		EntityID:   item.ID,
		OwnerID:    item.OwnerID,
		Title:      item.Title,
		Status:     item.Status,
		OverdueBy:  FormatOverdueBy(now, item.DueAt),
		OccurredAt: now,
	})
}

func (h *Handlers) loadTask(ctx context.Context, op, id string) (*types.WorkItem, error) {
	item, err := h.tasks.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, custom_errors.NotFound(op, err)
	}
	if err != nil {
		return nil, custom_errors.Infrastructure(op, err)
	}
	return item, nil
}

func (h *Handlers) notify(ctx context.Context, op string, n Notification) error {
	if err := h.notifier.Notify(ctx, n); err != nil {
		return custom_errors.Infrastructure(op, err)
	}
	return nil
}
