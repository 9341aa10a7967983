package jobs

import "time"

type TaskStatusChangedPayload struct {
	EntityID       string `json:"entityId" validate:"required"`
	Status         string `json:"status" validate:"required"`
	PreviousStatus string `json:"previousStatus,omitempty"`
}

type TaskCreatedPayload struct {
	EntityID string `json:"entityId" validate:"required"`
	Status   string `json:"status" validate:"required"`
}

type TaskOverduePayload struct {
	EntityID  string    `json:"entityId" validate:"required"`
	Title     string    `json:"title" validate:"required"`
	DueAt     time.Time `json:"dueAt" validate:"required"`
	Status    string    `json:"status" validate:"required"`
	OwnerID   string    `json:"ownerId" validate:"required"`
	OverdueBy string    `json:"overdueBy" validate:"required"`
}
