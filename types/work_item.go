package types

import "time"

// WorkItem is the task record owned by the external CRUD layer.
// Only the fields the background core reads are mapped.
type WorkItem struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Status  string    `json:"status"`
	OwnerID string    `json:"ownerId"`
	DueAt   time.Time `json:"dueAt"`
}
