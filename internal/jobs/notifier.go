package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/RezaEskandarii/taskfire/internal/message_broaker"
)

// Notification is the message published for every handled job.
type Notification struct {
	Type           string    `json:"type"`
	EntityID       string    `json:"entityId"`
	OwnerID        string    `json:"ownerId,omitempty"`
	Title          string    `json:"title,omitempty"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	OverdueBy      string    `json:"overdueBy,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// BrokerNotifier publishes notifications as JSON, routed by notification type.
type BrokerNotifier struct {
	broker message_broaker.MessageBroker
}

func NewBrokerNotifier(broker message_broaker.MessageBroker) *BrokerNotifier {
	return &BrokerNotifier{broker: broker}
}

func (n *BrokerNotifier) Notify(ctx context.Context, notification Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.broker.Publish(ctx, notification.Type, body); err != nil {
		return fmt.Errorf("publish %s notification: %w", notification.Type, err)
	}
	return nil
}

// LogNotifier writes notifications to the log instead of a broker.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, notification Notification) error {
	n.logger.Info("notification",
		"type", notification.Type,
		"entity_id", notification.EntityID,
		"owner_id", notification.OwnerID,
		"status", notification.Status,
		"overdue_by", notification.OverdueBy,
	)
	return nil
}
