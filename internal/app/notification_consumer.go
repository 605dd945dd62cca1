package app

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/internal/logging"
	"github.com/transfa/superapp-backend/internal/store"
	"go.uber.org/zap"
)

const notificationHandleTimeout = 30 * time.Second

// NotificationConsumer persists notification.requested events as in-app notifications.
type NotificationConsumer struct {
	repo   store.Repository
	logger *logging.Logger
}

func NewNotificationConsumer(repo store.Repository, logger *logging.Logger) *NotificationConsumer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &NotificationConsumer{repo: repo, logger: logger.Component("notification_consumer")}
}

// HandleMessage returns true when the delivery should be acknowledged. Malformed
// events are dropped; storage errors re-queue the delivery.
func (c *NotificationConsumer) HandleMessage(body []byte) bool {
	var event domain.NotificationEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Warn("dropping malformed notification event", zap.Error(err))
		return true
	}
	if event.UserID == uuid.Nil || strings.TrimSpace(event.Title) == "" {
		c.logger.Warn("dropping notification event without user or title", zap.String("dedupe_key", event.DedupeKey))
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), notificationHandleTimeout)
	defer cancel()

	item := &domain.Notification{
		ID:        uuid.New(),
		UserID:    event.UserID,
		Category:  event.Category,
		Title:     event.Title,
		Message:   event.Message,
		Reference: event.Reference,
	}
	var dedupe *string
	if event.DedupeKey != "" {
		dedupe = &event.DedupeKey
	}

	created, err := c.repo.CreateNotification(ctx, item, dedupe)
	if err != nil {
		c.logger.Error("failed to store notification", logUser(event.UserID), zap.String("category", event.Category), zap.Error(err))
		return false
	}
	if !created {
		c.logger.Debug("duplicate notification ignored", zap.String("dedupe_key", event.DedupeKey))
		return true
	}

	// Push and email providers are not wired; delivery is recorded in the log.
	c.logger.Info("notification delivered",
		zap.String("outcome", "delivered"),
		zap.String("channel", "in_app"),
		logUser(event.UserID),
		zap.String("category", event.Category),
		zap.String("notification_id", item.ID.String()),
	)
	return true
}
