package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/domain"
)

// ListNotifications returns the user's in-app notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, userID uuid.UUID, opts domain.NotificationListOptions) ([]domain.Notification, error) {
	items, err := s.repo.ListNotifications(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return items, nil
}

// MarkNotificationRead marks one of the user's notifications read.
func (s *Service) MarkNotificationRead(ctx context.Context, userID uuid.UUID, notificationID uuid.UUID) (*domain.Notification, error) {
	return s.repo.MarkNotificationRead(ctx, userID, notificationID)
}
