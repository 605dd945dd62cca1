package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/transfa/superapp-backend/internal/domain"
)

const notificationColumns = `id, user_id, category, title, message, reference, read_at, created_at`

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var item domain.Notification
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.Category,
		&item.Title,
		&item.Message,
		&item.Reference,
		&item.ReadAt,
		&item.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return &item, nil
}

// CreateNotification stores an in-app notification. When dedupeKey is set a
// redelivered event is ignored and false is returned.
func (r *PostgresRepository) CreateNotification(ctx context.Context, item *domain.Notification, dedupeKey *string) (bool, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if dedupeKey != nil && strings.TrimSpace(*dedupeKey) == "" {
		dedupeKey = nil
	}

	err := r.db.QueryRow(ctx, `
		INSERT INTO notifications (id, user_id, category, title, message, reference, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (dedupe_key) DO NOTHING
		RETURNING created_at
	`,
		item.ID,
		item.UserID,
		item.Category,
		item.Title,
		item.Message,
		item.Reference,
		dedupeKey,
	).Scan(&item.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ListNotifications retrieves the user's notifications, newest first.
func (r *PostgresRepository) ListNotifications(ctx context.Context, userID uuid.UUID, opts domain.NotificationListOptions) ([]domain.Notification, error) {
	limit, offset := normalizeListOptions(opts.ListOptions)

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = $1`
	if opts.UnreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Notification, 0, limit)
	for rows.Next() {
		item, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *item)
	}
	return results, rows.Err()
}

// MarkNotificationRead marks one of the user's notifications read.
func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, userID uuid.UUID, notificationID uuid.UUID) (*domain.Notification, error) {
	return scanNotification(r.db.QueryRow(ctx, `
		UPDATE notifications
		SET read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND user_id = $2
		RETURNING `+notificationColumns,
		notificationID, userID,
	))
}
