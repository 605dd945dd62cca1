package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/transfa/superapp-backend/internal/domain"
)

const (
	defaultOutboxBatch     = 50
	defaultOutboxStaleSecs = 120
	maxOutboxErrorLength   = 2000
)

// claimOutboxSQL picks due pending rows plus rows whose dispatcher died mid-publish.
// SKIP LOCKED lets several workers claim disjoint batches.
const claimOutboxSQL = `
	UPDATE event_outbox AS o
	SET status = 'processing',
		processing_started_at = NOW(),
		attempts = o.attempts + 1
	FROM (
		SELECT id
		FROM event_outbox
		WHERE (status = 'pending' AND next_attempt_at <= NOW())
		   OR (status = 'processing' AND processing_started_at < NOW() - make_interval(secs => $2))
		ORDER BY next_attempt_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	) AS due
	WHERE o.id = due.id
	RETURNING o.id, o.exchange, o.routing_key, o.payload::text, o.attempts`

// ClaimOutboxMessages moves up to limit due rows to processing.
func (r *PostgresRepository) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultOutboxBatch
	}
	if staleAfterSeconds <= 0 {
		staleAfterSeconds = defaultOutboxStaleSecs
	}

	rows, err := r.db.Query(ctx, claimOutboxSQL, limit, staleAfterSeconds)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.OutboxMessage, error) {
		var (
			msg     domain.OutboxMessage
			payload string
		)
		err := row.Scan(&msg.ID, &msg.Exchange, &msg.RoutingKey, &payload, &msg.Attempts)
		msg.Payload = []byte(payload)
		return msg, err
	})
}

func (r *PostgresRepository) MarkOutboxPublished(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE event_outbox
		SET status = 'published', published_at = NOW(), processing_started_at = NULL, last_error = NULL
		WHERE id = $1`, id)
	return err
}

// MarkOutboxFailed returns the row to pending with a retry delay of at least a second.
func (r *PostgresRepository) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	retryAfterSeconds = max(retryAfterSeconds, 1)
	if len(reason) > maxOutboxErrorLength {
		reason = reason[:maxOutboxErrorLength]
	}
	_, err := r.db.Exec(ctx, `
		UPDATE event_outbox
		SET status = 'pending',
			next_attempt_at = NOW() + make_interval(secs => $2),
			processing_started_at = NULL,
			last_error = $3
		WHERE id = $1`, id, retryAfterSeconds, reason)
	return err
}
