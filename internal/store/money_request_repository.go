package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/transfa/superapp-backend/internal/domain"
)

const moneyRequestSelect = `
	SELECT
		mr.id, mr.requester_id, mr.recipient_id, req.email, rec.email,
		mr.amount, mr.note, mr.status, mr.reminder_date, mr.reminder_sent_at,
		mr.settled_transaction_id, mr.created_at
	FROM money_requests mr
	JOIN users req ON req.id = mr.requester_id
	JOIN users rec ON rec.id = mr.recipient_id
`

func scanMoneyRequest(row pgx.Row) (*domain.MoneyRequest, error) {
	var item domain.MoneyRequest
	err := row.Scan(
		&item.ID,
		&item.RequesterID,
		&item.RecipientID,
		&item.RequesterEmail,
		&item.RecipientEmail,
		&item.Amount,
		&item.Note,
		&item.Status,
		&item.ReminderDate,
		&item.ReminderSentAt,
		&item.SettledTransactionID,
		&item.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMoneyRequestNotFound
		}
		return nil, err
	}
	return &item, nil
}

// CreateMoneyRequest inserts a pending request together with its events.
func (r *PostgresRepository) CreateMoneyRequest(ctx context.Context, req *domain.MoneyRequest, events []domain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin money request tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.Status = domain.MoneyRequestPending
	query := `
		INSERT INTO money_requests (id, requester_id, recipient_id, amount, note, status, reminder_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	if err := tx.QueryRow(ctx, query,
		req.ID,
		req.RequesterID,
		req.RecipientID,
		req.Amount,
		req.Note,
		req.Status,
		req.ReminderDate,
	).Scan(&req.CreatedAt); err != nil {
		return fmt.Errorf("insert money request: %w", err)
	}

	if err := enqueueEventsTx(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListMoneyRequests lists requests the user made, or with Incoming set, requests addressed to the user.
func (r *PostgresRepository) ListMoneyRequests(ctx context.Context, userID uuid.UUID, opts domain.MoneyRequestListOptions) ([]domain.MoneyRequest, error) {
	limit, offset := normalizeListOptions(opts.ListOptions)

	column := "mr.requester_id"
	if opts.Incoming {
		column = "mr.recipient_id"
	}
	query := moneyRequestSelect + ` WHERE ` + column + ` = $1 ORDER BY mr.created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.MoneyRequest, 0, limit)
	for rows.Next() {
		item, err := scanMoneyRequest(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *item)
	}
	return results, rows.Err()
}

// FindMoneyRequestByID retrieves one request with both parties' emails.
func (r *PostgresRepository) FindMoneyRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.MoneyRequest, error) {
	return scanMoneyRequest(r.db.QueryRow(ctx, moneyRequestSelect+` WHERE mr.id = $1`, requestID))
}

// lockMoneyRequestTx locks the request row and checks it is pending.
func lockMoneyRequestTx(ctx context.Context, tx pgx.Tx, requestID uuid.UUID) (*domain.MoneyRequest, error) {
	var item domain.MoneyRequest
	err := tx.QueryRow(ctx, `
		SELECT id, requester_id, recipient_id, amount, status
		FROM money_requests
		WHERE id = $1
		FOR UPDATE
	`, requestID).Scan(&item.ID, &item.RequesterID, &item.RecipientID, &item.Amount, &item.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMoneyRequestNotFound
		}
		return nil, fmt.Errorf("lock money request: %w", err)
	}
	if item.Status != domain.MoneyRequestPending {
		return nil, ErrMoneyRequestNotPending
	}
	return &item, nil
}

// PayMoneyRequest settles a pending request with the given transfer and marks it completed.
func (r *PostgresRepository) PayMoneyRequest(ctx context.Context, requestID uuid.UUID, recipientID uuid.UUID, write LedgerWrite) (*PostingResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin money request payment tx: %w", err)
	}
	defer tx.Rollback(ctx)

	item, err := lockMoneyRequestTx(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if item.RecipientID != recipientID {
		return nil, ErrMoneyRequestNotFound
	}

	result, err := postLedgerWriteTx(ctx, tx, write)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE money_requests
		SET status = $2, settled_transaction_id = $3, updated_at = NOW()
		WHERE id = $1
	`, requestID, domain.MoneyRequestCompleted, result.Transaction.ID); err != nil {
		return nil, fmt.Errorf("complete money request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// DeclineMoneyRequest lets the recipient decline a pending request.
func (r *PostgresRepository) DeclineMoneyRequest(ctx context.Context, requestID uuid.UUID, recipientID uuid.UUID, events []domain.OutboxEvent) (*domain.MoneyRequest, error) {
	return r.closeMoneyRequest(ctx, requestID, func(item *domain.MoneyRequest) bool {
		return item.RecipientID == recipientID
	}, domain.MoneyRequestDeclined, events)
}

// CancelMoneyRequest lets the requester withdraw a pending request.
func (r *PostgresRepository) CancelMoneyRequest(ctx context.Context, requestID uuid.UUID, requesterID uuid.UUID, events []domain.OutboxEvent) (*domain.MoneyRequest, error) {
	return r.closeMoneyRequest(ctx, requestID, func(item *domain.MoneyRequest) bool {
		return item.RequesterID == requesterID
	}, domain.MoneyRequestCancelled, events)
}

func (r *PostgresRepository) closeMoneyRequest(
	ctx context.Context,
	requestID uuid.UUID,
	allowed func(*domain.MoneyRequest) bool,
	status string,
	events []domain.OutboxEvent,
) (*domain.MoneyRequest, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin money request tx: %w", err)
	}
	defer tx.Rollback(ctx)

	item, err := lockMoneyRequestTx(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if !allowed(item) {
		return nil, ErrMoneyRequestNotFound
	}

	if _, err := tx.Exec(ctx, `
		UPDATE money_requests SET status = $2, updated_at = NOW() WHERE id = $1
	`, requestID, status); err != nil {
		return nil, fmt.Errorf("update money request status: %w", err)
	}
	if err := enqueueEventsTx(ctx, tx, events); err != nil {
		return nil, err
	}

	updated, err := scanMoneyRequest(tx.QueryRow(ctx, moneyRequestSelect+` WHERE mr.id = $1`, requestID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// ListDueMoneyRequestReminders returns pending requests whose reminder is due and not yet sent.
func (r *PostgresRepository) ListDueMoneyRequestReminders(ctx context.Context, asOf time.Time, limit int) ([]domain.MoneyRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	query := moneyRequestSelect + `
		WHERE mr.status = 'pending'
		  AND mr.reminder_sent_at IS NULL
		  AND mr.reminder_date IS NOT NULL
		  AND mr.reminder_date <= $1
		ORDER BY mr.reminder_date
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.MoneyRequest, 0)
	for rows.Next() {
		item, err := scanMoneyRequest(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *item)
	}
	return results, rows.Err()
}

// MarkMoneyRequestReminded stamps reminder_sent_at and enqueues the reminder. It
// reports false when another worker already sent it or the request was settled.
func (r *PostgresRepository) MarkMoneyRequestReminded(ctx context.Context, requestID uuid.UUID, events []domain.OutboxEvent) (bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin reminder tx: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE money_requests
		SET reminder_sent_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND reminder_sent_at IS NULL
	`, requestID)
	if err != nil {
		return false, fmt.Errorf("mark reminder sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return false, nil
	}
	if err := enqueueEventsTx(ctx, tx, events); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
