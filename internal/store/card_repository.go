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

const cardColumns = `id, user_id, last4, processor_card_id, status, activated_at, created_at`

const cardTransactionColumns = `
	id, card_id, user_id, type, amount, merchant, status,
	authorization_code, decline_reason, transaction_id, created_at
`

func scanCard(row pgx.Row) (*domain.Card, error) {
	var card domain.Card
	err := row.Scan(
		&card.ID,
		&card.UserID,
		&card.Last4,
		&card.ProcessorCardID,
		&card.Status,
		&card.ActivatedAt,
		&card.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, err
	}
	return &card, nil
}

func scanCardTransaction(row pgx.Row) (*domain.CardTransaction, error) {
	var item domain.CardTransaction
	err := row.Scan(
		&item.ID,
		&item.CardID,
		&item.UserID,
		&item.Type,
		&item.Amount,
		&item.Merchant,
		&item.Status,
		&item.AuthorizationCode,
		&item.DeclineReason,
		&item.TransactionID,
		&item.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardTransactionNotFound
		}
		return nil, err
	}
	return &item, nil
}

// CreateCard stores a newly issued card. A user holds at most one card.
func (r *PostgresRepository) CreateCard(ctx context.Context, card *domain.Card) error {
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO cards (id, user_id, last4, processor_card_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, card.ID, card.UserID, card.Last4, card.ProcessorCardID, card.Status).Scan(&card.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrCardExists
		}
		return err
	}
	return nil
}

// FindCardByUserID retrieves the user's card.
func (r *PostgresRepository) FindCardByUserID(ctx context.Context, userID uuid.UUID) (*domain.Card, error) {
	return scanCard(r.db.QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE user_id = $1`, userID))
}

// SetCardStatus moves the user's card to status. Activating an active card returns
// ErrCardAlreadyActive and deactivating an inactive one returns ErrCardNotActive.
func (r *PostgresRepository) SetCardStatus(ctx context.Context, userID uuid.UUID, status string, events []domain.OutboxEvent) (*domain.Card, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin card status tx: %w", err)
	}
	defer tx.Rollback(ctx)

	card, err := scanCard(tx.QueryRow(ctx, `SELECT `+cardColumns+` FROM cards WHERE user_id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, err
	}
	switch {
	case status == domain.CardStatusActive && card.Status == domain.CardStatusActive:
		return nil, ErrCardAlreadyActive
	case status == domain.CardStatusInactive && card.Status != domain.CardStatusActive:
		return nil, ErrCardNotActive
	}

	updated, err := scanCard(tx.QueryRow(ctx, `
		UPDATE cards
		SET status = $2,
			activated_at = CASE WHEN $2 = 'active' THEN NOW() ELSE activated_at END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+cardColumns,
		card.ID, status,
	))
	if err != nil {
		return nil, fmt.Errorf("update card status: %w", err)
	}
	if err := enqueueEventsTx(ctx, tx, events); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// CreateCardTransaction holds funds for a card transaction. The card row is locked
// and must be active; the posting and the pending card transaction commit together.
func (r *PostgresRepository) CreateCardTransaction(ctx context.Context, cardTx *domain.CardTransaction, write LedgerWrite) (*PostingResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin card transaction tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	err = tx.QueryRow(ctx, `SELECT status FROM cards WHERE id = $1 AND user_id = $2 FOR SHARE`, cardTx.CardID, cardTx.UserID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("lock card: %w", err)
	}
	if status != domain.CardStatusActive {
		return nil, ErrCardNotActive
	}

	result, err := postLedgerWriteTx(ctx, tx, write)
	if err != nil {
		return nil, err
	}

	if cardTx.ID == uuid.Nil {
		cardTx.ID = uuid.New()
	}
	cardTx.Status = domain.CardTransactionPending
	cardTx.TransactionID = &result.Transaction.ID
	if err := tx.QueryRow(ctx, `
		INSERT INTO card_transactions (id, card_id, user_id, type, amount, merchant, status, transaction_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`,
		cardTx.ID,
		cardTx.CardID,
		cardTx.UserID,
		cardTx.Type,
		cardTx.Amount,
		cardTx.Merchant,
		cardTx.Status,
		cardTx.TransactionID,
	).Scan(&cardTx.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert card transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// ListStaleCardTransactions returns pending card transactions created before cutoff,
// oldest first.
func (r *PostgresRepository) ListStaleCardTransactions(ctx context.Context, cutoff time.Time, limit int) ([]domain.CardTransaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+cardTransactionColumns+`
		FROM card_transactions
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at, id
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.CardTransaction, error) {
		item, err := scanCardTransaction(row)
		if err != nil {
			return domain.CardTransaction{}, err
		}
		return *item, nil
	})
}

func lockPendingCardTransactionTx(ctx context.Context, tx pgx.Tx, cardTxID uuid.UUID) (*domain.CardTransaction, error) {
	item, err := scanCardTransaction(tx.QueryRow(ctx, `
		SELECT `+cardTransactionColumns+`
		FROM card_transactions
		WHERE id = $1
		FOR UPDATE
	`, cardTxID))
	if err != nil {
		return nil, err
	}
	if item.Status != domain.CardTransactionPending {
		return nil, fmt.Errorf("card transaction %s is %s: %w", item.ID, item.Status, ErrCardTransactionNotFound)
	}
	return item, nil
}

// ApproveCardTransaction finalizes an authorized card transaction.
func (r *PostgresRepository) ApproveCardTransaction(ctx context.Context, cardTxID uuid.UUID, authorizationCode string, events []domain.OutboxEvent) (*domain.CardTransaction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin card approval tx: %w", err)
	}
	defer tx.Rollback(ctx)

	item, err := lockPendingCardTransactionTx(ctx, tx, cardTxID)
	if err != nil {
		return nil, err
	}

	updated, err := scanCardTransaction(tx.QueryRow(ctx, `
		UPDATE card_transactions
		SET status = 'approved', authorization_code = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+cardTransactionColumns,
		item.ID, authorizationCode,
	))
	if err != nil {
		return nil, fmt.Errorf("approve card transaction: %w", err)
	}
	if item.TransactionID != nil {
		if err := updateTransactionStatusTx(ctx, tx, *item.TransactionID, domain.TransactionStatusCompleted); err != nil {
			return nil, err
		}
	}
	if err := enqueueEventsTx(ctx, tx, events); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// DeclineCardTransaction applies the compensating posting and marks the card
// transaction declined and its original transaction reversed.
func (r *PostgresRepository) DeclineCardTransaction(ctx context.Context, cardTxID uuid.UUID, reason string, reversal LedgerWrite) (*domain.CardTransaction, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin card decline tx: %w", err)
	}
	defer tx.Rollback(ctx)

	item, err := lockPendingCardTransactionTx(ctx, tx, cardTxID)
	if err != nil {
		return nil, err
	}

	if _, err := postLedgerWriteTx(ctx, tx, reversal); err != nil {
		return nil, fmt.Errorf("reverse card hold: %w", err)
	}
	if item.TransactionID != nil {
		if err := updateTransactionStatusTx(ctx, tx, *item.TransactionID, domain.TransactionStatusReversed); err != nil {
			return nil, err
		}
	}

	updated, err := scanCardTransaction(tx.QueryRow(ctx, `
		UPDATE card_transactions
		SET status = 'declined', decline_reason = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+cardTransactionColumns,
		item.ID, reason,
	))
	if err != nil {
		return nil, fmt.Errorf("decline card transaction: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}
