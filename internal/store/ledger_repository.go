package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/transfa/superapp-backend/internal/domain"
)

const accountColumns = `id, user_id, code, kind, currency, balance, allow_negative, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var account domain.Account
	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.Code,
		&account.Kind,
		&account.Currency,
		&account.Balance,
		&account.AllowNegative,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindWalletByUserID retrieves the user's wallet account.
func (r *PostgresRepository) FindWalletByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1 AND kind = 'wallet'`
	return scanAccount(r.db.QueryRow(ctx, query, userID))
}

// FindSystemAccount retrieves a seeded system account by code.
func (r *PostgresRepository) FindSystemAccount(ctx context.Context, code string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE code = $1 AND kind = 'system'`
	return scanAccount(r.db.QueryRow(ctx, query, code))
}

// PostTransaction applies a balanced posting and records the transaction and its events.
func (r *PostgresRepository) PostTransaction(ctx context.Context, write LedgerWrite) (*PostingResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin posting tx: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := postLedgerWriteTx(ctx, tx, write)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// postLedgerWriteTx runs the whole LedgerWrite inside tx.
func postLedgerWriteTx(ctx context.Context, tx pgx.Tx, write LedgerWrite) (*PostingResult, error) {
	if err := markIdempotencyAppliedTx(ctx, tx); err != nil {
		return nil, err
	}
	ledgerTxID, balances, err := applyPostingTx(ctx, tx, write.Posting)
	if err != nil {
		return nil, err
	}

	record := write.Transaction
	record.LedgerTransactionID = &ledgerTxID
	if err := insertTransactionTx(ctx, tx, &record); err != nil {
		return nil, err
	}
	if err := enqueueEventsTx(ctx, tx, write.Events); err != nil {
		return nil, err
	}

	return &PostingResult{
		LedgerTransactionID: ledgerTxID,
		Transaction:         record,
		Balances:            balances,
	}, nil
}

// applyPostingTx locks every account of the posting in id order, checks that no
// non-negative account would go below zero, then writes the ledger transaction,
// its entries and the new balances.
func applyPostingTx(ctx context.Context, tx pgx.Tx, posting domain.Posting) (uuid.UUID, map[uuid.UUID]int64, error) {
	if err := posting.Validate(); err != nil {
		return uuid.Nil, nil, err
	}

	type lockedAccount struct {
		balance       int64
		allowNegative bool
	}
	locked := make(map[uuid.UUID]lockedAccount, len(posting.Legs))
	for _, accountID := range posting.LockOrder() {
		var account lockedAccount
		// Use FOR UPDATE to lock the row, preventing race conditions.
		err := tx.QueryRow(ctx,
			`SELECT balance, allow_negative FROM accounts WHERE id = $1 FOR UPDATE`,
			accountID,
		).Scan(&account.balance, &account.allowNegative)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return uuid.Nil, nil, ErrAccountNotFound
			}
			return uuid.Nil, nil, fmt.Errorf("lock account: %w", err)
		}
		locked[accountID] = account
	}

	balances := make(map[uuid.UUID]int64, len(posting.Legs))
	for _, leg := range posting.Legs {
		account := locked[leg.AccountID]
		next, err := domain.AddAmounts(account.balance, leg.Amount)
		if err != nil {
			return uuid.Nil, nil, err
		}
		if !account.allowNegative && next < 0 {
			return uuid.Nil, nil, ErrInsufficientFunds
		}
		balances[leg.AccountID] = next
	}

	var ledgerTxID uuid.UUID
	if err := tx.QueryRow(ctx, `
		INSERT INTO ledger_transactions (kind, reference)
		VALUES ($1, NULLIF($2, ''))
		RETURNING id
	`, posting.Kind, posting.Reference).Scan(&ledgerTxID); err != nil {
		return uuid.Nil, nil, fmt.Errorf("insert ledger transaction: %w", err)
	}

	for _, leg := range posting.Legs {
		balanceAfter := balances[leg.AccountID]
		if _, err := tx.Exec(ctx, `
			UPDATE accounts SET balance = $1, updated_at = NOW() WHERE id = $2
		`, balanceAfter, leg.AccountID); err != nil {
			if isCheckViolation(err, "accounts_non_negative") {
				return uuid.Nil, nil, ErrInsufficientFunds
			}
			return uuid.Nil, nil, fmt.Errorf("update account balance: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO ledger_entries (ledger_transaction_id, account_id, amount, balance_after)
			VALUES ($1, $2, $3, $4)
		`, ledgerTxID, leg.AccountID, leg.Amount, balanceAfter); err != nil {
			return uuid.Nil, nil, fmt.Errorf("insert ledger entry: %w", err)
		}
	}

	return ledgerTxID, balances, nil
}

func insertTransactionTx(ctx context.Context, tx pgx.Tx, record *domain.Transaction) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	query := `
		INSERT INTO transactions (
			id, ledger_transaction_id, type, status, sender_id, receiver_id,
			amount, currency, description, reference
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	if err := tx.QueryRow(ctx, query,
		record.ID,
		record.LedgerTransactionID,
		record.Type,
		record.Status,
		record.SenderID,
		record.ReceiverID,
		record.Amount,
		record.Currency,
		record.Description,
		record.Reference,
	).Scan(&record.CreatedAt); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

func updateTransactionStatusTx(ctx context.Context, tx pgx.Tx, transactionID uuid.UUID, status string) error {
	result, err := tx.Exec(ctx, `UPDATE transactions SET status = $1 WHERE id = $2`, status, transactionID)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// ListTransactionsByUser lists transactions where the user is sender or receiver, newest first.
func (r *PostgresRepository) ListTransactionsByUser(ctx context.Context, userID uuid.UUID, opts domain.TransactionListOptions) ([]domain.Transaction, error) {
	limit, offset := normalizeListOptions(opts.ListOptions)

	query := `
		SELECT
			t.id, t.ledger_transaction_id, t.type, t.status, t.sender_id, t.receiver_id,
			su.email, ru.email, t.amount, t.currency, t.description, t.reference, t.created_at
		FROM transactions t
		LEFT JOIN users su ON su.id = t.sender_id
		LEFT JOIN users ru ON ru.id = t.receiver_id
		WHERE (t.sender_id = $1 OR t.receiver_id = $1)
	`
	args := []interface{}{userID}
	argPos := 2
	if txType := strings.TrimSpace(strings.ToLower(opts.Type)); txType != "" {
		query += fmt.Sprintf(" AND t.type = $%d", argPos)
		args = append(args, txType)
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY t.created_at DESC, t.id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		var item domain.Transaction
		if err := rows.Scan(
			&item.ID,
			&item.LedgerTransactionID,
			&item.Type,
			&item.Status,
			&item.SenderID,
			&item.ReceiverID,
			&item.SenderEmail,
			&item.ReceiverEmail,
			&item.Amount,
			&item.Currency,
			&item.Description,
			&item.Reference,
			&item.CreatedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, rows.Err()
}

func enqueueEventsTx(ctx context.Context, tx pgx.Tx, events []domain.OutboxEvent) error {
	for _, event := range events {
		if err := enqueueEventTx(ctx, tx, event.Exchange, event.RoutingKey, event.Payload); err != nil {
			return err
		}
	}
	return nil
}

func enqueueEventTx(ctx context.Context, tx pgx.Tx, exchange, routingKey string, payload interface{}) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO event_outbox (exchange, routing_key, payload)
		VALUES ($1, $2, $3::jsonb)
	`, strings.TrimSpace(exchange), strings.TrimSpace(routingKey), string(blob))
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}
