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

const billPaymentColumns = `
	id, user_id, payee, amount, due_date, is_recurring, recurring_bill_id,
	status, failure_reason, transaction_id, paid_at, created_at
`

const recurringBillColumns = `id, user_id, payee, amount, frequency, next_due_date, anchor_day, active, created_at`

func scanBillPayment(row pgx.Row) (*domain.BillPayment, error) {
	var item domain.BillPayment
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.Payee,
		&item.Amount,
		&item.DueDate,
		&item.IsRecurring,
		&item.RecurringBillID,
		&item.Status,
		&item.FailureReason,
		&item.TransactionID,
		&item.PaidAt,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func scanRecurringBill(row pgx.Row) (*domain.RecurringBill, error) {
	var item domain.RecurringBill
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.Payee,
		&item.Amount,
		&item.Frequency,
		&item.NextDueDate,
		&item.AnchorDay,
		&item.Active,
		&item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateBillPayment stores a bill payment, its optional recurring schedule and, when
// write is set, the posting that pays it now. Everything commits together.
func (r *PostgresRepository) CreateBillPayment(ctx context.Context, payment *domain.BillPayment, recurring *domain.RecurringBill, write *LedgerWrite) (*PostingResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin bill payment tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if recurring != nil {
		if recurring.ID == uuid.Nil {
			recurring.ID = uuid.New()
		}
		recurring.Active = true
		if err := tx.QueryRow(ctx, `
			INSERT INTO recurring_bills (id, user_id, payee, amount, frequency, next_due_date, anchor_day, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at
		`,
			recurring.ID,
			recurring.UserID,
			recurring.Payee,
			recurring.Amount,
			recurring.Frequency,
			recurring.NextDueDate,
			recurring.AnchorDay,
			recurring.Active,
		).Scan(&recurring.CreatedAt); err != nil {
			return nil, fmt.Errorf("insert recurring bill: %w", err)
		}
		payment.RecurringBillID = &recurring.ID
	}

	var result *PostingResult
	if write != nil {
		result, err = postLedgerWriteTx(ctx, tx, *write)
		if err != nil {
			return nil, err
		}
		paidAt := result.Transaction.CreatedAt
		payment.TransactionID = &result.Transaction.ID
		payment.PaidAt = &paidAt
	}

	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO bill_payments (
			id, user_id, payee, amount, due_date, is_recurring, recurring_bill_id,
			status, transaction_id, paid_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`,
		payment.ID,
		payment.UserID,
		payment.Payee,
		payment.Amount,
		payment.DueDate,
		payment.IsRecurring,
		payment.RecurringBillID,
		payment.Status,
		payment.TransactionID,
		payment.PaidAt,
	).Scan(&payment.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert bill payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// ListRecurringBills returns the user's active recurring bills ordered by next due date.
func (r *PostgresRepository) ListRecurringBills(ctx context.Context, userID uuid.UUID) ([]domain.RecurringBill, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+recurringBillColumns+`
		FROM recurring_bills
		WHERE user_id = $1 AND active
		ORDER BY next_due_date, created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.RecurringBill, 0)
	for rows.Next() {
		item, err := scanRecurringBill(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *item)
	}
	return results, rows.Err()
}

// DeactivateRecurringBill stops a recurring bill owned by the user.
func (r *PostgresRepository) DeactivateRecurringBill(ctx context.Context, userID uuid.UUID, billID uuid.UUID) error {
	result, err := r.db.Exec(ctx, `
		UPDATE recurring_bills SET active = FALSE WHERE id = $1 AND user_id = $2 AND active
	`, billID, userID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrRecurringBillNotFound
	}
	return nil
}

// ListDueBillPayments returns scheduled payments due on or before asOf.
func (r *PostgresRepository) ListDueBillPayments(ctx context.Context, asOf time.Time, limit int) ([]domain.BillPayment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+billPaymentColumns+`
		FROM bill_payments
		WHERE status = 'scheduled' AND due_date <= $1::date
		ORDER BY due_date, created_at
		LIMIT $2
	`, asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.BillPayment, 0)
	for rows.Next() {
		item, err := scanBillPayment(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *item)
	}
	return results, rows.Err()
}

// PayScheduledBill claims a scheduled payment with SKIP LOCKED, posts it and marks it
// completed. A payment held by another worker or no longer scheduled returns
// ErrBillPaymentNotPayable.
func (r *PostgresRepository) PayScheduledBill(ctx context.Context, paymentID uuid.UUID, write LedgerWrite) (*PostingResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin scheduled bill tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var claimed uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT id FROM bill_payments
		WHERE id = $1 AND status = 'scheduled'
		FOR UPDATE SKIP LOCKED
	`, paymentID).Scan(&claimed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBillPaymentNotPayable
		}
		return nil, fmt.Errorf("claim bill payment: %w", err)
	}

	result, err := postLedgerWriteTx(ctx, tx, write)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE bill_payments
		SET status = 'completed', transaction_id = $2, paid_at = NOW(), failure_reason = NULL
		WHERE id = $1
	`, paymentID, result.Transaction.ID); err != nil {
		return nil, fmt.Errorf("complete bill payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkBillPaymentFailed records why a scheduled payment could not be paid.
func (r *PostgresRepository) MarkBillPaymentFailed(ctx context.Context, paymentID uuid.UUID, reason string, events []domain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin bill failure tx: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE bill_payments SET status = 'failed', failure_reason = $2
		WHERE id = $1 AND status = 'scheduled'
	`, paymentID, reason)
	if err != nil {
		return fmt.Errorf("mark bill payment failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrBillPaymentNotPayable
	}
	if err := enqueueEventsTx(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListDueRecurringBills returns active recurring bills whose next due date has arrived.
func (r *PostgresRepository) ListDueRecurringBills(ctx context.Context, asOf time.Time, limit int) ([]domain.RecurringBill, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+recurringBillColumns+`
		FROM recurring_bills
		WHERE active AND next_due_date <= $1::date
		ORDER BY next_due_date
		LIMIT $2
	`, asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.RecurringBill, 0)
	for rows.Next() {
		item, err := scanRecurringBill(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *item)
	}
	return results, rows.Err()
}

// MaterializeRecurringBill turns the current period of a due recurring bill into a
// scheduled payment and advances next_due_date by one period toward anchor_day. It returns nil when
// the bill is held by another worker or is no longer due.
func (r *PostgresRepository) MaterializeRecurringBill(ctx context.Context, billID uuid.UUID, asOf time.Time) (*domain.BillPayment, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin recurring bill tx: %w", err)
	}
	defer tx.Rollback(ctx)

	bill, err := scanRecurringBill(tx.QueryRow(ctx, `
		SELECT `+recurringBillColumns+`
		FROM recurring_bills
		WHERE id = $1 AND active AND next_due_date <= $2::date
		FOR UPDATE SKIP LOCKED
	`, billID, asOf))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim recurring bill: %w", err)
	}

	payment, err := scanBillPayment(tx.QueryRow(ctx, `
		INSERT INTO bill_payments (user_id, payee, amount, due_date, is_recurring, recurring_bill_id, status)
		VALUES ($1, $2, $3, $4, TRUE, $5, 'scheduled')
		RETURNING `+billPaymentColumns,
		bill.UserID, bill.Payee, bill.Amount, bill.NextDueDate, bill.ID,
	))
	if err != nil {
		return nil, fmt.Errorf("insert recurring bill payment: %w", err)
	}

	next := domain.AdvanceDueDate(bill.NextDueDate, bill.Frequency, bill.AnchorDay)
	if _, err := tx.Exec(ctx, `
		UPDATE recurring_bills
		SET next_due_date = $2::date
		WHERE id = $1
	`, bill.ID, next); err != nil {
		return nil, fmt.Errorf("advance recurring bill: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return payment, nil
}
