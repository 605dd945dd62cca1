package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/transfa/superapp-backend/internal/domain"
)

const bankAccountColumns = `id, user_id, bank_name, bank_code, account_number, account_name, is_verified, created_at`

func scanBankAccount(row pgx.Row) (*domain.BankAccount, error) {
	var item domain.BankAccount
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.BankName,
		&item.BankCode,
		&item.AccountNumber,
		&item.AccountName,
		&item.IsVerified,
		&item.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBankAccountNotFound
		}
		return nil, err
	}
	item.MaskedNumber = domain.MaskAccountNumber(item.AccountNumber)
	return &item, nil
}

// CreateBankAccount links an external account. The (bank, number) pair is unique
// across all users, so a second link returns ErrBankAccountLinked.
func (r *PostgresRepository) CreateBankAccount(ctx context.Context, account *domain.BankAccount, events []domain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin bank account tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}
	if err := tx.QueryRow(ctx, `
		INSERT INTO bank_accounts (id, user_id, bank_name, bank_code, account_number, account_name, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`,
		account.ID,
		account.UserID,
		account.BankName,
		account.BankCode,
		account.AccountNumber,
		account.AccountName,
		account.IsVerified,
	).Scan(&account.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrBankAccountLinked
		}
		return fmt.Errorf("insert bank account: %w", err)
	}
	account.MaskedNumber = domain.MaskAccountNumber(account.AccountNumber)

	if err := enqueueEventsTx(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListBankAccounts returns the user's linked accounts, newest first.
func (r *PostgresRepository) ListBankAccounts(ctx context.Context, userID uuid.UUID) ([]domain.BankAccount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bankAccountColumns+`
		FROM bank_accounts
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.BankAccount, 0)
	for rows.Next() {
		item, err := scanBankAccount(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *item)
	}
	return results, rows.Err()
}

// FindBankAccountByID retrieves one of the user's linked accounts.
func (r *PostgresRepository) FindBankAccountByID(ctx context.Context, userID uuid.UUID, bankAccountID uuid.UUID) (*domain.BankAccount, error) {
	return scanBankAccount(r.db.QueryRow(ctx, `
		SELECT `+bankAccountColumns+` FROM bank_accounts WHERE id = $1 AND user_id = $2
	`, bankAccountID, userID))
}
