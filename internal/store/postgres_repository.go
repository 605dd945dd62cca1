/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It holds the user and authentication queries plus the helpers shared by the
 * feature repositories in this package.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/superapp-backend/internal/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isCheckViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514" && pgErr.ConstraintName == constraint
}

func isUndefinedTableError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

func normalizeListOptions(opts domain.ListOptions) (int, int) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// CreateUserWithWallet inserts a pending user, its wallet account and the registration events atomically.
func (r *PostgresRepository) CreateUserWithWallet(ctx context.Context, user *domain.User, currency string, events []domain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin register tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO users (id, email, password_hash, otp_secret, status)
		VALUES ($1, lower(btrim($2)), $3, $4, $5)
		RETURNING email, created_at
	`
	if err := tx.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.OTPSecret,
		user.Status,
	).Scan(&user.Email, &user.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO accounts (user_id, kind, currency)
		VALUES ($1, 'wallet', $2)
	`, user.ID, currency); err != nil {
		return fmt.Errorf("create wallet account: %w", err)
	}

	if err := enqueueEventsTx(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const userColumns = `id, email, password_hash, otp_secret, otp_last_step, otp_failed_attempts, otp_locked_until, status, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.OTPSecret,
		&user.OTPLastStep,
		&user.OTPFailedAttempts,
		&user.OTPLockedUntil,
		&user.Status,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindUserByEmail retrieves a user by case-insensitive email.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = lower(btrim($1))`
	return scanUser(r.db.QueryRow(ctx, query, strings.TrimSpace(email)))
}

// FindUserByID retrieves a user from the database by their ID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, userID))
}

// ActivateUser consumes the OTP time step and activates the user. The update only
// applies to a pending user whose last accepted step is older than otpStep, so a
// replayed or concurrently submitted code affects no rows.
func (r *PostgresRepository) ActivateUser(ctx context.Context, userID uuid.UUID, otpStep int64, events []domain.OutboxEvent) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin activation tx: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE users
		SET status = 'active',
			otp_last_step = $2,
			otp_failed_attempts = 0,
			otp_locked_until = NULL,
			updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending'
		  AND (otp_last_step IS NULL OR otp_last_step < $2)
	`, userID, otpStep)
	if err != nil {
		return fmt.Errorf("activate user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrOTPAlreadyUsed
	}

	if err := enqueueEventsTx(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// RecordFailedOTPAttempt atomically increments failed attempts and applies lockout.
func (r *PostgresRepository) RecordFailedOTPAttempt(ctx context.Context, userID uuid.UUID, maxAttempts int, lockoutSeconds int) (int, *time.Time, error) {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if lockoutSeconds <= 0 {
		lockoutSeconds = 600
	}

	query := `
		UPDATE users
		SET
			otp_failed_attempts = CASE
				WHEN (otp_locked_until IS NOT NULL AND otp_locked_until <= NOW())
					OR (otp_locked_until IS NULL AND otp_failed_attempts >= $2) THEN 1
				ELSE otp_failed_attempts + 1
			END,
			otp_locked_until = CASE
				WHEN (
					CASE
						WHEN (otp_locked_until IS NOT NULL AND otp_locked_until <= NOW())
							OR (otp_locked_until IS NULL AND otp_failed_attempts >= $2) THEN 1
						ELSE otp_failed_attempts + 1
					END
				) >= $2 THEN NOW() + ($3 * INTERVAL '1 second')
				ELSE NULL
			END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING otp_failed_attempts, otp_locked_until
	`
	var (
		attempts    int
		lockedUntil *time.Time
	)
	if err := r.db.QueryRow(ctx, query, userID, maxAttempts, lockoutSeconds).Scan(&attempts, &lockedUntil); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, ErrUserNotFound
		}
		return 0, nil, err
	}
	return attempts, lockedUntil, nil
}
