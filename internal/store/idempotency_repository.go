package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	idempotencyStatusProcessing = "processing"
	idempotencyStatusCompleted  = "completed"

	defaultIdempotencyTTL   = 24 * time.Hour
	defaultIdempotencyStale = 2 * time.Minute
)

// IdempotencyRun identifies one execution of a reserved key. Postings made under a
// run mark the key applied in their own transaction, so a lost response can never
// be re-run.
type IdempotencyRun struct {
	UserID uuid.UUID
	Scope  string
	Key    string
	RunID  uuid.UUID
}

type idempotencyRunKey struct{}

// WithIdempotencyRun scopes the postings made with ctx to run. A zero RunID
// leaves ctx unguarded.
func WithIdempotencyRun(ctx context.Context, run IdempotencyRun) context.Context {
	if run.RunID == uuid.Nil {
		return ctx
	}
	return context.WithValue(ctx, idempotencyRunKey{}, run)
}

// IdempotencyRunFrom returns the run attached by WithIdempotencyRun.
func IdempotencyRunFrom(ctx context.Context) (IdempotencyRun, bool) {
	run, ok := ctx.Value(idempotencyRunKey{}).(IdempotencyRun)
	return run, ok
}

// markIdempotencyAppliedTx records inside a posting transaction that the run moved
// money. A run that was reclaimed by a retry no longer matches and its posting rolls back.
func markIdempotencyAppliedTx(ctx context.Context, tx pgx.Tx) error {
	run, ok := IdempotencyRunFrom(ctx)
	if !ok {
		return nil
	}
	result, err := tx.Exec(ctx, `
		UPDATE idempotency_keys
		SET applied_at = COALESCE(applied_at, NOW()), updated_at = NOW()
		WHERE user_id = $1 AND scope = $2 AND idempotency_key = $3 AND run_id = $4 AND status = $5`,
		run.UserID, run.Scope, run.Key, run.RunID, idempotencyStatusProcessing)
	if err != nil {
		return fmt.Errorf("mark idempotency key applied: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrIdempotencyInProgress
	}
	return nil
}

// idempotencyRow is the locked state of an existing key.
type idempotencyRow struct {
	requestHash     string
	status          string
	responseStatus  *int
	responsePayload []byte
	applied         bool
	updatedAt       time.Time
	expiresAt       time.Time
}

type idempotencyAction int

const (
	idempotencyReplay idempotencyAction = iota
	idempotencyReclaim
	idempotencyBusy
	idempotencyMismatch
	idempotencyApplied
)

// decide maps an existing row to what the caller may do with requestHash. Expired
// rows are always reclaimed, whatever request they held. A processing row whose run
// already posted is never reclaimed before it expires.
func (row idempotencyRow) decide(requestHash string, now time.Time, staleWindow time.Duration) idempotencyAction {
	if row.expiresAt.Before(now) {
		return idempotencyReclaim
	}
	if row.requestHash != requestHash {
		return idempotencyMismatch
	}
	if row.status == idempotencyStatusCompleted {
		if row.responseStatus == nil || len(row.responsePayload) == 0 {
			return idempotencyBusy
		}
		return idempotencyReplay
	}
	if !row.updatedAt.Before(now.Add(-staleWindow)) {
		return idempotencyBusy
	}
	if row.applied {
		return idempotencyApplied
	}
	return idempotencyReclaim
}

// AcquireIdempotencyKey reserves (user, scope, key) for requestHash.
//
// A non-nil run means the caller owns the key and must run the request under it. A
// completed key with the same hash returns the stored response instead. A different
// hash is ErrIdempotencyConflict. A live reservation is ErrIdempotencyInProgress.
// A stale reservation whose run posted without storing a response is
// ErrIdempotencyApplied.
func (r *PostgresRepository) AcquireIdempotencyKey(
	ctx context.Context,
	userID uuid.UUID,
	scope string,
	key string,
	requestHash string,
	ttl time.Duration,
	staleWindow time.Duration,
) (stored *IdempotentResponse, run *IdempotencyRun, err error) {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	if staleWindow <= 0 {
		staleWindow = defaultIdempotencyStale
	}
	expiresAt := time.Now().UTC().Add(ttl)
	claim := IdempotencyRun{UserID: userID, Scope: scope, Key: key, RunID: uuid.New()}

	err = pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		inserted, err := tx.Exec(ctx, `
			INSERT INTO idempotency_keys (user_id, scope, idempotency_key, request_hash, status, run_id, expires_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
			ON CONFLICT (user_id, scope, idempotency_key) DO NOTHING`,
			userID, scope, key, requestHash, idempotencyStatusProcessing, claim.RunID, expiresAt)
		if err != nil {
			return fmt.Errorf("reserve idempotency key: %w", err)
		}
		if inserted.RowsAffected() == 1 {
			run = &claim
			return nil
		}

		var row idempotencyRow
		err = tx.QueryRow(ctx, `
			SELECT request_hash, status, response_status, response_payload, applied_at IS NOT NULL, updated_at, expires_at
			FROM idempotency_keys
			WHERE user_id = $1 AND scope = $2 AND idempotency_key = $3
			FOR UPDATE`, userID, scope, key).
			Scan(&row.requestHash, &row.status, &row.responseStatus, &row.responsePayload, &row.applied, &row.updatedAt, &row.expiresAt)
		if errors.Is(err, pgx.ErrNoRows) {
			// Released between our insert and select.
			return ErrIdempotencyInProgress
		}
		if err != nil {
			return fmt.Errorf("load idempotency row: %w", err)
		}

		switch row.decide(requestHash, time.Now().UTC(), staleWindow) {
		case idempotencyReplay:
			stored = &IdempotentResponse{StatusCode: *row.responseStatus, Payload: row.responsePayload}
			return nil
		case idempotencyMismatch:
			return ErrIdempotencyConflict
		case idempotencyBusy:
			return ErrIdempotencyInProgress
		case idempotencyApplied:
			return ErrIdempotencyApplied
		}

		if _, err := tx.Exec(ctx, `
			UPDATE idempotency_keys
			SET request_hash = $4, status = $5, response_status = NULL, response_payload = NULL,
				run_id = $6, applied_at = NULL, expires_at = $7, updated_at = NOW()
			WHERE user_id = $1 AND scope = $2 AND idempotency_key = $3`,
			userID, scope, key, requestHash, idempotencyStatusProcessing, claim.RunID, expiresAt); err != nil {
			return fmt.Errorf("reclaim idempotency row: %w", err)
		}
		run = &claim
		return nil
	})
	if err != nil {
		if isUndefinedTableError(err) {
			// Schema not applied yet; run the request unguarded.
			return nil, &IdempotencyRun{UserID: userID, Scope: scope, Key: key}, nil
		}
		return nil, nil, err
	}
	return stored, run, nil
}

// CompleteIdempotencyKey stores the response for replay.
func (r *PostgresRepository) CompleteIdempotencyKey(ctx context.Context, userID uuid.UUID, scope, key string, response IdempotentResponse) error {
	result, err := r.db.Exec(ctx, `
		UPDATE idempotency_keys
		SET status = $4, response_status = $5, response_payload = $6::jsonb, updated_at = NOW()
		WHERE user_id = $1 AND scope = $2 AND idempotency_key = $3`,
		userID, scope, key, idempotencyStatusCompleted, response.StatusCode, string(response.Payload))
	switch {
	case isUndefinedTableError(err):
		return nil
	case err != nil:
		return err
	case result.RowsAffected() == 0:
		return ErrIdempotencyInProgress
	}
	return nil
}

// ReleaseIdempotencyKey drops a processing reservation so the client can retry. A
// reservation that already posted is kept.
func (r *PostgresRepository) ReleaseIdempotencyKey(ctx context.Context, userID uuid.UUID, scope, key string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM idempotency_keys
		WHERE user_id = $1 AND scope = $2 AND idempotency_key = $3 AND status = $4 AND applied_at IS NULL`,
		userID, scope, key, idempotencyStatusProcessing)
	if isUndefinedTableError(err) {
		return nil
	}
	return err
}
