package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/store"
	"go.uber.org/zap"
)

const (
	maxIdempotencyKeyLength = 128
	idempotencyStaleWindow  = 2 * time.Minute
)

// IdempotentResult is the response of a money-moving call, fresh or replayed.
type IdempotentResult struct {
	StatusCode int
	Payload    []byte
	Replayed   bool
}

// IdempotentFunc runs the operation and returns the HTTP status and body to store.
type IdempotentFunc func(ctx context.Context) (int, interface{}, error)

// RunIdempotent runs fn at most once per (user, scope, key). A repeated request with
// the same body replays the stored response; a different body is a conflict.
// Failed calls release the key so the client can retry. Postings made by fn are tied
// to the reservation, so a response that fails to store is never re-run.
func (s *Service) RunIdempotent(ctx context.Context, userID uuid.UUID, scope, key string, request interface{}, fn IdempotentFunc) (*IdempotentResult, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		if s.requireIdempotencyKey {
			return nil, ErrIdempotencyKeyRequired
		}
		return runAndEncode(ctx, fn)
	}
	if !validIdempotencyKey(key) {
		return nil, ErrInvalidIdempotencyKey
	}

	hash, err := requestHash(scope, request)
	if err != nil {
		return nil, err
	}

	stored, run, err := s.repo.AcquireIdempotencyKey(ctx, userID, scope, key, hash, s.idempotencyTTL, idempotencyStaleWindow)
	if err != nil {
		return nil, err
	}
	if run == nil {
		if stored == nil {
			return nil, store.ErrIdempotencyInProgress
		}
		s.logger.Info("replaying idempotent response", zap.String("endpoint", scope), zap.String("outcome", "replay"), logUser(userID))
		return &IdempotentResult{StatusCode: stored.StatusCode, Payload: stored.Payload, Replayed: true}, nil
	}

	result, err := runAndEncode(store.WithIdempotencyRun(ctx, *run), fn)
	if err != nil {
		// The caller's context may already be done; the release must still land.
		if releaseErr := s.repo.ReleaseIdempotencyKey(context.WithoutCancel(ctx), userID, scope, key); releaseErr != nil {
			s.logger.Warn("failed to release idempotency key", zap.String("endpoint", scope), logUser(userID), zap.Error(releaseErr))
		}
		return nil, err
	}

	if err := s.repo.CompleteIdempotencyKey(context.WithoutCancel(ctx), userID, scope, key, store.IdempotentResponse{
		StatusCode: result.StatusCode,
		Payload:    result.Payload,
	}); err != nil {
		s.logger.Error("failed to store idempotent response; key stays applied", zap.String("endpoint", scope), logUser(userID), zap.Error(err))
	}
	return result, nil
}

func runAndEncode(ctx context.Context, fn IdempotentFunc) (*IdempotentResult, error) {
	status, body, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return &IdempotentResult{StatusCode: status, Payload: payload}, nil
}

func requestHash(scope string, request interface{}) (string, error) {
	encoded, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to hash request: %w", err)
	}
	sum := sha256.New()
	sum.Write([]byte(scope))
	sum.Write([]byte{0})
	sum.Write(encoded)
	return hex.EncodeToString(sum.Sum(nil)), nil
}

func validIdempotencyKey(key string) bool {
	if len(key) > maxIdempotencyKeyLength {
		return false
	}
	for _, r := range key {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}
