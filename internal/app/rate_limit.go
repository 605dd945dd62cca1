package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const moneyRateScope = "money"

// RateLimiter counts hits for (scope, subject) in a fixed window.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// MemoryRateLimiter is a single-process fixed-window limiter used when Redis is not configured.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	count     int
	expiresAt time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		windows: make(map[string]memoryWindow),
		now:     time.Now,
	}
}

func (m *MemoryRateLimiter) ConsumeRateLimit(_ context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	if limit <= 0 || window <= 0 {
		return 0, 0, nil
	}
	key := strings.TrimSpace(scope) + ":" + strings.TrimSpace(subject)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.windows[key]
	if !ok || !now.Before(current.expiresAt) {
		current = memoryWindow{expiresAt: now.Add(window)}
		if len(m.windows) > 10000 {
			m.evictExpired(now)
		}
	}
	current.count++
	m.windows[key] = current

	return current.count, ceilSeconds(current.expiresAt.Sub(now)), nil
}

func (m *MemoryRateLimiter) evictExpired(now time.Time) {
	for key, w := range m.windows {
		if !now.Before(w.expiresAt) {
			delete(m.windows, key)
		}
	}
}

// CheckRateLimit consumes one hit and returns a RateLimitError once the limit is
// exceeded. Limiter failures are logged and the request is allowed.
func (s *Service) CheckRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) error {
	if s.limiter == nil || limit <= 0 {
		return nil
	}
	count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, scope, subject, limit, window)
	if err != nil {
		s.logger.Warn("rate limiter unavailable; allowing request",
			zap.String("outcome", "fail_open"),
			zap.String("scope", scope),
			zap.Error(err),
		)
		return nil
	}
	if count > limit {
		return &RateLimitError{Scope: scope, RetryAfterSeconds: retryAfter}
	}
	return nil
}

// CheckMoneyRateLimit applies the per-user limit shared by money-moving endpoints.
func (s *Service) CheckMoneyRateLimit(ctx context.Context, userID string) error {
	return s.CheckRateLimit(ctx, moneyRateScope, userID, s.moneyRateLimit, time.Minute)
}
