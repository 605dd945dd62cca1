/**
 * @description
 * Scheduled job implementations for the superapp worker. Each job claims its work
 * with SKIP LOCKED, so several workers can run the same schedule.
 *
 * @dependencies
 * - internal/logging: Structured logging.
 */
package app

import (
	"context"
	"time"

	"github.com/transfa/superapp-backend/internal/logging"
	"go.uber.org/zap"
)

const (
	defaultJobBatchSize = 100
	defaultJobTimeout   = 4 * time.Minute
)

// JobRunner is the part of Service the jobs need.
type JobRunner interface {
	ProcessDueBills(ctx context.Context, limit int) (BillRunSummary, error)
	SendMoneyRequestReminders(ctx context.Context, limit int) (int, error)
	ReverseStaleCardHolds(ctx context.Context, limit int) (int, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	runner    JobRunner
	logger    *logging.Logger
	batchSize int
	timeout   time.Duration
}

// NewJobs creates a new Jobs runner.
func NewJobs(runner JobRunner, logger *logging.Logger) *Jobs {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Jobs{
		runner:    runner,
		logger:    logger.Component("jobs"),
		batchSize: defaultJobBatchSize,
		timeout:   defaultJobTimeout,
	}
}

// ProcessBillPayments pays due scheduled bills and materializes recurring ones.
func (j *Jobs) ProcessBillPayments() {
	j.logger.Info("starting bill payments job")
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	summary, err := j.runner.ProcessDueBills(ctx, j.batchSize)
	if err != nil {
		j.logger.Error("bill payments job failed", zap.Error(err))
		return
	}
	j.logger.Info("bill payments job finished",
		zap.Int("materialized", summary.Materialized),
		zap.Int("paid", summary.Paid),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
	)
}

// SendMoneyRequestReminders reminds recipients of pending requests.
func (j *Jobs) SendMoneyRequestReminders() {
	j.logger.Info("starting money request reminders job")
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	sent, err := j.runner.SendMoneyRequestReminders(ctx, j.batchSize)
	if err != nil {
		j.logger.Error("money request reminders job failed", zap.Error(err))
		return
	}
	j.logger.Info("money request reminders job finished", zap.Int("sent", sent))
}

// ReverseStaleCardHolds releases card holds whose authorization never settled.
func (j *Jobs) ReverseStaleCardHolds() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	reversed, err := j.runner.ReverseStaleCardHolds(ctx, j.batchSize)
	if err != nil {
		j.logger.Error("card hold sweeper failed", zap.Error(err))
		return
	}
	if reversed > 0 {
		j.logger.Warn("card hold sweeper reversed holds", zap.Int("reversed", reversed))
	}
}
