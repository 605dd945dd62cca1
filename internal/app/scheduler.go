/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package app

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/transfa/superapp-backend/internal/config"
	"github.com/transfa/superapp-backend/internal/logging"
	"go.uber.org/zap"
)

const (
	defaultBillJobSchedule     = "*/5 * * * *"
	defaultReminderJobSchedule = "*/10 * * * *"
	defaultCardHoldJobSchedule = "*/5 * * * *"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *logging.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *logging.Logger, cfg config.Config) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.Component("scheduler")
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(logger))))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler. A bad schedule is an error.
func (s *Scheduler) Start() error {
	schedules := []struct {
		name     string
		schedule string
		fallback string
		run      func()
	}{
		{"bill_payments", s.config.BillJobSchedule, defaultBillJobSchedule, s.jobs.ProcessBillPayments},
		{"money_request_reminders", s.config.ReminderJobSchedule, defaultReminderJobSchedule, s.jobs.SendMoneyRequestReminders},
		{"card_hold_sweeper", s.config.CardHoldJobSchedule, defaultCardHoldJobSchedule, s.jobs.ReverseStaleCardHolds},
	}

	for _, job := range schedules {
		expr := job.schedule
		if expr == "" {
			expr = job.fallback
		}
		if _, err := s.cron.AddFunc(expr, job.run); err != nil {
			return fmt.Errorf("failed to schedule %s job: %w", job.name, err)
		}
		s.logger.Info("scheduled job", zap.String("job", job.name), zap.String("schedule", expr))
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
