package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/internal/store"
	"go.uber.org/zap"
)

const billDateLayout = "2006-01-02"

// BillRunSummary reports one run of the scheduled bill job.
type BillRunSummary struct {
	Materialized int
	Paid         int
	Failed       int
	Skipped      int
}

type billOutcome int

const (
	billPaid billOutcome = iota
	billFailed
	billSkipped
)

// PayBill pays a bill now when it is due today or earlier, or schedules it.
// A recurring bill also creates the schedule for later periods.
func (s *Service) PayBill(ctx context.Context, userID uuid.UUID, req domain.BillPayRequest) (*domain.BillPayResponse, error) {
	payee := strings.TrimSpace(req.Payee)
	if payee == "" || !s.validAmount(req.Amount) {
		return nil, ErrInvalidBillPayment
	}
	dueDate, err := time.Parse(billDateLayout, strings.TrimSpace(req.DueDate))
	if err != nil {
		return nil, ErrInvalidBillPayment
	}

	frequency := strings.ToLower(strings.TrimSpace(req.Frequency))
	if req.IsRecurring {
		if frequency == "" {
			frequency = domain.BillFrequencyMonthly
		}
		if frequency != domain.BillFrequencyMonthly && frequency != domain.BillFrequencyWeekly {
			return nil, ErrInvalidBillPayment
		}
	}

	payNow := !dueDate.After(startOfDay(s.now()))
	payment := &domain.BillPayment{
		ID:          uuid.New(),
		UserID:      userID,
		Payee:       payee,
		Amount:      req.Amount,
		DueDate:     dueDate,
		IsRecurring: req.IsRecurring,
		Status:      domain.BillStatusScheduled,
	}

	var recurring *domain.RecurringBill
	if req.IsRecurring {
		next := dueDate
		if payNow {
			next = domain.AdvanceDueDate(dueDate, frequency, dueDate.Day())
		}
		recurring = &domain.RecurringBill{
			ID:          uuid.New(),
			UserID:      userID,
			Payee:       payee,
			Amount:      req.Amount,
			Frequency:   frequency,
			NextDueDate: next,
			AnchorDay:   dueDate.Day(),
			Active:      true,
		}
	}

	var write *store.LedgerWrite
	if payNow {
		built, err := s.billWrite(ctx, payment)
		if err != nil {
			return nil, err
		}
		write = built
		payment.Status = domain.BillStatusCompleted
	}

	if write != nil {
		_, err = s.post(domain.TransactionTypeBillPayment, func() (*store.PostingResult, error) {
			return s.repo.CreateBillPayment(ctx, payment, recurring, write)
		})
	} else {
		_, err = s.repo.CreateBillPayment(ctx, payment, recurring, nil)
	}
	if err != nil {
		return nil, err
	}

	message := "Bill payment scheduled successfully"
	if payNow {
		message = "Bill payment completed successfully"
	}
	s.logger.Info("bill payment accepted", zap.String("endpoint", "bill_pay"), zap.String("outcome", payment.Status), logUser(userID), zap.String("payment_id", payment.ID.String()))
	return &domain.BillPayResponse{Message: message, Payment: *payment, RecurringBill: recurring}, nil
}

// billWrite builds the wallet to biller posting for payment.
func (s *Service) billWrite(ctx context.Context, payment *domain.BillPayment) (*store.LedgerWrite, error) {
	wallet, err := s.wallet(ctx, payment.UserID)
	if err != nil {
		return nil, err
	}
	bills, err := s.systemAccount(ctx, domain.SystemAccountBills)
	if err != nil {
		return nil, err
	}

	txID := uuid.New()
	description := "Bill payment to " + payment.Payee
	return &store.LedgerWrite{
		Posting: domain.NewTransferPosting(domain.TransactionTypeBillPayment, payment.ID.String(), wallet.ID, bills.ID, payment.Amount),
		Transaction: domain.Transaction{
			ID:          txID,
			Type:        domain.TransactionTypeBillPayment,
			Status:      domain.TransactionStatusCompleted,
			SenderID:    &payment.UserID,
			Amount:      payment.Amount,
			Currency:    wallet.Currency,
			Description: &description,
			Reference:   stringPtr(payment.ID.String()),
		},
		Events: []domain.OutboxEvent{
			s.event(domain.RoutingKeyBillPaymentCompleted, domain.BillPaymentEvent{
				PaymentID:  payment.ID,
				UserID:     payment.UserID,
				Payee:      payment.Payee,
				Amount:     payment.Amount,
				Status:     domain.BillStatusCompleted,
				OccurredAt: s.now(),
			}),
			s.notification(payment.UserID, "bill.payment.completed", "Bill paid",
				fmt.Sprintf("%s was paid to %s.", formatAmount(payment.Amount, wallet.Currency), payment.Payee), &payment.ID),
		},
	}, nil
}

// ListRecurringBills returns the user's active recurring bills.
func (s *Service) ListRecurringBills(ctx context.Context, userID uuid.UUID) ([]domain.RecurringBill, error) {
	bills, err := s.repo.ListRecurringBills(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list recurring bills: %w", err)
	}
	return bills, nil
}

// CancelRecurringBill stops future payments of a recurring bill.
func (s *Service) CancelRecurringBill(ctx context.Context, userID uuid.UUID, billID uuid.UUID) error {
	return s.repo.DeactivateRecurringBill(ctx, userID, billID)
}

// ProcessDueBills materializes due recurring bills and pays every scheduled payment
// that has come due. Per-payment failures are recorded and do not stop the run.
func (s *Service) ProcessDueBills(ctx context.Context, limit int) (BillRunSummary, error) {
	var summary BillRunSummary
	asOf := startOfDay(s.now())

	recurring, err := s.repo.ListDueRecurringBills(ctx, asOf, limit)
	if err != nil {
		return summary, fmt.Errorf("failed to list due recurring bills: %w", err)
	}
	for _, bill := range recurring {
		payment, err := s.repo.MaterializeRecurringBill(ctx, bill.ID, asOf)
		if err != nil {
			s.logger.Error("failed to materialize recurring bill", zap.String("recurring_bill_id", bill.ID.String()), zap.Error(err))
			continue
		}
		if payment != nil {
			summary.Materialized++
		}
	}

	due, err := s.repo.ListDueBillPayments(ctx, asOf, limit)
	if err != nil {
		return summary, fmt.Errorf("failed to list due bill payments: %w", err)
	}
	for i := range due {
		payment := due[i]
		outcome, err := s.payScheduledBill(ctx, &payment)
		if err != nil {
			s.logger.Error("scheduled bill payment errored", zap.String("payment_id", payment.ID.String()), logUser(payment.UserID), zap.Error(err))
			continue
		}
		switch outcome {
		case billPaid:
			summary.Paid++
		case billFailed:
			summary.Failed++
		default:
			summary.Skipped++
		}
	}
	return summary, nil
}

func (s *Service) payScheduledBill(ctx context.Context, payment *domain.BillPayment) (billOutcome, error) {
	write, err := s.billWrite(ctx, payment)
	if err != nil {
		return billSkipped, err
	}

	_, err = s.post(domain.TransactionTypeBillPayment, func() (*store.PostingResult, error) {
		return s.repo.PayScheduledBill(ctx, payment.ID, *write)
	})
	switch {
	case err == nil:
		return billPaid, nil
	case errors.Is(err, store.ErrBillPaymentNotPayable):
		// Claimed by another worker, or no longer scheduled.
		return billSkipped, nil
	case errors.Is(err, store.ErrInsufficientFunds):
		reason := "insufficient funds"
		events := []domain.OutboxEvent{
			s.notification(payment.UserID, "bill.payment.failed", "Bill payment failed",
				fmt.Sprintf("We could not pay %s to %s: %s.", formatAmount(payment.Amount, s.currency), payment.Payee, reason), &payment.ID),
		}
		if markErr := s.repo.MarkBillPaymentFailed(ctx, payment.ID, reason, events); markErr != nil {
			if errors.Is(markErr, store.ErrBillPaymentNotPayable) {
				return billSkipped, nil
			}
			return billSkipped, markErr
		}
		s.logger.Info("scheduled bill payment failed", zap.String("outcome", "failed"), zap.String("reason", "insufficient_funds"), zap.String("payment_id", payment.ID.String()), logUser(payment.UserID))
		return billFailed, nil
	default:
		return billSkipped, err
	}
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
