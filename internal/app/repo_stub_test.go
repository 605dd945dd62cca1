package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/config"
	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/internal/logging"
	"github.com/transfa/superapp-backend/internal/store"
)

// repoStub implements the repository calls the tests exercise. Anything else panics
// through the nil embedded interface.
type repoStub struct {
	store.Repository

	users    map[string]*domain.User
	wallets  map[uuid.UUID]*domain.Account
	system   map[string]*domain.Account
	cards    map[uuid.UUID]*domain.Card
	accounts map[uuid.UUID]*domain.BankAccount

	writes      []store.LedgerWrite
	postErr     error
	createdUser *domain.User

	activateErr   error
	activatedStep int64
	failedOTP     int
	lockAfter     int

	billPayments   []domain.BillPayment
	createdBill    *domain.BillPayment
	createdRecur   *domain.RecurringBill
	failedBills    map[uuid.UUID]string
	failedEvents   []domain.OutboxEvent
	payScheduleErr error

	cardTx       *domain.CardTransaction
	approvedCode string
	declined     *store.LedgerWrite
	declineWhy   string

	lots []domain.Investment

	requests      map[uuid.UUID]*domain.MoneyRequest
	requestEvents []domain.OutboxEvent

	profiles map[uuid.UUID]*domain.UserProfile

	idempotency map[string]*idempotencyRow
	completeErr error

	outbox    []domain.OutboxMessage
	published []int64
	failed    map[int64]int

	notifications []domain.Notification
	dedupe        map[string]bool
	notifyErr     error
}

type idempotencyRow struct {
	hash     string
	run      uuid.UUID
	applied  bool
	stale    bool
	response *store.IdempotentResponse
}

func newRepoStub() *repoStub {
	return &repoStub{
		users:       map[string]*domain.User{},
		wallets:     map[uuid.UUID]*domain.Account{},
		system:      map[string]*domain.Account{},
		cards:       map[uuid.UUID]*domain.Card{},
		accounts:    map[uuid.UUID]*domain.BankAccount{},
		failedBills: map[uuid.UUID]string{},
		idempotency: map[string]*idempotencyRow{},
		failed:      map[int64]int{},
		dedupe:      map[string]bool{},
		requests:    map[uuid.UUID]*domain.MoneyRequest{},
	}
}

func newTestService(repo store.Repository) *Service {
	svc := NewService(repo, logging.NewNop(), config.Config{
		Currency:                "NGN",
		JWTSecret:               "test-secret",
		AccessTokenTTLMinutes:   30,
		OTPIssuer:               "Superapp",
		OTPMaxAttempts:          3,
		OTPLockoutSeconds:       600,
		LoginRateLimitPerMinute: 5,
		MoneyRateLimitPerMinute: 30,
		IdempotencyTTLMinutes:   60,
	})
	return svc
}

// addUser registers an active user with a wallet holding balance.
func (r *repoStub) addUser(email string, balance int64) *domain.User {
	user := &domain.User{ID: uuid.New(), Email: email, Status: domain.UserStatusActive}
	r.users[email] = user
	userID := user.ID
	r.wallets[user.ID] = &domain.Account{ID: uuid.New(), UserID: &userID, Kind: domain.AccountKindWallet, Currency: "NGN", Balance: balance}
	return user
}

func (r *repoStub) systemAccountFor(code string) *domain.Account {
	if account, ok := r.system[code]; ok {
		return account
	}
	value := code
	account := &domain.Account{ID: uuid.New(), Code: &value, Kind: domain.AccountKindSystem, Currency: "NGN", AllowNegative: true}
	r.system[code] = account
	return account
}

func (r *repoStub) accountByID(id uuid.UUID) *domain.Account {
	for _, account := range r.wallets {
		if account.ID == id {
			return account
		}
	}
	for _, account := range r.system {
		if account.ID == id {
			return account
		}
	}
	return nil
}

func (r *repoStub) apply(ctx context.Context, write store.LedgerWrite) (*store.PostingResult, error) {
	if r.postErr != nil {
		return nil, r.postErr
	}
	if err := r.markApplied(ctx); err != nil {
		return nil, err
	}
	if err := write.Posting.Validate(); err != nil {
		return nil, err
	}
	for _, leg := range write.Posting.Legs {
		account := r.accountByID(leg.AccountID)
		if account == nil {
			return nil, store.ErrAccountNotFound
		}
		if !account.AllowNegative && account.Balance+leg.Amount < 0 {
			return nil, store.ErrInsufficientFunds
		}
	}
	balances := map[uuid.UUID]int64{}
	for _, leg := range write.Posting.Legs {
		account := r.accountByID(leg.AccountID)
		account.Balance += leg.Amount
		balances[account.ID] = account.Balance
	}
	r.writes = append(r.writes, write)
	tx := write.Transaction
	tx.CreatedAt = time.Now().UTC()
	return &store.PostingResult{LedgerTransactionID: uuid.New(), Transaction: tx, Balances: balances}, nil
}

func (r *repoStub) CreateUserWithWallet(ctx context.Context, user *domain.User, currency string, events []domain.OutboxEvent) error {
	if _, ok := r.users[user.Email]; ok {
		return store.ErrEmailTaken
	}
	r.users[user.Email] = user
	r.createdUser = user
	return nil
}

func (r *repoStub) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, ok := r.users[email]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return user, nil
}

func (r *repoStub) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	for _, user := range r.users {
		if user.ID == userID {
			return user, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (r *repoStub) ActivateUser(ctx context.Context, userID uuid.UUID, otpStep int64, events []domain.OutboxEvent) error {
	if r.activateErr != nil {
		return r.activateErr
	}
	user, _ := r.FindUserByID(ctx, userID)
	if user.Status != domain.UserStatusPending || (user.OTPLastStep != nil && otpStep <= *user.OTPLastStep) {
		return store.ErrOTPAlreadyUsed
	}
	user.Status = domain.UserStatusActive
	user.OTPLastStep = &otpStep
	r.activatedStep = otpStep
	return nil
}

func (r *repoStub) RecordFailedOTPAttempt(ctx context.Context, userID uuid.UUID, maxAttempts int, lockoutSeconds int) (int, *time.Time, error) {
	r.failedOTP++
	if r.failedOTP >= maxAttempts {
		until := time.Now().UTC().Add(time.Duration(lockoutSeconds) * time.Second)
		return r.failedOTP, &until, nil
	}
	return r.failedOTP, nil, nil
}

func (r *repoStub) FindWalletByUserID(ctx context.Context, userID uuid.UUID) (*domain.Account, error) {
	account, ok := r.wallets[userID]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return account, nil
}

func (r *repoStub) FindSystemAccount(ctx context.Context, code string) (*domain.Account, error) {
	return r.systemAccountFor(code), nil
}

func (r *repoStub) PostTransaction(ctx context.Context, write store.LedgerWrite) (*store.PostingResult, error) {
	return r.apply(ctx, write)
}

func (r *repoStub) FindBankAccountByID(ctx context.Context, userID uuid.UUID, bankAccountID uuid.UUID) (*domain.BankAccount, error) {
	account, ok := r.accounts[bankAccountID]
	if !ok || account.UserID != userID {
		return nil, store.ErrBankAccountNotFound
	}
	return account, nil
}

func (r *repoStub) CreateBankAccount(ctx context.Context, account *domain.BankAccount, events []domain.OutboxEvent) error {
	for _, existing := range r.accounts {
		if existing.BankName == account.BankName && existing.AccountNumber == account.AccountNumber {
			return store.ErrBankAccountLinked
		}
	}
	account.MaskedNumber = domain.MaskAccountNumber(account.AccountNumber)
	r.accounts[account.ID] = account
	return nil
}

func (r *repoStub) CreateBillPayment(ctx context.Context, payment *domain.BillPayment, recurring *domain.RecurringBill, write *store.LedgerWrite) (*store.PostingResult, error) {
	var result *store.PostingResult
	if write != nil {
		posted, err := r.apply(ctx, *write)
		if err != nil {
			return nil, err
		}
		result = posted
		payment.TransactionID = &posted.Transaction.ID
	}
	if recurring != nil {
		payment.RecurringBillID = &recurring.ID
	}
	r.createdBill = payment
	r.createdRecur = recurring
	return result, nil
}

func (r *repoStub) ListDueRecurringBills(ctx context.Context, asOf time.Time, limit int) ([]domain.RecurringBill, error) {
	return nil, nil
}

func (r *repoStub) ListDueBillPayments(ctx context.Context, asOf time.Time, limit int) ([]domain.BillPayment, error) {
	return r.billPayments, nil
}

func (r *repoStub) PayScheduledBill(ctx context.Context, paymentID uuid.UUID, write store.LedgerWrite) (*store.PostingResult, error) {
	if r.payScheduleErr != nil {
		return nil, r.payScheduleErr
	}
	return r.apply(ctx, write)
}

func (r *repoStub) MarkBillPaymentFailed(ctx context.Context, paymentID uuid.UUID, reason string, events []domain.OutboxEvent) error {
	r.failedBills[paymentID] = reason
	r.failedEvents = append(r.failedEvents, events...)
	return nil
}

func (r *repoStub) FindCardByUserID(ctx context.Context, userID uuid.UUID) (*domain.Card, error) {
	card, ok := r.cards[userID]
	if !ok {
		return nil, store.ErrCardNotFound
	}
	return card, nil
}

func (r *repoStub) CreateCard(ctx context.Context, card *domain.Card) error {
	if _, ok := r.cards[card.UserID]; ok {
		return store.ErrCardExists
	}
	r.cards[card.UserID] = card
	return nil
}

func (r *repoStub) CreateCardTransaction(ctx context.Context, cardTx *domain.CardTransaction, write store.LedgerWrite) (*store.PostingResult, error) {
	result, err := r.apply(ctx, write)
	if err != nil {
		return nil, err
	}
	cardTx.Status = domain.CardTransactionPending
	cardTx.TransactionID = &result.Transaction.ID
	r.cardTx = cardTx
	return result, nil
}

func (r *repoStub) pendingCardTx(ctx context.Context, cardTxID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.cardTx == nil || r.cardTx.ID != cardTxID || r.cardTx.Status != domain.CardTransactionPending {
		return store.ErrCardTransactionNotFound
	}
	return nil
}

func (r *repoStub) ApproveCardTransaction(ctx context.Context, cardTxID uuid.UUID, authorizationCode string, events []domain.OutboxEvent) (*domain.CardTransaction, error) {
	if err := r.pendingCardTx(ctx, cardTxID); err != nil {
		return nil, err
	}
	r.cardTx.Status = domain.CardTransactionApproved
	r.approvedCode = authorizationCode
	approved := *r.cardTx
	approved.Status = domain.CardTransactionApproved
	approved.AuthorizationCode = &authorizationCode
	return &approved, nil
}

func (r *repoStub) DeclineCardTransaction(ctx context.Context, cardTxID uuid.UUID, reason string, reversal store.LedgerWrite) (*domain.CardTransaction, error) {
	if err := r.pendingCardTx(ctx, cardTxID); err != nil {
		return nil, err
	}
	if _, err := r.apply(ctx, reversal); err != nil {
		return nil, err
	}
	r.cardTx.Status = domain.CardTransactionDeclined
	r.declined = &reversal
	r.declineWhy = reason
	declined := *r.cardTx
	declined.Status = domain.CardTransactionDeclined
	declined.DeclineReason = &reason
	return &declined, nil
}

func (r *repoStub) ListStaleCardTransactions(ctx context.Context, cutoff time.Time, limit int) ([]domain.CardTransaction, error) {
	if r.cardTx == nil || r.cardTx.Status != domain.CardTransactionPending || !r.cardTx.CreatedAt.Before(cutoff) {
		return nil, nil
	}
	return []domain.CardTransaction{*r.cardTx}, nil
}

func (r *repoStub) BuyInvestment(ctx context.Context, lot *domain.Investment, write store.LedgerWrite) (*store.PostingResult, error) {
	result, err := r.apply(ctx, write)
	if err != nil {
		return nil, err
	}
	lot.RemainingQuantity = lot.Quantity
	r.lots = append(r.lots, *lot)
	return result, nil
}

func (r *repoStub) SellInvestment(ctx context.Context, sale *domain.InvestmentSale, write store.LedgerWrite) (*store.PostingResult, error) {
	_, costBasis, err := domain.AllocateFIFO(r.lots, sale.Quantity)
	if err != nil {
		return nil, err
	}
	result, err := r.apply(ctx, write)
	if err != nil {
		return nil, err
	}
	sale.CostBasis = costBasis
	sale.RealizedGain = sale.Proceeds - costBasis
	sale.TransactionID = result.Transaction.ID
	return result, nil
}

func (r *repoStub) AcquireIdempotencyKey(ctx context.Context, userID uuid.UUID, scope, key, requestHash string, ttl, staleWindow time.Duration) (*store.IdempotentResponse, *store.IdempotencyRun, error) {
	id := userID.String() + "|" + scope + "|" + key
	run := &store.IdempotencyRun{UserID: userID, Scope: scope, Key: key, RunID: uuid.New()}
	row, ok := r.idempotency[id]
	if !ok {
		r.idempotency[id] = &idempotencyRow{hash: requestHash, run: run.RunID}
		return nil, run, nil
	}
	if row.hash != requestHash {
		return nil, nil, store.ErrIdempotencyConflict
	}
	if row.response != nil {
		return row.response, nil, nil
	}
	switch {
	case !row.stale:
		return nil, nil, store.ErrIdempotencyInProgress
	case row.applied:
		return nil, nil, store.ErrIdempotencyApplied
	}
	row.run, row.stale = run.RunID, false
	return nil, run, nil
}

// markApplied mirrors the store: a posting under a run flags its key, and a run
// that lost its reservation cannot post.
func (r *repoStub) markApplied(ctx context.Context) error {
	run, ok := store.IdempotencyRunFrom(ctx)
	if !ok {
		return nil
	}
	row := r.idempotency[run.UserID.String()+"|"+run.Scope+"|"+run.Key]
	if row == nil || row.run != run.RunID {
		return store.ErrIdempotencyInProgress
	}
	row.applied = true
	return nil
}

func (r *repoStub) CompleteIdempotencyKey(ctx context.Context, userID uuid.UUID, scope, key string, response store.IdempotentResponse) error {
	if r.completeErr != nil {
		return r.completeErr
	}
	row := r.idempotency[userID.String()+"|"+scope+"|"+key]
	row.response = &response
	return nil
}

func (r *repoStub) ReleaseIdempotencyKey(ctx context.Context, userID uuid.UUID, scope, key string) error {
	id := userID.String() + "|" + scope + "|" + key
	if row, ok := r.idempotency[id]; ok && !row.applied {
		delete(r.idempotency, id)
	}
	return nil
}

func (r *repoStub) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]domain.OutboxMessage, error) {
	claimed := r.outbox
	r.outbox = nil
	return claimed, nil
}

func (r *repoStub) MarkOutboxPublished(ctx context.Context, id int64) error {
	r.published = append(r.published, id)
	return nil
}

func (r *repoStub) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	r.failed[id] = retryAfterSeconds
	return nil
}

func (r *repoStub) CreateNotification(ctx context.Context, item *domain.Notification, dedupeKey *string) (bool, error) {
	if r.notifyErr != nil {
		return false, r.notifyErr
	}
	if dedupeKey != nil {
		if r.dedupe[*dedupeKey] {
			return false, nil
		}
		r.dedupe[*dedupeKey] = true
	}
	r.notifications = append(r.notifications, *item)
	return true, nil
}

func (r *repoStub) CreateMoneyRequest(ctx context.Context, req *domain.MoneyRequest, events []domain.OutboxEvent) error {
	r.requests[req.ID] = req
	r.requestEvents = append(r.requestEvents, events...)
	return nil
}

func (r *repoStub) FindMoneyRequestByID(ctx context.Context, requestID uuid.UUID) (*domain.MoneyRequest, error) {
	item, ok := r.requests[requestID]
	if !ok {
		return nil, store.ErrMoneyRequestNotFound
	}
	copied := *item
	return &copied, nil
}

func (r *repoStub) PayMoneyRequest(ctx context.Context, requestID uuid.UUID, recipientID uuid.UUID, write store.LedgerWrite) (*store.PostingResult, error) {
	item, ok := r.requests[requestID]
	if !ok || item.RecipientID != recipientID {
		return nil, store.ErrMoneyRequestNotFound
	}
	if item.Status != domain.MoneyRequestPending {
		return nil, store.ErrMoneyRequestNotPending
	}
	result, err := r.apply(ctx, write)
	if err != nil {
		return nil, err
	}
	item.Status = domain.MoneyRequestCompleted
	item.SettledTransactionID = &write.Transaction.ID
	return result, nil
}

func (r *repoStub) DeclineMoneyRequest(ctx context.Context, requestID uuid.UUID, recipientID uuid.UUID, events []domain.OutboxEvent) (*domain.MoneyRequest, error) {
	return r.closeRequest(requestID, func(item *domain.MoneyRequest) bool { return item.RecipientID == recipientID }, domain.MoneyRequestDeclined, events)
}

func (r *repoStub) CancelMoneyRequest(ctx context.Context, requestID uuid.UUID, requesterID uuid.UUID, events []domain.OutboxEvent) (*domain.MoneyRequest, error) {
	return r.closeRequest(requestID, func(item *domain.MoneyRequest) bool { return item.RequesterID == requesterID }, domain.MoneyRequestCancelled, events)
}

func (r *repoStub) closeRequest(requestID uuid.UUID, owns func(*domain.MoneyRequest) bool, status string, events []domain.OutboxEvent) (*domain.MoneyRequest, error) {
	item, ok := r.requests[requestID]
	if !ok || !owns(item) {
		return nil, store.ErrMoneyRequestNotFound
	}
	if item.Status != domain.MoneyRequestPending {
		return nil, store.ErrMoneyRequestNotPending
	}
	item.Status = status
	r.requestEvents = append(r.requestEvents, events...)
	copied := *item
	return &copied, nil
}

func (r *repoStub) ListDueMoneyRequestReminders(ctx context.Context, asOf time.Time, limit int) ([]domain.MoneyRequest, error) {
	var due []domain.MoneyRequest
	for _, item := range r.requests {
		if item.Status == domain.MoneyRequestPending && item.ReminderSentAt == nil && item.ReminderDate != nil && !item.ReminderDate.After(asOf) {
			due = append(due, *item)
		}
	}
	return due, nil
}

func (r *repoStub) MarkMoneyRequestReminded(ctx context.Context, requestID uuid.UUID, events []domain.OutboxEvent) (bool, error) {
	item := r.requests[requestID]
	if item.ReminderSentAt != nil {
		return false, nil
	}
	now := time.Now()
	item.ReminderSentAt = &now
	r.requestEvents = append(r.requestEvents, events...)
	return true, nil
}

func (r *repoStub) CreateProfile(ctx context.Context, profile *domain.UserProfile) error {
	if r.profiles == nil {
		r.profiles = map[uuid.UUID]*domain.UserProfile{}
	}
	if _, ok := r.profiles[profile.UserID]; ok {
		return store.ErrProfileExists
	}
	copied := *profile
	r.profiles[profile.UserID] = &copied
	return nil
}

func (r *repoStub) FindProfileByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserProfile, error) {
	profile, ok := r.profiles[userID]
	if !ok {
		return nil, store.ErrProfileNotFound
	}
	copied := *profile
	return &copied, nil
}

func (r *repoStub) UpdateProfile(ctx context.Context, profile *domain.UserProfile) error {
	copied := *profile
	r.profiles[profile.UserID] = &copied
	return nil
}
