package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/internal/store"
	"github.com/transfa/superapp-backend/pkg/marketclient"
	"go.uber.org/zap"
)

const (
	orderSideBuy  = "buy"
	orderSideSell = "sell"
)

// ListInvestments returns the user's open lots and a per-symbol summary.
func (s *Service) ListInvestments(ctx context.Context, userID uuid.UUID) (*domain.InvestmentsResponse, error) {
	lots, err := s.repo.ListOpenInvestments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}
	holdings, err := domain.SummarizeHoldings(lots)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize holdings: %w", err)
	}
	return &domain.InvestmentsResponse{Investments: lots, Holdings: holdings}, nil
}

// executionPrice returns the price an order fills at. Without a market provider the
// client price is used as is.
func (s *Service) executionPrice(ctx context.Context, symbol string, limit int64, side string) (int64, error) {
	if s.market == nil {
		return limit, nil
	}
	quote, err := s.market.Quote(ctx, symbol)
	if err != nil {
		if errors.Is(err, marketclient.ErrUnknownSymbol) {
			if side == orderSideBuy {
				return 0, ErrInvalidInvestment
			}
			return 0, ErrInvalidSell
		}
		s.logger.Warn("market quote unavailable", zap.String("symbol", symbol), zap.String("side", side), zap.Error(err))
		return 0, ErrMarketUnavailable
	}
	switch {
	case side == orderSideBuy && quote.Price > limit:
		return 0, ErrQuoteAboveLimit
	case side == orderSideSell && quote.Price < limit:
		return 0, ErrQuoteBelowLimit
	}
	return quote.Price, nil
}

// BuyInvestment buys quantity units of symbol and opens a lot.
func (s *Service) BuyInvestment(ctx context.Context, userID uuid.UUID, req domain.BuyInvestmentRequest) (*domain.BuyInvestmentResponse, error) {
	investmentType := strings.TrimSpace(req.InvestmentType)
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if investmentType == "" || symbol == "" || !domain.ValidQuantity(req.Quantity) || req.PurchasePrice <= 0 {
		return nil, ErrInvalidInvestment
	}

	price, err := s.executionPrice(ctx, symbol, req.PurchasePrice, orderSideBuy)
	if err != nil {
		return nil, err
	}
	cost, err := domain.MinorUnits(req.Quantity, price)
	if err != nil || !s.validAmount(cost) {
		return nil, ErrInvalidInvestment
	}

	wallet, err := s.wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	custody, err := s.systemAccount(ctx, domain.SystemAccountInvestments)
	if err != nil {
		return nil, err
	}

	lot := &domain.Investment{
		ID:             uuid.New(),
		UserID:         userID,
		InvestmentType: investmentType,
		Symbol:         symbol,
		Quantity:       req.Quantity,
		PurchasePrice:  price,
	}
	txID := uuid.New()
	description := fmt.Sprintf("Buy %s %s", req.Quantity.String(), symbol)
	write := store.LedgerWrite{
		Posting: domain.NewTransferPosting(domain.TransactionTypeInvestmentBuy, lot.ID.String(), wallet.ID, custody.ID, cost),
		Transaction: domain.Transaction{
			ID:          txID,
			Type:        domain.TransactionTypeInvestmentBuy,
			Status:      domain.TransactionStatusCompleted,
			SenderID:    &userID,
			Amount:      cost,
			Currency:    wallet.Currency,
			Description: &description,
			Reference:   stringPtr(lot.ID.String()),
		},
		Events: []domain.OutboxEvent{
			s.event(domain.RoutingKeyInvestmentOrderFilled, domain.InvestmentOrderEvent{
				UserID:        userID,
				Side:          orderSideBuy,
				Symbol:        symbol,
				Quantity:      req.Quantity.String(),
				Price:         price,
				Amount:        cost,
				TransactionID: txID,
				OccurredAt:    s.now(),
			}),
		},
	}

	if _, err := s.post(domain.TransactionTypeInvestmentBuy, func() (*store.PostingResult, error) {
		return s.repo.BuyInvestment(ctx, lot, write)
	}); err != nil {
		return nil, err
	}

	s.logger.Info("investment bought", zap.String("endpoint", "investment_buy"), zap.String("outcome", "filled"), logUser(userID), zap.String("symbol", symbol), zap.Int64("cost", cost))
	return &domain.BuyInvestmentResponse{Message: "Investment purchased successfully", Investment: *lot, Cost: cost}, nil
}

// SellInvestment sells quantity units of symbol from the oldest lots first.
func (s *Service) SellInvestment(ctx context.Context, userID uuid.UUID, req domain.SellInvestmentRequest) (*domain.SellInvestmentResponse, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" || !domain.ValidQuantity(req.Quantity) || req.SellingPrice <= 0 {
		return nil, ErrInvalidSell
	}

	price, err := s.executionPrice(ctx, symbol, req.SellingPrice, orderSideSell)
	if err != nil {
		return nil, err
	}
	proceeds, err := domain.MinorUnits(req.Quantity, price)
	if err != nil || !s.validAmount(proceeds) {
		return nil, ErrInvalidSell
	}

	wallet, err := s.wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	custody, err := s.systemAccount(ctx, domain.SystemAccountInvestments)
	if err != nil {
		return nil, err
	}

	sale := &domain.InvestmentSale{
		ID:           uuid.New(),
		UserID:       userID,
		Symbol:       symbol,
		Quantity:     req.Quantity,
		SellingPrice: price,
		Proceeds:     proceeds,
	}
	txID := uuid.New()
	description := fmt.Sprintf("Sell %s %s", req.Quantity.String(), symbol)
	write := store.LedgerWrite{
		Posting: domain.NewTransferPosting(domain.TransactionTypeInvestmentSell, sale.ID.String(), custody.ID, wallet.ID, proceeds),
		Transaction: domain.Transaction{
			ID:          txID,
			Type:        domain.TransactionTypeInvestmentSell,
			Status:      domain.TransactionStatusCompleted,
			ReceiverID:  &userID,
			Amount:      proceeds,
			Currency:    wallet.Currency,
			Description: &description,
			Reference:   stringPtr(sale.ID.String()),
		},
		Events: []domain.OutboxEvent{
			s.event(domain.RoutingKeyInvestmentOrderFilled, domain.InvestmentOrderEvent{
				UserID:        userID,
				Side:          orderSideSell,
				Symbol:        symbol,
				Quantity:      req.Quantity.String(),
				Price:         price,
				Amount:        proceeds,
				TransactionID: txID,
				OccurredAt:    s.now(),
			}),
			s.notification(userID, "investment.sold", "Investment sold",
				fmt.Sprintf("You sold %s %s for %s.", req.Quantity.String(), symbol, formatAmount(proceeds, wallet.Currency)), &sale.ID),
		},
	}

	if _, err := s.post(domain.TransactionTypeInvestmentSell, func() (*store.PostingResult, error) {
		return s.repo.SellInvestment(ctx, sale, write)
	}); err != nil {
		if errors.Is(err, domain.ErrInsufficientHoldings) {
			s.logger.Info("investment sell rejected", zap.String("endpoint", "investment_sell"), zap.String("outcome", "reject"), zap.String("reason", "insufficient_holdings"), logUser(userID))
		}
		return nil, err
	}

	s.logger.Info("investment sold", zap.String("endpoint", "investment_sell"), zap.String("outcome", "filled"), logUser(userID), zap.String("symbol", symbol), zap.Int64("realized_gain", sale.RealizedGain))
	return &domain.SellInvestmentResponse{Message: "Investment sold successfully", Sale: *sale}, nil
}
