package app

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/transfa/superapp-backend/internal/config"
	"github.com/transfa/superapp-backend/internal/domain"
	"github.com/transfa/superapp-backend/pkg/marketclient"
)

type quoteStub struct {
	price int64
	err   error
}

func (s quoteStub) Quote(ctx context.Context, symbol string) (*marketclient.Quote, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &marketclient.Quote{Symbol: symbol, Price: s.price}, nil
}

func TestBuyInvestmentPricing(t *testing.T) {
	tests := []struct {
		name      string
		market    QuoteProvider
		limit     int64
		wantErr   error
		wantPrice int64
	}{
		{name: "client price without market", market: nil, limit: 1000, wantPrice: 1000},
		{name: "fills at quote under limit", market: quoteStub{price: 900}, limit: 1000, wantPrice: 900},
		{name: "quote above limit", market: quoteStub{price: 1100}, limit: 1000, wantErr: ErrQuoteAboveLimit},
		{name: "unknown symbol", market: quoteStub{err: marketclient.ErrUnknownSymbol}, limit: 1000, wantErr: ErrInvalidInvestment},
		{name: "market down", market: quoteStub{err: errors.New("connection refused")}, limit: 1000, wantErr: ErrMarketUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRepoStub()
			svc := newTestService(repo)
			if tt.market != nil {
				svc.SetQuoteProvider(tt.market)
			}
			user := repo.addUser("investor@example.com", 100000)

			resp, err := svc.BuyInvestment(context.Background(), user.ID, domain.BuyInvestmentRequest{
				InvestmentType: "stock",
				Symbol:         "acme",
				Quantity:       decimal.RequireFromString("2.5"),
				PurchasePrice:  tt.limit,
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				if repo.wallets[user.ID].Balance != 100000 {
					t.Fatalf("expected wallet untouched, got %d", repo.wallets[user.ID].Balance)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			wantCost, err := domain.MinorUnits(decimal.RequireFromString("2.5"), tt.wantPrice)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if resp.Cost != wantCost || resp.Investment.PurchasePrice != tt.wantPrice || resp.Investment.Symbol != "ACME" {
				t.Fatalf("unexpected fill: %+v", resp)
			}
			if repo.wallets[user.ID].Balance != 100000-wantCost {
				t.Fatalf("expected wallet debited by %d, got %d", wantCost, repo.wallets[user.ID].Balance)
			}
		})
	}
}

func TestInvestmentOrdersRejectOverflowingAmounts(t *testing.T) {
	repo := newRepoStub()
	svc := newTestService(repo)
	user := repo.addUser("whale@example.com", 1000)

	// 2^64 + 616 minor units would wrap to a 616 debit without the range check.
	huge := decimal.RequireFromString("18446744073709552.616")
	if _, err := svc.BuyInvestment(context.Background(), user.ID, domain.BuyInvestmentRequest{
		InvestmentType: "stock", Symbol: "ACME", Quantity: huge, PurchasePrice: 1000,
	}); !errors.Is(err, ErrInvalidInvestment) {
		t.Fatalf("expected ErrInvalidInvestment, got %v", err)
	}
	if _, err := svc.BuyInvestment(context.Background(), user.ID, domain.BuyInvestmentRequest{
		InvestmentType: "stock", Symbol: "ACME", Quantity: decimal.NewFromInt(2), PurchasePrice: config.DefaultMaxTransactionAmount,
	}); !errors.Is(err, ErrInvalidInvestment) {
		t.Fatalf("expected cost above cap to be rejected, got %v", err)
	}
	if _, err := svc.SellInvestment(context.Background(), user.ID, domain.SellInvestmentRequest{
		Symbol: "ACME", Quantity: huge, SellingPrice: 1000,
	}); !errors.Is(err, ErrInvalidSell) {
		t.Fatalf("expected ErrInvalidSell, got %v", err)
	}
	if repo.wallets[user.ID].Balance != 1000 || len(repo.lots) != 0 || len(repo.writes) != 0 {
		t.Fatalf("expected no state change, balance %d lots %d writes %d", repo.wallets[user.ID].Balance, len(repo.lots), len(repo.writes))
	}
}

func TestSellInvestment(t *testing.T) {
	repo := newRepoStub()
	svc := newTestService(repo)
	user := repo.addUser("seller@example.com", 100000)

	for _, price := range []int64{1000, 2000} {
		if _, err := svc.BuyInvestment(context.Background(), user.ID, domain.BuyInvestmentRequest{
			InvestmentType: "stock", Symbol: "ACME", Quantity: decimal.NewFromInt(2), PurchasePrice: price,
		}); err != nil {
			t.Fatalf("buy failed: %v", err)
		}
	}

	resp, err := svc.SellInvestment(context.Background(), user.ID, domain.SellInvestmentRequest{
		Symbol: "ACME", Quantity: decimal.NewFromInt(3), SellingPrice: 2500,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// FIFO: 2 @ 1000 + 1 @ 2000.
	if resp.Sale.CostBasis != 4000 || resp.Sale.Proceeds != 7500 || resp.Sale.RealizedGain != 3500 {
		t.Fatalf("unexpected sale: %+v", resp.Sale)
	}

	if _, err := svc.SellInvestment(context.Background(), user.ID, domain.SellInvestmentRequest{
		Symbol: "ACME", Quantity: decimal.NewFromInt(10), SellingPrice: 2500,
	}); !errors.Is(err, domain.ErrInsufficientHoldings) {
		t.Fatalf("expected ErrInsufficientHoldings, got %v", err)
	}

	svc.SetQuoteProvider(quoteStub{price: 2400})
	if _, err := svc.SellInvestment(context.Background(), user.ID, domain.SellInvestmentRequest{
		Symbol: "ACME", Quantity: decimal.NewFromInt(1), SellingPrice: 2500,
	}); !errors.Is(err, ErrQuoteBelowLimit) {
		t.Fatalf("expected ErrQuoteBelowLimit, got %v", err)
	}

	if _, err := svc.SellInvestment(context.Background(), user.ID, domain.SellInvestmentRequest{
		Symbol: "ACME", Quantity: decimal.Zero, SellingPrice: 2500,
	}); !errors.Is(err, ErrInvalidSell) {
		t.Fatalf("expected ErrInvalidSell, got %v", err)
	}
}
