package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func lot(symbol string, remaining string, price int64) Investment {
	qty := decimal.RequireFromString(remaining)
	return Investment{
		ID:                uuid.New(),
		Symbol:            symbol,
		InvestmentType:    "stock",
		Quantity:          qty,
		RemainingQuantity: qty,
		PurchasePrice:     price,
	}
}

func TestMinorUnitsRounds(t *testing.T) {
	tests := []struct {
		qty   string
		price int64
		want  int64
	}{
		{qty: "2", price: 1500, want: 3000},
		{qty: "0.5", price: 333, want: 167},
		{qty: "1.25", price: 1000, want: 1250},
		{qty: "0.001", price: 100, want: 0},
	}
	for _, tt := range tests {
		got, err := MinorUnits(decimal.RequireFromString(tt.qty), tt.price)
		if err != nil {
			t.Fatalf("MinorUnits(%s, %d): unexpected error: %v", tt.qty, tt.price, err)
		}
		if got != tt.want {
			t.Fatalf("MinorUnits(%s, %d) = %d, want %d", tt.qty, tt.price, got, tt.want)
		}
	}
}

func TestMinorUnitsRejectsOverflow(t *testing.T) {
	tests := []struct {
		qty   string
		price int64
	}{
		// 2^64 + 616 minor units; IntPart alone would wrap to 616.
		{qty: "18446744073709552.616", price: 1000},
		{qty: "9223372036854775808", price: 1},
		{qty: "-9223372036854775809", price: 1},
	}
	for _, tt := range tests {
		if _, err := MinorUnits(decimal.RequireFromString(tt.qty), tt.price); !errors.Is(err, ErrAmountOutOfRange) {
			t.Fatalf("MinorUnits(%s, %d): expected ErrAmountOutOfRange, got %v", tt.qty, tt.price, err)
		}
	}
	got, err := MinorUnits(decimal.RequireFromString("9223372036854775807"), 1)
	if err != nil || got != math.MaxInt64 {
		t.Fatalf("expected MaxInt64 to fit, got %d, %v", got, err)
	}
}

func TestValidQuantity(t *testing.T) {
	tests := []struct {
		qty  string
		want bool
	}{
		{qty: "2.5", want: true},
		{qty: "0.0000000001", want: true},
		{qty: "999999999999999999.9999999999", want: true},
		{qty: "0", want: false},
		{qty: "-1", want: false},
		{qty: "0.00000000001", want: false},
		{qty: "1000000000000000000", want: false},
		{qty: "18446744073709552.616", want: true},
	}
	for _, tt := range tests {
		if got := ValidQuantity(decimal.RequireFromString(tt.qty)); got != tt.want {
			t.Fatalf("ValidQuantity(%s) = %v, want %v", tt.qty, got, tt.want)
		}
	}
}

func TestAllocateFIFO_RejectsOverflowingCostBasis(t *testing.T) {
	lots := []Investment{lot("ACME", "1", math.MaxInt64), lot("ACME", "1", 1)}
	if _, _, err := AllocateFIFO(lots, decimal.NewFromInt(2)); !errors.Is(err, ErrAmountOutOfRange) {
		t.Fatalf("expected ErrAmountOutOfRange, got %v", err)
	}
}

func TestAllocateFIFO_ConsumesOldestLotsFirst(t *testing.T) {
	first := lot("ACME", "2", 1000)
	second := lot("ACME", "3", 2000)

	allocations, costBasis, err := AllocateFIFO([]Investment{first, second}, decimal.RequireFromString("3"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocations) != 2 {
		t.Fatalf("expected two allocations, got %d", len(allocations))
	}
	if allocations[0].LotID != first.ID || !allocations[0].Remaining.IsZero() {
		t.Fatalf("expected first lot to be fully consumed, got %+v", allocations[0])
	}
	if !allocations[1].Quantity.Equal(decimal.NewFromInt(1)) || !allocations[1].Remaining.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("expected one unit from second lot, got %+v", allocations[1])
	}
	if costBasis != 2*1000+1*2000 {
		t.Fatalf("unexpected cost basis %d", costBasis)
	}
}

func TestAllocateFIFO_RejectsOversell(t *testing.T) {
	_, _, err := AllocateFIFO([]Investment{lot("ACME", "1.5", 100)}, decimal.RequireFromString("2"))
	if !errors.Is(err, ErrInsufficientHoldings) {
		t.Fatalf("expected ErrInsufficientHoldings, got %v", err)
	}
}

func TestAllocateFIFO_SkipsExhaustedLots(t *testing.T) {
	empty := lot("ACME", "0", 100)
	open := lot("ACME", "1", 300)

	allocations, costBasis, err := AllocateFIFO([]Investment{empty, open}, decimal.NewFromInt(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(allocations) != 1 || allocations[0].LotID != open.ID {
		t.Fatalf("expected only the open lot, got %+v", allocations)
	}
	if costBasis != 300 {
		t.Fatalf("expected cost basis 300, got %d", costBasis)
	}
}

func TestSummarizeHoldingsGroupsBySymbol(t *testing.T) {
	holdings, err := SummarizeHoldings([]Investment{
		lot("ACME", "1", 100),
		lot("BTC", "0.5", 4000000),
		lot("ACME", "2", 150),
		lot("GONE", "0", 10),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(holdings) != 2 {
		t.Fatalf("expected two holdings, got %d", len(holdings))
	}
	if holdings[0].Symbol != "ACME" || !holdings[0].Quantity.Equal(decimal.NewFromInt(3)) || holdings[0].CostBasis != 400 {
		t.Fatalf("unexpected ACME holding %+v", holdings[0])
	}
	if holdings[1].Symbol != "BTC" || holdings[1].CostBasis != 2000000 {
		t.Fatalf("unexpected BTC holding %+v", holdings[1])
	}
}

func TestSummarizeHoldingsRejectsOverflow(t *testing.T) {
	_, err := SummarizeHoldings([]Investment{lot("ACME", "1", math.MaxInt64), lot("ACME", "1", 1)})
	if !errors.Is(err, ErrAmountOutOfRange) {
		t.Fatalf("expected ErrAmountOutOfRange, got %v", err)
	}
}
