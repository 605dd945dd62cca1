package domain

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrInsufficientHoldings = errors.New("insufficient holdings")

var (
	maxMinorUnits = decimal.NewFromInt(math.MaxInt64)
	minMinorUnits = decimal.NewFromInt(math.MinInt64)

	// maxQuantity and QuantityScale follow the NUMERIC(28, 10) lot columns.
	maxQuantity = decimal.New(1, 18)
)

const QuantityScale = 10

// ValidQuantity reports whether q is a positive order quantity the lot columns can hold.
func ValidQuantity(q decimal.Decimal) bool {
	return q.IsPositive() && q.LessThan(maxQuantity) && q.Equal(q.Truncate(QuantityScale))
}

// LotAllocation is the part of one lot consumed by a sale.
type LotAllocation struct {
	LotID     uuid.UUID
	Quantity  decimal.Decimal
	Remaining decimal.Decimal
	CostBasis int64
}

// MinorUnits converts quantity x unit price into whole minor units, rounding half away
// from zero. Products outside int64 return ErrAmountOutOfRange.
func MinorUnits(quantity decimal.Decimal, unitPrice int64) (int64, error) {
	value := quantity.Mul(decimal.NewFromInt(unitPrice)).Round(0)
	if value.GreaterThan(maxMinorUnits) || value.LessThan(minMinorUnits) {
		return 0, ErrAmountOutOfRange
	}
	return value.IntPart(), nil
}

// AllocateFIFO consumes quantity from lots in the given order (oldest first).
func AllocateFIFO(lots []Investment, quantity decimal.Decimal) ([]LotAllocation, int64, error) {
	if !quantity.IsPositive() {
		return nil, 0, ErrInsufficientHoldings
	}

	outstanding := quantity
	var costBasis int64
	allocations := make([]LotAllocation, 0, len(lots))
	for _, lot := range lots {
		if !outstanding.IsPositive() {
			break
		}
		if !lot.RemainingQuantity.IsPositive() {
			continue
		}
		take := decimal.Min(lot.RemainingQuantity, outstanding)
		cost, err := MinorUnits(take, lot.PurchasePrice)
		if err != nil {
			return nil, 0, err
		}
		if costBasis, err = AddAmounts(costBasis, cost); err != nil {
			return nil, 0, err
		}
		allocations = append(allocations, LotAllocation{
			LotID:     lot.ID,
			Quantity:  take,
			Remaining: lot.RemainingQuantity.Sub(take),
			CostBasis: cost,
		})
		outstanding = outstanding.Sub(take)
	}

	if outstanding.IsPositive() {
		return nil, 0, ErrInsufficientHoldings
	}
	return allocations, costBasis, nil
}

// SummarizeHoldings groups open lots by symbol.
func SummarizeHoldings(lots []Investment) ([]Holding, error) {
	index := map[string]int{}
	holdings := make([]Holding, 0)
	for _, lot := range lots {
		if !lot.RemainingQuantity.IsPositive() {
			continue
		}
		i, ok := index[lot.Symbol]
		if !ok {
			holdings = append(holdings, Holding{Symbol: lot.Symbol, InvestmentType: lot.InvestmentType, Quantity: decimal.Zero})
			i = len(holdings) - 1
			index[lot.Symbol] = i
		}
		holdings[i].Quantity = holdings[i].Quantity.Add(lot.RemainingQuantity)
		cost, err := MinorUnits(lot.RemainingQuantity, lot.PurchasePrice)
		if err != nil {
			return nil, fmt.Errorf("cost basis of %s: %w", lot.Symbol, err)
		}
		if holdings[i].CostBasis, err = AddAmounts(holdings[i].CostBasis, cost); err != nil {
			return nil, fmt.Errorf("cost basis of %s: %w", lot.Symbol, err)
		}
	}
	return holdings, nil
}
