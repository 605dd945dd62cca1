package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/transfa/superapp-backend/internal/domain"
)

// Quantities travel as text so NUMERIC precision survives the round trip.
const investmentColumns = `
	id, user_id, investment_type, symbol, quantity::text, remaining_quantity::text,
	purchase_price, purchase_date
`

func scanInvestment(row pgx.Row) (*domain.Investment, error) {
	var (
		item      domain.Investment
		quantity  string
		remaining string
	)
	if err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.InvestmentType,
		&item.Symbol,
		&quantity,
		&remaining,
		&item.PurchasePrice,
		&item.PurchaseDate,
	); err != nil {
		return nil, err
	}

	var err error
	if item.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("parse lot quantity: %w", err)
	}
	if item.RemainingQuantity, err = decimal.NewFromString(remaining); err != nil {
		return nil, fmt.Errorf("parse lot remaining quantity: %w", err)
	}
	return &item, nil
}

// ListOpenInvestments returns the user's lots with quantity left, oldest first.
func (r *PostgresRepository) ListOpenInvestments(ctx context.Context, userID uuid.UUID) ([]domain.Investment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+investmentColumns+`
		FROM investments
		WHERE user_id = $1 AND remaining_quantity > 0
		ORDER BY purchase_date, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Investment, 0)
	for rows.Next() {
		item, err := scanInvestment(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *item)
	}
	return results, rows.Err()
}

// BuyInvestment debits the wallet for the cost and inserts the lot.
func (r *PostgresRepository) BuyInvestment(ctx context.Context, lot *domain.Investment, write LedgerWrite) (*PostingResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin investment buy tx: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := postLedgerWriteTx(ctx, tx, write)
	if err != nil {
		return nil, err
	}

	if lot.ID == uuid.Nil {
		lot.ID = uuid.New()
	}
	lot.RemainingQuantity = lot.Quantity
	if err := tx.QueryRow(ctx, `
		INSERT INTO investments (
			id, user_id, investment_type, symbol, quantity, remaining_quantity,
			purchase_price, transaction_id
		)
		VALUES ($1, $2, $3, $4, $5::numeric, $5::numeric, $6, $7)
		RETURNING purchase_date
	`,
		lot.ID,
		lot.UserID,
		lot.InvestmentType,
		lot.Symbol,
		lot.Quantity.String(),
		lot.PurchasePrice,
		result.Transaction.ID,
	).Scan(&lot.PurchaseDate); err != nil {
		return nil, fmt.Errorf("insert investment lot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// SellInvestment consumes the user's lots of sale.Symbol FIFO under row locks,
// credits the proceeds and records the sale with its cost basis and realized gain.
func (r *PostgresRepository) SellInvestment(ctx context.Context, sale *domain.InvestmentSale, write LedgerWrite) (*PostingResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin investment sell tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT `+investmentColumns+`
		FROM investments
		WHERE user_id = $1 AND symbol = $2 AND remaining_quantity > 0
		ORDER BY purchase_date, id
		FOR UPDATE
	`, sale.UserID, sale.Symbol)
	if err != nil {
		return nil, fmt.Errorf("lock investment lots: %w", err)
	}
	lots := make([]domain.Investment, 0)
	for rows.Next() {
		item, err := scanInvestment(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		lots = append(lots, *item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	allocations, costBasis, err := domain.AllocateFIFO(lots, sale.Quantity)
	if err != nil {
		return nil, err
	}
	for _, allocation := range allocations {
		if _, err := tx.Exec(ctx, `
			UPDATE investments SET remaining_quantity = $2::numeric WHERE id = $1
		`, allocation.LotID, allocation.Remaining.String()); err != nil {
			return nil, fmt.Errorf("reduce investment lot: %w", err)
		}
	}

	result, err := postLedgerWriteTx(ctx, tx, write)
	if err != nil {
		return nil, err
	}

	if sale.ID == uuid.Nil {
		sale.ID = uuid.New()
	}
	sale.CostBasis = costBasis
	sale.RealizedGain = sale.Proceeds - costBasis
	sale.TransactionID = result.Transaction.ID
	if err := tx.QueryRow(ctx, `
		INSERT INTO investment_sales (
			id, user_id, symbol, quantity, selling_price, proceeds,
			cost_basis, realized_gain, transaction_id
		)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)
		RETURNING created_at
	`,
		sale.ID,
		sale.UserID,
		sale.Symbol,
		sale.Quantity.String(),
		sale.SellingPrice,
		sale.Proceeds,
		sale.CostBasis,
		sale.RealizedGain,
		sale.TransactionID,
	).Scan(&sale.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert investment sale: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}
