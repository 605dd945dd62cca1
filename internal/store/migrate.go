package store

import (
	"context"
	_ "embed"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const currencyPlaceholder = "{{CURRENCY}}"

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// renderSchema fills the seeded system accounts' currency.
func renderSchema(currency string) (string, error) {
	if !currencyPattern.MatchString(currency) {
		return "", fmt.Errorf("invalid currency code %q", currency)
	}
	return strings.ReplaceAll(schemaSQL, currencyPlaceholder, currency), nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *pgxpool.Pool, currency string) error {
	schema, err := renderSchema(currency)
	if err != nil {
		return err
	}
	// Exec without arguments uses the simple protocol, which accepts multiple statements.
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
