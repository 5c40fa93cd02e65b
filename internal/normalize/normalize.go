// Package normalize converts provider-specific raw records into the
// canonical Transaction/Flow model. Each provider shape is a tagged variant
// validated once at this boundary; all downstream engine code operates only
// on the canonical model.
package normalize

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
)

// ParseError is the typed rejection for a malformed provider record.
// Malformed records are never silently coerced into a transaction with
// invented values.
type ParseError struct {
	Record string
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed %s record: field %q: %s", e.Record, e.Field, e.Reason)
}

// Record is a provider-specific raw record that can be validated and
// normalized into a canonical transaction.
type Record interface {
	// Normalize validates the record and produces a canonical transaction
	// with its ordered flows. Returns a *ParseError on malformed input.
	Normalize() (model.Transaction, error)
}

// parseQuantity resolves a raw integer amount and decimal exponent into an
// exact positive quantity. Raw amounts can exceed int64 for 18-decimal
// tokens, so parsing goes through big.Int.
func parseQuantity(record, field, raw string, decimals int32) (decimal.Decimal, error) {
	bi, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return decimal.Zero, &ParseError{Record: record, Field: field, Reason: "not a base-10 integer"}
	}
	if bi.Sign() < 0 {
		return decimal.Zero, &ParseError{Record: record, Field: field, Reason: "amount must not be negative"}
	}
	if decimals < 0 {
		return decimal.Zero, &ParseError{Record: record, Field: field, Reason: "negative decimal exponent"}
	}
	return decimal.NewFromBigInt(bi, -decimals), nil
}

// parseValue resolves an optional settlement-currency value. A nil pointer
// is a valid, trackable unresolved state and maps to a null decimal — never
// to zero.
func parseValue(record, field string, raw *string) (decimal.NullDecimal, error) {
	if raw == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*raw)
	if err != nil {
		return decimal.NullDecimal{}, &ParseError{Record: record, Field: field, Reason: "not a decimal number"}
	}
	if d.IsNegative() {
		return decimal.NullDecimal{}, &ParseError{Record: record, Field: field, Reason: "value must not be negative"}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}
