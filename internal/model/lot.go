package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Lot is a discrete acquisition of an asset tracked with its own cost basis.
// Remaining is monotonically non-increasing within a run; an exhausted lot
// (Remaining == 0) is retained for the audit trail rather than removed.
type Lot struct {
	ID            string          `json:"id"`
	Asset         string          `json:"asset"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	Cost          decimal.Decimal `json:"cost"`
	AcquiredAt    time.Time       `json:"acquiredAt"`
	Remaining     decimal.Decimal `json:"remaining"`
}

// UnitCost returns the acquisition cost per unit. Zero-amount lots are
// rejected at insertion, so division is safe.
func (l *Lot) UnitCost() decimal.Decimal {
	return l.Cost.Div(l.Amount)
}

// HoldingTerm classifies a disposal match against the jurisdiction's
// long-term threshold.
type HoldingTerm string

const (
	TermShort HoldingTerm = "SHORT_TERM"
	TermLong  HoldingTerm = "LONG_TERM"
)

// DisposalMatch records one lot's contribution to one disposal. A disposal
// spanning multiple lots produces one match per lot consumed.
type DisposalMatch struct {
	TransactionID string          `json:"transactionId"`
	LotID         string          `json:"lotId"`
	Asset         string          `json:"asset"`
	Quantity      decimal.Decimal `json:"quantity"`
	Proceeds      decimal.Decimal `json:"proceeds"`
	CostBasis     decimal.Decimal `json:"costBasis"`
	DisposedAt    time.Time       `json:"disposedAt"`
	AcquiredAt    time.Time       `json:"acquiredAt"`
	HoldingDays   int             `json:"holdingDays"`
	Term          HoldingTerm     `json:"term"`
}

// GainLoss is the realized gain (positive) or loss (negative) of the match.
func (m *DisposalMatch) GainLoss() decimal.Decimal {
	return m.Proceeds.Sub(m.CostBasis)
}
