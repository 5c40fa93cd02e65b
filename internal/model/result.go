package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// IssueSeverity grades a data-quality finding.
type IssueSeverity string

const (
	SeverityLow    IssueSeverity = "LOW"
	SeverityMedium IssueSeverity = "MEDIUM"
	SeverityHigh   IssueSeverity = "HIGH"
)

// Issue codes for the findings the engine currently emits.
const (
	IssueUnmatchedDisposal  = "UNMATCHED_DISPOSAL"
	IssueZeroCostLot        = "ZERO_COST_ACQUISITION"
	IssueUnresolvedPrice    = "UNRESOLVED_PRICE"
	IssuePartialLotCoverage = "PARTIAL_LOT_COVERAGE"
)

// AuditIssue is a non-fatal data-quality gap surfaced instead of a silently
// wrong number. Computation continues with the best available values.
type AuditIssue struct {
	Code          string        `json:"code"`
	Severity      IssueSeverity `json:"severity"`
	Message       string        `json:"message"`
	TransactionID string        `json:"transactionId,omitempty"`
	Asset         string        `json:"asset,omitempty"`
}

// CapitalGainsReport aggregates realized gains and losses by holding term.
type CapitalGainsReport struct {
	ShortTermGains  decimal.Decimal `json:"shortTermGains"`
	ShortTermLosses decimal.Decimal `json:"shortTermLosses"`
	LongTermGains   decimal.Decimal `json:"longTermGains"`
	LongTermLosses  decimal.Decimal `json:"longTermLosses"`
	NetShortTerm    decimal.Decimal `json:"netShortTerm"`
	NetLongTerm     decimal.Decimal `json:"netLongTerm"`
	Net             decimal.Decimal `json:"net"`
	TotalProceeds   decimal.Decimal `json:"totalProceeds"`
	TotalCostBasis  decimal.Decimal `json:"totalCostBasis"`
	TaxableGains    decimal.Decimal `json:"taxableGains"`
}

// IncomeReport aggregates income events by source.
type IncomeReport struct {
	Staking  decimal.Decimal `json:"staking"`
	Mining   decimal.Decimal `json:"mining"`
	Airdrops decimal.Decimal `json:"airdrops"`
	Other    decimal.Decimal `json:"other"`
	Total    decimal.Decimal `json:"total"`
}

// Holding is the period-end position in one asset derived from open lots.
type Holding struct {
	Asset          string          `json:"asset"`
	Quantity       decimal.Decimal `json:"quantity"`
	CostBasis      decimal.Decimal `json:"costBasis"`
	OpenLots       int             `json:"openLots"`
	UnresolvedCost bool            `json:"unresolvedCost"`
}

// MonthlyExemptionEntry is one calendar month's disposal volume and its
// exempt/taxable split.
type MonthlyExemptionEntry struct {
	Month        string          `json:"month"` // YYYY-MM
	Volume       decimal.Decimal `json:"volume"`
	Gains        decimal.Decimal `json:"gains"`
	Exempt       bool            `json:"exempt"`
	TaxableGains decimal.Decimal `json:"taxableGains"`
}

// MonthlyExemptionReport is the disposal-volume exemption rollup for
// jurisdictions that carve out low-volume months.
type MonthlyExemptionReport struct {
	Threshold    decimal.Decimal         `json:"threshold"`
	Months       []MonthlyExemptionEntry `json:"months"`
	TaxableGains decimal.Decimal         `json:"taxableGains"`
	ExemptGains  decimal.Decimal         `json:"exemptGains"`
}

// LossCarryforwardReport splits a net capital loss into the deductible
// portion and the carryforward beyond the jurisdiction's annual cap.
type LossCarryforwardReport struct {
	Cap          decimal.Decimal `json:"cap"`
	NetLoss      decimal.Decimal `json:"netLoss"`
	Deductible   decimal.Decimal `json:"deductible"`
	Carryforward decimal.Decimal `json:"carryforward"`
}

// ForeignAccountEntry tracks one external exchange account's peak
// settlement-currency balance across the year.
type ForeignAccountEntry struct {
	ConnectionID string          `json:"connectionId"`
	Exchange     string          `json:"exchange"`
	PeakBalance  decimal.Decimal `json:"peakBalance"`
	PeakDate     string          `json:"peakDate"` // YYYY-MM-DD
}

// ForeignAccountReport flags disclosure requirements for jurisdictions with
// a peak-balance reporting threshold.
type ForeignAccountReport struct {
	Threshold          decimal.Decimal       `json:"threshold"`
	AggregatePeak      decimal.Decimal       `json:"aggregatePeak"`
	Accounts           []ForeignAccountEntry `json:"accounts"`
	DisclosureRequired bool                  `json:"disclosureRequired"`
}

// AuditResult is the immutable output document of a completed run. The
// content hash covers every field except ContentHash and GeneratedAt and is
// a deterministic function of the result content only.
type AuditResult struct {
	AuditID          string                  `json:"auditId"`
	Jurisdiction     Jurisdiction            `json:"jurisdiction"`
	TaxYear          int                     `json:"taxYear"`
	Currency         string                  `json:"currency"`
	Method           CostBasisMethod         `json:"method"`
	CapitalGains     CapitalGainsReport      `json:"capitalGains"`
	Income           IncomeReport            `json:"income"`
	Holdings         []Holding               `json:"holdings"`
	Matches          []DisposalMatch         `json:"matches"`
	Issues           []AuditIssue            `json:"issues"`
	EstimatedTax     decimal.Decimal         `json:"estimatedTax"`
	MonthlyExemption *MonthlyExemptionReport `json:"monthlyExemption,omitempty"`
	LossCarryforward *LossCarryforwardReport `json:"lossCarryforward,omitempty"`
	ForeignAccounts  *ForeignAccountReport   `json:"foreignAccounts,omitempty"`
	ContentHash      string                  `json:"contentHash"`
	GeneratedAt      time.Time               `json:"generatedAt"`
}
