// Package taxrules holds the per-jurisdiction rate tables and aggregate
// reports. Every function here is total and side-effect-free; unknown
// jurisdiction codes fail fast rather than defaulting to another
// jurisdiction's rates.
package taxrules

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/apperrors"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
)

// IncomeType selects which bracket family a rate lookup consults.
type IncomeType string

const (
	IncomeCapitalGains IncomeType = "CAPITAL_GAINS"
	IncomeOrdinary     IncomeType = "ORDINARY"
)

// Bracket is one progressive step: the rate applies while the amount is at
// most UpTo. A null UpTo marks the open-ended top bracket.
type Bracket struct {
	UpTo decimal.NullDecimal
	Rate decimal.Decimal
}

// RuleSet is the complete parameterization of one jurisdiction. Optional
// thresholds are null for jurisdictions without the corresponding rule.
type RuleSet struct {
	Jurisdiction          model.Jurisdiction
	LongTermThresholdDays int
	ShortTermBrackets     []Bracket
	LongTermBrackets      []Bracket
	IncomeBrackets        []Bracket
	MonthlyExemption      decimal.NullDecimal
	AnnualLossCap         decimal.NullDecimal
	ForeignAccountLimit   decimal.NullDecimal
}

// ForJurisdiction returns the rule set for the given code.
func ForJurisdiction(j model.Jurisdiction) (*RuleSet, error) {
	rs, ok := ruleSets[j]
	if !ok {
		return nil, apperrors.ErrUnsupportedJurisdiction
	}
	return rs, nil
}

// IsLongTerm reports whether a holding period qualifies for long-term
// treatment. The period must exceed the threshold, not merely reach it.
func (rs *RuleSet) IsLongTerm(holdingDays int) bool {
	return holdingDays > rs.LongTermThresholdDays
}

// Rate resolves the applicable rate for an income type, amount, and holding
// period. The holding-period-qualified bracket set is selected first, then
// the progressive amount bracket; amounts beyond every defined range fall
// back to the highest bracket.
func (rs *RuleSet) Rate(incomeType IncomeType, amount decimal.Decimal, holdingDays int) decimal.Decimal {
	var brackets []Bracket
	switch incomeType {
	case IncomeOrdinary:
		brackets = rs.IncomeBrackets
	default:
		if rs.IsLongTerm(holdingDays) {
			brackets = rs.LongTermBrackets
		} else {
			brackets = rs.ShortTermBrackets
		}
	}
	if len(brackets) == 0 {
		return decimal.Zero
	}
	for _, b := range brackets {
		if !b.UpTo.Valid || amount.LessThanOrEqual(b.UpTo.Decimal) {
			return b.Rate
		}
	}
	return brackets[len(brackets)-1].Rate
}

// MonthlyExemptionRollup groups disposal proceeds by calendar month and
// splits gains into exempt and taxable. A month is exempt when its total
// disposal volume stays at or below the threshold; the exempt month's gains
// are retained in the summary for transparency. Returns nil for
// jurisdictions without a volume exemption.
//
// The rollup is a pure function of the disposal set: recomputing it from the
// same matches yields an identical split.
func (rs *RuleSet) MonthlyExemptionRollup(matches []model.DisposalMatch) *model.MonthlyExemptionReport {
	if !rs.MonthlyExemption.Valid {
		return nil
	}

	type bucket struct {
		volume decimal.Decimal
		gains  decimal.Decimal
	}
	byMonth := make(map[string]*bucket)
	for _, m := range matches {
		month := m.DisposedAt.UTC().Format("2006-01")
		b, ok := byMonth[month]
		if !ok {
			b = &bucket{volume: decimal.Zero, gains: decimal.Zero}
			byMonth[month] = b
		}
		b.volume = b.volume.Add(m.Proceeds)
		b.gains = b.gains.Add(m.GainLoss())
	}

	months := make([]string, 0, len(byMonth))
	for month := range byMonth {
		months = append(months, month)
	}
	sort.Strings(months)

	report := &model.MonthlyExemptionReport{
		Threshold:    rs.MonthlyExemption.Decimal,
		TaxableGains: decimal.Zero,
		ExemptGains:  decimal.Zero,
	}
	for _, month := range months {
		b := byMonth[month]
		entry := model.MonthlyExemptionEntry{
			Month:  month,
			Volume: b.volume,
			Gains:  b.gains,
		}
		if b.volume.LessThanOrEqual(rs.MonthlyExemption.Decimal) {
			entry.Exempt = true
			entry.TaxableGains = decimal.Zero
			report.ExemptGains = report.ExemptGains.Add(b.gains)
		} else {
			entry.TaxableGains = b.gains
			report.TaxableGains = report.TaxableGains.Add(b.gains)
		}
		report.Months = append(report.Months, entry)
	}

	return report
}

// ApplyLossCap splits a net capital loss into the deductible portion and
// the carryforward beyond the annual cap. Net loss beyond the cap is
// reported separately, not discarded. Returns nil for jurisdictions without
// a loss cap or when there is no net loss.
func (rs *RuleSet) ApplyLossCap(net decimal.Decimal) *model.LossCarryforwardReport {
	if !rs.AnnualLossCap.Valid || net.Sign() >= 0 {
		return nil
	}
	netLoss := net.Neg()
	deductible := decimal.Min(netLoss, rs.AnnualLossCap.Decimal)
	return &model.LossCarryforwardReport{
		Cap:          rs.AnnualLossCap.Decimal,
		NetLoss:      netLoss,
		Deductible:   deductible,
		Carryforward: netLoss.Sub(deductible),
	}
}

// ForeignAccountReport aggregates per-account peak balances and flags the
// disclosure requirement when the aggregate peak crosses the threshold.
// Returns nil for jurisdictions without a disclosure rule.
func (rs *RuleSet) ForeignAccountReport(accounts []model.ForeignAccountEntry) *model.ForeignAccountReport {
	if !rs.ForeignAccountLimit.Valid {
		return nil
	}
	sorted := make([]model.ForeignAccountEntry, len(accounts))
	copy(sorted, accounts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ConnectionID < sorted[j].ConnectionID })

	aggregate := decimal.Zero
	for _, a := range sorted {
		aggregate = aggregate.Add(a.PeakBalance)
	}
	return &model.ForeignAccountReport{
		Threshold:          rs.ForeignAccountLimit.Decimal,
		AggregatePeak:      aggregate,
		Accounts:           sorted,
		DisclosureRequired: aggregate.GreaterThan(rs.ForeignAccountLimit.Decimal),
	}
}
