package service

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/taxrules"
)

const hoursPerDay = 24

// DisposalMatcher walks disposal flows against a lot ledger and emits
// realized gain/loss records with holding-period classification. It holds no
// state of its own beyond the ledger reference, so matching is a pure
// function of the transaction walk order.
type DisposalMatcher struct {
	ledger *LotLedger
	rules  *taxrules.RuleSet
	opts   model.AuditOptions
}

// NewDisposalMatcher creates a matcher depleting the given ledger.
func NewDisposalMatcher(ledger *LotLedger, rules *taxrules.RuleSet, opts model.AuditOptions) *DisposalMatcher {
	return &DisposalMatcher{ledger: ledger, rules: rules, opts: opts}
}

// holdingDays is the number of whole days between acquisition and disposal.
func holdingDays(acquired, disposed time.Time) int {
	return int(disposed.Sub(acquired).Hours() / hoursPerDay)
}

// Match matches every non-fee outbound flow of a disposal transaction with
// positive settlement value against the ledger. A disposal spanning multiple
// lots produces one match per lot consumed. Disposals with no eligible lot
// are not silently skipped: they surface as a MEDIUM issue and contribute
// nothing to the gain/loss totals, since fabricating a zero-cost lot would
// materially overstate tax liability.
func (m *DisposalMatcher) Match(tx *model.Transaction) ([]model.DisposalMatch, []model.AuditIssue) {
	var matches []model.DisposalMatch
	var issues []model.AuditIssue

	feeValue := decimal.Zero
	if m.opts.IncludeFees {
		feeValue = tx.FeeValue()
	}

	// count disposal flows so the fee can be prorated across them
	disposalFlows := 0
	for i := range tx.Flows {
		if m.isDisposalFlow(&tx.Flows[i]) {
			disposalFlows++
		}
	}
	if disposalFlows == 0 {
		return nil, nil
	}
	feeShare := feeValue.Div(decimal.NewFromInt(int64(disposalFlows)))

	for i := range tx.Flows {
		flow := &tx.Flows[i]
		if !m.isDisposalFlow(flow) {
			continue
		}

		// proceeds net of the flow's share of the transaction fee, floored
		// at zero
		proceeds := flow.Value.Decimal.Sub(feeShare)
		if proceeds.IsNegative() {
			proceeds = decimal.Zero
		}

		avgUnitCost := decimal.Zero
		if m.opts.CostBasisMethod == model.MethodAverage {
			avgUnitCost = m.ledger.PooledUnitCost(flow.Asset)
		}

		draws, shortfall := m.ledger.Deplete(flow.Asset, tx.ID, flow.Amount)

		if len(draws) == 0 {
			issues = append(issues, model.AuditIssue{
				Code:          model.IssueUnmatchedDisposal,
				Severity:      model.SeverityMedium,
				Message:       fmt.Sprintf("disposal of %s %s has no acquisition lot in the loaded history", flow.Amount, flow.Asset),
				TransactionID: tx.ID,
				Asset:         flow.Asset,
			})
			continue
		}

		if shortfall.IsPositive() {
			issues = append(issues, model.AuditIssue{
				Code:          model.IssuePartialLotCoverage,
				Severity:      model.SeverityMedium,
				Message:       fmt.Sprintf("disposal of %s %s only covered for %s by acquisition lots", flow.Amount, flow.Asset, flow.Amount.Sub(shortfall)),
				TransactionID: tx.ID,
				Asset:         flow.Asset,
			})
		}

		// proceeds are allocated over the covered quantity only; the
		// uncovered remainder is excluded from totals
		covered := flow.Amount.Sub(shortfall)
		for _, draw := range draws {
			var costBasis decimal.Decimal
			if m.opts.CostBasisMethod == model.MethodAverage {
				costBasis = avgUnitCost.Mul(draw.Quantity)
			} else {
				costBasis = draw.Lot.Cost.Mul(draw.Quantity).Div(draw.Lot.Amount)
			}

			days := holdingDays(draw.Lot.AcquiredAt, tx.Timestamp)
			term := model.TermShort
			if m.rules.IsLongTerm(days) {
				term = model.TermLong
			}

			matches = append(matches, model.DisposalMatch{
				TransactionID: tx.ID,
				LotID:         draw.Lot.ID,
				Asset:         flow.Asset,
				Quantity:      draw.Quantity,
				Proceeds:      proceeds.Mul(draw.Quantity).Div(covered),
				CostBasis:     costBasis,
				DisposedAt:    tx.Timestamp,
				AcquiredAt:    draw.Lot.AcquiredAt,
				HoldingDays:   days,
				Term:          term,
			})
		}
	}

	return matches, issues
}

// isDisposalFlow reports whether the flow participates in disposal matching:
// outbound, not a fee, positive settlement value, and not excluded by the
// audit's include flags. Spending the settlement currency itself is not a
// disposal; it carries no gain or loss relative to itself.
func (m *DisposalMatcher) isDisposalFlow(flow *model.Flow) bool {
	if flow.Direction != model.DirectionOut || flow.IsFee {
		return false
	}
	if flow.Asset == m.opts.Currency {
		return false
	}
	if flow.IsNFT && !m.opts.IncludeNFTs {
		return false
	}
	return flow.Value.Valid && flow.Value.Decimal.IsPositive()
}
