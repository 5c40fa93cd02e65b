package service

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
)

// LotDraw is one lot's contribution to a depletion request.
type LotDraw struct {
	Lot      *model.Lot
	Quantity decimal.Decimal
}

// LotLedger maintains, per asset, the ordered collection of acquisition lots
// across the entire pre-audit history. A ledger is constructed fresh per
// audit run and passed through the disposal-matching pass; it is never a
// process-wide singleton, so concurrent runs cannot observe each other's
// state.
type LotLedger struct {
	method model.CostBasisMethod
	lots   map[string][]*model.Lot
	// specific-ID designations: disposal transaction ID -> lot ID
	designations map[string]string
}

// NewLotLedger creates an empty ledger depleting under the given method.
func NewLotLedger(method model.CostBasisMethod, designations map[string]string) *LotLedger {
	return &LotLedger{
		method:       method,
		lots:         make(map[string][]*model.Lot),
		designations: designations,
	}
}

// Add inserts an acquisition lot. Lots arrive in ascending acquisition
// order from the chronological walk, so per-asset slices stay date-ordered.
func (l *LotLedger) Add(lot *model.Lot) {
	if lot.Amount.IsZero() {
		return
	}
	l.lots[lot.Asset] = append(l.lots[lot.Asset], lot)
}

// Assets returns the ledger's asset identifiers in sorted order, so callers
// iterating the ledger are independent of map iteration order.
func (l *LotLedger) Assets() []string {
	assets := make([]string, 0, len(l.lots))
	for asset := range l.lots {
		assets = append(assets, asset)
	}
	sort.Strings(assets)
	return assets
}

// Lots returns all lots for an asset, including exhausted ones, which are
// retained for the audit trail.
func (l *LotLedger) Lots(asset string) []*model.Lot {
	return l.lots[asset]
}

// eligible returns the asset's open lots in the method's depletion order.
func (l *LotLedger) eligible(asset, disposalTxID string) []*model.Lot {
	open := make([]*model.Lot, 0, len(l.lots[asset]))
	for _, lot := range l.lots[asset] {
		if lot.Remaining.IsPositive() {
			open = append(open, lot)
		}
	}

	switch l.method {
	case model.MethodLIFO:
		sort.SliceStable(open, func(i, j int) bool {
			return open[i].AcquiredAt.After(open[j].AcquiredAt)
		})
	case model.MethodHIFO:
		sort.SliceStable(open, func(i, j int) bool {
			ci, cj := open[i].UnitCost(), open[j].UnitCost()
			if !ci.Equal(cj) {
				return ci.GreaterThan(cj)
			}
			// equal unit cost: earliest acquisition first, keeping the
			// ordering deterministic
			return open[i].AcquiredAt.Before(open[j].AcquiredAt)
		})
	case model.MethodSpecificID:
		// designated lot first, FIFO order for the remainder (and as the
		// documented fallback when no lot is designated)
		if lotID, ok := l.designations[disposalTxID]; ok {
			sort.SliceStable(open, func(i, j int) bool {
				if (open[i].ID == lotID) != (open[j].ID == lotID) {
					return open[i].ID == lotID
				}
				return open[i].AcquiredAt.Before(open[j].AcquiredAt)
			})
		}
	default:
		// FIFO and AVERAGE keep ascending acquisition order
	}

	return open
}

// Deplete draws the requested quantity from the asset's open lots under the
// ledger's method. Depletion is destructive: each draw reduces the lot's
// Remaining, which never increases within a run. Returns the draws in
// depletion order plus any shortfall the open lots could not cover.
func (l *LotLedger) Deplete(asset, disposalTxID string, quantity decimal.Decimal) ([]LotDraw, decimal.Decimal) {
	open := l.eligible(asset, disposalTxID)
	if len(open) == 0 {
		return nil, quantity
	}

	if l.method == model.MethodAverage {
		return l.depleteProportionally(open, quantity)
	}

	var draws []LotDraw
	remaining := quantity
	for _, lot := range open {
		if !remaining.IsPositive() {
			break
		}
		draw := decimal.Min(remaining, lot.Remaining)
		lot.Remaining = lot.Remaining.Sub(draw)
		draws = append(draws, LotDraw{Lot: lot, Quantity: draw})
		remaining = remaining.Sub(draw)
	}

	return draws, remaining
}

// depleteProportionally treats all eligible lots as one pooled lot and
// reduces each in proportion to its share of the pool. Rounding residue from
// the proportional split is settled against the earliest lots with spare
// remaining so drawn quantities always sum exactly to the request.
func (l *LotLedger) depleteProportionally(open []*model.Lot, quantity decimal.Decimal) ([]LotDraw, decimal.Decimal) {
	pool := decimal.Zero
	for _, lot := range open {
		pool = pool.Add(lot.Remaining)
	}

	if quantity.GreaterThanOrEqual(pool) {
		draws := make([]LotDraw, 0, len(open))
		for _, lot := range open {
			draws = append(draws, LotDraw{Lot: lot, Quantity: lot.Remaining})
			lot.Remaining = decimal.Zero
		}
		return draws, quantity.Sub(pool)
	}

	fraction := quantity.Div(pool)
	draws := make([]LotDraw, 0, len(open))
	allocated := decimal.Zero
	for _, lot := range open {
		draw := decimal.Min(lot.Remaining.Mul(fraction).Truncate(18), lot.Remaining)
		draws = append(draws, LotDraw{Lot: lot, Quantity: draw})
		allocated = allocated.Add(draw)
	}

	// settle rounding residue: the fraction itself is rounded, so the split
	// can land slightly under or over the request
	residue := quantity.Sub(allocated)
	for i := range draws {
		if !residue.IsPositive() {
			break
		}
		spare := draws[i].Lot.Remaining.Sub(draws[i].Quantity)
		if spare.IsPositive() {
			extra := decimal.Min(spare, residue)
			draws[i].Quantity = draws[i].Quantity.Add(extra)
			residue = residue.Sub(extra)
		}
	}
	for i := len(draws) - 1; i >= 0 && residue.IsNegative(); i-- {
		trim := decimal.Min(draws[i].Quantity, residue.Neg())
		draws[i].Quantity = draws[i].Quantity.Sub(trim)
		residue = residue.Add(trim)
	}

	for i := range draws {
		draws[i].Lot.Remaining = draws[i].Lot.Remaining.Sub(draws[i].Quantity)
	}

	// drop zero draws so a pooled depletion still reads one draw per lot consumed
	filtered := draws[:0]
	for _, d := range draws {
		if d.Quantity.IsPositive() {
			filtered = append(filtered, d)
		}
	}

	return filtered, decimal.Zero
}

// PooledUnitCost returns the remaining-weighted average unit cost of the
// asset's open lots, used by the AVERAGE method to cost draws.
func (l *LotLedger) PooledUnitCost(asset string) decimal.Decimal {
	pool := decimal.Zero
	cost := decimal.Zero
	for _, lot := range l.lots[asset] {
		if lot.Remaining.IsPositive() {
			pool = pool.Add(lot.Remaining)
			cost = cost.Add(lot.Cost.Mul(lot.Remaining).Div(lot.Amount))
		}
	}
	if pool.IsZero() {
		return decimal.Zero
	}
	return cost.Div(pool)
}
