package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/apperrors"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/repository"
)

// LinkerService pairs exchange deposit/withdrawal records with their on-chain
// counterparts so self-transfers are not counted as acquisitions or disposals.
// Matching runs three strategies in order of confidence: exact transaction
// reference, known exchange deposit address, then an amount/time heuristic.
type LinkerService struct {
	transactionRepo *repository.TransactionRepository
	connectionRepo  *repository.ConnectionRepository
	window          time.Duration
	tolerancePct    decimal.Decimal
}

// NewLinkerService creates a new LinkerService. windowHours and tolerancePct
// bound the amount/time heuristic.
func NewLinkerService(
	transactionRepo *repository.TransactionRepository,
	connectionRepo *repository.ConnectionRepository,
	windowHours int,
	tolerancePct int,
) *LinkerService {
	return &LinkerService{
		transactionRepo: transactionRepo,
		connectionRepo:  connectionRepo,
		window:          time.Duration(windowHours) * time.Hour,
		tolerancePct:    decimal.NewFromInt(int64(tolerancePct)).Div(decimal.NewFromInt(100)),
	}
}

// Link runs all matching strategies over the supplied transactions. Linked
// pairs and categorized transfers are updated both in the database and on the
// in-memory records so callers see the result without reloading. Re-running
// over the same window is a no-op for already-linked records.
func (s *LinkerService) Link(ctx context.Context, transactions []*model.Transaction, connectionIDs []string) error {
	if err := s.linkByExternalRef(ctx, transactions); err != nil {
		return err
	}
	if err := s.classifyByDepositAddress(ctx, transactions, connectionIDs); err != nil {
		return err
	}
	return s.linkByHeuristic(ctx, transactions)
}

// linkByExternalRef pairs exchange transfer records carrying an on-chain
// transaction hash with the on-chain record bearing that hash.
func (s *LinkerService) linkByExternalRef(ctx context.Context, transactions []*model.Transaction) error {
	onChainByRef := make(map[string]*model.Transaction)
	for _, tx := range transactions {
		if tx.Provenance == model.ProvenanceOnChain && tx.ExternalRef != "" {
			onChainByRef[tx.ExternalRef] = tx
		}
	}

	for _, tx := range transactions {
		if tx.Provenance != model.ProvenanceExchange || tx.LinkedTransactionID != "" || tx.ExternalRef == "" {
			continue
		}

		var category model.Category
		var wantType model.TransactionType
		switch tx.Type {
		case model.TypeExchangeDeposit:
			category = model.CategoryTransferToExchange
			wantType = model.TypeTransferOut
		case model.TypeExchangeWithdrawal:
			category = model.CategoryTransferFromExchange
			wantType = model.TypeTransferIn
		default:
			continue
		}

		counterpart, ok := onChainByRef[tx.ExternalRef]
		if !ok || counterpart.Type != wantType || counterpart.LinkedTransactionID != "" {
			continue
		}

		if err := s.linkPair(ctx, tx, counterpart, category); err != nil {
			return err
		}
	}
	return nil
}

// classifyByDepositAddress marks on-chain outgoing transfers sent to a known
// exchange deposit address as transfers to the exchange. No counterpart is
// linked; the exchange side is resolved by the other strategies if present.
func (s *LinkerService) classifyByDepositAddress(ctx context.Context, transactions []*model.Transaction, connectionIDs []string) error {
	if len(connectionIDs) == 0 {
		return nil
	}

	depositAddresses, err := s.connectionRepo.GetDepositAddresses(ctx, connectionIDs)
	if err != nil {
		return err
	}
	if len(depositAddresses) == 0 {
		return nil
	}

	for _, tx := range transactions {
		if tx.Provenance != model.ProvenanceOnChain || tx.Type != model.TypeTransferOut {
			continue
		}
		if tx.LinkedTransactionID != "" || tx.Category != "" || tx.Counterparty == "" {
			continue
		}
		if _, ok := depositAddresses[tx.Counterparty]; !ok {
			continue
		}

		if err := s.transactionRepo.SetCategory(ctx, tx.ID, model.CategoryTransferToExchange); err != nil {
			return err
		}
		tx.Category = model.CategoryTransferToExchange
	}
	return nil
}

// linkByHeuristic pairs exchange withdrawals with on-chain incoming transfers
// of the same asset that arrive within the time window and amount tolerance.
// The closest candidate in time wins.
func (s *LinkerService) linkByHeuristic(ctx context.Context, transactions []*model.Transaction) error {
	var candidates []*model.Transaction
	for _, tx := range transactions {
		if tx.Provenance == model.ProvenanceOnChain && tx.Type == model.TypeTransferIn &&
			tx.LinkedTransactionID == "" && tx.Category == "" {
			candidates = append(candidates, tx)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	for _, tx := range transactions {
		if tx.Provenance != model.ProvenanceExchange || tx.Type != model.TypeExchangeWithdrawal {
			continue
		}
		if tx.LinkedTransactionID != "" {
			continue
		}

		flow := primaryFlow(tx)
		if flow == nil {
			continue
		}

		best := s.closestCandidate(candidates, tx.Timestamp, flow)
		if best == nil {
			continue
		}

		if err := s.linkPair(ctx, tx, best, model.CategoryTransferFromExchange); err != nil {
			return err
		}
	}
	return nil
}

// closestCandidate picks the unlinked candidate of the same asset within
// tolerance of the withdrawal and with the timestamp nearest to ts.
func (s *LinkerService) closestCandidate(candidates []*model.Transaction, ts time.Time, flow *model.Flow) *model.Transaction {
	var best *model.Transaction
	var bestDelta time.Duration

	for _, candidate := range candidates {
		if candidate.LinkedTransactionID != "" {
			continue
		}

		cf := primaryFlow(candidate)
		if cf == nil || cf.Asset != flow.Asset {
			continue
		}

		delta := candidate.Timestamp.Sub(ts)
		if delta < 0 {
			delta = -delta
		}
		if delta > s.window {
			continue
		}
		if !flowsMatch(flow, cf, s.tolerancePct) {
			continue
		}

		if best == nil || delta < bestDelta {
			best = candidate
			bestDelta = delta
		}
	}
	return best
}

// linkPair persists the symmetric link and mirrors it on the in-memory
// records. A record linked by a concurrent run is skipped, not an error.
func (s *LinkerService) linkPair(ctx context.Context, a, b *model.Transaction, category model.Category) error {
	err := s.transactionRepo.LinkPair(ctx, a.ID, b.ID, category, category)
	if errors.Is(err, apperrors.ErrAlreadyLinked) {
		log.Printf("Skipping link %s <-> %s: already linked", a.ID, b.ID)
		return nil
	}
	if err != nil {
		return err
	}

	a.LinkedTransactionID = b.ID
	a.Category = category
	b.LinkedTransactionID = a.ID
	b.Category = category
	return nil
}

// primaryFlow returns the transaction's main asset movement, ignoring fees.
func primaryFlow(tx *model.Transaction) *model.Flow {
	for i := range tx.Flows {
		if !tx.Flows[i].IsFee {
			return &tx.Flows[i]
		}
	}
	return nil
}

// flowsMatch compares the withdrawal and its candidate by settlement value
// when both sides carry one. Spot price moves between send and receive, so
// value tracks the transfer better than raw asset quantity does. When either
// side's price is unresolved the comparison falls back to quantities.
func flowsMatch(a, b *model.Flow, tolerance decimal.Decimal) bool {
	if a.Value.Valid && b.Value.Valid {
		return withinTolerance(a.Value.Decimal, b.Value.Decimal, tolerance)
	}
	return withinTolerance(a.Amount, b.Amount, tolerance)
}

// withinTolerance reports whether b deviates from a by no more than the
// relative tolerance. Withdrawal amounts shrink in transit by network fees,
// so the comparison is relative to the larger of the two.
func withinTolerance(a, b, tolerance decimal.Decimal) bool {
	if a.IsZero() && b.IsZero() {
		return true
	}
	larger := a
	if b.GreaterThan(larger) {
		larger = b
	}
	if larger.IsZero() {
		return false
	}
	diff := a.Sub(b).Abs()
	return diff.Div(larger).LessThanOrEqual(tolerance)
}
