package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/apperrors"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/repository"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/taxrules"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/worker"
)

// exchangeHistoryYears is how far back exchange records are loaded beyond the
// tax year, so lots acquired on an exchange before wallet history began still
// carry their cost basis into the run.
const exchangeHistoryYears = 3

// Queue is the scheduling surface the audit service needs from the worker
// pool.
type Queue interface {
	Enqueue(auditID string) error
	Cancel(auditID string) bool
}

// AuditService orchestrates a full audit run: load the transaction window,
// link cross-source transfers, build lots, match disposals, apply the
// jurisdiction's rules, and persist the sealed result. It implements
// worker.Runner; all execution happens on the pool.
type AuditService struct {
	auditRepo       *repository.AuditRepository
	transactionRepo *repository.TransactionRepository
	connectionRepo  *repository.ConnectionRepository
	attestationRepo *repository.AttestationRepository
	linker          *LinkerService
	queue           Queue

	attestationValidityDays int
}

// NewAuditService creates a new AuditService. The worker queue is attached
// separately because the pool is constructed around this service.
func NewAuditService(
	auditRepo *repository.AuditRepository,
	transactionRepo *repository.TransactionRepository,
	connectionRepo *repository.ConnectionRepository,
	attestationRepo *repository.AttestationRepository,
	linker *LinkerService,
	attestationValidityDays int,
) *AuditService {
	return &AuditService{
		auditRepo:               auditRepo,
		transactionRepo:         transactionRepo,
		connectionRepo:          connectionRepo,
		attestationRepo:         attestationRepo,
		linker:                  linker,
		attestationValidityDays: attestationValidityDays,
	}
}

// AttachQueue wires the worker pool in after construction.
func (s *AuditService) AttachQueue(q Queue) {
	s.queue = q
}

// StartAudit persists a new audit request and schedules it on the pool.
func (s *AuditService) StartAudit(ctx context.Context, audit *model.Audit) error {
	now := time.Now().UTC()
	audit.ID = uuid.New().String()
	audit.Status = model.StatusPending
	audit.Progress = 0
	audit.CreatedAt = now
	audit.UpdatedAt = now

	if err := s.auditRepo.CreateAudit(ctx, audit); err != nil {
		log.Printf("Error creating audit: %v", err)
		return apperrors.ErrFailedToEnqueueAudit
	}

	if err := s.auditRepo.UpdateStatus(ctx, audit.ID, model.StatusQueued); err != nil {
		log.Printf("Error queueing audit %s: %v", audit.ID, err)
		return apperrors.ErrFailedToEnqueueAudit
	}
	audit.Status = model.StatusQueued

	err := s.queue.Enqueue(audit.ID)
	if errors.Is(err, worker.ErrAlreadyQueued) {
		return apperrors.ErrAuditInFlight
	}
	if err != nil {
		log.Printf("Error enqueueing audit %s: %v", audit.ID, err)
		if ferr := s.auditRepo.SetFailed(ctx, audit.ID, err.Error()); ferr != nil {
			log.Printf("Error failing audit %s: %v", audit.ID, ferr)
		}
		return apperrors.ErrFailedToEnqueueAudit
	}
	return nil
}

// GetAudit retrieves an audit with its result when completed.
func (s *AuditService) GetAudit(ctx context.Context, id string) (*model.Audit, error) {
	return s.auditRepo.GetAudit(ctx, id)
}

// CancelAudit cancels an audit that has not started processing. Once a run
// is past QUEUED its lot matching is already underway and the audit runs to
// completion or failure.
func (s *AuditService) CancelAudit(ctx context.Context, id string) error {
	audit, err := s.auditRepo.GetAudit(ctx, id)
	if err != nil {
		return err
	}
	if audit.Status != model.StatusQueued {
		return apperrors.ErrAuditNotCancellable
	}

	s.queue.Cancel(id)
	if err := s.auditRepo.UpdateStatus(ctx, id, model.StatusCancelled); err != nil {
		if errors.Is(err, apperrors.ErrInvalidStatusTransition) {
			return apperrors.ErrAuditNotCancellable
		}
		return err
	}
	return nil
}

// GetAttestation retrieves the attestation hand-off record for an audit.
func (s *AuditService) GetAttestation(ctx context.Context, auditID string) (*model.Attestation, error) {
	if _, err := s.auditRepo.GetAudit(ctx, auditID); err != nil {
		return nil, err
	}
	return s.attestationRepo.GetByAuditID(ctx, auditID)
}

// Run executes one audit end to end. Transient infrastructure errors are
// wrapped for the pool's retry loop; domain errors fail the audit with the
// reason recorded. Re-running the same audit against unchanged transaction
// data produces a byte-identical result document.
func (s *AuditService) Run(ctx context.Context, auditID string) error {
	audit, err := s.auditRepo.GetAudit(ctx, auditID)
	if err != nil {
		return worker.Transient(err)
	}
	switch audit.Status {
	case model.StatusQueued:
		if err := s.auditRepo.UpdateStatus(ctx, auditID, model.StatusProcessing); err != nil {
			return worker.Transient(err)
		}
	case model.StatusProcessing, model.StatusAnalyzing, model.StatusGeneratingReport:
		// an earlier attempt was interrupted mid-run; the computation is
		// deterministic, so recompute from the top
		log.Printf("Resuming audit %s from state %s", auditID, audit.Status)
	default:
		// cancelled or otherwise finalized while waiting in the queue
		log.Printf("Skipping audit %s in state %s", auditID, audit.Status)
		return nil
	}

	result, err := s.compute(ctx, audit)
	if err != nil {
		var transient *worker.TransientError
		if errors.As(err, &transient) {
			return err
		}
		log.Printf("Audit %s computation failed: %v", auditID, err)
		if ferr := s.auditRepo.SetFailed(ctx, auditID, err.Error()); ferr != nil {
			log.Printf("Error recording failure of audit %s: %v", auditID, ferr)
		}
		return err
	}

	if err := s.auditRepo.SaveResult(ctx, auditID, result); err != nil {
		return worker.Transient(fmt.Errorf("%w: %v", apperrors.ErrFailedToPersistResult, err))
	}

	s.createAttestation(ctx, audit, result)
	return nil
}

// Fail marks an audit FAILED once the pool's retries are exhausted. Only
// transient errors reach this path; domain errors are recorded by Run itself.
func (s *AuditService) Fail(ctx context.Context, auditID string, cause error) {
	if err := s.auditRepo.SetFailed(ctx, auditID, cause.Error()); err != nil {
		log.Printf("Error recording failure of audit %s: %v", auditID, err)
	}
}

// advanceStatus moves the audit forward in its lifecycle. A resumed run may
// already sit at or past the target state; that is not an error.
func (s *AuditService) advanceStatus(ctx context.Context, auditID string, next model.AuditStatus) error {
	err := s.auditRepo.UpdateStatus(ctx, auditID, next)
	if errors.Is(err, apperrors.ErrInvalidStatusTransition) {
		return nil
	}
	return err
}

// compute produces the audit's result document without touching lifecycle
// state beyond status and progress updates.
func (s *AuditService) compute(ctx context.Context, audit *model.Audit) (*model.AuditResult, error) {
	rules, err := taxrules.ForJurisdiction(audit.Jurisdiction)
	if err != nil {
		return nil, err
	}

	windowStart := time.Date(audit.TaxYear, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(audit.TaxYear, 12, 31, 23, 59, 59, 999999999, time.UTC)
	exchangeSince := windowEnd.AddDate(-exchangeHistoryYears, 0, 0)

	transactions, err := s.transactionRepo.GetWindow(ctx, audit.WalletIDs, audit.ConnectionIDs, exchangeSince, windowEnd)
	if err != nil {
		return nil, worker.Transient(fmt.Errorf("%w: %v", apperrors.ErrFailedToRetrieveTransactions, err))
	}
	s.progress(ctx, audit.ID, 15)

	if err := s.linker.Link(ctx, transactions, audit.ConnectionIDs); err != nil {
		return nil, worker.Transient(err)
	}
	s.progress(ctx, audit.ID, 25)

	if err := s.advanceStatus(ctx, audit.ID, model.StatusAnalyzing); err != nil {
		return nil, worker.Transient(err)
	}

	walk := s.walkTransactions(transactions, audit.Options, rules, windowStart)
	s.progress(ctx, audit.ID, 60)

	if err := s.advanceStatus(ctx, audit.ID, model.StatusGeneratingReport); err != nil {
		return nil, worker.Transient(err)
	}

	result, err := s.assembleResult(ctx, audit, rules, walk, windowStart, windowEnd, transactions)
	if err != nil {
		return nil, err
	}
	s.progress(ctx, audit.ID, 90)

	return result, nil
}

// walkState carries the output of the chronological pass over the window.
type walkState struct {
	ledger         *LotLedger
	matches        []model.DisposalMatch
	issues         []model.AuditIssue
	income         model.IncomeReport
	unresolvedLots map[string]bool
}

// walkTransactions makes the single chronological pass: acquisitions open
// lots, disposals deplete them, income events accumulate. Disposals before
// the tax year still deplete lots so the window starts from the correct
// remaining inventory, but only in-window matches and issues are reported.
func (s *AuditService) walkTransactions(
	transactions []*model.Transaction,
	opts model.AuditOptions,
	rules *taxrules.RuleSet,
	windowStart time.Time,
) *walkState {
	state := &walkState{
		ledger:         NewLotLedger(opts.CostBasisMethod, opts.SpecificLots),
		unresolvedLots: make(map[string]bool),
		income: model.IncomeReport{
			Staking: decimal.Zero, Mining: decimal.Zero,
			Airdrops: decimal.Zero, Other: decimal.Zero, Total: decimal.Zero,
		},
	}
	matcher := NewDisposalMatcher(state.ledger, rules, opts)

	for _, tx := range transactions {
		if tx.Category.IsSelfTransfer() {
			continue
		}
		if !typeIncluded(tx.Type, opts) {
			continue
		}
		inWindow := !tx.Timestamp.Before(windowStart)

		if model.AcquisitionTypes[tx.Type] {
			issues := s.openLots(state, tx, opts)
			if inWindow {
				state.issues = append(state.issues, issues...)
			}
		}

		if model.DisposalTypes[tx.Type] {
			matches, issues := matcher.Match(tx)
			if inWindow {
				state.matches = append(state.matches, matches...)
				state.issues = append(state.issues, issues...)
			}
		}

		if model.IncomeTypes[tx.Type] && inWindow {
			accumulateIncome(&state.income, tx)
		}
	}

	state.income.Total = state.income.Staking.
		Add(state.income.Mining).
		Add(state.income.Airdrops).
		Add(state.income.Other)

	return state
}

// openLots creates one lot per eligible inbound flow of an acquisition
// transaction. A flow with no resolved settlement value opens a zero-cost
// lot flagged as unresolved rather than inventing a price.
func (s *AuditService) openLots(state *walkState, tx *model.Transaction, opts model.AuditOptions) []model.AuditIssue {
	var issues []model.AuditIssue

	var flows []*model.Flow
	for i := range tx.Flows {
		flow := &tx.Flows[i]
		if flow.Direction != model.DirectionIn || flow.IsFee || !flow.Amount.IsPositive() {
			continue
		}
		if flow.IsNFT && !opts.IncludeNFTs {
			continue
		}
		// the settlement currency itself is the measuring stick, not a
		// position; receiving it is never an acquisition
		if flow.Asset == opts.Currency {
			continue
		}
		flows = append(flows, flow)
	}
	if len(flows) == 0 {
		return nil
	}

	// transaction fees are part of what it cost to acquire the position
	feeShare := decimal.Zero
	if opts.IncludeFees {
		feeShare = tx.FeeValue().Div(decimal.NewFromInt(int64(len(flows))))
	}

	for _, flow := range flows {
		cost := decimal.Zero
		if flow.Value.Valid {
			cost = flow.Value.Decimal
		}

		lot := &model.Lot{
			ID:            uuid.NewSHA1(uuid.NameSpaceOID, []byte(tx.ID+"/"+flow.ID)).String(),
			Asset:         flow.Asset,
			TransactionID: tx.ID,
			Amount:        flow.Amount,
			Cost:          cost.Add(feeShare),
			AcquiredAt:    tx.Timestamp,
			Remaining:     flow.Amount,
		}
		state.ledger.Add(lot)

		if !flow.Value.Valid {
			state.unresolvedLots[lot.ID] = true
			issues = append(issues, model.AuditIssue{
				Code:          model.IssueUnresolvedPrice,
				Severity:      model.SeverityLow,
				Message:       fmt.Sprintf("acquisition of %s %s has no resolved settlement value; lot opened at zero cost", flow.Amount, flow.Asset),
				TransactionID: tx.ID,
				Asset:         flow.Asset,
			})
		} else if cost.IsZero() && (tx.Type == model.TypeBuy || tx.Type == model.TypeExchangeTrade) {
			issues = append(issues, model.AuditIssue{
				Code:          model.IssueZeroCostLot,
				Severity:      model.SeverityLow,
				Message:       fmt.Sprintf("purchase of %s %s recorded with zero cost", flow.Amount, flow.Asset),
				TransactionID: tx.ID,
				Asset:         flow.Asset,
			})
		}
	}

	return issues
}

// typeIncluded applies the audit's include flags at the transaction level.
func typeIncluded(t model.TransactionType, opts model.AuditOptions) bool {
	switch t {
	case model.TypeStake, model.TypeUnstake, model.TypeStakingReward:
		return opts.IncludeStaking
	case model.TypeAirdrop:
		return opts.IncludeAirdrops
	case model.TypeInterest, model.TypeMarginBorrow, model.TypeMarginRepay, model.TypeMarginLiquidation:
		return opts.IncludeDeFi
	default:
		return true
	}
}

// accumulateIncome adds the transaction's valued inbound flows to the bucket
// for its income source.
func accumulateIncome(report *model.IncomeReport, tx *model.Transaction) {
	value := decimal.Zero
	for _, f := range tx.Flows {
		if f.Direction == model.DirectionIn && !f.IsFee && f.Value.Valid {
			value = value.Add(f.Value.Decimal)
		}
	}
	if value.IsZero() {
		return
	}

	switch tx.Type {
	case model.TypeStakingReward:
		report.Staking = report.Staking.Add(value)
	case model.TypeMining:
		report.Mining = report.Mining.Add(value)
	case model.TypeAirdrop:
		report.Airdrops = report.Airdrops.Add(value)
	default:
		report.Other = report.Other.Add(value)
	}
}

// assembleResult turns the walk output into the sealed result document.
func (s *AuditService) assembleResult(
	ctx context.Context,
	audit *model.Audit,
	rules *taxrules.RuleSet,
	walk *walkState,
	windowStart, windowEnd time.Time,
	transactions []*model.Transaction,
) (*model.AuditResult, error) {
	gains := capitalGains(walk.matches)
	rollup := rules.MonthlyExemptionRollup(walk.matches)
	if rollup != nil {
		gains.TaxableGains = rollup.TaxableGains
	} else if gains.Net.IsPositive() {
		gains.TaxableGains = gains.Net
	}

	result := &model.AuditResult{
		AuditID:          audit.ID,
		Jurisdiction:     audit.Jurisdiction,
		TaxYear:          audit.TaxYear,
		Currency:         audit.Options.Currency,
		Method:           audit.Options.CostBasisMethod,
		CapitalGains:     gains,
		Income:           walk.income,
		Holdings:         s.holdings(walk),
		Matches:          walk.matches,
		Issues:           walk.issues,
		MonthlyExemption: rollup,
		LossCarryforward: rules.ApplyLossCap(gains.Net),
	}

	if rules.ForeignAccountLimit.Valid && len(audit.ConnectionIDs) > 0 {
		entries, err := s.foreignAccountPeaks(ctx, audit.ConnectionIDs, transactions, windowStart, windowEnd)
		if err != nil {
			return nil, worker.Transient(err)
		}
		result.ForeignAccounts = rules.ForeignAccountReport(entries)
	}

	result.EstimatedTax = estimatedTax(rules, result)

	hash, err := contentHash(result)
	if err != nil {
		return nil, err
	}
	result.ContentHash = hash
	result.GeneratedAt = time.Now().UTC()

	return result, nil
}

// capitalGains aggregates the matches by holding term.
func capitalGains(matches []model.DisposalMatch) model.CapitalGainsReport {
	r := model.CapitalGainsReport{
		ShortTermGains: decimal.Zero, ShortTermLosses: decimal.Zero,
		LongTermGains: decimal.Zero, LongTermLosses: decimal.Zero,
		NetShortTerm: decimal.Zero, NetLongTerm: decimal.Zero, Net: decimal.Zero,
		TotalProceeds: decimal.Zero, TotalCostBasis: decimal.Zero,
		TaxableGains: decimal.Zero,
	}

	for _, m := range matches {
		gain := m.GainLoss()
		r.TotalProceeds = r.TotalProceeds.Add(m.Proceeds)
		r.TotalCostBasis = r.TotalCostBasis.Add(m.CostBasis)

		if m.Term == model.TermLong {
			if gain.Sign() >= 0 {
				r.LongTermGains = r.LongTermGains.Add(gain)
			} else {
				r.LongTermLosses = r.LongTermLosses.Add(gain.Neg())
			}
		} else {
			if gain.Sign() >= 0 {
				r.ShortTermGains = r.ShortTermGains.Add(gain)
			} else {
				r.ShortTermLosses = r.ShortTermLosses.Add(gain.Neg())
			}
		}
	}

	r.NetShortTerm = r.ShortTermGains.Sub(r.ShortTermLosses)
	r.NetLongTerm = r.LongTermGains.Sub(r.LongTermLosses)
	r.Net = r.NetShortTerm.Add(r.NetLongTerm)
	return r
}

// holdings derives the period-end positions from the ledger's open lots.
func (s *AuditService) holdings(walk *walkState) []model.Holding {
	var holdings []model.Holding
	for _, asset := range walk.ledger.Assets() {
		h := model.Holding{
			Asset:     asset,
			Quantity:  decimal.Zero,
			CostBasis: decimal.Zero,
		}
		for _, lot := range walk.ledger.Lots(asset) {
			if !lot.Remaining.IsPositive() {
				continue
			}
			h.Quantity = h.Quantity.Add(lot.Remaining)
			h.CostBasis = h.CostBasis.Add(lot.Cost.Mul(lot.Remaining).Div(lot.Amount))
			h.OpenLots++
			if walk.unresolvedLots[lot.ID] {
				h.UnresolvedCost = true
			}
		}
		if h.OpenLots > 0 {
			holdings = append(holdings, h)
		}
	}
	return holdings
}

// foreignAccountPeaks tracks, per exchange connection, the running
// settlement-currency balance over the loaded history and records the peak
// reached within the tax year.
func (s *AuditService) foreignAccountPeaks(
	ctx context.Context,
	connectionIDs []string,
	transactions []*model.Transaction,
	windowStart, windowEnd time.Time,
) ([]model.ForeignAccountEntry, error) {
	connections, err := s.connectionRepo.GetConnections(ctx, connectionIDs)
	if err != nil {
		return nil, err
	}
	exchangeNames := make(map[string]string, len(connections))
	for _, c := range connections {
		exchangeNames[c.ID] = c.Exchange
	}

	type track struct {
		balance decimal.Decimal
		peak    decimal.Decimal
		peakAt  time.Time
		seen    bool
	}
	tracks := make(map[string]*track)

	for _, tx := range transactions {
		if tx.ConnectionID == "" {
			continue
		}
		tr, ok := tracks[tx.ConnectionID]
		if !ok {
			tr = &track{balance: decimal.Zero, peak: decimal.Zero}
			tracks[tx.ConnectionID] = tr
		}

		delta := decimal.Zero
		for _, f := range tx.Flows {
			if !f.Value.Valid {
				continue
			}
			if f.Direction == model.DirectionIn {
				delta = delta.Add(f.Value.Decimal)
			} else {
				delta = delta.Sub(f.Value.Decimal)
			}
		}
		tr.balance = tr.balance.Add(delta)

		inWindow := !tx.Timestamp.Before(windowStart) && !tx.Timestamp.After(windowEnd)
		if inWindow && (!tr.seen || tr.balance.GreaterThan(tr.peak)) {
			tr.seen = true
			tr.peak = tr.balance
			tr.peakAt = tx.Timestamp
		}
	}

	var entries []model.ForeignAccountEntry
	for id, tr := range tracks {
		if !tr.seen || !tr.peak.IsPositive() {
			continue
		}
		entries = append(entries, model.ForeignAccountEntry{
			ConnectionID: id,
			Exchange:     exchangeNames[id],
			PeakBalance:  tr.peak,
			PeakDate:     tr.peakAt.UTC().Format("2006-01-02"),
		})
	}
	return entries, nil
}

// estimatedTax is the headline liability estimate: taxable short- and
// long-term gains at their respective rates plus income at the ordinary
// rate. Losses never produce a negative tax.
func estimatedTax(rules *taxrules.RuleSet, result *model.AuditResult) decimal.Decimal {
	tax := decimal.Zero

	if result.MonthlyExemption != nil {
		taxable := result.MonthlyExemption.TaxableGains
		if taxable.IsPositive() {
			tax = tax.Add(taxable.Mul(rules.Rate(taxrules.IncomeCapitalGains, taxable, 0)))
		}
	} else {
		if result.CapitalGains.NetShortTerm.IsPositive() {
			short := result.CapitalGains.NetShortTerm
			tax = tax.Add(short.Mul(rules.Rate(taxrules.IncomeCapitalGains, short, 0)))
		}
		if result.CapitalGains.NetLongTerm.IsPositive() {
			long := result.CapitalGains.NetLongTerm
			tax = tax.Add(long.Mul(rules.Rate(taxrules.IncomeCapitalGains, long, rules.LongTermThresholdDays+1)))
		}
	}

	if result.Income.Total.IsPositive() {
		tax = tax.Add(result.Income.Total.Mul(rules.Rate(taxrules.IncomeOrdinary, result.Income.Total, 0)))
	}

	return tax
}

// contentHash seals the result document: SHA-256 over the canonical JSON
// encoding with the hash and generation timestamp fields zeroed. All
// collections in the result are deterministically ordered, so the same
// inputs always hash to the same digest.
func contentHash(result *model.AuditResult) (string, error) {
	canonical := *result
	canonical.ContentHash = ""
	canonical.GeneratedAt = time.Time{}

	encoded, err := json.Marshal(&canonical)
	if err != nil {
		return "", fmt.Errorf("failed to encode result for hashing: %w", err)
	}
	digest := sha256.Sum256(encoded)
	return hex.EncodeToString(digest[:]), nil
}

// createAttestation records the pending anchor hand-off for a completed
// audit. Best effort: the audit result stands even if this fails.
func (s *AuditService) createAttestation(ctx context.Context, audit *model.Audit, result *model.AuditResult) {
	now := time.Now().UTC()
	attestation := &model.Attestation{
		ID:           uuid.New().String(),
		AuditID:      audit.ID,
		AuditHash:    result.ContentHash,
		Jurisdiction: audit.Jurisdiction,
		TaxYear:      audit.TaxYear,
		Status:       model.AttestationPending,
		ExpiresAt:    now.AddDate(0, 0, s.attestationValidityDays),
		CreatedAt:    now,
	}
	if err := s.attestationRepo.CreateAttestation(ctx, attestation); err != nil {
		log.Printf("Error creating attestation for audit %s: %v", audit.ID, err)
	}
}

// progress bumps the audit's progress, which only ever moves forward.
func (s *AuditService) progress(ctx context.Context, auditID string, pct int) {
	if err := s.auditRepo.UpdateProgress(ctx, auditID, pct); err != nil {
		log.Printf("Error updating progress of audit %s: %v", auditID, err)
	}
}
