package service_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/apperrors"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/repository"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/service"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/testutil"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/worker"
)

// stubQueue records scheduling calls without running anything.
type stubQueue struct {
	enqueued   []string
	cancelled  []string
	enqueueErr error
}

func (q *stubQueue) Enqueue(auditID string) error {
	if q.enqueueErr != nil {
		return q.enqueueErr
	}
	q.enqueued = append(q.enqueued, auditID)
	return nil
}

func (q *stubQueue) Cancel(auditID string) bool {
	q.cancelled = append(q.cancelled, auditID)
	return true
}

// queueAudit moves a freshly built audit into QUEUED so Run picks it up.
func queueAudit(t *testing.T, db *sql.DB, auditID string) {
	t.Helper()
	if err := repository.NewAuditRepository(db).UpdateStatus(context.Background(), auditID, model.StatusQueued); err != nil {
		t.Fatalf("Failed to queue test audit: %v", err)
	}
}

func completedAudit(t *testing.T, db *sql.DB, svc *service.AuditService, auditID string) *model.Audit {
	t.Helper()
	if err := svc.Run(context.Background(), auditID); err != nil {
		t.Fatalf("Run returned unexpected error: %v", err)
	}
	audit, err := svc.GetAudit(context.Background(), auditID)
	if err != nil {
		t.Fatalf("GetAudit returned unexpected error: %v", err)
	}
	return audit
}

// TestAuditService_Run tests the end-to-end audit computation.
func TestAuditService_Run(t *testing.T) {
	t.Run("completes a simple buy-then-sell audit", func(t *testing.T) {
		// Setup: buy 1 BTC for 30000 in February, sell it for 40000 in August
		db := testutil.SetupTestDB(t)
		wallet := testutil.NewWallet().Build(t, db)

		testutil.NewTransaction().
			OfType(model.TypeBuy).
			ForWallet(wallet.ID).
			At(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("BTC", "1", model.DirectionIn, "30000").
			Build(t, db)
		testutil.NewTransaction().
			OfType(model.TypeSell).
			ForWallet(wallet.ID).
			At(time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("BTC", "1", model.DirectionOut, "40000").
			Build(t, db)

		audit := testutil.NewAudit().ForWallets(wallet.ID).ForYear(2024).Build(t, db)
		queueAudit(t, db, audit.ID)
		svc := testutil.NewTestAuditService(t, db)

		// Execute
		done := completedAudit(t, db, svc, audit.ID)

		// Assert
		if done.Status != model.StatusCompleted {
			t.Fatalf("Expected status %s, got %s", model.StatusCompleted, done.Status)
		}
		if done.Progress != 100 {
			t.Errorf("Expected progress 100, got %d", done.Progress)
		}
		if done.CompletedAt == nil {
			t.Error("Expected CompletedAt to be set")
		}
		if done.Result == nil {
			t.Fatal("Expected a result document")
		}

		gains := done.Result.CapitalGains
		if !gains.NetShortTerm.Equal(decimal.NewFromInt(10000)) {
			t.Errorf("Expected net short-term gain 10000, got %s", gains.NetShortTerm)
		}
		if !gains.Net.Equal(decimal.NewFromInt(10000)) {
			t.Errorf("Expected net gain 10000, got %s", gains.Net)
		}
		if !gains.TaxableGains.Equal(decimal.NewFromInt(10000)) {
			t.Errorf("Expected taxable gains 10000, got %s", gains.TaxableGains)
		}
		if !done.Result.EstimatedTax.Equal(decimal.NewFromInt(1000)) {
			t.Errorf("Expected estimated tax 1000, got %s", done.Result.EstimatedTax)
		}
		if len(done.Result.Matches) != 1 {
			t.Errorf("Expected 1 match, got %d", len(done.Result.Matches))
		}
		if len(done.Result.Holdings) != 0 {
			t.Errorf("Expected no open holdings, got %+v", done.Result.Holdings)
		}
		if len(done.Result.ContentHash) != 64 {
			t.Errorf("Expected a sha256 hex content hash, got %q", done.Result.ContentHash)
		}
	})

	t.Run("links self-transfers so the lot follows the coins to the exchange", func(t *testing.T) {
		// Setup: buy on-chain, send to the exchange, sell there
		db := testutil.SetupTestDB(t)
		wallet := testutil.NewWallet().Build(t, db)
		connection := testutil.NewConnection().Build(t, db)

		testutil.NewTransaction().
			OfType(model.TypeBuy).
			ForWallet(wallet.ID).
			At(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("BTC", "1", model.DirectionIn, "30000").
			Build(t, db)
		testutil.NewTransaction().
			OfType(model.TypeTransferOut).
			ForWallet(wallet.ID).
			At(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)).
			WithExternalRef("0xmove1").
			WithFlow("BTC", "1", model.DirectionOut, "32000").
			Build(t, db)
		testutil.NewTransaction().
			OfType(model.TypeExchangeDeposit).
			ForConnection(connection.ID).
			At(time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)).
			WithExternalRef("0xmove1").
			WithFlow("BTC", "1", model.DirectionIn, "32000").
			Build(t, db)
		testutil.NewTransaction().
			OfType(model.TypeSell).
			ForConnection(connection.ID).
			At(time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("BTC", "1", model.DirectionOut, "40000").
			Build(t, db)

		audit := testutil.NewAudit().
			ForWallets(wallet.ID).
			ForConnections(connection.ID).
			ForYear(2024).
			Build(t, db)
		queueAudit(t, db, audit.ID)
		svc := testutil.NewTestAuditService(t, db)

		// Execute
		done := completedAudit(t, db, svc, audit.ID)

		// Assert: one match against the original 30000 lot, no phantom
		// disposal from the transfer leg
		if len(done.Result.Matches) != 1 {
			t.Fatalf("Expected 1 match, got %d", len(done.Result.Matches))
		}
		m := done.Result.Matches[0]
		if !m.CostBasis.Equal(decimal.NewFromInt(30000)) {
			t.Errorf("Expected cost basis 30000, got %s", m.CostBasis)
		}
		if !m.Proceeds.Equal(decimal.NewFromInt(40000)) {
			t.Errorf("Expected proceeds 40000, got %s", m.Proceeds)
		}
		if len(done.Result.Issues) != 0 {
			t.Errorf("Expected no issues, got %+v", done.Result.Issues)
		}
	})

	t.Run("acquisitions before the tax year carry their holding period in", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		wallet := testutil.NewWallet().Build(t, db)

		testutil.NewTransaction().
			OfType(model.TypeBuy).
			ForWallet(wallet.ID).
			At(time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("ETH", "10", model.DirectionIn, "18000").
			Build(t, db)
		testutil.NewTransaction().
			OfType(model.TypeSell).
			ForWallet(wallet.ID).
			At(time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("ETH", "10", model.DirectionOut, "30000").
			Build(t, db)

		audit := testutil.NewAudit().ForWallets(wallet.ID).ForYear(2024).Build(t, db)
		queueAudit(t, db, audit.ID)
		svc := testutil.NewTestAuditService(t, db)

		// Execute
		done := completedAudit(t, db, svc, audit.ID)

		// Assert
		if len(done.Result.Matches) != 1 {
			t.Fatalf("Expected 1 match, got %d", len(done.Result.Matches))
		}
		if done.Result.Matches[0].Term != model.TermLong {
			t.Errorf("Expected LONG_TERM, got %s", done.Result.Matches[0].Term)
		}
		if !done.Result.CapitalGains.NetLongTerm.Equal(decimal.NewFromInt(12000)) {
			t.Errorf("Expected net long-term gain 12000, got %s", done.Result.CapitalGains.NetLongTerm)
		}
	})

	t.Run("disposals before the tax year deplete lots without reporting", func(t *testing.T) {
		// Setup: 2 BTC bought in 2023, half sold in 2023, half in 2024
		db := testutil.SetupTestDB(t)
		wallet := testutil.NewWallet().Build(t, db)

		testutil.NewTransaction().
			OfType(model.TypeBuy).
			ForWallet(wallet.ID).
			At(time.Date(2023, 3, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("BTC", "2", model.DirectionIn, "40000").
			Build(t, db)
		testutil.NewTransaction().
			OfType(model.TypeSell).
			ForWallet(wallet.ID).
			At(time.Date(2023, 9, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("BTC", "1", model.DirectionOut, "25000").
			Build(t, db)
		testutil.NewTransaction().
			OfType(model.TypeSell).
			ForWallet(wallet.ID).
			At(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("BTC", "1", model.DirectionOut, "60000").
			Build(t, db)

		audit := testutil.NewAudit().ForWallets(wallet.ID).ForYear(2024).Build(t, db)
		queueAudit(t, db, audit.ID)
		svc := testutil.NewTestAuditService(t, db)

		// Execute
		done := completedAudit(t, db, svc, audit.ID)

		// Assert: only the 2024 sale is reported, costed at half the lot
		if len(done.Result.Matches) != 1 {
			t.Fatalf("Expected 1 match, got %d", len(done.Result.Matches))
		}
		if !done.Result.Matches[0].CostBasis.Equal(decimal.NewFromInt(20000)) {
			t.Errorf("Expected cost basis 20000, got %s", done.Result.Matches[0].CostBasis)
		}
		if !done.Result.CapitalGains.Net.Equal(decimal.NewFromInt(40000)) {
			t.Errorf("Expected net gain 40000, got %s", done.Result.CapitalGains.Net)
		}
	})

	t.Run("a disposal with no lot is a reported finding, not a failure", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		wallet := testutil.NewWallet().Build(t, db)

		testutil.NewTransaction().
			OfType(model.TypeSell).
			ForWallet(wallet.ID).
			At(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("BTC", "1", model.DirectionOut, "60000").
			Build(t, db)

		audit := testutil.NewAudit().ForWallets(wallet.ID).ForYear(2024).Build(t, db)
		queueAudit(t, db, audit.ID)
		svc := testutil.NewTestAuditService(t, db)

		// Execute
		done := completedAudit(t, db, svc, audit.ID)

		// Assert
		if done.Status != model.StatusCompleted {
			t.Fatalf("Expected status %s, got %s", model.StatusCompleted, done.Status)
		}
		if len(done.Result.Matches) != 0 {
			t.Errorf("Expected no matches, got %+v", done.Result.Matches)
		}
		if len(done.Result.Issues) != 1 || done.Result.Issues[0].Code != model.IssueUnmatchedDisposal {
			t.Fatalf("Expected an unmatched-disposal issue, got %+v", done.Result.Issues)
		}
		if !done.Result.CapitalGains.Net.IsZero() {
			t.Errorf("Expected zero net gain, got %s", done.Result.CapitalGains.Net)
		}
	})

	t.Run("staking rewards accrue income unless excluded", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		wallet := testutil.NewWallet().Build(t, db)

		testutil.NewTransaction().
			OfType(model.TypeStakingReward).
			ForWallet(wallet.ID).
			At(time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("ETH", "0.25", model.DirectionIn, "500").
			Build(t, db)

		svc := testutil.NewTestAuditService(t, db)

		included := testutil.NewAudit().ForWallets(wallet.ID).ForYear(2024).Build(t, db)
		queueAudit(t, db, included.ID)
		doneIncluded := completedAudit(t, db, svc, included.ID)

		opts := model.DefaultAuditOptions()
		opts.IncludeStaking = false
		excluded := testutil.NewAudit().ForWallets(wallet.ID).ForYear(2024).WithOptions(opts).Build(t, db)
		queueAudit(t, db, excluded.ID)
		doneExcluded := completedAudit(t, db, svc, excluded.ID)

		// Assert
		if !doneIncluded.Result.Income.Staking.Equal(decimal.NewFromInt(500)) {
			t.Errorf("Expected staking income 500, got %s", doneIncluded.Result.Income.Staking)
		}
		if !doneIncluded.Result.Income.Total.Equal(decimal.NewFromInt(500)) {
			t.Errorf("Expected total income 500, got %s", doneIncluded.Result.Income.Total)
		}
		if !doneExcluded.Result.Income.Total.IsZero() {
			t.Errorf("Expected zero income when staking is excluded, got %s", doneExcluded.Result.Income.Total)
		}
		if len(doneExcluded.Result.Holdings) != 0 {
			t.Errorf("Expected no holdings from the excluded reward, got %+v", doneExcluded.Result.Holdings)
		}
	})

	t.Run("exchange peak balances feed the foreign account report", func(t *testing.T) {
		// Setup: a single deposit pushes the account past the threshold
		db := testutil.SetupTestDB(t)
		connection := testutil.NewConnection().Build(t, db)

		testutil.NewTransaction().
			OfType(model.TypeExchangeDeposit).
			ForConnection(connection.ID).
			At(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("BTC", "0.2", model.DirectionIn, "13000").
			Build(t, db)

		audit := testutil.NewAudit().ForConnections(connection.ID).ForYear(2024).Build(t, db)
		queueAudit(t, db, audit.ID)
		svc := testutil.NewTestAuditService(t, db)

		// Execute
		done := completedAudit(t, db, svc, audit.ID)

		// Assert
		fa := done.Result.ForeignAccounts
		if fa == nil {
			t.Fatal("Expected a foreign account report")
		}
		if !fa.AggregatePeak.Equal(decimal.NewFromInt(13000)) {
			t.Errorf("Expected aggregate peak 13000, got %s", fa.AggregatePeak)
		}
		if !fa.DisclosureRequired {
			t.Error("Expected disclosure to be required")
		}
		if len(fa.Accounts) != 1 || fa.Accounts[0].Exchange != "kraken" {
			t.Errorf("Expected one kraken account entry, got %+v", fa.Accounts)
		}
	})

	t.Run("identical scopes produce identical analysis documents", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		wallet := testutil.NewWallet().Build(t, db)

		testutil.NewTransaction().
			OfType(model.TypeBuy).
			ForWallet(wallet.ID).
			At(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("BTC", "1.5", model.DirectionIn, "45000").
			Build(t, db)
		testutil.NewTransaction().
			OfType(model.TypeSell).
			ForWallet(wallet.ID).
			At(time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("BTC", "0.7", model.DirectionOut, "35000").
			Build(t, db)

		svc := testutil.NewTestAuditService(t, db)

		first := testutil.NewAudit().ForWallets(wallet.ID).ForYear(2024).Build(t, db)
		queueAudit(t, db, first.ID)
		resultA := completedAudit(t, db, svc, first.ID).Result

		second := testutil.NewAudit().ForWallets(wallet.ID).ForYear(2024).Build(t, db)
		queueAudit(t, db, second.ID)
		resultB := completedAudit(t, db, svc, second.ID).Result

		// Assert: strip the per-audit identity fields and compare the rest
		// byte for byte, lot IDs included
		resultA.AuditID, resultB.AuditID = "", ""
		resultA.ContentHash, resultB.ContentHash = "", ""
		resultA.GeneratedAt, resultB.GeneratedAt = time.Time{}, time.Time{}

		encodedA, err := json.Marshal(resultA)
		if err != nil {
			t.Fatalf("Failed to encode result: %v", err)
		}
		encodedB, err := json.Marshal(resultB)
		if err != nil {
			t.Fatalf("Failed to encode result: %v", err)
		}
		if !bytes.Equal(encodedA, encodedB) {
			t.Errorf("Expected identical analysis documents:\n%s\n%s", encodedA, encodedB)
		}
	})

	t.Run("an unsupported jurisdiction fails the audit with the reason", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		wallet := testutil.NewWallet().Build(t, db)

		audit := testutil.NewAudit().ForWallets(wallet.ID).In("ZZ").ForYear(2024).Build(t, db)
		queueAudit(t, db, audit.ID)
		svc := testutil.NewTestAuditService(t, db)

		// Execute
		err := svc.Run(context.Background(), audit.ID)

		// Assert
		if err == nil {
			t.Fatal("Expected Run to return an error")
		}
		var transient *worker.TransientError
		if errors.As(err, &transient) {
			t.Error("Expected a non-retryable failure")
		}

		failed, getErr := svc.GetAudit(context.Background(), audit.ID)
		if getErr != nil {
			t.Fatalf("GetAudit returned unexpected error: %v", getErr)
		}
		if failed.Status != model.StatusFailed {
			t.Errorf("Expected status %s, got %s", model.StatusFailed, failed.Status)
		}
		if failed.ErrorMessage == "" {
			t.Error("Expected the failure reason to be recorded")
		}
	})

	t.Run("skips audits no longer queued", func(t *testing.T) {
		// Setup: the audit was cancelled while waiting
		db := testutil.SetupTestDB(t)
		wallet := testutil.NewWallet().Build(t, db)

		audit := testutil.NewAudit().ForWallets(wallet.ID).ForYear(2024).Build(t, db)
		queueAudit(t, db, audit.ID)
		auditRepo := repository.NewAuditRepository(db)
		if err := auditRepo.UpdateStatus(context.Background(), audit.ID, model.StatusCancelled); err != nil {
			t.Fatalf("Failed to cancel test audit: %v", err)
		}

		svc := testutil.NewTestAuditService(t, db)

		// Execute
		err := svc.Run(context.Background(), audit.ID)

		// Assert
		if err != nil {
			t.Fatalf("Run returned unexpected error: %v", err)
		}
		current, err := svc.GetAudit(context.Background(), audit.ID)
		if err != nil {
			t.Fatalf("GetAudit returned unexpected error: %v", err)
		}
		if current.Status != model.StatusCancelled {
			t.Errorf("Expected status %s, got %s", model.StatusCancelled, current.Status)
		}
	})

	t.Run("sub-second timestamps keep the walk chronological", func(t *testing.T) {
		// Setup: the sale lands half a second after the purchase
		db := testutil.SetupTestDB(t)
		wallet := testutil.NewWallet().Build(t, db)

		testutil.NewTransaction().
			OfType(model.TypeBuy).
			ForWallet(wallet.ID).
			At(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("BTC", "1", model.DirectionIn, "30000").
			Build(t, db)
		testutil.NewTransaction().
			OfType(model.TypeSell).
			ForWallet(wallet.ID).
			At(time.Date(2024, 6, 1, 10, 0, 0, 500000000, time.UTC)).
			WithFlow("BTC", "1", model.DirectionOut, "40000").
			Build(t, db)

		audit := testutil.NewAudit().ForWallets(wallet.ID).ForYear(2024).Build(t, db)
		queueAudit(t, db, audit.ID)
		svc := testutil.NewTestAuditService(t, db)

		// Execute
		done := completedAudit(t, db, svc, audit.ID)

		// Assert: the purchase is walked first, so the sale finds its lot
		if len(done.Result.Matches) != 1 {
			t.Fatalf("Expected 1 match, got %d", len(done.Result.Matches))
		}
		if !done.Result.CapitalGains.Net.Equal(decimal.NewFromInt(10000)) {
			t.Errorf("Expected net gain 10000, got %s", done.Result.CapitalGains.Net)
		}
		if len(done.Result.Issues) != 0 {
			t.Errorf("Expected no issues, got %+v", done.Result.Issues)
		}
	})

	t.Run("the settlement currency leg of a trade is not an asset position", func(t *testing.T) {
		// Setup: exchange trades quoted in USD, funded by an unrecorded
		// fiat deposit
		db := testutil.SetupTestDB(t)
		connection := testutil.NewConnection().Build(t, db)

		testutil.NewTransaction().
			OfType(model.TypeExchangeTrade).
			ForConnection(connection.ID).
			At(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("BTC", "1", model.DirectionIn, "30000").
			WithFlow("USD", "30000", model.DirectionOut, "30000").
			Build(t, db)
		testutil.NewTransaction().
			OfType(model.TypeExchangeTrade).
			ForConnection(connection.ID).
			At(time.Date(2024, 9, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("BTC", "1", model.DirectionOut, "40000").
			WithFlow("USD", "40000", model.DirectionIn, "40000").
			Build(t, db)

		audit := testutil.NewAudit().ForConnections(connection.ID).ForYear(2024).Build(t, db)
		queueAudit(t, db, audit.ID)
		svc := testutil.NewTestAuditService(t, db)

		// Execute
		done := completedAudit(t, db, svc, audit.ID)

		// Assert: one BTC match, no phantom USD disposal, no USD holding
		if len(done.Result.Matches) != 1 {
			t.Fatalf("Expected 1 match, got %+v", done.Result.Matches)
		}
		if done.Result.Matches[0].Asset != "BTC" {
			t.Errorf("Expected a BTC match, got %s", done.Result.Matches[0].Asset)
		}
		if !done.Result.CapitalGains.Net.Equal(decimal.NewFromInt(10000)) {
			t.Errorf("Expected net gain 10000, got %s", done.Result.CapitalGains.Net)
		}
		if len(done.Result.Issues) != 0 {
			t.Errorf("Expected no issues, got %+v", done.Result.Issues)
		}
		for _, h := range done.Result.Holdings {
			if h.Asset == "USD" {
				t.Errorf("Expected no USD holding, got %+v", h)
			}
		}
	})

	t.Run("resumes an audit stranded mid-run by a crashed attempt", func(t *testing.T) {
		// Setup: a previous attempt advanced the audit past QUEUED and died
		db := testutil.SetupTestDB(t)
		wallet := testutil.NewWallet().Build(t, db)

		testutil.NewTransaction().
			OfType(model.TypeBuy).
			ForWallet(wallet.ID).
			At(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("BTC", "1", model.DirectionIn, "30000").
			Build(t, db)
		testutil.NewTransaction().
			OfType(model.TypeSell).
			ForWallet(wallet.ID).
			At(time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("BTC", "1", model.DirectionOut, "40000").
			Build(t, db)

		audit := testutil.NewAudit().ForWallets(wallet.ID).ForYear(2024).Build(t, db)
		queueAudit(t, db, audit.ID)
		auditRepo := repository.NewAuditRepository(db)
		if err := auditRepo.UpdateStatus(context.Background(), audit.ID, model.StatusProcessing); err != nil {
			t.Fatalf("Failed to advance test audit: %v", err)
		}

		svc := testutil.NewTestAuditService(t, db)

		// Execute
		done := completedAudit(t, db, svc, audit.ID)

		// Assert
		if done.Status != model.StatusCompleted {
			t.Fatalf("Expected status %s, got %s", model.StatusCompleted, done.Status)
		}
		if done.Result == nil {
			t.Fatal("Expected a result document")
		}
		if !done.Result.CapitalGains.Net.Equal(decimal.NewFromInt(10000)) {
			t.Errorf("Expected net gain 10000, got %s", done.Result.CapitalGains.Net)
		}
	})

	t.Run("resumes from the analysis states as well", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		wallet := testutil.NewWallet().Build(t, db)

		audit := testutil.NewAudit().ForWallets(wallet.ID).ForYear(2024).Build(t, db)
		queueAudit(t, db, audit.ID)
		auditRepo := repository.NewAuditRepository(db)
		for _, status := range []model.AuditStatus{model.StatusProcessing, model.StatusAnalyzing} {
			if err := auditRepo.UpdateStatus(context.Background(), audit.ID, status); err != nil {
				t.Fatalf("Failed to advance test audit to %s: %v", status, err)
			}
		}

		svc := testutil.NewTestAuditService(t, db)

		// Execute
		done := completedAudit(t, db, svc, audit.ID)

		// Assert
		if done.Status != model.StatusCompleted {
			t.Errorf("Expected status %s, got %s", model.StatusCompleted, done.Status)
		}
	})

	t.Run("a completed audit has a pending attestation sealed to its hash", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		wallet := testutil.NewWallet().Build(t, db)

		testutil.NewTransaction().
			OfType(model.TypeBuy).
			ForWallet(wallet.ID).
			At(time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)).
			WithFlow("BTC", "1", model.DirectionIn, "30000").
			Build(t, db)

		audit := testutil.NewAudit().ForWallets(wallet.ID).ForYear(2024).Build(t, db)
		queueAudit(t, db, audit.ID)
		svc := testutil.NewTestAuditService(t, db)
		done := completedAudit(t, db, svc, audit.ID)

		// Execute
		attestation, err := svc.GetAttestation(context.Background(), audit.ID)

		// Assert
		if err != nil {
			t.Fatalf("GetAttestation returned unexpected error: %v", err)
		}
		if attestation.Status != model.AttestationPending {
			t.Errorf("Expected status %s, got %s", model.AttestationPending, attestation.Status)
		}
		if attestation.AuditHash != done.Result.ContentHash {
			t.Errorf("Expected attestation hash %s, got %s", done.Result.ContentHash, attestation.AuditHash)
		}
		if !attestation.ExpiresAt.After(time.Now().UTC()) {
			t.Errorf("Expected a future expiry, got %s", attestation.ExpiresAt)
		}
	})
}

// TestAuditService_Fail tests the pool's give-up path: a transient error
// that never clears must leave the audit FAILED, not stranded mid-lifecycle.
func TestAuditService_Fail(t *testing.T) {
	t.Run("marks a stranded audit failed with the cause", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		wallet := testutil.NewWallet().Build(t, db)

		audit := testutil.NewAudit().ForWallets(wallet.ID).ForYear(2024).Build(t, db)
		queueAudit(t, db, audit.ID)
		auditRepo := repository.NewAuditRepository(db)
		if err := auditRepo.UpdateStatus(context.Background(), audit.ID, model.StatusProcessing); err != nil {
			t.Fatalf("Failed to advance test audit: %v", err)
		}

		svc := testutil.NewTestAuditService(t, db)

		// Execute
		svc.Fail(context.Background(), audit.ID, errors.New("database is locked"))

		// Assert
		failed, err := svc.GetAudit(context.Background(), audit.ID)
		if err != nil {
			t.Fatalf("GetAudit returned unexpected error: %v", err)
		}
		if failed.Status != model.StatusFailed {
			t.Errorf("Expected status %s, got %s", model.StatusFailed, failed.Status)
		}
		if failed.ErrorMessage != "database is locked" {
			t.Errorf("Expected the cause to be recorded, got %q", failed.ErrorMessage)
		}
	})
}

// TestAuditService_StartAudit tests request intake and scheduling.
func TestAuditService_StartAudit(t *testing.T) {
	t.Run("persists the audit and hands it to the pool", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		wallet := testutil.NewWallet().Build(t, db)
		svc := testutil.NewTestAuditService(t, db)
		queue := &stubQueue{}
		svc.AttachQueue(queue)

		audit := &model.Audit{
			WalletIDs:    []string{wallet.ID},
			Jurisdiction: model.JurisdictionUS,
			TaxYear:      2024,
			Options:      model.DefaultAuditOptions(),
		}

		// Execute
		err := svc.StartAudit(context.Background(), audit)

		// Assert
		if err != nil {
			t.Fatalf("StartAudit returned unexpected error: %v", err)
		}
		if audit.ID == "" {
			t.Fatal("Expected an assigned audit ID")
		}
		if audit.Status != model.StatusQueued {
			t.Errorf("Expected status %s, got %s", model.StatusQueued, audit.Status)
		}
		if len(queue.enqueued) != 1 || queue.enqueued[0] != audit.ID {
			t.Errorf("Expected the audit on the queue, got %v", queue.enqueued)
		}

		stored, err := svc.GetAudit(context.Background(), audit.ID)
		if err != nil {
			t.Fatalf("GetAudit returned unexpected error: %v", err)
		}
		if stored.Status != model.StatusQueued {
			t.Errorf("Expected persisted status %s, got %s", model.StatusQueued, stored.Status)
		}
	})

	t.Run("maps a duplicate enqueue to an in-flight error", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		wallet := testutil.NewWallet().Build(t, db)
		svc := testutil.NewTestAuditService(t, db)
		svc.AttachQueue(&stubQueue{enqueueErr: worker.ErrAlreadyQueued})

		audit := &model.Audit{
			WalletIDs:    []string{wallet.ID},
			Jurisdiction: model.JurisdictionUS,
			TaxYear:      2024,
			Options:      model.DefaultAuditOptions(),
		}

		// Execute
		err := svc.StartAudit(context.Background(), audit)

		// Assert
		if !errors.Is(err, apperrors.ErrAuditInFlight) {
			t.Errorf("Expected ErrAuditInFlight, got %v", err)
		}
	})
}

// TestAuditService_CancelAudit tests the cancel window.
func TestAuditService_CancelAudit(t *testing.T) {
	t.Run("cancels a queued audit", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		wallet := testutil.NewWallet().Build(t, db)
		svc := testutil.NewTestAuditService(t, db)
		queue := &stubQueue{}
		svc.AttachQueue(queue)

		audit := testutil.NewAudit().ForWallets(wallet.ID).ForYear(2024).Build(t, db)
		queueAudit(t, db, audit.ID)

		// Execute
		err := svc.CancelAudit(context.Background(), audit.ID)

		// Assert
		if err != nil {
			t.Fatalf("CancelAudit returned unexpected error: %v", err)
		}
		if len(queue.cancelled) != 1 || queue.cancelled[0] != audit.ID {
			t.Errorf("Expected the audit pulled from the queue, got %v", queue.cancelled)
		}
		current, err := svc.GetAudit(context.Background(), audit.ID)
		if err != nil {
			t.Fatalf("GetAudit returned unexpected error: %v", err)
		}
		if current.Status != model.StatusCancelled {
			t.Errorf("Expected status %s, got %s", model.StatusCancelled, current.Status)
		}
	})

	t.Run("refuses to cancel an audit that is already processing", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		wallet := testutil.NewWallet().Build(t, db)
		svc := testutil.NewTestAuditService(t, db)
		svc.AttachQueue(&stubQueue{})

		audit := testutil.NewAudit().ForWallets(wallet.ID).ForYear(2024).Build(t, db)
		queueAudit(t, db, audit.ID)
		auditRepo := repository.NewAuditRepository(db)
		if err := auditRepo.UpdateStatus(context.Background(), audit.ID, model.StatusProcessing); err != nil {
			t.Fatalf("Failed to advance test audit: %v", err)
		}

		// Execute
		err := svc.CancelAudit(context.Background(), audit.ID)

		// Assert
		if !errors.Is(err, apperrors.ErrAuditNotCancellable) {
			t.Errorf("Expected ErrAuditNotCancellable, got %v", err)
		}
	})

	t.Run("returns not found for an unknown audit", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		svc := testutil.NewTestAuditService(t, db)
		svc.AttachQueue(&stubQueue{})

		// Execute
		err := svc.CancelAudit(context.Background(), testutil.MakeID())

		// Assert
		if !errors.Is(err, apperrors.ErrAuditNotFound) {
			t.Errorf("Expected ErrAuditNotFound, got %v", err)
		}
	})
}
