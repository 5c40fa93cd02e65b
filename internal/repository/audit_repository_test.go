package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/apperrors"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/repository"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/testutil"
)

// TestAuditRepository_Roundtrip tests persistence of the audit record.
func TestAuditRepository_Roundtrip(t *testing.T) {
	t.Run("stores and reloads an audit with its options", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		opts := model.DefaultAuditOptions()
		opts.CostBasisMethod = model.MethodHIFO
		opts.IncludeNFTs = false

		audit := testutil.NewAudit().
			ForWallets(testutil.MakeID()).
			In(model.JurisdictionUK).
			ForYear(2023).
			WithOptions(opts).
			Build(t, db)

		// Execute
		stored, err := repository.NewAuditRepository(db).GetAudit(context.Background(), audit.ID)

		// Assert
		if err != nil {
			t.Fatalf("GetAudit returned unexpected error: %v", err)
		}
		if stored.Jurisdiction != model.JurisdictionUK {
			t.Errorf("Expected jurisdiction %s, got %s", model.JurisdictionUK, stored.Jurisdiction)
		}
		if stored.TaxYear != 2023 {
			t.Errorf("Expected tax year 2023, got %d", stored.TaxYear)
		}
		if stored.Options.CostBasisMethod != model.MethodHIFO {
			t.Errorf("Expected method %s, got %s", model.MethodHIFO, stored.Options.CostBasisMethod)
		}
		if stored.Options.IncludeNFTs {
			t.Error("Expected IncludeNFTs to be false")
		}
		if stored.Status != model.StatusPending {
			t.Errorf("Expected status %s, got %s", model.StatusPending, stored.Status)
		}
		if stored.Result != nil {
			t.Error("Expected no result on a fresh audit")
		}
	})

	t.Run("returns not found for an unknown audit", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)

		// Execute
		_, err := repository.NewAuditRepository(db).GetAudit(context.Background(), testutil.MakeID())

		// Assert
		if !errors.Is(err, apperrors.ErrAuditNotFound) {
			t.Errorf("Expected ErrAuditNotFound, got %v", err)
		}
	})
}

// TestAuditRepository_UpdateStatus tests the lifecycle guard.
func TestAuditRepository_UpdateStatus(t *testing.T) {
	t.Run("walks the forward path", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		audit := testutil.NewAudit().ForWallets(testutil.MakeID()).Build(t, db)
		repo := repository.NewAuditRepository(db)

		// Execute / Assert
		steps := []model.AuditStatus{
			model.StatusQueued, model.StatusProcessing,
			model.StatusAnalyzing, model.StatusGeneratingReport,
			model.StatusCompleted,
		}
		for _, next := range steps {
			if err := repo.UpdateStatus(context.Background(), audit.ID, next); err != nil {
				t.Fatalf("UpdateStatus to %s returned unexpected error: %v", next, err)
			}
		}
	})

	t.Run("rejects a backward step", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		audit := testutil.NewAudit().ForWallets(testutil.MakeID()).Build(t, db)
		repo := repository.NewAuditRepository(db)
		if err := repo.UpdateStatus(context.Background(), audit.ID, model.StatusProcessing); err != nil {
			t.Fatalf("UpdateStatus returned unexpected error: %v", err)
		}

		// Execute
		err := repo.UpdateStatus(context.Background(), audit.ID, model.StatusQueued)

		// Assert
		if !errors.Is(err, apperrors.ErrInvalidStatusTransition) {
			t.Errorf("Expected ErrInvalidStatusTransition, got %v", err)
		}
	})

	t.Run("terminal states accept no transitions", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		audit := testutil.NewAudit().ForWallets(testutil.MakeID()).Build(t, db)
		repo := repository.NewAuditRepository(db)
		if err := repo.UpdateStatus(context.Background(), audit.ID, model.StatusCancelled); err != nil {
			t.Fatalf("UpdateStatus returned unexpected error: %v", err)
		}

		// Execute
		err := repo.UpdateStatus(context.Background(), audit.ID, model.StatusQueued)

		// Assert
		if !errors.Is(err, apperrors.ErrInvalidStatusTransition) {
			t.Errorf("Expected ErrInvalidStatusTransition, got %v", err)
		}
	})

	t.Run("cancellation is reachable from any non-terminal state", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		audit := testutil.NewAudit().ForWallets(testutil.MakeID()).Build(t, db)
		repo := repository.NewAuditRepository(db)
		if err := repo.UpdateStatus(context.Background(), audit.ID, model.StatusQueued); err != nil {
			t.Fatalf("UpdateStatus returned unexpected error: %v", err)
		}
		if err := repo.UpdateStatus(context.Background(), audit.ID, model.StatusAnalyzing); err != nil {
			t.Fatalf("UpdateStatus returned unexpected error: %v", err)
		}

		// Execute
		err := repo.UpdateStatus(context.Background(), audit.ID, model.StatusCancelled)

		// Assert
		if err != nil {
			t.Errorf("UpdateStatus returned unexpected error: %v", err)
		}
	})
}

// TestAuditRepository_UpdateProgress tests that reported progress never
// regresses.
func TestAuditRepository_UpdateProgress(t *testing.T) {
	t.Run("keeps the high-water mark under out-of-order updates", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		audit := testutil.NewAudit().ForWallets(testutil.MakeID()).Build(t, db)
		repo := repository.NewAuditRepository(db)

		// Execute
		if err := repo.UpdateProgress(context.Background(), audit.ID, 60); err != nil {
			t.Fatalf("UpdateProgress returned unexpected error: %v", err)
		}
		if err := repo.UpdateProgress(context.Background(), audit.ID, 25); err != nil {
			t.Fatalf("UpdateProgress returned unexpected error: %v", err)
		}

		// Assert
		stored, err := repo.GetAudit(context.Background(), audit.ID)
		if err != nil {
			t.Fatalf("GetAudit returned unexpected error: %v", err)
		}
		if stored.Progress != 60 {
			t.Errorf("Expected progress 60, got %d", stored.Progress)
		}
	})
}

// TestAuditRepository_SaveResult tests attaching the sealed result document.
func TestAuditRepository_SaveResult(t *testing.T) {
	t.Run("completes the audit with its result in one update", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		audit := testutil.NewAudit().ForWallets(testutil.MakeID()).Build(t, db)
		repo := repository.NewAuditRepository(db)
		if err := repo.UpdateStatus(context.Background(), audit.ID, model.StatusQueued); err != nil {
			t.Fatalf("UpdateStatus returned unexpected error: %v", err)
		}

		result := &model.AuditResult{
			AuditID:      audit.ID,
			Jurisdiction: audit.Jurisdiction,
			TaxYear:      audit.TaxYear,
			Currency:     "USD",
			Method:       model.MethodFIFO,
			EstimatedTax: decimal.NewFromInt(1200),
			ContentHash:  "deadbeef",
		}

		// Execute
		if err := repo.SaveResult(context.Background(), audit.ID, result); err != nil {
			t.Fatalf("SaveResult returned unexpected error: %v", err)
		}

		// Assert
		stored, err := repo.GetAudit(context.Background(), audit.ID)
		if err != nil {
			t.Fatalf("GetAudit returned unexpected error: %v", err)
		}
		if stored.Status != model.StatusCompleted {
			t.Errorf("Expected status %s, got %s", model.StatusCompleted, stored.Status)
		}
		if stored.Progress != 100 {
			t.Errorf("Expected progress 100, got %d", stored.Progress)
		}
		if stored.CompletedAt == nil {
			t.Error("Expected CompletedAt to be set")
		}
		if stored.Result == nil {
			t.Fatal("Expected the result document to be attached")
		}
		if stored.Result.ContentHash != "deadbeef" {
			t.Errorf("Expected content hash deadbeef, got %q", stored.Result.ContentHash)
		}
		if !stored.Result.EstimatedTax.Equal(decimal.NewFromInt(1200)) {
			t.Errorf("Expected estimated tax 1200, got %s", stored.Result.EstimatedTax)
		}
	})
}

// TestAuditRepository_SetFailed tests failure recording.
func TestAuditRepository_SetFailed(t *testing.T) {
	t.Run("records the failure reason without a result", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		audit := testutil.NewAudit().ForWallets(testutil.MakeID()).Build(t, db)
		repo := repository.NewAuditRepository(db)

		// Execute
		if err := repo.SetFailed(context.Background(), audit.ID, "unsupported jurisdiction"); err != nil {
			t.Fatalf("SetFailed returned unexpected error: %v", err)
		}

		// Assert
		stored, err := repo.GetAudit(context.Background(), audit.ID)
		if err != nil {
			t.Fatalf("GetAudit returned unexpected error: %v", err)
		}
		if stored.Status != model.StatusFailed {
			t.Errorf("Expected status %s, got %s", model.StatusFailed, stored.Status)
		}
		if stored.ErrorMessage != "unsupported jurisdiction" {
			t.Errorf("Expected the failure reason, got %q", stored.ErrorMessage)
		}
		if stored.Result != nil {
			t.Error("Expected no result on a failed audit")
		}
	})
}

// TestAuditRepository_HasInFlight tests the in-flight check backing
// duplicate-run rejection.
func TestAuditRepository_HasInFlight(t *testing.T) {
	t.Run("reports queued and running audits as in flight", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		audit := testutil.NewAudit().ForWallets(testutil.MakeID()).Build(t, db)
		repo := repository.NewAuditRepository(db)

		// Execute / Assert
		inFlight, err := repo.HasInFlight(context.Background(), audit.ID)
		if err != nil {
			t.Fatalf("HasInFlight returned unexpected error: %v", err)
		}
		if inFlight {
			t.Error("Expected a PENDING audit to not be in flight")
		}

		if err := repo.UpdateStatus(context.Background(), audit.ID, model.StatusQueued); err != nil {
			t.Fatalf("UpdateStatus returned unexpected error: %v", err)
		}
		inFlight, err = repo.HasInFlight(context.Background(), audit.ID)
		if err != nil {
			t.Fatalf("HasInFlight returned unexpected error: %v", err)
		}
		if !inFlight {
			t.Error("Expected a QUEUED audit to be in flight")
		}
	})
}

// TestAuditRepository_ListByStatus tests the recovery query used at startup.
func TestAuditRepository_ListByStatus(t *testing.T) {
	t.Run("returns matching audits oldest first", func(t *testing.T) {
		// Setup
		db := testutil.SetupTestDB(t)
		repo := repository.NewAuditRepository(db)

		queued := testutil.NewAudit().ForWallets(testutil.MakeID()).Build(t, db)
		if err := repo.UpdateStatus(context.Background(), queued.ID, model.StatusQueued); err != nil {
			t.Fatalf("UpdateStatus returned unexpected error: %v", err)
		}
		testutil.NewAudit().ForWallets(testutil.MakeID()).Build(t, db)

		// Execute
		ids, err := repo.ListByStatus(context.Background(), model.StatusQueued, model.StatusProcessing)

		// Assert
		if err != nil {
			t.Fatalf("ListByStatus returned unexpected error: %v", err)
		}
		if len(ids) != 1 || ids[0] != queued.ID {
			t.Errorf("Expected only the queued audit, got %v", ids)
		}
	})
}
