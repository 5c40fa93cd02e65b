package testutil

import (
	"database/sql"
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/google/uuid"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/repository"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/secrets"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/service"
)

// MakeID returns a fresh UUID string.
func MakeID() string {
	return uuid.New().String()
}

// NewTestVault creates a credential vault with a freshly generated key.
func NewTestVault(t *testing.T) *secrets.Vault {
	t.Helper()

	var key fernet.Key
	if err := key.Generate(); err != nil {
		t.Fatalf("Failed to generate fernet key: %v", err)
	}
	vault, err := secrets.NewVault(key.Encode())
	if err != nil {
		t.Fatalf("Failed to create test vault: %v", err)
	}
	return vault
}

// NewTestLinkerService wires a linker with the documented default
// tolerances: a four hour window and ten percent amount deviation.
func NewTestLinkerService(t *testing.T, db *sql.DB) *service.LinkerService {
	t.Helper()

	transactionRepo := repository.NewTransactionRepository(db)
	connectionRepo := repository.NewConnectionRepository(db, NewTestVault(t))

	return service.NewLinkerService(
		transactionRepo,
		connectionRepo,
		4,
		10,
	)
}

// NewTestIngestService wires an ingest service against the test database.
func NewTestIngestService(t *testing.T, db *sql.DB) *service.IngestService {
	t.Helper()

	return service.NewIngestService(
		repository.NewTransactionRepository(db),
		repository.NewWalletRepository(db),
		repository.NewConnectionRepository(db, NewTestVault(t)),
	)
}

// NewTestAuditService wires the full audit engine against the test database.
// The returned service has no queue attached; call Run directly or attach a
// pool in the test.
func NewTestAuditService(t *testing.T, db *sql.DB) *service.AuditService {
	t.Helper()

	return service.NewAuditService(
		repository.NewAuditRepository(db),
		repository.NewTransactionRepository(db),
		repository.NewConnectionRepository(db, NewTestVault(t)),
		repository.NewAttestationRepository(db),
		NewTestLinkerService(t, db),
		365,
	)
}
