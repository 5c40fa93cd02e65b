package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/repository"
)

// WalletBuilder provides a fluent interface for creating test wallets.
//
// Example usage:
//
//	wallet := testutil.NewWallet().WithChain("ethereum").Build(t, db)
type WalletBuilder struct {
	ID      string
	Address string
	Chain   string
	Label   string
}

// NewWallet creates a WalletBuilder with sensible defaults.
func NewWallet() *WalletBuilder {
	return &WalletBuilder{
		ID:      MakeID(),
		Address: "0x" + MakeID()[:8],
		Chain:   "ethereum",
		Label:   "Test Wallet",
	}
}

// WithID sets a custom ID.
func (b *WalletBuilder) WithID(id string) *WalletBuilder {
	b.ID = id
	return b
}

// WithAddress sets a custom address.
func (b *WalletBuilder) WithAddress(address string) *WalletBuilder {
	b.Address = address
	return b
}

// WithChain sets a custom chain.
func (b *WalletBuilder) WithChain(chain string) *WalletBuilder {
	b.Chain = chain
	return b
}

// Build persists the wallet and returns it.
func (b *WalletBuilder) Build(t *testing.T, db *sql.DB) *model.Wallet {
	t.Helper()

	wallet := &model.Wallet{
		ID:        b.ID,
		Address:   b.Address,
		Chain:     b.Chain,
		Label:     b.Label,
		CreatedAt: time.Now().UTC(),
	}
	if err := repository.NewWalletRepository(db).CreateWallet(context.Background(), wallet); err != nil {
		t.Fatalf("Failed to create test wallet: %v", err)
	}
	return wallet
}

// ConnectionBuilder provides a fluent interface for creating test exchange
// connections. Credentials are encrypted with the test vault.
type ConnectionBuilder struct {
	ID       string
	Exchange string
	Label    string
}

// NewConnection creates a ConnectionBuilder with sensible defaults.
func NewConnection() *ConnectionBuilder {
	return &ConnectionBuilder{
		ID:       MakeID(),
		Exchange: "kraken",
		Label:    "Test Connection",
	}
}

// WithID sets a custom ID.
func (b *ConnectionBuilder) WithID(id string) *ConnectionBuilder {
	b.ID = id
	return b
}

// WithExchange sets a custom exchange name.
func (b *ConnectionBuilder) WithExchange(exchange string) *ConnectionBuilder {
	b.Exchange = exchange
	return b
}

// Build persists the connection and returns it.
func (b *ConnectionBuilder) Build(t *testing.T, db *sql.DB) *model.ExchangeConnection {
	t.Helper()

	connection := &model.ExchangeConnection{
		ID:        b.ID,
		Exchange:  b.Exchange,
		Label:     b.Label,
		CreatedAt: time.Now().UTC(),
	}
	repo := repository.NewConnectionRepository(db, NewTestVault(t))
	if err := repo.CreateConnection(context.Background(), connection, []byte(`{"apiKey":"k","apiSecret":"s"}`)); err != nil {
		t.Fatalf("Failed to create test connection: %v", err)
	}
	return connection
}

// TransactionBuilder provides a fluent interface for creating test
// transactions with flows.
//
// Example usage:
//
//	tx := testutil.NewTransaction().
//	    OfType(model.TypeBuy).
//	    ForWallet(wallet.ID).
//	    At(someTime).
//	    WithFlow("BTC", "1.5", model.DirectionIn, "45000").
//	    Build(t, db)
type TransactionBuilder struct {
	tx model.Transaction
}

// NewTransaction creates a TransactionBuilder with sensible defaults.
func NewTransaction() *TransactionBuilder {
	return &TransactionBuilder{
		tx: model.Transaction{
			ID:         MakeID(),
			Provenance: model.ProvenanceOnChain,
			Type:       model.TypeBuy,
			Timestamp:  time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
			CreatedAt:  time.Now().UTC(),
		},
	}
}

// WithID sets a custom ID.
func (b *TransactionBuilder) WithID(id string) *TransactionBuilder {
	b.tx.ID = id
	return b
}

// OfType sets the transaction type.
func (b *TransactionBuilder) OfType(t model.TransactionType) *TransactionBuilder {
	b.tx.Type = t
	return b
}

// ForWallet scopes the transaction to a wallet and marks it on-chain.
func (b *TransactionBuilder) ForWallet(walletID string) *TransactionBuilder {
	b.tx.WalletID = walletID
	b.tx.Provenance = model.ProvenanceOnChain
	return b
}

// ForConnection scopes the transaction to an exchange connection.
func (b *TransactionBuilder) ForConnection(connectionID string) *TransactionBuilder {
	b.tx.ConnectionID = connectionID
	b.tx.Provenance = model.ProvenanceExchange
	return b
}

// At sets the transaction timestamp.
func (b *TransactionBuilder) At(ts time.Time) *TransactionBuilder {
	b.tx.Timestamp = ts
	return b
}

// WithExternalRef sets the provider reference (e.g. an on-chain tx hash).
func (b *TransactionBuilder) WithExternalRef(ref string) *TransactionBuilder {
	b.tx.ExternalRef = ref
	return b
}

// WithCounterparty sets the counterparty address.
func (b *TransactionBuilder) WithCounterparty(address string) *TransactionBuilder {
	b.tx.Counterparty = address
	return b
}

// WithFlow appends a non-fee flow. Amount and value are decimal strings; an
// empty value stays unresolved (NULL).
func (b *TransactionBuilder) WithFlow(asset, amount string, direction model.FlowDirection, value string) *TransactionBuilder {
	b.tx.Flows = append(b.tx.Flows, makeFlow(b.tx.ID, asset, amount, direction, value, false))
	return b
}

// WithFeeFlow appends a fee flow.
func (b *TransactionBuilder) WithFeeFlow(asset, amount, value string) *TransactionBuilder {
	b.tx.Flows = append(b.tx.Flows, makeFlow(b.tx.ID, asset, amount, model.DirectionOut, value, true))
	return b
}

// Transaction returns the built transaction without persisting it.
func (b *TransactionBuilder) Transaction() *model.Transaction {
	tx := b.tx
	return &tx
}

// Build persists the transaction with its flows and returns it.
func (b *TransactionBuilder) Build(t *testing.T, db *sql.DB) *model.Transaction {
	t.Helper()

	tx := b.Transaction()
	if err := repository.NewTransactionRepository(db).InsertTransaction(context.Background(), tx); err != nil {
		t.Fatalf("Failed to create test transaction: %v", err)
	}
	return tx
}

func makeFlow(txID, asset, amount string, direction model.FlowDirection, value string, isFee bool) model.Flow {
	f := model.Flow{
		ID:            MakeID(),
		TransactionID: txID,
		Asset:         asset,
		Amount:        decimal.RequireFromString(amount),
		Direction:     direction,
		IsFee:         isFee,
	}
	if value != "" {
		f.Value = decimal.NullDecimal{Decimal: decimal.RequireFromString(value), Valid: true}
	}
	return f
}

// AuditBuilder provides a fluent interface for creating test audit records.
type AuditBuilder struct {
	audit model.Audit
}

// NewAudit creates an AuditBuilder with sensible defaults.
func NewAudit() *AuditBuilder {
	return &AuditBuilder{
		audit: model.Audit{
			ID:           MakeID(),
			Jurisdiction: model.JurisdictionUS,
			TaxYear:      2024,
			Options:      model.DefaultAuditOptions(),
			Status:       model.StatusPending,
			CreatedAt:    time.Now().UTC(),
			UpdatedAt:    time.Now().UTC(),
		},
	}
}

// WithID sets a custom ID.
func (b *AuditBuilder) WithID(id string) *AuditBuilder {
	b.audit.ID = id
	return b
}

// ForWallets scopes the audit to the given wallets.
func (b *AuditBuilder) ForWallets(walletIDs ...string) *AuditBuilder {
	b.audit.WalletIDs = walletIDs
	return b
}

// ForConnections scopes the audit to the given exchange connections.
func (b *AuditBuilder) ForConnections(connectionIDs ...string) *AuditBuilder {
	b.audit.ConnectionIDs = connectionIDs
	return b
}

// In sets the jurisdiction.
func (b *AuditBuilder) In(j model.Jurisdiction) *AuditBuilder {
	b.audit.Jurisdiction = j
	return b
}

// ForYear sets the tax year.
func (b *AuditBuilder) ForYear(year int) *AuditBuilder {
	b.audit.TaxYear = year
	return b
}

// WithOptions replaces the audit options.
func (b *AuditBuilder) WithOptions(opts model.AuditOptions) *AuditBuilder {
	b.audit.Options = opts
	return b
}

// Build persists the audit and returns it.
func (b *AuditBuilder) Build(t *testing.T, db *sql.DB) *model.Audit {
	t.Helper()

	audit := b.audit
	if err := repository.NewAuditRepository(db).CreateAudit(context.Background(), &audit); err != nil {
		t.Fatalf("Failed to create test audit: %v", err)
	}
	return &audit
}
