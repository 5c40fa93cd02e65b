package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/normalize"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/repository"
)

// IngestService owns the write path into the canonical store: wallets,
// exchange connections, and batches of raw provider records run through the
// normalizer.
type IngestService struct {
	transactionRepo *repository.TransactionRepository
	walletRepo      *repository.WalletRepository
	connectionRepo  *repository.ConnectionRepository
}

// NewIngestService creates a new IngestService.
func NewIngestService(
	transactionRepo *repository.TransactionRepository,
	walletRepo *repository.WalletRepository,
	connectionRepo *repository.ConnectionRepository,
) *IngestService {
	return &IngestService{
		transactionRepo: transactionRepo,
		walletRepo:      walletRepo,
		connectionRepo:  connectionRepo,
	}
}

// CreateWallet registers an on-chain wallet for tracking.
func (s *IngestService) CreateWallet(ctx context.Context, address, chain, label string) (*model.Wallet, error) {
	wallet := &model.Wallet{
		ID:        uuid.New().String(),
		Address:   address,
		Chain:     chain,
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.walletRepo.CreateWallet(ctx, wallet); err != nil {
		return nil, err
	}
	return wallet, nil
}

// CreateConnection registers an exchange connection. The API credentials are
// encrypted at rest by the repository and never leave the process.
func (s *IngestService) CreateConnection(ctx context.Context, exchange, label, apiKey, apiSecret string) (*model.ExchangeConnection, error) {
	credentials, err := json.Marshal(map[string]string{
		"apiKey":    apiKey,
		"apiSecret": apiSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}

	connection := &model.ExchangeConnection{
		ID:        uuid.New().String(),
		Exchange:  exchange,
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.connectionRepo.CreateConnection(ctx, connection, credentials); err != nil {
		return nil, err
	}
	return connection, nil
}

// AddDepositAddress records a known deposit address of an exchange
// connection, feeding the linker's destination-address classification.
func (s *IngestService) AddDepositAddress(ctx context.Context, connectionID, address, asset string) error {
	if _, err := s.connectionRepo.GetConnection(ctx, connectionID); err != nil {
		return err
	}
	return s.connectionRepo.AddDepositAddress(ctx, model.DepositAddress{
		ConnectionID: connectionID,
		Address:      address,
		Asset:        asset,
	})
}

// ImportRecords normalizes and persists a batch of raw provider records.
// The batch is all-or-nothing: one malformed record rejects the whole batch
// with a typed parse error before anything is written, and persistence runs
// in a single database transaction so a failure partway through leaves no
// partial import. Returns the number of transactions persisted.
func (s *IngestService) ImportRecords(ctx context.Context, records []normalize.Record) (int, error) {
	transactions := make([]model.Transaction, 0, len(records))
	for _, record := range records {
		tx, err := record.Normalize()
		if err != nil {
			return 0, err
		}
		transactions = append(transactions, tx)
	}

	if err := s.transactionRepo.InsertTransactions(ctx, transactions); err != nil {
		return 0, err
	}
	return len(transactions), nil
}
