package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/apperrors"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
)

// WalletRepository provides data access methods for tracked wallets.
type WalletRepository struct {
	db *sql.DB
}

// NewWalletRepository creates a new WalletRepository with the provided database connection.
func NewWalletRepository(db *sql.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// CreateWallet persists a tracked wallet.
func (s *WalletRepository) CreateWallet(ctx context.Context, w *model.Wallet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallet (id, address, chain, label, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, w.ID, w.Address, w.Chain, w.Label, FormatTime(w.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert wallet: %w", err)
	}
	return nil
}

// GetWallet retrieves a wallet by ID.
func (s *WalletRepository) GetWallet(ctx context.Context, id string) (*model.Wallet, error) {
	var w model.Wallet
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, address, chain, label, created_at FROM wallet WHERE id = ?
	`, id).Scan(&w.ID, &w.Address, &w.Chain, &w.Label, &createdAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan wallet: %w", err)
	}
	if w.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return &w, nil
}

// GetWallets retrieves the named wallets, keyed by ID.
func (s *WalletRepository) GetWallets(ctx context.Context, ids []string) (map[string]model.Wallet, error) {
	result := make(map[string]model.Wallet)
	if len(ids) == 0 {
		return result, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, chain, label, created_at
		FROM wallet
		WHERE id IN (`+placeholders(len(ids))+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var w model.Wallet
		var createdAt string
		if err := rows.Scan(&w.ID, &w.Address, &w.Chain, &w.Label, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		if w.CreatedAt, err = ParseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		result[w.ID] = w
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wallets: %w", err)
	}
	return result, nil
}
