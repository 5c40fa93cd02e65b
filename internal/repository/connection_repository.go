package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/apperrors"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/secrets"
)

// ConnectionRepository provides data access methods for exchange connections
// and their deposit-address history. API credentials are encrypted with the
// vault before touching disk.
type ConnectionRepository struct {
	db    *sql.DB
	vault *secrets.Vault
}

// NewConnectionRepository creates a new ConnectionRepository. The vault may
// be nil when credential storage is disabled; connections are then stored
// without credentials.
func NewConnectionRepository(db *sql.DB, vault *secrets.Vault) *ConnectionRepository {
	return &ConnectionRepository{db: db, vault: vault}
}

// CreateConnection persists an exchange connection, encrypting the supplied
// credentials at rest.
func (s *ConnectionRepository) CreateConnection(ctx context.Context, c *model.ExchangeConnection, credentials []byte) error {
	encrypted := ""
	if len(credentials) > 0 {
		if s.vault == nil {
			return fmt.Errorf("credential storage requires an encryption key")
		}
		var err error
		encrypted, err = s.vault.Encrypt(credentials)
		if err != nil {
			return fmt.Errorf("failed to encrypt credentials: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchange_connection (id, exchange, label, encrypted_credentials, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.Exchange, c.Label, encrypted, FormatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert exchange connection: %w", err)
	}
	return nil
}

// GetConnection retrieves a single exchange connection.
func (s *ConnectionRepository) GetConnection(ctx context.Context, id string) (*model.ExchangeConnection, error) {
	var c model.ExchangeConnection
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, exchange, label, encrypted_credentials, created_at
		FROM exchange_connection WHERE id = ?
	`, id).Scan(&c.ID, &c.Exchange, &c.Label, &c.EncryptedCredentials, &createdAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan exchange connection: %w", err)
	}
	if c.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	return &c, nil
}

// GetConnections retrieves the named exchange connections.
func (s *ConnectionRepository) GetConnections(ctx context.Context, ids []string) ([]model.ExchangeConnection, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, exchange, label, encrypted_credentials, created_at
		FROM exchange_connection
		WHERE id IN (`+placeholders(len(ids))+`)
		ORDER BY id ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchange connections: %w", err)
	}
	defer rows.Close()

	var connections []model.ExchangeConnection
	for rows.Next() {
		var c model.ExchangeConnection
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Exchange, &c.Label, &c.EncryptedCredentials, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan exchange connection: %w", err)
		}
		if c.CreatedAt, err = ParseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		connections = append(connections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating exchange connections: %w", err)
	}
	return connections, nil
}

// AddDepositAddress records one address from an exchange's deposit-address
// history. Duplicate addresses for a connection are ignored.
func (s *ConnectionRepository) AddDepositAddress(ctx context.Context, a model.DepositAddress) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO exchange_deposit_address (connection_id, address, asset)
		VALUES (?, ?, ?)
	`, a.ConnectionID, a.Address, a.Asset)
	if err != nil {
		return fmt.Errorf("failed to insert deposit address: %w", err)
	}
	return nil
}

// GetDepositAddresses returns address -> connection id for the given
// connections. The linker derives exchange-directed classifications from
// this map.
func (s *ConnectionRepository) GetDepositAddresses(ctx context.Context, connectionIDs []string) (map[string]string, error) {
	result := make(map[string]string)
	if len(connectionIDs) == 0 {
		return result, nil
	}
	args := make([]any, len(connectionIDs))
	for i, id := range connectionIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT connection_id, address
		FROM exchange_deposit_address
		WHERE connection_id IN (`+placeholders(len(connectionIDs))+`)
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deposit addresses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var connectionID, address string
		if err := rows.Scan(&connectionID, &address); err != nil {
			return nil, fmt.Errorf("failed to scan deposit address: %w", err)
		}
		result[address] = connectionID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deposit addresses: %w", err)
	}
	return result, nil
}
