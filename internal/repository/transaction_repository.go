package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/apperrors"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
)

// TransactionRepository provides data access methods for the canonical
// transaction and flow tables.
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository creates a new TransactionRepository with the provided database connection.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// InsertTransaction persists a canonical transaction and its flows in one
// database transaction.
func (s *TransactionRepository) InsertTransaction(ctx context.Context, t *model.Transaction) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	if err := insertInTx(ctx, dbTx, t); err != nil {
		return err
	}
	return dbTx.Commit()
}

// InsertTransactions persists a batch of transactions atomically: either
// every record lands or none does, so an infrastructure failure partway
// through an import cannot leave a partial batch behind.
func (s *TransactionRepository) InsertTransactions(ctx context.Context, transactions []model.Transaction) error {
	if len(transactions) == 0 {
		return nil
	}

	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	for i := range transactions {
		if err := insertInTx(ctx, dbTx, &transactions[i]); err != nil {
			return err
		}
	}
	return dbTx.Commit()
}

func insertInTx(ctx context.Context, dbTx *sql.Tx, t *model.Transaction) error {
	_, err := dbTx.ExecContext(ctx, `
		INSERT INTO "transaction"
			(id, wallet_id, connection_id, provenance, type, category, timestamp,
			 external_ref, counterparty, linked_transaction_id, settlement_total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID,
		nullable(t.WalletID),
		nullable(t.ConnectionID),
		string(t.Provenance),
		string(t.Type),
		string(t.Category),
		FormatTime(t.Timestamp),
		t.ExternalRef,
		t.Counterparty,
		t.LinkedTransactionID,
		nullDecimalString(t.SettlementTotal),
		FormatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	for _, f := range t.Flows {
		_, err = dbTx.ExecContext(ctx, `
			INSERT INTO flow (id, transaction_id, asset, amount, direction, value, is_fee, is_nft, unit_price)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			f.ID, t.ID, f.Asset, f.Amount.String(), string(f.Direction),
			nullDecimalString(f.Value), boolToInt(f.IsFee), boolToInt(f.IsNFT),
			nullDecimalString(f.UnitPrice),
		)
		if err != nil {
			return fmt.Errorf("failed to insert flow: %w", err)
		}
	}

	return nil
}

// GetWindow retrieves the bounded transaction window for an audit run:
// full wallet history up to the window end, and exchange records from
// exchangeSince (trailing years that may predate wallet history) up to the
// window end. Transactions are sorted by timestamp then id so the engine's
// chronological walk has a stable, deterministic order.
func (s *TransactionRepository) GetWindow(ctx context.Context, walletIDs, connectionIDs []string, exchangeSince, end time.Time) ([]*model.Transaction, error) {
	if len(walletIDs) == 0 && len(connectionIDs) == 0 {
		return nil, nil
	}

	var clauses []string
	var args []any
	if len(walletIDs) > 0 {
		clauses = append(clauses, `(wallet_id IN (`+placeholders(len(walletIDs))+`))`)
		for _, id := range walletIDs {
			args = append(args, id)
		}
	}
	if len(connectionIDs) > 0 {
		clauses = append(clauses, `(connection_id IN (`+placeholders(len(connectionIDs))+`) AND timestamp >= ?)`)
		for _, id := range connectionIDs {
			args = append(args, id)
		}
		args = append(args, FormatTime(exchangeSince))
	}

	query := `
		SELECT id, wallet_id, connection_id, provenance, type, category, timestamp,
		       external_ref, counterparty, linked_transaction_id, settlement_total, created_at
		FROM "transaction"
		WHERE (` + strings.Join(clauses, " OR ") + `)
		AND timestamp <= ?
		ORDER BY timestamp ASC, id ASC
	`
	args = append(args, FormatTime(end))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction table: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	index := make(map[string]*model.Transaction)

	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
		index[t.ID] = t
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction table: %w", err)
	}

	if err := s.attachFlows(ctx, index); err != nil {
		return nil, err
	}

	return transactions, nil
}

// GetTransaction retrieves a single transaction with its flows.
func (s *TransactionRepository) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, wallet_id, connection_id, provenance, type, category, timestamp,
		       external_ref, counterparty, linked_transaction_id, settlement_total, created_at
		FROM "transaction"
		WHERE id = ?
	`, id)

	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.attachFlows(ctx, map[string]*model.Transaction{t.ID: t}); err != nil {
		return nil, err
	}
	return t, nil
}

// LinkPair writes a symmetric, permanent link between two transactions and
// sets the derived category on both sides. The update is atomic and guarded
// on both sides being unlinked, so two concurrent link attempts on the same
// pair cannot both succeed.
func (s *TransactionRepository) LinkPair(ctx context.Context, aID, bID string, aCategory, bCategory model.Category) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback()

	res, err := dbTx.ExecContext(ctx, `
		UPDATE "transaction"
		SET linked_transaction_id = ?, category = ?
		WHERE id = ? AND linked_transaction_id = ''
		AND (SELECT linked_transaction_id FROM "transaction" WHERE id = ?) = ''
	`, bID, string(aCategory), aID, bID)
	if err != nil {
		return fmt.Errorf("failed to link transaction: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read link result: %w", err)
	}
	if affected != 1 {
		return apperrors.ErrAlreadyLinked
	}

	res, err = dbTx.ExecContext(ctx, `
		UPDATE "transaction"
		SET linked_transaction_id = ?, category = ?
		WHERE id = ? AND linked_transaction_id = ''
	`, aID, string(bCategory), bID)
	if err != nil {
		return fmt.Errorf("failed to link counterpart transaction: %w", err)
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read link result: %w", err)
	}
	if affected != 1 {
		return apperrors.ErrAlreadyLinked
	}

	return dbTx.Commit()
}

// SetCategory classifies an uncategorized transaction without linking it.
// Used for destination-address classification when the counterpart exchange
// record was truncated from the provider history. A transaction that already
// carries a category is left untouched.
func (s *TransactionRepository) SetCategory(ctx context.Context, id string, category model.Category) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE "transaction" SET category = ? WHERE id = ? AND category = ''
	`, string(category), id)
	if err != nil {
		return fmt.Errorf("failed to set transaction category: %w", err)
	}
	return nil
}

// attachFlows loads the flows of all indexed transactions, preserving
// insertion order via the flow id sort.
func (s *TransactionRepository) attachFlows(ctx context.Context, index map[string]*model.Transaction) error {
	if len(index) == 0 {
		return nil
	}

	ids := make([]any, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}

	query := `
		SELECT id, transaction_id, asset, amount, direction, value, is_fee, is_nft, unit_price
		FROM flow
		WHERE transaction_id IN (` + placeholders(len(ids)) + `)
		ORDER BY transaction_id ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, ids...)
	if err != nil {
		return fmt.Errorf("failed to query flow table: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f model.Flow
		var amountStr string
		var valueStr, unitPriceStr sql.NullString
		var isFee, isNFT int

		err := rows.Scan(&f.ID, &f.TransactionID, &f.Asset, &amountStr, &f.Direction, &valueStr, &isFee, &isNFT, &unitPriceStr)
		if err != nil {
			return fmt.Errorf("failed to scan flow table results: %w", err)
		}

		f.Amount, err = decimal.NewFromString(amountStr)
		if err != nil {
			return fmt.Errorf("failed to parse flow amount: %w", err)
		}
		f.Value, err = parseNullDecimal(valueStr)
		if err != nil {
			return fmt.Errorf("failed to parse flow value: %w", err)
		}
		f.UnitPrice, err = parseNullDecimal(unitPriceStr)
		if err != nil {
			return fmt.Errorf("failed to parse flow unit price: %w", err)
		}
		f.IsFee = isFee == 1
		f.IsNFT = isNFT == 1

		t := index[f.TransactionID]
		if t != nil {
			t.Flows = append(t.Flows, f)
		}
	}

	return rows.Err()
}

// rowScanner lets scanTransaction serve both Query and QueryRow paths.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var t model.Transaction
	var walletID, connectionID, settlementStr sql.NullString
	var timestampStr, createdAtStr string

	err := row.Scan(
		&t.ID, &walletID, &connectionID, &t.Provenance, &t.Type, &t.Category,
		&timestampStr, &t.ExternalRef, &t.Counterparty, &t.LinkedTransactionID,
		&settlementStr, &createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction table results: %w", err)
	}

	t.WalletID = walletID.String
	t.ConnectionID = connectionID.String
	t.Timestamp, err = ParseTime(timestampStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	t.CreatedAt, err = ParseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	t.SettlementTotal, err = parseNullDecimal(settlementStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse settlement total: %w", err)
	}

	return &t, nil
}
