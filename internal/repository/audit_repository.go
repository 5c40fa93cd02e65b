package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/apperrors"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
)

// AuditRepository provides data access methods for the audit lifecycle table.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new AuditRepository with the provided database connection.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// CreateAudit persists a new audit request in PENDING state.
func (s *AuditRepository) CreateAudit(ctx context.Context, a *model.Audit) error {
	walletIDs, err := json.Marshal(a.WalletIDs)
	if err != nil {
		return fmt.Errorf("failed to encode wallet ids: %w", err)
	}
	connectionIDs, err := json.Marshal(a.ConnectionIDs)
	if err != nil {
		return fmt.Errorf("failed to encode connection ids: %w", err)
	}
	options, err := json.Marshal(a.Options)
	if err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit
			(id, wallet_ids, connection_ids, jurisdiction, tax_year, options,
			 status, progress, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID, string(walletIDs), string(connectionIDs), string(a.Jurisdiction),
		a.TaxYear, string(options), string(a.Status), a.Progress, a.ErrorMessage,
		FormatTime(a.CreatedAt),
		FormatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit: %w", err)
	}
	return nil
}

// GetAudit retrieves an audit by ID, including its result when present.
func (s *AuditRepository) GetAudit(ctx context.Context, id string) (*model.Audit, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, wallet_ids, connection_ids, jurisdiction, tax_year, options,
		       status, progress, error_message, result, created_at, updated_at, completed_at
		FROM audit
		WHERE id = ?
	`, id)

	var a model.Audit
	var walletIDs, connectionIDs, options string
	var result, completedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&a.ID, &walletIDs, &connectionIDs, &a.Jurisdiction, &a.TaxYear, &options,
		&a.Status, &a.Progress, &a.ErrorMessage, &result, &createdAt, &updatedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrAuditNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit: %w", err)
	}

	if err := json.Unmarshal([]byte(walletIDs), &a.WalletIDs); err != nil {
		return nil, fmt.Errorf("failed to decode wallet ids: %w", err)
	}
	if err := json.Unmarshal([]byte(connectionIDs), &a.ConnectionIDs); err != nil {
		return nil, fmt.Errorf("failed to decode connection ids: %w", err)
	}
	if err := json.Unmarshal([]byte(options), &a.Options); err != nil {
		return nil, fmt.Errorf("failed to decode options: %w", err)
	}
	if result.Valid {
		a.Result = &model.AuditResult{}
		if err := json.Unmarshal([]byte(result.String), a.Result); err != nil {
			return nil, fmt.Errorf("failed to decode audit result: %w", err)
		}
	}
	if a.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if a.UpdatedAt, err = ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	if a.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return nil, fmt.Errorf("failed to parse completed_at: %w", err)
	}

	return &a, nil
}

// UpdateStatus transitions an audit to a new lifecycle state. The update is
// guarded on the stored status still permitting the transition, so stale
// writers lose.
func (s *AuditRepository) UpdateStatus(ctx context.Context, id string, next model.AuditStatus) error {
	current, err := s.getStatus(ctx, id)
	if err != nil {
		return err
	}
	if !current.CanTransition(next) {
		return apperrors.ErrInvalidStatusTransition
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE audit SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, string(next), FormatTime(time.Now()), id, string(current))
	if err != nil {
		return fmt.Errorf("failed to update audit status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read status update result: %w", err)
	}
	if affected != 1 {
		return apperrors.ErrInvalidStatusTransition
	}
	return nil
}

// UpdateProgress advances the reported progress percentage. Progress is
// monotonic: the stored value never regresses, even under retry.
func (s *AuditRepository) UpdateProgress(ctx context.Context, id string, progress int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE audit SET progress = MAX(progress, ?), updated_at = ? WHERE id = ?
	`, progress, FormatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update audit progress: %w", err)
	}
	return nil
}

// SaveResult attaches the result document and moves the audit to COMPLETED
// in one update.
func (s *AuditRepository) SaveResult(ctx context.Context, id string, result *model.AuditResult) error {
	encoded, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode audit result: %w", err)
	}

	now := FormatTime(time.Now())
	_, err = s.db.ExecContext(ctx, `
		UPDATE audit
		SET status = ?, progress = 100, result = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`, string(model.StatusCompleted), string(encoded), now, now, id)
	if err != nil {
		return fmt.Errorf("failed to persist audit result: %w", err)
	}
	return nil
}

// SetFailed marks the audit FAILED with a human-readable message. The
// result column is left untouched: a failed run never carries a partial
// result.
func (s *AuditRepository) SetFailed(ctx context.Context, id, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE audit SET status = ?, error_message = ?, updated_at = ? WHERE id = ?
	`, string(model.StatusFailed), message, FormatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to mark audit failed: %w", err)
	}
	return nil
}

// HasInFlight reports whether the audit is currently queued or running.
func (s *AuditRepository) HasInFlight(ctx context.Context, id string) (bool, error) {
	status, err := s.getStatus(ctx, id)
	if err != nil {
		return false, err
	}
	switch status {
	case model.StatusQueued, model.StatusProcessing, model.StatusAnalyzing, model.StatusGeneratingReport:
		return true, nil
	}
	return false, nil
}

func (s *AuditRepository) getStatus(ctx context.Context, id string) (model.AuditStatus, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM audit WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", apperrors.ErrAuditNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query audit status: %w", err)
	}
	return model.AuditStatus(status), nil
}

// ListByStatus returns audit IDs currently in any of the given states,
// oldest first.
func (s *AuditRepository) ListByStatus(ctx context.Context, statuses ...model.AuditStatus) ([]string, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM audit
		WHERE status IN (`+placeholders(len(statuses))+`)
		ORDER BY created_at ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audits by status: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan audit id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audits: %w", err)
	}
	return ids, nil
}
