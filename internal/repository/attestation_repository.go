package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/apperrors"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
)

// AttestationRepository provides data access methods for attestation
// hand-off records.
type AttestationRepository struct {
	db *sql.DB
}

// NewAttestationRepository creates a new AttestationRepository with the provided database connection.
func NewAttestationRepository(db *sql.DB) *AttestationRepository {
	return &AttestationRepository{db: db}
}

// CreateAttestation persists a new attestation in PENDING state.
func (s *AttestationRepository) CreateAttestation(ctx context.Context, a *model.Attestation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attestation
			(id, audit_id, audit_hash, jurisdiction, tax_year, status, anchor_ref,
			 attempts, issued_at, expires_at, revoked_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID, a.AuditID, a.AuditHash, string(a.Jurisdiction), a.TaxYear,
		string(a.Status), a.AnchorRef, a.Attempts,
		nullableTime(a.IssuedAt),
		FormatTime(a.ExpiresAt),
		nullableTime(a.RevokedAt),
		FormatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert attestation: %w", err)
	}
	return nil
}

// GetByAuditID retrieves the attestation created for an audit.
func (s *AttestationRepository) GetByAuditID(ctx context.Context, auditID string) (*model.Attestation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, audit_id, audit_hash, jurisdiction, tax_year, status, anchor_ref,
		       attempts, issued_at, expires_at, revoked_at, created_at
		FROM attestation
		WHERE audit_id = ?
	`, auditID)
	return scanAttestation(row)
}

// ListPending returns attestations still awaiting a successful anchor
// hand-off, oldest first.
func (s *AttestationRepository) ListPending(ctx context.Context) ([]*model.Attestation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, audit_id, audit_hash, jurisdiction, tax_year, status, anchor_ref,
		       attempts, issued_at, expires_at, revoked_at, created_at
		FROM attestation
		WHERE status = ?
		ORDER BY created_at ASC
	`, string(model.AttestationPending))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending attestations: %w", err)
	}
	defer rows.Close()

	var pending []*model.Attestation
	for rows.Next() {
		a, err := scanAttestation(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attestations: %w", err)
	}
	return pending, nil
}

// MarkActive records a successful anchor hand-off.
func (s *AttestationRepository) MarkActive(ctx context.Context, id, anchorRef string, issuedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE attestation
		SET status = ?, anchor_ref = ?, issued_at = ?
		WHERE id = ? AND status = ?
	`, string(model.AttestationActive), anchorRef,
		FormatTime(issuedAt), id, string(model.AttestationPending))
	if err != nil {
		return fmt.Errorf("failed to activate attestation: %w", err)
	}
	return nil
}

// RecordAttempt bumps the hand-off attempt counter.
func (s *AttestationRepository) RecordAttempt(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE attestation SET attempts = attempts + 1 WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to record attestation attempt: %w", err)
	}
	return nil
}

// ExpireOverdue moves active attestations past their expiry to EXPIRED and
// returns how many were expired.
func (s *AttestationRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE attestation
		SET status = ?
		WHERE status = ? AND expires_at <= ?
	`, string(model.AttestationExpired), string(model.AttestationActive),
		FormatTime(now))
	if err != nil {
		return 0, fmt.Errorf("failed to expire attestations: %w", err)
	}
	return res.RowsAffected()
}

// Revoke marks an attestation revoked, recording the revocation time.
func (s *AttestationRepository) Revoke(ctx context.Context, id string, revokedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE attestation
		SET status = ?, revoked_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, string(model.AttestationRevoked),
		FormatTime(revokedAt), id,
		string(model.AttestationPending), string(model.AttestationActive))
	if err != nil {
		return fmt.Errorf("failed to revoke attestation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read revoke result: %w", err)
	}
	if affected != 1 {
		return apperrors.ErrAttestationNotFound
	}
	return nil
}

func scanAttestation(row rowScanner) (*model.Attestation, error) {
	var a model.Attestation
	var issuedAt, revokedAt sql.NullString
	var expiresAt, createdAt string

	err := row.Scan(
		&a.ID, &a.AuditID, &a.AuditHash, &a.Jurisdiction, &a.TaxYear, &a.Status,
		&a.AnchorRef, &a.Attempts, &issuedAt, &expiresAt, &revokedAt, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrAttestationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan attestation: %w", err)
	}

	if a.IssuedAt, err = parseNullTime(issuedAt); err != nil {
		return nil, fmt.Errorf("failed to parse issued_at: %w", err)
	}
	if a.ExpiresAt, err = ParseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("failed to parse expires_at: %w", err)
	}
	if a.RevokedAt, err = parseNullTime(revokedAt); err != nil {
		return nil, fmt.Errorf("failed to parse revoked_at: %w", err)
	}
	if a.CreatedAt, err = ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}

	return &a, nil
}
