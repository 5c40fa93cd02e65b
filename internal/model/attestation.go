package model

import "time"

// AttestationStatus mirrors the status machine of the on-chain attestation
// program: Pending -> Active -> {Expired, Revoked}, Pending -> Revoked.
type AttestationStatus string

const (
	AttestationPending AttestationStatus = "PENDING"
	AttestationActive  AttestationStatus = "ACTIVE"
	AttestationExpired AttestationStatus = "EXPIRED"
	AttestationRevoked AttestationStatus = "REVOKED"
)

// CanTransition reports whether the status change is legal.
func (s AttestationStatus) CanTransition(next AttestationStatus) bool {
	switch {
	case s == AttestationPending && next == AttestationActive:
		return true
	case s == AttestationActive && next == AttestationExpired:
		return true
	case s == AttestationActive && next == AttestationRevoked:
		return true
	case s == AttestationPending && next == AttestationRevoked:
		return true
	}
	return false
}

// Attestation records the hand-off of an audit result hash to the external
// anchor. It is a best-effort side effect: its failure never rolls back or
// fails the tax computation that produced the hash.
type Attestation struct {
	ID           string            `json:"id"`
	AuditID      string            `json:"auditId"`
	AuditHash    string            `json:"auditHash"` // hex sha256, 32 bytes
	Jurisdiction Jurisdiction      `json:"jurisdiction"`
	TaxYear      int               `json:"taxYear"`
	Status       AttestationStatus `json:"status"`
	AnchorRef    string            `json:"anchorRef,omitempty"`
	Attempts     int               `json:"attempts"`
	IssuedAt     *time.Time        `json:"issuedAt,omitempty"`
	ExpiresAt    time.Time         `json:"expiresAt"`
	RevokedAt    *time.Time        `json:"revokedAt,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}
