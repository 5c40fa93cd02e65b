package apperrors

import "errors"

// Input errors fail an audit run immediately with a structured cause. No
// partial result is emitted for these.
var (
	// ErrUnsupportedJurisdiction indicates a jurisdiction code with no rule set.
	// Unknown codes fail fast rather than defaulting to another jurisdiction's rates.
	ErrUnsupportedJurisdiction = errors.New("unsupported jurisdiction")

	// ErrInvalidCostBasisMethod indicates an accounting method outside FIFO/LIFO/HIFO/SPECIFIC_ID/AVERAGE.
	ErrInvalidCostBasisMethod = errors.New("invalid cost basis method")

	// ErrMalformedRecord indicates a provider record that failed normalization.
	ErrMalformedRecord = errors.New("malformed provider record")

	// ErrInvalidTaxYear indicates a tax year outside the supported range.
	ErrInvalidTaxYear = errors.New("invalid tax year")

	// ErrInvalidUUID indicates that a provided ID is not a valid UUID format.
	ErrInvalidUUID = errors.New("invalid UUID format")

	// ErrEmptyScope indicates an audit request with no wallets and no exchange connections.
	ErrEmptyScope = errors.New("audit scope requires at least one wallet or exchange connection")
)

// Domain entity errors indicate that a requested resource does not exist.
var (
	// ErrAuditNotFound indicates that an audit with the given ID does not exist.
	ErrAuditNotFound = errors.New("audit not found")

	// ErrTransactionNotFound indicates that a transaction with the given ID does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrWalletNotFound indicates that a wallet with the given ID does not exist.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrConnectionNotFound indicates that an exchange connection does not exist.
	ErrConnectionNotFound = errors.New("exchange connection not found")

	// ErrAttestationNotFound indicates that no attestation exists for the audit.
	ErrAttestationNotFound = errors.New("attestation not found")
)

// Business rule errors indicate that an operation cannot be completed due to
// lifecycle or linkage constraints.
var (
	// ErrAuditInFlight indicates a second run request for an audit that is
	// already queued or processing. The request is rejected, not queued twice.
	ErrAuditInFlight = errors.New("audit already in flight")

	// ErrAuditNotCancellable indicates a cancel request after lot matching has
	// begun; a started run completes or fails, it is not interrupted.
	ErrAuditNotCancellable = errors.New("audit can no longer be cancelled")

	// ErrInvalidStatusTransition indicates an illegal audit lifecycle step.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrAlreadyLinked indicates a link attempt on a transaction that already
	// has a counterpart. Links are permanent and at most one per transaction.
	ErrAlreadyLinked = errors.New("transaction already linked")

	// ErrSpecificLotUnavailable indicates a SPECIFIC_ID designation naming an
	// exhausted or unknown lot.
	ErrSpecificLotUnavailable = errors.New("designated lot unavailable")
)

// Operation failure errors represent system-level failures when retrieving
// or processing data.
var (
	ErrFailedToRetrieveAudit        = errors.New("failed to retrieve audit")
	ErrFailedToRetrieveTransactions = errors.New("failed to retrieve transactions")
	ErrFailedToPersistResult        = errors.New("failed to persist audit result")
	ErrFailedToEnqueueAudit         = errors.New("failed to enqueue audit")
	ErrFailedToRetrieveAttestation  = errors.New("failed to retrieve attestation")
)
