package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/api/request"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/api/response"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/apperrors"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/config"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/service"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/validation"
)

// AuditHandler handles HTTP requests for audit endpoints. It serves as the
// HTTP layer adapter, parsing requests and delegating to the auditService;
// the actual computation always happens on the worker pool.
type AuditHandler struct {
	auditService *service.AuditService
	defaults     config.AuditConfig
}

// NewAuditHandler creates a new AuditHandler with the provided service
// dependency. The configured defaults fill in whatever the request's options
// leave unset.
func NewAuditHandler(auditService *service.AuditService, defaults config.AuditConfig) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
		defaults:     defaults,
	}
}

// CreateAuditResponse acknowledges an accepted audit request.
type CreateAuditResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateAudit handles POST requests to start a new audit run.
// Validates the request, persists the audit record, and queues it.
//
// Endpoint: POST /api/audit
// Request Body: CreateAuditRequest (walletIds, connectionIds, jurisdiction, taxYear, options)
// Response: 202 Accepted with CreateAuditResponse
// Error: 400 Bad Request if validation fails or request body is invalid
// Error: 409 Conflict if the audit is already queued or running
// Error: 500 Internal Server Error if the audit cannot be queued
func (h *AuditHandler) CreateAudit(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[request.CreateAuditRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := validation.ValidateCreateAudit(req); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			response.RespondValidationError(w, verr.Fields)
			return
		}
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	audit := &model.Audit{
		WalletIDs:     req.WalletIDs,
		ConnectionIDs: req.ConnectionIDs,
		Jurisdiction:  model.Jurisdiction(req.Jurisdiction),
		TaxYear:       req.TaxYear,
		Options:       h.auditOptions(req.Options),
	}

	if err := h.auditService.StartAudit(r.Context(), audit); err != nil {
		if errors.Is(err, apperrors.ErrAuditInFlight) {
			response.RespondError(w, http.StatusConflict, apperrors.ErrAuditInFlight.Error(), "")
			return
		}
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToEnqueueAudit.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusAccepted, CreateAuditResponse{
		ID:     audit.ID,
		Status: string(audit.Status),
	})
}

// GetAudit handles GET requests to retrieve an audit's lifecycle state and,
// once completed, its result document.
//
// Endpoint: GET /api/audit/{uuid}
// Response: 200 OK with Audit
// Error: 400 Bad Request if the audit ID is invalid (validated by middleware)
// Error: 404 Not Found if the audit does not exist
// Error: 500 Internal Server Error if retrieval fails
func (h *AuditHandler) GetAudit(w http.ResponseWriter, r *http.Request) {
	auditID := chi.URLParam(r, "uuid")

	audit, err := h.auditService.GetAudit(r.Context(), auditID)
	if err != nil {
		if errors.Is(err, apperrors.ErrAuditNotFound) {
			response.RespondError(w, http.StatusNotFound, apperrors.ErrAuditNotFound.Error(), "")
			return
		}
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToRetrieveAudit.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, audit)
}

// CancelAudit handles DELETE requests to cancel a queued audit. An audit
// already processing runs to completion.
//
// Endpoint: DELETE /api/audit/{uuid}
// Response: 204 No Content
// Error: 400 Bad Request if the audit ID is invalid (validated by middleware)
// Error: 404 Not Found if the audit does not exist
// Error: 409 Conflict if the audit can no longer be cancelled
func (h *AuditHandler) CancelAudit(w http.ResponseWriter, r *http.Request) {
	auditID := chi.URLParam(r, "uuid")

	err := h.auditService.CancelAudit(r.Context(), auditID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrAuditNotFound):
			response.RespondError(w, http.StatusNotFound, apperrors.ErrAuditNotFound.Error(), "")
		case errors.Is(err, apperrors.ErrAuditNotCancellable):
			response.RespondError(w, http.StatusConflict, apperrors.ErrAuditNotCancellable.Error(), "")
		default:
			response.RespondError(w, http.StatusInternalServerError, "failed to cancel audit", err.Error())
		}
		return
	}

	response.RespondJSON(w, http.StatusNoContent, nil)
}

// GetAttestation handles GET requests to retrieve the attestation hand-off
// record of a completed audit.
//
// Endpoint: GET /api/audit/{uuid}/attestation
// Response: 200 OK with Attestation
// Error: 400 Bad Request if the audit ID is invalid (validated by middleware)
// Error: 404 Not Found if the audit or its attestation does not exist
// Error: 500 Internal Server Error if retrieval fails
func (h *AuditHandler) GetAttestation(w http.ResponseWriter, r *http.Request) {
	auditID := chi.URLParam(r, "uuid")

	attestation, err := h.auditService.GetAttestation(r.Context(), auditID)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrAuditNotFound):
			response.RespondError(w, http.StatusNotFound, apperrors.ErrAuditNotFound.Error(), "")
		case errors.Is(err, apperrors.ErrAttestationNotFound):
			response.RespondError(w, http.StatusNotFound, apperrors.ErrAttestationNotFound.Error(), "")
		default:
			response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToRetrieveAttestation.Error(), err.Error())
		}
		return
	}

	response.RespondJSON(w, http.StatusOK, attestation)
}

// auditOptions merges the request's optional overrides over the configured
// defaults. An unrecognized configured method is ignored rather than passed
// through, so a bad environment value cannot reach the engine.
func (h *AuditHandler) auditOptions(req *request.AuditOptionsRequest) model.AuditOptions {
	opts := model.DefaultAuditOptions()
	if method := model.CostBasisMethod(h.defaults.DefaultMethod); model.ValidCostBasisMethods[method] {
		opts.CostBasisMethod = method
	}
	if h.defaults.DefaultCurrency != "" {
		opts.Currency = h.defaults.DefaultCurrency
	}
	if req == nil {
		return opts
	}
	if req.CostBasisMethod != nil {
		opts.CostBasisMethod = model.CostBasisMethod(*req.CostBasisMethod)
	}
	if req.IncludeStaking != nil {
		opts.IncludeStaking = *req.IncludeStaking
	}
	if req.IncludeAirdrops != nil {
		opts.IncludeAirdrops = *req.IncludeAirdrops
	}
	if req.IncludeNFTs != nil {
		opts.IncludeNFTs = *req.IncludeNFTs
	}
	if req.IncludeDeFi != nil {
		opts.IncludeDeFi = *req.IncludeDeFi
	}
	if req.IncludeFees != nil {
		opts.IncludeFees = *req.IncludeFees
	}
	if req.Currency != nil {
		opts.Currency = *req.Currency
	}
	if len(req.SpecificLots) > 0 {
		opts.SpecificLots = req.SpecificLots
	}
	return opts
}
