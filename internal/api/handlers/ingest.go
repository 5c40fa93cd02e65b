package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/api/request"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/api/response"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/apperrors"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/normalize"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/service"
)

// IngestHandler handles HTTP requests for the write path: wallets, exchange
// connections, and raw record import.
type IngestHandler struct {
	ingestService *service.IngestService
}

// NewIngestHandler creates a new IngestHandler with the provided service dependency.
func NewIngestHandler(ingestService *service.IngestService) *IngestHandler {
	return &IngestHandler{
		ingestService: ingestService,
	}
}

// CreateWallet handles POST requests to register an on-chain wallet.
//
// Endpoint: POST /api/wallet
// Response: 201 Created with Wallet
// Error: 400 Bad Request if required fields are missing
// Error: 500 Internal Server Error if creation fails
func (h *IngestHandler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[request.CreateWalletRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Address) == "" || strings.TrimSpace(req.Chain) == "" {
		response.RespondError(w, http.StatusBadRequest, "validation failed", "address and chain are required")
		return
	}

	wallet, err := h.ingestService.CreateWallet(r.Context(), req.Address, req.Chain, req.Label)
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, "failed to create wallet", err.Error())
		return
	}

	response.RespondJSON(w, http.StatusCreated, wallet)
}

// CreateConnection handles POST requests to register an exchange connection.
// Credentials are encrypted at rest and never returned.
//
// Endpoint: POST /api/connection
// Response: 201 Created with ExchangeConnection
// Error: 400 Bad Request if required fields are missing
// Error: 500 Internal Server Error if creation fails
func (h *IngestHandler) CreateConnection(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[request.CreateConnectionRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Exchange) == "" {
		response.RespondError(w, http.StatusBadRequest, "validation failed", "exchange is required")
		return
	}

	connection, err := h.ingestService.CreateConnection(r.Context(), req.Exchange, req.Label, req.APIKey, req.APISecret)
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, "failed to create connection", err.Error())
		return
	}

	response.RespondJSON(w, http.StatusCreated, connection)
}

// AddDepositAddress handles POST requests to record a known deposit address
// of an exchange connection.
//
// Endpoint: POST /api/connection/{uuid}/address
// Response: 204 No Content
// Error: 400 Bad Request if the connection ID is invalid (validated by middleware)
// Error: 404 Not Found if the connection does not exist
// Error: 500 Internal Server Error if recording fails
func (h *IngestHandler) AddDepositAddress(w http.ResponseWriter, r *http.Request) {
	connectionID := chi.URLParam(r, "uuid")

	req, err := parseJSON[request.AddDepositAddressRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		response.RespondError(w, http.StatusBadRequest, "validation failed", "address is required")
		return
	}

	if err := h.ingestService.AddDepositAddress(r.Context(), connectionID, req.Address, req.Asset); err != nil {
		if errors.Is(err, apperrors.ErrConnectionNotFound) {
			response.RespondError(w, http.StatusNotFound, apperrors.ErrConnectionNotFound.Error(), "")
			return
		}
		response.RespondError(w, http.StatusInternalServerError, "failed to add deposit address", err.Error())
		return
	}

	response.RespondJSON(w, http.StatusNoContent, nil)
}

// ImportResponse reports how many transactions an import batch produced.
type ImportResponse struct {
	Imported int `json:"imported"`
}

// ImportTransactions handles POST requests to ingest a batch of raw provider
// records through the normalizer.
//
// Endpoint: POST /api/transaction/import
// Request Body: ImportRequest (chainTransfers, exchangeTrades, ...)
// Response: 201 Created with ImportResponse
// Error: 400 Bad Request if any record fails normalization; the error names
// the offending record shape and field
// Error: 500 Internal Server Error if persistence fails mid-batch
func (h *IngestHandler) ImportTransactions(w http.ResponseWriter, r *http.Request) {
	req, err := parseJSON[request.ImportRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	records := req.Records()
	if len(records) == 0 {
		response.RespondError(w, http.StatusBadRequest, "validation failed", "import batch is empty")
		return
	}

	imported, err := h.ingestService.ImportRecords(r.Context(), records)
	if err != nil {
		var parseErr *normalize.ParseError
		if errors.As(err, &parseErr) {
			response.RespondError(w, http.StatusBadRequest, apperrors.ErrMalformedRecord.Error(), parseErr.Error())
			return
		}
		response.RespondError(w, http.StatusInternalServerError, "failed to import transactions", err.Error())
		return
	}

	response.RespondJSON(w, http.StatusCreated, ImportResponse{Imported: imported})
}
