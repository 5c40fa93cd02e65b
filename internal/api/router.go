package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/api/handlers"
	custommiddleware "github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/api/middleware"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/config"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/service"
)

// NewRouter creates and configures the HTTP router
func NewRouter(
	systemService *service.SystemService,
	ingestService *service.IngestService,
	auditService *service.AuditService,
	cfg *config.Config,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(custommiddleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS middleware
	corsMiddleware := custommiddleware.NewCORS(cfg.CORS.AllowedOrigins)
	r.Use(corsMiddleware.Handler)

	// API routes
	r.Route("/api", func(r chi.Router) {
		// System namespace
		r.Route("/system", func(r chi.Router) {
			systemHandler := handlers.NewSystemHandler(systemService)
			r.Get("/health", systemHandler.Health)
			r.Get("/version", systemHandler.Version)
		})

		ingestHandler := handlers.NewIngestHandler(ingestService)
		r.Post("/wallet", ingestHandler.CreateWallet)
		r.Route("/connection", func(r chi.Router) {
			r.Post("/", ingestHandler.CreateConnection)
			r.Route("/{uuid}", func(r chi.Router) {
				r.Use(custommiddleware.ValidateUUIDMiddleware)
				r.Post("/address", ingestHandler.AddDepositAddress)
			})
		})
		r.Post("/transaction/import", ingestHandler.ImportTransactions)

		r.Route("/audit", func(r chi.Router) {
			auditHandler := handlers.NewAuditHandler(auditService, cfg.Audit)
			r.Post("/", auditHandler.CreateAudit)
			r.Route("/{uuid}", func(r chi.Router) {
				r.Use(custommiddleware.ValidateUUIDMiddleware)
				r.Get("/", auditHandler.GetAudit)
				r.Delete("/", auditHandler.CancelAudit)
				r.Get("/attestation", auditHandler.GetAttestation)
			})
		})
	})

	return r
}
