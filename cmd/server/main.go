package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/api"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/attest"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/config"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/database"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/repository"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/secrets"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/service"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Open database connection and apply migrations
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Printf("Connected to database: %s", cfg.Database.Path)

	vault, err := secrets.NewVault(cfg.Secrets.FernetKey)
	if err != nil {
		log.Fatalf("Failed to initialize credential vault: %v", err)
	}

	// Create repositories
	transactionRepo := repository.NewTransactionRepository(db)
	walletRepo := repository.NewWalletRepository(db)
	connectionRepo := repository.NewConnectionRepository(db, vault)
	auditRepo := repository.NewAuditRepository(db)
	attestationRepo := repository.NewAttestationRepository(db)

	// Create services
	systemService := service.NewSystemService(db)
	ingestService := service.NewIngestService(
		transactionRepo,
		walletRepo,
		connectionRepo,
	)
	linkerService := service.NewLinkerService(
		transactionRepo,
		connectionRepo,
		cfg.Linker.WindowHours,
		cfg.Linker.TolerancePct,
	)
	auditService := service.NewAuditService(
		auditRepo,
		transactionRepo,
		connectionRepo,
		attestationRepo,
		linkerService,
		cfg.Attestation.ValidityDays,
	)

	// Worker pool running the audits
	pool := worker.NewPool(auditService, cfg.Worker.PoolSize, cfg.Worker.MaxRetries, cfg.Worker.BackoffBase)
	auditService.AttachQueue(pool)

	// re-enqueue audits stranded mid-run by a previous shutdown
	stranded, err := auditRepo.ListByStatus(context.Background(),
		model.StatusQueued, model.StatusProcessing, model.StatusAnalyzing, model.StatusGeneratingReport)
	if err != nil {
		log.Printf("Failed to list unfinished audits: %v", err)
	}
	for _, id := range stranded {
		log.Printf("Re-enqueueing unfinished audit %s", id)
		if err := pool.Enqueue(id); err != nil {
			log.Printf("Failed to re-enqueue audit %s: %v", id, err)
		}
	}

	poolCtx, stopPool := context.WithCancel(context.Background())
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		if err := pool.Start(poolCtx); err != nil {
			log.Printf("Worker pool stopped: %v", err)
		}
	}()

	// Attestation anchor sweep
	anchor := attest.NewAnchorClient(cfg.Attestation.AnchorURL)
	sweeper := attest.NewSweeper(attestationRepo, anchor, cfg.Attestation.SweepSchedule)
	if err := sweeper.Start(poolCtx); err != nil {
		log.Fatalf("Failed to start attestation sweeper: %v", err)
	}

	// Create router
	router := api.NewRouter(systemService, ingestService, auditService, cfg)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting server on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	sweeper.Stop()
	stopPool()
	<-poolDone

	log.Println("Server exited")
}
