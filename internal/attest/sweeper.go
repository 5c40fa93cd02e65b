package attest

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/repository"
)

// Sweeper periodically retries pending anchor hand-offs and expires active
// attestations past their validity window. It is the only writer of
// attestation status outside explicit revocation.
type Sweeper struct {
	attestationRepo *repository.AttestationRepository
	anchor          *AnchorClient
	schedule        string
	cron            *cron.Cron
}

// NewSweeper creates a sweeper on the given cron schedule.
func NewSweeper(attestationRepo *repository.AttestationRepository, anchor *AnchorClient, schedule string) *Sweeper {
	return &Sweeper{
		attestationRepo: attestationRepo,
		anchor:          anchor,
		schedule:        schedule,
		cron:            cron.New(),
	}
}

// Start schedules the sweep and runs one immediately so restarts don't defer
// pending hand-offs by a full interval.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	go s.Sweep(ctx)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep performs one pass: submit pending attestations, then expire overdue
// active ones. Failures are logged and retried on the next pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	s.submitPending(ctx)
	s.expireOverdue(ctx)
}

func (s *Sweeper) submitPending(ctx context.Context) {
	if !s.anchor.Enabled() {
		return
	}

	pending, err := s.attestationRepo.ListPending(ctx)
	if err != nil {
		log.Printf("Attestation sweep: failed to list pending: %v", err)
		return
	}

	for _, attestation := range pending {
		if ctx.Err() != nil {
			return
		}
		if err := s.attestationRepo.RecordAttempt(ctx, attestation.ID); err != nil {
			log.Printf("Attestation sweep: failed to record attempt for %s: %v", attestation.ID, err)
		}

		ref, err := s.anchor.Submit(ctx, attestation)
		if err != nil {
			log.Printf("Attestation sweep: hand-off of %s failed: %v", attestation.ID, err)
			continue
		}

		if err := s.attestationRepo.MarkActive(ctx, attestation.ID, ref, time.Now().UTC()); err != nil {
			log.Printf("Attestation sweep: failed to activate %s: %v", attestation.ID, err)
			continue
		}
		log.Printf("Attestation %s anchored as %s", attestation.ID, ref)
	}
}

func (s *Sweeper) expireOverdue(ctx context.Context) {
	expired, err := s.attestationRepo.ExpireOverdue(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("Attestation sweep: failed to expire overdue: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("Attestation sweep: expired %d attestation(s)", expired)
	}
}
