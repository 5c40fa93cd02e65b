package attest_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/attest"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
)

func pendingAttestation() *model.Attestation {
	return &model.Attestation{
		ID:           "att-1",
		AuditID:      "audit-1",
		AuditHash:    "a3f1c29bd0e84716aa5540cc9f2e7b31a3f1c29bd0e84716aa5540cc9f2e7b31",
		Jurisdiction: model.JurisdictionUS,
		TaxYear:      2024,
		Status:       model.AttestationPending,
		ExpiresAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestAnchorClient_Submit(t *testing.T) {
	t.Run("submits the attestation and returns the anchor ref", func(t *testing.T) {
		var received map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("Expected POST, got %s", r.Method)
			}
			if r.URL.Path != "/attestations" {
				t.Errorf("Expected /attestations, got %s", r.URL.Path)
			}
			if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
				t.Errorf("Failed to decode anchor request: %v", err)
			}
			//nolint:errcheck // Test server response
			json.NewEncoder(w).Encode(map[string]string{"ref": "anchor-ref-42"})
		}))
		defer server.Close()

		client := attest.NewAnchorClient(server.URL)
		att := pendingAttestation()

		ref, err := client.Submit(context.Background(), att)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if ref != "anchor-ref-42" {
			t.Errorf("Expected ref 'anchor-ref-42', got '%s'", ref)
		}

		if received["attestationId"] != att.ID {
			t.Errorf("Expected attestationId %s, got %v", att.ID, received["attestationId"])
		}
		if received["auditHash"] != att.AuditHash {
			t.Errorf("Expected auditHash %s, got %v", att.AuditHash, received["auditHash"])
		}
		if received["jurisdiction"] != "US" {
			t.Errorf("Expected jurisdiction US, got %v", received["jurisdiction"])
		}
	})

	t.Run("returns an error on a non-2xx response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "anchor unavailable", http.StatusBadGateway)
		}))
		defer server.Close()

		client := attest.NewAnchorClient(server.URL)

		if _, err := client.Submit(context.Background(), pendingAttestation()); err == nil {
			t.Fatal("Expected an error for a 502 response")
		}
	})

	t.Run("returns an error when the ref is missing", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			//nolint:errcheck // Test server response
			json.NewEncoder(w).Encode(map[string]string{})
		}))
		defer server.Close()

		client := attest.NewAnchorClient(server.URL)

		if _, err := client.Submit(context.Background(), pendingAttestation()); err == nil {
			t.Fatal("Expected an error for a missing ref")
		}
	})

	t.Run("is disabled without a base URL", func(t *testing.T) {
		client := attest.NewAnchorClient("")

		if client.Enabled() {
			t.Error("Expected client to be disabled")
		}
		if _, err := client.Submit(context.Background(), pendingAttestation()); !errors.Is(err, attest.ErrAnchorDisabled) {
			t.Errorf("Expected ErrAnchorDisabled, got %v", err)
		}
	})
}
