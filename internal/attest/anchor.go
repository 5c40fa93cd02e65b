// Package attest hands completed audit hashes off to an external anchor and
// keeps the local attestation records in step with their lifecycle.
package attest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
)

// ErrAnchorDisabled is returned when no anchor endpoint is configured.
var ErrAnchorDisabled = errors.New("attestation anchor is not configured")

const anchorTimeout = 30 * time.Second

// AnchorClient submits attestation payloads to the configured anchor
// endpoint. An empty base URL disables submission; sweeps then leave
// attestations pending.
type AnchorClient struct {
	baseURL string
	client  *http.Client
}

// NewAnchorClient creates a client for the anchor endpoint. baseURL may be
// empty to disable anchoring.
func NewAnchorClient(baseURL string) *AnchorClient {
	return &AnchorClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: anchorTimeout},
	}
}

// Enabled reports whether an anchor endpoint is configured.
func (c *AnchorClient) Enabled() bool {
	return c.baseURL != ""
}

type anchorRequest struct {
	AttestationID string `json:"attestationId"`
	AuditHash     string `json:"auditHash"`
	Jurisdiction  string `json:"jurisdiction"`
	TaxYear       int    `json:"taxYear"`
	ExpiresAt     string `json:"expiresAt"`
}

type anchorResponse struct {
	Ref string `json:"ref"`
}

// Submit sends the attestation to the anchor and returns the anchor's
// reference for the recorded hash.
func (c *AnchorClient) Submit(ctx context.Context, a *model.Attestation) (string, error) {
	if !c.Enabled() {
		return "", ErrAnchorDisabled
	}

	body, err := json.Marshal(anchorRequest{
		AttestationID: a.ID,
		AuditHash:     a.AuditHash,
		Jurisdiction:  string(a.Jurisdiction),
		TaxYear:       a.TaxYear,
		ExpiresAt:     a.ExpiresAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode anchor request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/attestations", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build anchor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("anchor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("anchor returned status %d: %s", resp.StatusCode, payload)
	}

	var decoded anchorResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode anchor response: %w", err)
	}
	if decoded.Ref == "" {
		return "", errors.New("anchor response missing ref")
	}
	return decoded.Ref, nil
}
