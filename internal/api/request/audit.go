package request

// AuditOptionsRequest carries optional per-run configuration. Nil fields fall
// back to the engine defaults.
type AuditOptionsRequest struct {
	CostBasisMethod *string           `json:"costBasisMethod,omitempty"`
	IncludeStaking  *bool             `json:"includeStaking,omitempty"`
	IncludeAirdrops *bool             `json:"includeAirdrops,omitempty"`
	IncludeNFTs     *bool             `json:"includeNfts,omitempty"`
	IncludeDeFi     *bool             `json:"includeDefi,omitempty"`
	IncludeFees     *bool             `json:"includeFees,omitempty"`
	Currency        *string           `json:"currency,omitempty"`
	SpecificLots    map[string]string `json:"specificLots,omitempty"`
}

// CreateAuditRequest is the body of POST /api/audit.
type CreateAuditRequest struct {
	WalletIDs     []string             `json:"walletIds"`
	ConnectionIDs []string             `json:"connectionIds"`
	Jurisdiction  string               `json:"jurisdiction"`
	TaxYear       int                  `json:"taxYear"`
	Options       *AuditOptionsRequest `json:"options,omitempty"`
}
