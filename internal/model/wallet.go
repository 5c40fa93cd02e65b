package model

import "time"

// Wallet is a tracked on-chain address whose transfer history feeds audits.
type Wallet struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	Chain     string    `json:"chain"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// ExchangeConnection is a linked centralized-exchange account. API
// credentials are encrypted at rest; the engine itself never decrypts them —
// ingestion connectors do.
type ExchangeConnection struct {
	ID                   string    `json:"id"`
	Exchange             string    `json:"exchange"`
	Label                string    `json:"label,omitempty"`
	EncryptedCredentials string    `json:"-"`
	CreatedAt            time.Time `json:"createdAt,omitempty"`
}

// DepositAddress is one address from an exchange's own deposit-address
// history. The linker uses these to classify exchange-directed on-chain
// sends even when the counterpart exchange record was truncated.
type DepositAddress struct {
	ConnectionID string `json:"connectionId"`
	Address      string `json:"address"`
	Asset        string `json:"asset,omitempty"`
}
