package model

import "time"

// CostBasisMethod selects the lot depletion order for disposal matching.
type CostBasisMethod string

const (
	MethodFIFO       CostBasisMethod = "FIFO"
	MethodLIFO       CostBasisMethod = "LIFO"
	MethodHIFO       CostBasisMethod = "HIFO"
	MethodSpecificID CostBasisMethod = "SPECIFIC_ID"
	MethodAverage    CostBasisMethod = "AVERAGE"
)

// ValidCostBasisMethods contains the allowed accounting methods.
var ValidCostBasisMethods = map[CostBasisMethod]bool{
	MethodFIFO: true, MethodLIFO: true, MethodHIFO: true,
	MethodSpecificID: true, MethodAverage: true,
}

// AuditStatus is the audit run lifecycle state.
type AuditStatus string

const (
	StatusPending          AuditStatus = "PENDING"
	StatusQueued           AuditStatus = "QUEUED"
	StatusProcessing       AuditStatus = "PROCESSING"
	StatusAnalyzing        AuditStatus = "ANALYZING"
	StatusGeneratingReport AuditStatus = "GENERATING_REPORT"
	StatusCompleted        AuditStatus = "COMPLETED"
	StatusFailed           AuditStatus = "FAILED"
	StatusCancelled        AuditStatus = "CANCELLED"
)

// statusRank orders the forward path of the lifecycle. FAILED and CANCELLED
// are terminal branches reachable from any pre-COMPLETED state.
var statusRank = map[AuditStatus]int{
	StatusPending:          0,
	StatusQueued:           1,
	StatusProcessing:       2,
	StatusAnalyzing:        3,
	StatusGeneratingReport: 4,
	StatusCompleted:        5,
}

// IsTerminal reports whether no further transitions are allowed.
func (s AuditStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step: strictly forward along the happy path, or a jump to FAILED/CANCELLED
// from any non-terminal state.
func (s AuditStatus) CanTransition(next AuditStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusFailed || next == StatusCancelled {
		return true
	}
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// AuditOptions are the recognized per-run configuration knobs. The include
// flags gate which transaction types feed income and cost-basis computation.
type AuditOptions struct {
	CostBasisMethod CostBasisMethod `json:"costBasisMethod"`
	IncludeStaking  bool            `json:"includeStaking"`
	IncludeAirdrops bool            `json:"includeAirdrops"`
	IncludeNFTs     bool            `json:"includeNfts"`
	IncludeDeFi     bool            `json:"includeDefi"`
	IncludeFees     bool            `json:"includeFees"`
	Currency        string          `json:"currency"`
	// SpecificLots maps a disposal transaction ID to the lot it should
	// consume first. Only consulted under SPECIFIC_ID.
	SpecificLots map[string]string `json:"specificLots,omitempty"`
}

// DefaultAuditOptions returns the documented defaults: FIFO, USD, everything
// included.
func DefaultAuditOptions() AuditOptions {
	return AuditOptions{
		CostBasisMethod: MethodFIFO,
		IncludeStaking:  true,
		IncludeAirdrops: true,
		IncludeNFTs:     true,
		IncludeDeFi:     true,
		IncludeFees:     true,
		Currency:        "USD",
	}
}

// Audit is the persisted lifecycle record of one audit run request.
type Audit struct {
	ID            string       `json:"id"`
	WalletIDs     []string     `json:"walletIds"`
	ConnectionIDs []string     `json:"connectionIds"`
	Jurisdiction  Jurisdiction `json:"jurisdiction"`
	TaxYear       int          `json:"taxYear"`
	Options       AuditOptions `json:"options"`
	Status        AuditStatus  `json:"status"`
	Progress      int          `json:"progress"`
	ErrorMessage  string       `json:"errorMessage,omitempty"`
	Result        *AuditResult `json:"result,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
	CompletedAt   *time.Time   `json:"completedAt,omitempty"`
}
