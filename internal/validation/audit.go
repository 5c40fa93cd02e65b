package validation

import (
	"fmt"
	"time"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/api/request"
	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
)

// earliestTaxYear predates every chain and exchange in scope; anything older
// is a typo, not history.
const earliestTaxYear = 2009

// ValidateCreateAudit validates an audit creation request.
//
// Required:
//   - at least one wallet or exchange connection, all valid UUIDs
//   - jurisdiction: one of the supported codes
//   - taxYear: between 2009 and the current year
//
// Optional options are checked when present: the cost basis method must be a
// recognized accounting method, and SPECIFIC_ID designations must be keyed by
// valid UUIDs.
//
// Returns a validation Error with field-specific error messages if validation fails.
func ValidateCreateAudit(req request.CreateAuditRequest) error {
	errors := make(map[string]string)

	if len(req.WalletIDs) == 0 && len(req.ConnectionIDs) == 0 {
		errors["scope"] = "at least one wallet or exchange connection is required"
	}
	for _, id := range req.WalletIDs {
		if err := ValidateUUID(id); err != nil {
			errors["walletIds"] = err.Error()
			break
		}
	}
	for _, id := range req.ConnectionIDs {
		if err := ValidateUUID(id); err != nil {
			errors["connectionIds"] = err.Error()
			break
		}
	}

	if !model.Jurisdiction(req.Jurisdiction).Valid() {
		errors["jurisdiction"] = fmt.Sprintf("unsupported jurisdiction: %s", req.Jurisdiction)
	}

	if req.TaxYear < earliestTaxYear || req.TaxYear > time.Now().UTC().Year() {
		errors["taxYear"] = fmt.Sprintf("tax year must be between %d and the current year", earliestTaxYear)
	}

	if req.Options != nil {
		if m := req.Options.CostBasisMethod; m != nil && !model.ValidCostBasisMethods[model.CostBasisMethod(*m)] {
			errors["costBasisMethod"] = fmt.Sprintf("invalid cost basis method: %s", *m)
		}
		for txID := range req.Options.SpecificLots {
			if err := ValidateUUID(txID); err != nil {
				errors["specificLots"] = err.Error()
				break
			}
		}
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}
	return nil
}
