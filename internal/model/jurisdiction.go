package model

// Jurisdiction is a supported tax jurisdiction code. The set mirrors the
// jurisdictions recognized by the on-chain attestation program; rule content
// lives in the taxrules package.
type Jurisdiction string

const (
	JurisdictionUS Jurisdiction = "US"
	JurisdictionEU Jurisdiction = "EU"
	JurisdictionBR Jurisdiction = "BR"
	JurisdictionUK Jurisdiction = "UK"
	JurisdictionJP Jurisdiction = "JP"
	JurisdictionAU Jurisdiction = "AU"
	JurisdictionCA Jurisdiction = "CA"
	JurisdictionCH Jurisdiction = "CH"
	JurisdictionSG Jurisdiction = "SG"
)

// ValidJurisdictions contains the allowed jurisdiction codes.
var ValidJurisdictions = map[Jurisdiction]bool{
	JurisdictionUS: true, JurisdictionEU: true, JurisdictionBR: true,
	JurisdictionUK: true, JurisdictionJP: true, JurisdictionAU: true,
	JurisdictionCA: true, JurisdictionCH: true, JurisdictionSG: true,
}

// Valid reports whether the code is a supported jurisdiction.
func (j Jurisdiction) Valid() bool {
	return ValidJurisdictions[j]
}
