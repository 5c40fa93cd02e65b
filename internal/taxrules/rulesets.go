package taxrules

import (
	"github.com/shopspring/decimal"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
)

// All currently modeled jurisdictions use the same long-term threshold: the
// holding period must exceed a full year.
const longTermThresholdDays = 366

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func upTo(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

func top() decimal.NullDecimal {
	return decimal.NullDecimal{}
}

func threshold(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(s), Valid: true}
}

// ruleSets holds the rule content per jurisdiction, expressed in the audit's
// settlement currency. Bracket figures are simplified single-filer tables.
var ruleSets = map[model.Jurisdiction]*RuleSet{
	model.JurisdictionUS: {
		Jurisdiction:          model.JurisdictionUS,
		LongTermThresholdDays: longTermThresholdDays,
		ShortTermBrackets: []Bracket{
			{UpTo: upTo("11000"), Rate: d("0.10")},
			{UpTo: upTo("44725"), Rate: d("0.12")},
			{UpTo: upTo("95375"), Rate: d("0.22")},
			{UpTo: upTo("182100"), Rate: d("0.24")},
			{UpTo: upTo("231250"), Rate: d("0.32")},
			{UpTo: upTo("578125"), Rate: d("0.35")},
			{UpTo: top(), Rate: d("0.37")},
		},
		LongTermBrackets: []Bracket{
			{UpTo: upTo("44625"), Rate: d("0")},
			{UpTo: upTo("492300"), Rate: d("0.15")},
			{UpTo: top(), Rate: d("0.20")},
		},
		IncomeBrackets: []Bracket{
			{UpTo: upTo("11000"), Rate: d("0.10")},
			{UpTo: upTo("44725"), Rate: d("0.12")},
			{UpTo: upTo("95375"), Rate: d("0.22")},
			{UpTo: upTo("182100"), Rate: d("0.24")},
			{UpTo: upTo("231250"), Rate: d("0.32")},
			{UpTo: upTo("578125"), Rate: d("0.35")},
			{UpTo: top(), Rate: d("0.37")},
		},
		AnnualLossCap:       threshold("3000"),
		ForeignAccountLimit: threshold("10000"),
	},
	model.JurisdictionEU: {
		// Modeled on the German flat capital-yield regime; dispositions held
		// past the one-year threshold are tax-free for private holders.
		Jurisdiction:          model.JurisdictionEU,
		LongTermThresholdDays: longTermThresholdDays,
		ShortTermBrackets: []Bracket{
			{UpTo: top(), Rate: d("0.26375")},
		},
		LongTermBrackets: []Bracket{
			{UpTo: top(), Rate: d("0")},
		},
		IncomeBrackets: []Bracket{
			{UpTo: upTo("10908"), Rate: d("0")},
			{UpTo: upTo("62810"), Rate: d("0.24")},
			{UpTo: upTo("277825"), Rate: d("0.42")},
			{UpTo: top(), Rate: d("0.45")},
		},
	},
	model.JurisdictionBR: {
		Jurisdiction:          model.JurisdictionBR,
		LongTermThresholdDays: longTermThresholdDays,
		ShortTermBrackets: []Bracket{
			{UpTo: upTo("5000000"), Rate: d("0.15")},
			{UpTo: upTo("10000000"), Rate: d("0.175")},
			{UpTo: upTo("30000000"), Rate: d("0.20")},
			{UpTo: top(), Rate: d("0.225")},
		},
		LongTermBrackets: []Bracket{
			{UpTo: upTo("5000000"), Rate: d("0.15")},
			{UpTo: upTo("10000000"), Rate: d("0.175")},
			{UpTo: upTo("30000000"), Rate: d("0.20")},
			{UpTo: top(), Rate: d("0.225")},
		},
		IncomeBrackets: []Bracket{
			{UpTo: upTo("26963"), Rate: d("0")},
			{UpTo: upTo("33919"), Rate: d("0.075")},
			{UpTo: upTo("45012"), Rate: d("0.15")},
			{UpTo: upTo("55976"), Rate: d("0.225")},
			{UpTo: top(), Rate: d("0.275")},
		},
		MonthlyExemption: threshold("35000"),
	},
	model.JurisdictionUK: {
		Jurisdiction:          model.JurisdictionUK,
		LongTermThresholdDays: longTermThresholdDays,
		ShortTermBrackets: []Bracket{
			{UpTo: upTo("37700"), Rate: d("0.10")},
			{UpTo: top(), Rate: d("0.20")},
		},
		LongTermBrackets: []Bracket{
			{UpTo: upTo("37700"), Rate: d("0.10")},
			{UpTo: top(), Rate: d("0.20")},
		},
		IncomeBrackets: []Bracket{
			{UpTo: upTo("12570"), Rate: d("0")},
			{UpTo: upTo("50270"), Rate: d("0.20")},
			{UpTo: upTo("125140"), Rate: d("0.40")},
			{UpTo: top(), Rate: d("0.45")},
		},
	},
	model.JurisdictionJP: {
		// Crypto gains are miscellaneous income: the ordinary progressive
		// table applies regardless of holding period.
		Jurisdiction:          model.JurisdictionJP,
		LongTermThresholdDays: longTermThresholdDays,
		ShortTermBrackets: []Bracket{
			{UpTo: upTo("1950000"), Rate: d("0.05")},
			{UpTo: upTo("3300000"), Rate: d("0.10")},
			{UpTo: upTo("6950000"), Rate: d("0.20")},
			{UpTo: upTo("9000000"), Rate: d("0.23")},
			{UpTo: upTo("18000000"), Rate: d("0.33")},
			{UpTo: upTo("40000000"), Rate: d("0.40")},
			{UpTo: top(), Rate: d("0.45")},
		},
		LongTermBrackets: []Bracket{
			{UpTo: upTo("1950000"), Rate: d("0.05")},
			{UpTo: upTo("3300000"), Rate: d("0.10")},
			{UpTo: upTo("6950000"), Rate: d("0.20")},
			{UpTo: upTo("9000000"), Rate: d("0.23")},
			{UpTo: upTo("18000000"), Rate: d("0.33")},
			{UpTo: upTo("40000000"), Rate: d("0.40")},
			{UpTo: top(), Rate: d("0.45")},
		},
		IncomeBrackets: []Bracket{
			{UpTo: upTo("1950000"), Rate: d("0.05")},
			{UpTo: upTo("3300000"), Rate: d("0.10")},
			{UpTo: upTo("6950000"), Rate: d("0.20")},
			{UpTo: upTo("9000000"), Rate: d("0.23")},
			{UpTo: upTo("18000000"), Rate: d("0.33")},
			{UpTo: upTo("40000000"), Rate: d("0.40")},
			{UpTo: top(), Rate: d("0.45")},
		},
		ForeignAccountLimit: threshold("50000000"),
	},
	model.JurisdictionAU: {
		// Long-term rates reflect the 50% CGT discount on assets held past
		// the threshold.
		Jurisdiction:          model.JurisdictionAU,
		LongTermThresholdDays: longTermThresholdDays,
		ShortTermBrackets: []Bracket{
			{UpTo: upTo("18200"), Rate: d("0")},
			{UpTo: upTo("45000"), Rate: d("0.19")},
			{UpTo: upTo("120000"), Rate: d("0.325")},
			{UpTo: upTo("180000"), Rate: d("0.37")},
			{UpTo: top(), Rate: d("0.45")},
		},
		LongTermBrackets: []Bracket{
			{UpTo: upTo("18200"), Rate: d("0")},
			{UpTo: upTo("45000"), Rate: d("0.095")},
			{UpTo: upTo("120000"), Rate: d("0.1625")},
			{UpTo: upTo("180000"), Rate: d("0.185")},
			{UpTo: top(), Rate: d("0.225")},
		},
		IncomeBrackets: []Bracket{
			{UpTo: upTo("18200"), Rate: d("0")},
			{UpTo: upTo("45000"), Rate: d("0.19")},
			{UpTo: upTo("120000"), Rate: d("0.325")},
			{UpTo: upTo("180000"), Rate: d("0.37")},
			{UpTo: top(), Rate: d("0.45")},
		},
	},
	model.JurisdictionCA: {
		// Rates reflect the 50% capital-gains inclusion applied to the
		// federal marginal table.
		Jurisdiction:          model.JurisdictionCA,
		LongTermThresholdDays: longTermThresholdDays,
		ShortTermBrackets: []Bracket{
			{UpTo: upTo("53359"), Rate: d("0.075")},
			{UpTo: upTo("106717"), Rate: d("0.1025")},
			{UpTo: upTo("165430"), Rate: d("0.13")},
			{UpTo: upTo("235675"), Rate: d("0.145")},
			{UpTo: top(), Rate: d("0.165")},
		},
		LongTermBrackets: []Bracket{
			{UpTo: upTo("53359"), Rate: d("0.075")},
			{UpTo: upTo("106717"), Rate: d("0.1025")},
			{UpTo: upTo("165430"), Rate: d("0.13")},
			{UpTo: upTo("235675"), Rate: d("0.145")},
			{UpTo: top(), Rate: d("0.165")},
		},
		IncomeBrackets: []Bracket{
			{UpTo: upTo("53359"), Rate: d("0.15")},
			{UpTo: upTo("106717"), Rate: d("0.205")},
			{UpTo: upTo("165430"), Rate: d("0.26")},
			{UpTo: upTo("235675"), Rate: d("0.29")},
			{UpTo: top(), Rate: d("0.33")},
		},
	},
	model.JurisdictionCH: {
		// Private capital gains are tax-free; staking and similar income is
		// taxed as ordinary income.
		Jurisdiction:          model.JurisdictionCH,
		LongTermThresholdDays: longTermThresholdDays,
		ShortTermBrackets: []Bracket{
			{UpTo: top(), Rate: d("0")},
		},
		LongTermBrackets: []Bracket{
			{UpTo: top(), Rate: d("0")},
		},
		IncomeBrackets: []Bracket{
			{UpTo: upTo("14500"), Rate: d("0")},
			{UpTo: upTo("78100"), Rate: d("0.08")},
			{UpTo: upTo("103600"), Rate: d("0.11")},
			{UpTo: top(), Rate: d("0.132")},
		},
	},
	model.JurisdictionSG: {
		// No capital gains tax; income above the exemption is taxed on the
		// resident progressive table.
		Jurisdiction:          model.JurisdictionSG,
		LongTermThresholdDays: longTermThresholdDays,
		ShortTermBrackets: []Bracket{
			{UpTo: top(), Rate: d("0")},
		},
		LongTermBrackets: []Bracket{
			{UpTo: top(), Rate: d("0")},
		},
		IncomeBrackets: []Bracket{
			{UpTo: upTo("20000"), Rate: d("0")},
			{UpTo: upTo("40000"), Rate: d("0.02")},
			{UpTo: upTo("80000"), Rate: d("0.07")},
			{UpTo: upTo("120000"), Rate: d("0.115")},
			{UpTo: upTo("160000"), Rate: d("0.15")},
			{UpTo: upTo("320000"), Rate: d("0.18")},
			{UpTo: top(), Rate: d("0.22")},
		},
	},
}
