package normalize

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/model"
)

// ChainTransfer is a raw on-chain ledger transfer observed for a tracked
// wallet. Amounts arrive as raw integer + decimal exponent, the way chain
// indexers report them.
type ChainTransfer struct {
	TxHash       string
	WalletID     string
	Timestamp    time.Time
	Asset        string
	RawAmount    string
	Decimals     int32
	Direction    string // "IN" or "OUT"
	Counterparty string
	Value        *string // settlement currency, nil when the price is unresolved
	IsNFT        bool
	FeeAsset     string
	FeeRawAmount string
	FeeDecimals  int32
	FeeValue     *string
}

// Normalize implements Record.
func (r ChainTransfer) Normalize() (model.Transaction, error) {
	if r.TxHash == "" {
		return model.Transaction{}, &ParseError{Record: "chain_transfer", Field: "txHash", Reason: "required"}
	}
	if r.Asset == "" {
		return model.Transaction{}, &ParseError{Record: "chain_transfer", Field: "asset", Reason: "required"}
	}
	if r.Timestamp.IsZero() {
		return model.Transaction{}, &ParseError{Record: "chain_transfer", Field: "timestamp", Reason: "required"}
	}

	var direction model.FlowDirection
	var txType model.TransactionType
	switch r.Direction {
	case "IN":
		direction = model.DirectionIn
		txType = model.TypeTransferIn
	case "OUT":
		direction = model.DirectionOut
		txType = model.TypeTransferOut
	default:
		return model.Transaction{}, &ParseError{Record: "chain_transfer", Field: "direction", Reason: "must be IN or OUT"}
	}

	amount, err := parseQuantity("chain_transfer", "rawAmount", r.RawAmount, r.Decimals)
	if err != nil {
		return model.Transaction{}, err
	}
	if amount.IsZero() {
		return model.Transaction{}, &ParseError{Record: "chain_transfer", Field: "rawAmount", Reason: "amount must be positive"}
	}
	value, err := parseValue("chain_transfer", "value", r.Value)
	if err != nil {
		return model.Transaction{}, err
	}

	tx := model.Transaction{
		ID:              uuid.New().String(),
		WalletID:        r.WalletID,
		Provenance:      model.ProvenanceOnChain,
		Type:            txType,
		Timestamp:       r.Timestamp.UTC(),
		ExternalRef:     r.TxHash,
		Counterparty:    r.Counterparty,
		SettlementTotal: value,
		CreatedAt:       time.Now().UTC(),
	}
	tx.Flows = append(tx.Flows, model.Flow{
		ID:            uuid.New().String(),
		TransactionID: tx.ID,
		Asset:         r.Asset,
		Amount:        amount,
		Direction:     direction,
		Value:         value,
		IsNFT:         r.IsNFT,
	})

	if r.FeeRawAmount != "" {
		feeAmount, err := parseQuantity("chain_transfer", "feeRawAmount", r.FeeRawAmount, r.FeeDecimals)
		if err != nil {
			return model.Transaction{}, err
		}
		feeValue, err := parseValue("chain_transfer", "feeValue", r.FeeValue)
		if err != nil {
			return model.Transaction{}, err
		}
		feeAsset := r.FeeAsset
		if feeAsset == "" {
			feeAsset = r.Asset
		}
		tx.Flows = append(tx.Flows, model.Flow{
			ID:            uuid.New().String(),
			TransactionID: tx.ID,
			Asset:         feeAsset,
			Amount:        feeAmount,
			Direction:     model.DirectionOut,
			Value:         feeValue,
			IsFee:         true,
		})
	}

	return tx, nil
}

// ExchangeTrade is a raw spot trade from a centralized-exchange account
// history: base against quote, with an optional explicit fee line.
type ExchangeTrade struct {
	ConnectionID   string
	TradeID        string
	Timestamp      time.Time
	Side           string // "BUY" or "SELL" of the base asset
	BaseAsset      string
	BaseRawAmount  string
	BaseDecimals   int32
	QuoteAsset     string
	QuoteRawAmount string
	QuoteDecimals  int32
	Total          *string // settlement value of the trade
	Price          *string // execution price, settlement currency per base unit
	FeeAsset       string
	FeeRawAmount   string
	FeeDecimals    int32
	FeeValue       *string
}

// Normalize implements Record. A trade always carries two non-fee flows: the
// base one way and the quote the other, both valued at the trade total.
func (r ExchangeTrade) Normalize() (model.Transaction, error) {
	if r.ConnectionID == "" {
		return model.Transaction{}, &ParseError{Record: "exchange_trade", Field: "connectionId", Reason: "required"}
	}
	if r.Timestamp.IsZero() {
		return model.Transaction{}, &ParseError{Record: "exchange_trade", Field: "timestamp", Reason: "required"}
	}
	if r.BaseAsset == "" || r.QuoteAsset == "" {
		return model.Transaction{}, &ParseError{Record: "exchange_trade", Field: "asset", Reason: "base and quote assets required"}
	}

	var baseDir, quoteDir model.FlowDirection
	switch r.Side {
	case "BUY":
		baseDir, quoteDir = model.DirectionIn, model.DirectionOut
	case "SELL":
		baseDir, quoteDir = model.DirectionOut, model.DirectionIn
	default:
		return model.Transaction{}, &ParseError{Record: "exchange_trade", Field: "side", Reason: "must be BUY or SELL"}
	}

	baseAmount, err := parseQuantity("exchange_trade", "baseRawAmount", r.BaseRawAmount, r.BaseDecimals)
	if err != nil {
		return model.Transaction{}, err
	}
	quoteAmount, err := parseQuantity("exchange_trade", "quoteRawAmount", r.QuoteRawAmount, r.QuoteDecimals)
	if err != nil {
		return model.Transaction{}, err
	}
	if baseAmount.IsZero() || quoteAmount.IsZero() {
		return model.Transaction{}, &ParseError{Record: "exchange_trade", Field: "rawAmount", Reason: "amounts must be positive"}
	}
	total, err := parseValue("exchange_trade", "total", r.Total)
	if err != nil {
		return model.Transaction{}, err
	}
	price, err := parseValue("exchange_trade", "price", r.Price)
	if err != nil {
		return model.Transaction{}, err
	}

	tx := model.Transaction{
		ID:              uuid.New().String(),
		ConnectionID:    r.ConnectionID,
		Provenance:      model.ProvenanceExchange,
		Type:            model.TypeExchangeTrade,
		Timestamp:       r.Timestamp.UTC(),
		ExternalRef:     r.TradeID,
		SettlementTotal: total,
		CreatedAt:       time.Now().UTC(),
	}
	tx.Flows = append(tx.Flows,
		model.Flow{
			ID:            uuid.New().String(),
			TransactionID: tx.ID,
			Asset:         r.BaseAsset,
			Amount:        baseAmount,
			Direction:     baseDir,
			Value:         total,
			UnitPrice:     price,
		},
		model.Flow{
			ID:            uuid.New().String(),
			TransactionID: tx.ID,
			Asset:         r.QuoteAsset,
			Amount:        quoteAmount,
			Direction:     quoteDir,
			Value:         total,
		},
	)

	if r.FeeRawAmount != "" {
		feeAmount, err := parseQuantity("exchange_trade", "feeRawAmount", r.FeeRawAmount, r.FeeDecimals)
		if err != nil {
			return model.Transaction{}, err
		}
		feeValue, err := parseValue("exchange_trade", "feeValue", r.FeeValue)
		if err != nil {
			return model.Transaction{}, err
		}
		tx.Flows = append(tx.Flows, model.Flow{
			ID:            uuid.New().String(),
			TransactionID: tx.ID,
			Asset:         r.FeeAsset,
			Amount:        feeAmount,
			Direction:     model.DirectionOut,
			Value:         feeValue,
			IsFee:         true,
		})
	}

	return tx, nil
}

// ExchangeTransfer is a raw deposit or withdrawal from an exchange account
// history. TxRef, when the exchange reports it, is the chain transaction
// hash the linker uses for external-reference matching.
type ExchangeTransfer struct {
	ConnectionID string
	TransferID   string
	Kind         string // "DEPOSIT" or "WITHDRAWAL"
	Timestamp    time.Time
	Asset        string
	RawAmount    string
	Decimals     int32
	TxRef        string
	Address      string
	Value        *string
}

// Normalize implements Record.
func (r ExchangeTransfer) Normalize() (model.Transaction, error) {
	if r.ConnectionID == "" {
		return model.Transaction{}, &ParseError{Record: "exchange_transfer", Field: "connectionId", Reason: "required"}
	}
	if r.Asset == "" {
		return model.Transaction{}, &ParseError{Record: "exchange_transfer", Field: "asset", Reason: "required"}
	}
	if r.Timestamp.IsZero() {
		return model.Transaction{}, &ParseError{Record: "exchange_transfer", Field: "timestamp", Reason: "required"}
	}

	var direction model.FlowDirection
	var txType model.TransactionType
	switch r.Kind {
	case "DEPOSIT":
		direction = model.DirectionIn
		txType = model.TypeExchangeDeposit
	case "WITHDRAWAL":
		direction = model.DirectionOut
		txType = model.TypeExchangeWithdrawal
	default:
		return model.Transaction{}, &ParseError{Record: "exchange_transfer", Field: "kind", Reason: "must be DEPOSIT or WITHDRAWAL"}
	}

	amount, err := parseQuantity("exchange_transfer", "rawAmount", r.RawAmount, r.Decimals)
	if err != nil {
		return model.Transaction{}, err
	}
	if amount.IsZero() {
		return model.Transaction{}, &ParseError{Record: "exchange_transfer", Field: "rawAmount", Reason: "amount must be positive"}
	}
	value, err := parseValue("exchange_transfer", "value", r.Value)
	if err != nil {
		return model.Transaction{}, err
	}

	tx := model.Transaction{
		ID:              uuid.New().String(),
		ConnectionID:    r.ConnectionID,
		Provenance:      model.ProvenanceExchange,
		Type:            txType,
		Timestamp:       r.Timestamp.UTC(),
		ExternalRef:     r.TxRef,
		Counterparty:    r.Address,
		SettlementTotal: value,
		CreatedAt:       time.Now().UTC(),
	}
	tx.Flows = append(tx.Flows, model.Flow{
		ID:            uuid.New().String(),
		TransactionID: tx.ID,
		Asset:         r.Asset,
		Amount:        amount,
		Direction:     direction,
		Value:         value,
	})

	return tx, nil
}

// ExchangeConvert is a raw asset-to-asset conversion executed inside an
// exchange account.
type ExchangeConvert struct {
	ConnectionID  string
	ConvertID     string
	Timestamp     time.Time
	FromAsset     string
	FromRawAmount string
	FromDecimals  int32
	ToAsset       string
	ToRawAmount   string
	ToDecimals    int32
	Value         *string
}

// Normalize implements Record.
func (r ExchangeConvert) Normalize() (model.Transaction, error) {
	if r.ConnectionID == "" {
		return model.Transaction{}, &ParseError{Record: "exchange_convert", Field: "connectionId", Reason: "required"}
	}
	if r.FromAsset == "" || r.ToAsset == "" {
		return model.Transaction{}, &ParseError{Record: "exchange_convert", Field: "asset", Reason: "from and to assets required"}
	}
	if r.Timestamp.IsZero() {
		return model.Transaction{}, &ParseError{Record: "exchange_convert", Field: "timestamp", Reason: "required"}
	}

	fromAmount, err := parseQuantity("exchange_convert", "fromRawAmount", r.FromRawAmount, r.FromDecimals)
	if err != nil {
		return model.Transaction{}, err
	}
	toAmount, err := parseQuantity("exchange_convert", "toRawAmount", r.ToRawAmount, r.ToDecimals)
	if err != nil {
		return model.Transaction{}, err
	}
	if fromAmount.IsZero() || toAmount.IsZero() {
		return model.Transaction{}, &ParseError{Record: "exchange_convert", Field: "rawAmount", Reason: "amounts must be positive"}
	}
	value, err := parseValue("exchange_convert", "value", r.Value)
	if err != nil {
		return model.Transaction{}, err
	}

	tx := model.Transaction{
		ID:              uuid.New().String(),
		ConnectionID:    r.ConnectionID,
		Provenance:      model.ProvenanceExchange,
		Type:            model.TypeExchangeConvert,
		Timestamp:       r.Timestamp.UTC(),
		ExternalRef:     r.ConvertID,
		SettlementTotal: value,
		CreatedAt:       time.Now().UTC(),
	}
	tx.Flows = append(tx.Flows,
		model.Flow{
			ID:            uuid.New().String(),
			TransactionID: tx.ID,
			Asset:         r.FromAsset,
			Amount:        fromAmount,
			Direction:     model.DirectionOut,
			Value:         value,
		},
		model.Flow{
			ID:            uuid.New().String(),
			TransactionID: tx.ID,
			Asset:         r.ToAsset,
			Amount:        toAmount,
			Direction:     model.DirectionIn,
			Value:         value,
		},
	)

	return tx, nil
}

// rewardTypes maps exchange reward kinds onto the closed type enumeration.
var rewardTypes = map[string]model.TransactionType{
	"STAKING":  model.TypeStakingReward,
	"INTEREST": model.TypeInterest,
	"AIRDROP":  model.TypeAirdrop,
	"MINING":   model.TypeMining,
}

// ExchangeReward is a raw income event credited by an exchange: staking
// yield, interest, an airdrop, or mining proceeds.
type ExchangeReward struct {
	ConnectionID string
	RewardID     string
	Kind         string
	Timestamp    time.Time
	Asset        string
	RawAmount    string
	Decimals     int32
	Value        *string
}

// Normalize implements Record.
func (r ExchangeReward) Normalize() (model.Transaction, error) {
	if r.ConnectionID == "" {
		return model.Transaction{}, &ParseError{Record: "exchange_reward", Field: "connectionId", Reason: "required"}
	}
	txType, ok := rewardTypes[r.Kind]
	if !ok {
		return model.Transaction{}, &ParseError{Record: "exchange_reward", Field: "kind", Reason: "unrecognized reward kind"}
	}
	if r.Asset == "" {
		return model.Transaction{}, &ParseError{Record: "exchange_reward", Field: "asset", Reason: "required"}
	}
	if r.Timestamp.IsZero() {
		return model.Transaction{}, &ParseError{Record: "exchange_reward", Field: "timestamp", Reason: "required"}
	}

	amount, err := parseQuantity("exchange_reward", "rawAmount", r.RawAmount, r.Decimals)
	if err != nil {
		return model.Transaction{}, err
	}
	if amount.IsZero() {
		return model.Transaction{}, &ParseError{Record: "exchange_reward", Field: "rawAmount", Reason: "amount must be positive"}
	}
	value, err := parseValue("exchange_reward", "value", r.Value)
	if err != nil {
		return model.Transaction{}, err
	}

	tx := model.Transaction{
		ID:              uuid.New().String(),
		ConnectionID:    r.ConnectionID,
		Provenance:      model.ProvenanceExchange,
		Type:            txType,
		Timestamp:       r.Timestamp.UTC(),
		ExternalRef:     r.RewardID,
		SettlementTotal: value,
		CreatedAt:       time.Now().UTC(),
	}
	tx.Flows = append(tx.Flows, model.Flow{
		ID:            uuid.New().String(),
		TransactionID: tx.ID,
		Asset:         r.Asset,
		Amount:        amount,
		Direction:     model.DirectionIn,
		Value:         value,
	})

	return tx, nil
}

// ManualEntry is a user-supplied record for activity neither provenance
// covers, e.g. an OTC purchase. Amounts are decimal strings rather than
// raw integer + exponent since they are human-entered.
type ManualEntry struct {
	Type      string
	Timestamp time.Time
	Asset     string
	Amount    string
	Direction string
	Value     *string
}

// Normalize implements Record.
func (r ManualEntry) Normalize() (model.Transaction, error) {
	txType := model.TransactionType(r.Type)
	if !model.ValidTransactionTypes[txType] {
		return model.Transaction{}, &ParseError{Record: "manual_entry", Field: "type", Reason: "unrecognized transaction type"}
	}
	if r.Asset == "" {
		return model.Transaction{}, &ParseError{Record: "manual_entry", Field: "asset", Reason: "required"}
	}
	if r.Timestamp.IsZero() {
		return model.Transaction{}, &ParseError{Record: "manual_entry", Field: "timestamp", Reason: "required"}
	}

	var direction model.FlowDirection
	switch r.Direction {
	case "IN":
		direction = model.DirectionIn
	case "OUT":
		direction = model.DirectionOut
	default:
		return model.Transaction{}, &ParseError{Record: "manual_entry", Field: "direction", Reason: "must be IN or OUT"}
	}

	amount, err := decimal.NewFromString(r.Amount)
	if err != nil || !amount.IsPositive() {
		return model.Transaction{}, &ParseError{Record: "manual_entry", Field: "amount", Reason: "must be a positive decimal"}
	}
	value, err := parseValue("manual_entry", "value", r.Value)
	if err != nil {
		return model.Transaction{}, err
	}

	tx := model.Transaction{
		ID:              uuid.New().String(),
		Provenance:      model.ProvenanceManual,
		Type:            txType,
		Timestamp:       r.Timestamp.UTC(),
		SettlementTotal: value,
		CreatedAt:       time.Now().UTC(),
	}
	tx.Flows = append(tx.Flows, model.Flow{
		ID:            uuid.New().String(),
		TransactionID: tx.ID,
		Asset:         r.Asset,
		Amount:        amount,
		Direction:     direction,
		Value:         value,
	})

	return tx, nil
}
