package request

import (
	"time"

	"github.com/ledgerproof/Crypto-Tax-Audit-Backend/internal/normalize"
)

type CreateWalletRequest struct {
	Address string `json:"address"`
	Chain   string `json:"chain"`
	Label   string `json:"label"`
}

type CreateConnectionRequest struct {
	Exchange  string `json:"exchange"`
	Label     string `json:"label"`
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}

type AddDepositAddressRequest struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
}

// ImportRequest is the body of POST /api/transaction/import: one batch of
// raw provider records, grouped by shape. The whole batch is rejected when
// any record fails normalization.
type ImportRequest struct {
	ChainTransfers    []ChainTransferRequest    `json:"chainTransfers,omitempty"`
	ExchangeTrades    []ExchangeTradeRequest    `json:"exchangeTrades,omitempty"`
	ExchangeTransfers []ExchangeTransferRequest `json:"exchangeTransfers,omitempty"`
	ExchangeConverts  []ExchangeConvertRequest  `json:"exchangeConverts,omitempty"`
	ExchangeRewards   []ExchangeRewardRequest   `json:"exchangeRewards,omitempty"`
	ManualEntries     []ManualEntryRequest      `json:"manualEntries,omitempty"`
}

// Records flattens the batch into normalizer input, preserving group order.
func (r ImportRequest) Records() []normalize.Record {
	var records []normalize.Record
	for _, t := range r.ChainTransfers {
		records = append(records, t.record())
	}
	for _, t := range r.ExchangeTrades {
		records = append(records, t.record())
	}
	for _, t := range r.ExchangeTransfers {
		records = append(records, t.record())
	}
	for _, t := range r.ExchangeConverts {
		records = append(records, t.record())
	}
	for _, t := range r.ExchangeRewards {
		records = append(records, t.record())
	}
	for _, t := range r.ManualEntries {
		records = append(records, t.record())
	}
	return records
}

type ChainTransferRequest struct {
	TxHash       string    `json:"txHash"`
	WalletID     string    `json:"walletId"`
	Timestamp    time.Time `json:"timestamp"`
	Asset        string    `json:"asset"`
	RawAmount    string    `json:"rawAmount"`
	Decimals     int32     `json:"decimals"`
	Direction    string    `json:"direction"`
	Counterparty string    `json:"counterparty,omitempty"`
	Value        *string   `json:"value,omitempty"`
	IsNFT        bool      `json:"isNft,omitempty"`
	FeeAsset     string    `json:"feeAsset,omitempty"`
	FeeRawAmount string    `json:"feeRawAmount,omitempty"`
	FeeDecimals  int32     `json:"feeDecimals,omitempty"`
	FeeValue     *string   `json:"feeValue,omitempty"`
}

func (r ChainTransferRequest) record() normalize.Record {
	return normalize.ChainTransfer{
		TxHash:       r.TxHash,
		WalletID:     r.WalletID,
		Timestamp:    r.Timestamp,
		Asset:        r.Asset,
		RawAmount:    r.RawAmount,
		Decimals:     r.Decimals,
		Direction:    r.Direction,
		Counterparty: r.Counterparty,
		Value:        r.Value,
		IsNFT:        r.IsNFT,
		FeeAsset:     r.FeeAsset,
		FeeRawAmount: r.FeeRawAmount,
		FeeDecimals:  r.FeeDecimals,
		FeeValue:     r.FeeValue,
	}
}

type ExchangeTradeRequest struct {
	ConnectionID   string    `json:"connectionId"`
	TradeID        string    `json:"tradeId"`
	Timestamp      time.Time `json:"timestamp"`
	Side           string    `json:"side"`
	BaseAsset      string    `json:"baseAsset"`
	BaseRawAmount  string    `json:"baseRawAmount"`
	BaseDecimals   int32     `json:"baseDecimals"`
	QuoteAsset     string    `json:"quoteAsset"`
	QuoteRawAmount string    `json:"quoteRawAmount"`
	QuoteDecimals  int32     `json:"quoteDecimals"`
	Total          *string   `json:"total,omitempty"`
	Price          *string   `json:"price,omitempty"`
	FeeAsset       string    `json:"feeAsset,omitempty"`
	FeeRawAmount   string    `json:"feeRawAmount,omitempty"`
	FeeDecimals    int32     `json:"feeDecimals,omitempty"`
	FeeValue       *string   `json:"feeValue,omitempty"`
}

func (r ExchangeTradeRequest) record() normalize.Record {
	return normalize.ExchangeTrade{
		ConnectionID:   r.ConnectionID,
		TradeID:        r.TradeID,
		Timestamp:      r.Timestamp,
		Side:           r.Side,
		BaseAsset:      r.BaseAsset,
		BaseRawAmount:  r.BaseRawAmount,
		BaseDecimals:   r.BaseDecimals,
		QuoteAsset:     r.QuoteAsset,
		QuoteRawAmount: r.QuoteRawAmount,
		QuoteDecimals:  r.QuoteDecimals,
		Total:          r.Total,
		Price:          r.Price,
		FeeAsset:       r.FeeAsset,
		FeeRawAmount:   r.FeeRawAmount,
		FeeDecimals:    r.FeeDecimals,
		FeeValue:       r.FeeValue,
	}
}

type ExchangeTransferRequest struct {
	ConnectionID string    `json:"connectionId"`
	TransferID   string    `json:"transferId"`
	Kind         string    `json:"kind"`
	Timestamp    time.Time `json:"timestamp"`
	Asset        string    `json:"asset"`
	RawAmount    string    `json:"rawAmount"`
	Decimals     int32     `json:"decimals"`
	TxRef        string    `json:"txRef,omitempty"`
	Address      string    `json:"address,omitempty"`
	Value        *string   `json:"value,omitempty"`
}

func (r ExchangeTransferRequest) record() normalize.Record {
	return normalize.ExchangeTransfer{
		ConnectionID: r.ConnectionID,
		TransferID:   r.TransferID,
		Kind:         r.Kind,
		Timestamp:    r.Timestamp,
		Asset:        r.Asset,
		RawAmount:    r.RawAmount,
		Decimals:     r.Decimals,
		TxRef:        r.TxRef,
		Address:      r.Address,
		Value:        r.Value,
	}
}

type ExchangeConvertRequest struct {
	ConnectionID  string    `json:"connectionId"`
	ConvertID     string    `json:"convertId"`
	Timestamp     time.Time `json:"timestamp"`
	FromAsset     string    `json:"fromAsset"`
	FromRawAmount string    `json:"fromRawAmount"`
	FromDecimals  int32     `json:"fromDecimals"`
	ToAsset       string    `json:"toAsset"`
	ToRawAmount   string    `json:"toRawAmount"`
	ToDecimals    int32     `json:"toDecimals"`
	Value         *string   `json:"value,omitempty"`
}

func (r ExchangeConvertRequest) record() normalize.Record {
	return normalize.ExchangeConvert{
		ConnectionID:  r.ConnectionID,
		ConvertID:     r.ConvertID,
		Timestamp:     r.Timestamp,
		FromAsset:     r.FromAsset,
		FromRawAmount: r.FromRawAmount,
		FromDecimals:  r.FromDecimals,
		ToAsset:       r.ToAsset,
		ToRawAmount:   r.ToRawAmount,
		ToDecimals:    r.ToDecimals,
		Value:         r.Value,
	}
}

type ExchangeRewardRequest struct {
	ConnectionID string    `json:"connectionId"`
	RewardID     string    `json:"rewardId"`
	Kind         string    `json:"kind"`
	Timestamp    time.Time `json:"timestamp"`
	Asset        string    `json:"asset"`
	RawAmount    string    `json:"rawAmount"`
	Decimals     int32     `json:"decimals"`
	Value        *string   `json:"value,omitempty"`
}

func (r ExchangeRewardRequest) record() normalize.Record {
	return normalize.ExchangeReward{
		ConnectionID: r.ConnectionID,
		RewardID:     r.RewardID,
		Kind:         r.Kind,
		Timestamp:    r.Timestamp,
		Asset:        r.Asset,
		RawAmount:    r.RawAmount,
		Decimals:     r.Decimals,
		Value:        r.Value,
	}
}

type ManualEntryRequest struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Asset     string    `json:"asset"`
	Amount    string    `json:"amount"`
	Direction string    `json:"direction"`
	Value     *string   `json:"value,omitempty"`
}

func (r ManualEntryRequest) record() normalize.Record {
	return normalize.ManualEntry{
		Type:      r.Type,
		Timestamp: r.Timestamp,
		Asset:     r.Asset,
		Amount:    r.Amount,
		Direction: r.Direction,
		Value:     r.Value,
	}
}
