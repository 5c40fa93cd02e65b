package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Provenance identifies which ledger a transaction was ingested from.
type Provenance string

const (
	ProvenanceOnChain  Provenance = "ON_CHAIN"
	ProvenanceExchange Provenance = "EXCHANGE"
	ProvenanceManual   Provenance = "MANUAL"
)

// TransactionType is the closed set of recognized economic event types.
// Membership in the acquisition/disposal/income sets below drives lot
// building and disposal matching; no component re-derives this ad hoc.
type TransactionType string

const (
	TypeBuy                TransactionType = "BUY"
	TypeSell               TransactionType = "SELL"
	TypeSwap               TransactionType = "SWAP"
	TypeTransferIn         TransactionType = "TRANSFER_IN"
	TypeTransferOut        TransactionType = "TRANSFER_OUT"
	TypeStake              TransactionType = "STAKE"
	TypeUnstake            TransactionType = "UNSTAKE"
	TypeStakingReward      TransactionType = "STAKING_REWARD"
	TypeAirdrop            TransactionType = "AIRDROP"
	TypeMining             TransactionType = "MINING"
	TypeInterest           TransactionType = "INTEREST"
	TypeExchangeTrade      TransactionType = "EXCHANGE_TRADE"
	TypeExchangeConvert    TransactionType = "EXCHANGE_CONVERT"
	TypeExchangeDeposit    TransactionType = "EXCHANGE_DEPOSIT"
	TypeExchangeWithdrawal TransactionType = "EXCHANGE_WITHDRAWAL"
	TypeMarginBorrow       TransactionType = "MARGIN_BORROW"
	TypeMarginRepay        TransactionType = "MARGIN_REPAY"
	TypeMarginLiquidation  TransactionType = "MARGIN_LIQUIDATION"
	TypeFee                TransactionType = "FEE"
)

// ValidTransactionTypes is the closed membership set used by validation.
var ValidTransactionTypes = map[TransactionType]bool{
	TypeBuy: true, TypeSell: true, TypeSwap: true,
	TypeTransferIn: true, TypeTransferOut: true,
	TypeStake: true, TypeUnstake: true, TypeStakingReward: true,
	TypeAirdrop: true, TypeMining: true, TypeInterest: true,
	TypeExchangeTrade: true, TypeExchangeConvert: true,
	TypeExchangeDeposit: true, TypeExchangeWithdrawal: true,
	TypeMarginBorrow: true, TypeMarginRepay: true, TypeMarginLiquidation: true,
	TypeFee: true,
}

// AcquisitionTypes are the types whose non-fee IN flows open cost-basis lots.
var AcquisitionTypes = map[TransactionType]bool{
	TypeBuy: true, TypeTransferIn: true, TypeSwap: true,
	TypeStakingReward: true, TypeAirdrop: true, TypeMining: true,
	TypeInterest: true, TypeUnstake: true,
	TypeExchangeTrade: true, TypeExchangeConvert: true,
	TypeExchangeDeposit: true, TypeMarginBorrow: true,
}

// DisposalTypes are the types whose non-fee OUT flows realize gains or losses.
// Exchange withdrawals and staking locks move funds between the user's own
// venues and are deliberately absent.
var DisposalTypes = map[TransactionType]bool{
	TypeSell: true, TypeSwap: true, TypeTransferOut: true,
	TypeExchangeTrade: true, TypeExchangeConvert: true,
	TypeMarginLiquidation: true,
}

// IncomeTypes are the types whose IN flows are taxable income at receipt.
var IncomeTypes = map[TransactionType]bool{
	TypeStakingReward: true, TypeAirdrop: true,
	TypeMining: true, TypeInterest: true,
}

// FlowDirection is the direction of an asset movement relative to the owner.
type FlowDirection string

const (
	DirectionIn  FlowDirection = "IN"
	DirectionOut FlowDirection = "OUT"
)

// Category is the cross-source classification written by the linker.
// It is set at most once per transaction and never rewritten.
type Category string

const (
	CategoryNone                 Category = ""
	CategoryTransferToExchange   Category = "TRANSFER_TO_EXCHANGE"
	CategoryTransferFromExchange Category = "TRANSFER_FROM_EXCHANGE"
)

// IsSelfTransfer reports whether the category marks a movement between two
// venues owned by the same user. Self transfers neither open lots nor
// realize disposals; excluding both sides is what prevents double counting.
func (c Category) IsSelfTransfer() bool {
	return c == CategoryTransferToExchange || c == CategoryTransferFromExchange
}

// Transaction is the canonical, provenance-agnostic record all engine
// components operate on. Immutable after ingestion except for the Category
// and LinkedTransactionID fields, which the linker sets once.
type Transaction struct {
	ID                  string              `json:"id"`
	WalletID            string              `json:"walletId,omitempty"`
	ConnectionID        string              `json:"connectionId,omitempty"`
	Provenance          Provenance          `json:"provenance"`
	Type                TransactionType     `json:"type"`
	Category            Category            `json:"category,omitempty"`
	Timestamp           time.Time           `json:"timestamp"`
	ExternalRef         string              `json:"externalRef,omitempty"`
	Counterparty        string              `json:"counterparty,omitempty"`
	LinkedTransactionID string              `json:"linkedTransactionId,omitempty"`
	SettlementTotal     decimal.NullDecimal `json:"settlementTotal"`
	Flows               []Flow              `json:"flows"`
	CreatedAt           time.Time           `json:"createdAt,omitempty"`
}

// Flow is one directional movement of a single asset within a transaction.
// Value is the flow's worth in the audit's settlement currency; an unresolved
// price is a null Value, never zero, so downstream code can tell "known zero"
// from "missing price data".
type Flow struct {
	ID            string              `json:"id"`
	TransactionID string              `json:"transactionId"`
	Asset         string              `json:"asset"`
	Amount        decimal.Decimal     `json:"amount"`
	Direction     FlowDirection       `json:"direction"`
	Value         decimal.NullDecimal `json:"value"`
	IsFee         bool                `json:"isFee"`
	IsNFT         bool                `json:"isNft,omitempty"`
	UnitPrice     decimal.NullDecimal `json:"unitPrice"`
}

// FeeValue sums the settlement value of the transaction's fee flows.
func (t *Transaction) FeeValue() decimal.Decimal {
	total := decimal.Zero
	for _, f := range t.Flows {
		if f.IsFee && f.Value.Valid {
			total = total.Add(f.Value.Decimal)
		}
	}
	return total
}
