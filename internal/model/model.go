// Package model defines the core domain types shared across the pool engine.
// All monetary values use shopspring/decimal, never float64.
// Amounts are integer base units (wei-like); price measures are whatever
// integer scale the venue reports.
package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// NativeAsset denotes the chain's native value (what participants deposit).
var NativeAsset = common.Address{}

// Pool is one lottery round: the escrow record, its configuration and the
// per-participant positions. Pools never reference each other.
type Pool struct {
	ID        uint64           `json:"id"`
	Name      string           `json:"name"`
	Creator   common.Address   `json:"creator"`
	Whitelist []common.Address `json:"whitelist"`

	EntryAmount  decimal.Decimal `json:"entry_amount"`
	JoinDeadline time.Time       `json:"join_deadline"`
	UnlockTime   time.Time       `json:"unlock_time"`

	// RiskAssets and ExchangeVenues are parallel: venue i prices and
	// converts asset i.
	RiskAssets           []common.Address `json:"risk_assets"`
	ExchangeVenues       []common.Address `json:"exchange_venues"`
	SlippageToleranceBps uint32           `json:"slippage_tolerance_bps"`
	FeeTier              uint32           `json:"fee_tier"`

	Participants []Participant `json:"participants"`

	Phase  Phase          `json:"phase"`
	Winner common.Address `json:"winner"`

	// Fixed at execution time.
	AmountPerSwap  decimal.Decimal `json:"amount_per_swap"`
	BonusAmount    decimal.Decimal `json:"bonus_amount"`
	ExecutorReward decimal.Decimal `json:"executor_reward"`
	Executor       common.Address  `json:"executor"`
	// RewardPending is set when the reward transfer failed after the
	// swaps committed; the executor collects it later.
	RewardPending bool `json:"reward_pending"`

	CreatedAt  time.Time  `json:"created_at"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
	DeclaredAt *time.Time `json:"declared_at,omitempty"`
}

// Participant is a whitelisted identity that deposited into a pool.
type Participant struct {
	Identity           common.Address  `json:"identity"`
	AssignedAsset      common.Address  `json:"assigned_asset"`
	AssignedVenue      common.Address  `json:"assigned_venue"`
	AssetAmount        decimal.Decimal `json:"asset_amount"`
	EntryPriceMeasure  decimal.Decimal `json:"entry_price_measure"`
	UnlockPriceMeasure decimal.Decimal `json:"unlock_price_measure"`
	PercentGain        decimal.Decimal `json:"percent_gain"` // signed bps
	HasClaimed         bool            `json:"has_claimed"`  // claim, refund or emergency payout
	JoinedAt           time.Time       `json:"joined_at"`
}

// Clone returns a deep copy so callers can stage mutations without
// touching the stored record.
func (p *Pool) Clone() *Pool {
	c := *p
	c.Whitelist = append([]common.Address(nil), p.Whitelist...)
	c.RiskAssets = append([]common.Address(nil), p.RiskAssets...)
	c.ExchangeVenues = append([]common.Address(nil), p.ExchangeVenues...)
	c.Participants = append([]Participant(nil), p.Participants...)
	if p.ExecutedAt != nil {
		t := *p.ExecutedAt
		c.ExecutedAt = &t
	}
	if p.DeclaredAt != nil {
		t := *p.DeclaredAt
		c.DeclaredAt = &t
	}
	return &c
}

// IsWhitelisted reports whether id may join the pool.
func (p *Pool) IsWhitelisted(id common.Address) bool {
	for _, w := range p.Whitelist {
		if w == id {
			return true
		}
	}
	return false
}

// ParticipantIndex returns the index of id in Participants, or -1.
func (p *Pool) ParticipantIndex(id common.Address) int {
	for i := range p.Participants {
		if p.Participants[i].Identity == id {
			return i
		}
	}
	return -1
}

// VenueFor returns the venue paired with asset in the candidate list.
func (p *Pool) VenueFor(asset common.Address) (common.Address, bool) {
	for i, a := range p.RiskAssets {
		if a == asset && i < len(p.ExchangeVenues) {
			return p.ExchangeVenues[i], true
		}
	}
	return common.Address{}, false
}

// TotalEscrow is entryAmount × participant count.
func (p *Pool) TotalEscrow() decimal.Decimal {
	return p.EntryAmount.Mul(decimal.NewFromInt(int64(len(p.Participants))))
}

// LedgerEntry is an immutable record of a value movement.
// Once created, these are never modified or deleted.
type LedgerEntry struct {
	ID        string          `json:"id" db:"id"`
	PoolID    uint64          `json:"pool_id" db:"pool_id"`
	Identity  common.Address  `json:"identity" db:"identity"`
	Kind      LedgerKind      `json:"kind" db:"kind"`
	Asset     common.Address  `json:"asset" db:"asset"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// LedgerKind classifies a ledger entry.
type LedgerKind string

const (
	LedgerDeposit         LedgerKind = "deposit"
	LedgerSwap            LedgerKind = "swap"
	LedgerExecutorReward  LedgerKind = "executor_reward"
	LedgerClaimAsset      LedgerKind = "claim_asset"
	LedgerClaimBonus      LedgerKind = "claim_bonus"
	LedgerRefund          LedgerKind = "refund"
	LedgerCancelRefund    LedgerKind = "cancel_refund"
	LedgerEmergencyRefund LedgerKind = "emergency_refund"
)
