package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Stage is the caller-facing state of a pool, combining its phase with the
// clock (a pool in PhaseOpen is "joining" or "join_closed" depending on time).
type Stage string

const (
	StageJoining        Stage = "joining"
	StageJoinClosed     Stage = "join_closed"
	StageRefundEligible Stage = "refund_eligible"
	StageExecuted       Stage = "executed"
	StageDeclared       Stage = "declared"
	StageCancelled      Stage = "cancelled"
	StageRefunding      Stage = "refunding"
)

// PoolSummary is the read-only overview of a pool.
type PoolSummary struct {
	ID               uint64          `json:"id"`
	Name             string          `json:"name"`
	Creator          common.Address  `json:"creator"`
	EntryAmount      decimal.Decimal `json:"entry_amount"`
	JoinDeadline     time.Time       `json:"join_deadline"`
	UnlockTime       time.Time       `json:"unlock_time"`
	WhitelistCount   int             `json:"whitelist_count"`
	ParticipantCount int             `json:"participant_count"`
	SwapsExecuted    bool            `json:"swaps_executed"`
	WinnerDeclared   bool            `json:"winner_declared"`
	Cancelled        bool            `json:"cancelled"`
	Stage            Stage           `json:"stage"`
	Winner           common.Address  `json:"winner"`
	BonusAmount      decimal.Decimal `json:"bonus_amount"`
	RewardPending    bool            `json:"reward_pending"`
}

// ParticipantStatus is one participant's view of their own position.
type ParticipantStatus struct {
	PoolID             uint64          `json:"pool_id"`
	Identity           common.Address  `json:"identity"`
	AssignedAsset      common.Address  `json:"assigned_asset"`
	AssetAmount        decimal.Decimal `json:"asset_amount"`
	EntryPriceMeasure  decimal.Decimal `json:"entry_price_measure"`
	UnlockPriceMeasure decimal.Decimal `json:"unlock_price_measure"`
	PercentGain        decimal.Decimal `json:"percent_gain"`
	HasClaimed         bool            `json:"has_claimed"`
	IsWinner           bool            `json:"is_winner"`
}

// Assignment pairs a participant with the asset drawn for them.
type Assignment struct {
	Identity      common.Address  `json:"identity"`
	AssignedAsset common.Address  `json:"assigned_asset"`
	AssetAmount   decimal.Decimal `json:"asset_amount"`
}

// LeaderboardEntry is one ranked row after winner declaration.
type LeaderboardEntry struct {
	Rank          int             `json:"rank"`
	Identity      common.Address  `json:"identity"`
	AssignedAsset common.Address  `json:"assigned_asset"`
	PercentGain   decimal.Decimal `json:"percent_gain"`
	IsWinner      bool            `json:"is_winner"`
}
