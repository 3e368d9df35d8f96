package pool

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/memepool/pool-engine/internal/model"
)

// Event types published after an operation commits.
const (
	EventPoolCreated     = "pool_created"
	EventJoined          = "joined"
	EventSwapsExecuted   = "swaps_executed"
	EventWinnerDeclared  = "winner_declared"
	EventClaimed         = "claimed"
	EventRefunded        = "refunded"
	EventCancelled       = "cancelled"
	EventEmergencyRefund = "emergency_withdrawn"
)

// Event describes a committed state change.
type Event struct {
	Type   string         `json:"type"`
	PoolID uint64         `json:"pool_id"`
	Caller common.Address `json:"caller"`
	Phase  model.Phase    `json:"phase"`
	Winner common.Address `json:"winner,omitempty"`
	Amount string         `json:"amount,omitempty"`
	Count  int            `json:"count,omitempty"`
}

// Notifier receives events. Notify must not block.
type Notifier interface {
	Notify(Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}
