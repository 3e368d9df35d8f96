package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/memepool/pool-engine/internal/chain"
	"github.com/memepool/pool-engine/internal/model"
)

// Receipt lists what an operation paid out.
type Receipt struct {
	PoolID  uint64         `json:"pool_id"`
	Payouts []chain.Payout `json:"payouts"`
}

// Claim pays caller their converted position and, if they won, the bonus.
func (e *Engine) Claim(ctx context.Context, id uint64, caller common.Address) (*Receipt, error) {
	ctx, done, err := e.enter(ctx, "claim")
	if err != nil {
		return nil, err
	}
	defer done()

	p, err := e.store.GetPoolForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Phase.WinnerDeclared() {
		return nil, ErrNotDeclared
	}
	i := p.ParticipantIndex(caller)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotParticipant, caller.Hex())
	}
	if p.Participants[i].HasClaimed {
		return nil, ErrAlreadyClaimed
	}

	staged := p.Clone()
	staged.Participants[i].HasClaimed = true

	pt := p.Participants[i]
	payouts := []payout{{
		Payout: chain.Payout{Asset: pt.AssignedAsset, Recipient: caller, Amount: pt.AssetAmount},
		kind:   model.LedgerClaimAsset,
	}}
	if caller == p.Winner {
		payouts = append(payouts, payout{
			Payout: chain.Payout{Asset: model.NativeAsset, Recipient: caller, Amount: p.BonusAmount},
			kind:   model.LedgerClaimBonus,
		})
	}

	if err := e.settle(ctx, p, staged, payouts); err != nil {
		return nil, err
	}

	e.log.Info("claimed",
		"pool", id,
		"caller", caller.Hex(),
		"asset", pt.AssignedAsset.Hex(),
		"amount", pt.AssetAmount.String(),
		"winner", caller == p.Winner,
	)
	e.notifier.Notify(Event{Type: EventClaimed, PoolID: id, Caller: caller, Phase: staged.Phase, Amount: pt.AssetAmount.String()})
	return receipt(id, payouts), nil
}

// Refund returns caller's deposit once the pool has sat unexecuted for the
// refund delay past its join deadline.
func (e *Engine) Refund(ctx context.Context, id uint64, caller common.Address) (*Receipt, error) {
	ctx, done, err := e.enter(ctx, "refund")
	if err != nil {
		return nil, err
	}
	defer done()

	p, err := e.store.GetPoolForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	opens := p.JoinDeadline.Add(e.refundDelay)
	switch {
	case p.Phase.SwapsExecuted():
		return nil, ErrAlreadyExecuted
	case p.Phase.Cancelled():
		return nil, ErrCancelled
	case e.now().Before(opens):
		return nil, fmt.Errorf("%w: refunds open at %s", ErrTooEarly, opens.Format(time.RFC3339))
	}
	i := p.ParticipantIndex(caller)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotParticipant, caller.Hex())
	}
	if p.Participants[i].HasClaimed {
		return nil, ErrAlreadyClaimed
	}

	staged := p.Clone()
	if err := transition(staged, model.PhaseRefunding); err != nil {
		return nil, err
	}
	staged.Participants[i].HasClaimed = true
	payouts := []payout{{
		Payout: chain.Payout{Asset: model.NativeAsset, Recipient: caller, Amount: p.EntryAmount},
		kind:   model.LedgerRefund,
	}}

	if err := e.settle(ctx, p, staged, payouts); err != nil {
		return nil, err
	}

	e.log.Info("refunded", "pool", id, "caller", caller.Hex(), "amount", p.EntryAmount.String())
	e.notifier.Notify(Event{Type: EventRefunded, PoolID: id, Caller: caller, Phase: staged.Phase, Amount: p.EntryAmount.String()})
	return receipt(id, payouts), nil
}

// CancelPool lets the creator abandon a pool before its join deadline,
// returning every deposit in the same call.
func (e *Engine) CancelPool(ctx context.Context, id uint64, caller common.Address) (*Receipt, error) {
	ctx, done, err := e.enter(ctx, "cancel")
	if err != nil {
		return nil, err
	}
	defer done()

	p, err := e.store.GetPoolForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case caller != p.Creator:
		return nil, fmt.Errorf("%w: %s", ErrNotCreator, caller.Hex())
	case p.Phase.Cancelled():
		return nil, ErrCancelled
	case p.Phase.SwapsExecuted():
		return nil, ErrAlreadyExecuted
	case p.Phase == model.PhaseRefunding:
		return nil, ErrRefundsStarted
	case !e.now().Before(p.JoinDeadline):
		return nil, fmt.Errorf("%w: join deadline %s passed", ErrTooLate, p.JoinDeadline.Format(time.RFC3339))
	}

	staged := p.Clone()
	if err := transition(staged, model.PhaseCancelled); err != nil {
		return nil, err
	}
	payouts := refundAll(staged, model.LedgerCancelRefund)

	if err := e.settle(ctx, p, staged, payouts); err != nil {
		return nil, err
	}

	e.log.Info("pool cancelled", "pool", id, "creator", caller.Hex(), "refunded", len(payouts))
	e.notifier.Notify(Event{Type: EventCancelled, PoolID: id, Caller: caller, Phase: staged.Phase, Count: len(payouts)})
	return receipt(id, payouts), nil
}

// EmergencyWithdraw lets the creator return every outstanding deposit of a
// pool whose swaps never ran. With a positive emergency delay it is only
// available that long after the unlock time.
func (e *Engine) EmergencyWithdraw(ctx context.Context, id uint64, caller common.Address) (*Receipt, error) {
	ctx, done, err := e.enter(ctx, "emergency_withdraw")
	if err != nil {
		return nil, err
	}
	defer done()

	p, err := e.store.GetPoolForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case caller != p.Creator:
		return nil, fmt.Errorf("%w: %s", ErrNotCreator, caller.Hex())
	case p.Phase.SwapsExecuted():
		return nil, ErrAlreadyExecuted
	case p.Phase.Cancelled():
		return nil, ErrCancelled
	}
	if e.emergencyDelay > 0 {
		opens := p.UnlockTime.Add(e.emergencyDelay)
		if e.now().Before(opens) {
			return nil, fmt.Errorf("%w: emergency withdrawal opens at %s", ErrTooEarly, opens.Format(time.RFC3339))
		}
	}

	staged := p.Clone()
	if err := transition(staged, model.PhaseRefunding); err != nil {
		return nil, err
	}
	payouts := refundAll(staged, model.LedgerEmergencyRefund)

	if err := e.settle(ctx, p, staged, payouts); err != nil {
		return nil, err
	}

	e.log.Warn("emergency withdrawal", "pool", id, "creator", caller.Hex(), "refunded", len(payouts))
	e.notifier.Notify(Event{Type: EventEmergencyRefund, PoolID: id, Caller: caller, Phase: staged.Phase, Count: len(payouts)})
	return receipt(id, payouts), nil
}

// refundAll marks every unpaid participant of staged as paid and returns
// their deposits.
func refundAll(staged *model.Pool, kind model.LedgerKind) []payout {
	var payouts []payout
	for i := range staged.Participants {
		pt := &staged.Participants[i]
		if pt.HasClaimed {
			continue
		}
		pt.HasClaimed = true
		payouts = append(payouts, payout{
			Payout: chain.Payout{Asset: model.NativeAsset, Recipient: pt.Identity, Amount: staged.EntryAmount},
			kind:   kind,
		})
	}
	return payouts
}

func receipt(id uint64, payouts []payout) *Receipt {
	r := &Receipt{PoolID: id, Payouts: make([]chain.Payout, 0, len(payouts))}
	for _, po := range payouts {
		if po.Amount.GreaterThan(decimal.Zero) {
			r.Payouts = append(r.Payouts, po.Payout)
		}
	}
	return r
}
