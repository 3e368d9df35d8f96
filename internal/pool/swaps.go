package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/memepool/pool-engine/internal/chain"
	"github.com/memepool/pool-engine/internal/metrics"
	"github.com/memepool/pool-engine/internal/model"
)

// Split is how a pool's escrow divides at execution.
type Split struct {
	Total          decimal.Decimal
	ExecutorReward decimal.Decimal
	BonusAmount    decimal.Decimal
	AmountPerSwap  decimal.Decimal
	Dust           decimal.Decimal // left in escrow, never claimable
}

// SplitEscrow divides entry × n into the executor reward, the bonus and n
// equal conversion amounts. All divisions truncate.
func SplitEscrow(entry decimal.Decimal, n int, rewardBps, bonusBps uint32) Split {
	count := decimal.NewFromInt(int64(n))
	total := entry.Mul(count)
	reward := bps(total, rewardBps)
	bonus := bps(total, bonusBps)
	perSwap := decimal.Zero
	if n > 0 {
		perSwap, _ = total.Sub(reward).Sub(bonus).QuoRem(count, 0)
	}
	return Split{
		Total:          total,
		ExecutorReward: reward,
		BonusAmount:    bonus,
		AmountPerSwap:  perSwap,
		Dust:           total.Sub(reward).Sub(bonus).Sub(perSwap.Mul(count)),
	}
}

// ExecuteSwaps draws an asset for every participant and converts the
// escrow into those assets in one batch. Any failure leaves the pool as it
// was. On success caller is paid the executor reward.
//
// If the reward transfer fails after the batch has committed, the pool is
// marked RewardPending and returned together with ErrTransferFailed; the
// executor collects it later through ClaimExecutorReward.
func (e *Engine) ExecuteSwaps(ctx context.Context, id uint64, caller common.Address) (*model.Pool, error) {
	ctx, done, err := e.enter(ctx, "execute_swaps")
	if err != nil {
		return nil, err
	}
	defer done()

	p, err := e.store.GetPoolForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	now := e.now()
	switch {
	case now.Before(p.JoinDeadline):
		return nil, fmt.Errorf("%w: join window open until %s", ErrTooEarly, p.JoinDeadline.Format(time.RFC3339))
	case p.Phase.Cancelled():
		return nil, ErrCancelled
	case p.Phase.SwapsExecuted():
		return nil, ErrAlreadyExecuted
	case p.Phase == model.PhaseRefunding:
		return nil, ErrRefundsStarted
	case len(p.Participants) == 0:
		return nil, ErrNoParticipants
	}

	n := len(p.Participants)
	seed, err := e.beacon.Seed(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSeedUnavailable, err)
	}
	draw := Draw(seed, n)

	split := SplitEscrow(p.EntryAmount, n, e.rewardBps, e.bonusBps)
	deadline := now.Add(e.swapDeadline)

	staged := p.Clone()
	legs := make([]chain.ConvertRequest, n)
	for i := range staged.Participants {
		asset := p.RiskAssets[draw[i]]
		venue := p.ExchangeVenues[draw[i]]

		price, err := e.oracle.CurrentPriceMeasure(ctx, venue)
		if err != nil {
			return nil, fmt.Errorf("%w: venue %s: %w", ErrPriceUnavailable, venue.Hex(), err)
		}
		minOut, err := e.minOut.MinOut(ctx, Quote{
			Venue:        venue,
			OutputAsset:  asset,
			AmountIn:     split.AmountPerSwap,
			PriceMeasure: price,
			SlippageBps:  p.SlippageToleranceBps,
		})
		if err != nil {
			return nil, fmt.Errorf("min out for %s: %w", asset.Hex(), err)
		}

		legs[i] = chain.ConvertRequest{
			InputAsset:   e.wrappedNative,
			OutputAsset:  asset,
			FeeTier:      p.FeeTier,
			Recipient:    e.self,
			AmountIn:     split.AmountPerSwap,
			MinAmountOut: minOut,
			Deadline:     deadline,
		}
		staged.Participants[i].AssignedAsset = asset
		staged.Participants[i].AssignedVenue = venue
		staged.Participants[i].EntryPriceMeasure = price
	}

	outs, err := e.convert(ctx, legs, split.AmountPerSwap.Mul(decimal.NewFromInt(int64(n))))
	if err != nil {
		metrics.SwapBatches.WithLabelValues("failed").Inc()
		e.log.Warn("batch conversion failed", "pool", id, "caller", caller.Hex(), "legs", n, "err", err)
		return nil, err
	}
	for i := range staged.Participants {
		staged.Participants[i].AssetAmount = outs[i]
	}

	if err := transition(staged, model.PhaseExecuted); err != nil {
		return nil, err
	}
	staged.AmountPerSwap = split.AmountPerSwap
	staged.BonusAmount = split.BonusAmount
	staged.ExecutorReward = split.ExecutorReward
	staged.Executor = caller
	executedAt := e.now()
	staged.ExecutedAt = &executedAt

	if err := e.store.UpdatePool(ctx, staged); err != nil {
		// The assets are already in escrow and cannot be un-swapped.
		e.log.Error("commit after conversion failed",
			"pool", id, "legs", n, "amount_per_swap", split.AmountPerSwap.String(), "err", err)
		return nil, fmt.Errorf("commit execution: %w", err)
	}

	metrics.SwapBatches.WithLabelValues("ok").Inc()
	metrics.SwapBatchSize.Observe(float64(n))
	for _, pt := range staged.Participants {
		e.record(ctx, id, pt.Identity, model.LedgerSwap, pt.AssignedAsset, pt.AssetAmount, executedAt)
	}
	e.log.Info("swaps executed",
		"pool", id,
		"executor", caller.Hex(),
		"participants", n,
		"amount_per_swap", split.AmountPerSwap.String(),
		"bonus", split.BonusAmount.String(),
		"reward", split.ExecutorReward.String(),
		"dust", split.Dust.String(),
	)
	e.notifier.Notify(Event{
		Type:   EventSwapsExecuted,
		PoolID: id,
		Caller: caller,
		Phase:  staged.Phase,
		Amount: split.AmountPerSwap.String(),
		Count:  n,
	})

	if split.ExecutorReward.IsPositive() {
		reward := chain.Payout{Asset: model.NativeAsset, Recipient: caller, Amount: split.ExecutorReward}
		if err := e.escrow.Transfer(ctx, reward); err != nil {
			metrics.PayoutFailures.WithLabelValues(string(model.LedgerExecutorReward)).Inc()
			e.log.Error("executor reward transfer failed",
				"pool", id, "executor", caller.Hex(), "reward", split.ExecutorReward.String(), "err", err)
			staged.RewardPending = true
			if uerr := e.store.UpdatePool(ctx, staged); uerr != nil {
				e.log.Error("record pending reward", "pool", id, "err", uerr)
			}
			return staged, fmt.Errorf("%w: executor reward: %w", ErrTransferFailed, err)
		}
		metrics.Payouts.WithLabelValues(string(model.LedgerExecutorReward)).Inc()
		e.record(ctx, id, caller, model.LedgerExecutorReward, model.NativeAsset, split.ExecutorReward, e.now())
	}
	return staged, nil
}

// convert wraps amount of escrowed native value, approves the router and
// submits every leg at once. On failure the wrapped value is returned to
// native form.
func (e *Engine) convert(ctx context.Context, legs []chain.ConvertRequest, amount decimal.Decimal) ([]decimal.Decimal, error) {
	wrapped, err := e.wrapper.Wrap(ctx, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: wrap %s: %w", ErrConversionFailed, amount, err)
	}

	unwind := func() {
		if err := e.wrapper.Approve(ctx, e.router, decimal.Zero); err != nil {
			e.log.Error("reset router allowance failed", "router", e.router.Hex(), "err", err)
		}
		if err := e.wrapper.Unwrap(ctx, wrapped); err != nil {
			e.log.Error("unwrap after failed conversion", "amount", wrapped.String(), "err", err)
		}
	}

	if err := e.wrapper.Approve(ctx, e.router, wrapped); err != nil {
		unwind()
		return nil, fmt.Errorf("%w: approve router: %w", ErrConversionFailed, err)
	}
	outs, err := e.exchange.Convert(ctx, legs...)
	if err != nil {
		unwind()
		return nil, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if len(outs) != len(legs) {
		// A short answer means the batch did not settle as a whole.
		unwind()
		return nil, fmt.Errorf("%w: exchange returned %d outputs for %d legs", ErrConversionFailed, len(outs), len(legs))
	}
	return outs, nil
}

// ClaimExecutorReward pays the executor a reward whose transfer failed
// during ExecuteSwaps.
func (e *Engine) ClaimExecutorReward(ctx context.Context, id uint64, caller common.Address) (*Receipt, error) {
	ctx, done, err := e.enter(ctx, "claim_executor_reward")
	if err != nil {
		return nil, err
	}
	defer done()

	p, err := e.store.GetPoolForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case !p.Phase.SwapsExecuted():
		return nil, ErrNotExecuted
	case caller != p.Executor:
		return nil, fmt.Errorf("%w: %s", ErrNotExecutor, caller.Hex())
	case !p.RewardPending:
		return nil, ErrAlreadyClaimed
	}

	staged := p.Clone()
	staged.RewardPending = false
	payouts := []payout{{
		Payout: chain.Payout{Asset: model.NativeAsset, Recipient: caller, Amount: p.ExecutorReward},
		kind:   model.LedgerExecutorReward,
	}}
	if err := e.settle(ctx, p, staged, payouts); err != nil {
		return nil, err
	}

	e.log.Info("executor reward claimed", "pool", id, "executor", caller.Hex(), "reward", p.ExecutorReward.String())
	return receipt(id, payouts), nil
}
