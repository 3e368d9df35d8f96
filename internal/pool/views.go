package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/memepool/pool-engine/internal/model"
)

// GetPoolSummary returns the overview of pool id.
func (e *Engine) GetPoolSummary(ctx context.Context, id uint64) (*model.PoolSummary, error) {
	p, err := e.store.GetPool(ctx, id)
	if err != nil {
		return nil, err
	}
	s := e.summarize(p, e.now())
	return &s, nil
}

// ListPools returns a summary of every pool in ID order.
func (e *Engine) ListPools(ctx context.Context) ([]model.PoolSummary, error) {
	pools, err := e.store.ListPools(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	out := make([]model.PoolSummary, 0, len(pools))
	for i := range pools {
		out = append(out, e.summarize(&pools[i], now))
	}
	return out, nil
}

// PoolCount returns how many pools have been created.
func (e *Engine) PoolCount(ctx context.Context) (uint64, error) {
	return e.store.PoolCount(ctx)
}

// GetMyStatus returns caller's position in pool id.
func (e *Engine) GetMyStatus(ctx context.Context, id uint64, caller common.Address) (*model.ParticipantStatus, error) {
	p, err := e.store.GetPool(ctx, id)
	if err != nil {
		return nil, err
	}
	i := p.ParticipantIndex(caller)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotParticipant, caller.Hex())
	}
	pt := p.Participants[i]
	return &model.ParticipantStatus{
		PoolID:             id,
		Identity:           pt.Identity,
		AssignedAsset:      pt.AssignedAsset,
		AssetAmount:        pt.AssetAmount,
		EntryPriceMeasure:  pt.EntryPriceMeasure,
		UnlockPriceMeasure: pt.UnlockPriceMeasure,
		PercentGain:        pt.PercentGain,
		HasClaimed:         pt.HasClaimed,
		IsWinner:           p.Phase.WinnerDeclared() && pt.Identity == p.Winner,
	}, nil
}

// GetAssignments lists every participant and the asset drawn for them.
// The list stays hidden until the join deadline.
func (e *Engine) GetAssignments(ctx context.Context, id uint64) ([]model.Assignment, error) {
	p, err := e.store.GetPool(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.now().Before(p.JoinDeadline) {
		return nil, fmt.Errorf("%w: assignments hidden until %s", ErrTooEarly, p.JoinDeadline.Format(time.RFC3339))
	}
	out := make([]model.Assignment, len(p.Participants))
	for i, pt := range p.Participants {
		out[i] = model.Assignment{
			Identity:      pt.Identity,
			AssignedAsset: pt.AssignedAsset,
			AssetAmount:   pt.AssetAmount,
		}
	}
	return out, nil
}

// GetLeaderboard ranks participants once the winner is declared.
func (e *Engine) GetLeaderboard(ctx context.Context, id uint64) ([]model.LeaderboardEntry, error) {
	p, err := e.store.GetPool(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Phase.WinnerDeclared() {
		return nil, ErrNotDeclared
	}
	return Leaderboard(p), nil
}

// Ledger returns every value movement recorded for pool id.
func (e *Engine) Ledger(ctx context.Context, id uint64) ([]model.LedgerEntry, error) {
	if _, err := e.store.GetPool(ctx, id); err != nil {
		return nil, err
	}
	return e.store.GetLedgerEntriesByPool(ctx, id)
}

// History returns every value movement involving identity.
func (e *Engine) History(ctx context.Context, identity common.Address) ([]model.LedgerEntry, error) {
	return e.store.GetLedgerEntriesByIdentity(ctx, identity)
}

func (e *Engine) summarize(p *model.Pool, now time.Time) model.PoolSummary {
	return model.PoolSummary{
		ID:               p.ID,
		Name:             p.Name,
		Creator:          p.Creator,
		EntryAmount:      p.EntryAmount,
		JoinDeadline:     p.JoinDeadline,
		UnlockTime:       p.UnlockTime,
		WhitelistCount:   len(p.Whitelist),
		ParticipantCount: len(p.Participants),
		SwapsExecuted:    p.Phase.SwapsExecuted(),
		WinnerDeclared:   p.Phase.WinnerDeclared(),
		Cancelled:        p.Phase.Cancelled(),
		Stage:            e.stage(p, now),
		Winner:           p.Winner,
		BonusAmount:      p.BonusAmount,
		RewardPending:    p.RewardPending,
	}
}

// stage folds the clock into the phase.
func (e *Engine) stage(p *model.Pool, now time.Time) model.Stage {
	switch p.Phase {
	case model.PhaseExecuted:
		return model.StageExecuted
	case model.PhaseDeclared:
		return model.StageDeclared
	case model.PhaseCancelled:
		return model.StageCancelled
	case model.PhaseRefunding:
		return model.StageRefunding
	}
	switch {
	case now.Before(p.JoinDeadline):
		return model.StageJoining
	case now.Before(p.JoinDeadline.Add(e.refundDelay)):
		return model.StageJoinClosed
	default:
		return model.StageRefundEligible
	}
}
