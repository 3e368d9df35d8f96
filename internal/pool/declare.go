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

// RecordPricesAndDeclareWinner reads every participant's unlock price,
// computes percent gains and fixes the winner. All prices are read before
// anything is recorded; a missing venue or price fails the whole call.
func (e *Engine) RecordPricesAndDeclareWinner(ctx context.Context, id uint64, caller common.Address) (*model.Pool, error) {
	ctx, done, err := e.enter(ctx, "declare_winner")
	if err != nil {
		return nil, err
	}
	defer done()

	p, err := e.store.GetPoolForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}

	switch {
	case e.now().Before(p.UnlockTime):
		return nil, fmt.Errorf("%w: unlocks at %s", ErrTooEarly, p.UnlockTime.Format(time.RFC3339))
	case p.Phase.Cancelled():
		return nil, ErrCancelled
	case !p.Phase.SwapsExecuted():
		return nil, ErrNotExecuted
	case p.Phase.WinnerDeclared():
		return nil, ErrAlreadyDeclared
	}

	prices := make([]decimal.Decimal, len(p.Participants))
	for i, pt := range p.Participants {
		venue := pt.AssignedVenue
		if venue == (common.Address{}) {
			var ok bool
			if venue, ok = p.VenueFor(pt.AssignedAsset); !ok {
				return nil, fmt.Errorf("%w: %w: no venue for asset %s",
					ErrPriceUnavailable, chain.ErrUnknownVenue, pt.AssignedAsset.Hex())
			}
		}
		price, err := e.oracle.CurrentPriceMeasure(ctx, venue)
		if err != nil {
			return nil, fmt.Errorf("%w: venue %s: %w", ErrPriceUnavailable, venue.Hex(), err)
		}
		prices[i] = price
	}

	staged := p.Clone()
	for i := range staged.Participants {
		pt := &staged.Participants[i]
		pt.UnlockPriceMeasure = prices[i]
		pt.PercentGain = PercentGain(pt.EntryPriceMeasure, prices[i])
	}
	w := winnerIndex(staged.Participants)
	if w < 0 {
		return nil, ErrNoParticipants
	}
	if err := transition(staged, model.PhaseDeclared); err != nil {
		return nil, err
	}
	staged.Winner = staged.Participants[w].Identity
	declaredAt := e.now()
	staged.DeclaredAt = &declaredAt

	if err := e.store.UpdatePool(ctx, staged); err != nil {
		return nil, fmt.Errorf("commit declaration: %w", err)
	}

	metrics.WinnersDeclared.Inc()
	e.log.Info("winner declared",
		"pool", id,
		"caller", caller.Hex(),
		"winner", staged.Winner.Hex(),
		"percent_gain_bps", staged.Participants[w].PercentGain.String(),
	)
	e.notifier.Notify(Event{
		Type:   EventWinnerDeclared,
		PoolID: id,
		Caller: caller,
		Phase:  staged.Phase,
		Winner: staged.Winner,
		Amount: staged.BonusAmount.String(),
	})
	return staged, nil
}
