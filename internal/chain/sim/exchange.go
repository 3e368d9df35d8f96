package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/memepool/pool-engine/internal/chain"
)

// Exchange fills legs at a fixed per-asset rate (output units per input
// unit), settling against a Ledger. Legs are validated together and settle
// together.
type Exchange struct {
	mu      sync.Mutex
	ledger  *Ledger
	router  common.Address
	now     func() time.Time
	rates   map[common.Address]decimal.Decimal
	deflt   decimal.Decimal
	failing map[common.Address]error
}

// NewExchange creates an exchange acting as router over ledger.
func NewExchange(ledger *Ledger, router common.Address) *Exchange {
	return &Exchange{
		ledger:  ledger,
		router:  router,
		now:     func() time.Time { return time.Now().UTC() },
		rates:   make(map[common.Address]decimal.Decimal),
		failing: make(map[common.Address]error),
	}
}

// Router returns the spender address escrow must approve.
func (e *Exchange) Router() common.Address { return e.router }

// SetClock overrides the deadline clock.
func (e *Exchange) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// SetRate sets how many units of asset one input unit buys.
func (e *Exchange) SetRate(asset common.Address, rate decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rates[asset] = rate
}

// SetDefaultRate sets the rate for assets without their own; zero leaves
// them without liquidity.
func (e *Exchange) SetDefaultRate(rate decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deflt = rate
}

// Fail makes every leg buying asset fail with err; nil clears it.
func (e *Exchange) Fail(asset common.Address, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.failing, asset)
		return
	}
	e.failing[asset] = err
}

// Convert quotes every leg, rejects the call if any leg fails, then
// settles all legs at once.
func (e *Exchange) Convert(_ context.Context, legs ...chain.ConvertRequest) ([]decimal.Decimal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(legs) == 0 {
		return nil, nil
	}
	now := e.now()
	recipient := legs[0].Recipient
	outs := make([]decimal.Decimal, len(legs))
	for i, leg := range legs {
		if leg.InputAsset != e.ledger.Wrapped() {
			return nil, fmt.Errorf("sim: leg %d: unsupported input %s", i, leg.InputAsset.Hex())
		}
		if leg.Recipient != recipient {
			return nil, fmt.Errorf("sim: leg %d: mixed recipients", i)
		}
		if !leg.Deadline.IsZero() && now.After(leg.Deadline) {
			return nil, fmt.Errorf("sim: leg %d: deadline passed", i)
		}
		if err := e.failing[leg.OutputAsset]; err != nil {
			return nil, fmt.Errorf("leg %d: %w", i, err)
		}
		rate, ok := e.rates[leg.OutputAsset]
		if !ok {
			rate = e.deflt
		}
		if !rate.IsPositive() {
			return nil, fmt.Errorf("%w: leg %d: %s", chain.ErrNoLiquidity, i, leg.OutputAsset.Hex())
		}
		out := leg.AmountIn.Mul(rate).Floor()
		if out.LessThan(leg.MinAmountOut) || !out.IsPositive() {
			return nil, fmt.Errorf("%w: leg %d: got %s, want %s", chain.ErrSlippage, i, out, leg.MinAmountOut)
		}
		outs[i] = out
	}

	if err := e.ledger.swap(e.router, recipient, legs, outs); err != nil {
		return nil, err
	}
	return outs, nil
}
