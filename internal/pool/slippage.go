package pool

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Quote is what a MinOutPolicy sees for one conversion leg.
type Quote struct {
	Venue        common.Address
	OutputAsset  common.Address
	AmountIn     decimal.Decimal
	PriceMeasure decimal.Decimal // venue reading taken just before the batch
	SlippageBps  uint32          // minimum share of the expected output, in bps
}

// MinOutPolicy decides the minimum acceptable output of a leg.
type MinOutPolicy interface {
	MinOut(ctx context.Context, q Quote) (decimal.Decimal, error)
}

// AnyNonZero accepts any positive output. It offers no price protection.
type AnyNonZero struct{}

func (AnyNonZero) MinOut(context.Context, Quote) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), nil
}

// OracleQuote expects AmountIn × PriceMeasure / Scale output units and
// demands SlippageBps of that, never less than one unit. Scale converts the
// venue's price measure into output units per input unit.
type OracleQuote struct {
	Scale decimal.Decimal
}

func (o OracleQuote) MinOut(_ context.Context, q Quote) (decimal.Decimal, error) {
	if !o.Scale.IsPositive() {
		return decimal.Zero, fmt.Errorf("pool: oracle quote scale must be positive, got %s", o.Scale)
	}
	if !q.PriceMeasure.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: venue %s reports %s", ErrPriceUnavailable, q.Venue.Hex(), q.PriceMeasure)
	}
	expected := q.AmountIn.Mul(q.PriceMeasure).Div(o.Scale)
	minOut := bps(expected, q.SlippageBps)
	if minOut.LessThan(decimal.NewFromInt(1)) {
		minOut = decimal.NewFromInt(1)
	}
	return minOut, nil
}
