package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/memepool/pool-engine/internal/chain"
)

// Oracle returns whatever price was last set for a venue, or the default
// price when one is set.
type Oracle struct {
	mu     sync.RWMutex
	prices map[common.Address]decimal.Decimal
	deflt  decimal.Decimal
}

// NewOracle creates an empty oracle.
func NewOracle() *Oracle {
	return &Oracle{prices: make(map[common.Address]decimal.Decimal)}
}

// SetPrice sets the price measure reported for venue.
func (o *Oracle) SetPrice(venue common.Address, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[venue] = price
}

// SetDefaultPrice sets the measure reported for venues without their own.
func (o *Oracle) SetDefaultPrice(price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deflt = price
}

func (o *Oracle) CurrentPriceMeasure(_ context.Context, venue common.Address) (decimal.Decimal, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	p, ok := o.prices[venue]
	if !ok && o.deflt.IsPositive() {
		return o.deflt, nil
	}
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", chain.ErrUnknownVenue, venue.Hex())
	}
	return p, nil
}
