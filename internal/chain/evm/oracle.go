// Package evm reads price measures from Uniswap-V3 style pools over
// JSON-RPC.
package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/memepool/pool-engine/internal/chain"
)

// slot0Selector is the 4-byte selector of slot0().
var slot0Selector = crypto.Keccak256([]byte("slot0()"))[:4]

// ContractCaller is the read-only subset of an RPC client the oracle needs.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Oracle reports a venue's sqrtPriceX96 as its price measure. The value is
// only comparable with other readings of the same venue.
type Oracle struct {
	caller ContractCaller
}

// NewOracle creates an oracle over caller.
func NewOracle(caller ContractCaller) *Oracle {
	return &Oracle{caller: caller}
}

// Dial connects to rpcURL and returns an oracle plus the client to close.
func Dial(ctx context.Context, rpcURL string) (*Oracle, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("evm: dial %s: %w", rpcURL, err)
	}
	return NewOracle(client), client, nil
}

func (o *Oracle) CurrentPriceMeasure(ctx context.Context, venue common.Address) (decimal.Decimal, error) {
	out, err := o.caller.CallContract(ctx, ethereum.CallMsg{To: &venue, Data: slot0Selector}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("evm: slot0 on %s: %w", venue.Hex(), err)
	}
	if len(out) < 32 {
		// A venue with no code answers with empty data.
		return decimal.Zero, fmt.Errorf("%w: %s returned %d bytes", chain.ErrUnknownVenue, venue.Hex(), len(out))
	}
	sqrtPrice := new(big.Int).SetBytes(out[:32])
	return decimal.NewFromBigInt(sqrtPrice, 0), nil
}

var _ chain.PriceOracle = (*Oracle)(nil)
