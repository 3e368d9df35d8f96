// Package chain declares the external collaborators the pool engine
// consumes: the exchange that converts escrow into risk assets, the wrapping
// primitive, the price oracle, the escrow account that moves value, and the
// randomness beacon. Implementations live in sub-packages.
package chain

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	// ErrSlippage is returned by an Exchange when a leg's output falls
	// below its minimum.
	ErrSlippage = errors.New("chain: output below minimum")

	// ErrNoLiquidity is returned when a venue cannot fill a leg.
	ErrNoLiquidity = errors.New("chain: insufficient liquidity")

	// ErrInsufficientBalance is returned by an Escrow or Wrapper that does
	// not hold enough of an asset.
	ErrInsufficientBalance = errors.New("chain: insufficient balance")

	// ErrTransferRejected is returned when a recipient refuses a payout.
	ErrTransferRejected = errors.New("chain: transfer rejected")

	// ErrUnknownVenue is returned by an oracle asked about a venue it does
	// not track.
	ErrUnknownVenue = errors.New("chain: unknown venue")
)

// ConvertRequest is one exchange leg: sell AmountIn of InputAsset for
// OutputAsset, delivering to Recipient, or fail.
type ConvertRequest struct {
	InputAsset   common.Address
	OutputAsset  common.Address
	FeeTier      uint32
	Recipient    common.Address
	AmountIn     decimal.Decimal
	MinAmountOut decimal.Decimal
	Deadline     time.Time
}

// Exchange converts escrowed value into risk-asset positions. Every leg of
// a call settles or none does; a leg whose output is below MinAmountOut
// fails the whole call. Outputs are returned in leg order.
type Exchange interface {
	Convert(ctx context.Context, legs ...ConvertRequest) ([]decimal.Decimal, error)
}

// Wrapper turns native value into the fungible form the Exchange trades.
type Wrapper interface {
	Wrap(ctx context.Context, amount decimal.Decimal) (decimal.Decimal, error)
	Unwrap(ctx context.Context, amount decimal.Decimal) error
	Approve(ctx context.Context, spender common.Address, amount decimal.Decimal) error
}

// PriceOracle reads a price measure from a venue. Measures are only
// comparable within the same venue.
type PriceOracle interface {
	CurrentPriceMeasure(ctx context.Context, venue common.Address) (decimal.Decimal, error)
}

// Payout moves Amount of Asset from escrow to Recipient. The zero address
// asset is native value.
type Payout struct {
	Asset     common.Address  `json:"asset"`
	Recipient common.Address  `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
}

// Escrow holds deposited value and converted positions.
type Escrow interface {
	// Collect pulls a deposit from a participant into escrow.
	Collect(ctx context.Context, from common.Address, amount decimal.Decimal) error
	// Transfer pays every payout or none of them.
	Transfer(ctx context.Context, payouts ...Payout) error
}

// Beacon supplies the seed for the asset draw. Seeds derived from clock or
// block state are predictable to whoever triggers the draw.
type Beacon interface {
	Seed(ctx context.Context, poolID uint64) ([]byte, error)
}
