// Package sim provides in-process implementations of the chain
// collaborators: an escrow ledger that also acts as the wrapping primitive,
// a fixed-rate exchange and a settable price oracle. The server uses them
// when no chain is configured; tests use them to script failures.
package sim

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/memepool/pool-engine/internal/chain"
	"github.com/memepool/pool-engine/internal/model"
)

// Ledger tracks balances of every holder in every asset. One holder, the
// escrow address, is the pool engine's own account.
type Ledger struct {
	mu         sync.Mutex
	escrow     common.Address
	wrapped    common.Address
	balances   map[common.Address]map[common.Address]decimal.Decimal // holder → asset → amount
	allowances map[common.Address]decimal.Decimal                    // spender → wrapped amount
	rejecting  map[common.Address]bool
	attached   bool
}

// NewLedger creates a ledger whose own account is escrow and whose wrapped
// form of native value is the wrapped asset.
func NewLedger(escrow, wrapped common.Address) *Ledger {
	return &Ledger{
		escrow:     escrow,
		wrapped:    wrapped,
		balances:   make(map[common.Address]map[common.Address]decimal.Decimal),
		allowances: make(map[common.Address]decimal.Decimal),
		rejecting:  make(map[common.Address]bool),
	}
}

// Escrow returns the engine's own account address.
func (l *Ledger) Escrow() common.Address { return l.escrow }

// Wrapped returns the wrapped-native asset address.
func (l *Ledger) Wrapped() common.Address { return l.wrapped }

// Fund credits amount of asset to holder.
func (l *Ledger) Fund(holder, asset common.Address, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(holder, asset, amount)
}

// Balance returns holder's balance of asset.
func (l *Ledger) Balance(holder, asset common.Address) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(holder, asset)
}

// Reject makes every future payout to recipient fail.
func (l *Ledger) Reject(recipient common.Address, reject bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rejecting[recipient] = reject
}

// AttachValue switches Collect to treat every deposit as value attached to
// the join call: escrow is credited and the sender's balance is not
// consulted. A server without a chain runs this way.
func (l *Ledger) AttachValue(on bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attached = on
}

// Collect moves a deposit from a participant into escrow.
func (l *Ledger) Collect(_ context.Context, from common.Address, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.attached {
		l.credit(l.escrow, model.NativeAsset, amount)
		return nil
	}
	if l.balance(from, model.NativeAsset).LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", chain.ErrInsufficientBalance,
			from.Hex(), l.balance(from, model.NativeAsset), amount)
	}
	l.debit(from, model.NativeAsset, amount)
	l.credit(l.escrow, model.NativeAsset, amount)
	return nil
}

// Transfer pays out of escrow. All payouts are checked before any moves.
func (l *Ledger) Transfer(_ context.Context, payouts ...chain.Payout) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	need := make(map[common.Address]decimal.Decimal)
	for _, p := range payouts {
		if l.rejecting[p.Recipient] {
			return fmt.Errorf("%w: %s", chain.ErrTransferRejected, p.Recipient.Hex())
		}
		if p.Amount.IsNegative() {
			return fmt.Errorf("sim: negative payout %s", p.Amount)
		}
		need[p.Asset] = need[p.Asset].Add(p.Amount)
	}
	for asset, amount := range need {
		if have := l.balance(l.escrow, asset); have.LessThan(amount) {
			return fmt.Errorf("%w: escrow holds %s of %s, needs %s",
				chain.ErrInsufficientBalance, have, asset.Hex(), amount)
		}
	}
	for _, p := range payouts {
		l.debit(l.escrow, p.Asset, p.Amount)
		l.credit(p.Recipient, p.Asset, p.Amount)
	}
	return nil
}

// Wrap converts escrowed native value into the wrapped asset one-to-one.
func (l *Ledger) Wrap(_ context.Context, amount decimal.Decimal) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balance(l.escrow, model.NativeAsset).LessThan(amount) {
		return decimal.Zero, fmt.Errorf("%w: wrap %s", chain.ErrInsufficientBalance, amount)
	}
	l.debit(l.escrow, model.NativeAsset, amount)
	l.credit(l.escrow, l.wrapped, amount)
	return amount, nil
}

// Unwrap converts wrapped value held by escrow back to native.
func (l *Ledger) Unwrap(_ context.Context, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balance(l.escrow, l.wrapped).LessThan(amount) {
		return fmt.Errorf("%w: unwrap %s", chain.ErrInsufficientBalance, amount)
	}
	l.debit(l.escrow, l.wrapped, amount)
	l.credit(l.escrow, model.NativeAsset, amount)
	return nil
}

// Approve lets spender move amount of escrow's wrapped balance.
func (l *Ledger) Approve(_ context.Context, spender common.Address, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[spender] = amount
	return nil
}

// Allowance returns what spender may still move.
func (l *Ledger) Allowance(spender common.Address) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allowances[spender]
}

// swap settles exchange legs against escrow's wrapped balance on behalf of
// spender. Caller has validated outputs; this checks funds and allowance.
func (l *Ledger) swap(spender, recipient common.Address, legs []chain.ConvertRequest, outs []decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := decimal.Zero
	for _, leg := range legs {
		total = total.Add(leg.AmountIn)
	}
	if l.allowances[spender].LessThan(total) {
		return fmt.Errorf("%w: allowance %s < %s", chain.ErrInsufficientBalance, l.allowances[spender], total)
	}
	if l.balance(l.escrow, l.wrapped).LessThan(total) {
		return fmt.Errorf("%w: escrow wrapped balance below %s", chain.ErrInsufficientBalance, total)
	}

	l.allowances[spender] = l.allowances[spender].Sub(total)
	l.debit(l.escrow, l.wrapped, total)
	for i, leg := range legs {
		l.credit(recipient, leg.OutputAsset, outs[i])
	}
	return nil
}

func (l *Ledger) balance(holder, asset common.Address) decimal.Decimal {
	return l.balances[holder][asset]
}

func (l *Ledger) credit(holder, asset common.Address, amount decimal.Decimal) {
	if l.balances[holder] == nil {
		l.balances[holder] = make(map[common.Address]decimal.Decimal)
	}
	l.balances[holder][asset] = l.balances[holder][asset].Add(amount)
}

func (l *Ledger) debit(holder, asset common.Address, amount decimal.Decimal) {
	l.balances[holder][asset] = l.balances[holder][asset].Sub(amount)
}
