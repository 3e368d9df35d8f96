// Package pool implements the lottery lifecycle: deposits into escrow,
// the all-or-nothing batch conversion into randomly drawn risk assets,
// winner declaration by percent gain and the payout and recovery paths.
//
// All monetary values use shopspring/decimal and are integer base units.
// Every mutating operation runs inside a guard.Guard section, so calls are
// serialized and a collaborator calling back into the engine is refused.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/memepool/pool-engine/internal/chain"
	"github.com/memepool/pool-engine/internal/guard"
	"github.com/memepool/pool-engine/internal/metrics"
	"github.com/memepool/pool-engine/internal/model"
	"github.com/memepool/pool-engine/internal/params"
	"github.com/memepool/pool-engine/internal/store"
)

// Defaults applied by New when the corresponding option is zero.
const (
	DefaultFeeTier      uint32 = 10000
	DefaultRewardBps    uint32 = 100
	DefaultBonusBps     uint32 = 900
	DefaultRefundDelay         = 24 * time.Hour
	DefaultSwapDeadline        = 5 * time.Minute
)

const bpsDenominator = 10000

// Options wires an Engine to its store and collaborators.
type Options struct {
	Store    store.Store
	Guard    guard.Guard
	Exchange chain.Exchange
	Wrapper  chain.Wrapper
	Oracle   chain.PriceOracle
	Escrow   chain.Escrow
	Beacon   chain.Beacon
	MinOut   MinOutPolicy
	Notifier Notifier
	Logger   *slog.Logger

	// Self receives converted assets; Router is approved to spend the
	// wrapped escrow; WrappedNative is the input asset of every leg.
	Self          common.Address
	Router        common.Address
	WrappedNative common.Address

	FeeTier        uint32
	RewardBps      uint32
	BonusBps       uint32
	SwapDeadline   time.Duration
	RefundDelay    time.Duration
	MaxHorizon     time.Duration
	EmergencyDelay time.Duration // 0 leaves emergency withdrawal ungated

	Now func() time.Time
}

// Engine runs pool operations against a Store.
type Engine struct {
	store    store.Store
	guard    guard.Guard
	exchange chain.Exchange
	wrapper  chain.Wrapper
	oracle   chain.PriceOracle
	escrow   chain.Escrow
	beacon   chain.Beacon
	minOut   MinOutPolicy
	notifier Notifier
	log      *slog.Logger

	self          common.Address
	router        common.Address
	wrappedNative common.Address

	feeTier        uint32
	rewardBps      uint32
	bonusBps       uint32
	swapDeadline   time.Duration
	refundDelay    time.Duration
	maxHorizon     time.Duration
	emergencyDelay time.Duration

	now func() time.Time
}

// New validates opts and fills defaults.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("pool: store is required")
	case opts.Exchange == nil || opts.Wrapper == nil:
		return nil, errors.New("pool: exchange and wrapper are required")
	case opts.Oracle == nil:
		return nil, errors.New("pool: price oracle is required")
	case opts.Escrow == nil:
		return nil, errors.New("pool: escrow is required")
	case opts.Self == (common.Address{}):
		return nil, errors.New("pool: self address is required")
	}
	if opts.RewardBps+opts.BonusBps >= bpsDenominator {
		return nil, fmt.Errorf("pool: reward %d bps + bonus %d bps leaves nothing to convert",
			opts.RewardBps, opts.BonusBps)
	}

	e := &Engine{
		store:          opts.Store,
		guard:          opts.Guard,
		exchange:       opts.Exchange,
		wrapper:        opts.Wrapper,
		oracle:         opts.Oracle,
		escrow:         opts.Escrow,
		beacon:         opts.Beacon,
		minOut:         opts.MinOut,
		notifier:       opts.Notifier,
		log:            opts.Logger,
		self:           opts.Self,
		router:         opts.Router,
		wrappedNative:  opts.WrappedNative,
		feeTier:        opts.FeeTier,
		rewardBps:      opts.RewardBps,
		bonusBps:       opts.BonusBps,
		swapDeadline:   opts.SwapDeadline,
		refundDelay:    opts.RefundDelay,
		maxHorizon:     opts.MaxHorizon,
		emergencyDelay: opts.EmergencyDelay,
		now:            opts.Now,
	}
	if e.guard == nil {
		e.guard = guard.NewLocal()
	}
	if e.beacon == nil {
		e.beacon = chain.ClockBeacon{Now: opts.Now}
	}
	if e.minOut == nil {
		e.minOut = AnyNonZero{}
	}
	if e.notifier == nil {
		e.notifier = nopNotifier{}
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.feeTier == 0 {
		e.feeTier = DefaultFeeTier
	}
	if e.rewardBps == 0 && e.bonusBps == 0 {
		e.rewardBps, e.bonusBps = DefaultRewardBps, DefaultBonusBps
	}
	if e.swapDeadline <= 0 {
		e.swapDeadline = DefaultSwapDeadline
	}
	if e.refundDelay <= 0 {
		e.refundDelay = DefaultRefundDelay
	}
	if e.maxHorizon <= 0 {
		e.maxHorizon = params.DefaultMaxHorizon
	}
	if e.now == nil {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	return e, nil
}

// CreatePool validates a creation request from creator and appends the
// pool to the registry, returning its ID.
func (e *Engine) CreatePool(ctx context.Context, creator common.Address, req params.CreateRequest) (uint64, error) {
	ctx, done, err := e.enter(ctx, "create")
	if err != nil {
		return 0, err
	}
	defer done()

	now := e.now()
	prm, err := params.Parse(req, creator, now)
	if err != nil {
		return 0, err
	}
	if err := prm.Validate(now, e.maxHorizon); err != nil {
		return 0, err
	}

	p := &model.Pool{
		Name:                 prm.Name,
		Creator:              prm.Creator,
		Whitelist:            prm.Whitelist,
		EntryAmount:          prm.EntryAmount,
		JoinDeadline:         prm.JoinDeadline,
		UnlockTime:           prm.UnlockTime,
		RiskAssets:           prm.RiskAssets,
		ExchangeVenues:       prm.ExchangeVenues,
		SlippageToleranceBps: prm.SlippageToleranceBps,
		FeeTier:              e.feeTier,
		Phase:                model.PhaseOpen,
		AmountPerSwap:        decimal.Zero,
		BonusAmount:          decimal.Zero,
		ExecutorReward:       decimal.Zero,
		CreatedAt:            now,
	}
	id, err := e.store.CreatePool(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("create pool: %w", err)
	}

	metrics.PoolsCreated.Inc()
	e.log.Info("pool created",
		"pool", id,
		"name", p.Name,
		"creator", creator.Hex(),
		"entry_amount", p.EntryAmount.String(),
		"whitelist", len(p.Whitelist),
		"join_deadline", p.JoinDeadline,
		"unlock_time", p.UnlockTime,
	)
	e.notifier.Notify(Event{Type: EventPoolCreated, PoolID: id, Caller: creator, Phase: p.Phase})
	return id, nil
}

// Join deposits amount from caller into pool id. amount must equal the
// pool's entry amount exactly.
func (e *Engine) Join(ctx context.Context, id uint64, caller common.Address, amount decimal.Decimal) error {
	ctx, done, err := e.enter(ctx, "join")
	if err != nil {
		return err
	}
	defer done()

	p, err := e.store.GetPoolForUpdate(ctx, id)
	if err != nil {
		return err
	}

	switch {
	case !p.IsWhitelisted(caller):
		return fmt.Errorf("%w: %s", ErrNotWhitelisted, caller.Hex())
	case p.ParticipantIndex(caller) >= 0:
		return fmt.Errorf("%w: %s", ErrAlreadyJoined, caller.Hex())
	case p.Phase.Cancelled():
		return ErrCancelled
	case p.Phase == model.PhaseRefunding:
		return ErrRefundsStarted
	case p.Phase.SwapsExecuted():
		return ErrAlreadyExecuted
	case !e.now().Before(p.JoinDeadline):
		return fmt.Errorf("%w: join deadline %s passed", ErrTooLate, p.JoinDeadline.Format(time.RFC3339))
	case !amount.Equal(p.EntryAmount):
		return fmt.Errorf("%w: got %s, want %s", ErrWrongAmount, amount, p.EntryAmount)
	}

	if err := e.escrow.Collect(ctx, caller, amount); err != nil {
		return fmt.Errorf("%w: collect deposit: %w", ErrTransferFailed, err)
	}

	now := e.now()
	p.Participants = append(p.Participants, model.Participant{
		Identity:           caller,
		AssetAmount:        decimal.Zero,
		EntryPriceMeasure:  decimal.Zero,
		UnlockPriceMeasure: decimal.Zero,
		PercentGain:        decimal.Zero,
		JoinedAt:           now,
	})
	if err := e.store.UpdatePool(ctx, p); err != nil {
		// The deposit is already in escrow; hand it back.
		if rerr := e.escrow.Transfer(ctx, chain.Payout{Asset: model.NativeAsset, Recipient: caller, Amount: amount}); rerr != nil {
			e.log.Error("deposit return failed after commit error",
				"pool", id, "caller", caller.Hex(), "amount", amount.String(), "err", rerr)
		}
		return fmt.Errorf("commit join: %w", err)
	}

	e.record(ctx, id, caller, model.LedgerDeposit, model.NativeAsset, amount, now)
	metrics.Joins.Inc()
	e.log.Info("participant joined",
		"pool", id,
		"caller", caller.Hex(),
		"amount", amount.String(),
		"participants", len(p.Participants),
	)
	e.notifier.Notify(Event{Type: EventJoined, PoolID: id, Caller: caller, Amount: amount.String(), Phase: p.Phase})
	return nil
}

// enter opens a guarded section for op and returns the marked context plus
// a func that releases it and records the latency.
func (e *Engine) enter(ctx context.Context, op string) (context.Context, func(), error) {
	start := time.Now()
	inner, release, err := e.guard.Enter(ctx)
	if err != nil {
		return ctx, nil, fmt.Errorf("%s: %w", op, err)
	}
	return inner, func() {
		release()
		metrics.ObserveOp(op, start)
	}, nil
}

// payout is one transfer out of escrow plus the ledger kind it records as.
type payout struct {
	chain.Payout
	kind model.LedgerKind
}

// settle commits staged, then moves value. If the escrow refuses, the
// previous record is restored so the operation leaves no trace.
func (e *Engine) settle(ctx context.Context, orig, staged *model.Pool, payouts []payout) error {
	if err := e.store.UpdatePool(ctx, staged); err != nil {
		return fmt.Errorf("commit pool %d: %w", staged.ID, err)
	}

	transfers := make([]chain.Payout, 0, len(payouts))
	for _, po := range payouts {
		if po.Amount.IsPositive() {
			transfers = append(transfers, po.Payout)
		}
	}
	if len(transfers) > 0 {
		if err := e.escrow.Transfer(ctx, transfers...); err != nil {
			for _, po := range payouts {
				metrics.PayoutFailures.WithLabelValues(string(po.kind)).Inc()
			}
			if rerr := e.store.UpdatePool(ctx, orig); rerr != nil {
				e.log.Error("restore after failed settlement",
					"pool", orig.ID, "err", rerr)
			}
			return fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
	}

	now := e.now()
	for _, po := range payouts {
		if !po.Amount.IsPositive() {
			continue
		}
		metrics.Payouts.WithLabelValues(string(po.kind)).Inc()
		e.record(ctx, staged.ID, po.Recipient, po.kind, po.Asset, po.Amount, now)
	}
	return nil
}

// record appends a ledger entry. The value has already moved, so a failed
// insert is logged rather than returned.
func (e *Engine) record(ctx context.Context, poolID uint64, who common.Address, kind model.LedgerKind,
	asset common.Address, amount decimal.Decimal, at time.Time) {
	entry := &model.LedgerEntry{
		ID:        uuid.New().String(),
		PoolID:    poolID,
		Identity:  who,
		Kind:      kind,
		Asset:     asset,
		Amount:    amount,
		Timestamp: at,
	}
	if err := e.store.InsertLedgerEntry(ctx, entry); err != nil {
		e.log.Error("ledger insert failed",
			"pool", poolID, "identity", who.Hex(), "kind", kind, "amount", amount.String(), "err", err)
	}
}

// transition moves staged to phase to, refusing illegal steps.
func transition(staged *model.Pool, to model.Phase) error {
	if !staged.Phase.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalPhaseMove, staged.Phase, to)
	}
	staged.Phase = to
	return nil
}

// bps returns amount × bps / 10000, truncated.
func bps(amount decimal.Decimal, bps uint32) decimal.Decimal {
	q, _ := amount.Mul(decimal.NewFromInt(int64(bps))).QuoRem(decimal.NewFromInt(bpsDenominator), 0)
	return q
}
