// Package params handles pool creation requests: address parsing,
// relative-deadline resolution and validation of the creation invariants.
package params

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Slippage tolerance bounds in basis points.
const (
	MinSlippageBps = 5000
	MaxSlippageBps = 10000
)

// DefaultMaxHorizon bounds how far in the future a deadline may be set.
const DefaultMaxHorizon = 365 * 24 * time.Hour

var (
	ErrInvalidAddress     = errors.New("params: invalid address")
	ErrEmptyName          = errors.New("params: name is required")
	ErrEmptyWhitelist     = errors.New("params: whitelist is empty")
	ErrDuplicateWhitelist = errors.New("params: duplicate whitelist entry")
	ErrInsufficientAssets = errors.New("params: fewer risk assets than whitelisted participants")
	ErrLengthMismatch     = errors.New("params: risk assets and exchange venues differ in length")
	ErrZeroEntryAmount    = errors.New("params: entry amount must be a positive integer")
	ErrSlippageRange      = errors.New("params: slippage tolerance out of range")
	ErrDeadlineOrder      = errors.New("params: unlock time must be after join deadline")
	ErrDeadlinePassed     = errors.New("params: join deadline already passed")
	ErrDeadlineTooFar     = errors.New("params: deadline too far in the future")
)

// CreateRequest is the wire form of a pool creation call. Deadlines may be
// given as absolute timestamps or as hours from now; absolute wins.
type CreateRequest struct {
	Name              string          `json:"name"`
	Whitelist         []string        `json:"whitelist"`
	EntryAmount       decimal.Decimal `json:"entry_amount"`
	JoinDeadline      *time.Time      `json:"join_deadline,omitempty"`
	UnlockTime        *time.Time      `json:"unlock_time,omitempty"`
	JoinDeadlineHours decimal.Decimal `json:"join_deadline_hours"`
	UnlockTimeHours   decimal.Decimal `json:"unlock_time_hours"`
	RiskAssets        []string        `json:"risk_assets"`
	ExchangeVenues    []string        `json:"exchange_venues"`
	SlippageBps       uint32          `json:"slippage_bps"`
}

// Params is a parsed creation request, ready for validation.
type Params struct {
	Name                 string
	Creator              common.Address
	Whitelist            []common.Address
	EntryAmount          decimal.Decimal
	JoinDeadline         time.Time
	UnlockTime           time.Time
	RiskAssets           []common.Address
	ExchangeVenues       []common.Address
	SlippageToleranceBps uint32
}

// Parse converts a request into Params, resolving relative deadlines
// against now. It only checks syntax; call Validate for the invariants.
func Parse(req CreateRequest, creator common.Address, now time.Time) (*Params, error) {
	whitelist, err := parseAddresses(req.Whitelist)
	if err != nil {
		return nil, fmt.Errorf("whitelist: %w", err)
	}
	assets, err := parseAddresses(req.RiskAssets)
	if err != nil {
		return nil, fmt.Errorf("risk assets: %w", err)
	}
	venues, err := parseAddresses(req.ExchangeVenues)
	if err != nil {
		return nil, fmt.Errorf("exchange venues: %w", err)
	}

	join := now.Add(hours(req.JoinDeadlineHours))
	if req.JoinDeadline != nil {
		join = req.JoinDeadline.UTC()
	}
	unlock := now.Add(hours(req.UnlockTimeHours))
	if req.UnlockTime != nil {
		unlock = req.UnlockTime.UTC()
	}

	return &Params{
		Name:                 strings.TrimSpace(req.Name),
		Creator:              creator,
		Whitelist:            whitelist,
		EntryAmount:          req.EntryAmount,
		JoinDeadline:         join,
		UnlockTime:           unlock,
		RiskAssets:           assets,
		ExchangeVenues:       venues,
		SlippageToleranceBps: req.SlippageBps,
	}, nil
}

// Validate enforces the creation invariants. maxHorizon <= 0 selects
// DefaultMaxHorizon.
func (p *Params) Validate(now time.Time, maxHorizon time.Duration) error {
	if maxHorizon <= 0 {
		maxHorizon = DefaultMaxHorizon
	}
	if p.Name == "" {
		return ErrEmptyName
	}
	if p.Creator == (common.Address{}) {
		return fmt.Errorf("%w: zero creator", ErrInvalidAddress)
	}
	if len(p.Whitelist) == 0 {
		return ErrEmptyWhitelist
	}
	seen := make(map[common.Address]bool, len(p.Whitelist))
	for _, w := range p.Whitelist {
		if w == (common.Address{}) {
			return fmt.Errorf("%w: zero whitelist entry", ErrInvalidAddress)
		}
		if seen[w] {
			return fmt.Errorf("%w: %s", ErrDuplicateWhitelist, w.Hex())
		}
		seen[w] = true
	}
	if len(p.RiskAssets) < len(p.Whitelist) {
		return fmt.Errorf("%w: %d assets for %d identities",
			ErrInsufficientAssets, len(p.RiskAssets), len(p.Whitelist))
	}
	if len(p.RiskAssets) != len(p.ExchangeVenues) {
		return fmt.Errorf("%w: %d assets, %d venues",
			ErrLengthMismatch, len(p.RiskAssets), len(p.ExchangeVenues))
	}
	if !p.EntryAmount.IsPositive() || !p.EntryAmount.IsInteger() {
		return fmt.Errorf("%w: %s", ErrZeroEntryAmount, p.EntryAmount)
	}
	if p.SlippageToleranceBps < MinSlippageBps || p.SlippageToleranceBps > MaxSlippageBps {
		return fmt.Errorf("%w: %d (expected %d..%d)",
			ErrSlippageRange, p.SlippageToleranceBps, MinSlippageBps, MaxSlippageBps)
	}
	if !p.UnlockTime.After(p.JoinDeadline) {
		return ErrDeadlineOrder
	}
	if !p.JoinDeadline.After(now) {
		return ErrDeadlinePassed
	}
	limit := now.Add(maxHorizon)
	if p.JoinDeadline.After(limit) || p.UnlockTime.After(limit) {
		return fmt.Errorf("%w: limit %s", ErrDeadlineTooFar, limit.Format(time.RFC3339))
	}
	return nil
}

func parseAddresses(in []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		out = append(out, common.HexToAddress(s))
	}
	return out, nil
}

// hours converts a fractional hour count to a duration, truncated to
// whole seconds.
func hours(h decimal.Decimal) time.Duration {
	secs := h.Mul(decimal.NewFromInt(3600)).IntPart()
	return time.Duration(secs) * time.Second
}
