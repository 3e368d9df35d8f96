package params

import (
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var now = time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

func addr(n byte) common.Address {
	var a common.Address
	a[19] = n
	return a
}

func validParams() *Params {
	return &Params{
		Name:                 "friday round",
		Creator:              addr(1),
		Whitelist:            []common.Address{addr(10), addr(11), addr(12)},
		EntryAmount:          decimal.NewFromInt(10_000_000_000_000_000),
		JoinDeadline:         now.Add(time.Hour),
		UnlockTime:           now.Add(2 * time.Hour),
		RiskAssets:           []common.Address{addr(20), addr(21), addr(22)},
		ExchangeVenues:       []common.Address{addr(30), addr(31), addr(32)},
		SlippageToleranceBps: 9000,
	}
}

func TestParse_RelativeHours(t *testing.T) {
	req := CreateRequest{
		Name:              " friday round ",
		Whitelist:         []string{"0x000000000000000000000000000000000000000a"},
		EntryAmount:       decimal.NewFromInt(100),
		JoinDeadlineHours: decimal.NewFromInt(1),
		UnlockTimeHours:   decimal.NewFromFloat(2.5),
		RiskAssets:        []string{"0x0000000000000000000000000000000000000014"},
		ExchangeVenues:    []string{"0x000000000000000000000000000000000000001e"},
		SlippageBps:       9000,
	}
	p, err := Parse(req, addr(1), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != "friday round" {
		t.Errorf("expected trimmed name, got %q", p.Name)
	}
	if !p.JoinDeadline.Equal(now.Add(time.Hour)) {
		t.Errorf("expected join deadline %v, got %v", now.Add(time.Hour), p.JoinDeadline)
	}
	if !p.UnlockTime.Equal(now.Add(150 * time.Minute)) {
		t.Errorf("expected unlock %v, got %v", now.Add(150*time.Minute), p.UnlockTime)
	}
	if p.Whitelist[0] != addr(10) {
		t.Errorf("expected whitelist[0]=%s, got %s", addr(10).Hex(), p.Whitelist[0].Hex())
	}
	if err := p.Validate(now, 0); err != nil {
		t.Errorf("expected valid params, got %v", err)
	}
}

func TestParse_AbsoluteDeadlinesWin(t *testing.T) {
	join := now.Add(3 * time.Hour)
	unlock := now.Add(5 * time.Hour)
	p, err := Parse(CreateRequest{
		JoinDeadline:      &join,
		UnlockTime:        &unlock,
		JoinDeadlineHours: decimal.NewFromInt(1),
	}, addr(1), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.JoinDeadline.Equal(join) || !p.UnlockTime.Equal(unlock) {
		t.Errorf("absolute deadlines should win: got %v / %v", p.JoinDeadline, p.UnlockTime)
	}
}

func TestParse_InvalidAddress(t *testing.T) {
	_, err := Parse(CreateRequest{Whitelist: []string{"not-an-address"}}, addr(1), now)
	if !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Params)
		want   error
	}{
		{"empty name", func(p *Params) { p.Name = "" }, ErrEmptyName},
		{"zero creator", func(p *Params) { p.Creator = common.Address{} }, ErrInvalidAddress},
		{"empty whitelist", func(p *Params) { p.Whitelist = nil }, ErrEmptyWhitelist},
		{"duplicate whitelist", func(p *Params) { p.Whitelist[1] = p.Whitelist[0] }, ErrDuplicateWhitelist},
		{"too few assets", func(p *Params) {
			p.RiskAssets = p.RiskAssets[:2]
			p.ExchangeVenues = p.ExchangeVenues[:2]
		}, ErrInsufficientAssets},
		{"length mismatch", func(p *Params) {
			p.RiskAssets = append(p.RiskAssets, addr(23))
		}, ErrLengthMismatch},
		{"zero entry", func(p *Params) { p.EntryAmount = decimal.Zero }, ErrZeroEntryAmount},
		{"fractional entry", func(p *Params) { p.EntryAmount = decimal.NewFromFloat(0.5) }, ErrZeroEntryAmount},
		{"slippage low", func(p *Params) { p.SlippageToleranceBps = 4999 }, ErrSlippageRange},
		{"slippage high", func(p *Params) { p.SlippageToleranceBps = 10001 }, ErrSlippageRange},
		{"unlock equals join", func(p *Params) { p.UnlockTime = p.JoinDeadline }, ErrDeadlineOrder},
		{"join in past", func(p *Params) {
			p.JoinDeadline = now.Add(-time.Minute)
		}, ErrDeadlinePassed},
		{"unlock too far", func(p *Params) {
			p.UnlockTime = now.Add(DefaultMaxHorizon + time.Hour)
		}, ErrDeadlineTooFar},
	}
	for _, tc := range tests {
		p := validParams()
		tc.mutate(p)
		if err := p.Validate(now, 0); !errors.Is(err, tc.want) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestValidate_SlippageBounds(t *testing.T) {
	for _, bps := range []uint32{MinSlippageBps, MaxSlippageBps} {
		p := validParams()
		p.SlippageToleranceBps = bps
		if err := p.Validate(now, 0); err != nil {
			t.Errorf("slippage %d should be accepted, got %v", bps, err)
		}
	}
}

func TestValidate_MoreAssetsThanWhitelist(t *testing.T) {
	p := validParams()
	p.RiskAssets = append(p.RiskAssets, addr(23))
	p.ExchangeVenues = append(p.ExchangeVenues, addr(33))
	if err := p.Validate(now, 0); err != nil {
		t.Errorf("extra candidates should be accepted, got %v", err)
	}
}
