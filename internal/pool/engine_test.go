package pool_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/memepool/pool-engine/internal/chain"
	"github.com/memepool/pool-engine/internal/chain/sim"
	"github.com/memepool/pool-engine/internal/model"
	"github.com/memepool/pool-engine/internal/params"
	"github.com/memepool/pool-engine/internal/pool"
	"github.com/memepool/pool-engine/internal/store"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func addr(n byte) common.Address {
	var a common.Address
	a[19] = n
	a[0] = 0x10
	return a
}

var (
	creator  = addr(0xC0)
	outsider = addr(0x99)
	escrow   = addr(0xE5)
	wrapped  = addr(0xEE)
	router   = addr(0xF0)
	users    = []common.Address{addr(1), addr(2), addr(3)}
	assets   = []common.Address{addr(0xA1), addr(0xA2), addr(0xA3)}
	venues   = []common.Address{addr(0xB1), addr(0xB2), addr(0xB3)}

	entry   = d("10000000000000000") // 0.01 native
	funding = d("1000000000000000000")
	start   = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	clock    *clock
	ledger   *sim.Ledger
	exchange *sim.Exchange
	oracle   *sim.Oracle
	store    *store.MemoryStore
	engine   *pool.Engine
}

// newHarness wires an engine to the sim collaborators with three funded
// users, three assets at 1000 units per input unit and every venue priced
// at 1000.
func newHarness(t *testing.T, mutate ...func(*pool.Options)) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		ctx:    context.Background(),
		clock:  &clock{now: start},
		ledger: sim.NewLedger(escrow, wrapped),
		oracle: sim.NewOracle(),
		store:  store.NewMemoryStore(),
	}
	h.exchange = sim.NewExchange(h.ledger, router)
	h.exchange.SetClock(h.clock.Now)

	for _, u := range users {
		h.ledger.Fund(u, model.NativeAsset, funding)
	}
	for i := range assets {
		h.exchange.SetRate(assets[i], d("1000"))
		h.oracle.SetPrice(venues[i], d("1000"))
	}

	opts := pool.Options{
		Store:         h.store,
		Exchange:      h.exchange,
		Wrapper:       h.ledger,
		Oracle:        h.oracle,
		Escrow:        h.ledger,
		Beacon:        chain.FixedBeacon("seed"),
		Self:          escrow,
		Router:        router,
		WrappedNative: wrapped,
		Now:           h.clock.Now,
	}
	for _, m := range mutate {
		m(&opts)
	}
	engine, err := pool.New(opts)
	require.NoError(t, err)
	h.engine = engine
	return h
}

func createRequest() params.CreateRequest {
	hexes := func(as []common.Address) []string {
		out := make([]string, len(as))
		for i, a := range as {
			out[i] = a.Hex()
		}
		return out
	}
	return params.CreateRequest{
		Name:              "weekly memes",
		Whitelist:         hexes(users),
		EntryAmount:       entry,
		JoinDeadlineHours: d("1"),
		UnlockTimeHours:   d("2"),
		RiskAssets:        hexes(assets),
		ExchangeVenues:    hexes(venues),
		SlippageBps:       5000,
	}
}

func (h *harness) create() uint64 {
	h.t.Helper()
	id, err := h.engine.CreatePool(h.ctx, creator, createRequest())
	require.NoError(h.t, err)
	return id
}

func (h *harness) joinAll(id uint64, who ...common.Address) {
	h.t.Helper()
	for _, u := range who {
		require.NoError(h.t, h.engine.Join(h.ctx, id, u, entry))
	}
}

func (h *harness) pool(id uint64) *model.Pool {
	h.t.Helper()
	p, err := h.store.GetPool(h.ctx, id)
	require.NoError(h.t, err)
	return p
}

func (h *harness) at(offset time.Duration) {
	h.clock.Set(start.Add(offset))
}

func (h *harness) native(who common.Address) decimal.Decimal {
	return h.ledger.Balance(who, model.NativeAsset)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := pool.New(pool.Options{})
	require.Error(t, err)

	_, err = pool.New(pool.Options{
		Store:     store.NewMemoryStore(),
		Exchange:  sim.NewExchange(sim.NewLedger(escrow, wrapped), router),
		Wrapper:   sim.NewLedger(escrow, wrapped),
		Oracle:    sim.NewOracle(),
		Escrow:    sim.NewLedger(escrow, wrapped),
		Self:      escrow,
		RewardBps: 5000,
		BonusBps:  5000,
	})
	require.Error(t, err, "reward and bonus consuming the whole escrow must be rejected")
}

func TestCreatePool_AssignsSequentialIDs(t *testing.T) {
	h := newHarness(t)

	for want := uint64(0); want < 3; want++ {
		require.Equal(t, want, h.create())
	}
	count, err := h.engine.PoolCount(h.ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(3), count)

	p := h.pool(1)
	require.Equal(t, model.PhaseOpen, p.Phase)
	require.Equal(t, start.Add(time.Hour), p.JoinDeadline)
	require.Equal(t, start.Add(2*time.Hour), p.UnlockTime)
	require.Equal(t, pool.DefaultFeeTier, p.FeeTier)
}

func TestCreatePool_RejectsInvalidRequest(t *testing.T) {
	h := newHarness(t)

	req := createRequest()
	req.SlippageBps = 4999
	_, err := h.engine.CreatePool(h.ctx, creator, req)
	require.ErrorIs(t, err, params.ErrSlippageRange)
	require.Equal(t, pool.CategoryValue, pool.Classify(err))

	req = createRequest()
	req.UnlockTimeHours = d("1")
	_, err = h.engine.CreatePool(h.ctx, creator, req)
	require.ErrorIs(t, err, params.ErrDeadlineOrder)

	count, err := h.engine.PoolCount(h.ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestGetPoolSummary_Stages(t *testing.T) {
	h := newHarness(t)
	id := h.create()

	stageAt := func(offset time.Duration) model.Stage {
		h.at(offset)
		s, err := h.engine.GetPoolSummary(h.ctx, id)
		require.NoError(t, err)
		return s.Stage
	}

	require.Equal(t, model.StageJoining, stageAt(0))
	require.Equal(t, model.StageJoinClosed, stageAt(time.Hour))
	require.Equal(t, model.StageRefundEligible, stageAt(25*time.Hour))

	_, err := h.engine.GetPoolSummary(h.ctx, 42)
	require.ErrorIs(t, err, store.ErrPoolNotFound)
	require.Equal(t, pool.CategoryNotFound, pool.Classify(err))
}
