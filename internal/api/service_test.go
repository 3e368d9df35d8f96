package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/memepool/pool-engine/internal/api"
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

var (
	creator = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	mallory = common.HexToAddress("0x00000000000000000000000000000000000000ee")
	escrow  = common.HexToAddress("0x000000000000000000000000000000000000e5c0")
	wrapped = common.HexToAddress("0x000000000000000000000000000000000000eeee")
	router  = common.HexToAddress("0x0000000000000000000000000000000000000f00")

	assetA = common.HexToAddress("0x0000000000000000000000000000000000001a1a")
	assetB = common.HexToAddress("0x0000000000000000000000000000000000001b1b")
	venueA = common.HexToAddress("0x0000000000000000000000000000000000002a2a")
	venueB = common.HexToAddress("0x0000000000000000000000000000000000002b2b")
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(dur time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(dur)
}

type testEnv struct {
	router chi.Router
	clock  *testClock
	ledger *sim.Ledger
	oracle *sim.Oracle
}

// newTestEnv creates a Service over an in-memory store and the sim chain.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clk := &testClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	ledger := sim.NewLedger(escrow, wrapped)
	exchange := sim.NewExchange(ledger, router)
	exchange.SetClock(clk.Now)
	oracle := sim.NewOracle()

	for _, u := range []common.Address{alice, bob, mallory} {
		ledger.Fund(u, model.NativeAsset, d("1000000"))
	}
	exchange.SetRate(assetA, d("2"))
	exchange.SetRate(assetB, d("3"))
	oracle.SetPrice(venueA, d("100"))
	oracle.SetPrice(venueB, d("100"))

	engine, err := pool.New(pool.Options{
		Store:         store.NewMemoryStore(),
		Exchange:      exchange,
		Wrapper:       ledger,
		Oracle:        oracle,
		Escrow:        ledger,
		Beacon:        chain.FixedBeacon("api"),
		Self:          escrow,
		Router:        router,
		WrappedNative: wrapped,
		Now:           clk.Now,
	})
	if err != nil {
		t.Fatalf("failed to build engine: %v", err)
	}

	r := chi.NewRouter()
	r.Route("/api/v1", api.NewService(engine).Routes)
	return &testEnv{router: r, clock: clk, ledger: ledger, oracle: oracle}
}

func (e *testEnv) do(t *testing.T, method, path string, caller common.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if caller != (common.Address{}) {
		req.Header.Set(api.CallerHeader, caller.Hex())
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createPool(t *testing.T) model.PoolSummary {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/pools", creator, params.CreateRequest{
		Name:              "friday degen pool",
		Whitelist:         []string{alice.Hex(), bob.Hex()},
		EntryAmount:       d("1000"),
		JoinDeadlineHours: d("1"),
		UnlockTimeHours:   d("2"),
		RiskAssets:        []string{assetA.Hex(), assetB.Hex()},
		ExchangeVenues:    []string{venueA.Hex(), venueB.Hex()},
		SlippageBps:       9000,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var s model.PoolSummary
	if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	return s
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, w.Code, w.Body.String())
	}
}

// --- Creation ---

func TestCreatePool(t *testing.T) {
	env := newTestEnv(t)
	s := env.createPool(t)

	if s.ID != 0 {
		t.Errorf("expected first pool to get id 0, got %d", s.ID)
	}
	if s.Stage != model.StageJoining {
		t.Errorf("expected stage joining, got %s", s.Stage)
	}
	if s.WhitelistCount != 2 {
		t.Errorf("expected 2 whitelisted, got %d", s.WhitelistCount)
	}
}

func TestCreatePool_InvalidRequest(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/v1/pools", creator, params.CreateRequest{
		Name:              "bad slippage",
		Whitelist:         []string{alice.Hex()},
		EntryAmount:       d("1000"),
		JoinDeadlineHours: d("1"),
		UnlockTimeHours:   d("2"),
		RiskAssets:        []string{assetA.Hex()},
		ExchangeVenues:    []string{venueA.Hex()},
		SlippageBps:       100,
	})
	expectStatus(t, w, http.StatusBadRequest)

	w = env.do(t, "POST", "/api/v1/pools", common.Address{}, params.CreateRequest{})
	expectStatus(t, w, http.StatusUnauthorized)
}

// --- Join ---

func TestJoin_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(t)

	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/join", mallory, api.JoinRequest{Amount: d("1000")}), http.StatusForbidden)
	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/join", alice, api.JoinRequest{Amount: d("999")}), http.StatusBadRequest)
	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/join", alice, api.JoinRequest{Amount: d("1000")}), http.StatusOK)
	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/join", alice, api.JoinRequest{Amount: d("1000")}), http.StatusConflict)
	expectStatus(t, env.do(t, "POST", "/api/v1/pools/7/join", alice, api.JoinRequest{Amount: d("1000")}), http.StatusNotFound)
	expectStatus(t, env.do(t, "POST", "/api/v1/pools/x/join", alice, api.JoinRequest{Amount: d("1000")}), http.StatusBadRequest)
}

// --- Lifecycle ---

func TestLifecycle_ExecuteDeclareClaim(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(t)
	for _, u := range []common.Address{alice, bob} {
		expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/join", u, api.JoinRequest{Amount: d("1000")}), http.StatusOK)
	}

	expectStatus(t, env.do(t, "GET", "/api/v1/pools/0/assignments", mallory, nil), http.StatusConflict)
	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/execute", mallory, nil), http.StatusConflict)

	env.clock.Advance(time.Hour)
	w := env.do(t, "POST", "/api/v1/pools/0/execute", mallory, nil)
	expectStatus(t, w, http.StatusOK)
	var executed api.ExecuteResponse
	if err := json.NewDecoder(w.Body).Decode(&executed); err != nil {
		t.Fatalf("decode execute response: %v", err)
	}
	if len(executed.Assignments) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(executed.Assignments))
	}
	if executed.RewardPending || !executed.ExecutorReward.Equal(d("20")) {
		t.Errorf("expected reward 20 paid inline, got %+v", executed)
	}
	// total 2000: reward 20, bonus 180, 900 per swap.
	if got := env.ledger.Balance(mallory, model.NativeAsset); !got.Equal(d("1000020")) {
		t.Errorf("executor balance: expected 1000020, got %s", got)
	}

	env.clock.Advance(time.Hour)
	env.oracle.SetPrice(venueA, d("150"))
	env.oracle.SetPrice(venueB, d("120"))
	w = env.do(t, "POST", "/api/v1/pools/0/declare", mallory, nil)
	expectStatus(t, w, http.StatusOK)
	var board []model.LeaderboardEntry
	if err := json.NewDecoder(w.Body).Decode(&board); err != nil {
		t.Fatalf("decode leaderboard: %v", err)
	}
	if len(board) != 2 || !board[0].IsWinner || board[0].AssignedAsset != assetA {
		t.Fatalf("expected holder of asset A to win, got %+v", board)
	}
	if !board[0].PercentGain.Equal(d("5000")) || !board[1].PercentGain.Equal(d("2000")) {
		t.Errorf("unexpected gains: %s, %s", board[0].PercentGain, board[1].PercentGain)
	}
	winner := board[0].Identity

	w = env.do(t, "POST", "/api/v1/pools/0/claim", winner, nil)
	expectStatus(t, w, http.StatusOK)
	var rc pool.Receipt
	if err := json.NewDecoder(w.Body).Decode(&rc); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if len(rc.Payouts) != 2 {
		t.Fatalf("winner should receive asset and bonus, got %+v", rc.Payouts)
	}
	if got := env.ledger.Balance(winner, assetA); !got.Equal(d("1800")) {
		t.Errorf("winner asset balance: expected 1800, got %s", got)
	}
	if got := env.ledger.Balance(winner, model.NativeAsset); !got.Equal(d("999180")) {
		t.Errorf("winner native balance: expected 999180, got %s", got)
	}

	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/claim", winner, nil), http.StatusConflict)
	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/claim", mallory, nil), http.StatusForbidden)

	w = env.do(t, "GET", "/api/v1/pools/0/me", winner, nil)
	expectStatus(t, w, http.StatusOK)
	var status model.ParticipantStatus
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.HasClaimed || !status.IsWinner {
		t.Errorf("expected claimed winner, got %+v", status)
	}

	w = env.do(t, "GET", "/api/v1/pools/0/ledger", common.Address{}, nil)
	expectStatus(t, w, http.StatusOK)
	var entries []model.LedgerEntry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("decode ledger: %v", err)
	}
	// 2 deposits, 2 swaps, 1 reward, asset + bonus claim.
	if len(entries) != 7 {
		t.Errorf("expected 7 ledger entries, got %d", len(entries))
	}
}

func TestExecute_RewardFailureIsPendingNotBadGateway(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(t)
	for _, u := range []common.Address{alice, bob} {
		expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/join", u, api.JoinRequest{Amount: d("1000")}), http.StatusOK)
	}
	env.clock.Advance(time.Hour)

	env.ledger.Reject(mallory, true)
	w := env.do(t, "POST", "/api/v1/pools/0/execute", mallory, nil)
	expectStatus(t, w, http.StatusOK)
	var executed api.ExecuteResponse
	if err := json.NewDecoder(w.Body).Decode(&executed); err != nil {
		t.Fatalf("decode execute response: %v", err)
	}
	if !executed.RewardPending || len(executed.Assignments) != 2 {
		t.Fatalf("expected committed swaps with pending reward, got %+v", executed)
	}

	// A retry must not run the swaps again.
	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/execute", mallory, nil), http.StatusConflict)

	w = env.do(t, "GET", "/api/v1/pools/0", common.Address{}, nil)
	expectStatus(t, w, http.StatusOK)
	var s model.PoolSummary
	if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if !s.SwapsExecuted || !s.RewardPending {
		t.Errorf("expected executed pool with pending reward, got %+v", s)
	}

	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/reward", alice, nil), http.StatusForbidden)
	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/reward", mallory, nil), http.StatusBadGateway)

	env.ledger.Reject(mallory, false)
	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/reward", mallory, nil), http.StatusOK)
	if got := env.ledger.Balance(mallory, model.NativeAsset); !got.Equal(d("1000020")) {
		t.Errorf("executor balance: expected 1000020, got %s", got)
	}
	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/reward", mallory, nil), http.StatusConflict)
}

func TestCancel_CreatorOnly(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(t)
	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/join", alice, api.JoinRequest{Amount: d("1000")}), http.StatusOK)

	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/cancel", alice, nil), http.StatusForbidden)
	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/cancel", creator, nil), http.StatusOK)

	if got := env.ledger.Balance(alice, model.NativeAsset); !got.Equal(d("1000000")) {
		t.Errorf("alice should be refunded in full, got %s", got)
	}

	w := env.do(t, "GET", "/api/v1/pools/0", common.Address{}, nil)
	expectStatus(t, w, http.StatusOK)
	var s model.PoolSummary
	if err := json.NewDecoder(w.Body).Decode(&s); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if !s.Cancelled || s.Stage != model.StageCancelled {
		t.Errorf("expected cancelled pool, got %+v", s)
	}
}

func TestRefund_AfterDelay(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(t)
	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/join", bob, api.JoinRequest{Amount: d("1000")}), http.StatusOK)

	env.clock.Advance(24 * time.Hour)
	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/refund", bob, nil), http.StatusConflict)

	env.clock.Advance(time.Hour)
	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/refund", bob, nil), http.StatusOK)
	expectStatus(t, env.do(t, "POST", "/api/v1/pools/0/refund", bob, nil), http.StatusConflict)

	w := env.do(t, "GET", "/api/v1/identities/"+bob.Hex()+"/ledger", common.Address{}, nil)
	expectStatus(t, w, http.StatusOK)
	var entries []model.LedgerEntry
	if err := json.NewDecoder(w.Body).Decode(&entries); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(entries) != 2 || entries[1].Kind != model.LedgerRefund {
		t.Errorf("expected deposit then refund, got %+v", entries)
	}
}

func TestListPools(t *testing.T) {
	env := newTestEnv(t)
	env.createPool(t)
	env.createPool(t)

	w := env.do(t, "GET", "/api/v1/pools", common.Address{}, nil)
	expectStatus(t, w, http.StatusOK)
	var resp api.CountResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if resp.Count != 2 || len(resp.Pools) != 2 || resp.Pools[1].ID != 1 {
		t.Errorf("unexpected list: %+v", resp)
	}
}
