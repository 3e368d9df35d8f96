package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/memepool/pool-engine/internal/model"
	"github.com/memepool/pool-engine/internal/store"
)

var (
	alice   = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	creator = common.HexToAddress("0x00000000000000000000000000000000000c0de0")
	assetA  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	assetB  = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	venueA  = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	venueB  = common.HexToAddress("0x00000000000000000000000000000000000000b2")

	t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

func newPool(name string) *model.Pool {
	return &model.Pool{
		Name:                 name,
		Creator:              creator,
		Whitelist:            []common.Address{alice, bob},
		EntryAmount:          decimal.RequireFromString("10000000000000000"),
		JoinDeadline:         t0.Add(time.Hour),
		UnlockTime:           t0.Add(2 * time.Hour),
		RiskAssets:           []common.Address{assetA, assetB},
		ExchangeVenues:       []common.Address{venueA, venueB},
		SlippageToleranceBps: 5000,
		FeeTier:              10000,
		Phase:                model.PhaseOpen,
		AmountPerSwap:        decimal.Zero,
		BonusAmount:          decimal.Zero,
		ExecutorReward:       decimal.Zero,
		CreatedAt:            t0,
	}
}

// runStoreSuite exercises the behavior every Store implementation shares.
func runStoreSuite(t *testing.T, s store.Store) {
	ctx := context.Background()

	t.Run("registry is dense and append-only", func(t *testing.T) {
		first, err := s.CreatePool(ctx, newPool("first"))
		require.NoError(t, err)
		second, err := s.CreatePool(ctx, newPool("second"))
		require.NoError(t, err)
		require.Equal(t, first+1, second)

		count, err := s.PoolCount(ctx)
		require.NoError(t, err)
		require.Equal(t, second+1, count)

		pools, err := s.ListPools(ctx)
		require.NoError(t, err)
		require.Len(t, pools, int(count))
		for i, p := range pools {
			require.Equal(t, uint64(i), p.ID)
		}
	})

	t.Run("missing pool", func(t *testing.T) {
		_, err := s.GetPool(ctx, 1<<40)
		require.ErrorIs(t, err, store.ErrPoolNotFound)

		ghost := newPool("ghost")
		ghost.ID = 1 << 40
		require.ErrorIs(t, s.UpdatePool(ctx, ghost), store.ErrPoolNotFound)
	})

	t.Run("update round-trips participants", func(t *testing.T) {
		id, err := s.CreatePool(ctx, newPool("update"))
		require.NoError(t, err)

		p, err := s.GetPool(ctx, id)
		require.NoError(t, err)
		require.Empty(t, p.Participants)
		require.Equal(t, []common.Address{alice, bob}, p.Whitelist)
		require.True(t, p.EntryAmount.Equal(decimal.RequireFromString("10000000000000000")))

		executed := t0.Add(time.Hour)
		p.Participants = []model.Participant{
			{Identity: bob, JoinedAt: t0.Add(time.Minute)},
			{Identity: alice, JoinedAt: t0.Add(2 * time.Minute)},
		}
		p.Participants[0].AssignedAsset = assetB
		p.Participants[0].AssignedVenue = venueB
		p.Participants[0].AssetAmount = decimal.NewFromInt(9000)
		p.Participants[0].EntryPriceMeasure = decimal.NewFromInt(1000)
		p.Participants[0].PercentGain = decimal.NewFromInt(-2500)
		p.Participants[1].HasClaimed = true
		p.Phase = model.PhaseExecuted
		p.Executor = alice
		p.ExecutedAt = &executed
		p.AmountPerSwap = decimal.NewFromInt(9000)
		p.RewardPending = true
		require.NoError(t, s.UpdatePool(ctx, p))

		got, err := s.GetPool(ctx, id)
		require.NoError(t, err)
		require.Equal(t, model.PhaseExecuted, got.Phase)
		require.Equal(t, alice, got.Executor)
		require.NotNil(t, got.ExecutedAt)
		require.True(t, got.ExecutedAt.Equal(executed))
		require.Nil(t, got.DeclaredAt)
		require.True(t, got.RewardPending)

		forUpdate, err := s.GetPoolForUpdate(ctx, id)
		require.NoError(t, err)
		require.Equal(t, model.PhaseExecuted, forUpdate.Phase)
		require.True(t, forUpdate.RewardPending)
		require.Len(t, forUpdate.Participants, 2)
		require.True(t, forUpdate.Participants[1].HasClaimed)
		require.Len(t, got.Participants, 2)

		// Join order is preserved.
		require.Equal(t, bob, got.Participants[0].Identity)
		require.Equal(t, alice, got.Participants[1].Identity)
		require.Equal(t, assetB, got.Participants[0].AssignedAsset)
		require.True(t, got.Participants[0].PercentGain.Equal(decimal.NewFromInt(-2500)))
		require.True(t, got.Participants[1].HasClaimed)
		require.False(t, got.Participants[0].HasClaimed)
	})

	t.Run("returned pools are copies", func(t *testing.T) {
		id, err := s.CreatePool(ctx, newPool("copy"))
		require.NoError(t, err)

		p, err := s.GetPool(ctx, id)
		require.NoError(t, err)
		p.Phase = model.PhaseCancelled
		p.Whitelist[0] = common.Address{}

		again, err := s.GetPool(ctx, id)
		require.NoError(t, err)
		require.Equal(t, model.PhaseOpen, again.Phase)
		require.Equal(t, alice, again.Whitelist[0])
	})

	t.Run("ledger filters by pool and identity", func(t *testing.T) {
		id, err := s.CreatePool(ctx, newPool("ledger"))
		require.NoError(t, err)

		entries := []model.LedgerEntry{
			{PoolID: id, Identity: alice, Kind: model.LedgerDeposit, Asset: model.NativeAsset, Amount: decimal.NewFromInt(100), Timestamp: t0},
			{PoolID: id, Identity: bob, Kind: model.LedgerDeposit, Asset: model.NativeAsset, Amount: decimal.NewFromInt(100), Timestamp: t0.Add(time.Second)},
			{PoolID: id, Identity: alice, Kind: model.LedgerClaimAsset, Asset: assetA, Amount: decimal.NewFromInt(900), Timestamp: t0.Add(2 * time.Second)},
		}
		for i := range entries {
			entries[i].ID = uuid.New().String()
			require.NoError(t, s.InsertLedgerEntry(ctx, &entries[i]))
		}

		byPool, err := s.GetLedgerEntriesByPool(ctx, id)
		require.NoError(t, err)
		require.Len(t, byPool, 3)
		require.Equal(t, entries[0].ID, byPool[0].ID)

		byAlice, err := s.GetLedgerEntriesByIdentity(ctx, alice)
		require.NoError(t, err)
		var mine int
		for _, e := range byAlice {
			require.Equal(t, alice, e.Identity)
			if e.PoolID == id {
				mine++
			}
		}
		require.Equal(t, 2, mine)

		claim := byPool[2]
		require.Equal(t, model.LedgerClaimAsset, claim.Kind)
		require.Equal(t, assetA, claim.Asset)
		require.True(t, claim.Amount.Equal(decimal.NewFromInt(900)))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, store.NewMemoryStore())
}
