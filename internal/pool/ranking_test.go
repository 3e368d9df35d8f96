package pool

import (
	"sort"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memepool/pool-engine/internal/model"
)

func TestPercentGain(t *testing.T) {
	tests := []struct {
		name          string
		entry, unlock int64
		want          int64
	}{
		{"up 50%", 1000, 1500, 5000},
		{"down 10%", 1000, 900, -1000},
		{"flat", 777, 777, 0},
		{"zero entry", 0, 5, 0},
		{"truncates up", 3, 4, 3333},
		{"truncates toward zero", 3, 2, -3333},
		{"doubles", 5, 10, 10000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PercentGain(decimal.NewFromInt(tt.entry), decimal.NewFromInt(tt.unlock))
			assert.True(t, got.Equal(decimal.NewFromInt(tt.want)), "got %s, want %d", got, tt.want)
		})
	}
}

func participants(gains ...int64) []model.Participant {
	ps := make([]model.Participant, len(gains))
	for i, g := range gains {
		var id common.Address
		id[19] = byte(i + 1)
		ps[i] = model.Participant{Identity: id, PercentGain: decimal.NewFromInt(g)}
	}
	return ps
}

func TestWinnerIndex_FirstOfTiesWins(t *testing.T) {
	assert.Equal(t, -1, winnerIndex(nil))
	assert.Equal(t, 0, winnerIndex(participants(-50)))
	assert.Equal(t, 1, winnerIndex(participants(10, 300, 300, 20)))
	assert.Equal(t, 2, winnerIndex(participants(-10, -5, 0)))
}

func TestLeaderboard_StableDescending(t *testing.T) {
	p := &model.Pool{
		Participants: participants(10, 300, -20, 300, 10),
		Phase:        model.PhaseDeclared,
	}
	p.Winner = p.Participants[1].Identity

	board := Leaderboard(p)
	require.Len(t, board, 5)

	var order []byte
	for i, row := range board {
		assert.Equal(t, i+1, row.Rank)
		order = append(order, row.Identity[19])
	}
	assert.Equal(t, []byte{2, 4, 1, 5, 3}, order)
	assert.True(t, board[0].IsWinner)
	assert.False(t, board[1].IsWinner, "a tie with the winner does not share the win")
}

func TestDraw_IsDeterministicPermutation(t *testing.T) {
	for n := 0; n <= 12; n++ {
		a := Draw([]byte("seed"), n)
		b := Draw([]byte("seed"), n)
		require.Equal(t, a, b)

		sorted := append([]int(nil), a...)
		sort.Ints(sorted)
		for i := range sorted {
			require.Equal(t, i, sorted[i], "n=%d draw %v is not a permutation", n, a)
		}
	}
}

func TestDraw_SeedChangesOutcome(t *testing.T) {
	base := Draw([]byte("seed-a"), 10)
	differs := false
	for _, s := range []string{"seed-b", "seed-c", "seed-d", "seed-e"} {
		if !assert.ObjectsAreEqual(base, Draw([]byte(s), 10)) {
			differs = true
		}
	}
	assert.True(t, differs, "distinct seeds should not all produce the same draw")
}
