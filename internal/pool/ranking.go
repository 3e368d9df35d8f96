package pool

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/memepool/pool-engine/internal/model"
)

// PercentGain is (unlock − entry) × 10000 / entry in basis points,
// truncated toward zero. A zero entry price yields zero.
func PercentGain(entry, unlock decimal.Decimal) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	q, _ := unlock.Sub(entry).Mul(decimal.NewFromInt(bpsDenominator)).QuoRem(entry, 0)
	return q
}

// winnerIndex returns the participant with the highest gain. Ties go to
// whoever joined first. Returns -1 for an empty slice.
func winnerIndex(ps []model.Participant) int {
	best := -1
	for i := range ps {
		if best < 0 || ps[i].PercentGain.GreaterThan(ps[best].PercentGain) {
			best = i
		}
	}
	return best
}

// Leaderboard ranks participants by gain, highest first, keeping join
// order among equal gains.
func Leaderboard(p *model.Pool) []model.LeaderboardEntry {
	order := make([]int, len(p.Participants))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return p.Participants[order[a]].PercentGain.GreaterThan(p.Participants[order[b]].PercentGain)
	})

	board := make([]model.LeaderboardEntry, len(order))
	for rank, i := range order {
		pt := p.Participants[i]
		board[rank] = model.LeaderboardEntry{
			Rank:          rank + 1,
			Identity:      pt.Identity,
			AssignedAsset: pt.AssignedAsset,
			PercentGain:   pt.PercentGain,
			IsWinner:      p.Phase.WinnerDeclared() && pt.Identity == p.Winner,
		}
	}
	return board
}
