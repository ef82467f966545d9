package scoring

import (
	"cmp"
	"slices"

	"github.com/Dosada05/tournament-engine/models"
)

func IsWin(placement int) bool { return placement == 1 }

// IsTop reports whether placement is a resolved rank within the first n.
func IsTop(placement, n int) bool {
	return placement >= 1 && placement <= n
}

// SortStandings orders leaderboards by points, then kills, then wins, with
// participant id as the stable tie-break.
func SortStandings(boards []*models.Leaderboard) {
	slices.SortStableFunc(boards, func(a, b *models.Leaderboard) int {
		if c := cmp.Compare(b.TotalPoints, a.TotalPoints); c != 0 {
			return c
		}
		if c := cmp.Compare(b.TotalKills, a.TotalKills); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Wins, a.Wins); c != 0 {
			return c
		}
		return cmp.Compare(a.ParticipantID, b.ParticipantID)
	})
}
