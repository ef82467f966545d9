package scoring

import "github.com/Dosada05/tournament-engine/models"

type PlayerPoints struct {
	PlayerID        string
	KillPoints      float64
	PlacementPoints float64
}

// Breakdown is the result of scoring one MatchState.
type Breakdown struct {
	Players         []PlayerPoints
	PlacementPoints float64
	KillPoints      float64
	Points          float64
}

// Compute scores state under cfg without modifying it. Placement points are
// split evenly across the participant's players (a solo entry has a single
// player, so its divisor is 1). Disqualified states score zero everywhere.
func Compute(state *models.MatchState, cfg models.ScoringConfig) Breakdown {
	b := Breakdown{Players: make([]PlayerPoints, len(state.Players))}
	for i, p := range state.Players {
		b.Players[i].PlayerID = p.PlayerID
	}
	if state.IsDisqualified {
		return b
	}

	divisor := len(state.Players)
	if divisor < 1 {
		divisor = 1
	}

	b.PlacementPoints = PlacementPoints(cfg, state.Placement)
	share := Round2(b.PlacementPoints / float64(divisor))

	totalKills := 0
	for i, p := range state.Players {
		b.Players[i].KillPoints = Round2(float64(p.Kills) * cfg.KillMultiplier)
		b.Players[i].PlacementPoints = share
		totalKills += p.Kills
	}
	if len(state.Players) == 0 {
		totalKills = state.TotalKills
	}
	b.KillPoints = Round2(float64(totalKills) * cfg.KillMultiplier)
	b.Points = Round2(b.PlacementPoints + b.KillPoints)
	return b
}

// Apply recomputes TotalKills, the per-player breakdown and Points of state
// using the scoring snapshot taken when its match started.
func Apply(state *models.MatchState) float64 {
	if len(state.Players) > 0 {
		state.TotalKills = state.SumKills()
	}
	b := Compute(state, state.Scoring)
	for i := range state.Players {
		state.Players[i].KillPoints = b.Players[i].KillPoints
		state.Players[i].PlacementPoints = b.Players[i].PlacementPoints
	}
	state.Points = b.Points
	return state.Points
}
