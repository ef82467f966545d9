package models

import "time"

// RecentFormSize caps Leaderboard.RecentForm.
const RecentFormSize = 5

// FormEntry is one applied match as seen by the leaderboard. Placement is 0
// when the match was applied without a placement.
type FormEntry struct {
	StateID     string  `json:"stateId" bson:"stateId"`
	MatchNumber int     `json:"matchNumber" bson:"matchNumber"`
	Placement   int     `json:"placement" bson:"placement"`
	Kills       int     `json:"kills" bson:"kills"`
	Points      float64 `json:"points" bson:"points"`
}

type PlayerTotals struct {
	PlayerID        string  `json:"playerId" bson:"playerId"`
	Name            string  `json:"name" bson:"name"`
	Kills           int     `json:"kills" bson:"kills"`
	KillPoints      float64 `json:"killPoints" bson:"killPoints"`
	PlacementPoints float64 `json:"placementPoints" bson:"placementPoints"`
	Points          float64 `json:"points" bson:"points"`
	MatchesPlayed   int     `json:"matchesPlayed" bson:"matchesPlayed"`
}

// Leaderboard holds the cumulative standing of one participant in one
// tournament. History lists every applied match; RecentForm and the extrema
// are derived from it.
type Leaderboard struct {
	ID              string         `json:"id" bson:"_id" db:"-"`
	TournamentID    string         `json:"tournamentId" bson:"tournamentId" db:"tournament_id"`
	ParticipantID   string         `json:"participantId" bson:"participantId" db:"participant_id"`
	ParticipantName string         `json:"participantName" bson:"participantName" db:"participant_name"`
	TotalKills      int            `json:"totalKills" bson:"totalKills" db:"total_kills"`
	TotalPoints     float64        `json:"totalPoints" bson:"totalPoints" db:"total_points"`
	MatchesPlayed   int            `json:"matchesPlayed" bson:"matchesPlayed" db:"matches_played"`
	Wins            int            `json:"wins" bson:"wins" db:"wins"`
	Top3            int            `json:"top3" bson:"top3" db:"top3"`
	Top5            int            `json:"top5" bson:"top5" db:"top5"`
	BestPlacement   int            `json:"bestPlacement" bson:"bestPlacement" db:"best_placement"`
	HighestKills    int            `json:"highestKills" bson:"highestKills" db:"highest_kills"`
	RecentForm      []FormEntry    `json:"recentForm" bson:"recentForm" db:"recent_form"`
	Players         []PlayerTotals `json:"players" bson:"players" db:"players"`
	History         []FormEntry    `json:"-" bson:"history" db:"history"`
	Version         int64          `json:"version" bson:"version" db:"version"`
	UpdatedAt       time.Time      `json:"updatedAt" bson:"updatedAt" db:"updated_at"`
}

func LeaderboardID(tournamentID, participantID string) string {
	return tournamentID + ":" + participantID
}

func NewLeaderboard(tournamentID, participantID, participantName string) *Leaderboard {
	return &Leaderboard{
		ID:              LeaderboardID(tournamentID, participantID),
		TournamentID:    tournamentID,
		ParticipantID:   participantID,
		ParticipantName: participantName,
	}
}

func (l *Leaderboard) Clone() *Leaderboard {
	if l == nil {
		return nil
	}
	out := *l
	if l.RecentForm != nil {
		out.RecentForm = append([]FormEntry(nil), l.RecentForm...)
	}
	if l.Players != nil {
		out.Players = append([]PlayerTotals(nil), l.Players...)
	}
	if l.History != nil {
		out.History = append([]FormEntry(nil), l.History...)
	}
	return &out
}
