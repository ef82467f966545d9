package models

import "time"

// MatchPhase is derived from the three state flags.
type MatchPhase string

const (
	PhaseActive       MatchPhase = "ACTIVE"
	PhaseCompleted    MatchPhase = "COMPLETED"
	PhaseDisqualified MatchPhase = "DISQUALIFIED"
)

type PlayerStat struct {
	PlayerID        string  `json:"playerId" bson:"playerId"`
	Name            string  `json:"name" bson:"name"`
	Kills           int     `json:"kills" bson:"kills"`
	IsEliminated    bool    `json:"isEliminated" bson:"isEliminated"`
	KillPoints      float64 `json:"killPoints" bson:"killPoints"`
	PlacementPoints float64 `json:"placementPoints" bson:"placementPoints"`
}

// MatchState is the permanent record of one participant in one match of one
// room. Records are created when the match starts and are never deleted.
type MatchState struct {
	ID                     string        `json:"id" bson:"_id" db:"id"`
	ParticipantID          string        `json:"participantId" bson:"participantId" db:"participant_id"`
	ParticipantName        string        `json:"participantName" bson:"participantName" db:"participant_name"`
	RoomID                 string        `json:"roomId" bson:"roomId" db:"room_id"`
	TournamentID           string        `json:"tournamentId" bson:"tournamentId" db:"tournament_id"`
	MatchNumber            int           `json:"matchNumber" bson:"matchNumber" db:"match_number"`
	RosterIndex            int           `json:"rosterIndex" bson:"rosterIndex" db:"roster_index"`
	Players                []PlayerStat  `json:"players" bson:"players" db:"players"`
	TotalKills             int           `json:"totalKills" bson:"totalKills" db:"total_kills"`
	Placement              *int          `json:"placement" bson:"placement" db:"placement"`
	Points                 float64       `json:"points" bson:"points" db:"points"`
	IsActive               bool          `json:"isActive" bson:"isActive" db:"is_active"`
	IsCompleted            bool          `json:"isCompleted" bson:"isCompleted" db:"is_completed"`
	IsDisqualified         bool          `json:"isDisqualified" bson:"isDisqualified" db:"is_disqualified"`
	DisqualificationReason *string       `json:"disqualificationReason" bson:"disqualificationReason" db:"disqualification_reason"`
	Scoring                ScoringConfig `json:"scoring" bson:"scoring" db:"scoring"`
	Version                int64         `json:"version" bson:"version" db:"version"`
	CreatedAt              time.Time     `json:"createdAt" bson:"createdAt" db:"created_at"`
	UpdatedAt              time.Time     `json:"updatedAt" bson:"updatedAt" db:"updated_at"`
}

func (m *MatchState) Phase() MatchPhase {
	switch {
	case m.IsDisqualified:
		return PhaseDisqualified
	case m.IsCompleted:
		return PhaseCompleted
	default:
		return PhaseActive
	}
}

// CountsAsActive is the predicate used by placement counting.
func (m *MatchState) CountsAsActive() bool {
	return m.IsActive && !m.IsDisqualified
}

// PlayerIndex returns the index of playerID in Players or -1.
func (m *MatchState) PlayerIndex(playerID string) int {
	for i := range m.Players {
		if m.Players[i].PlayerID == playerID {
			return i
		}
	}
	return -1
}

func (m *MatchState) AllEliminated() bool {
	if len(m.Players) == 0 {
		return false
	}
	for _, p := range m.Players {
		if !p.IsEliminated {
			return false
		}
	}
	return true
}

func (m *MatchState) SumKills() int {
	total := 0
	for _, p := range m.Players {
		total += p.Kills
	}
	return total
}

func (m *MatchState) Clone() *MatchState {
	if m == nil {
		return nil
	}
	out := *m
	if m.Players != nil {
		out.Players = make([]PlayerStat, len(m.Players))
		copy(out.Players, m.Players)
	}
	if m.Placement != nil {
		p := *m.Placement
		out.Placement = &p
	}
	if m.DisqualificationReason != nil {
		r := *m.DisqualificationReason
		out.DisqualificationReason = &r
	}
	out.Scoring = m.Scoring.Clone()
	return &out
}

// NewMatchState builds the initial ACTIVE record of the roster entry at
// position index. Listings of a match are ordered by that position.
func NewMatchState(id string, room *Room, index int, matchNumber int, scoring ScoringConfig, now time.Time) *MatchState {
	entry := room.Roster[index]
	players := make([]PlayerStat, 0, len(entry.Players))
	for _, p := range entry.Players {
		players = append(players, PlayerStat{PlayerID: p.PlayerID, Name: p.Name})
	}
	return &MatchState{
		ID:              id,
		ParticipantID:   entry.ParticipantID,
		ParticipantName: entry.Name,
		RoomID:          room.ID,
		TournamentID:    room.TournamentID,
		MatchNumber:     matchNumber,
		RosterIndex:     index,
		Players:         players,
		IsActive:        true,
		Scoring:         scoring.Clone(),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
