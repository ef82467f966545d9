package models

import "time"

// RoomStatus is the lobby lifecycle. Transitions only move forward; the
// only way back to PENDING is an explicit reset.
type RoomStatus string

const (
	RoomStatusPending   RoomStatus = "PENDING"
	RoomStatusReady     RoomStatus = "READY"
	RoomStatusOngoing   RoomStatus = "ONGOING"
	RoomStatusCompleted RoomStatus = "COMPLETED"
)

type ParticipantMode string

const (
	ModeSolo  ParticipantMode = "solo"
	ModeSquad ParticipantMode = "squad"
)

type RosterPlayer struct {
	PlayerID string `json:"playerId" bson:"playerId"`
	Name     string `json:"name" bson:"name"`
}

// RosterEntry is one squad (or solo player) as supplied by the roster provider.
type RosterEntry struct {
	ParticipantID string         `json:"participantId" bson:"participantId"`
	Name          string         `json:"name" bson:"name"`
	Players       []RosterPlayer `json:"players" bson:"players"`
}

type Room struct {
	ID           string          `json:"id" bson:"_id" db:"id"`
	TournamentID string          `json:"tournamentId" bson:"tournamentId" db:"tournament_id"`
	RoomNumber   int             `json:"roomNumber" bson:"roomNumber" db:"room_number"`
	Mode         ParticipantMode `json:"mode" bson:"mode" db:"mode"`
	Roster       []RosterEntry   `json:"roster" bson:"roster" db:"roster"`
	Status       RoomStatus      `json:"status" bson:"status" db:"status"`
	CurrentMatch int             `json:"currentMatch" bson:"currentMatch" db:"current_match"`
	CreatedAt    time.Time       `json:"createdAt" bson:"createdAt" db:"created_at"`
	UpdatedAt    time.Time       `json:"updatedAt" bson:"updatedAt" db:"updated_at"`
}

var roomStatusOrder = map[RoomStatus]int{
	RoomStatusPending:   0,
	RoomStatusReady:     1,
	RoomStatusOngoing:   2,
	RoomStatusCompleted: 3,
}

// CanAdvanceTo reports whether next is reachable from s without a reset.
// ONGOING -> ONGOING is allowed so that a room can run successive matches.
func (s RoomStatus) CanAdvanceTo(next RoomStatus) bool {
	cur, ok := roomStatusOrder[s]
	if !ok {
		return false
	}
	n, ok := roomStatusOrder[next]
	if !ok {
		return false
	}
	if s == RoomStatusOngoing && next == RoomStatusOngoing {
		return true
	}
	return n == cur+1
}

func IsValidMode(m ParticipantMode) bool {
	return m == ModeSolo || m == ModeSquad
}
