package models

import "slices"

type UserRole string

const (
	RoleOrganizer UserRole = "organizer"
	RoleModerator UserRole = "moderator"
)

// Identity is the caller as resolved by the authorization layer. Moderators
// are limited to the rooms and participants they were assigned.
type Identity struct {
	UserID         string   `json:"user_id"`
	Role           UserRole `json:"role"`
	RoomIDs        []string `json:"rooms,omitempty"`
	ParticipantIDs []string `json:"participants,omitempty"`
}

func (i Identity) CanManageRoom(roomID string) bool {
	switch i.Role {
	case RoleOrganizer:
		return true
	case RoleModerator:
		return slices.Contains(i.RoomIDs, roomID)
	}
	return false
}

func (i Identity) CanManageParticipant(roomID, participantID string) bool {
	if i.CanManageRoom(roomID) {
		return true
	}
	return i.Role == RoleModerator && slices.Contains(i.ParticipantIDs, participantID)
}
