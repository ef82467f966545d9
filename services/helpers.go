package services

import (
	"fmt"
	"strings"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/repositories"
)

// Scope is everything a service call needs to know about where it runs and
// who asked.
type Scope struct {
	Tenant *models.Tenant
	Repos  *repositories.Set
	Caller models.Identity
}

func (s Scope) channel() string {
	if s.Tenant == nil {
		return ""
	}
	return s.Tenant.Slug
}

func (s Scope) tenantID() string {
	if s.Tenant == nil {
		return ""
	}
	return s.Tenant.ID
}

func matchKey(tenantID, roomID string, matchNumber int) string {
	return fmt.Sprintf("%s/%s/%d", tenantID, roomID, matchNumber)
}

func requireOrganizer(caller models.Identity) error {
	if caller.Role != models.RoleOrganizer {
		return fmt.Errorf("%w: organizer role required", ErrUnauthorized)
	}
	return nil
}

func requireRoom(caller models.Identity, roomID string) error {
	if !caller.CanManageRoom(roomID) {
		return fmt.Errorf("%w: room %s is outside the caller's scope", ErrUnauthorized, roomID)
	}
	return nil
}

func requireParticipant(caller models.Identity, state *models.MatchState) error {
	if !caller.CanManageParticipant(state.RoomID, state.ParticipantID) {
		return fmt.Errorf("%w: participant %s is outside the caller's scope", ErrUnauthorized, state.ParticipantID)
	}
	return nil
}

func requireReader(caller models.Identity) error {
	switch caller.Role {
	case models.RoleOrganizer, models.RoleModerator:
		return nil
	}
	return fmt.Errorf("%w: unknown role %q", ErrUnauthorized, caller.Role)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func intPtr(v int) *int { return &v }

func trimmed(s string) string { return strings.TrimSpace(s) }
