package handlers

import (
	"net/http"

	"github.com/Dosada05/tournament-engine/services"
	"github.com/go-chi/chi/v5"
)

type LeaderboardHandler struct {
	leaderboardService services.LeaderboardService
}

func NewLeaderboardHandler(ls services.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboardService: ls}
}

// Standings godoc
// @Summary Tournament standings
// @Description Ordered by points, kills and wins, then participant id.
// @Tags tournaments
// @Produce json
// @Param tournamentID path string true "Tournament ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /tournaments/{tournamentID}/leaderboard [get]
func (h *LeaderboardHandler) Standings(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	boards, err := h.leaderboardService.Standings(r.Context(), scope, chi.URLParam(r, "tournamentID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"leaderboard": boards}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
