package handlers

import (
	"context"
	"net/http"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/services"
	"github.com/go-chi/chi/v5"
)

type MatchHandler struct {
	matchService services.MatchService
}

func NewMatchHandler(ms services.MatchService) *MatchHandler {
	return &MatchHandler{matchService: ms}
}

type recordKillRequest struct {
	PlayerID string `json:"player_id" validate:"required"`
	Kills    *int   `json:"kills" validate:"required,min=0"`
}

type eliminationRequest struct {
	PlayerID   string `json:"player_id" validate:"required"`
	Eliminated *bool  `json:"eliminated" validate:"required"`
}

type completeRequest struct {
	Placement *int `json:"placement,omitempty" validate:"omitempty,min=1"`
}

type disqualifyRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// StartMatch godoc
// @Summary Start a match in a room
// @Tags matches
// @Produce json
// @Param roomID path string true "Room ID"
// @Param matchNumber path int true "Match number"
// @Success 201 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Security BearerAuth
// @Router /rooms/{roomID}/matches/{matchNumber}/start [post]
func (h *MatchHandler) StartMatch(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	matchNumber, err := getPositiveIntFromURL(r, "matchNumber")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	states, err := h.matchService.StartMatch(r.Context(), scope, chi.URLParam(r, "roomID"), matchNumber)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"states": states}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListMatch godoc
// @Summary List the participant states of one match
// @Tags matches
// @Produce json
// @Param roomID path string true "Room ID"
// @Param matchNumber path int true "Match number"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /rooms/{roomID}/matches/{matchNumber}/states [get]
func (h *MatchHandler) ListMatch(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	matchNumber, err := getPositiveIntFromURL(r, "matchNumber")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	states, err := h.matchService.ListMatch(r.Context(), scope, chi.URLParam(r, "roomID"), matchNumber)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"states": states}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetState godoc
// @Summary Get one match state
// @Tags matches
// @Produce json
// @Param stateID path string true "Match state ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /states/{stateID} [get]
func (h *MatchHandler) GetState(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	st, err := h.matchService.GetState(r.Context(), scope, chi.URLParam(r, "stateID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"state": st}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RecordKill godoc
// @Summary Set a player's kill count
// @Tags matches
// @Accept json
// @Produce json
// @Param stateID path string true "Match state ID"
// @Success 200 {object} map[string]interface{}
// @Failure 409 {object} map[string]string "State is not active or player eliminated"
// @Failure 422 {object} map[string]string
// @Security BearerAuth
// @Router /states/{stateID}/kills [post]
func (h *MatchHandler) RecordKill(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	var input recordKillRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if errs := validateStruct(input); errs != nil {
		failedValidationResponse(w, r, errs)
		return
	}

	st, err := h.matchService.RecordKill(r.Context(), scope, chi.URLParam(r, "stateID"), input.PlayerID, *input.Kills)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"state": st}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ToggleElimination godoc
// @Summary Mark a player eliminated or back in play
// @Tags matches
// @Accept json
// @Produce json
// @Param stateID path string true "Match state ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /states/{stateID}/elimination [post]
func (h *MatchHandler) ToggleElimination(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	var input eliminationRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if errs := validateStruct(input); errs != nil {
		failedValidationResponse(w, r, errs)
		return
	}

	st, err := h.matchService.ToggleElimination(r.Context(), scope, chi.URLParam(r, "stateID"), input.PlayerID, *input.Eliminated)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"state": st}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CompleteMatch godoc
// @Summary Complete a participant's match
// @Description Without a placement the participant is ranked by how many are still active.
// @Tags matches
// @Accept json
// @Produce json
// @Param stateID path string true "Match state ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /states/{stateID}/complete [post]
func (h *MatchHandler) CompleteMatch(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	var input completeRequest
	if err := readOptionalJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if errs := validateStruct(input); errs != nil {
		failedValidationResponse(w, r, errs)
		return
	}

	st, err := h.matchService.CompleteMatch(r.Context(), scope, chi.URLParam(r, "stateID"), input.Placement)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"state": st}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Disqualify godoc
// @Summary Disqualify a participant from the match
// @Tags matches
// @Accept json
// @Produce json
// @Param stateID path string true "Match state ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /states/{stateID}/disqualify [post]
func (h *MatchHandler) Disqualify(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	var input disqualifyRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if errs := validateStruct(input); errs != nil {
		failedValidationResponse(w, r, errs)
		return
	}

	st, err := h.matchService.Disqualify(r.Context(), scope, chi.URLParam(r, "stateID"), input.Reason)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"state": st}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RevokeDisqualification godoc
// @Summary Revoke a disqualification
// @Tags matches
// @Produce json
// @Param stateID path string true "Match state ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /states/{stateID}/revoke [post]
func (h *MatchHandler) RevokeDisqualification(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.matchService.RevokeDisqualification)
}

// RevertMatch godoc
// @Summary Reopen a completed match (organizers only)
// @Description Placement and points are cleared, not restored.
// @Tags matches
// @Produce json
// @Param stateID path string true "Match state ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /states/{stateID}/revert [post]
func (h *MatchHandler) RevertMatch(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.matchService.RevertMatch)
}

func (h *MatchHandler) simpleTransition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, scope services.Scope, stateID string) (*models.MatchState, error)) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	st, err := op(r.Context(), scope, chi.URLParam(r, "stateID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"state": st}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// FinishRoom godoc
// @Summary Complete a room once its current match is over
// @Tags rooms
// @Produce json
// @Param roomID path string true "Room ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /rooms/{roomID}/finish [post]
func (h *MatchHandler) FinishRoom(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	room, err := h.matchService.FinishRoom(r.Context(), scope, chi.URLParam(r, "roomID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"room": room}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
