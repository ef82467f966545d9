package handlers

import (
	"net/http"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/services"
	"github.com/go-chi/chi/v5"
)

type RoomHandler struct {
	roomService services.RoomService
}

func NewRoomHandler(rs services.RoomService) *RoomHandler {
	return &RoomHandler{roomService: rs}
}

type rosterPlayerRequest struct {
	PlayerID string `json:"player_id" validate:"required"`
	Name     string `json:"name" validate:"required,max=100"`
}

type rosterEntryRequest struct {
	ParticipantID string                `json:"participant_id" validate:"required"`
	Name          string                `json:"name" validate:"required,max=100"`
	Players       []rosterPlayerRequest `json:"players" validate:"required,min=1,dive"`
}

type createRoomRequest struct {
	TournamentID string               `json:"tournament_id" validate:"required"`
	RoomNumber   int                  `json:"room_number" validate:"required,min=1"`
	Mode         string               `json:"mode" validate:"required,oneof=solo squad"`
	Roster       []rosterEntryRequest `json:"roster" validate:"required,min=1,dive"`
}

type scoringRequest struct {
	KillMultiplier  *float64        `json:"kill_multiplier" validate:"required,gte=0"`
	PlacementPoints map[int]float64 `json:"placement_points" validate:"omitempty,dive,keys,min=1,endkeys,gte=0"`
}

func (req createRoomRequest) toInput() services.CreateRoomInput {
	roster := make([]models.RosterEntry, 0, len(req.Roster))
	for _, e := range req.Roster {
		players := make([]models.RosterPlayer, 0, len(e.Players))
		for _, p := range e.Players {
			players = append(players, models.RosterPlayer{PlayerID: p.PlayerID, Name: p.Name})
		}
		roster = append(roster, models.RosterEntry{ParticipantID: e.ParticipantID, Name: e.Name, Players: players})
	}
	return services.CreateRoomInput{
		TournamentID: req.TournamentID,
		RoomNumber:   req.RoomNumber,
		Mode:         models.ParticipantMode(req.Mode),
		Roster:       roster,
	}
}

// CreateRoom godoc
// @Summary Create a room with its roster
// @Tags rooms
// @Accept json
// @Produce json
// @Success 201 {object} map[string]interface{}
// @Failure 409 {object} map[string]string "Room number already used in the tournament"
// @Failure 422 {object} map[string]string
// @Security BearerAuth
// @Router /rooms [post]
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	var input createRoomRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if errs := validateStruct(input); errs != nil {
		failedValidationResponse(w, r, errs)
		return
	}

	room, err := h.roomService.CreateRoom(r.Context(), scope, input.toInput())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"room": room}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetRoom godoc
// @Summary Get a room
// @Tags rooms
// @Produce json
// @Param roomID path string true "Room ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /rooms/{roomID} [get]
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	room, err := h.roomService.GetRoom(r.Context(), scope, chi.URLParam(r, "roomID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"room": room}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ResetRoom godoc
// @Summary Return a room to PENDING (organizers only)
// @Tags rooms
// @Produce json
// @Param roomID path string true "Room ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /rooms/{roomID}/reset [post]
func (h *RoomHandler) ResetRoom(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	room, err := h.roomService.ResetRoom(r.Context(), scope, chi.URLParam(r, "roomID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"room": room}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetScoring godoc
// @Summary Get the scoring policy of a tournament
// @Tags tournaments
// @Produce json
// @Param tournamentID path string true "Tournament ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /tournaments/{tournamentID}/scoring [get]
func (h *RoomHandler) GetScoring(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	cfg, err := h.roomService.GetScoring(r.Context(), scope, chi.URLParam(r, "tournamentID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"scoring": cfg}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SetScoring godoc
// @Summary Replace the scoring policy of a tournament
// @Description Matches already started keep the policy they were started with.
// @Tags tournaments
// @Accept json
// @Produce json
// @Param tournamentID path string true "Tournament ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /tournaments/{tournamentID}/scoring [put]
func (h *RoomHandler) SetScoring(w http.ResponseWriter, r *http.Request) {
	scope, err := scopeFromRequest(r)
	if err != nil {
		serverErrorResponse(w, r, err)
		return
	}
	var input scoringRequest
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if errs := validateStruct(input); errs != nil {
		failedValidationResponse(w, r, errs)
		return
	}

	cfg, err := h.roomService.SetScoring(r.Context(), scope, chi.URLParam(r, "tournamentID"), models.ScoringConfig{
		KillMultiplier:  *input.KillMultiplier,
		PlacementPoints: input.PlacementPoints,
	})
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"scoring": cfg}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
