package handlers

import (
	"net/http"
	"time"
)

type PoolStats interface {
	Len() int
}

type HealthHandler struct {
	pool    PoolStats
	started time.Time
}

func NewHealthHandler(pool PoolStats) *HealthHandler {
	return &HealthHandler{pool: pool, started: time.Now()}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := jsonResponse{
		"status":       "ok",
		"uptime":       time.Since(h.started).Round(time.Second).String(),
		"open_tenants": h.pool.Len(),
	}
	if err := writeJSON(w, http.StatusOK, body, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
