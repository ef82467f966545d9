package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/google/uuid"
)

// HistoryRecord is one audit entry written after a match transition.
type HistoryRecord struct {
	ID     string             `json:"id"`
	Tenant string             `json:"tenant"`
	Action string             `json:"action"`
	Actor  string             `json:"actor,omitempty"`
	State  *models.MatchState `json:"state"`
	At     time.Time          `json:"at"`
}

// HistorySink receives audit records. Callers treat failures as non-fatal.
type HistorySink interface {
	Record(ctx context.Context, rec HistoryRecord) error
}

type NopHistorySink struct{}

func (NopHistorySink) Record(context.Context, HistoryRecord) error { return nil }

// ObjectHistorySink writes every record as its own JSON object.
type ObjectHistorySink struct {
	store ObjectStore
}

func NewObjectHistorySink(store ObjectStore) *ObjectHistorySink {
	return &ObjectHistorySink{store: store}
}

// HistoryKey groups records by tenant, tournament, room and match.
func HistoryKey(rec HistoryRecord) string {
	s := rec.State
	return fmt.Sprintf("history/%s/%s/%s/match-%d/%s-%s-%s.json",
		rec.Tenant, s.TournamentID, s.RoomID, s.MatchNumber,
		rec.At.UTC().Format("20060102T150405.000000000Z"), rec.Action, rec.ID)
}

func (h *ObjectHistorySink) Record(ctx context.Context, rec HistoryRecord) error {
	if rec.State == nil {
		return fmt.Errorf("history record %q has no state", rec.Action)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.At.IsZero() {
		rec.At = time.Now().UTC()
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding history record: %w", err)
	}
	if _, err := h.store.Put(ctx, HistoryKey(rec), "application/json", bytes.NewReader(body)); err != nil {
		return err
	}
	return nil
}
