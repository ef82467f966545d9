package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventKillUpdate              EventType = "killUpdate"
	EventPlayerStatsUpdate       EventType = "playerStatsUpdate"
	EventMatchComplete           EventType = "matchComplete"
	EventDisqualified            EventType = "disqualified"
	EventMatchStarted            EventType = "matchStarted"
	EventMatchReverted           EventType = "matchReverted"
	EventDisqualificationRevoked EventType = "disqualificationRevoked"
)

// Message is the frame written to subscribers. RoomID carries the channel
// name, which is the tenant slug.
type Message struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RoomID    string          `json:"room_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type KillUpdate struct {
	StateID         string  `json:"stateId"`
	PlayerID        string  `json:"playerId"`
	Kills           int     `json:"kills"`
	KillPoints      float64 `json:"killPoints"`
	PlacementPoints float64 `json:"placementPoints"`
	TotalKills      int     `json:"totalKills"`
	Points          float64 `json:"points"`
}

type PlayerStatsUpdate struct {
	StateID      string `json:"stateId"`
	PlayerID     string `json:"playerId"`
	IsEliminated bool   `json:"isEliminated"`
	Kills        int    `json:"kills"`
}

type MatchComplete struct {
	StateID       string  `json:"stateId"`
	ParticipantID string  `json:"participantId"`
	Placement     int     `json:"placement"`
	Points        float64 `json:"points"`
}

type Disqualified struct {
	StateID string `json:"stateId"`
	Reason  string `json:"reason"`
}

type MatchStarted struct {
	RoomID       string   `json:"roomId"`
	TournamentID string   `json:"tournamentId"`
	MatchNumber  int      `json:"matchNumber"`
	StateIDs     []string `json:"stateIds"`
}

type MatchReverted struct {
	StateID       string `json:"stateId"`
	ParticipantID string `json:"participantId"`
}

type DisqualificationRevoked struct {
	StateID       string `json:"stateId"`
	ParticipantID string `json:"participantId"`
}

// Broadcaster publishes a tenant-scoped event. Delivery is at most once.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, eventType EventType, payload interface{}) error
}

func encodeMessage(channel string, eventType EventType, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", eventType, err)
	}
	return json.Marshal(Message{
		ID:        uuid.NewString(),
		Type:      eventType,
		Payload:   body,
		RoomID:    channel,
		Timestamp: time.Now().UTC(),
	})
}

// LocalBroadcaster delivers straight to the in-process hub.
type LocalBroadcaster struct {
	hub *Hub
}

func NewLocalBroadcaster(hub *Hub) *LocalBroadcaster {
	return &LocalBroadcaster{hub: hub}
}

func (b *LocalBroadcaster) Publish(_ context.Context, channel string, eventType EventType, payload interface{}) error {
	data, err := encodeMessage(channel, eventType, payload)
	if err != nil {
		return err
	}
	publishedEvents.WithLabelValues(string(eventType)).Inc()
	b.hub.BroadcastToChannel(channel, data)
	return nil
}

// NopBroadcaster drops every event.
type NopBroadcaster struct{}

func (NopBroadcaster) Publish(context.Context, string, EventType, interface{}) error { return nil }
