package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/tournament-engine/models"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memoryStore) Put(_ context.Context, key, contentType string, body io.Reader) (*PutResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	m.types[key] = contentType
	return &PutResult{Key: key}, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func sampleState() *models.MatchState {
	placement := 2
	return &models.MatchState{
		ID:            "state-1",
		TournamentID:  "tour-1",
		RoomID:        "room-1",
		MatchNumber:   3,
		ParticipantID: "p1",
		Placement:     &placement,
		Points:        13,
	}
}

func TestHistoryKey(t *testing.T) {
	rec := HistoryRecord{
		ID:     "rec-1",
		Tenant: "acme",
		Action: "completed",
		State:  sampleState(),
		At:     time.Date(2024, 5, 1, 12, 30, 0, 5, time.UTC),
	}
	want := "history/acme/tour-1/room-1/match-3/20240501T123000.000000005Z-completed-rec-1.json"
	if got := HistoryKey(rec); got != want {
		t.Fatalf("HistoryKey() = %q, want %q", got, want)
	}
}

func TestObjectHistorySinkRecord(t *testing.T) {
	store := newMemoryStore()
	sink := NewObjectHistorySink(store)

	if err := sink.Record(context.Background(), HistoryRecord{Tenant: "acme", Action: "completed", Actor: "user-1", State: sampleState()}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(store.objects) != 1 {
		t.Fatalf("expected one object, got %d", len(store.objects))
	}
	for key, data := range store.objects {
		if !strings.HasPrefix(key, "history/acme/tour-1/room-1/match-3/") || !strings.HasSuffix(key, ".json") {
			t.Errorf("unexpected key %q", key)
		}
		if store.types[key] != "application/json" {
			t.Errorf("unexpected content type %q", store.types[key])
		}
		var rec HistoryRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			t.Fatalf("decode stored record: %v", err)
		}
		if rec.ID == "" || rec.At.IsZero() {
			t.Errorf("id and timestamp must be filled in: %+v", rec)
		}
		if rec.State == nil || rec.State.Points != 13 || rec.Actor != "user-1" {
			t.Errorf("unexpected stored record: %+v", rec)
		}
	}
}

func TestObjectHistorySinkErrors(t *testing.T) {
	store := newMemoryStore()
	sink := NewObjectHistorySink(store)
	if err := sink.Record(context.Background(), HistoryRecord{Action: "completed"}); err == nil {
		t.Fatal("expected error for a record without state")
	}

	store.err = errors.New("bucket unavailable")
	err := sink.Record(context.Background(), HistoryRecord{Action: "completed", State: sampleState()})
	if !errors.Is(err, store.err) {
		t.Fatalf("expected store error, got %v", err)
	}

	if err := (NopHistorySink{}).Record(context.Background(), HistoryRecord{}); err != nil {
		t.Fatalf("nop sink returned %v", err)
	}
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		base, key, want string
	}{
		{"https://cdn.example.com", "history/a.json", "https://cdn.example.com/history/a.json"},
		{"https://cdn.example.com/", "/history/a.json", "https://cdn.example.com/history/a.json"},
		{"https://cdn.example.com/bucket", "a.json", "https://cdn.example.com/bucket/a.json"},
		{"", "a.json", ""},
		{"https://cdn.example.com", "", ""},
	}
	for _, tt := range tests {
		if got := publicURL(tt.base, tt.key); got != tt.want {
			t.Errorf("publicURL(%q, %q) = %q, want %q", tt.base, tt.key, got, tt.want)
		}
	}
}

func TestNewS3StoreRequiresCredentials(t *testing.T) {
	if _, err := NewS3Store(context.Background(), S3StoreConfig{BucketName: "history"}); err == nil {
		t.Fatal("expected configuration error")
	}
}

func TestS3StorePutAgainstEndpoint(t *testing.T) {
	var (
		mu      sync.Mutex
		methods []string
		paths   []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		mu.Lock()
		methods = append(methods, r.Method)
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("ETag", `"abc123"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store, err := NewS3Store(context.Background(), S3StoreConfig{
		Endpoint:        server.URL,
		Region:          "us-east-1",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		BucketName:      "history",
		PublicBaseURL:   "https://cdn.example.com",
	})
	if err != nil {
		t.Fatalf("NewS3Store: %v", err)
	}

	res, err := store.Put(context.Background(), "history/acme/a.json", "application/json", bytes.NewReader([]byte(`{}`)))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if res.ETag != "abc123" || res.Location != "https://cdn.example.com/history/acme/a.json" {
		t.Fatalf("unexpected put result: %+v", res)
	}
	if err := store.Delete(context.Background(), "history/acme/a.json"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(methods) != 2 || methods[0] != http.MethodPut || methods[1] != http.MethodDelete {
		t.Fatalf("unexpected requests: %v", methods)
	}
	if paths[0] != "/history/history/acme/a.json" {
		t.Fatalf("expected path-style request, got %q", paths[0])
	}
}
